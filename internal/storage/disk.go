package storage

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/disk"
)

// DiskUsage reports space on the filesystem holding the output directory.
type DiskUsage struct {
	Path        string  `json:"path"`
	TotalBytes  uint64  `json:"total_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedBytes   uint64  `json:"used_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// Usage returns disk usage for path.
func Usage(ctx context.Context, path string) (*DiskUsage, error) {
	stat, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("reading disk usage of %s: %w", path, err)
	}
	return &DiskUsage{
		Path:        path,
		TotalBytes:  stat.Total,
		FreeBytes:   stat.Free,
		UsedBytes:   stat.Used,
		UsedPercent: stat.UsedPercent,
	}, nil
}
