// Package ffmpeg locates the ffmpeg binary and runs remux commands with it.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// BinaryEnvVar overrides binary discovery when set.
const BinaryEnvVar = "HLS2VOD_FFMPEG_BINARY"

// ErrNotFound is returned when no usable ffmpeg binary exists.
var ErrNotFound = errors.New("ffmpeg binary not found")

var versionRegex = regexp.MustCompile(`^n?(\d+)\.(\d+)`)

// FindBinary returns the ffmpeg binary to use.
// Search order:
//  1. configured, when non-empty
//  2. the HLS2VOD_FFMPEG_BINARY environment variable
//  3. ./ffmpeg
//  4. ffmpeg on PATH
func FindBinary(configured string) (string, error) {
	if configured != "" {
		if isExecutable(configured) {
			return configured, nil
		}
		if path, err := exec.LookPath(configured); err == nil {
			return path, nil
		}
		return "", fmt.Errorf("%w: %s", ErrNotFound, configured)
	}

	if envPath := os.Getenv(BinaryEnvVar); envPath != "" && isExecutable(envPath) {
		return envPath, nil
	}

	if isExecutable("./ffmpeg") {
		return "./ffmpeg", nil
	}

	if path, err := exec.LookPath("ffmpeg"); err == nil {
		return path, nil
	}

	return "", ErrNotFound
}

// isExecutable checks if a file exists and is executable by the current user.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}

// BinaryInfo describes the detected ffmpeg installation.
type BinaryInfo struct {
	Path         string `json:"path"`
	Version      string `json:"version"`
	MajorVersion int    `json:"major_version"`
	MinorVersion int    `json:"minor_version"`
}

// Detector caches binary detection for the health endpoint.
type Detector struct {
	configured string
	cacheTTL   time.Duration

	mu           sync.Mutex
	info         *BinaryInfo
	lastDetected time.Time
}

// NewDetector creates a Detector for the configured binary path, which may be empty.
func NewDetector(configured string) *Detector {
	return &Detector{configured: configured, cacheTTL: 5 * time.Minute}
}

// Detect locates ffmpeg and reads its version.
func (d *Detector) Detect(ctx context.Context) (*BinaryInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.info != nil && time.Since(d.lastDetected) < d.cacheTTL {
		return d.info, nil
	}

	path, err := FindBinary(d.configured)
	if err != nil {
		return nil, err
	}

	info, err := readVersion(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("getting ffmpeg version: %w", err)
	}

	d.info = info
	d.lastDetected = time.Now()
	return info, nil
}

func readVersion(ctx context.Context, path string) (*BinaryInfo, error) {
	output, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return nil, err
	}
	return parseVersion(path, string(output))
}

// parseVersion reads lines like "ffmpeg version n6.0-2-g..." or "ffmpeg version 6.0.1 Copyright".
func parseVersion(path, output string) (*BinaryInfo, error) {
	for _, line := range strings.Split(output, "\n") {
		if !strings.HasPrefix(line, "ffmpeg version") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 3 {
			break
		}
		info := &BinaryInfo{Path: path, Version: parts[2]}
		if m := versionRegex.FindStringSubmatch(parts[2]); len(m) >= 3 {
			info.MajorVersion, _ = strconv.Atoi(m[1])
			info.MinorVersion, _ = strconv.Atoi(m[2])
		}
		return info, nil
	}
	return nil, errors.New("failed to parse ffmpeg version")
}
