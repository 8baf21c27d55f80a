// Package startup provides checks run once when the recorder starts.
package startup

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/basshelal/hls2vod/internal/storage"
)

// DefaultOrphanAge is how long an intermediate must have been untouched
// before it is reported. Open sessions write every few seconds.
const DefaultOrphanAge = 10 * time.Minute

// Orphan is an intermediate file no running session owns: a failed remux or
// a session cut short by a crash.
type Orphan struct {
	Path    string
	Size    int64
	ModTime time.Time
	// HasFinal is true when a remuxed file with the same stem exists next to it.
	HasFinal bool
}

// FindOrphanedIntermediates walks baseDir for intermediate files not written
// to for maxAge. Nothing is removed: the intermediates are the only copy of
// a recording whose remux never succeeded.
func FindOrphanedIntermediates(logger *slog.Logger, baseDir string, maxAge time.Duration) ([]Orphan, error) {
	if _, err := os.Stat(baseDir); os.IsNotExist(err) {
		logger.Debug("output directory does not exist, skipping orphan scan", slog.String("path", baseDir))
		return nil, nil
	}

	cutoff := time.Now().Add(-maxAge)
	var orphans []Orphan

	err := filepath.WalkDir(baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn("skipping unreadable path", slog.String("path", path), slog.String("error", err.Error()))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || filepath.Ext(path) != storage.IntermediateExt {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(cutoff) {
			logger.Debug("intermediate still being written", slog.String("path", path))
			return nil
		}

		orphans = append(orphans, Orphan{
			Path:     path,
			Size:     info.Size(),
			ModTime:  info.ModTime(),
			HasFinal: hasFinal(path),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, o := range orphans {
		logger.Warn("intermediate left from an earlier run, remux it manually",
			slog.String("path", o.Path),
			slog.Int64("bytes", o.Size),
			slog.Bool("has_final", o.HasFinal),
			slog.Duration("age", time.Since(o.ModTime).Round(time.Second)),
		)
	}
	return orphans, nil
}

func hasFinal(intermediate string) bool {
	stem := strings.TrimSuffix(intermediate, storage.IntermediateExt)
	matches, err := filepath.Glob(escapeGlob(stem) + ".*")
	if err != nil {
		return false
	}
	for _, m := range matches {
		if m != intermediate {
			return true
		}
	}
	return false
}

// escapeGlob quotes the pattern characters filepath.Match understands.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
