package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// timestampLayout is the date part of recording file names.
const timestampLayout = "2006-01-02 15-04-05"

// IntermediateExt is the extension of the concatenated segment file.
const IntermediateExt = ".ts"

// Layout resolves stream and recording paths under one output directory.
// Every path it returns stays inside that directory.
type Layout struct {
	baseDir string
}

// NewLayout creates a Layout rooted at outputDir, creating it if needed.
func NewLayout(outputDir string) (*Layout, error) {
	absPath, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0o750); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &Layout{baseDir: absPath}, nil
}

// BaseDir returns the absolute output directory.
func (l *Layout) BaseDir() string {
	return l.baseDir
}

// StreamDir returns the directory of a stream, named after its sanitised name.
func (l *Layout) StreamDir(streamName string) string {
	return filepath.Join(l.baseDir, SanitizeName(streamName))
}

// Contains reports whether path resolves inside the output directory.
func (l *Layout) Contains(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	return abs == l.baseDir || strings.HasPrefix(abs, l.baseDir+string(filepath.Separator))
}

// RecordingPaths names the files of one recording session:
// <streamDir>/<show>/<show> YYYY-MM-DD HH-MM-SS.ts and the same stem with
// the final container extension. Attempt n > 0 adds " (n+1)" to the stem
// for sessions that start within the same second.
func RecordingPaths(streamDir, showName string, startedAt time.Time, container string, attempt int) (intermediate, final string) {
	show := SanitizeName(showName)
	name := show + " " + startedAt.Format(timestampLayout)
	if attempt > 0 {
		name += fmt.Sprintf(" (%d)", attempt+1)
	}
	stem := filepath.Join(streamDir, show, name)

	container = strings.TrimPrefix(strings.ToLower(container), ".")
	if container == "" {
		container = "mp4"
	}
	intermediate = stem + IntermediateExt
	final = stem + "." + container
	if final == intermediate {
		// remuxing ts to ts still needs a distinct output file
		final = stem + ".remux." + container
	}
	return intermediate, final
}
