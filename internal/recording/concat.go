// Package recording turns downloaded segments into finished video files:
// sessions append segments to an intermediate container and a finisher
// remuxes it with ffmpeg once the session closes.
package recording

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// ErrConcatterClosed is returned when writing after End.
var ErrConcatterClosed = errors.New("concatter already ended")

// Concatter appends data to one output file. Writes are serialised and each
// call returns once its bytes reached the file.
type Concatter struct {
	path string

	mu       sync.Mutex
	file     *os.File
	ended    bool
	bytes    int64
	segments int
}

// NewConcatter opens path for appending, creating it and its directory.
func NewConcatter(path string) (*Concatter, error) {
	return openConcatter(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND)
}

// CreateConcatter is NewConcatter for a file that must not exist yet. The
// error wraps fs.ErrExist when it does.
func CreateConcatter(path string) (*Concatter, error) {
	return openConcatter(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY|os.O_APPEND)
}

func openConcatter(path string, flag int) (*Concatter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating recording directory: %w", err)
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return &Concatter{path: path, file: f}, nil
}

// ConcatData appends p as one segment.
func (c *Concatter) ConcatData(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ended {
		return ErrConcatterClosed
	}
	n, err := c.file.Write(p)
	c.bytes += int64(n)
	if err != nil {
		return fmt.Errorf("appending to %s: %w", c.path, err)
	}
	c.segments++
	return nil
}

// ConcatFromFiles appends each file in order. It holds the lock for the
// whole batch so End cannot interleave. ctx is checked between files.
func (c *Concatter) ConcatFromFiles(ctx context.Context, paths ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ended {
		return ErrConcatterClosed
	}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.appendFile(p); err != nil {
			return err
		}
	}
	return nil
}

func (c *Concatter) appendFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening segment: %w", err)
	}
	defer src.Close()

	n, err := io.Copy(c.file, src)
	c.bytes += n
	if err != nil {
		return fmt.Errorf("appending %s: %w", path, err)
	}
	c.segments++
	return nil
}

// End flushes and closes the file. Calling End again does nothing.
func (c *Concatter) End() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ended {
		return nil
	}
	c.ended = true

	syncErr := c.file.Sync()
	closeErr := c.file.Close()
	if err := errors.Join(syncErr, closeErr); err != nil {
		return fmt.Errorf("closing %s: %w", c.path, err)
	}
	return nil
}

// Path returns the output file path.
func (c *Concatter) Path() string { return c.path }

// Bytes returns how many bytes were appended.
func (c *Concatter) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// Segments returns how many segments were appended.
func (c *Concatter) Segments() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.segments
}

// Ended reports whether End was called.
func (c *Concatter) Ended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ended
}
