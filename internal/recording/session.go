package recording

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/basshelal/hls2vod/internal/storage"
)

// ForcedShowName names sessions opened by a forced recording.
const ForcedShowName = "forced"

// SessionOptions describes a session to open.
type SessionOptions struct {
	Stream    string
	Show      string
	Forced    bool
	StreamDir string
	// Container is the final file extension, mp4 when empty.
	Container string
	StartedAt time.Time
}

// Session is one recording of a show (or a forced recording): it receives
// every segment while open and is finished once after Close.
type Session struct {
	ID               string
	Stream           string
	Show             string
	Forced           bool
	StartedAt        time.Time
	IntermediatePath string
	FinalPath        string

	concat *Concatter

	mu        sync.Mutex
	endedAt   time.Time
	writeErrs int
}

// maxPathAttempts bounds the numbered names tried for sessions that start in
// the same second.
const maxPathAttempts = 100

// NewSession creates the intermediate file and returns an open session.
func NewSession(opts SessionOptions) (*Session, error) {
	if opts.StartedAt.IsZero() {
		opts.StartedAt = time.Now()
	}
	show := opts.Show
	if opts.Forced && show == "" {
		show = ForcedShowName
	}

	var (
		intermediate, final string
		concat              *Concatter
	)
	for attempt := 0; concat == nil; attempt++ {
		if attempt == maxPathAttempts {
			return nil, fmt.Errorf("opening session for %s: no free file name at %s", show, opts.StartedAt.Format(time.DateTime))
		}
		intermediate, final = storage.RecordingPaths(opts.StreamDir, show, opts.StartedAt, opts.Container, attempt)
		if _, err := os.Stat(final); err == nil {
			continue
		}
		c, err := CreateConcatter(intermediate)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("opening session for %s: %w", show, err)
		}
		concat = c
	}

	return &Session{
		ID:               uuid.NewString(),
		Stream:           opts.Stream,
		Show:             show,
		Forced:           opts.Forced,
		StartedAt:        opts.StartedAt,
		IntermediatePath: intermediate,
		FinalPath:        final,
		concat:           concat,
	}, nil
}

// Write appends one segment. Writes after Close fail with ErrConcatterClosed
// and are not counted as write errors.
func (s *Session) Write(data []byte) error {
	err := s.concat.ConcatData(data)
	if err != nil && !errors.Is(err, ErrConcatterClosed) {
		s.mu.Lock()
		s.writeErrs++
		s.mu.Unlock()
	}
	return err
}

// Close ends the intermediate file. Only the first call records the end time.
func (s *Session) Close(now time.Time) error {
	s.mu.Lock()
	if s.endedAt.IsZero() {
		s.endedAt = now
	}
	s.mu.Unlock()
	return s.concat.End()
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	return s.concat.Ended()
}

// EndedAt returns the time passed to the first Close.
func (s *Session) EndedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt
}

// Segments returns the number of segments written.
func (s *Session) Segments() int { return s.concat.Segments() }

// Bytes returns the number of bytes written.
func (s *Session) Bytes() int64 { return s.concat.Bytes() }

// WriteErrors returns how many writes failed.
func (s *Session) WriteErrors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeErrs
}

func (s *Session) String() string {
	return fmt.Sprintf("session(%s/%s %s)", s.Stream, s.Show, s.ID)
}
