package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/basshelal/hls2vod/internal/observability"
)

var (
	// ErrNotFound is returned for an unknown stream name.
	ErrNotFound = errors.New("stream not found")
	// ErrAlreadyExists is returned when adding a name that is already registered.
	ErrAlreadyExists = errors.New("stream already exists")
)

type entry struct {
	stream *Stream
	cancel context.CancelFunc
	done   chan struct{}
}

// Registry owns the running streams of the process.
type Registry struct {
	logger *slog.Logger

	mu      sync.RWMutex
	ctx     context.Context
	streams map[string]*entry
}

// NewRegistry creates a Registry. Streams added later run under ctx.
func NewRegistry(ctx context.Context, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = observability.Discard()
	}
	return &Registry{
		logger:  observability.WithComponent(logger, "registry"),
		ctx:     ctx,
		streams: make(map[string]*entry),
	}
}

// Add registers s and starts serving it.
func (r *Registry) Add(s *Stream) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.streams[s.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, s.Name())
	}
	if r.ctx.Err() != nil {
		return fmt.Errorf("registry is shut down: %w", r.ctx.Err())
	}

	ctx, cancel := context.WithCancel(r.ctx)
	e := &entry{stream: s, cancel: cancel, done: make(chan struct{})}
	r.streams[s.Name()] = e

	go func() {
		defer close(e.done)
		if err := s.Serve(ctx); err != nil {
			r.logger.Error("stream exited", slog.String("stream", s.Name()), slog.String("error", err.Error()))
		}
	}()

	r.logger.Info("stream added", slog.String("stream", s.Name()))
	return nil
}

// Get returns the stream called name.
func (r *Registry) Get(name string) (*Stream, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.streams[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return e.stream, nil
}

// Remove stops the stream called name and waits until its open sessions
// are finished.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	e, ok := r.streams[name]
	if ok {
		delete(r.streams, name)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	e.cancel()
	<-e.done
	r.logger.Info("stream removed", slog.String("stream", name))
	return nil
}

// List returns every stream ordered by name.
func (r *Registry) List() []*Stream {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Stream, 0, len(r.streams))
	for _, e := range r.streams {
		out = append(out, e.stream)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Len returns the number of registered streams.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}

// SetOffset applies a new show offset to every stream.
func (r *Registry) SetOffset(offset time.Duration) {
	for _, s := range r.List() {
		s.SetOffset(offset)
	}
}

// Shutdown stops every stream and waits for them to finish.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.streams))
	for name, e := range r.streams {
		entries = append(entries, e)
		delete(r.streams, name)
	}
	r.mu.Unlock()

	for _, e := range entries {
		e.cancel()
	}
	for _, e := range entries {
		<-e.done
	}
	r.logger.Info("all streams stopped", slog.Int("streams", len(entries)))
}
