package stream

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/basshelal/hls2vod/internal/hls"
	"github.com/basshelal/hls2vod/internal/recording"
	"github.com/basshelal/hls2vod/internal/schedule"
)

var monday = time.Date(2026, time.October, 19, 14, 30, 0, 0, time.UTC)

// fakeSource blocks in Start until stopped, cancelled or failed.
type fakeSource struct {
	url  string
	sink hls.Sink

	mu      sync.Mutex
	started bool
	paused  int
	resumed int
	flushed int
	next    uint64

	stopOnce sync.Once
	stop     chan struct{}
	fail     chan error
}

func (f *fakeSource) Start(ctx context.Context) error {
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.stop:
		return nil
	case err := <-f.fail:
		return err
	}
}

func (f *fakeSource) Stop() {
	f.stopOnce.Do(func() { close(f.stop) })
}

func (f *fakeSource) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused++
}

func (f *fakeSource) Resume() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumed++
}

func (f *fakeSource) Flush() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushed++
	return 0
}

func (f *fakeSource) NextSequence() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next
}

// discover advances the sequence counter as a playlist refresh would.
func (f *fakeSource) discover(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next += uint64(n)
}

// emit delivers data as segment seq.
func (f *fakeSource) emit(seq uint64, data string) {
	f.sink(hls.Segment{Sequence: seq, Filename: fmt.Sprintf("%d.ts", seq), Data: []byte(data)})
}

func (f *fakeSource) isStarted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *fakeSource) isStopped() bool {
	select {
	case <-f.stop:
		return true
	default:
		return false
	}
}

func (f *fakeSource) counts() (paused, resumed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused, f.resumed
}

// sourceRecorder is a SourceFactory remembering every source it made.
type sourceRecorder struct {
	mu      sync.Mutex
	sources []*fakeSource
}

func (r *sourceRecorder) factory(playlistURL string, sink hls.Sink) SegmentSource {
	src := &fakeSource{url: playlistURL, sink: sink, stop: make(chan struct{}), fail: make(chan error, 1)}
	r.mu.Lock()
	r.sources = append(r.sources, src)
	r.mu.Unlock()
	return src
}

func (r *sourceRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sources)
}

func (r *sourceRecorder) last() *fakeSource {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sources) == 0 {
		return nil
	}
	return r.sources[len(r.sources)-1]
}

// fakePipeline records every session handed to it.
type fakePipeline struct {
	mu       sync.Mutex
	sessions []*recording.Session
	calls    map[string]int
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{calls: make(map[string]int)}
}

func (p *fakePipeline) Process(_ context.Context, s *recording.Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions = append(p.sessions, s)
	p.calls[s.ID]++
	return nil
}

func (p *fakePipeline) processed() []*recording.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*recording.Session(nil), p.sessions...)
}

func (p *fakePipeline) callsFor(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[id]
}

// memoryStore keeps every saved snapshot.
type memoryStore struct {
	mu    sync.Mutex
	saved []Snapshot
}

func (m *memoryStore) Save(_ context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, snap)
	return nil
}

func (m *memoryStore) lastSaved() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saved) == 0 {
		return Snapshot{}, false
	}
	return m.saved[len(m.saved)-1], true
}

type harness struct {
	stream   *Stream
	sources  *sourceRecorder
	pipeline *fakePipeline
	store    *memoryStore
	bus      *Bus
}

func newShow(t *testing.T, name string, start time.Time, minutes int, now time.Time) *schedule.Show {
	t.Helper()
	entry := schedule.Entry{
		Name:            name,
		Day:             start.Weekday(),
		Hour:            start.Hour(),
		Minute:          start.Minute(),
		DurationMinutes: minutes,
	}
	show, err := schedule.NewShow(entry, 0, time.UTC, now)
	require.NoError(t, err)
	return show
}

func newHarness(t *testing.T, mutate func(*Options), shows ...*schedule.Show) *harness {
	t.Helper()
	h := &harness{
		sources:  &sourceRecorder{},
		pipeline: newFakePipeline(),
		store:    &memoryStore{},
		bus:      NewBus(),
	}
	opts := Options{
		Name:          "radio",
		SourceURL:     "https://example.com/master.m3u8",
		PlaylistURL:   "https://example.com/720p.m3u8",
		Directory:     t.TempDir(),
		Shows:         shows,
		CheckInterval: 10 * time.Millisecond,
		NewSource:     h.sources.factory,
		Pipeline:      h.pipeline,
		Store:         h.store,
		Bus:           h.bus,
		Clock:         func() time.Time { return monday },
	}
	if mutate != nil {
		mutate(&opts)
	}
	s, err := New(opts)
	require.NoError(t, err)
	h.stream = s
	t.Cleanup(s.Close)
	return h
}

func (h *harness) waitSourceStarted(t *testing.T) *fakeSource {
	t.Helper()
	require.Eventually(t, func() bool {
		src := h.sources.last()
		return src != nil && src.isStarted()
	}, time.Second, time.Millisecond)
	return h.sources.last()
}

func collect(ch <-chan Event, typ EventType) []Event {
	var out []Event
	for {
		select {
		case e := <-ch:
			if e.Type == typ {
				out = append(out, e)
			}
		default:
			return out
		}
	}
}
