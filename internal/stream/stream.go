// Package stream orchestrates recording of one live HLS stream: it watches
// the stream's weekly shows on a timer, opens and closes recording sessions
// as they start and end, and runs a segment downloader while any session
// is open.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/basshelal/hls2vod/internal/hls"
	"github.com/basshelal/hls2vod/internal/metrics"
	"github.com/basshelal/hls2vod/internal/models"
	"github.com/basshelal/hls2vod/internal/observability"
	"github.com/basshelal/hls2vod/internal/recording"
	"github.com/basshelal/hls2vod/internal/schedule"
)

// DefaultCheckInterval is how often shows are re-evaluated.
const DefaultCheckInterval = 5 * time.Second

// SegmentSource produces segments for a stream. *hls.Downloader is the
// production implementation.
type SegmentSource interface {
	Start(ctx context.Context) error
	Stop()
	Pause()
	Resume()
	// Flush drops queued downloads that have not started.
	Flush() int
	// NextSequence is the sequence the next discovered segment will get.
	NextSequence() uint64
}

// SourceFactory creates a fresh SegmentSource delivering to sink.
type SourceFactory func(playlistURL string, sink hls.Sink) SegmentSource

// Pipeline finishes a closed session. *recording.Finisher is the
// production implementation.
type Pipeline interface {
	Process(ctx context.Context, s *recording.Session) error
}

// SnapshotStore persists a stream snapshot after every change.
type SnapshotStore interface {
	Save(ctx context.Context, snap Snapshot) error
}

// Options configures a Stream.
type Options struct {
	Name         string
	SourceURL    string
	PlaylistURL  string
	SchedulePath string
	Bandwidth    string
	Directory    string
	Shows        []*schedule.Show

	// Container is the final recording container, mp4 when empty.
	Container     string
	CheckInterval time.Duration

	// Forced and Paused restore a previously persisted state.
	Forced bool
	Paused bool

	NewSource SourceFactory
	Pipeline  Pipeline
	Store     SnapshotStore
	Bus       *Bus
	Logger    *slog.Logger
	Clock     func() time.Time
}

// Stream is the orchestrator for one source. All state changes happen
// under mu; segments are fanned out to open sessions outside of it.
type Stream struct {
	name          string
	sourceURL     string
	playlistURL   string
	schedulePath  string
	bandwidth     string
	directory     string
	container     string
	shows         []*schedule.Show
	checkInterval time.Duration

	newSource SourceFactory
	pipeline  Pipeline
	store     SnapshotStore
	bus       *Bus
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	ctx      context.Context
	state    models.StreamState
	paused   bool
	forced   bool
	closed   bool
	sessions map[string]*recording.Session
	source   SegmentSource
	// sourceGen counts started sources; marks holds, per session ID, the
	// first segment that session may receive.
	sourceGen uint64
	marks     map[string]sessionMark

	forcedSession *recording.Session
	sourceDone    chan struct{}

	serving bool
	wg      sync.WaitGroup
}

// New creates a Stream. Nothing runs until Serve or Tick is called.
func New(opts Options) (*Stream, error) {
	if opts.Name == "" {
		return nil, models.ErrNameRequired
	}
	if opts.PlaylistURL == "" {
		return nil, models.ErrURLRequired
	}
	if opts.NewSource == nil {
		return nil, errors.New("stream needs a segment source factory")
	}
	if opts.Pipeline == nil {
		return nil, errors.New("stream needs a recording pipeline")
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = DefaultCheckInterval
	}
	if opts.Logger == nil {
		opts.Logger = observability.Discard()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.SourceURL == "" {
		opts.SourceURL = opts.PlaylistURL
	}

	seen := make(map[string]struct{}, len(opts.Shows))
	for _, show := range opts.Shows {
		if _, dup := seen[show.Name()]; dup {
			return nil, fmt.Errorf("%w: show %q defined twice", schedule.ErrInvalidSchedule, show.Name())
		}
		seen[show.Name()] = struct{}{}
	}

	s := &Stream{
		name:          opts.Name,
		sourceURL:     opts.SourceURL,
		playlistURL:   opts.PlaylistURL,
		schedulePath:  opts.SchedulePath,
		bandwidth:     opts.Bandwidth,
		directory:     opts.Directory,
		container:     opts.Container,
		shows:         opts.Shows,
		checkInterval: opts.CheckInterval,
		newSource:     opts.NewSource,
		pipeline:      opts.Pipeline,
		store:         opts.Store,
		bus:           opts.Bus,
		logger:        observability.WithStream(observability.WithComponent(opts.Logger, "stream"), opts.Name),
		now:           opts.Clock,
		state:         models.StreamStateWaiting,
		paused:        opts.Paused,
		forced:        opts.Forced,
		sessions:      make(map[string]*recording.Session),
		marks:         make(map[string]sessionMark),
	}
	if s.paused {
		s.state = models.StreamStatePaused
	}
	return s, nil
}

// Name returns the stream's unique name.
func (s *Stream) Name() string { return s.name }

// Directory returns the stream's output directory.
func (s *Stream) Directory() string { return s.directory }

// Shows returns the scheduled shows.
func (s *Stream) Shows() []*schedule.Show { return s.shows }

// State returns the current state.
func (s *Stream) State() models.StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsForced reports whether a forced recording was requested.
func (s *Stream) IsForced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forced
}

// Serve evaluates the shows immediately and then every check interval until
// ctx is done, then closes the stream and waits for open sessions to be
// finished.
func (s *Stream) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.serving {
		s.mu.Unlock()
		return fmt.Errorf("stream %s already serving", s.name)
	}
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("stream %s is closed", s.name)
	}
	s.serving = true
	s.ctx = ctx
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "stream serving",
		slog.Int("shows", len(s.shows)),
		slog.Duration("check_interval", s.checkInterval),
	)

	s.Tick(s.now())

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Close()
			return nil
		case <-ticker.C:
			s.Tick(s.now())
		}
	}
}

// Tick re-evaluates every show at now: sessions open for shows that became
// active and close for shows that ended, the downloader is started or
// stopped to match and the state is recomputed.
func (s *Stream) Tick(now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("stream tick panicked", slog.Any("panic", r))
		}
	}()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	changed := s.evaluateLocked(now)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if changed {
		s.persist(snap)
	}
}

// evaluateLocked reports whether the persisted state changed.
func (s *Stream) evaluateLocked(now time.Time) bool {
	for _, show := range s.shows {
		if err := show.Recompute(now); err != nil {
			s.logger.Error("recomputing show window", slog.String("show", show.Name()), slog.String("error", err.Error()))
			continue
		}

		session, open := s.sessions[show.Name()]
		active := show.IsActive(now, true)
		switch {
		case active && !open:
			s.openLocked(show.Name(), false, now)
		case !active && open:
			delete(s.sessions, show.Name())
			s.finishLocked(session, now)
		}
	}

	switch {
	case s.forced && s.forcedSession == nil:
		s.openLocked(recording.ForcedShowName, true, now)
	case !s.forced && s.forcedSession != nil:
		session := s.forcedSession
		s.forcedSession = nil
		s.finishLocked(session, now)
	}

	open := s.openCountLocked()
	metrics.SetSessionsOpen(s.name, open)

	switch {
	case open > 0 && s.source == nil && !s.paused:
		s.startSourceLocked()
	case open == 0 && s.source != nil:
		s.logger.Info("no open sessions, stopping downloader")
		s.source.Stop()
		s.source = nil
	}

	return s.setStateLocked()
}

func (s *Stream) openLocked(show string, forced bool, now time.Time) {
	session, err := recording.NewSession(recording.SessionOptions{
		Stream:    s.name,
		Show:      show,
		Forced:    forced,
		StreamDir: s.directory,
		Container: s.container,
		StartedAt: now,
	})
	if err != nil {
		// retried on the next tick
		s.logger.Error("opening recording session", slog.String("show", show), slog.String("error", err.Error()))
		return
	}

	if forced {
		s.forcedSession = session
	} else {
		s.sessions[show] = session
	}
	s.marks[session.ID] = s.markLocked()

	s.logger.Info("recording session opened",
		slog.String("show", session.Show),
		slog.String("session", session.ID),
		slog.String("file", session.IntermediatePath),
	)
	s.bus.Publish(Event{
		Type:      EventSessionOpened,
		Stream:    s.name,
		Time:      now,
		Show:      session.Show,
		SessionID: session.ID,
		Forced:    forced,
	})
}

// finishLocked hands a session to the pipeline. Every session passes
// through here exactly once.
func (s *Stream) finishLocked(session *recording.Session, now time.Time) {
	delete(s.marks, session.ID)
	if err := session.Close(now); err != nil {
		s.logger.Warn("closing recording session", slog.String("session", session.ID), slog.String("error", err.Error()))
	}

	s.logger.Info("recording session closed",
		slog.String("show", session.Show),
		slog.String("session", session.ID),
		slog.Int("segments", session.Segments()),
	)
	s.bus.Publish(Event{
		Type:      EventSessionClosed,
		Stream:    s.name,
		Time:      now,
		Show:      session.Show,
		SessionID: session.ID,
		Forced:    session.Forced,
	})

	ctx := context.WithoutCancel(s.baseCtxLocked())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.pipeline.Process(ctx, session); err != nil {
			s.logger.Error("finishing recording", slog.String("session", session.ID), slog.String("error", err.Error()))
		}
	}()
}

func (s *Stream) startSourceLocked() {
	s.sourceGen++
	gen := s.sourceGen
	src := s.newSource(s.playlistURL, func(seg hls.Segment) { s.deliver(gen, seg) })
	done := make(chan struct{})
	s.source = src
	s.sourceDone = done
	ctx := s.baseCtxLocked()

	s.logger.Info("starting downloader")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)
		err := src.Start(ctx)

		s.mu.Lock()
		if s.source == src {
			// stalled or failed; the next tick starts a new one if still needed
			s.source = nil
		}
		s.mu.Unlock()

		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("downloader stopped", slog.String("error", err.Error()))
		}
		s.bus.Publish(Event{
			Type:   EventDownloaderStopped,
			Stream: s.name,
			Err:    err,
		})
	}()
}

// sessionMark is the first segment a session may receive: segment
// seq of source generation gen, or anything from a later generation.
type sessionMark struct {
	gen uint64
	seq uint64
}

func (m sessionMark) accepts(gen, seq uint64) bool {
	return gen > m.gen || (gen == m.gen && seq >= m.seq)
}

// markLocked returns the mark for a session opened now.
func (s *Stream) markLocked() sessionMark {
	if s.source == nil {
		return sessionMark{gen: s.sourceGen + 1}
	}
	return sessionMark{gen: s.sourceGen, seq: s.source.NextSequence()}
}

// deliver writes one segment from source generation gen to every open
// session that was open when the segment was discovered. Nothing is
// written while paused. Sink calls never overlap, so sessions see segments
// in playlist order.
func (s *Stream) deliver(gen uint64, seg hls.Segment) {
	s.mu.Lock()
	if s.paused {
		s.mu.Unlock()
		return
	}
	targets := make([]*recording.Session, 0, len(s.sessions)+1)
	for _, session := range s.sessions {
		if s.marks[session.ID].accepts(gen, seg.Sequence) {
			targets = append(targets, session)
		}
	}
	if fs := s.forcedSession; fs != nil && s.marks[fs.ID].accepts(gen, seg.Sequence) {
		targets = append(targets, fs)
	}
	s.mu.Unlock()

	for _, session := range targets {
		if err := session.Write(seg.Data); err != nil && !errors.Is(err, recording.ErrConcatterClosed) {
			s.logger.Warn("writing segment",
				slog.String("segment", seg.Filename),
				slog.String("session", session.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *Stream) openCountLocked() int {
	n := len(s.sessions)
	if s.forcedSession != nil {
		n++
	}
	return n
}

// setStateLocked derives the state and reports whether it changed.
func (s *Stream) setStateLocked() bool {
	next := models.StreamStateWaiting
	switch {
	case s.paused:
		next = models.StreamStatePaused
	case s.openCountLocked() > 0:
		next = models.StreamStateDownloading
	}
	if next == s.state {
		return false
	}

	s.logger.Info("stream state changed", slog.String("from", string(s.state)), slog.String("to", string(next)))
	s.state = next
	s.bus.Publish(Event{Type: EventStateChanged, Stream: s.name, State: next})
	return true
}

func (s *Stream) baseCtxLocked() context.Context {
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}

// Pause stops feeding every open session and holds the state at paused
// until Start. Segments completing while paused are dropped. Pausing a
// paused stream does nothing.
func (s *Stream) Pause() {
	s.mu.Lock()
	if s.closed || s.paused {
		s.mu.Unlock()
		return
	}
	s.paused = true
	if s.source != nil {
		s.source.Pause()
	}
	s.setStateLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(snap)
}

// Start lifts a pause. Segments discovered while paused are discarded, so
// recording resumes with the first segment found after Start.
func (s *Stream) Start() {
	s.mu.Lock()
	if s.closed || !s.paused {
		s.mu.Unlock()
		return
	}
	src := s.source
	s.mu.Unlock()

	// Flush releases gaps through the sink, which takes mu; while still
	// paused anything it lets through is dropped.
	if src != nil {
		if n := src.Flush(); n > 0 {
			s.logger.Info("discarded segments found while paused", slog.Int("segments", n))
		}
	}

	s.mu.Lock()
	if s.closed || !s.paused {
		s.mu.Unlock()
		return
	}
	s.paused = false
	if s.source != nil {
		// downloads still in flight from before the pause must not reach
		// sessions that stayed open through it
		mark := s.markLocked()
		for id := range s.marks {
			s.marks[id] = mark
		}
		s.source.Resume()
	}
	s.evaluateLocked(s.now())
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(snap)
}

// ForceRecord opens a session independent of the schedule.
func (s *Stream) ForceRecord() {
	s.setForced(true)
}

// UnForceRecord closes the forced session.
func (s *Stream) UnForceRecord() {
	s.setForced(false)
}

func (s *Stream) setForced(forced bool) {
	s.mu.Lock()
	if s.closed || s.forced == forced {
		s.mu.Unlock()
		return
	}
	s.forced = forced
	s.logger.Info("forced recording changed", slog.Bool("forced", forced))
	s.evaluateLocked(s.now())
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(snap)
}

// SetOffset changes the pre-roll and post-roll of every show. Windows move
// on the next tick.
func (s *Stream) SetOffset(offset time.Duration) {
	for _, show := range s.shows {
		show.SetOffset(offset)
	}
	s.logger.Info("show offset changed", slog.Duration("offset", offset))
}

// OpenSessions returns the open sessions, forced last.
func (s *Stream) OpenSessions() []*recording.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.sessions))
	for name := range s.sessions {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*recording.Session, 0, len(names)+1)
	for _, name := range names {
		out = append(out, s.sessions[name])
	}
	if s.forcedSession != nil {
		out = append(out, s.forcedSession)
	}
	return out
}

// Close stops the downloader, hands every open session to the pipeline and
// waits for all of it to finish. The stream cannot be used afterwards.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.wg.Wait()
		return
	}
	s.closed = true
	src, done := s.source, s.sourceDone
	s.source = nil
	s.mu.Unlock()

	if src != nil {
		// let queued downloads drain into the sessions before closing them
		src.Stop()
		<-done
	}

	s.mu.Lock()
	now := s.now()
	names := make([]string, 0, len(s.sessions))
	for name := range s.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		session := s.sessions[name]
		delete(s.sessions, name)
		s.finishLocked(session, now)
	}
	if s.forcedSession != nil {
		session := s.forcedSession
		s.forcedSession = nil
		s.finishLocked(session, now)
	}
	s.mu.Unlock()

	s.wg.Wait()
	metrics.ForgetStream(s.name)
	s.logger.Info("stream closed")
}
