package hls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/basshelal/hls2vod/internal/httpclient"
	"github.com/basshelal/hls2vod/internal/metrics"
	"github.com/basshelal/hls2vod/internal/observability"
)

// Default downloader settings.
const (
	DefaultWorkers         = 3
	DefaultStallTimeout    = 60 * time.Second
	DefaultRefreshInterval = 5 * time.Second
	DefaultQueueCapacity   = 512
)

// Segment is one downloaded media segment.
type Segment struct {
	// Sequence is the order in which the downloader discovered the segment.
	Sequence uint64
	// URI is the absolute segment URL.
	URI string
	// Filename is the last path element of URI without its query string.
	Filename string
	Data     []byte
}

// Sink receives downloaded segments in playlist order. Calls never overlap.
type Sink func(seg Segment)

// Options configures a Downloader.
type Options struct {
	// Name labels logs and metrics, usually the stream name.
	Name string
	// Workers bounds concurrent segment downloads.
	Workers int
	// StallTimeout stops the downloader when no new segment appears for this long.
	StallTimeout time.Duration
	// RefreshInterval is used when the playlist has no target duration.
	RefreshInterval time.Duration
	// QueueCapacity bounds pending downloads; 0 means unbounded.
	QueueCapacity int
	Logger        *slog.Logger
}

func (o *Options) setDefaults() {
	if o.Workers < 1 {
		o.Workers = DefaultWorkers
	}
	if o.StallTimeout <= 0 {
		o.StallTimeout = DefaultStallTimeout
	}
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = DefaultRefreshInterval
	}
	if o.QueueCapacity < 0 {
		o.QueueCapacity = 0
	}
	if o.Logger == nil {
		o.Logger = observability.Discard()
	}
}

// Downloader polls a media playlist and downloads each new segment once,
// handing the bytes to a Sink in playlist order.
type Downloader struct {
	playlistURL string
	fetcher     Fetcher
	opts        Options
	logger      *slog.Logger

	queue *taskQueue
	seq   *sequencer

	mu      sync.Mutex
	cursor  string
	nextSeq uint64

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
}

// NewDownloader creates a Downloader for playlistURL. Nothing happens until Start.
func NewDownloader(playlistURL string, fetcher Fetcher, sink Sink, opts Options) *Downloader {
	opts.setDefaults()

	logger := observability.WithComponent(opts.Logger, "downloader")
	if opts.Name != "" {
		logger = observability.WithStream(logger, opts.Name)
	}

	d := &Downloader{
		playlistURL: playlistURL,
		fetcher:     fetcher,
		opts:        opts,
		logger:      logger,
		queue:       newTaskQueue(opts.Workers, opts.QueueCapacity),
		stopCh:      make(chan struct{}),
	}
	d.seq = newSequencer(sink)
	return d
}

// Start runs the refresh cycle until Stop is called, the stall timer fires
// or ctx is done, and returns once already-queued downloads have finished.
// It returns ErrStallTimeout after a stall, ctx.Err() on cancellation and
// nil after Stop. Start may only be called once.
func (d *Downloader) Start(ctx context.Context) error {
	err := errors.New("downloader already started")
	d.startOnce.Do(func() {
		err = d.run(ctx)
	})
	return err
}

func (d *Downloader) run(ctx context.Context) error {
	d.logger.InfoContext(ctx, "downloader started",
		slog.String("playlist", httpclient.ObfuscateString(d.playlistURL)),
		slog.Int("workers", d.opts.Workers),
		slog.Duration("stall_timeout", d.opts.StallTimeout),
	)

	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		d.queue.run(ctx, d.download)
	}()

	stall := time.NewTimer(d.opts.StallTimeout)
	defer stall.Stop()
	refresh := time.NewTimer(0)
	defer refresh.Stop()

	var exitErr error
loop:
	for {
		select {
		case <-ctx.Done():
			exitErr = ctx.Err()
			break loop
		case <-d.stopCh:
			break loop
		case <-stall.C:
			d.logger.WarnContext(ctx, "no new segments before stall timeout, stopping",
				slog.Duration("stall_timeout", d.opts.StallTimeout),
			)
			metrics.RecordStall(d.opts.Name)
			exitErr = ErrStallTimeout
			break loop
		case <-refresh.C:
			next, fresh := d.refresh(ctx)
			if fresh > 0 {
				stall.Reset(d.opts.StallTimeout)
			}
			refresh.Reset(next)
		}
	}

	d.Stop()
	if discarded := d.queue.close(); len(discarded) > 0 {
		d.logger.WarnContext(ctx, "discarding paused backlog on stop", slog.Int("segments", len(discarded)))
		for _, t := range discarded {
			metrics.RecordSegmentFailure(d.opts.Name, "discarded")
			d.seq.deliver(t.seq, nil)
		}
	}
	<-dispatched

	d.logger.InfoContext(ctx, "downloader stopped", slog.Any("reason", exitErr))
	return exitErr
}

// refresh performs one playlist poll: fetch, diff against the cursor and
// enqueue the new segments. It returns the delay until the next poll and the
// number of segments enqueued. Failures are logged and retried next poll.
func (d *Downloader) refresh(ctx context.Context) (time.Duration, int) {
	next := d.opts.RefreshInterval

	body, base, err := d.fetcher.Fetch(ctx, d.playlistURL)
	if err != nil {
		if ctx.Err() == nil {
			d.logger.WarnContext(ctx, "playlist refresh failed", slog.Any("error", &FetchError{URL: d.playlistURL, Err: err}))
			metrics.RecordRefreshFailure(d.opts.Name)
		}
		return next, 0
	}

	media, err := parseMediaPlaylist(body)
	if err != nil {
		d.logger.WarnContext(ctx, "playlist refresh returned an unusable manifest", slog.String("error", err.Error()))
		metrics.RecordRefreshFailure(d.opts.Name)
		return next, 0
	}
	if media.TargetDuration > 0 {
		next = time.Duration(media.TargetDuration) * time.Second
	}

	uris := make([]string, 0, len(media.Segments))
	for _, s := range media.Segments {
		abs, err := resolveReference(base, s.URI)
		if err != nil {
			d.logger.WarnContext(ctx, "skipping unparseable segment uri", slog.String("error", err.Error()))
			continue
		}
		uris = append(uris, abs)
	}

	d.mu.Lock()
	fresh, rolled := newSegments(d.cursor, uris)
	if len(fresh) > 0 {
		d.cursor = fresh[len(fresh)-1]
	}
	d.mu.Unlock()

	if rolled {
		d.logger.WarnContext(ctx, "cursor fell out of the playlist window, taking every listed segment",
			slog.Int("segments", len(fresh)),
		)
	}

	for _, uri := range fresh {
		d.enqueue(uri)
	}
	if len(fresh) > 0 {
		d.logger.DebugContext(ctx, "queued new segments",
			slog.Int("count", len(fresh)),
			slog.Int("pending", d.queue.len()),
			slog.Duration("next_refresh", next),
		)
	}
	return next, len(fresh)
}

func (d *Downloader) enqueue(uri string) {
	d.mu.Lock()
	seq := d.nextSeq
	d.nextSeq++
	d.mu.Unlock()

	if dropped := d.queue.push(task{seq: seq, uri: uri}); dropped != nil {
		d.logger.Warn("download queue full, dropping oldest segment",
			slog.String("segment", SegmentFilename(dropped.uri)),
			slog.Int("capacity", d.opts.QueueCapacity),
		)
		metrics.RecordSegmentFailure(d.opts.Name, "dropped")
		d.seq.deliver(dropped.seq, nil)
	}
}

// download fetches one segment. A failure leaves a gap in the output and
// never affects other downloads or the refresh cycle.
func (d *Downloader) download(ctx context.Context, t task) {
	delivered := false
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("segment sink panicked", slog.Any("panic", r), slog.Uint64("sequence", t.seq))
			if !delivered {
				d.seq.deliver(t.seq, nil)
			}
		}
	}()

	data, _, err := d.fetcher.Fetch(ctx, t.uri)
	if err != nil {
		if ctx.Err() == nil {
			d.logger.Warn("segment download failed", slog.Any("error", &FetchError{URL: t.uri, Err: err}))
			metrics.RecordSegmentFailure(d.opts.Name, "fetch")
		}
		delivered = true
		d.seq.deliver(t.seq, nil)
		return
	}

	metrics.RecordSegment(d.opts.Name, len(data))
	delivered = true
	d.seq.deliver(t.seq, &Segment{
		Sequence: t.seq,
		URI:      t.uri,
		Filename: SegmentFilename(t.uri),
		Data:     data,
	})
}

// Pause stops new downloads from starting. Polling continues and newly found
// segments queue up until Resume. Pausing a paused downloader does nothing.
func (d *Downloader) Pause() {
	if !d.queue.isPaused() {
		d.queue.pause()
		d.logger.Info("downloader paused")
	}
}

// Resume lets queued downloads proceed.
func (d *Downloader) Resume() {
	if d.queue.isPaused() {
		d.queue.resume()
		d.logger.Info("downloader resumed", slog.Int("backlog", d.queue.len()))
	}
}

// Paused reports whether downloads are suspended.
func (d *Downloader) Paused() bool {
	return d.queue.isPaused()
}

// Flush drops every queued download that has not started and returns how
// many were dropped. Their sequence numbers become gaps.
func (d *Downloader) Flush() int {
	dropped := d.queue.flush()
	for _, t := range dropped {
		metrics.RecordSegmentFailure(d.opts.Name, "discarded")
		d.seq.deliver(t.seq, nil)
	}
	if len(dropped) > 0 {
		d.logger.Info("discarded queued segments", slog.Int("segments", len(dropped)))
	}
	return len(dropped)
}

// NextSequence returns the sequence number the next discovered segment
// will get. Every segment delivered later with a lower number was
// discovered before this call.
func (d *Downloader) NextSequence() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nextSeq
}

// Stop ends the refresh cycle. Already queued downloads are not cancelled.
func (d *Downloader) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}

// Cursor returns the URI of the newest segment queued so far.
func (d *Downloader) Cursor() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cursor
}

// Pending returns the number of queued downloads that have not started.
func (d *Downloader) Pending() int {
	return d.queue.len()
}

// PlaylistURL returns the media playlist being polled.
func (d *Downloader) PlaylistURL() string {
	return d.playlistURL
}

func (d *Downloader) String() string {
	return fmt.Sprintf("downloader(%s)", d.opts.Name)
}

// newSegments returns the part of uris that follows cursor. With no cursor
// only the newest segment is taken so a long live window is not back-filled.
// rolled is true when the cursor is no longer listed and every uri is taken.
func newSegments(cursor string, uris []string) (fresh []string, rolled bool) {
	if len(uris) == 0 {
		return nil, false
	}
	if cursor == "" {
		return uris[len(uris)-1:], false
	}

	pos := -1
	for i := len(uris) - 1; i >= 0; i-- {
		if uris[i] == cursor {
			pos = i
			break
		}
	}
	switch {
	case pos < 0:
		return uris, true
	case pos == len(uris)-1:
		return nil, false
	default:
		return uris[pos+1:], false
	}
}
