package stream

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/basshelal/hls2vod/internal/hls"
	"github.com/basshelal/hls2vod/internal/models"
	"github.com/basshelal/hls2vod/internal/observability"
	"github.com/basshelal/hls2vod/internal/repository"
	"github.com/basshelal/hls2vod/internal/schedule"
	"github.com/basshelal/hls2vod/internal/storage"
)

// SnapshotFile is the name of the per-stream snapshot in its directory.
const SnapshotFile = "stream.json"

// CreateRequest describes a stream to build.
type CreateRequest struct {
	Name string
	URL  string
	// SchedulePath is the show schedule. Empty means forced recording only.
	SchedulePath string
	// Bandwidth overrides the default policy for master playlists.
	Bandwidth string
	Forced    bool
	Paused    bool
}

// FactoryConfig holds the settings shared by every stream.
type FactoryConfig struct {
	Offset           time.Duration
	Location         *time.Location
	Container        string
	CheckInterval    time.Duration
	DefaultBandwidth string
	Downloader       hls.Options
}

// Factory builds ready-to-serve streams: it resolves the media playlist,
// loads the schedule, creates the output directory and persists the result.
type Factory struct {
	cfg      FactoryConfig
	fetcher  hls.Fetcher
	resolver *hls.Resolver
	layout   *storage.Layout
	repo     repository.StreamRepository
	pipeline Pipeline
	bus      *Bus
	logger   *slog.Logger

	// now and newSource are replaced in tests.
	now       func() time.Time
	newSource func(name string) SourceFactory
}

// NewFactory creates a Factory. repo may be nil to skip database persistence.
func NewFactory(cfg FactoryConfig, fetcher hls.Fetcher, layout *storage.Layout, repo repository.StreamRepository, pipeline Pipeline, bus *Bus, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = observability.Discard()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	f := &Factory{
		cfg:      cfg,
		fetcher:  fetcher,
		resolver: hls.NewResolver(fetcher, logger),
		layout:   layout,
		repo:     repo,
		pipeline: pipeline,
		bus:      bus,
		logger:   observability.WithComponent(logger, "factory"),
		now:      time.Now,
	}
	f.newSource = f.downloaderSource
	return f
}

// downloaderSource is the production SourceFactory.
func (f *Factory) downloaderSource(name string) SourceFactory {
	opts := f.cfg.Downloader
	opts.Name = name
	if opts.Logger == nil {
		opts.Logger = f.logger
	}
	return func(playlistURL string, sink hls.Sink) SegmentSource {
		return hls.NewDownloader(playlistURL, f.fetcher, sink, opts)
	}
}

// Create resolves, loads and persists a new stream. Failures that would make
// the stream useless, such as an unreachable source or a broken schedule,
// are returned here.
func (f *Factory) Create(ctx context.Context, req CreateRequest) (*Stream, error) {
	req.Name = strings.TrimSpace(req.Name)
	candidate := &models.Stream{Name: req.Name, SourceURL: req.URL}
	if err := candidate.Validate(); err != nil {
		return nil, err
	}

	bandwidth := req.Bandwidth
	if bandwidth == "" {
		bandwidth = f.cfg.DefaultBandwidth
	}
	policy, err := hls.ParseBandwidthPolicy(bandwidth)
	if err != nil {
		return nil, err
	}

	playlistURL, err := f.resolver.Resolve(ctx, req.URL, policy)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", req.Name, err)
	}

	var entries []schedule.Entry
	if req.SchedulePath != "" {
		entries, err = schedule.Load(req.SchedulePath)
		if err != nil {
			return nil, fmt.Errorf("loading schedule for %s: %w", req.Name, err)
		}
	}

	s, err := f.build(req, playlistURL, bandwidth, entries)
	if err != nil {
		return nil, err
	}

	if err := f.Save(ctx, s.Snapshot()); err != nil {
		return nil, err
	}

	f.logger.InfoContext(ctx, "stream created",
		slog.String("stream", req.Name),
		slog.Int("shows", len(entries)),
		slog.String("directory", s.Directory()),
	)
	return s, nil
}

func (f *Factory) build(req CreateRequest, playlistURL, bandwidth string, entries []schedule.Entry) (*Stream, error) {
	shows, err := schedule.NewShows(entries, f.cfg.Offset, f.cfg.Location, f.now())
	if err != nil {
		return nil, fmt.Errorf("building shows for %s: %w", req.Name, err)
	}

	dir := f.layout.StreamDir(req.Name)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating stream directory: %w", err)
	}

	return New(Options{
		Name:          req.Name,
		SourceURL:     req.URL,
		PlaylistURL:   playlistURL,
		SchedulePath:  req.SchedulePath,
		Bandwidth:     bandwidth,
		Directory:     dir,
		Shows:         shows,
		Container:     f.cfg.Container,
		CheckInterval: f.cfg.CheckInterval,
		Forced:        req.Forced,
		Paused:        req.Paused,
		NewSource:     f.newSource(req.Name),
		Pipeline:      f.pipeline,
		Store:         f,
		Bus:           f.bus,
		Logger:        f.logger,
		Clock:         f.now,
	})
}

// Restore rebuilds every persisted stream. A stream whose source no longer
// resolves is rebuilt from its stored playlist URL and shows. Streams that
// cannot be rebuilt at all are logged and skipped.
func (f *Factory) Restore(ctx context.Context) ([]*Stream, error) {
	if f.repo == nil {
		return nil, nil
	}
	stored, err := f.repo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading streams: %w", err)
	}

	streams := make([]*Stream, 0, len(stored))
	for _, m := range stored {
		s, err := f.restoreOne(ctx, m)
		if err != nil {
			f.logger.ErrorContext(ctx, "restoring stream", slog.String("stream", m.Name), slog.String("error", err.Error()))
			continue
		}
		streams = append(streams, s)
	}
	return streams, nil
}

func (f *Factory) restoreOne(ctx context.Context, m *models.Stream) (*Stream, error) {
	req := CreateRequest{
		Name:         m.Name,
		URL:          m.SourceURL,
		SchedulePath: m.SchedulePath,
		Bandwidth:    m.BandwidthPolicy,
		Forced:       m.IsForced,
		Paused:       m.State == models.StreamStatePaused,
	}

	playlistURL := m.PlaylistURL
	if policy, err := hls.ParseBandwidthPolicy(m.BandwidthPolicy); err == nil {
		if resolved, err := f.resolver.Resolve(ctx, m.SourceURL, policy); err == nil {
			playlistURL = resolved
		} else {
			f.logger.WarnContext(ctx, "source did not resolve, using stored playlist",
				slog.String("stream", m.Name),
				slog.String("error", err.Error()),
			)
		}
	}
	if playlistURL == "" {
		return nil, fmt.Errorf("stream %s has no playlist url", m.Name)
	}

	entries := entriesFromModel(m)
	if m.SchedulePath != "" {
		if loaded, err := schedule.Load(m.SchedulePath); err == nil {
			entries = loaded
		} else {
			f.logger.WarnContext(ctx, "schedule file unreadable, using stored shows",
				slog.String("stream", m.Name),
				slog.String("error", err.Error()),
			)
		}
	}
	return f.build(req, playlistURL, m.BandwidthPolicy, entries)
}

// Save writes snap to the database and to the stream directory.
func (f *Factory) Save(ctx context.Context, snap Snapshot) error {
	if f.repo != nil {
		if err := f.repo.Upsert(ctx, snap.Model()); err != nil {
			return fmt.Errorf("saving stream %s: %w", snap.Name, err)
		}
	}
	if snap.StreamDirectory != "" {
		if err := storage.WriteJSONAtomic(filepath.Join(snap.StreamDirectory, SnapshotFile), snap); err != nil {
			return fmt.Errorf("writing %s snapshot: %w", snap.Name, err)
		}
	}
	return nil
}

// Delete removes the persisted stream. Recordings on disk are kept.
func (f *Factory) Delete(ctx context.Context, name string) error {
	if f.repo == nil {
		return nil
	}
	return f.repo.Delete(ctx, name)
}
