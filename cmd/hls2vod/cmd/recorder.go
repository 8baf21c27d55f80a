package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/basshelal/hls2vod/internal/config"
	"github.com/basshelal/hls2vod/internal/ffmpeg"
	"github.com/basshelal/hls2vod/internal/hls"
	"github.com/basshelal/hls2vod/internal/httpclient"
	"github.com/basshelal/hls2vod/internal/recording"
	"github.com/basshelal/hls2vod/internal/repository"
	"github.com/basshelal/hls2vod/internal/storage"
	"github.com/basshelal/hls2vod/internal/stream"
)

// recorder holds the collaborators shared by serve and record.
type recorder struct {
	client  *httpclient.Client
	layout  *storage.Layout
	bus     *stream.Bus
	factory *stream.Factory
}

// newRecorder wires the fetch, remux and stream building stack. streams and
// history may be nil to run without a database.
func newRecorder(cfg *config.Config, logger *slog.Logger, streams repository.StreamRepository, history recording.HistoryStore) (*recorder, error) {
	binary, err := ffmpeg.FindBinary(cfg.FFmpeg.BinaryPath)
	if err != nil {
		return nil, fmt.Errorf("locating ffmpeg: %w", err)
	}

	loc, err := cfg.Recording.Location()
	if err != nil {
		return nil, fmt.Errorf("loading timezone: %w", err)
	}

	settings := cfg.Settings()
	offset := time.Duration(settings.OffsetSeconds) * time.Second

	layout, err := storage.NewLayout(settings.OutputDirectory)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}

	client := httpclient.New(httpclient.ConfigFrom(cfg.HTTPClient, logger))
	finisher := recording.NewFinisher(recording.NewRemuxer(binary, logger), history, logger)
	bus := stream.NewBus()

	factory := stream.NewFactory(stream.FactoryConfig{
		Offset:           offset,
		Location:         loc,
		Container:        cfg.Recording.Container,
		CheckInterval:    cfg.Recording.CheckInterval,
		DefaultBandwidth: cfg.Recording.Bandwidth,
		Downloader: hls.Options{
			Workers:         cfg.Downloader.Workers,
			StallTimeout:    cfg.Downloader.StallTimeout,
			RefreshInterval: cfg.Downloader.RefreshInterval,
			QueueCapacity:   cfg.Downloader.QueueCapacity,
			Logger:          logger,
		},
	}, client, layout, streams, finisher, bus, logger)

	logger.Info("recorder ready",
		slog.String("ffmpeg", binary),
		slog.String("output_dir", layout.BaseDir()),
		slog.String("timezone", loc.String()),
		slog.Duration("offset", offset),
	)

	return &recorder{client: client, layout: layout, bus: bus, factory: factory}, nil
}
