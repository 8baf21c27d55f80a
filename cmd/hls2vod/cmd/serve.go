package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/basshelal/hls2vod/internal/config"
	"github.com/basshelal/hls2vod/internal/database"
	"github.com/basshelal/hls2vod/internal/ffmpeg"
	internalhttp "github.com/basshelal/hls2vod/internal/http"
	"github.com/basshelal/hls2vod/internal/http/handlers"
	"github.com/basshelal/hls2vod/internal/repository"
	"github.com/basshelal/hls2vod/internal/startup"
	"github.com/basshelal/hls2vod/internal/stream"
	"github.com/basshelal/hls2vod/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the hls2vod server",
	Long: `Start the recorder and its HTTP API.

Persisted streams are restored and resume recording their schedules. The
server provides:
- REST API for creating, pausing and forcing streams
- Recording history
- Health check and Prometheus metrics
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("database", "hls2vod.db", "Database DSN")
	serveCmd.Flags().String("output-dir", "./recordings", "Directory recordings are written to")
}

func runServe(cmd *cobra.Command, _ []string) error {
	v, cfg, err := loadConfig(cmd, map[string]string{
		"host":       "server.host",
		"port":       "server.port",
		"database":   "database.dsn",
		"output-dir": "storage.output_dir",
	})
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.New(cfg.Database, logger, nil)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Migrate(ctx); err != nil {
		return err
	}

	streamRepo := repository.NewStreamRepository(db.DB)
	recordingRepo := repository.NewRecordingRepository(db.DB)

	rec, err := newRecorder(cfg, logger, streamRepo, recordingRepo)
	if err != nil {
		return err
	}
	defer rec.bus.Close()

	if orphans, err := startup.FindOrphanedIntermediates(logger, rec.layout.BaseDir(), startup.DefaultOrphanAge); err != nil {
		logger.Warn("scanning for orphaned intermediates", slog.String("error", err.Error()))
	} else if len(orphans) > 0 {
		logger.Warn("found intermediates without a finished recording", slog.Int("count", len(orphans)))
	}

	events, unsubscribe := rec.bus.Subscribe(256)
	defer unsubscribe()
	go stream.LogEvents(ctx, events, logger)

	g, gctx := errgroup.WithContext(ctx)
	registry := stream.NewRegistry(gctx, logger)

	restored, err := rec.factory.Restore(ctx)
	if err != nil {
		return err
	}
	for _, s := range restored {
		if err := registry.Add(s); err != nil {
			logger.Error("registering restored stream", slog.String("stream", s.Name()), slog.String("error", err.Error()))
			s.Close()
		}
	}
	logger.Info("streams restored", slog.Int("count", registry.Len()))

	config.Watch(v, func(updated *config.Config) {
		logger.Info("configuration reloaded", slog.Int("offset_seconds", updated.Recording.OffsetSeconds))
		registry.SetOffset(updated.Recording.Offset())
	}, func(err error) {
		logger.Error("ignoring invalid configuration change", slog.String("error", err.Error()))
	})

	server := internalhttp.NewServer(cfg.Server, logger, version.Version)

	handlers.NewHealthHandler(version.Version, registry).
		WithDB(db).
		WithFFmpeg(ffmpeg.NewDetector(cfg.FFmpeg.BinaryPath)).
		WithOutputDir(rec.layout.BaseDir()).
		WithCircuit(func() string { return rec.client.CircuitState().String() }).
		Register(server.API())
	handlers.NewStreamHandler(registry, rec.factory, logger).Register(server.API())
	handlers.NewRecordingHandler(recordingRepo).Register(server.API())

	logger.Info("starting hls2vod server",
		slog.String("address", cfg.Server.Address()),
		slog.String("version", version.Version),
	)

	g.Go(func() error {
		return server.ListenAndServe(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		// finishes open recordings, which may take as long as their remux
		registry.Shutdown()
		return nil
	})

	err = g.Wait()
	logger.Info("hls2vod stopped")
	return err
}
