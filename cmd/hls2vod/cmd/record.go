package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/basshelal/hls2vod/internal/stream"
)

var recordCmd = &cobra.Command{
	Use:   "record <url>",
	Short: "Record one stream in the foreground",
	Long: `Record a single HLS stream without the API or database.

Shows from --schedule are recorded as they air; --force records from now
until interrupted. Interrupting finishes open recordings before exiting.

Example:
  hls2vod record https://example.com/live/master.m3u8 --schedule shows.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)

	recordCmd.Flags().String("name", "", "Stream name (default is the URL host)")
	recordCmd.Flags().String("schedule", "", "CSV show schedule")
	recordCmd.Flags().String("bandwidth", "", "Variant policy: best, worst or a bits per second ceiling")
	recordCmd.Flags().Bool("force", false, "Record immediately regardless of the schedule")
	recordCmd.Flags().String("output-dir", "./recordings", "Directory recordings are written to")
}

func runRecord(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig(cmd, map[string]string{"output-dir": "storage.output_dir"})
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Logging)

	name, _ := cmd.Flags().GetString("name")
	schedulePath, _ := cmd.Flags().GetString("schedule")
	bandwidth, _ := cmd.Flags().GetString("bandwidth")
	forced, _ := cmd.Flags().GetBool("force")

	if schedulePath == "" && !forced {
		return errors.New("nothing to record: pass --schedule or --force")
	}
	if name == "" {
		name = defaultStreamName(args[0])
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec, err := newRecorder(cfg, logger, nil, nil)
	if err != nil {
		return err
	}
	defer rec.bus.Close()

	events, unsubscribe := rec.bus.Subscribe(64)
	defer unsubscribe()
	go stream.LogEvents(ctx, events, logger)

	s, err := rec.factory.Create(ctx, stream.CreateRequest{
		Name:         name,
		URL:          args[0],
		SchedulePath: schedulePath,
		Bandwidth:    bandwidth,
		Forced:       forced,
	})
	if err != nil {
		return err
	}

	logger.Info("recording, interrupt to stop",
		slog.String("stream", s.Name()),
		slog.String("directory", s.Directory()),
		slog.Int("shows", len(s.Shows())),
	)
	if err := s.Serve(ctx); err != nil {
		return fmt.Errorf("serving %s: %w", name, err)
	}
	return nil
}

// defaultStreamName names a stream after its source host.
func defaultStreamName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "stream"
	}
	return u.Hostname()
}
