package recording

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/basshelal/hls2vod/internal/metrics"
	"github.com/basshelal/hls2vod/internal/models"
	"github.com/basshelal/hls2vod/internal/observability"
)

// HistoryStore receives one row per finished session.
type HistoryStore interface {
	Create(ctx context.Context, recording *models.Recording) error
}

// Finisher closes sessions, remuxes their intermediate files and records
// the outcome.
type Finisher struct {
	remuxer *Remuxer
	history HistoryStore
	logger  *slog.Logger
	now     func() time.Time
}

// NewFinisher creates a Finisher. history may be nil.
func NewFinisher(remuxer *Remuxer, history HistoryStore, logger *slog.Logger) *Finisher {
	if logger == nil {
		logger = observability.Discard()
	}
	return &Finisher{
		remuxer: remuxer,
		history: history,
		logger:  observability.WithComponent(logger, "finisher"),
		now:     time.Now,
	}
}

// Process finishes s: an empty session has its intermediate deleted without
// remuxing; otherwise the intermediate is remuxed into s.FinalPath. The
// returned error is a *RemuxError when the remux failed.
func (f *Finisher) Process(ctx context.Context, s *Session) error {
	logger := observability.WithSession(f.logger, s.Stream, s.Show, s.ID)
	if err := s.Close(f.now()); err != nil {
		logger.WarnContext(ctx, "closing session file", slog.String("error", err.Error()))
	}

	rec := &models.Recording{
		StreamName:       s.Stream,
		ShowName:         s.Show,
		SessionID:        s.ID,
		Forced:           s.Forced,
		StartedAt:        s.StartedAt,
		EndedAt:          s.EndedAt(),
		SegmentCount:     s.Segments(),
		Bytes:            s.Bytes(),
		IntermediatePath: s.IntermediatePath,
	}

	var result error
	switch {
	case s.Segments() == 0:
		rec.Status = models.RecordingStatusEmpty
		if err := os.Remove(s.IntermediatePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.WarnContext(ctx, "removing empty intermediate", slog.String("path", s.IntermediatePath), slog.String("error", err.Error()))
		}
		logger.InfoContext(ctx, "session received no segments, nothing to remux")
	default:
		start := time.Now()
		err := f.remuxer.Remux(ctx, s.IntermediatePath, s.FinalPath)
		took := time.Since(start)
		rec.DurationMs = took.Milliseconds()

		if err != nil {
			rec.Status = models.RecordingStatusFailed
			rec.Error = err.Error()
			var remuxErr *RemuxError
			if errors.As(err, &remuxErr) {
				rec.ExitCode = remuxErr.ExitCode
			}
			metrics.RecordRemux("failed", took)
			result = err
		} else {
			rec.Status = models.RecordingStatusCompleted
			rec.OutputPath = s.FinalPath
			metrics.RecordRemux("completed", took)
			logger.InfoContext(ctx, "recording finished",
				slog.String("file", s.FinalPath),
				slog.Int("segments", rec.SegmentCount),
				slog.Int64("bytes", rec.Bytes),
			)
		}
	}

	if f.history != nil {
		// history is written even when the caller's context is already cancelled
		if err := f.history.Create(context.WithoutCancel(ctx), rec); err != nil {
			logger.ErrorContext(ctx, "saving recording history", slog.String("error", err.Error()))
		}
	}
	return result
}
