package recording

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/basshelal/hls2vod/internal/ffmpeg"
	"github.com/basshelal/hls2vod/internal/observability"
)

// ErrRemuxFailed matches every *RemuxError.
var ErrRemuxFailed = errors.New("remux failed")

// RemuxError reports a failed remux. The intermediate file is left in place.
type RemuxError struct {
	Input    string
	ExitCode int
	Output   []string
	Err      error
}

func (e *RemuxError) Error() string {
	msg := fmt.Sprintf("remux of %s failed with exit code %d", e.Input, e.ExitCode)
	if len(e.Output) > 0 {
		msg += ": " + e.Output[len(e.Output)-1]
	}
	return msg
}

// Is makes errors.Is(err, ErrRemuxFailed) true.
func (e *RemuxError) Is(target error) bool {
	return target == ErrRemuxFailed
}

func (e *RemuxError) Unwrap() error {
	return e.Err
}

// Remuxer repackages a finished intermediate file with ffmpeg stream copy.
type Remuxer struct {
	binary string
	logger *slog.Logger
}

// NewRemuxer creates a Remuxer using the ffmpeg binary at binary.
func NewRemuxer(binary string, logger *slog.Logger) *Remuxer {
	if logger == nil {
		logger = observability.Discard()
	}
	return &Remuxer{
		binary: binary,
		logger: observability.WithComponent(logger, "remux"),
	}
}

// Remux runs `ffmpeg -y -loglevel warning -i input -c copy output`. On
// success input is deleted. On failure it is kept and a *RemuxError returned.
func (r *Remuxer) Remux(ctx context.Context, input, output string) error {
	b := ffmpeg.NewCommandBuilder(r.binary).
		Overwrite().
		LogLevel("warning").
		Input(input).
		StreamCopy()
	switch strings.ToLower(filepath.Ext(output)) {
	case ".mp4", ".m4v", ".mov":
		// index at the front so players can start before the download ends
		b.OutputArgs("-movflags", "+faststart")
	}
	cmd := b.Output(output).Build()

	r.logger.DebugContext(ctx, "running remux", slog.String("command", cmd.String()))

	if err := cmd.Run(ctx); err != nil {
		lines := cmd.OutputLines()
		r.logger.ErrorContext(ctx, "remux failed, keeping intermediate file",
			slog.String("input", input),
			slog.Int("exit_code", ffmpeg.ExitCode(err)),
			slog.String("output", strings.Join(lines, "\n")),
		)
		return &RemuxError{Input: input, ExitCode: ffmpeg.ExitCode(err), Output: lines, Err: err}
	}

	for _, line := range cmd.OutputLines() {
		r.logger.WarnContext(ctx, "ffmpeg", slog.String("line", line), slog.String("input", input))
	}

	if err := os.Remove(input); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.logger.WarnContext(ctx, "removing intermediate file failed", slog.String("path", input), slog.String("error", err.Error()))
	}

	r.logger.InfoContext(ctx, "remux completed",
		slog.String("output", output),
		slog.Duration("took", cmd.Duration()),
	)
	return nil
}
