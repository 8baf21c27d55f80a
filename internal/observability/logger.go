// Package observability builds the process logger and the scoped child
// loggers each component logs through.
package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/m-mizutani/masq"

	"github.com/basshelal/hls2vod/internal/config"
)

// NewLogger creates a logger writing to stdout.
func NewLogger(cfg config.LoggingConfig) *slog.Logger {
	return NewLoggerWithWriter(cfg, os.Stdout)
}

// NewLoggerWithWriter creates a JSON or text logger writing to w.
// Struct fields tagged `masq:"secret"` and fields named Password or DSN are
// redacted before they reach the handler.
func NewLoggerWithWriter(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		AddSource:   cfg.AddSource,
		ReplaceAttr: replacer(cfg.TimeFormat),
	}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func replacer(timeFormat string) func([]string, slog.Attr) slog.Attr {
	redact := masq.New(
		masq.WithTag("secret"),
		masq.WithFieldName("Password"),
		masq.WithFieldName("DSN"),
	)
	return func(groups []string, a slog.Attr) slog.Attr {
		if timeFormat != "" && len(groups) == 0 && a.Key == slog.TimeKey {
			if t, ok := a.Value.Any().(time.Time); ok {
				return slog.String(slog.TimeKey, t.Format(timeFormat))
			}
		}
		return redact(groups, a)
	}
}

// parseLevel accepts slog level names in any case. Unknown names mean info.
func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return l
}

// WithComponent tags every record with the emitting component.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String("component", component))
}

// WithStream scopes a logger to a single recorded stream.
func WithStream(logger *slog.Logger, stream string) *slog.Logger {
	return logger.With(slog.String("stream", stream))
}

// WithSession scopes a logger to one recording session of a show.
func WithSession(logger *slog.Logger, stream, show, sessionID string) *slog.Logger {
	return logger.With(
		slog.String("stream", stream),
		slog.String("show", show),
		slog.String("session", sessionID),
	)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// SetDefault installs logger as the slog default.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}
