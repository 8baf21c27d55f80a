package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	slowQueryThreshold = time.Second
	maxSQLLogLength    = 200
)

var gormLevels = map[string]logger.LogLevel{
	"silent": logger.Silent,
	"error":  logger.Error,
	"warn":   logger.Warn,
	"info":   logger.Info,
}

// gormLogLevel maps the database.log_level setting onto GORM's levels.
// Unknown names mean warn.
func gormLogLevel(level string) logger.LogLevel {
	if l, ok := gormLevels[level]; ok {
		return l
	}
	return logger.Warn
}

// slogGormLogger routes GORM's logging into slog. Failed and slow queries
// surface at error and warn; everything else only at debug with
// database.log_level set to info.
type slogGormLogger struct {
	logger *slog.Logger
	level  logger.LogLevel
}

var _ logger.Interface = (*slogGormLogger)(nil)

func newGormLogger(level string, log *slog.Logger) *slogGormLogger {
	return &slogGormLogger{
		logger: log.With(slog.String("component", "database")),
		level:  gormLogLevel(level),
	}
}

func (l *slogGormLogger) LogMode(level logger.LogLevel) logger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *slogGormLogger) printf(ctx context.Context, at logger.LogLevel, lvl slog.Level, msg string, args []any) {
	if l.level >= at {
		l.logger.Log(ctx, lvl, fmt.Sprintf(msg, args...))
	}
}

func (l *slogGormLogger) Info(ctx context.Context, msg string, args ...any) {
	l.printf(ctx, logger.Info, slog.LevelInfo, msg, args)
}

func (l *slogGormLogger) Warn(ctx context.Context, msg string, args ...any) {
	l.printf(ctx, logger.Warn, slog.LevelWarn, msg, args)
}

func (l *slogGormLogger) Error(ctx context.Context, msg string, args ...any) {
	l.printf(ctx, logger.Error, slog.LevelError, msg, args)
}

func (l *slogGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)

	var (
		lvl slog.Level
		msg string
	)
	switch {
	// repositories turn not-found into (nil, nil)
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= logger.Error:
		lvl, msg = slog.LevelError, "database error"
	case elapsed > slowQueryThreshold && l.level >= logger.Warn:
		lvl, msg = slog.LevelWarn, "slow query"
	case l.level >= logger.Info && l.logger.Enabled(ctx, slog.LevelDebug):
		lvl, msg = slog.LevelDebug, "database query"
	default:
		return
	}

	sql, rows := fc()
	attrs := []slog.Attr{
		slog.String("sql", truncateSQL(sql)),
		slog.Int64("rows", rows),
		slog.Duration("elapsed", elapsed),
	}
	if lvl == slog.LevelError {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	l.logger.LogAttrs(ctx, lvl, msg, attrs...)
}

func truncateSQL(sql string) string {
	if len(sql) <= maxSQLLogLength {
		return sql
	}
	return sql[:maxSQLLogLength] + "... (truncated)"
}
