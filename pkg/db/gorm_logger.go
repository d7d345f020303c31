package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/msa-portal/portal-backend/pkg/logger"
)

const slowQueryThreshold = 250 * time.Millisecond

// gormLogger routes GORM's statement log into the request-scoped logger.
// Failed and slow statements log at warn; fallback tiers query tables that
// may not exist, so a failed statement alone is not an error.
type gormLogger struct {
	logg  *logger.Logger
	level gormlogger.LogLevel
	slow  time.Duration
}

func newGormLogger(logg *logger.Logger) gormlogger.Interface {
	if logg == nil {
		return gormlogger.Discard
	}
	return &gormLogger{logg: logg, level: gormlogger.Warn, slow: slowQueryThreshold}
}

func (g *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *g
	clone.level = level
	return &clone
}

func (g *gormLogger) Info(ctx context.Context, msg string, args ...any) {
	if g.level >= gormlogger.Info {
		g.logg.Info(ctx, fmt.Sprintf(msg, args...))
	}
}

func (g *gormLogger) Warn(ctx context.Context, msg string, args ...any) {
	if g.level >= gormlogger.Warn {
		g.logg.Warn(ctx, fmt.Sprintf(msg, args...))
	}
}

func (g *gormLogger) Error(ctx context.Context, msg string, args ...any) {
	if g.level >= gormlogger.Error {
		g.logg.Error(ctx, fmt.Sprintf(msg, args...), nil)
	}
}

func (g *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	fields := func() context.Context {
		query, rows := fc()
		return g.logg.WithFields(ctx, map[string]any{
			"sql":         query,
			"rows":        rows,
			"duration_ms": elapsed.Milliseconds(),
		})
	}
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && g.level >= gormlogger.Error:
		g.logg.WarnErr(fields(), "db.query_failed", err)
	case g.slow > 0 && elapsed > g.slow && g.level >= gormlogger.Warn:
		g.logg.Warn(fields(), "db.slow_query")
	case g.level >= gormlogger.Info:
		g.logg.Debug(fields(), "db.query")
	}
}
