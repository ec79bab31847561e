package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/locallink/locallink-backend/pkg/logger"
)

// queryLog routes gorm's trace hook into the service logger. Only slow
// statements and real failures are reported; missing rows are ordinary
// control flow for the document store.
type queryLog struct {
	logg *logger.Logger
	slow time.Duration
}

var _ gormlogger.Interface = queryLog{}

func (q queryLog) LogMode(gormlogger.LogLevel) gormlogger.Interface { return q }

func (q queryLog) Info(ctx context.Context, msg string, _ ...any) { q.logg.Debug(ctx, msg) }

func (q queryLog) Warn(ctx context.Context, msg string, _ ...any) { q.logg.Warn(ctx, msg) }

func (q queryLog) Error(ctx context.Context, msg string, _ ...any) {
	q.logg.Error(ctx, msg, nil)
}

func (q queryLog) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	took := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && !IsUniqueViolation(err)
	if !failed && (q.slow <= 0 || took < q.slow) {
		return
	}
	stmt, rows := fc()
	ctx = q.logg.WithFields(ctx, map[string]any{
		"sql":     stmt,
		"rows":    rows,
		"took_ms": took.Milliseconds(),
	})
	if failed {
		q.logg.Warn(q.logg.WithField(ctx, "error", err.Error()), "db.query_failed")
		return
	}
	q.logg.Warn(ctx, "db.slow_query")
}
