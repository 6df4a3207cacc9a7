package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/utils"

	"chamber/internal/adapters/perf"
)

// DefaultSlowThreshold marks a remote statement as slow.
const DefaultSlowThreshold = 200 * time.Millisecond

// SlogLogger routes GORM statement logs through slog.
type SlogLogger struct {
	SlowThreshold time.Duration
	LogLevel      gormlogger.LogLevel
	Collector     *perf.Collector // optional
}

// NewSlogLogger returns a GORM logger at Warn level.
func NewSlogLogger(slow time.Duration, collector *perf.Collector) gormlogger.Interface {
	if slow <= 0 {
		slow = DefaultSlowThreshold
	}
	return &SlogLogger{SlowThreshold: slow, LogLevel: gormlogger.Warn, Collector: collector}
}

func (l *SlogLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.LogLevel = level
	return &clone
}

func (l *SlogLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Info {
		slog.InfoContext(ctx, "gorm_info", "message", fmt.Sprintf(msg, data...))
	}
}

func (l *SlogLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Warn {
		slog.WarnContext(ctx, "gorm_warn", "message", fmt.Sprintf(msg, data...))
	}
}

func (l *SlogLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Error {
		slog.ErrorContext(ctx, "gorm_error", "message", fmt.Sprintf(msg, data...))
	}
}

// Trace logs failed and slow statements. Record-not-found is an expected
// outcome of lookups and is not logged.
func (l *SlogLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	if l.Collector != nil {
		sql, _ := fc()
		l.Collector.Record(perf.Entry{
			Kind:       perf.KindRemote,
			Path:       statementLabel(sql),
			Failed:     failed,
			DurationMs: float64(elapsed.Microseconds()) / 1000.0,
			Timestamp:  begin,
		})
	}
	switch {
	case failed && l.LogLevel >= gormlogger.Error:
		sql, rows := fc()
		slog.ErrorContext(ctx, "remote_query_failed",
			"source", utils.FileWithLineNum(),
			"error", err,
			"duration_ms", elapsed.Milliseconds(),
			"rows", rows,
			"sql", sql,
		)
	case elapsed > l.SlowThreshold && l.LogLevel >= gormlogger.Warn:
		sql, rows := fc()
		slog.WarnContext(ctx, "remote_slow_query",
			"source", utils.FileWithLineNum(),
			"duration_ms", elapsed.Milliseconds(),
			"rows", rows,
			"sql", sql,
		)
	case l.LogLevel >= gormlogger.Info:
		sql, rows := fc()
		slog.DebugContext(ctx, "remote_query",
			"duration_ms", elapsed.Milliseconds(),
			"rows", rows,
			"sql", sql,
		)
	}
}

// statementLabel reduces a statement to its verb and table, e.g. "SELECT members".
func statementLabel(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	verb := strings.ToUpper(fields[0])
	for i := 0; i < len(fields)-1; i++ {
		switch strings.ToUpper(fields[i]) {
		case "FROM", "INTO", "UPDATE":
			return verb + " " + strings.Trim(fields[i+1], `"'`+"`")
		}
	}
	return verb
}
