package scheduler

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/syncflow/pkg/logger"
	"github.com/ajitpratap0/syncflow/pkg/metrics"
)

// ErrorReporter receives errors that were recovered locally and must not
// reach the caller
type ErrorReporter interface {
	Report(ctx context.Context, component string, err error, fields ...zap.Field)
}

// LogReporter reports errors to the log and counts them
type LogReporter struct {
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewLogReporter creates a LogReporter; both arguments may be nil
func NewLogReporter(l *zap.Logger, m *metrics.Collector) *LogReporter {
	return &LogReporter{
		logger:  logger.OrNop(l).With(zap.String("component", "error_reporter")),
		metrics: m,
	}
}

// Report implements ErrorReporter
func (r *LogReporter) Report(ctx context.Context, component string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	r.metrics.RecordReportedError(component)

	fields = append(fields, zap.String("source", component), zap.Error(err))
	logger.WithContext(ctx, r.logger).Error("recovered error reported", fields...)
}
