package writer

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/syncflow/pkg/connector/core"
	"github.com/ajitpratap0/syncflow/pkg/logger"
	"github.com/ajitpratap0/syncflow/pkg/metrics"
)

// Fullrefresher clears the destination once, before the first full
// refresh write of its lifetime. A failed clear skips the write for that
// call and leaves the marker unset, so the next write retries the clear.
type Fullrefresher struct {
	next    core.Writer
	clearer core.Clearer
	logger  *zap.Logger
	metrics *metrics.Collector

	// mu serialises check-and-clear; completed is the clear marker
	mu        sync.Mutex
	completed bool
}

// NewFullrefresher wraps next, clearing through clearer
func NewFullrefresher(next core.Writer, clearer core.Clearer, opts ...Option) *Fullrefresher {
	o := buildOptions(opts)
	return &Fullrefresher{
		next:    next,
		clearer: clearer,
		logger:  o.logger.With(zap.String("component", "fullrefresher")),
		metrics: o.metrics,
	}
}

// Write clears the destination first when needed, then delegates
func (f *Fullrefresher) Write(ctx context.Context, cfg *core.SyncConfig, records []*core.Record, action core.Action) (*core.Message, error) {
	if !cfg.IsFullRefresh() {
		return f.next.Write(ctx, cfg, records, action)
	}

	if msg, err := f.ensureCleared(ctx, cfg); msg != nil || err != nil {
		return msg, err
	}

	return f.next.Write(ctx, cfg, records, action)
}

// ensureCleared returns (nil, nil) once the destination is cleared, or the
// failure to hand back instead of writing.
func (f *Fullrefresher) ensureCleared(ctx context.Context, cfg *core.SyncConfig) (*core.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.completed {
		return nil, nil
	}

	l := logger.WithContext(ctx, f.logger).With(zap.String("stream", cfg.Stream.Name))

	msg, err := f.clearer.ClearAllRecords(ctx, cfg)
	if err != nil {
		f.metrics.RecordClear(cfg.Stream.Name, string(core.ControlStatusFailed))
		l.Error("clear all records failed", zap.Error(err))
		return nil, err
	}

	if msg.Succeeded() {
		f.completed = true
		f.metrics.RecordClear(cfg.Stream.Name, string(core.ControlStatusSucceeded))
		l.Info("destination records cleared for full refresh")
		return nil, nil
	}

	if msg == nil {
		msg = core.NewControlMessage(core.ControlTypeFullRefresh, core.ControlStatusFailed, "clear all records returned no status")
	}
	f.metrics.RecordClear(cfg.Stream.Name, string(core.ControlStatusFailed))
	l.Warn("clear all records reported failure, skipping write",
		zap.String("detail", msg.Control.Detail()))
	return msg, nil
}

// Cleared reports whether the clear marker is set
func (f *Fullrefresher) Cleared() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}
