// Package pipeline drives sync runs: it pages records out of a source,
// pushes each page through the destination's write chain and moves the
// run through its lifecycle.
//
// # Flow
//
// One run of a sync goes through:
//   - start, query: the run is started and the model query issued
//   - read page 1, queue, progress: the first page is read and the run
//     enters in_progress
//   - write: each page is written through RateLimiter, Fullrefresher and
//     the destination
//   - counters: query rows and per-row write outcomes are accumulated
//   - the next page is read until a short page ends the run with complete
//
// A read or write error aborts the run. A run canceled while in flight
// stops before its next write.
//
// # Basic Usage
//
//	runner := pipeline.NewRunner(service, source, chain,
//	    pipeline.WithBatchSize(1000),
//	    pipeline.WithLogger(logger),
//	)
//	err := runner.Run(ctx, sync, run)
package pipeline

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/ajitpratap0/syncflow/pkg/connector/core"
	"github.com/ajitpratap0/syncflow/pkg/errors"
	"github.com/ajitpratap0/syncflow/pkg/logger"
	"github.com/ajitpratap0/syncflow/pkg/observability"
	"github.com/ajitpratap0/syncflow/pkg/syncjob"
)

// DefaultBatchSize is the page size used when neither the run
// configuration nor the runner names one
const DefaultBatchSize = 1000

// Runner executes sync runs against one source and one write chain
type Runner struct {
	service *syncjob.Service // applies run transitions and their side effects
	source  core.Source      // pages records out of the model query
	writer  core.Writer      // destination write chain

	batchSize  int           // records per page
	action     core.Action   // write action for every page
	transforms []Transform   // applied to every record before writing
	tracer     trace.Tracer  // run and batch spans
	logger     *zap.Logger   // structured logger
}

// Option configures a Runner
type Option func(*Runner)

// WithBatchSize sets the page size; cfg.Limit of a run takes precedence
func WithBatchSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithAction sets the action pages are written with
func WithAction(a core.Action) Option {
	return func(r *Runner) {
		r.action = a
	}
}

// WithTransforms appends record transforms
func WithTransforms(t ...Transform) Option {
	return func(r *Runner) {
		r.transforms = append(r.transforms, t...)
	}
}

// WithTracer sets the tracer for run and batch spans
func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// NewRunner creates a runner reading from source and writing through w
func NewRunner(service *syncjob.Service, source core.Source, w core.Writer, opts ...Option) *Runner {
	r := &Runner{
		service:   service,
		source:    source,
		writer:    w,
		batchSize: DefaultBatchSize,
		action:    core.DefaultAction,
		tracer:    noop.NewTracerProvider().Tracer(observability.TracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logger.OrNop(r.logger).With(zap.String("component", "runner"))
	return r
}

// Run executes run of s to completion. It returns nil when the run
// completes or is canceled through its state machine, and the cause when
// the run aborts or ctx ends. run must be the instance the service's
// repository returns, so cancellations made through the service are seen.
func (r *Runner) Run(ctx context.Context, s *syncjob.Sync, run *syncjob.SyncRun) (err error) {
	ctx = context.WithValue(ctx, logger.SyncIDKey, s.ID)
	ctx = context.WithValue(ctx, logger.SyncRunIDKey, run.ID)
	l := logger.WithContext(ctx, r.logger)

	ctx, span := observability.StartRunSpan(ctx, r.tracer, s.ID, run.ID)
	defer func() {
		counters := run.Counters()
		span.SetAttribute("sync_run.status", string(run.Status()))
		span.SetAttribute("sync_run.successful_rows", counters.SuccessfulRows)
		span.SetAttribute("sync_run.failed_rows", counters.FailedRows)
		span.Fail(err)
		span.End()
	}()

	cfg := s.RunConfig(run.ID)
	limit := r.batchSize
	if cfg.Limit > 0 {
		limit = cfg.Limit
	}
	offset := cfg.Offset

	for _, event := range []syncjob.RunEvent{syncjob.RunEventStart, syncjob.RunEventQuery} {
		if err := r.fire(ctx, run, event); err != nil {
			return err
		}
	}

	l.Info("sync run started",
		zap.String("stream", cfg.Stream.Name),
		zap.String("sync_mode", string(cfg.SyncMode)),
		zap.Int("batch_size", limit))

	for page := 0; ; page++ {
		if stop, err := r.checkpoint(ctx, run); stop {
			return err
		}

		pageCfg := cfg.WithPage(limit, offset)
		n, err := r.runBatch(ctx, run, pageCfg, page == 0)
		if err != nil {
			if ctx.Err() != nil {
				return r.cancel(ctx, run)
			}
			return r.abort(ctx, run, err)
		}
		if run.Status() == syncjob.RunStatusCanceled {
			l.Info("sync run canceled, stopping")
			return nil
		}
		if n < limit {
			break
		}
		offset = nextOffset(cfg, limit, offset)
	}

	if err := r.fire(ctx, run, syncjob.RunEventComplete); err != nil {
		return err
	}

	counters := run.Counters()
	l.Info("sync run completed",
		zap.Int64("total_rows", counters.TotalRows),
		zap.Int64("successful_rows", counters.SuccessfulRows),
		zap.Int64("failed_rows", counters.FailedRows))
	return nil
}

// runBatch reads one page and writes it. It returns the number of records
// the page held.
func (r *Runner) runBatch(ctx context.Context, run *syncjob.SyncRun, cfg *core.SyncConfig, first bool) (n int, err error) {
	ctx, span := observability.StartBatchSpan(ctx, r.tracer, cfg.Stream.Name, cfg.Limit, cfg.Offset)
	defer func() {
		span.SetAttribute(observability.AttrBatchSize, n)
		span.Fail(err)
		span.End()
	}()

	records, err := r.source.Read(ctx, cfg)
	if err != nil {
		return 0, err
	}
	n = len(records)

	// the run may have been canceled while the page was read
	if run.Status() == syncjob.RunStatusCanceled {
		return n, nil
	}

	if first {
		if err := r.fire(ctx, run, syncjob.RunEventQueue); err != nil {
			return n, err
		}
	}
	if run.Status() != syncjob.RunStatusInProgress {
		if err := r.fire(ctx, run, syncjob.RunEventProgress); err != nil {
			return n, err
		}
	}

	if err := r.service.AddRunCounters(ctx, run, syncjob.RunCounters{TotalQueryRows: int64(n)}); err != nil {
		return n, err
	}
	if n == 0 {
		return 0, nil
	}

	records, err = r.transform(ctx, records)
	if err != nil {
		return n, err
	}
	if len(records) == 0 {
		return n, nil
	}

	msg, err := r.writer.Write(ctx, cfg, records, r.action)
	if err != nil {
		return n, err
	}

	delta := countersFor(msg, len(records))
	span.SetAttribute("batch.successful_rows", delta.SuccessfulRows)
	span.SetAttribute("batch.failed_rows", delta.FailedRows)
	if msg.Failed() {
		span.AddEvent("write skipped: " + msg.Control.Detail())
	}
	return n, r.service.AddRunCounters(ctx, run, delta)
}

// countersFor turns a write result into counter increments. A failed
// control message means nothing of the batch was written.
func countersFor(msg *core.Message, batch int) syncjob.RunCounters {
	delta := syncjob.RunCounters{TotalRows: int64(batch)}
	switch {
	case msg.IsTracking():
		delta.SuccessfulRows = int64(msg.Tracking.Success)
		delta.FailedRows = int64(msg.Tracking.Failed)
	case msg.Failed():
		delta.FailedRows = int64(batch)
	default:
		delta.SuccessfulRows = int64(batch)
	}
	return delta
}

// checkpoint reports whether the run must stop before its next batch
func (r *Runner) checkpoint(ctx context.Context, run *syncjob.SyncRun) (bool, error) {
	if run.Status() == syncjob.RunStatusCanceled {
		logger.WithContext(ctx, r.logger).Info("sync run canceled, stopping")
		return true, nil
	}
	if ctx.Err() != nil {
		return true, r.cancel(ctx, run)
	}
	return false, nil
}

func (r *Runner) transform(ctx context.Context, records []*core.Record) ([]*core.Record, error) {
	if len(r.transforms) == 0 {
		return records, nil
	}
	out := make([]*core.Record, 0, len(records))
	for _, rec := range records {
		var err error
		for _, t := range r.transforms {
			if rec, err = t(ctx, rec); err != nil {
				return nil, err
			}
			if rec == nil {
				break
			}
		}
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

// cancel records a ctx cancellation on the run and returns ctx's error
func (r *Runner) cancel(ctx context.Context, run *syncjob.SyncRun) error {
	cause := ctx.Err()
	if run.Can(syncjob.RunEventCancel) {
		if err := r.fire(context.WithoutCancel(ctx), run, syncjob.RunEventCancel); err != nil {
			logger.WithContext(ctx, r.logger).Error("failed to cancel sync run", zap.Error(err))
		}
	}
	return errors.Wrap(cause, errors.ErrorTypeTimeout, "sync run interrupted")
}

// abort fails the run with cause and returns cause
func (r *Runner) abort(ctx context.Context, run *syncjob.SyncRun, cause error) error {
	l := logger.WithContext(ctx, r.logger)
	l.Error("sync run aborted", zap.Error(cause))

	run.SetError(cause.Error())
	if run.Can(syncjob.RunEventAbort) {
		if err := r.fire(ctx, run, syncjob.RunEventAbort); err != nil {
			l.Error("failed to abort sync run", zap.Error(err))
		}
	}
	return cause
}

func (r *Runner) fire(ctx context.Context, run *syncjob.SyncRun, event syncjob.RunEvent) error {
	_, err := r.service.FireRun(ctx, run.ID, event)
	return err
}

// nextOffset advances the page cursor. Page based strategies count pages;
// everything else counts rows.
func nextOffset(cfg *core.SyncConfig, limit, offset int) int {
	if cfg.IncrementStrategyConfig != nil && cfg.IncrementStrategyConfig.Strategy == core.IncrementStrategyPage {
		return offset + 1
	}
	return offset + limit
}
