package pipeline

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/syncflow/pkg/connector/registry"
	"github.com/ajitpratap0/syncflow/pkg/connector/writer"
	"github.com/ajitpratap0/syncflow/pkg/errors"
	"github.com/ajitpratap0/syncflow/pkg/logger"
	"github.com/ajitpratap0/syncflow/pkg/metrics"
	"github.com/ajitpratap0/syncflow/pkg/scheduler"
	"github.com/ajitpratap0/syncflow/pkg/syncjob"
)

// Executor creates a run for a sync, builds its connectors from the
// registry and drives the run with a Runner. Every run gets a fresh write
// chain, so a full refresh clears the destination once per run, while the
// rate queues behind the chains live as long as the Executor.
type Executor struct {
	service  *syncjob.Service
	registry *registry.Registry
	queues   *writer.QueuePool

	batchSize     int
	runTimeout    time.Duration
	maxConcurrent int
	transforms    []Transform

	tracer  trace.Tracer
	metrics *metrics.Collector
	logger  *zap.Logger
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithExecutorBatchSize sets the default page size of runs
func WithExecutorBatchSize(n int) ExecutorOption {
	return func(e *Executor) {
		e.batchSize = n
	}
}

// WithRunTimeout bounds the duration of one run; zero means unbounded
func WithRunTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.runTimeout = d
	}
}

// WithMaxConcurrent bounds ExecuteAll parallelism
func WithMaxConcurrent(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxConcurrent = n
		}
	}
}

// WithExecutorTransforms applies transforms to every run
func WithExecutorTransforms(t ...Transform) ExecutorOption {
	return func(e *Executor) {
		e.transforms = append(e.transforms, t...)
	}
}

// WithExecutorTracer sets the tracer handed to runners
func WithExecutorTracer(t trace.Tracer) ExecutorOption {
	return func(e *Executor) {
		e.tracer = t
	}
}

// WithExecutorMetrics sets the collector handed to write chains
func WithExecutorMetrics(m *metrics.Collector) ExecutorOption {
	return func(e *Executor) {
		e.metrics = m
	}
}

// WithExecutorLogger sets the logger
func WithExecutorLogger(l *zap.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = l
	}
}

// NewExecutor creates an executor for the syncs held by service
func NewExecutor(service *syncjob.Service, reg *registry.Registry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		service:       service,
		registry:      reg,
		queues:        writer.NewQueuePool(),
		batchSize:     DefaultBatchSize,
		maxConcurrent: 1,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = registry.GetRegistry()
	}
	e.logger = logger.OrNop(e.logger)
	return e
}

// Execute runs the sync with id once and returns the finished run. A run
// whose connectors cannot be built is aborted with the cause recorded.
func (e *Executor) Execute(ctx context.Context, syncID string) (*syncjob.SyncRun, error) {
	s, err := e.service.GetSync(ctx, syncID)
	if err != nil {
		return nil, err
	}
	run, err := e.service.CreateRun(ctx, syncID, syncjob.RunTypeGeneral)
	if err != nil {
		return nil, err
	}
	if s.Config == nil {
		return run, e.fail(ctx, run, errors.New(errors.ErrorTypeConfig, "sync has no run configuration"))
	}

	source, err := e.registry.CreateSource(s.Config.Source)
	if err != nil {
		return run, e.fail(ctx, run, err)
	}
	defer e.close(ctx, "source", source.Close)

	dest, chain, err := e.registry.CreateWriter(s.Config.Destination,
		writer.WithLogger(e.logger),
		writer.WithMetrics(e.metrics),
		writer.WithQueuePool(e.queues),
	)
	if err != nil {
		return run, e.fail(ctx, run, err)
	}
	defer e.close(ctx, "destination", dest.Close)

	if e.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.runTimeout)
		defer cancel()
	}

	runner := NewRunner(e.service, source, chain,
		WithBatchSize(e.batchSize),
		WithTransforms(e.transforms...),
		WithTracer(e.tracer),
		WithLogger(e.logger),
	)
	timer := metrics.NewTimer()
	err = runner.Run(ctx, s, run)
	e.logger.Info("sync run finished",
		zap.String("sync_id", syncID),
		zap.String("sync_run_id", run.ID),
		zap.String("status", string(run.Status())),
		zap.Duration("duration", timer.Stop()),
		zap.Error(err))
	return run, err
}

// ExecuteAll runs the syncs with ids, at most maxConcurrent at a time.
// Every sync runs even when another fails; the failures are joined.
func (e *Executor) ExecuteAll(ctx context.Context, ids []string) error {
	var (
		mu   sync.Mutex
		errs []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrent)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if _, err := e.Execute(gctx, id); err != nil {
				mu.Lock()
				errs = append(errs, errors.Wrap(err, errors.ErrorTypeInternal, "sync run failed").WithDetail("sync_id", id))
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

// Trigger executes the sync on a scheduler tick; it satisfies
// scheduler.Trigger. Failures are logged, the run records them.
func (e *Executor) Trigger(ctx context.Context, kind scheduler.WorkflowKind, syncID string) {
	l := e.logger.With(zap.String("sync_id", syncID), zap.String("workflow", string(kind)))
	l.Info("scheduled sync run triggered")

	run, err := e.Execute(ctx, syncID)
	if err != nil {
		fields := []zap.Field{zap.Error(err)}
		if run != nil {
			fields = append(fields, zap.String("sync_run_id", run.ID))
		}
		l.Error("scheduled sync run failed", fields...)
	}
}

func (e *Executor) fail(ctx context.Context, run *syncjob.SyncRun, cause error) error {
	run.SetError(cause.Error())
	if _, err := e.service.FireRun(ctx, run.ID, syncjob.RunEventAbort); err != nil {
		e.logger.Error("failed to abort sync run", zap.String("sync_run_id", run.ID), zap.Error(err))
	}
	return cause
}

func (e *Executor) close(ctx context.Context, side string, closeFn func(context.Context) error) {
	if err := closeFn(context.WithoutCancel(ctx)); err != nil {
		e.logger.Warn("failed to close connector", zap.String("side", side), zap.Error(err))
	}
}
