package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ajitpratap0/syncflow/internal/pipeline"
	"github.com/ajitpratap0/syncflow/pkg/clients"
	"github.com/ajitpratap0/syncflow/pkg/config"
	"github.com/ajitpratap0/syncflow/pkg/connector/registry"
	"github.com/ajitpratap0/syncflow/pkg/logger"
	"github.com/ajitpratap0/syncflow/pkg/metrics"
	"github.com/ajitpratap0/syncflow/pkg/notify"
	"github.com/ajitpratap0/syncflow/pkg/observability"
	"github.com/ajitpratap0/syncflow/pkg/scheduler"
	"github.com/ajitpratap0/syncflow/pkg/syncjob"
)

// app wires the configured components of one CLI invocation
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *metrics.Collector
	tracing  *observability.Provider
	kafka    *notify.KafkaNotifier
	service  *syncjob.Service
	executor *pipeline.Executor
}

// loadConfig loads the configuration at path and initializes the process
// logger from it
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newApp builds every component from cfg. sched may be nil, leaving syncs
// unscheduled.
func newApp(cfg *config.Config, reg prometheus.Registerer, sched scheduler.Scheduler) (*app, error) {
	l := logger.Get().With(zap.String("component", "syncflow-cli"))

	a := &app{
		cfg:     cfg,
		logger:  l,
		metrics: metrics.NewCollector(reg),
	}

	var err error
	a.tracing, err = observability.InitTracing(cfg.Tracing, observability.WithGlobal())
	if err != nil {
		return nil, err
	}

	notifiers := notify.Multi{notify.NewLogNotifier(l)}
	if cfg.Notifications.Kafka != nil {
		a.kafka, err = notify.NewKafkaNotifier(*cfg.Notifications.Kafka, l)
		if err != nil {
			return nil, err
		}
		breaker := clients.NewCircuitBreaker(cfg.Notifications.Breaker, l)
		notifiers = append(notifiers, notify.NewGuarded(a.kafka, breaker))
	}

	opts := []syncjob.ServiceOption{
		syncjob.WithNotifier(notifiers),
		syncjob.WithMetrics(a.metrics),
		syncjob.WithLogger(l),
	}
	if sched != nil {
		opts = append(opts, syncjob.WithScheduler(sched))
	}
	a.service = syncjob.NewService(syncjob.NewMemoryRepository(), opts...)

	a.executor = pipeline.NewExecutor(a.service, registry.GetRegistry(),
		pipeline.WithExecutorBatchSize(cfg.Scheduler.DefaultBatchSize),
		pipeline.WithRunTimeout(cfg.Scheduler.RunTimeout),
		pipeline.WithMaxConcurrent(cfg.Scheduler.MaxConcurrent),
		pipeline.WithExecutorTracer(a.tracing.Tracer()),
		pipeline.WithExecutorMetrics(a.metrics),
		pipeline.WithExecutorLogger(l),
	)
	return a, nil
}

// loadSyncs creates a Sync for every configured definition and returns
// their ids in configuration order
func (a *app) loadSyncs(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(a.cfg.Syncs))
	for _, def := range a.cfg.Syncs {
		s, err := a.cfg.BuildSync(def)
		if err != nil {
			return nil, err
		}
		if _, err := a.service.CreateSync(ctx, s); err != nil {
			return nil, err
		}
		ids = append(ids, s.ID)
	}
	return ids, nil
}

// close flushes spans and logs and releases the Kafka producer
func (a *app) close(ctx context.Context) {
	if err := a.tracing.Shutdown(ctx); err != nil {
		a.logger.Warn("failed to shutdown tracing", zap.Error(err))
	}
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			a.logger.Warn("failed to close kafka notifier", zap.Error(err))
		}
	}
	_ = logger.Sync()
}
