package writer

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/syncflow/pkg/clients"
	"github.com/ajitpratap0/syncflow/pkg/connector/core"
	"github.com/ajitpratap0/syncflow/pkg/logger"
	"github.com/ajitpratap0/syncflow/pkg/metrics"
)

// RateLimiter paces write calls to a destination. It takes one rate
// queue slot per Write call (not per record) before delegating.
type RateLimiter struct {
	next    core.Writer
	logger  *zap.Logger
	metrics *metrics.Collector

	pool    *QueuePool
	queue   *clients.RateQueue
	queueMu sync.Mutex
}

// NewRateLimiter wraps next
func NewRateLimiter(next core.Writer, opts ...Option) *RateLimiter {
	o := buildOptions(opts)
	return &RateLimiter{
		next:    next,
		logger:  o.logger.With(zap.String("component", "rate_limiter")),
		metrics: o.metrics,
		pool:    o.queues,
	}
}

// Write waits for a rate slot, then delegates unconditionally
func (r *RateLimiter) Write(ctx context.Context, cfg *core.SyncConfig, records []*core.Record, action core.Action) (*core.Message, error) {
	queue := r.queueFor(cfg)
	stream := cfg.Stream.Name

	waited, err := queue.Push(ctx)
	if err != nil {
		return nil, err
	}
	if waited > 0 {
		r.metrics.RecordRateLimitWait(stream, waited)
	}

	logger.WithContext(ctx, r.logger).Info(fmt.Sprintf("write called for stream %s", stream),
		zap.String("stream", stream),
		zap.String("action", string(action)),
		zap.Int("records", len(records)))

	msg, err := r.next.Write(ctx, cfg, records, action)
	switch {
	case err != nil:
		r.metrics.RecordWrite(stream, metrics.OutcomeError)
	case msg.IsControl() && msg.Control.Type == core.ControlTypeFullRefresh && msg.Failed():
		r.metrics.RecordWrite(stream, metrics.OutcomeSkipped)
	case msg.Failed():
		r.metrics.RecordWrite(stream, metrics.OutcomeFailed)
	default:
		r.metrics.RecordWrite(stream, metrics.OutcomeSuccess)
	}
	return msg, err
}

// queueFor builds the queue on first use from the stream's limits. The
// queue lives as long as the RateLimiter, or as long as the pool when the
// RateLimiter has one.
func (r *RateLimiter) queueFor(cfg *core.SyncConfig) *clients.RateQueue {
	r.queueMu.Lock()
	defer r.queueMu.Unlock()

	if r.queue != nil {
		return r.queue
	}

	if r.pool != nil {
		r.queue = r.pool.queue(cfg, r.logger)
	} else {
		r.queue = newStreamQueue(cfg, r.logger)
	}
	return r.queue
}

func newStreamQueue(cfg *core.SyncConfig, l *zap.Logger) *clients.RateQueue {
	stream := cfg.Stream.Name
	q := clients.NewRateQueue(
		cfg.Stream.RequestRateLimit,
		cfg.Stream.RateLimitInterval(),
		clients.WithOnLimit(func() {
			l.Info(fmt.Sprintf("Hit the limit for stream %s", stream), zap.String("stream", stream))
		}),
	)

	l.Debug("rate queue created",
		zap.String("stream", stream),
		zap.Int("size", cfg.Stream.RequestRateLimit),
		zap.Duration("interval", cfg.Stream.RateLimitInterval()))
	return q
}

// QueuePool holds one rate queue per destination connector and stream.
// Chains built per run share it, so consecutive runs and concurrent syncs
// writing to the same stream draw from one budget.
type QueuePool struct {
	mu     sync.Mutex
	queues map[string]*clients.RateQueue
}

// NewQueuePool creates an empty pool
func NewQueuePool() *QueuePool {
	return &QueuePool{queues: make(map[string]*clients.RateQueue)}
}

// Len returns the number of queues built so far
func (p *QueuePool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queues)
}

func (p *QueuePool) queue(cfg *core.SyncConfig, l *zap.Logger) *clients.RateQueue {
	key := queueKey(cfg)

	p.mu.Lock()
	defer p.mu.Unlock()
	if q, ok := p.queues[key]; ok {
		return q
	}
	q := newStreamQueue(cfg, l)
	p.queues[key] = q
	return q
}

func queueKey(cfg *core.SyncConfig) string {
	return fmt.Sprintf("%s/%s/%s", cfg.Destination.ConnectorName, cfg.Destination.Name, cfg.Stream.Name)
}

// Queue returns the rate queue, or nil before the first write
func (r *RateLimiter) Queue() *clients.RateQueue {
	r.queueMu.Lock()
	defer r.queueMu.Unlock()
	return r.queue
}
