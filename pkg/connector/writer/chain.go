// Package writer composes the write path of a destination connector.
//
// A destination's Write is wrapped by explicit decorator objects, each
// holding the next Writer:
//
//	RateLimiter -> Fullrefresher -> destination.Write
//
// A call first waits for a rate slot, then clears the destination if a
// full refresh has not cleared it yet, then performs the real write. A rate
// slot is therefore consumed even by calls the Fullrefresher skips.
package writer

import (
	"go.uber.org/zap"

	"github.com/ajitpratap0/syncflow/pkg/connector/core"
	"github.com/ajitpratap0/syncflow/pkg/logger"
	"github.com/ajitpratap0/syncflow/pkg/metrics"
)

// Option configures a decorator
type Option func(*options)

type options struct {
	logger  *zap.Logger
	metrics *metrics.Collector
	queues  *QueuePool
}

// WithLogger sets the logger used by decorators
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics sets the metrics collector used by decorators
func WithMetrics(m *metrics.Collector) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithQueuePool makes RateLimiters take their rate queue from p, so the
// rate budget outlives any single chain
func WithQueuePool(p *QueuePool) Option {
	return func(o *options) {
		o.queues = p
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logger.OrNop(o.logger)
	return o
}

// Decorator wraps a Writer with additional behaviour
type Decorator func(next core.Writer) core.Writer

// Compose applies decorators so that the first one is the outer-most:
// Compose(w, a, b) builds a(b(w)).
func Compose(w core.Writer, decorators ...Decorator) core.Writer {
	for i := len(decorators) - 1; i >= 0; i-- {
		w = decorators[i](w)
	}
	return w
}

// RateLimited returns a Decorator adding a RateLimiter
func RateLimited(opts ...Option) Decorator {
	return func(next core.Writer) core.Writer {
		return NewRateLimiter(next, opts...)
	}
}

// FullRefreshed returns a Decorator adding a Fullrefresher clearing through c
func FullRefreshed(c core.Clearer, opts ...Option) Decorator {
	return func(next core.Writer) core.Writer {
		return NewFullrefresher(next, c, opts...)
	}
}

// Chain builds the standard write path for host:
// RateLimiter, then Fullrefresher, then host.Write.
func Chain(host core.Destination, opts ...Option) core.Writer {
	return Compose(host,
		RateLimited(opts...),
		FullRefreshed(host, opts...),
	)
}
