// Package metrics provides Prometheus instrumentation for the sync
// execution core: write dispatch, rate-limit waits, full-refresh clears,
// state transitions, run row counters and reported errors.
//
// # Basic Usage
//
//	collector := metrics.NewCollector(prometheus.NewRegistry())
//	collector.RecordWrite("users", metrics.OutcomeSuccess)
//	collector.RecordRateLimitWait("users", 250*time.Millisecond)
//
// A nil *Collector is valid: every method is a no-op, so components can
// be built without metrics in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "syncflow"

// Write outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Collector holds the metric vectors used by the sync core. Each process
// normally creates one collector and injects it into components.
type Collector struct {
	writes            *prometheus.CounterVec   // writes dispatched per stream
	rateLimitWaits    *prometheus.CounterVec   // pushes that had to wait
	rateLimitWaitTime *prometheus.HistogramVec // time spent waiting for a slot
	clears            *prometheus.CounterVec   // clear_all_records calls
	transitions       *prometheus.CounterVec   // state machine transitions
	runRows           *prometheus.CounterVec   // sync run counter increments
	reportedErrors    *prometheus.CounterVec   // errors handed to the reporter
}

// NewCollector registers the sync-core metrics with reg. A nil reg uses
// the default Prometheus registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		writes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "writer",
				Name:      "writes_total",
				Help:      "Total number of write calls dispatched to destinations",
			},
			[]string{"stream", "outcome"},
		),
		rateLimitWaits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "writer",
				Name:      "rate_limit_waits_total",
				Help:      "Total number of write calls that waited for a rate limit slot",
			},
			[]string{"stream"},
		),
		rateLimitWaitTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "writer",
				Name:      "rate_limit_wait_seconds",
				Help:      "Time spent waiting for a rate limit slot",
				Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 300},
			},
			[]string{"stream"},
		),
		clears: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "writer",
				Name:      "clear_all_records_total",
				Help:      "Total number of full refresh clear calls by status",
			},
			[]string{"stream", "status"},
		),
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "state",
				Name:      "transitions_total",
				Help:      "Total number of state machine transitions",
			},
			[]string{"machine", "event", "to"},
		),
		runRows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sync_run",
				Name:      "rows_total",
				Help:      "Rows counted by sync runs, by counter",
			},
			[]string{"counter"},
		),
		reportedErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "errors",
				Name:      "reported_total",
				Help:      "Errors recovered locally and handed to the error reporter",
			},
			[]string{"component"},
		),
	}
}

// RecordWrite counts one write call with its outcome
func (c *Collector) RecordWrite(stream, outcome string) {
	if c == nil {
		return
	}
	c.writes.WithLabelValues(stream, outcome).Inc()
}

// RecordRateLimitWait counts a blocked push and observes how long it waited
func (c *Collector) RecordRateLimitWait(stream string, waited time.Duration) {
	if c == nil {
		return
	}
	c.rateLimitWaits.WithLabelValues(stream).Inc()
	c.rateLimitWaitTime.WithLabelValues(stream).Observe(waited.Seconds())
}

// RecordClear counts a clear_all_records call
func (c *Collector) RecordClear(stream, status string) {
	if c == nil {
		return
	}
	c.clears.WithLabelValues(stream, status).Inc()
}

// RecordTransition counts a state machine transition
func (c *Collector) RecordTransition(machine, event, to string) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(machine, event, to).Inc()
}

// AddRunRows adds n to the named sync run counter
func (c *Collector) AddRunRows(counter string, n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.runRows.WithLabelValues(counter).Add(float64(n))
}

// RecordReportedError counts an error handed to the reporter
func (c *Collector) RecordReportedError(component string) {
	if c == nil {
		return
	}
	c.reportedErrors.WithLabelValues(component).Inc()
}

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration since creation.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
