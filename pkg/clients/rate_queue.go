// Package clients provides the rate queue that paces outbound calls to
// destinations, and the circuit breaker guarding notification channels.
package clients

import (
	"context"
	"sync"
	"time"

	"github.com/ajitpratap0/syncflow/pkg/errors"
)

// RateQueue admits at most size pushes within any interval-long window.
// It keeps the timestamps of the last size admissions (a sliding-window
// log); a push is admitted once the oldest of them is at least interval
// old. Admission check and record happen under one lock, so a queue can
// be shared by concurrent writers.
type RateQueue struct {
	size     int
	interval time.Duration
	onLimit  func()
	now      func() time.Time

	admissions []time.Time // ring of the last size admission times
	next       int         // index of the oldest admission once the ring is full

	// Stats
	admitted  int64
	waited    int64
	totalWait time.Duration

	mu sync.Mutex
}

// RateQueueOption configures a RateQueue
type RateQueueOption func(*RateQueue)

// WithOnLimit registers fn to be called, once per push, whenever a push
// has to wait for a slot.
func WithOnLimit(fn func()) RateQueueOption {
	return func(q *RateQueue) {
		q.onLimit = fn
	}
}

// withClock overrides the time source; used by tests.
func withClock(now func() time.Time) RateQueueOption {
	return func(q *RateQueue) {
		q.now = now
	}
}

// RateQueueStats provides statistics about queue usage
type RateQueueStats struct {
	Size            int           `json:"size"`
	Interval        time.Duration `json:"interval"`
	Admitted        int64         `json:"admitted"`
	Waited          int64         `json:"waited"`
	AverageWaitTime time.Duration `json:"average_wait_time"`
}

// NewRateQueue creates a queue admitting size pushes per interval. A size
// or interval that is not positive disables pacing.
func NewRateQueue(size int, interval time.Duration, opts ...RateQueueOption) *RateQueue {
	q := &RateQueue{
		size:     size,
		interval: interval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.limited() {
		q.admissions = make([]time.Time, 0, size)
	}
	return q
}

// Push blocks until a slot is free and then takes it. It returns the time
// spent waiting. The only error is a cancelled ctx while waiting.
func (q *RateQueue) Push(ctx context.Context) (time.Duration, error) {
	if !q.limited() {
		q.mu.Lock()
		q.admitted++
		q.mu.Unlock()
		return 0, nil
	}

	start := q.now()
	notified := false

	for {
		q.mu.Lock()
		now := q.now()
		wait := q.reserve(now)
		if wait <= 0 {
			q.admitted++
			waited := now.Sub(start)
			if notified {
				q.waited++
				q.totalWait += waited
			}
			q.mu.Unlock()
			if !notified {
				return 0, nil
			}
			return waited, nil
		}
		q.mu.Unlock()

		if !notified {
			notified = true
			if q.onLimit != nil {
				q.onLimit()
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return q.now().Sub(start), errors.Wrap(ctx.Err(), errors.ErrorTypeRateLimit, "rate queue wait aborted").
				WithDetail("size", q.size).
				WithDetail("interval", q.interval.String())
		}
	}
}

// reserve records an admission at now and returns 0, or returns how long
// to wait before the oldest admission leaves the window. Caller holds mu.
func (q *RateQueue) reserve(now time.Time) time.Duration {
	if len(q.admissions) < q.size {
		q.admissions = append(q.admissions, now)
		return 0
	}

	oldest := q.admissions[q.next]
	if elapsed := now.Sub(oldest); elapsed < q.interval {
		return q.interval - elapsed
	}

	q.admissions[q.next] = now
	q.next = (q.next + 1) % q.size
	return 0
}

// Available reports how many pushes would be admitted right now without
// waiting.
func (q *RateQueue) Available() int {
	if !q.limited() {
		return -1
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	free := q.size - len(q.admissions)
	for _, t := range q.admissions {
		if now.Sub(t) >= q.interval {
			free++
		}
	}
	return free
}

// Size returns the queue capacity per interval
func (q *RateQueue) Size() int {
	return q.size
}

// Interval returns the window length
func (q *RateQueue) Interval() time.Duration {
	return q.interval
}

// Stats returns queue statistics
func (q *RateQueue) Stats() RateQueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	avgWait := time.Duration(0)
	if q.waited > 0 {
		avgWait = q.totalWait / time.Duration(q.waited)
	}

	return RateQueueStats{
		Size:            q.size,
		Interval:        q.interval,
		Admitted:        q.admitted,
		Waited:          q.waited,
		AverageWaitTime: avgWait,
	}
}

func (q *RateQueue) limited() bool {
	return q.size > 0 && q.interval > 0
}
