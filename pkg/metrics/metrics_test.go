package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordWrite("users", OutcomeSuccess)
	c.RecordWrite("users", OutcomeSuccess)
	c.RecordWrite("users", OutcomeSkipped)
	c.RecordRateLimitWait("users", 150*time.Millisecond)
	c.RecordClear("users", "succeeded")
	c.RecordTransition("sync_run", "complete", "success")
	c.AddRunRows("successful_rows", 42)
	c.AddRunRows("failed_rows", 0)
	c.RecordReportedError("scheduler")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.writes.WithLabelValues("users", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.writes.WithLabelValues("users", OutcomeSkipped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rateLimitWaits.WithLabelValues("users")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.clears.WithLabelValues("users", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("sync_run", "complete", "success")))
	assert.Equal(t, 42.0, testutil.ToFloat64(c.runRows.WithLabelValues("successful_rows")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.runRows.WithLabelValues("failed_rows")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.reportedErrors.WithLabelValues("scheduler")))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordWrite("users", OutcomeSuccess)
		c.RecordRateLimitWait("users", time.Second)
		c.RecordClear("users", "failed")
		c.RecordTransition("sync", "fail", "failed")
		c.AddRunRows("total_rows", 1)
		c.RecordReportedError("notifier")
	})
}

func TestTimer(t *testing.T) {
	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, timer.Stop(), 5*time.Millisecond)
}
