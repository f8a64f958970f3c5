package scheduler

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/syncflow/pkg/metrics"
)

func TestLogReporter_Report(t *testing.T) {
	obs, logs := observer.New(zap.ErrorLevel)
	reg := prometheus.NewRegistry()
	r := NewLogReporter(zap.New(obs), metrics.NewCollector(reg))

	r.Report(context.Background(), "scheduler", assert.AnError, zap.String("sync_id", "7"))
	r.Report(context.Background(), "scheduler", nil)

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "7", fields["sync_id"])
	assert.Equal(t, "scheduler", fields["source"])

	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() == "syncflow_errors_reported_total" {
			for _, m := range mf.GetMetric() {
				total += m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 1.0, total)
}
