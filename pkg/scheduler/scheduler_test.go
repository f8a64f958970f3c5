package scheduler

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/syncflow/pkg/errors"
)

func staticSpecs(specs map[string]string) SpecResolver {
	return func(ctx context.Context, syncID string) (string, error) {
		spec, ok := specs[syncID]
		if !ok {
			return "", errors.New(errors.ErrorTypeNotFound, "sync not found")
		}
		return spec, nil
	}
}

func noopTrigger(ctx context.Context, kind WorkflowKind, syncID string) {}

func TestCronScheduler_StartAndTerminate(t *testing.T) {
	s := NewCronScheduler(context.Background(), staticSpecs(map[string]string{"42": "*/5 * * * *"}), noopTrigger, nil)

	id, err := s.StartWorkflow(context.Background(), WorkflowSync, "42")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "sync-42-"), id)

	entries := s.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].WorkflowID)
	assert.Equal(t, "42", entries[0].SyncID)
	assert.Equal(t, "*/5 * * * *", entries[0].Spec)

	current, ok := s.WorkflowFor("42")
	require.True(t, ok)
	assert.Equal(t, id, current)

	require.NoError(t, s.TerminateWorkflow(context.Background(), id))
	assert.Empty(t, s.Entries())

	err = s.TerminateWorkflow(context.Background(), id)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestCronScheduler_RestartReplacesWorkflow(t *testing.T) {
	s := NewCronScheduler(context.Background(), staticSpecs(map[string]string{"1": "0 * * * *"}), noopTrigger, nil)

	first, err := s.StartWorkflow(context.Background(), WorkflowSync, "1")
	require.NoError(t, err)
	second, err := s.StartWorkflow(context.Background(), WorkflowSync, "1")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	entries := s.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, second, entries[0].WorkflowID)
}

func TestCronScheduler_FailedRestartKeepsWorkflow(t *testing.T) {
	specs := map[string]string{"7": "*/10 * * * *"}
	s := NewCronScheduler(context.Background(), staticSpecs(specs), noopTrigger, nil)

	id, err := s.StartWorkflow(context.Background(), WorkflowSync, "7")
	require.NoError(t, err)

	specs["7"] = "every tuesday"
	_, err = s.StartWorkflow(context.Background(), WorkflowSync, "7")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeScheduler))

	current, ok := s.WorkflowFor("7")
	require.True(t, ok)
	assert.Equal(t, id, current)
	entries := s.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "*/10 * * * *", entries[0].Spec)

	specs["7"] = ""
	id, err = s.StartWorkflow(context.Background(), WorkflowSync, "7")
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Empty(t, s.Entries())
}

func TestCronScheduler_ManualSyncSchedulesNothing(t *testing.T) {
	s := NewCronScheduler(context.Background(), staticSpecs(map[string]string{"m": ""}), noopTrigger, nil)

	id, err := s.StartWorkflow(context.Background(), WorkflowSync, "m")
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Empty(t, s.Entries())
}

func TestCronScheduler_Errors(t *testing.T) {
	s := NewCronScheduler(context.Background(), staticSpecs(map[string]string{"bad": "not a cron"}), noopTrigger, nil)

	_, err := s.StartWorkflow(context.Background(), WorkflowSync, "bad")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeScheduler))

	_, err = s.StartWorkflow(context.Background(), WorkflowSync, "missing")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeScheduler))
	assert.Empty(t, s.Entries())
}

func TestCronScheduler_TriggersOnTick(t *testing.T) {
	var fired int32
	trigger := func(ctx context.Context, kind WorkflowKind, syncID string) {
		if kind == WorkflowSync && syncID == "tick" {
			atomic.AddInt32(&fired, 1)
		}
	}
	s := NewCronScheduler(context.Background(), staticSpecs(map[string]string{"tick": "@every 1s"}), trigger, nil)

	_, err := s.StartWorkflow(context.Background(), WorkflowSync, "tick")
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&fired) > 0
	}, 3*time.Second, 50*time.Millisecond)
}
