package syncjob

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/syncflow/pkg/connector/core"
	"github.com/ajitpratap0/syncflow/pkg/errors"
	"github.com/ajitpratap0/syncflow/pkg/logger"
	"github.com/ajitpratap0/syncflow/pkg/notify"
	"github.com/ajitpratap0/syncflow/pkg/scheduler"
)

type fakeScheduler struct {
	mu         sync.Mutex
	started    []string
	terminated []string
	startErr   error
	stopErr    error
	seq        int
}

func (f *fakeScheduler) StartWorkflow(ctx context.Context, kind scheduler.WorkflowKind, syncID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, syncID)
	if f.startErr != nil {
		return "", f.startErr
	}
	f.seq++
	return fmt.Sprintf("%s-%s-%d", kind, syncID, f.seq), nil
}

func (f *fakeScheduler) TerminateWorkflow(ctx context.Context, workflowID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = append(f.terminated, workflowID)
	return f.stopErr
}

type reported struct {
	component string
	err       error
}

type recordingReporter struct {
	mu      sync.Mutex
	reports []reported
}

func (r *recordingReporter) Report(ctx context.Context, component string, err error, fields ...zap.Field) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, reported{component: component, err: err})
}

func (r *recordingReporter) count(component string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rep := range r.reports {
		if rep.component == component {
			n++
		}
	}
	return n
}

type fixture struct {
	svc       *Service
	scheduler *fakeScheduler
	reporter  *recordingReporter
	notices   []notify.Notice
	notifyErr error
}

func newFixture() *fixture {
	f := &fixture{scheduler: &fakeScheduler{}, reporter: &recordingReporter{}}
	f.svc = NewService(NewMemoryRepository(),
		WithScheduler(f.scheduler),
		WithReporter(f.reporter),
		WithNotifier(notify.NotifierFunc(func(ctx context.Context, n notify.Notice) error {
			f.notices = append(f.notices, n)
			return f.notifyErr
		})),
		WithClock(func() time.Time { return testNow }),
	)
	return f
}

func newIntervalSync() *Sync {
	return &Sync{
		SourceID:         "src",
		DestinationID:    "dst",
		ModelID:          "model",
		StreamName:       "users",
		ScheduleType:     ScheduleTypeInterval,
		SyncInterval:     10,
		SyncIntervalUnit: IntervalUnitMinutes,
		SyncMode:         core.SyncModeIncremental,
		Recipients:       []string{"ops@example.com"},
	}
}

func TestService_CreateSyncSchedules(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	s, err := f.svc.CreateSync(ctx, newIntervalSync())
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, SyncStatusPending, s.Status())
	assert.Equal(t, []string{s.ID}, f.scheduler.started)
	assert.Equal(t, "sync-"+s.ID+"-1", s.WorkflowID)
	assert.Equal(t, testNow, s.CreatedAt)
}

func TestService_CreateSyncRejectsInvalid(t *testing.T) {
	f := newFixture()
	s := newIntervalSync()
	s.SyncInterval = 0

	_, err := f.svc.CreateSync(context.Background(), s)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	assert.Empty(t, f.scheduler.started)
}

func TestService_SchedulerFailuresAreReportedNotReturned(t *testing.T) {
	f := newFixture()
	f.scheduler.startErr = errors.New(errors.ErrorTypeScheduler, "engine unavailable")
	f.scheduler.stopErr = errors.New(errors.ErrorTypeScheduler, "engine unavailable")
	ctx := context.Background()

	s, err := f.svc.CreateSync(ctx, newIntervalSync())
	require.NoError(t, err)
	assert.Empty(t, s.WorkflowID)
	assert.Equal(t, 1, f.reporter.count(componentScheduler))

	_, err = f.svc.UpdateSync(ctx, s.ID, func(s *Sync) error {
		s.SyncInterval = 30
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, f.reporter.count(componentScheduler))

	s.WorkflowID = "wf-1"
	_, err = f.svc.FireSync(ctx, s.ID, SyncEventDisable)
	require.NoError(t, err)
	assert.Equal(t, SyncStatusDisabled, s.Status())
	assert.Equal(t, 3, f.reporter.count(componentScheduler))

	_, err = f.svc.FireSync(ctx, s.ID, SyncEventEnable)
	require.NoError(t, err)
	assert.Equal(t, 4, f.reporter.count(componentScheduler))

	require.NoError(t, f.svc.DiscardSync(ctx, s.ID))
	assert.Equal(t, 5, f.reporter.count(componentScheduler))
}

func TestService_UpdateSyncReschedulesOnScheduleChange(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	s, err := f.svc.CreateSync(ctx, newIntervalSync())
	require.NoError(t, err)

	_, err = f.svc.UpdateSync(ctx, s.ID, func(s *Sync) error {
		s.CursorField = "updated_at"
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, f.scheduler.started, 1, "unrelated change does not reschedule")

	_, err = f.svc.UpdateSync(ctx, s.ID, func(s *Sync) error {
		s.ScheduleType = ScheduleTypeCronExpression
		s.CronExpression = "0 3 * * *"
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, f.scheduler.started, 2)
	assert.Equal(t, "sync-"+s.ID+"-2", s.WorkflowID)
}

func TestService_UpdateSyncStatusSideEffects(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	s, err := f.svc.CreateSync(ctx, newIntervalSync())
	require.NoError(t, err)
	workflowID := s.WorkflowID

	_, err = f.svc.UpdateSync(ctx, s.ID, func(s *Sync) error {
		_, _, err := s.Fire(SyncEventDisable)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []string{workflowID}, f.scheduler.terminated)
	assert.Empty(t, s.WorkflowID)

	_, err = f.svc.UpdateSync(ctx, s.ID, func(s *Sync) error {
		_, _, err := s.Fire(SyncEventEnable)
		return err
	})
	require.NoError(t, err)
	assert.Len(t, f.scheduler.started, 2)
	assert.NotEmpty(t, s.WorkflowID)
}

func TestService_UpdateSyncRollsBackOnInvalidChange(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	s, err := f.svc.CreateSync(ctx, newIntervalSync())
	require.NoError(t, err)
	interval := s.SyncInterval
	workflowID := s.WorkflowID

	_, err = f.svc.UpdateSync(ctx, s.ID, func(s *Sync) error {
		s.SyncInterval = -3
		_, _, err := s.Fire(SyncEventDisable)
		return err
	})
	require.Error(t, err)

	stored, err := f.svc.GetSync(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, interval, stored.SyncInterval)
	assert.Equal(t, SyncStatusPending, stored.Status())
	assert.Equal(t, workflowID, stored.WorkflowID)
	assert.Empty(t, f.scheduler.terminated)

	_, err = f.svc.UpdateSync(ctx, s.ID, func(s *Sync) error {
		s.Name = "renamed"
		return errors.New(errors.ErrorTypeValidation, "rejected")
	})
	require.Error(t, err)
	assert.NotEqual(t, "renamed", stored.Name)
}

func TestService_LogsCarryContextFields(t *testing.T) {
	obs, logs := observer.New(zap.InfoLevel)
	f := newFixture()
	WithLogger(zap.New(obs))(f.svc)

	ctx := context.WithValue(context.Background(), logger.ConnectorKey, "postgresql")
	s, err := f.svc.CreateSync(ctx, newIntervalSync())
	require.NoError(t, err)

	ctx = context.WithValue(ctx, logger.SyncIDKey, "stale")
	_, err = f.svc.FireSync(ctx, s.ID, SyncEventDisable)
	require.NoError(t, err)

	entries := logs.FilterMessage("sync transitioned").All()
	require.Len(t, entries, 1)
	var syncIDs []string
	for _, field := range entries[0].Context {
		if field.Key == "sync_id" {
			syncIDs = append(syncIDs, field.String)
		}
	}
	assert.Equal(t, []string{s.ID}, syncIDs)
	assert.Equal(t, "postgresql", entries[0].ContextMap()["connector"])
}

func TestService_FireSyncInvalidTransition(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	s, err := f.svc.CreateSync(ctx, newIntervalSync())
	require.NoError(t, err)

	_, err = f.svc.FireSync(ctx, s.ID, SyncEventDisable)
	require.NoError(t, err)

	_, err = f.svc.FireSync(ctx, s.ID, SyncEventComplete)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTransition))
	assert.Equal(t, SyncStatusDisabled, s.Status())
}

func TestService_DiscardCancelsRuns(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	s, err := f.svc.CreateSync(ctx, newIntervalSync())
	require.NoError(t, err)
	workflowID := s.WorkflowID

	active, err := f.svc.CreateRun(ctx, s.ID, "")
	require.NoError(t, err)
	_, err = f.svc.FireRun(ctx, active.ID, RunEventStart)
	require.NoError(t, err)

	done, err := f.svc.CreateRun(ctx, s.ID, RunTypeTest)
	require.NoError(t, err)
	for _, e := range []RunEvent{RunEventStart, RunEventQuery, RunEventQueue, RunEventProgress, RunEventComplete} {
		_, err = f.svc.FireRun(ctx, done.ID, e)
		require.NoError(t, err)
	}

	require.NoError(t, f.svc.DiscardSync(ctx, s.ID))
	assert.True(t, s.Discarded())
	assert.Equal(t, RunStatusCanceled, active.Status())
	assert.Equal(t, RunStatusSuccess, done.Status())
	assert.Equal(t, []string{workflowID}, f.scheduler.terminated)

	_, err = f.svc.CreateRun(ctx, s.ID, RunTypeGeneral)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))

	syncs, err := f.svc.ListSyncs(ctx)
	require.NoError(t, err)
	assert.Empty(t, syncs)
}

func TestService_CreateRunSnapshotsSync(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	s, err := f.svc.CreateSync(ctx, newIntervalSync())
	require.NoError(t, err)

	run, err := f.svc.CreateRun(ctx, s.ID, "")
	require.NoError(t, err)
	assert.Equal(t, RunTypeGeneral, run.Type)
	assert.Equal(t, "src", run.SourceID)
	assert.Equal(t, "dst", run.DestinationID)
	assert.Equal(t, "model", run.ModelID)
	assert.Equal(t, RunStatusPending, run.Status())
	assert.Equal(t, RunCounters{}, run.Counters())

	runs, err := f.svc.Runs(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestService_CompletedRunCompletesSync(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	s, err := f.svc.CreateSync(ctx, newIntervalSync())
	require.NoError(t, err)
	run, err := f.svc.CreateRun(ctx, s.ID, RunTypeGeneral)
	require.NoError(t, err)

	for _, e := range []RunEvent{RunEventStart, RunEventQuery, RunEventQueue, RunEventProgress, RunEventComplete} {
		_, err = f.svc.FireRun(ctx, run.ID, e)
		require.NoError(t, err)
	}

	assert.Equal(t, RunStatusSuccess, run.Status())
	assert.Equal(t, SyncStatusHealthy, s.Status())
	assert.Empty(t, f.notices)
}

func TestService_CompletedRunOnDisabledSyncIsReported(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	s, err := f.svc.CreateSync(ctx, newIntervalSync())
	require.NoError(t, err)
	run, err := f.svc.CreateRun(ctx, s.ID, RunTypeGeneral)
	require.NoError(t, err)
	for _, e := range []RunEvent{RunEventStart, RunEventQuery, RunEventQueue, RunEventProgress} {
		_, err = f.svc.FireRun(ctx, run.ID, e)
		require.NoError(t, err)
	}
	_, err = f.svc.FireSync(ctx, s.ID, SyncEventDisable)
	require.NoError(t, err)

	_, err = f.svc.FireRun(ctx, run.ID, RunEventComplete)
	require.NoError(t, err)
	assert.Equal(t, RunStatusSuccess, run.Status())
	assert.Equal(t, SyncStatusDisabled, s.Status())
	assert.Equal(t, 1, f.reporter.count(componentSync))
}

func TestService_AbortNotifiesAndFailsSync(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	s, err := f.svc.CreateSync(ctx, newIntervalSync())
	require.NoError(t, err)
	run, err := f.svc.CreateRun(ctx, s.ID, RunTypeGeneral)
	require.NoError(t, err)

	_, err = f.svc.FireRun(ctx, run.ID, RunEventStart)
	require.NoError(t, err)
	run.SetError("source unreachable")
	_, err = f.svc.FireRun(ctx, run.ID, RunEventAbort)
	require.NoError(t, err)

	assert.Equal(t, RunStatusFailed, run.Status())
	assert.Equal(t, SyncStatusFailed, s.Status())
	require.Len(t, f.notices, 1)
	assert.Equal(t, notify.Notice{
		SyncID:     s.ID,
		SyncRunID:  run.ID,
		Status:     "failed",
		Error:      "source unreachable",
		Recipients: []string{"ops@example.com"},
		OccurredAt: testNow,
	}, f.notices[0])

	_, err = f.svc.FireRun(ctx, run.ID, RunEventAbort)
	require.NoError(t, err, "abort is allowed from failed")
	assert.Len(t, f.notices, 1, "self loop does not notify again")
}

func TestService_NotifierErrorDoesNotFailAbort(t *testing.T) {
	f := newFixture()
	f.notifyErr = errors.New(errors.ErrorTypeNotification, "smtp down")
	ctx := context.Background()
	s, err := f.svc.CreateSync(ctx, newIntervalSync())
	require.NoError(t, err)
	run, err := f.svc.CreateRun(ctx, s.ID, RunTypeGeneral)
	require.NoError(t, err)

	_, err = f.svc.FireRun(ctx, run.ID, RunEventAbort)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, run.Status())
	assert.Equal(t, 1, f.reporter.count(componentNotifier))
	assert.Equal(t, SyncStatusFailed, s.Status())
}

func TestService_AddRunCounters(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	s, err := f.svc.CreateSync(ctx, newIntervalSync())
	require.NoError(t, err)
	run, err := f.svc.CreateRun(ctx, s.ID, RunTypeGeneral)
	require.NoError(t, err)

	require.NoError(t, f.svc.AddRunCounters(ctx, run, RunCounters{TotalRows: 3, SuccessfulRows: 3}))
	assert.Error(t, f.svc.AddRunCounters(ctx, run, RunCounters{TotalRows: -1}))
	assert.Equal(t, RunCounters{TotalRows: 3, SuccessfulRows: 3}, run.Counters())
}

func TestService_ScheduleSpec(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	s, err := f.svc.CreateSync(ctx, newIntervalSync())
	require.NoError(t, err)

	spec, err := f.svc.ScheduleSpec(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "*/10 * * * *", spec)

	_, err = f.svc.FireSync(ctx, s.ID, SyncEventDisable)
	require.NoError(t, err)
	spec, err = f.svc.ScheduleSpec(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, spec)

	_, err = f.svc.ScheduleSpec(ctx, "missing")
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}
