package syncjob

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/syncflow/pkg/errors"
	"github.com/ajitpratap0/syncflow/pkg/logger"
	"github.com/ajitpratap0/syncflow/pkg/metrics"
	"github.com/ajitpratap0/syncflow/pkg/notify"
	"github.com/ajitpratap0/syncflow/pkg/scheduler"
)

// Components passed to the error reporter
const (
	componentScheduler = "scheduler"
	componentNotifier  = "notifier"
	componentSync      = "sync"
)

// Service applies Sync and SyncRun transitions and their side effects.
// Scheduler, notifier and owning-sync failures are logged and reported
// but never fail the operation that caused them.
type Service struct {
	repo      Repository
	scheduler scheduler.Scheduler
	reporter  scheduler.ErrorReporter
	notifier  notify.Notifier
	metrics   *metrics.Collector
	logger    *zap.Logger
	now       func() time.Time
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithScheduler sets the workflow scheduler
func WithScheduler(s scheduler.Scheduler) ServiceOption {
	return func(svc *Service) {
		svc.scheduler = s
	}
}

// WithReporter sets the error reporter
func WithReporter(r scheduler.ErrorReporter) ServiceOption {
	return func(svc *Service) {
		svc.reporter = r
	}
}

// WithNotifier sets the failure notifier
func WithNotifier(n notify.Notifier) ServiceOption {
	return func(svc *Service) {
		svc.notifier = n
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(m *metrics.Collector) ServiceOption {
	return func(svc *Service) {
		svc.metrics = m
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) ServiceOption {
	return func(svc *Service) {
		svc.logger = l
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) ServiceOption {
	return func(svc *Service) {
		svc.now = now
	}
}

// NewService creates a Service over repo
func NewService(repo Repository, opts ...ServiceOption) *Service {
	svc := &Service{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	svc.logger = logger.OrNop(svc.logger).With(zap.String("component", "sync_service"))
	if svc.reporter == nil {
		svc.reporter = scheduler.NewLogReporter(svc.logger, svc.metrics)
	}
	return svc
}

// CreateSync validates, stores and schedules s
func (svc *Service) CreateSync(ctx context.Context, s *Sync) (*Sync, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := svc.now()
	s.CreatedAt = now
	s.UpdatedAt = now

	if err := svc.repo.SaveSync(ctx, s); err != nil {
		return nil, err
	}
	svc.logFor(ctx, s.ID, "").Info("sync created", zap.String("schedule_type", string(s.ScheduleType)))

	svc.schedule(ctx, s)
	return s, nil
}

// GetSync loads a sync
func (svc *Service) GetSync(ctx context.Context, id string) (*Sync, error) {
	return svc.repo.GetSync(ctx, id)
}

// ListSyncs returns the syncs that have not been discarded
func (svc *Service) ListSyncs(ctx context.Context) ([]*Sync, error) {
	all, err := svc.repo.ListSyncs(ctx)
	if err != nil {
		return nil, err
	}
	kept := all[:0:0]
	for _, s := range all {
		if !s.Discarded() {
			kept = append(kept, s)
		}
	}
	return kept, nil
}

// UpdateSync applies mutate to a copy of the sync and stores the result
// once it validates; on error the stored sync is left untouched. A change
// of the schedule, or a status change into pending, reschedules the
// workflow; a status change into disabled terminates it.
func (svc *Service) UpdateSync(ctx context.Context, id string, mutate func(*Sync) error) (*Sync, error) {
	s, err := svc.activeSync(ctx, id)
	if err != nil {
		return nil, err
	}

	beforeKey := s.scheduleKey()
	beforeStatus := s.Status()

	draft := s.clone()
	if err := mutate(draft); err != nil {
		return nil, err
	}
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	draft.ID = s.ID
	draft.UpdatedAt = svc.now()
	s.commit(draft)
	if err := svc.repo.SaveSync(ctx, s); err != nil {
		return nil, err
	}

	afterStatus := s.Status()
	switch {
	case afterStatus != beforeStatus && afterStatus == SyncStatusDisabled:
		svc.terminate(ctx, s)
	case afterStatus != beforeStatus && afterStatus == SyncStatusPending,
		s.scheduleKey() != beforeKey && afterStatus != SyncStatusDisabled:
		svc.schedule(ctx, s)
	}
	return s, nil
}

// FireSync applies event to the sync and runs the side effects of the
// resulting status change.
func (svc *Service) FireSync(ctx context.Context, id string, event SyncEvent) (*Sync, error) {
	s, err := svc.activeSync(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := svc.fireSync(ctx, s, event); err != nil {
		return nil, err
	}
	return s, nil
}

func (svc *Service) fireSync(ctx context.Context, s *Sync, event SyncEvent) error {
	from, to, err := s.Fire(event)
	if err != nil {
		return err
	}
	svc.metrics.RecordTransition(SyncMachine.Name(), string(event), string(to))
	s.UpdatedAt = svc.now()
	if err := svc.repo.SaveSync(ctx, s); err != nil {
		return err
	}

	svc.logFor(ctx, s.ID, "").Info("sync transitioned",
		zap.String("event", string(event)),
		zap.String("from", string(from)),
		zap.String("to", string(to)))

	if from != to {
		switch to {
		case SyncStatusDisabled:
			svc.terminate(ctx, s)
		case SyncStatusPending:
			svc.schedule(ctx, s)
		}
	}
	return nil
}

// DiscardSync soft deletes the sync, terminates its workflow and cancels
// its unfinished runs.
func (svc *Service) DiscardSync(ctx context.Context, id string) error {
	s, err := svc.activeSync(ctx, id)
	if err != nil {
		return err
	}

	now := svc.now()
	s.DiscardedAt = &now
	s.UpdatedAt = now
	if err := svc.repo.SaveSync(ctx, s); err != nil {
		return err
	}
	svc.terminate(ctx, s)

	runs, err := svc.repo.ListRuns(ctx, id)
	if err != nil {
		return err
	}
	for _, run := range runs {
		if !run.Can(RunEventCancel) {
			continue
		}
		if _, err := svc.fireRun(ctx, run, RunEventCancel); err != nil {
			return err
		}
	}

	svc.logFor(ctx, id, "").Info("sync discarded", zap.Int("runs", len(runs)))
	return nil
}

// CreateRun creates a pending run of the sync
func (svc *Service) CreateRun(ctx context.Context, syncID string, runType RunType) (*SyncRun, error) {
	s, err := svc.activeSync(ctx, syncID)
	if err != nil {
		return nil, err
	}
	if runType == "" {
		runType = RunTypeGeneral
	}

	run := &SyncRun{
		ID:            uuid.NewString(),
		SyncID:        s.ID,
		SourceID:      s.SourceID,
		DestinationID: s.DestinationID,
		ModelID:       s.ModelID,
		Type:          runType,
		CreatedAt:     svc.now(),
	}
	if err := svc.repo.SaveRun(ctx, run); err != nil {
		return nil, err
	}
	svc.logFor(ctx, s.ID, run.ID).Info("sync run created", zap.String("type", string(runType)))
	return run, nil
}

// GetRun loads a run
func (svc *Service) GetRun(ctx context.Context, id string) (*SyncRun, error) {
	return svc.repo.GetRun(ctx, id)
}

// Runs lists the runs of a sync in creation order
func (svc *Service) Runs(ctx context.Context, syncID string) ([]*SyncRun, error) {
	return svc.repo.ListRuns(ctx, syncID)
}

// FireRun applies event to the run. Completing a run completes the owning
// sync; a run newly failed sends a notice and fails the owning sync when
// the sync allows it.
func (svc *Service) FireRun(ctx context.Context, runID string, event RunEvent) (*SyncRun, error) {
	run, err := svc.repo.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if _, err := svc.fireRun(ctx, run, event); err != nil {
		return nil, err
	}
	return run, nil
}

func (svc *Service) fireRun(ctx context.Context, run *SyncRun, event RunEvent) (Transition, error) {
	tr, err := run.Fire(event, svc.now())
	if err != nil {
		return tr, err
	}
	svc.metrics.RecordTransition(RunMachine.Name(), string(event), string(tr.To))
	if err := svc.repo.SaveRun(ctx, run); err != nil {
		return tr, err
	}

	svc.logFor(ctx, run.SyncID, run.ID).Info("sync run transitioned",
		zap.String("event", string(event)),
		zap.String("from", string(tr.From)),
		zap.String("to", string(tr.To)))

	if tr.From == tr.To {
		return tr, nil
	}
	switch tr.To {
	case RunStatusSuccess:
		svc.afterRunCompleted(ctx, run)
	case RunStatusFailed:
		svc.afterRunFailed(ctx, run)
	}
	return tr, nil
}

func (svc *Service) afterRunCompleted(ctx context.Context, run *SyncRun) {
	s, err := svc.repo.GetSync(ctx, run.SyncID)
	if err != nil {
		svc.report(ctx, componentSync, err, run)
		return
	}
	if err := svc.fireSync(ctx, s, SyncEventComplete); err != nil {
		svc.report(ctx, componentSync, err, run)
	}
}

func (svc *Service) afterRunFailed(ctx context.Context, run *SyncRun) {
	s, err := svc.repo.GetSync(ctx, run.SyncID)
	if err != nil {
		svc.report(ctx, componentSync, err, run)
		return
	}

	if svc.notifier != nil {
		notice := notify.Notice{
			SyncID:     run.SyncID,
			SyncRunID:  run.ID,
			Status:     string(RunStatusFailed),
			Error:      run.LastError(),
			Recipients: s.Recipients,
			OccurredAt: svc.now(),
		}
		if err := svc.notifier.Notify(ctx, notice); err != nil {
			svc.report(ctx, componentNotifier, err, run)
		}
	}

	if s.Can(SyncEventFail) {
		if err := svc.fireSync(ctx, s, SyncEventFail); err != nil {
			svc.report(ctx, componentSync, err, run)
		}
	}
}

// AddRunCounters increments the counters of a run and stores it
func (svc *Service) AddRunCounters(ctx context.Context, run *SyncRun, delta RunCounters) error {
	if err := run.AddCounters(delta); err != nil {
		return err
	}
	svc.metrics.AddRunRows("total_query_rows", delta.TotalQueryRows)
	svc.metrics.AddRunRows("total_rows", delta.TotalRows)
	svc.metrics.AddRunRows("successful_rows", delta.SuccessfulRows)
	svc.metrics.AddRunRows("failed_rows", delta.FailedRows)
	return svc.repo.SaveRun(ctx, run)
}

// ScheduleSpec returns the cron spec of a sync; it satisfies
// scheduler.SpecResolver. Disabled and discarded syncs are not scheduled.
func (svc *Service) ScheduleSpec(ctx context.Context, syncID string) (string, error) {
	s, err := svc.repo.GetSync(ctx, syncID)
	if err != nil {
		return "", err
	}
	if s.Discarded() || s.Status() == SyncStatusDisabled {
		return "", nil
	}
	return s.ScheduleCronExpression()
}

func (svc *Service) activeSync(ctx context.Context, id string) (*Sync, error) {
	s, err := svc.repo.GetSync(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Discarded() {
		return nil, errors.New(errors.ErrorTypeNotFound, "sync has been discarded").WithDetail("sync_id", id)
	}
	return s, nil
}

func (svc *Service) schedule(ctx context.Context, s *Sync) {
	if svc.scheduler == nil {
		return
	}
	workflowID, err := svc.scheduler.StartWorkflow(ctx, scheduler.WorkflowSync, s.ID)
	if err != nil {
		svc.reporter.Report(ctx, componentScheduler, err, zap.String("sync_id", s.ID), zap.String("operation", "start_workflow"))
		return
	}
	s.WorkflowID = workflowID
	if err := svc.repo.SaveSync(ctx, s); err != nil {
		svc.reporter.Report(ctx, componentScheduler, err, zap.String("sync_id", s.ID))
	}
}

func (svc *Service) terminate(ctx context.Context, s *Sync) {
	if svc.scheduler == nil || s.WorkflowID == "" {
		return
	}
	if err := svc.scheduler.TerminateWorkflow(ctx, s.WorkflowID); err != nil {
		svc.reporter.Report(ctx, componentScheduler, err,
			zap.String("sync_id", s.ID),
			zap.String("workflow_id", s.WorkflowID),
			zap.String("operation", "terminate_workflow"))
		return
	}
	s.WorkflowID = ""
	if err := svc.repo.SaveSync(ctx, s); err != nil {
		svc.reporter.Report(ctx, componentScheduler, err, zap.String("sync_id", s.ID))
	}
}

func (svc *Service) report(ctx context.Context, component string, err error, run *SyncRun) {
	svc.reporter.Report(ctx, component, err,
		zap.String("sync_id", run.SyncID),
		zap.String("sync_run_id", run.ID))
}

func (svc *Service) logFor(ctx context.Context, syncID, runID string) *zap.Logger {
	ctx = context.WithValue(ctx, logger.SyncIDKey, syncID)
	if runID != "" {
		ctx = context.WithValue(ctx, logger.SyncRunIDKey, runID)
	}
	return logger.WithContext(ctx, svc.logger)
}
