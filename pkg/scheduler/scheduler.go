// Package scheduler starts and stops the recurring workflows that trigger
// sync runs, and reports errors that callers recover from locally.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ajitpratap0/syncflow/pkg/errors"
	"github.com/ajitpratap0/syncflow/pkg/logger"
)

// WorkflowKind names the workflow a scheduler runs
type WorkflowKind string

// WorkflowSync periodically triggers runs of one sync
const WorkflowSync WorkflowKind = "sync"

// Scheduler is the workflow engine used by sync lifecycle side effects
type Scheduler interface {
	// StartWorkflow schedules kind for syncID and returns the workflow id.
	// An empty id means there is nothing to schedule.
	StartWorkflow(ctx context.Context, kind WorkflowKind, syncID string) (string, error)
	// TerminateWorkflow stops a workflow previously started
	TerminateWorkflow(ctx context.Context, workflowID string) error
}

// SpecResolver returns the cron spec of a sync, or "" for manual syncs
type SpecResolver func(ctx context.Context, syncID string) (string, error)

// Trigger is invoked on every tick of a workflow
type Trigger func(ctx context.Context, kind WorkflowKind, syncID string)

// Entry describes a scheduled workflow
type Entry struct {
	WorkflowID string
	Kind       WorkflowKind
	SyncID     string
	Spec       string
	Next       time.Time
}

type workflow struct {
	kind    WorkflowKind
	syncID  string
	spec    string
	entryID cron.EntryID
}

// CronScheduler runs workflows in process on a robfig/cron scheduler. A
// sync has at most one workflow: starting a new one replaces the old.
type CronScheduler struct {
	cron    *cron.Cron
	resolve SpecResolver
	trigger Trigger
	logger  *zap.Logger
	baseCtx context.Context

	mu        sync.Mutex
	workflows map[string]*workflow
	bySync    map[string]string
}

// NewCronScheduler creates a scheduler. Ticks run trigger with baseCtx.
func NewCronScheduler(baseCtx context.Context, resolve SpecResolver, trigger Trigger, l *zap.Logger) *CronScheduler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &CronScheduler{
		cron:      cron.New(),
		resolve:   resolve,
		trigger:   trigger,
		logger:    logger.OrNop(l).With(zap.String("component", "cron_scheduler")),
		baseCtx:   baseCtx,
		workflows: make(map[string]*workflow),
		bySync:    make(map[string]string),
	}
}

// StartWorkflow implements Scheduler
func (s *CronScheduler) StartWorkflow(ctx context.Context, kind WorkflowKind, syncID string) (string, error) {
	spec, err := s.resolve(ctx, syncID)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeScheduler, "failed to resolve schedule").
			WithDetail("sync_id", syncID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, hasPrevious := s.bySync[syncID]
	if spec == "" {
		if hasPrevious {
			s.removeLocked(previous)
		}
		s.logger.Debug("manual sync, nothing to schedule", zap.String("sync_id", syncID))
		return "", nil
	}

	workflowID := fmt.Sprintf("%s-%s-%s", kind, syncID, uuid.NewString())
	// a tick arriving while the previous run of the sync is still going is skipped
	job := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() {
		s.trigger(s.baseCtx, kind, syncID)
	}))
	entryID, err := s.cron.AddJob(spec, job)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeScheduler, "invalid cron spec").
			WithDetail("sync_id", syncID).
			WithDetail("spec", spec)
	}
	// the previous workflow keeps running until its replacement is in place
	if hasPrevious {
		s.removeLocked(previous)
	}

	s.workflows[workflowID] = &workflow{kind: kind, syncID: syncID, spec: spec, entryID: entryID}
	s.bySync[syncID] = workflowID

	s.logger.Info("workflow started",
		zap.String("workflow_id", workflowID),
		zap.String("sync_id", syncID),
		zap.String("spec", spec))
	return workflowID, nil
}

// TerminateWorkflow implements Scheduler
func (s *CronScheduler) TerminateWorkflow(ctx context.Context, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.removeLocked(workflowID) {
		return errors.New(errors.ErrorTypeNotFound, "workflow not found").
			WithDetail("workflow_id", workflowID)
	}
	s.logger.Info("workflow terminated", zap.String("workflow_id", workflowID))
	return nil
}

func (s *CronScheduler) removeLocked(workflowID string) bool {
	wf, ok := s.workflows[workflowID]
	if !ok {
		return false
	}
	s.cron.Remove(wf.entryID)
	delete(s.workflows, workflowID)
	if s.bySync[wf.syncID] == workflowID {
		delete(s.bySync, wf.syncID)
	}
	return true
}

// Entries lists the scheduled workflows ordered by workflow id
func (s *CronScheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, 0, len(s.workflows))
	for id, wf := range s.workflows {
		entries = append(entries, Entry{
			WorkflowID: id,
			Kind:       wf.kind,
			SyncID:     wf.syncID,
			Spec:       wf.spec,
			Next:       s.cron.Entry(wf.entryID).Next,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].WorkflowID < entries[j].WorkflowID })
	return entries
}

// WorkflowFor returns the workflow id currently scheduled for syncID
func (s *CronScheduler) WorkflowFor(syncID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.bySync[syncID]
	return id, ok
}

// Start begins running scheduled workflows
func (s *CronScheduler) Start() {
	s.logger.Info("cron started")
	s.cron.Start()
}

// Stop halts the scheduler and waits for running triggers to return
func (s *CronScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("cron stopped")
}
