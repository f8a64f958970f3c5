package syncjob

import (
	"sync"
	"time"

	"github.com/ajitpratap0/syncflow/pkg/errors"
	"github.com/ajitpratap0/syncflow/pkg/fsm"
)

// RunStatus is the lifecycle state of a SyncRun
type RunStatus = fsm.State

// Run statuses
const (
	RunStatusPending    RunStatus = "pending"
	RunStatusStarted    RunStatus = "started"
	RunStatusQuerying   RunStatus = "querying"
	RunStatusQueued     RunStatus = "queued"
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusSuccess    RunStatus = "success"
	RunStatusPaused     RunStatus = "paused"
	RunStatusFailed     RunStatus = "failed"
	RunStatusCanceled   RunStatus = "canceled"
)

// RunEvent moves a SyncRun between statuses
type RunEvent = fsm.Event

// Run events
const (
	RunEventStart    RunEvent = "start"
	RunEventQuery    RunEvent = "query"
	RunEventQueue    RunEvent = "queue"
	RunEventProgress RunEvent = "progress"
	RunEventPause    RunEvent = "pause"
	RunEventComplete RunEvent = "complete"
	RunEventAbort    RunEvent = "abort"
	RunEventCancel   RunEvent = "cancel"
)

// RunMachine is the SyncRun transition table. start re-enters itself so a
// run can be retried in place, and abort is a self loop on failed.
var RunMachine = fsm.MustNew(RunStatusPending,
	[]fsm.State{
		RunStatusPending, RunStatusStarted, RunStatusQuerying, RunStatusQueued, RunStatusInProgress,
		RunStatusSuccess, RunStatusPaused, RunStatusFailed, RunStatusCanceled,
	},
	[]fsm.Transition{
		{Event: RunEventStart, From: []fsm.State{RunStatusPending, RunStatusStarted, RunStatusQuerying}, To: RunStatusStarted},
		{Event: RunEventQuery, From: []fsm.State{RunStatusStarted}, To: RunStatusQuerying},
		{Event: RunEventQueue, From: []fsm.State{RunStatusQuerying}, To: RunStatusQueued},
		{Event: RunEventProgress, From: []fsm.State{RunStatusQueued, RunStatusPaused, RunStatusInProgress}, To: RunStatusInProgress},
		{Event: RunEventPause, From: []fsm.State{RunStatusInProgress}, To: RunStatusPaused},
		{Event: RunEventComplete, From: []fsm.State{RunStatusInProgress}, To: RunStatusSuccess},
		{Event: RunEventAbort, From: []fsm.State{
			RunStatusPending, RunStatusStarted, RunStatusQuerying, RunStatusQueued,
			RunStatusInProgress, RunStatusPaused, RunStatusFailed,
		}, To: RunStatusFailed},
		{Event: RunEventCancel, From: []fsm.State{
			RunStatusPending, RunStatusStarted, RunStatusQuerying, RunStatusQueued,
			RunStatusInProgress, RunStatusPaused,
		}, To: RunStatusCanceled},
	},
	fsm.WithName("sync_run"),
)

// RunType distinguishes regular runs from connection test runs
type RunType string

const (
	RunTypeGeneral RunType = "general"
	RunTypeTest    RunType = "test"
)

// RunCounters are the row counters of a run
type RunCounters struct {
	TotalQueryRows int64 `json:"total_query_rows"`
	TotalRows      int64 `json:"total_rows"`
	SuccessfulRows int64 `json:"successful_rows"`
	FailedRows     int64 `json:"failed_rows"`
}

// Transition records a status change of a run
type Transition struct {
	Event RunEvent
	From  RunStatus
	To    RunStatus
}

// SyncRun is one execution attempt of a Sync. Source, destination and
// model ids are copied from the sync when the run is created.
type SyncRun struct {
	ID            string
	SyncID        string
	SourceID      string
	DestinationID string
	ModelID       string
	Type          RunType

	CreatedAt time.Time

	mu         sync.Mutex
	status     RunStatus
	counters   RunCounters
	startedAt  *time.Time
	finishedAt *time.Time
	lastError  string
}

// Status returns the current status; a new run is pending
func (r *SyncRun) Status() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentLocked()
}

func (r *SyncRun) currentLocked() RunStatus {
	if r.status == "" {
		return RunMachine.Initial()
	}
	return r.status
}

// Fire applies event at time now. An invalid transition returns a
// transition error and leaves the status unchanged.
func (r *SyncRun) Fire(event RunEvent, now time.Time) (Transition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	from := r.currentLocked()
	to, _, err := RunMachine.Fire(from, event)
	if err != nil {
		return Transition{Event: event, From: from, To: from},
			errors.Wrap(err, errors.ErrorTypeTransition, "sync run transition rejected").
				WithDetail("sync_run_id", r.ID)
	}

	r.status = to
	if to == RunStatusStarted && r.startedAt == nil {
		t := now
		r.startedAt = &t
	}
	if isTerminal(to) && r.finishedAt == nil {
		t := now
		r.finishedAt = &t
	}
	return Transition{Event: event, From: from, To: to}, nil
}

// Can reports whether event is allowed in the current status
func (r *SyncRun) Can(event RunEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RunMachine.Can(r.currentLocked(), event)
}

// Terminal reports whether the run reached success, failed or canceled
func (r *SyncRun) Terminal() bool {
	return isTerminal(r.Status())
}

func isTerminal(s RunStatus) bool {
	return s == RunStatusSuccess || s == RunStatusFailed || s == RunStatusCanceled
}

// Counters returns a copy of the row counters
func (r *SyncRun) Counters() RunCounters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters
}

// AddCounters increments the row counters. Counters never decrease, so a
// negative delta is rejected and nothing is applied.
func (r *SyncRun) AddCounters(delta RunCounters) error {
	if delta.TotalQueryRows < 0 || delta.TotalRows < 0 || delta.SuccessfulRows < 0 || delta.FailedRows < 0 {
		return errors.New(errors.ErrorTypeValidation, "run counters cannot decrease").
			WithDetail("sync_run_id", r.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters.TotalQueryRows += delta.TotalQueryRows
	r.counters.TotalRows += delta.TotalRows
	r.counters.SuccessfulRows += delta.SuccessfulRows
	r.counters.FailedRows += delta.FailedRows
	return nil
}

// SetError records the failure reason shown to users
func (r *SyncRun) SetError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastError = msg
}

// LastError returns the recorded failure reason
func (r *SyncRun) LastError() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastError
}

// StartedAt returns when the run first started, or nil
func (r *SyncRun) StartedAt() *time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startedAt
}

// FinishedAt returns when the run reached a terminal status, or nil
func (r *SyncRun) FinishedAt() *time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finishedAt
}
