// Package syncjob holds the Sync and SyncRun entities, their state
// machines, and the Service that applies lifecycle side effects such as
// scheduling workflows and sending failure notices.
package syncjob

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ajitpratap0/syncflow/pkg/connector/core"
	"github.com/ajitpratap0/syncflow/pkg/errors"
	"github.com/ajitpratap0/syncflow/pkg/fsm"
)

// SyncStatus is the lifecycle state of a Sync
type SyncStatus = fsm.State

// Sync statuses
const (
	SyncStatusPending  SyncStatus = "pending"
	SyncStatusHealthy  SyncStatus = "healthy"
	SyncStatusFailed   SyncStatus = "failed"
	SyncStatusDisabled SyncStatus = "disabled"
	SyncStatusAborted  SyncStatus = "aborted"
)

// SyncEvent moves a Sync between statuses
type SyncEvent = fsm.Event

// Sync events
const (
	SyncEventComplete SyncEvent = "complete"
	SyncEventFail     SyncEvent = "fail"
	SyncEventDisable  SyncEvent = "disable"
	SyncEventEnable   SyncEvent = "enable"
)

// SyncMachine is the Sync transition table. No event leads to aborted.
var SyncMachine = fsm.MustNew(SyncStatusPending,
	[]fsm.State{SyncStatusPending, SyncStatusHealthy, SyncStatusFailed, SyncStatusDisabled, SyncStatusAborted},
	[]fsm.Transition{
		{Event: SyncEventComplete, From: []fsm.State{SyncStatusPending, SyncStatusHealthy}, To: SyncStatusHealthy},
		{Event: SyncEventFail, From: []fsm.State{SyncStatusPending, SyncStatusHealthy}, To: SyncStatusFailed},
		{Event: SyncEventDisable, From: []fsm.State{SyncStatusPending, SyncStatusHealthy, SyncStatusFailed}, To: SyncStatusDisabled},
		{Event: SyncEventEnable, From: []fsm.State{SyncStatusDisabled}, To: SyncStatusPending},
	},
	fsm.WithName("sync"),
)

// ScheduleType selects how a sync is triggered
type ScheduleType string

const (
	ScheduleTypeManual         ScheduleType = "manual"
	ScheduleTypeInterval       ScheduleType = "interval"
	ScheduleTypeCronExpression ScheduleType = "cron_expression"
)

// IntervalUnit is the unit of SyncInterval
type IntervalUnit string

const (
	IntervalUnitMinutes IntervalUnit = "minutes"
	IntervalUnitHours   IntervalUnit = "hours"
	IntervalUnitDays    IntervalUnit = "days"
)

// Sync is a configured, recurring data movement job between one source
// and one destination for a model and stream.
type Sync struct {
	ID                 string
	Name               string
	SourceID           string
	DestinationID      string
	ModelID            string
	StreamName         string
	ScheduleType       ScheduleType
	SyncInterval       int
	SyncIntervalUnit   IntervalUnit
	CronExpression     string
	SyncMode           core.SyncMode
	CursorField        string
	CurrentCursorField string
	WorkflowID         string
	Recipients         []string

	// Config is the template every run's SyncConfig is derived from
	Config *core.SyncConfig

	CreatedAt   time.Time
	UpdatedAt   time.Time
	DiscardedAt *time.Time

	mu     sync.Mutex
	status SyncStatus
}

// Status returns the current status; a new Sync is pending
func (s *Sync) Status() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked()
}

func (s *Sync) currentLocked() SyncStatus {
	if s.status == "" {
		return SyncMachine.Initial()
	}
	return s.status
}

// Fire applies event. An invalid transition returns a transition error and
// leaves the status unchanged.
func (s *Sync) Fire(event SyncEvent) (from, to SyncStatus, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from = s.currentLocked()
	to, _, err = SyncMachine.Fire(from, event)
	if err != nil {
		return from, from, errors.Wrap(err, errors.ErrorTypeTransition, "sync transition rejected").
			WithDetail("sync_id", s.ID)
	}
	s.status = to
	return from, to, nil
}

// Can reports whether event is allowed in the current status
func (s *Sync) Can(event SyncEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SyncMachine.Can(s.currentLocked(), event)
}

// Discarded reports whether the sync has been soft deleted
func (s *Sync) Discarded() bool {
	return s.DiscardedAt != nil
}

// ScheduleCronExpression returns the cron spec the sync is scheduled by,
// or "" for manual syncs.
func (s *Sync) ScheduleCronExpression() (string, error) {
	switch s.ScheduleType {
	case ScheduleTypeManual, "":
		return "", nil
	case ScheduleTypeInterval:
		if s.SyncInterval <= 0 {
			return "", errors.New(errors.ErrorTypeValidation, "sync interval must be positive").
				WithDetail("sync_interval", s.SyncInterval)
		}
		switch s.SyncIntervalUnit {
		case IntervalUnitMinutes:
			return fmt.Sprintf("*/%d * * * *", s.SyncInterval), nil
		case IntervalUnitHours:
			return fmt.Sprintf("0 */%d * * *", s.SyncInterval), nil
		case IntervalUnitDays:
			return fmt.Sprintf("0 0 */%d * *", s.SyncInterval), nil
		default:
			return "", errors.Newf(errors.ErrorTypeValidation, "unknown sync interval unit %q", s.SyncIntervalUnit)
		}
	case ScheduleTypeCronExpression:
		if _, err := cron.ParseStandard(s.CronExpression); err != nil {
			return "", errors.Wrap(err, errors.ErrorTypeValidation, "invalid cron expression").
				WithDetail("cron_expression", s.CronExpression)
		}
		return s.CronExpression, nil
	default:
		return "", errors.Newf(errors.ErrorTypeValidation, "unknown schedule type %q", s.ScheduleType)
	}
}

// Validate checks the fields needed to schedule and run the sync
func (s *Sync) Validate() error {
	if s.SourceID == "" || s.DestinationID == "" {
		return errors.New(errors.ErrorTypeValidation, "sync requires a source and a destination")
	}
	if s.SyncMode != "" && s.SyncMode != core.SyncModeFullRefresh && s.SyncMode != core.SyncModeIncremental {
		return errors.Newf(errors.ErrorTypeValidation, "unknown sync mode %q", s.SyncMode)
	}
	_, err := s.ScheduleCronExpression()
	return err
}

// RunConfig derives the SyncConfig of one run from the sync's template
func (s *Sync) RunConfig(runID string) *core.SyncConfig {
	var cfg core.SyncConfig
	if s.Config != nil {
		cfg = *s.Config
	}
	cfg.SyncID = s.ID
	cfg.SyncRunID = runID
	if s.SyncMode != "" {
		cfg.SyncMode = s.SyncMode
	}
	if s.CursorField != "" {
		cfg.CursorField = s.CursorField
	}
	if s.CurrentCursorField != "" {
		cfg.CurrentCursorField = s.CurrentCursorField
	}
	if cfg.Stream.Name == "" {
		cfg.Stream.Name = s.StreamName
	}
	return &cfg
}

// clone returns a detached copy of s that can be edited without touching s
func (s *Sync) clone() *Sync {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := &Sync{status: s.status}
	c.copyFieldsLocked(s)
	return c
}

// commit replaces the fields and status of s with those of draft
func (s *Sync) commit(draft *Sync) {
	draft.mu.Lock()
	status := draft.status
	draft.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.copyFieldsLocked(draft)
	s.status = status
}

func (s *Sync) copyFieldsLocked(from *Sync) {
	s.ID = from.ID
	s.Name = from.Name
	s.SourceID = from.SourceID
	s.DestinationID = from.DestinationID
	s.ModelID = from.ModelID
	s.StreamName = from.StreamName
	s.ScheduleType = from.ScheduleType
	s.SyncInterval = from.SyncInterval
	s.SyncIntervalUnit = from.SyncIntervalUnit
	s.CronExpression = from.CronExpression
	s.SyncMode = from.SyncMode
	s.CursorField = from.CursorField
	s.CurrentCursorField = from.CurrentCursorField
	s.WorkflowID = from.WorkflowID
	s.Recipients = append([]string(nil), from.Recipients...)
	s.Config = nil
	if from.Config != nil {
		cfg := *from.Config
		s.Config = &cfg
	}
	s.CreatedAt = from.CreatedAt
	s.UpdatedAt = from.UpdatedAt
	s.DiscardedAt = nil
	if from.DiscardedAt != nil {
		t := *from.DiscardedAt
		s.DiscardedAt = &t
	}
}

// scheduleKey captures the fields whose change requires rescheduling
type scheduleKey struct {
	scheduleType ScheduleType
	interval     int
	unit         IntervalUnit
	cron         string
}

func (s *Sync) scheduleKey() scheduleKey {
	return scheduleKey{
		scheduleType: s.ScheduleType,
		interval:     s.SyncInterval,
		unit:         s.SyncIntervalUnit,
		cron:         s.CronExpression,
	}
}
