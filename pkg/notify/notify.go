// Package notify delivers sync run failure notices to interested parties.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/syncflow/pkg/clients"
	"github.com/ajitpratap0/syncflow/pkg/errors"
	"github.com/ajitpratap0/syncflow/pkg/logger"
)

// Notice describes a sync run status change worth telling someone about
type Notice struct {
	SyncID     string    `json:"sync_id"`
	SyncRunID  string    `json:"sync_run_id"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Recipients []string  `json:"recipients,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier delivers notices
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// NotifierFunc adapts a function to the Notifier interface
type NotifierFunc func(ctx context.Context, n Notice) error

// Notify calls f
func (f NotifierFunc) Notify(ctx context.Context, n Notice) error {
	return f(ctx, n)
}

// LogNotifier writes notices to the log
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier(l *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.OrNop(l).With(zap.String("component", "log_notifier"))}
}

// Notify implements Notifier
func (n *LogNotifier) Notify(ctx context.Context, notice Notice) error {
	logger.WithContext(ctx, n.logger).Warn("sync run notice",
		zap.String("sync_id", notice.SyncID),
		zap.String("sync_run_id", notice.SyncRunID),
		zap.String("status", notice.Status),
		zap.String("error", notice.Error),
		zap.Strings("recipients", notice.Recipients),
		zap.Time("occurred_at", notice.OccurredAt))
	return nil
}

// Multi fans a notice out to every notifier and joins their errors
type Multi []Notifier

// Notify implements Notifier
func (m Multi) Notify(ctx context.Context, n Notice) error {
	var errs []error
	for _, notifier := range m {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Wrap(errors.Join(errs...), errors.ErrorTypeNotification, "notification delivery failed")
}

// Guarded skips a failing notifier while its circuit breaker is open, so
// an unreachable broker does not stall every run transition.
type Guarded struct {
	next    Notifier
	breaker *clients.CircuitBreaker
}

// NewGuarded wraps next with breaker
func NewGuarded(next Notifier, breaker *clients.CircuitBreaker) *Guarded {
	return &Guarded{next: next, breaker: breaker}
}

// Notify implements Notifier
func (g *Guarded) Notify(ctx context.Context, n Notice) error {
	err := g.breaker.Execute(func() error {
		return g.next.Notify(ctx, n)
	})
	if errors.Is(err, clients.ErrCircuitOpen) {
		return errors.Wrap(err, errors.ErrorTypeNotification, "notice dropped").
			WithDetail("sync_run_id", n.SyncRunID)
	}
	return err
}
