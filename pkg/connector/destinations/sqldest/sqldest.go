// Package sqldest writes records into PostgreSQL and MySQL tables using
// statements rendered by querybuilder.
package sqldest

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/ajitpratap0/syncflow/pkg/connector/core"
	"github.com/ajitpratap0/syncflow/pkg/connector/querybuilder"
	"github.com/ajitpratap0/syncflow/pkg/connector/sqlconn"
	"github.com/ajitpratap0/syncflow/pkg/errors"
	"github.com/ajitpratap0/syncflow/pkg/logger"
)

// Destination is a core.Destination backed by a database/sql handle. The
// target table is the stream name and the key column is the model's
// primary key.
type Destination struct {
	name        string
	db          *sql.DB
	logger      *zap.Logger
	healthQuery string
}

// Option configures a Destination
type Option func(*Destination)

// WithLogger sets the destination logger
func WithLogger(l *zap.Logger) Option {
	return func(d *Destination) {
		d.logger = l
	}
}

// WithHealthQuery overrides the query run by CheckConnection
func WithHealthQuery(q string) Option {
	return func(d *Destination) {
		d.healthQuery = q
	}
}

// New wraps db as a destination named name
func New(name string, db *sql.DB, opts ...Option) *Destination {
	d := &Destination{name: name, db: db}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logger.OrNop(d.logger).With(
		zap.String("component", "sql_destination"),
		zap.String("connector", name))
	return d
}

// NewFromSpec opens the database named by spec
func NewFromSpec(spec core.ConnectorSpec) (core.Destination, error) {
	db, err := sqlconn.FromSpec(spec)
	if err != nil {
		return nil, err
	}
	return New(spec.ConnectorName, db, WithLogger(logger.Get())), nil
}

// Name returns the connector name
func (d *Destination) Name() string {
	return d.name
}

// Write executes one statement per record and reports the row outcomes in
// a tracking message. Records that cannot be rendered or executed count
// as failed; only a cancelled ctx is returned as an error.
func (d *Destination) Write(ctx context.Context, cfg *core.SyncConfig, records []*core.Record, action core.Action) (*core.Message, error) {
	if action == "" {
		action = core.DefaultAction
	}
	table := cfg.Stream.Name
	l := logger.WithContext(ctx, d.logger).With(zap.String("stream", table))

	var success, failed int
	var logs []core.LogMessage
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeTimeout, "write interrupted")
		}

		query, err := querybuilder.Build(action, table, record, cfg.Model.PrimaryKey)
		if err != nil {
			failed++
			logs = append(logs, core.LogMessage{Level: "error", Message: errors.MessageOf(err)})
			continue
		}

		if _, err := d.db.ExecContext(ctx, query); err != nil {
			failed++
			logs = append(logs, core.LogMessage{
				Level:   "error",
				Message: fmt.Sprintf("failed to execute statement: %v", err),
			})
			l.Warn("record write failed", zap.Error(err))
			continue
		}
		success++
	}

	l.Debug("batch written",
		zap.String("action", string(action)),
		zap.Int("success", success),
		zap.Int("failed", failed))

	return core.NewTrackingMessage(success, failed, logs...), nil
}

// ClearAllRecords deletes every row of the stream's table. Failures are
// reported through the returned control message rather than an error.
func (d *Destination) ClearAllRecords(ctx context.Context, cfg *core.SyncConfig) (*core.Message, error) {
	table := cfg.Stream.Name
	l := logger.WithContext(ctx, d.logger).With(zap.String("stream", table))

	if _, err := d.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
		l.Warn("failed to clear destination table", zap.Error(err))
		return core.NewControlMessage(core.ControlTypeFullRefresh, core.ControlStatusFailed,
			fmt.Sprintf("failed to clear %s: %v", table, err)), nil
	}

	l.Info("destination table cleared")
	return core.NewControlMessage(core.ControlTypeFullRefresh, core.ControlStatusSucceeded,
		fmt.Sprintf("cleared %s", table)), nil
}

// CheckConnection pings the database
func (d *Destination) CheckConnection(ctx context.Context) *core.Message {
	return sqlconn.CheckConnection(ctx, d.db, d.healthQuery)
}

// Close closes the database handle
func (d *Destination) Close(ctx context.Context) error {
	if err := d.db.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to close database")
	}
	return nil
}
