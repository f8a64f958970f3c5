// Package sqlsource reads model queries page by page from PostgreSQL and
// MySQL databases.
package sqlsource

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/ajitpratap0/syncflow/pkg/connector/core"
	"github.com/ajitpratap0/syncflow/pkg/connector/sqlconn"
	"github.com/ajitpratap0/syncflow/pkg/errors"
	"github.com/ajitpratap0/syncflow/pkg/logger"
)

// Source is a core.Source backed by a database/sql handle
type Source struct {
	name        string
	db          *sql.DB
	logger      *zap.Logger
	healthQuery string
}

// Option configures a Source
type Option func(*Source)

// WithLogger sets the source logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Source) {
		s.logger = l
	}
}

// WithHealthQuery overrides the query run by CheckConnection
func WithHealthQuery(q string) Option {
	return func(s *Source) {
		s.healthQuery = q
	}
}

// New wraps db as a source named name
func New(name string, db *sql.DB, opts ...Option) *Source {
	s := &Source{name: name, db: db}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.OrNop(s.logger).With(
		zap.String("component", "sql_source"),
		zap.String("connector", name))
	return s
}

// NewFromSpec opens the database named by spec
func NewFromSpec(spec core.ConnectorSpec) (core.Source, error) {
	db, err := sqlconn.FromSpec(spec)
	if err != nil {
		return nil, err
	}
	return New(spec.ConnectorName, db, WithLogger(logger.Get())), nil
}

// Name returns the connector name
func (s *Source) Name() string {
	return s.name
}

// Read runs the model query for the page addressed by cfg. A zero limit
// and offset reads the query unpaged.
func (s *Source) Read(ctx context.Context, cfg *core.SyncConfig) ([]*core.Record, error) {
	query := cfg.Model.Query
	offset := rowOffset(cfg)
	if cfg.Limit != 0 || offset != 0 {
		var err error
		query, err = BatchedQuery(cfg.Model.Query, cfg.Limit, offset)
		if err != nil {
			return nil, err
		}
	}

	logger.WithContext(ctx, s.logger).Debug("reading page",
		zap.String("stream", cfg.Stream.Name),
		zap.Int("limit", cfg.Limit),
		zap.Int("offset", offset))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to execute model query").
			WithDetail("query", query)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// rowOffset converts the page cursor of cfg into a row offset. Page based
// strategies count pages rather than rows.
func rowOffset(cfg *core.SyncConfig) int {
	if cfg.IncrementStrategyConfig != nil && cfg.IncrementStrategyConfig.Strategy == core.IncrementStrategyPage {
		return cfg.Offset * cfg.Limit
	}
	return cfg.Offset
}

// CheckConnection pings the database
func (s *Source) CheckConnection(ctx context.Context) *core.Message {
	return sqlconn.CheckConnection(ctx, s.db, s.healthQuery)
}

// Close closes the database handle
func (s *Source) Close(ctx context.Context) error {
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to close database")
	}
	return nil
}

func scanRecords(rows *sql.Rows) ([]*core.Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read result columns")
	}

	var records []*core.Record
	values := make([]interface{}, len(columns))
	pointers := make([]interface{}, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to scan row")
		}
		record := core.NewRecord()
		for i, col := range columns {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			record.Set(col, v)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to iterate rows")
	}
	return records, nil
}
