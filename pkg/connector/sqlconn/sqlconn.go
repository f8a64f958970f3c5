// Package sqlconn opens database/sql handles for the SQL connectors.
package sqlconn

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/ajitpratap0/syncflow/pkg/connector/core"
	"github.com/ajitpratap0/syncflow/pkg/errors"
)

// Supported connector names
const (
	PostgreSQL = "postgresql"
	MySQL      = "mysql"
)

// Connection specification keys
const (
	KeyDSN              = "dsn"
	KeyConnectionString = "connection_string"
	KeyMaxOpenConns     = "max_open_conns"
	KeyMaxIdleConns     = "max_idle_conns"
)

// Options tunes the connection pool of an opened handle
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	HealthQuery     string
}

// DefaultOptions returns pool settings suitable for a single sync worker
func DefaultOptions() Options {
	return Options{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		HealthQuery:     "SELECT 1",
	}
}

// Open validates dsn for connector and returns a pooled handle. The
// handle is not pinged; use Ping for that.
func Open(connector, dsn string, opts Options) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "connection string is required").
			WithDetail("connector", connector)
	}

	var db *sql.DB
	switch connector {
	case PostgreSQL:
		cfg, err := pgx.ParseConfig(dsn)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse postgresql connection string")
		}
		db = stdlib.OpenDB(*cfg)
	case MySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse mysql dsn")
		}
		mc, err := mysql.NewConnector(cfg)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to build mysql connector")
		}
		db = sql.OpenDB(mc)
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported sql connector %q", connector)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	return db, nil
}

// FromSpec opens a handle for spec, reading the dsn and pool settings from
// its connection specification.
func FromSpec(spec core.ConnectorSpec) (*sql.DB, error) {
	opts := DefaultOptions()
	if v, ok := intValue(spec.ConnectionSpecification[KeyMaxOpenConns]); ok {
		opts.MaxOpenConns = v
	}
	if v, ok := intValue(spec.ConnectionSpecification[KeyMaxIdleConns]); ok {
		opts.MaxIdleConns = v
	}
	return Open(spec.ConnectorName, DSN(spec), opts)
}

// DSN returns the connection string of spec
func DSN(spec core.ConnectorSpec) string {
	for _, key := range []string{KeyDSN, KeyConnectionString} {
		if v, ok := spec.ConnectionSpecification[key]; ok && v != nil {
			return fmt.Sprint(v)
		}
	}
	return ""
}

// CheckConnection runs query against db and reports the outcome as a
// connection_status control message.
func CheckConnection(ctx context.Context, db *sql.DB, query string) *core.Message {
	if query == "" {
		query = DefaultOptions().HealthQuery
	}
	if err := db.PingContext(ctx); err != nil {
		return core.NewControlMessage(core.ControlTypeConnectionStatus, core.ControlStatusFailed, err.Error())
	}
	if _, err := db.ExecContext(ctx, query); err != nil {
		return core.NewControlMessage(core.ControlTypeConnectionStatus, core.ControlStatusFailed, err.Error())
	}
	return core.NewControlMessage(core.ControlTypeConnectionStatus, core.ControlStatusSucceeded, "")
}

func intValue(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
