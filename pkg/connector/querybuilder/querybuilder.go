// Package querybuilder renders the SQL statements destination connectors
// execute for a batch of records.
package querybuilder

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/syncflow/pkg/connector/core"
	"github.com/ajitpratap0/syncflow/pkg/errors"
)

// MessageInvalidAction is returned for actions other than insert and update
const MessageInvalidAction = "Invalid action specified."

// Build renders the statement for action against table. Column order
// follows the record's field order. A missing primary key on update and an
// unsupported action are reported as config errors whose Message is the
// literal text callers may match on.
func Build(action core.Action, table string, params *core.Record, primaryKey string) (string, error) {
	switch action {
	case core.ActionInsert:
		return buildInsert(table, params), nil
	case core.ActionUpdate:
		return buildUpdate(table, params, primaryKey)
	default:
		return "", errors.New(errors.ErrorTypeConfig, MessageInvalidAction).
			WithDetail("action", string(action))
	}
}

// BuildString behaves like Build but returns the error message in place of
// the query, for callers that expect a single string result.
func BuildString(action core.Action, table string, params *core.Record, primaryKey string) string {
	query, err := Build(action, table, params, primaryKey)
	if err != nil {
		return errors.MessageOf(err)
	}
	return query
}

// MissingPrimaryKeyMessage is the error text for an update without its key
func MissingPrimaryKeyMessage(primaryKey string) string {
	return fmt.Sprintf("Primary key '%s' not found in record.", primaryKey)
}

func buildInsert(table string, params *core.Record) string {
	fields := params.Fields()
	columns := make([]string, 0, len(fields))
	values := make([]string, 0, len(fields))
	for _, f := range fields {
		columns = append(columns, f.Name)
		values = append(values, Quote(f.Value))
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s);",
		table, strings.Join(columns, ", "), strings.Join(values, ", "))
}

func buildUpdate(table string, params *core.Record, primaryKey string) (string, error) {
	pkValue, ok := params.Get(primaryKey)
	if !ok {
		return "", errors.New(errors.ErrorTypeConfig, MissingPrimaryKeyMessage(primaryKey)).
			WithDetail("table", table)
	}

	fields := params.Fields()
	sets := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.Name == primaryKey {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = %s", f.Name, Quote(f.Value)))
	}

	return fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s;",
		table, strings.Join(sets, ", "), primaryKey, Quote(pkValue)), nil
}

// Quote renders v as a single-quoted SQL literal. nil renders as ''.
func Quote(v interface{}) string {
	var s string
	if v != nil {
		s = fmt.Sprint(v)
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
