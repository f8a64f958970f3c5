package sqlsource

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ajitpratap0/syncflow/pkg/errors"
)

var limitClause = regexp.MustCompile(`(?i)\bLIMIT\b`)

// BatchedQuery appends LIMIT and OFFSET to query so it reads one page.
// Surrounding whitespace and one trailing semicolon are removed first.
// Negative bounds and queries that already carry a LIMIT are rejected with
// a validation error.
func BatchedQuery(query string, limit, offset int) (string, error) {
	if limit < 0 || offset < 0 {
		return "", errors.New(errors.ErrorTypeValidation, "limit and offset must be non-negative").
			WithDetail("limit", limit).
			WithDetail("offset", offset)
	}

	query = strings.TrimSpace(query)
	query = strings.TrimSpace(strings.TrimSuffix(query, ";"))

	if limitClause.MatchString(query) {
		return "", errors.New(errors.ErrorTypeValidation, "query already contains a LIMIT clause").
			WithDetail("query", query)
	}

	return fmt.Sprintf("%s LIMIT %d OFFSET %d", query, limit, offset), nil
}
