package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"fish-landings/pkg/logging"
)

// ErrNotReadOnly is wrapped by QueryRejectedError when a statement is not a
// single SELECT.
var ErrNotReadOnly = errors.New("only a single SELECT or WITH statement is allowed")

// QueryResult holds the rows of an ad hoc read-only query
type QueryResult struct {
	Columns   []string        `json:"columns"`
	Rows      [][]interface{} `json:"rows"`
	RowCount  int             `json:"row_count"`
	Truncated bool            `json:"truncated"`
}

// QueryRejectedError reports a query that was refused or failed to execute.
// The persisted dataset is never modified by a rejected query.
type QueryRejectedError struct {
	Reason string
	Err    error
}

func (e *QueryRejectedError) Error() string {
	if e.Err == nil {
		return "query rejected: " + e.Reason
	}
	return fmt.Sprintf("query rejected: %s: %v", e.Reason, e.Err)
}

func (e *QueryRejectedError) Unwrap() error {
	return e.Err
}

func (e *QueryRejectedError) IsTransient() bool {
	return false
}

// checkReadOnly returns the statement with one trailing semicolon removed, or
// an error when it is empty, stacked, or does not start with SELECT or WITH.
func checkReadOnly(query string) (string, error) {
	q := strings.TrimSpace(query)
	q = strings.TrimSpace(strings.TrimSuffix(q, ";"))
	if q == "" {
		return "", &QueryRejectedError{Reason: "empty query"}
	}
	if hasStatementSeparator(q) {
		return "", &QueryRejectedError{Reason: "multiple statements", Err: ErrNotReadOnly}
	}

	first := strings.ToUpper(strings.Fields(q)[0])
	if first != "SELECT" && first != "WITH" {
		return "", &QueryRejectedError{Reason: fmt.Sprintf("%s statement", first), Err: ErrNotReadOnly}
	}
	return q, nil
}

// hasStatementSeparator reports whether q has a semicolon outside string
// literals, quoted identifiers and comments.
func hasStatementSeparator(q string) bool {
	var quote byte
	for i := 0; i < len(q); i++ {
		c := q[i]
		switch {
		case quote != 0:
			// A doubled quote re-opens on the next byte, so toggling is enough.
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == '-' && i+1 < len(q) && q[i+1] == '-':
			end := strings.IndexByte(q[i:], '\n')
			if end < 0 {
				return false
			}
			i += end
		case c == '/' && i+1 < len(q) && q[i+1] == '*':
			end := strings.Index(q[i+2:], "*/")
			if end < 0 {
				return false
			}
			i += end + 3
		case c == ';':
			return true
		}
	}
	return false
}

// ExecuteReadOnly runs query on a connection that refuses writes, inside a
// read-only transaction that is always rolled back. At most limit rows are
// returned; Truncated reports whether more were available.
func (r *landingRepository) ExecuteReadOnly(ctx context.Context, query string, limit int) (*QueryResult, error) {
	timer := time.Now()

	q, err := checkReadOnly(query)
	if err != nil {
		r.logger.Warn(ctx, "[REPO_QUERY_REJECTED] Query refused", logging.Fields{
			"error": err.Error(),
		})
		return nil, err
	}

	conn, release, err := r.db.ReadOnlyConn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire read-only connection: %w", err)
	}
	defer release()

	tx, err := conn.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin read-only transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryxContext(ctx, q)
	if err != nil {
		r.metrics.RecordDBError("adhoc_query_error")
		return nil, &QueryRejectedError{Reason: "execution failed", Err: err}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, &QueryRejectedError{Reason: "execution failed", Err: err}
	}

	result := &QueryResult{
		Columns: columns,
		Rows:    [][]interface{}{},
	}
	for rows.Next() {
		if limit > 0 && len(result.Rows) == limit {
			result.Truncated = true
			break
		}
		values, err := rows.SliceScan()
		if err != nil {
			return nil, &QueryRejectedError{Reason: "execution failed", Err: err}
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryRejectedError{Reason: "execution failed", Err: err}
	}
	result.RowCount = len(result.Rows)

	r.metrics.DBQueryDuration.WithLabelValues("adhoc_query").Observe(time.Since(timer).Seconds())
	r.logger.Info(ctx, "[REPO_QUERY] Read-only query executed", logging.Fields{
		"rows":        result.RowCount,
		"truncated":   result.Truncated,
		"duration_ms": time.Since(timer).Milliseconds(),
	})

	return result, nil
}
