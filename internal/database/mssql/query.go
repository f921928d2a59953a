package mssql

import (
	"context"
	"strings"
	"time"

	"github.com/redbco/redb-sqlgateway/internal/database"
)

// ExecuteQuery runs validated SQL, reading at most maxRows rows. One
// extra row is probed to tell "exactly maxRows" apart from a truncated
// result set.
func (c *Connection) ExecuteQuery(ctx context.Context, sqlText string, maxRows int) (*database.QueryResult, error) {
	start := time.Now()

	rows, err := c.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, c.wrapErr("execute query", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, c.wrapErr("execute query", err)
	}

	results := make([]map[string]interface{}, 0)
	truncated := false
	for rows.Next() {
		if maxRows > 0 && len(results) >= maxRows {
			truncated = true
			break
		}

		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, c.wrapErr("execute query", err)
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, c.wrapErr("execute query", err)
	}

	return &database.QueryResult{
		Columns:         columns,
		Rows:            results,
		RowCount:        len(results),
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		Truncated:       truncated,
	}, nil
}

// normalizeValue converts driver-level values into JSON-friendly forms.
func normalizeValue(v interface{}) interface{} {
	switch value := v.(type) {
	case []byte:
		return string(value)
	default:
		return v
	}
}

// GetQueryPlan returns the estimated execution plan without running the
// query. SHOWPLAN_XML is session state, so the query is bracketed on a
// single pinned connection.
func (c *Connection) GetQueryPlan(ctx context.Context, sqlText string) (*database.QueryPlan, error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, c.wrapErr("get query plan", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SET SHOWPLAN_XML ON"); err != nil {
		return nil, c.wrapErr("get query plan", err)
	}
	// The pinned session goes back to the pool; reset it even when ctx
	// is already cancelled.
	defer conn.ExecContext(context.WithoutCancel(ctx), "SET SHOWPLAN_XML OFF")

	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, c.wrapErr("get query plan", err)
	}
	defer rows.Close()

	var plan strings.Builder
	for rows.Next() {
		var fragment string
		if err := rows.Scan(&fragment); err != nil {
			return nil, c.wrapErr("get query plan", err)
		}
		plan.WriteString(fragment)
	}
	if err := rows.Err(); err != nil {
		return nil, c.wrapErr("get query plan", err)
	}

	return &database.QueryPlan{Format: "xml", Plan: plan.String()}, nil
}
