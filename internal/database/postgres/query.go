package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/redbco/redb-sqlgateway/internal/database"
)

// ExecuteQuery runs validated SQL, reading at most maxRows rows. One
// extra row is probed to tell "exactly maxRows" apart from a truncated
// result set.
func (c *Connection) ExecuteQuery(ctx context.Context, sqlText string, maxRows int) (*database.QueryResult, error) {
	start := time.Now()

	rows, err := c.pool.Query(ctx, sqlText)
	if err != nil {
		return nil, c.wrapErr("execute query", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = string(fd.Name)
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
	case [16]byte:
		return uuid.UUID(value).String()
	default:
		return v
	}
}

// GetQueryPlan returns the execution plan without running the query.
// Plain queries are wrapped in EXPLAIN (FORMAT JSON, ANALYZE false);
// queries already carrying an EXPLAIN prefix run as written.
func (c *Connection) GetQueryPlan(ctx context.Context, sqlText string) (*database.QueryPlan, error) {
	trimmed := strings.TrimSpace(sqlText)

	planSQL := trimmed
	if !hasExplainPrefix(trimmed) {
		planSQL = "EXPLAIN (FORMAT JSON, ANALYZE false) " + trimmed
	}

	rows, err := c.pool.Query(ctx, planSQL)
	if err != nil {
		return nil, c.wrapErr("get query plan", err)
	}
	defer rows.Close()

	var (
		lines   []string
		doc     interface{}
		jsonDoc bool
	)
	for rows.Next() {
		var value interface{}
		if err := rows.Scan(&value); err != nil {
			return nil, c.wrapErr("get query plan", err)
		}

		switch v := value.(type) {
		case string:
			lines = append(lines, v)
		case []byte:
			lines = append(lines, string(v))
		default:
			doc = v
			jsonDoc = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, c.wrapErr("get query plan", err)
	}

	if jsonDoc {
		return &database.QueryPlan{Format: "json", Plan: doc}, nil
	}
	return &database.QueryPlan{Format: "text", Plan: strings.Join(lines, "\n")}, nil
}

func hasExplainPrefix(sqlText string) bool {
	return len(sqlText) >= 7 && strings.EqualFold(sqlText[:7], "EXPLAIN")
}
