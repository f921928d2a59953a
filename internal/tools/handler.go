package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redbco/redb-sqlgateway/internal/cache"
	"github.com/redbco/redb-sqlgateway/internal/database"
	"github.com/redbco/redb-sqlgateway/internal/protocol"
	"github.com/redbco/redb-sqlgateway/internal/validator"
	"github.com/redbco/redb-sqlgateway/pkg/logger"
)

// Row caps applied when the configuration does not override them. A
// caller-supplied maxRows above the absolute cap is clamped, never
// honored.
const (
	DefaultMaxRows  = 1000
	AbsoluteMaxRows = 10000
)

// Limits carries the dispatcher's query guardrails.
type Limits struct {
	DefaultMaxRows  int
	AbsoluteMaxRows int
	MaxQueryLength  int
	CommandTimeout  time.Duration
}

// Handler dispatches the five SQL gateway tools. Validation failures,
// bad arguments, and database errors come back as tool results with
// IsError set; only an unknown tool name is a protocol-level error.
type Handler struct {
	logger  *logger.Logger
	manager *database.Manager
	cache   *cache.QueryCache
	limits  Limits

	toolCalls       int64
	toolFailures    int64
	queriesExecuted int64
	queriesRejected int64
}

// NewHandler creates a new tool handler. queryCache may be nil when
// result caching is disabled.
func NewHandler(log *logger.Logger, manager *database.Manager, queryCache *cache.QueryCache, limits Limits) *Handler {
	if limits.DefaultMaxRows <= 0 {
		limits.DefaultMaxRows = DefaultMaxRows
	}
	if limits.AbsoluteMaxRows <= 0 {
		limits.AbsoluteMaxRows = AbsoluteMaxRows
	}
	if limits.MaxQueryLength <= 0 {
		limits.MaxQueryLength = validator.DefaultMaxQueryLength
	}
	if limits.CommandTimeout <= 0 {
		limits.CommandTimeout = database.DefaultCommandTimeout
	}

	return &Handler{
		logger:  log,
		manager: manager,
		cache:   queryCache,
		limits:  limits,
	}
}

var connectionProperty = map[string]interface{}{
	"type":        "string",
	"description": "Named connection to use when more than one is configured",
}

var toolCatalog = []protocol.Tool{
	{
		Name:        "sql_list_databases",
		Description: "List the user databases visible on the connected server",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"connection": connectionProperty,
			},
		},
	},
	{
		Name:        "sql_list_tables",
		Description: "List the tables and views in a database, optionally filtered by schema",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"database": map[string]interface{}{
					"type":        "string",
					"description": "Database to inspect",
				},
				"schema": map[string]interface{}{
					"type":        "string",
					"description": "Schema to filter by (defaults to public on PostgreSQL, dbo on SQL Server)",
				},
				"connection": connectionProperty,
			},
			"required": []string{"database"},
		},
	},
	{
		Name:        "sql_describe_table",
		Description: "Describe a table or view: columns, primary key, indexes, foreign keys, and constraints",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"database": map[string]interface{}{
					"type":        "string",
					"description": "Database containing the table",
				},
				"table": map[string]interface{}{
					"type":        "string",
					"description": "Table or view name",
				},
				"schema": map[string]interface{}{
					"type":        "string",
					"description": "Schema the table lives in (defaults to public on PostgreSQL, dbo on SQL Server)",
				},
				"connection": connectionProperty,
			},
			"required": []string{"database", "table"},
		},
	},
	{
		Name:        "sql_query",
		Description: "Run a read-only SQL query (SELECT, WITH, or EXPLAIN) and return the rows",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"database": map[string]interface{}{
					"type":        "string",
					"description": "Database to query",
				},
				"query": map[string]interface{}{
					"type":        "string",
					"description": "The SQL statement; must start with SELECT, WITH, or EXPLAIN",
				},
				"maxRows": map[string]interface{}{
					"type":        "integer",
					"description": fmt.Sprintf("Row cap for the result set (default %d, maximum %d)", DefaultMaxRows, AbsoluteMaxRows),
				},
				"connection": connectionProperty,
			},
			"required": []string{"database", "query"},
		},
	},
	{
		Name:        "sql_get_query_plan",
		Description: "Return the engine's execution plan for a query without running it",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"database": map[string]interface{}{
					"type":        "string",
					"description": "Database to plan against",
				},
				"query": map[string]interface{}{
					"type":        "string",
					"description": "The SQL statement; must start with SELECT, WITH, or EXPLAIN",
				},
				"connection": connectionProperty,
			},
			"required": []string{"database", "query"},
		},
	},
}

// List returns the list of available tools
func (h *Handler) List(ctx context.Context, req *protocol.ListToolsRequest) (*protocol.ListToolsResult, error) {
	return &protocol.ListToolsResult{Tools: toolCatalog}, nil
}

// Call executes a tool by name
func (h *Handler) Call(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	atomic.AddInt64(&h.toolCalls, 1)

	args := req.Arguments
	if args == nil {
		args = map[string]interface{}{}
	}

	if h.logger != nil {
		h.logger.Debugf("Tool call: %s", req.Name)
	}

	ctx, cancel := context.WithTimeout(ctx, h.limits.CommandTimeout)
	defer cancel()

	var result *protocol.CallToolResult
	var err error

	switch req.Name {
	case "sql_list_databases":
		result, err = h.executeListDatabases(ctx, args)
	case "sql_list_tables":
		result, err = h.executeListTables(ctx, args)
	case "sql_describe_table":
		result, err = h.executeDescribeTable(ctx, args)
	case "sql_query":
		result, err = h.executeQuery(ctx, args)
	case "sql_get_query_plan":
		result, err = h.executeQueryPlan(ctx, args)
	default:
		return nil, &protocol.RPCError{
			Code:    protocol.ToolNotFoundError,
			Message: fmt.Sprintf("Tool not found: %s", req.Name),
		}
	}

	if err != nil {
		return nil, err
	}
	if result.IsError {
		atomic.AddInt64(&h.toolFailures, 1)
	}
	return result, nil
}

// Metrics returns cumulative dispatch counters.
func (h *Handler) Metrics() map[string]int64 {
	return map[string]int64{
		"requests_processed": atomic.LoadInt64(&h.toolCalls),
		"requests_failed":    atomic.LoadInt64(&h.toolFailures),
		"queries_executed":   atomic.LoadInt64(&h.queriesExecuted),
		"queries_rejected":   atomic.LoadInt64(&h.queriesRejected),
	}
}

func (h *Handler) executeListDatabases(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	conn, errResult := h.resolveConnection(ctx, args, "")
	if errResult != nil {
		return errResult, nil
	}

	databases, err := conn.ListDatabases(ctx)
	if err != nil {
		return h.errorResult(err.Error(), nil), nil
	}

	return h.successResult(map[string]interface{}{
		"databases": databases,
		"count":     len(databases),
	})
}

func (h *Handler) executeListTables(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	databaseName, errResult := h.identifierArg(args, "database", true)
	if errResult != nil {
		return errResult, nil
	}
	schema, errResult := h.identifierArg(args, "schema", false)
	if errResult != nil {
		return errResult, nil
	}

	conn, errResult := h.resolveConnection(ctx, args, databaseName)
	if errResult != nil {
		return errResult, nil
	}

	tables, err := conn.ListTables(ctx, schema)
	if err != nil {
		return h.errorResult(err.Error(), nil), nil
	}

	payload := map[string]interface{}{
		"database": databaseName,
		"tables":   tables,
		"count":    len(tables),
	}
	if schema != "" {
		payload["schema"] = schema
	}
	return h.successResult(payload)
}

func (h *Handler) executeDescribeTable(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	databaseName, errResult := h.identifierArg(args, "database", true)
	if errResult != nil {
		return errResult, nil
	}
	table, errResult := h.identifierArg(args, "table", true)
	if errResult != nil {
		return errResult, nil
	}
	schema, errResult := h.identifierArg(args, "schema", false)
	if errResult != nil {
		return errResult, nil
	}

	conn, errResult := h.resolveConnection(ctx, args, databaseName)
	if errResult != nil {
		return errResult, nil
	}

	tableSchema, err := conn.DescribeTable(ctx, schema, table)
	if err != nil {
		return h.errorResult(err.Error(), nil), nil
	}

	return h.successResult(map[string]interface{}{
		"database":          databaseName,
		"schema":            tableSchema.Schema,
		"table":             tableSchema.Table,
		"columns":           tableSchema.Columns,
		"primaryKeyColumns": tableSchema.PrimaryKeyColumns,
		"indexes":           tableSchema.Indexes,
		"foreignKeys":       tableSchema.ForeignKeys,
		"constraints":       tableSchema.Constraints,
	})
}

func (h *Handler) executeQuery(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	databaseName, errResult := h.identifierArg(args, "database", true)
	if errResult != nil {
		return errResult, nil
	}

	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return h.errorResult("Missing required argument: query", nil), nil
	}

	maxRows, errResult := h.maxRowsArg(args)
	if errResult != nil {
		return errResult, nil
	}

	// Validation runs before any connection work so a rejected
	// statement never reaches the database.
	validation, err := validator.ValidateOrReject(query, h.limits.MaxQueryLength)
	if err != nil {
		atomic.AddInt64(&h.queriesRejected, 1)
		return h.errorResult(err.Error(), map[string]interface{}{
			"errors":   validation.Errors,
			"warnings": validation.Warnings,
		}), nil
	}

	conn, errResult := h.resolveConnection(ctx, args, databaseName)
	if errResult != nil {
		return errResult, nil
	}

	rewritten, limitApplied := h.applyRowLimit(conn.Engine(), query, maxRows)

	var cacheKey string
	if h.cache != nil {
		cacheKey = h.cache.Key(stringArg(args, "connection"), conn.Database(), rewritten, maxRows)
		if cached, ok := h.cache.Get(ctx, cacheKey); ok {
			return h.successResult(queryPayload(databaseName, cached, validation.Warnings, limitApplied, maxRows, true))
		}
	}

	result, err := conn.ExecuteQuery(ctx, rewritten, maxRows)
	if err != nil {
		return h.errorResult(err.Error(), nil), nil
	}
	atomic.AddInt64(&h.queriesExecuted, 1)

	if h.cache != nil {
		h.cache.Put(ctx, cacheKey, result)
	}

	return h.successResult(queryPayload(databaseName, result, validation.Warnings, limitApplied, maxRows, false))
}

func (h *Handler) executeQueryPlan(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	databaseName, errResult := h.identifierArg(args, "database", true)
	if errResult != nil {
		return errResult, nil
	}

	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return h.errorResult("Missing required argument: query", nil), nil
	}

	validation, err := validator.ValidateOrReject(query, h.limits.MaxQueryLength)
	if err != nil {
		atomic.AddInt64(&h.queriesRejected, 1)
		return h.errorResult(err.Error(), map[string]interface{}{
			"errors":   validation.Errors,
			"warnings": validation.Warnings,
		}), nil
	}

	conn, errResult := h.resolveConnection(ctx, args, databaseName)
	if errResult != nil {
		return errResult, nil
	}

	plan, err := conn.GetQueryPlan(ctx, query)
	if err != nil {
		return h.errorResult(err.Error(), nil), nil
	}

	payload := map[string]interface{}{
		"database": databaseName,
		"format":   plan.Format,
		"plan":     plan.Plan,
	}
	if len(validation.Warnings) > 0 {
		payload["warnings"] = validation.Warnings
	}
	return h.successResult(payload)
}

// resolveConnection looks up the connection for the optional
// "connection" argument, dialing on first use. Resolution failures come
// back as tool error results.
func (h *Handler) resolveConnection(ctx context.Context, args map[string]interface{}, databaseName string) (database.Connection, *protocol.CallToolResult) {
	if len(h.manager.Names()) == 0 {
		return nil, h.errorResult(fmt.Sprintf("%v: no database connections are configured", database.ErrNotInitialized), nil)
	}

	conn, err := h.manager.Get(ctx, stringArg(args, "connection"), databaseName)
	if err != nil {
		return nil, h.errorResult(err.Error(), nil)
	}
	return conn, nil
}

func (h *Handler) applyRowLimit(engine database.Engine, sql string, maxRows int) (string, bool) {
	// SQL Server has no trailing LIMIT form, so only an existing TOP
	// clause is clamped; the adapter's row cap still bounds the read.
	if engine == database.SQLServer {
		return validator.ClampRowLimit(sql, maxRows)
	}
	return validator.EnforceRowLimit(sql, maxRows)
}

func (h *Handler) identifierArg(args map[string]interface{}, key string, required bool) (string, *protocol.CallToolResult) {
	value := stringArg(args, key)
	if value == "" {
		if required {
			return "", h.errorResult(fmt.Sprintf("Missing required argument: %s", key), nil)
		}
		return "", nil
	}

	sanitized, err := validator.SanitizeIdentifier(value)
	if err != nil {
		return "", h.errorResult(fmt.Sprintf("Invalid %s identifier: %q", key, value), nil)
	}
	return sanitized, nil
}

func (h *Handler) maxRowsArg(args map[string]interface{}) (int, *protocol.CallToolResult) {
	raw, ok := args["maxRows"]
	if !ok {
		return h.limits.DefaultMaxRows, nil
	}

	var maxRows int
	switch v := raw.(type) {
	case float64:
		maxRows = int(v)
	case int:
		maxRows = v
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, h.errorResult("Argument maxRows must be an integer", nil)
		}
		maxRows = int(n)
	default:
		return 0, h.errorResult("Argument maxRows must be an integer", nil)
	}

	if maxRows <= 0 {
		return 0, h.errorResult("Argument maxRows must be positive", nil)
	}
	if maxRows > h.limits.AbsoluteMaxRows {
		maxRows = h.limits.AbsoluteMaxRows
	}
	return maxRows, nil
}

func stringArg(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}

func queryPayload(databaseName string, result *database.QueryResult, warnings []string, limitApplied bool, maxRows int, cached bool) map[string]interface{} {
	payload := map[string]interface{}{
		"database":        databaseName,
		"columns":         result.Columns,
		"rows":            result.Rows,
		"rowCount":        result.RowCount,
		"executionTimeMs": result.ExecutionTimeMs,
		"truncated":       result.Truncated,
		"limitApplied":    limitApplied,
		"maxRows":         maxRows,
		"cached":          cached,
	}
	if len(warnings) > 0 {
		payload["warnings"] = warnings
	}
	return payload
}

func (h *Handler) successResult(payload map[string]interface{}) (*protocol.CallToolResult, error) {
	payload["success"] = true
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool result: %w", err)
	}

	return &protocol.CallToolResult{
		Content: []protocol.ToolContent{
			{
				Type:     "text",
				Text:     string(data),
				MimeType: "application/json",
			},
		},
	}, nil
}

func (h *Handler) errorResult(message string, details map[string]interface{}) *protocol.CallToolResult {
	if h.logger != nil {
		h.logger.Debugf("Tool error: %s", message)
	}

	payload := map[string]interface{}{
		"success": false,
		"error":   message,
	}
	for k, v := range details {
		payload[k] = v
	}
	data, _ := json.Marshal(payload)

	return &protocol.CallToolResult{
		Content: []protocol.ToolContent{
			{
				Type:     "text",
				Text:     string(data),
				MimeType: "application/json",
			},
		},
		IsError: true,
	}
}
