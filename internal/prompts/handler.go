package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/redbco/redb-sqlgateway/internal/protocol"
	"github.com/redbco/redb-sqlgateway/pkg/logger"
)

// Handler serves the built-in prompt catalog. Prompts guide an MCP
// client through schema exploration and read-only query writing using
// the gateway's tools.
type Handler struct {
	logger *logger.Logger
}

// NewHandler creates a new prompt handler
func NewHandler(log *logger.Logger) *Handler {
	return &Handler{logger: log}
}

// promptDefinition pairs an advertised prompt with its message
// templates. Placeholders of the form {name} are substituted from the
// request arguments when the prompt is rendered.
type promptDefinition struct {
	prompt   protocol.Prompt
	messages []messageTemplate
}

type messageTemplate struct {
	role string
	text string
}

var catalog = []promptDefinition{
	{
		prompt: protocol.Prompt{
			Name:        "explore_database",
			Description: "Explore the schema of a database and summarize its structure",
			Arguments: []protocol.PromptArgument{
				{Name: "database", Description: "Database to explore", Required: true},
				{Name: "connection", Description: "Named connection to use when more than one is configured"},
			},
		},
		messages: []messageTemplate{
			{
				role: "user",
				text: "Explore the {database} database. Start with sql_list_tables to see " +
					"what tables and views exist, then use sql_describe_table on the ones " +
					"that look central. Summarize the schema: the main entities, how they " +
					"relate through foreign keys, and anything unusual you notice. All " +
					"statements run read-only through sql_query.",
			},
		},
	},
	{
		prompt: protocol.Prompt{
			Name:        "analyze_table",
			Description: "Profile a single table: structure, keys, and data characteristics",
			Arguments: []protocol.PromptArgument{
				{Name: "database", Description: "Database containing the table", Required: true},
				{Name: "table", Description: "Table to analyze", Required: true},
				{Name: "schema", Description: "Schema the table lives in, when not the default"},
			},
		},
		messages: []messageTemplate{
			{
				role: "user",
				text: "Analyze the table {table} in database {database}. Use " +
					"sql_describe_table to get its columns, keys, and indexes, then profile " +
					"the data with read-only queries: row count, null rates, value " +
					"distributions for low-cardinality columns, and min/max for dates and " +
					"numbers. Keep result sets small with an explicit LIMIT.",
			},
		},
	},
	{
		prompt: protocol.Prompt{
			Name:        "write_safe_query",
			Description: "Write and verify a read-only SQL query that answers a question",
			Arguments: []protocol.PromptArgument{
				{Name: "database", Description: "Database to query", Required: true},
				{Name: "question", Description: "The question the query should answer", Required: true},
			},
		},
		messages: []messageTemplate{
			{
				role: "user",
				text: "Write a read-only SQL query against {database} that answers: " +
					"{question}. Use sql_list_tables and sql_describe_table first so table " +
					"and column names are correct. The gateway only accepts statements " +
					"starting with SELECT, WITH, or EXPLAIN, rejects comments and multiple " +
					"statements, and caps result rows, so include an explicit LIMIT. Check " +
					"the plan with sql_get_query_plan if the query touches large tables, " +
					"then run it with sql_query.",
			},
		},
	},
}

// List returns the list of available prompts
func (h *Handler) List(ctx context.Context, req *protocol.ListPromptsRequest) (*protocol.ListPromptsResult, error) {
	prompts := make([]protocol.Prompt, 0, len(catalog))
	for _, def := range catalog {
		prompts = append(prompts, def.prompt)
	}

	return &protocol.ListPromptsResult{
		Prompts: prompts,
	}, nil
}

// Get returns a rendered prompt with arguments
func (h *Handler) Get(ctx context.Context, req *protocol.GetPromptRequest) (*protocol.GetPromptResult, error) {
	def, ok := findPrompt(req.Name)
	if !ok {
		return nil, &protocol.RPCError{
			Code:    protocol.PromptNotFoundError,
			Message: fmt.Sprintf("Prompt not found: %s", req.Name),
		}
	}

	// Validate required arguments
	for _, arg := range def.prompt.Arguments {
		if arg.Required {
			if _, ok := req.Arguments[arg.Name]; !ok {
				return nil, &protocol.RPCError{
					Code:    protocol.InvalidParams,
					Message: fmt.Sprintf("Missing required argument: %s", arg.Name),
				}
			}
		}
	}

	return &protocol.GetPromptResult{
		Description: def.prompt.Description,
		Messages:    renderMessages(def.messages, req.Arguments),
	}, nil
}

func findPrompt(name string) (promptDefinition, bool) {
	for _, def := range catalog {
		if def.prompt.Name == name {
			return def, true
		}
	}
	return promptDefinition{}, false
}

// renderMessages substitutes {name} placeholders in message templates
// with the supplied argument values.
func renderMessages(templates []messageTemplate, args map[string]interface{}) []protocol.PromptMessage {
	messages := make([]protocol.PromptMessage, 0, len(templates))

	for _, tmpl := range templates {
		text := tmpl.text
		for key, value := range args {
			placeholder := fmt.Sprintf("{%s}", key)
			text = strings.ReplaceAll(text, placeholder, fmt.Sprintf("%v", value))
		}

		messages = append(messages, protocol.PromptMessage{
			Role: tmpl.role,
			Content: protocol.PromptContent{
				Type: "text",
				Text: text,
			},
		})
	}

	return messages
}
