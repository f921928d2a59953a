package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/redbco/redb-sqlgateway/pkg/logger"
)

// ProtocolVersion is the MCP protocol revision this server speaks.
const ProtocolVersion = "2024-11-05"

// ToolHandler handles tool operations
type ToolHandler interface {
	List(ctx context.Context, req *ListToolsRequest) (*ListToolsResult, error)
	Call(ctx context.Context, req *CallToolRequest) (*CallToolResult, error)
}

// PromptHandler handles prompt operations
type PromptHandler interface {
	List(ctx context.Context, req *ListPromptsRequest) (*ListPromptsResult, error)
	Get(ctx context.Context, req *GetPromptRequest) (*GetPromptResult, error)
}

// Handler routes MCP protocol requests. Methods other than initialize
// and ping are rejected until the client has initialized the session.
type Handler struct {
	logger       *logger.Logger
	initialized  atomic.Bool
	capabilities ServerCapabilities
	serverInfo   ImplementationInfo

	toolHandler   ToolHandler
	promptHandler PromptHandler
}

// NewHandler creates a new MCP protocol handler.
func NewHandler(log *logger.Logger, serverName, version string) *Handler {
	return &Handler{
		logger: log,
		capabilities: ServerCapabilities{
			Tools: &ToolsCapability{
				ListChanged: false,
			},
			Prompts: &PromptsCapability{
				ListChanged: false,
			},
		},
		serverInfo: ImplementationInfo{
			Name:    serverName,
			Version: version,
		},
	}
}

// SetToolHandler sets the tool handler
func (h *Handler) SetToolHandler(handler ToolHandler) {
	h.toolHandler = handler
}

// SetPromptHandler sets the prompt handler
func (h *Handler) SetPromptHandler(handler PromptHandler) {
	h.promptHandler = handler
}

// Initialized reports whether the session handshake has completed.
func (h *Handler) Initialized() bool {
	return h.initialized.Load()
}

// HandleRaw processes one JSON-RPC message and returns the encoded
// response, or nil when the message is a notification.
func (h *Handler) HandleRaw(ctx context.Context, data []byte) []byte {
	var req JSONRPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return h.encodeError(nil, ParseError, "Invalid JSON")
	}

	if req.JSONRPC != "2.0" {
		return h.encodeError(req.ID, InvalidRequest, "Invalid JSON-RPC version")
	}

	result, err := h.handleMethod(ctx, req.Method, req.Params)

	// Notifications never get a response, not even an error.
	if req.IsNotification() {
		if err != nil && h.logger != nil {
			h.logger.Debugf("Notification %q failed: %v", req.Method, err)
		}
		return nil
	}

	if err != nil {
		if rpcErr, ok := err.(*RPCError); ok {
			return h.encodeErrorData(req.ID, rpcErr)
		}
		return h.encodeError(req.ID, InternalError, err.Error())
	}

	return h.encodeResult(req.ID, result)
}

// ServeHTTP implements http.Handler for MCP over HTTP POST.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.Write(h.encodeError(nil, ParseError, "Failed to read request body"))
		return
	}
	defer r.Body.Close()

	resp := h.HandleRaw(r.Context(), body)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(resp)
}

// handleMethod routes the method to the appropriate handler.
func (h *Handler) handleMethod(ctx context.Context, method string, params interface{}) (interface{}, error) {
	switch method {
	case "initialize":
		return h.handleInitialize(ctx, params)
	case "initialized", "notifications/initialized":
		// Notification that initialization is complete
		return struct{}{}, nil
	case "ping":
		return struct{}{}, nil
	case "tools/list":
		if !h.initialized.Load() {
			return nil, &RPCError{Code: InvalidRequest, Message: "Not initialized"}
		}
		return h.handleToolsList(ctx, params)
	case "tools/call":
		if !h.initialized.Load() {
			return nil, &RPCError{Code: InvalidRequest, Message: "Not initialized"}
		}
		return h.handleToolsCall(ctx, params)
	case "prompts/list":
		if !h.initialized.Load() {
			return nil, &RPCError{Code: InvalidRequest, Message: "Not initialized"}
		}
		return h.handlePromptsList(ctx, params)
	case "prompts/get":
		if !h.initialized.Load() {
			return nil, &RPCError{Code: InvalidRequest, Message: "Not initialized"}
		}
		return h.handlePromptsGet(ctx, params)
	default:
		return nil, &RPCError{Code: MethodNotFound, Message: fmt.Sprintf("Method not found: %s", method)}
	}
}

// handleInitialize handles the initialize method
func (h *Handler) handleInitialize(ctx context.Context, params interface{}) (interface{}, error) {
	var req InitializeRequest
	if err := h.unmarshalParams(params, &req); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid initialize params"}
	}

	if h.logger != nil {
		h.logger.Infof("MCP client connecting: %s v%s", req.ClientInfo.Name, req.ClientInfo.Version)
	}

	h.initialized.Store(true)

	return InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    h.capabilities,
		ServerInfo:      h.serverInfo,
	}, nil
}

// handleToolsList handles the tools/list method
func (h *Handler) handleToolsList(ctx context.Context, params interface{}) (interface{}, error) {
	if h.toolHandler == nil {
		return nil, &RPCError{Code: InternalError, Message: "Tool handler not configured"}
	}

	var req ListToolsRequest
	if params != nil {
		if err := h.unmarshalParams(params, &req); err != nil {
			return nil, &RPCError{Code: InvalidParams, Message: "Invalid parameters"}
		}
	}

	return h.toolHandler.List(ctx, &req)
}

// handleToolsCall handles the tools/call method
func (h *Handler) handleToolsCall(ctx context.Context, params interface{}) (interface{}, error) {
	if h.toolHandler == nil {
		return nil, &RPCError{Code: InternalError, Message: "Tool handler not configured"}
	}

	var req CallToolRequest
	if err := h.unmarshalParams(params, &req); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid parameters"}
	}

	return h.toolHandler.Call(ctx, &req)
}

// handlePromptsList handles the prompts/list method
func (h *Handler) handlePromptsList(ctx context.Context, params interface{}) (interface{}, error) {
	if h.promptHandler == nil {
		return nil, &RPCError{Code: InternalError, Message: "Prompt handler not configured"}
	}

	var req ListPromptsRequest
	if params != nil {
		if err := h.unmarshalParams(params, &req); err != nil {
			return nil, &RPCError{Code: InvalidParams, Message: "Invalid parameters"}
		}
	}

	return h.promptHandler.List(ctx, &req)
}

// handlePromptsGet handles the prompts/get method
func (h *Handler) handlePromptsGet(ctx context.Context, params interface{}) (interface{}, error) {
	if h.promptHandler == nil {
		return nil, &RPCError{Code: InternalError, Message: "Prompt handler not configured"}
	}

	var req GetPromptRequest
	if err := h.unmarshalParams(params, &req); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid parameters"}
	}

	return h.promptHandler.Get(ctx, &req)
}

// unmarshalParams unmarshals params into the target struct
func (h *Handler) unmarshalParams(params interface{}, target interface{}) error {
	// Re-marshal and unmarshal to convert map to struct
	data, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

func (h *Handler) encodeResult(id interface{}, result interface{}) []byte {
	return h.encode(JSONRPCResponse{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	})
}

func (h *Handler) encodeError(id interface{}, code int, message string) []byte {
	return h.encode(JSONRPCResponse{
		JSONRPC: "2.0",
		Error: &RPCError{
			Code:    code,
			Message: message,
		},
		ID: id,
	})
}

func (h *Handler) encodeErrorData(id interface{}, rpcErr *RPCError) []byte {
	return h.encode(JSONRPCResponse{
		JSONRPC: "2.0",
		Error:   rpcErr,
		ID:      id,
	})
}

func (h *Handler) encode(resp JSONRPCResponse) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		if h.logger != nil {
			h.logger.Errorf("Failed to encode response: %v", err)
		}
		data, _ = json.Marshal(JSONRPCResponse{
			JSONRPC: "2.0",
			Error:   &RPCError{Code: InternalError, Message: "Failed to encode response"},
			ID:      resp.ID,
		})
	}
	return data
}
