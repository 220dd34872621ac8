package render

import "encoding/json"

// JSON-RPC 2.0 wire types shared by the gateway client and the manim-server
// binary. The protocol is the MCP tool-calling subset: initialize, ping,
// tools/list and tools/call over a single HTTP POST endpoint.

const (
	// ProtocolVersion is the MCP revision both sides speak.
	ProtocolVersion = "2024-11-05"

	// ToolName is the rendering tool exposed by the gateway.
	ToolName = "render_manim_scene"
)

// RPCRequest is a JSON-RPC 2.0 request.
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// RPCResponse is a JSON-RPC 2.0 response.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC error codes used by the gateway.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// InitializeResult is the initialize response payload.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
}

// ServerInfo identifies the gateway implementation.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ToolSchema describes one exposed tool.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// ListToolsResult is the tools/list response payload.
type ListToolsResult struct {
	Tools []ToolSchema `json:"tools"`
}

// CallToolParams is the tools/call request payload.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// RenderArguments are the render_manim_scene tool arguments.
type RenderArguments struct {
	Code       string `json:"code"`
	SceneName  string `json:"scene_name,omitempty"`
	Quality    string `json:"quality,omitempty"`
	Resolution string `json:"resolution,omitempty"`
}

// RenderPayload is the render_manim_scene tool result.
type RenderPayload struct {
	Success   bool   `json:"success"`
	VideoPath string `json:"video_path,omitempty"`
	Stdout    string `json:"stdout,omitempty"`
	Stderr    string `json:"stderr,omitempty"`
}
