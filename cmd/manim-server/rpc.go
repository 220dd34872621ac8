package main

import (
	"encoding/json"
	"net/http"

	"animagen/internal/logging"
	"animagen/internal/render"
)

const serverVersion = "1.0.0"

// rpcHandler serves the JSON-RPC endpoint backed by one Executor.
type rpcHandler struct {
	executor *Executor
}

func newRPCHandler(executor *Executor) *rpcHandler {
	return &rpcHandler{executor: executor}
}

// Handler builds the route table.
func (h *rpcHandler) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /rpc", h.handleRPC)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

func (h *rpcHandler) handleRPC(w http.ResponseWriter, r *http.Request) {
	log := logging.Get(logging.CategoryServer)

	var req render.RPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPC(w, render.RPCResponse{
			JSONRPC: "2.0",
			Error:   &render.RPCError{Code: render.CodeParseError, Message: "invalid JSON"},
		})
		return
	}

	resp := render.RPCResponse{JSONRPC: "2.0", ID: req.ID}

	switch req.Method {
	case "initialize":
		resp.Result = mustMarshal(render.InitializeResult{
			ProtocolVersion: render.ProtocolVersion,
			Capabilities:    map[string]any{"tools": map[string]any{}},
			ServerInfo:      render.ServerInfo{Name: "manim-server", Version: serverVersion},
		})

	case "ping":
		resp.Result = json.RawMessage(`{}`)

	case "tools/list":
		resp.Result = mustMarshal(render.ListToolsResult{
			Tools: []render.ToolSchema{
				{
					Name:        render.ToolName,
					Description: "Render a Manim scene from Python code and return the video path.",
					InputSchema: map[string]any{
						"type": "object",
						"properties": map[string]any{
							"code":       map[string]any{"type": "string"},
							"scene_name": map[string]any{"type": "string"},
							"quality":    map[string]any{"type": "string", "enum": []string{"low", "medium", "high"}},
							"resolution": map[string]any{"type": "string"},
						},
						"required": []string{"code"},
					},
				},
			},
		})

	case "tools/call":
		var params render.CallToolParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			resp.Error = &render.RPCError{Code: render.CodeInvalidParams, Message: "invalid tool call params"}
			break
		}
		if params.Name != render.ToolName {
			resp.Error = &render.RPCError{Code: render.CodeMethodNotFound, Message: "unknown tool: " + params.Name}
			break
		}
		var args render.RenderArguments
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			resp.Error = &render.RPCError{Code: render.CodeInvalidParams, Message: "invalid render arguments"}
			break
		}
		if args.Code == "" {
			resp.Error = &render.RPCError{Code: render.CodeInvalidParams, Message: "code is required"}
			break
		}
		payload := h.executor.Render(r.Context(), args)
		resp.Result = mustMarshal(payload)

	default:
		log.Debugf("unknown method %q", req.Method)
		resp.Error = &render.RPCError{Code: render.CodeMethodNotFound, Message: "method not found: " + req.Method}
	}

	writeRPC(w, resp)
}

func writeRPC(w http.ResponseWriter, resp render.RPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Get(logging.CategoryServer).Warnf("failed to encode response: %v", err)
	}
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
