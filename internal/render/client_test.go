package render

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway is a minimal in-process gateway for client tests.
type fakeGateway struct {
	t      *testing.T
	render func(args RenderArguments) RenderPayload
	calls  []string
}

func (g *fakeGateway) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req RPCRequest
		require.NoError(g.t, json.NewDecoder(r.Body).Decode(&req))
		g.calls = append(g.calls, req.Method)

		resp := RPCResponse{JSONRPC: "2.0", ID: req.ID}
		switch req.Method {
		case "initialize":
			resp.Result, _ = json.Marshal(InitializeResult{
				ProtocolVersion: ProtocolVersion,
				Capabilities:    map[string]any{"tools": map[string]any{}},
				ServerInfo:      ServerInfo{Name: "manim-server", Version: "1.0.0"},
			})
		case "ping":
			resp.Result = json.RawMessage(`{}`)
		case "tools/list":
			resp.Result, _ = json.Marshal(ListToolsResult{
				Tools: []ToolSchema{{Name: ToolName}},
			})
		case "tools/call":
			var params CallToolParams
			require.NoError(g.t, json.Unmarshal(req.Params, &params))
			require.Equal(g.t, ToolName, params.Name)
			var args RenderArguments
			require.NoError(g.t, json.Unmarshal(params.Arguments, &args))
			resp.Result, _ = json.Marshal(g.render(args))
		default:
			resp.Error = &RPCError{Code: CodeMethodNotFound, Message: "method not found"}
		}
		json.NewEncoder(w).Encode(resp)
	})
}

func TestGatewayClientRenderSuccess(t *testing.T) {
	var gotArgs RenderArguments
	gw := &fakeGateway{t: t, render: func(args RenderArguments) RenderPayload {
		gotArgs = args
		return RenderPayload{Success: true, VideoPath: "/videos/CircleDemo.mp4", Stdout: "done"}
	}}
	srv := httptest.NewServer(gw.handler())
	defer srv.Close()

	client := NewGatewayClient(srv.URL, 5*time.Second)
	result, err := client.Render(context.Background(), Request{
		Code:      "from manim import *",
		SceneName: "CircleDemo",
		Quality:   "medium",
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "/videos/CircleDemo.mp4", result.VideoPath)
	assert.Equal(t, "CircleDemo", gotArgs.SceneName)
	assert.Equal(t, "medium", gotArgs.Quality)

	// Render connects lazily: handshake first, then the tool call.
	assert.Equal(t, []string{"initialize", "tools/list", "tools/call"}, gw.calls)
	assert.True(t, client.IsConnected())
}

func TestGatewayClientRenderFailureReturnsDiagnostic(t *testing.T) {
	gw := &fakeGateway{t: t, render: func(args RenderArguments) RenderPayload {
		return RenderPayload{Success: false, Stderr: "NameError: name 'Circl' is not defined"}
	}}
	srv := httptest.NewServer(gw.handler())
	defer srv.Close()

	client := NewGatewayClient(srv.URL, 5*time.Second)
	result, err := client.Render(context.Background(), Request{Code: "x", SceneName: "Bad"})

	require.Error(t, err)
	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "NameError: name 'Circl' is not defined", ee.Diagnostic)
	assert.Equal(t, ee.Diagnostic, Diagnostic(err))

	require.NotNil(t, result)
	assert.False(t, result.Success)
}

func TestGatewayClientFailureFallsBackToStdout(t *testing.T) {
	gw := &fakeGateway{t: t, render: func(args RenderArguments) RenderPayload {
		return RenderPayload{Success: false, Stdout: "some stdout only"}
	}}
	srv := httptest.NewServer(gw.handler())
	defer srv.Close()

	client := NewGatewayClient(srv.URL, 5*time.Second)
	_, err := client.Render(context.Background(), Request{Code: "x"})

	require.Error(t, err)
	assert.Equal(t, "some stdout only", Diagnostic(err))
}

func TestGatewayClientConnectRejectsMissingTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req RPCRequest
		json.NewDecoder(r.Body).Decode(&req)
		resp := RPCResponse{JSONRPC: "2.0", ID: req.ID}
		switch req.Method {
		case "initialize":
			resp.Result, _ = json.Marshal(InitializeResult{ProtocolVersion: ProtocolVersion})
		case "tools/list":
			resp.Result, _ = json.Marshal(ListToolsResult{Tools: []ToolSchema{{Name: "other_tool"}}})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := NewGatewayClient(srv.URL, 5*time.Second)
	err := client.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not expose")
	assert.False(t, client.IsConnected())
}

func TestGatewayClientUnreachable(t *testing.T) {
	client := NewGatewayClient("http://127.0.0.1:1", 500*time.Millisecond)
	_, err := client.Render(context.Background(), Request{Code: "x"})
	require.Error(t, err)

	var ee *ExecutionError
	assert.False(t, errors.As(err, &ee), "transport failure is not an execution error")
}

func TestGatewayClientPing(t *testing.T) {
	gw := &fakeGateway{t: t, render: func(args RenderArguments) RenderPayload { return RenderPayload{} }}
	srv := httptest.NewServer(gw.handler())
	defer srv.Close()

	client := NewGatewayClient(srv.URL, 5*time.Second)
	assert.NoError(t, client.Ping(context.Background()))
}
