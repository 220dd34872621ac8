package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"animagen/internal/render"
)

func TestQualityFlag(t *testing.T) {
	assert.Equal(t, "-ql", qualityFlag("low"))
	assert.Equal(t, "-qm", qualityFlag("medium"))
	assert.Equal(t, "-qh", qualityFlag("high"))
	assert.Equal(t, "-qm", qualityFlag(""))
	assert.Equal(t, "-qm", qualityFlag("ultra"))
	assert.Equal(t, "-qh", qualityFlag("HIGH"))
}

func TestFindVideoFromOutput(t *testing.T) {
	dir := t.TempDir()
	videoPath := filepath.Join(dir, "CircleDemo.mp4")
	require.NoError(t, os.WriteFile(videoPath, []byte("x"), 0o644))

	output := "Manim Community v0.18.0\nFile ready at " + videoPath + "\nRendered CircleDemo"
	found := findVideo(output, "CircleDemo", dir)
	assert.Equal(t, videoPath, found)
}

func TestFindVideoIgnoresMissingPaths(t *testing.T) {
	output := "File ready at /nonexistent/path/CircleDemo.mp4"
	assert.Empty(t, findVideo(output, "CircleDemo", t.TempDir()))
}

func TestFindVideoSearchesMediaTree(t *testing.T) {
	runDir := t.TempDir()
	sceneDir := filepath.Join(runDir, "media", "videos", "scene_script", "720p30")
	require.NoError(t, os.MkdirAll(sceneDir, 0o755))
	videoPath := filepath.Join(sceneDir, "SquareDemo.mp4")
	require.NoError(t, os.WriteFile(videoPath, []byte("x"), 0o644))

	found := findVideo("no paths in output", "SquareDemo", runDir)
	assert.Equal(t, videoPath, found)
}

func TestFindVideoFallsBackToNewestMp4(t *testing.T) {
	runDir := t.TempDir()
	sceneDir := filepath.Join(runDir, "media", "videos", "scene_script", "720p30")
	require.NoError(t, os.MkdirAll(sceneDir, 0o755))

	older := filepath.Join(sceneDir, "Old.mp4")
	newer := filepath.Join(sceneDir, "New.mp4")
	require.NoError(t, os.WriteFile(older, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(newer, []byte("x"), 0o644))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, past, past))

	found := findVideo("", "NoSuchScene", runDir)
	assert.Equal(t, newer, found)
}

func TestLimitedWriterTruncates(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, max: 10}

	n, err := lw.Write([]byte("0123456789abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 16, n)
	assert.Equal(t, "0123456789", buf.String())
	assert.True(t, lw.truncated)

	n, err = lw.Write([]byte("more"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "0123456789", buf.String())
}

func TestCollectVideoCopiesIntoOutputDir(t *testing.T) {
	srcDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "videos")
	src := filepath.Join(srcDir, "Demo.mp4")
	require.NoError(t, os.WriteFile(src, []byte("video-bytes"), 0o644))

	e := NewExecutor(ExecutorConfig{OutputDir: outDir})
	final, err := e.collectVideo(src, "12345_abcd", "Demo")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(outDir, "12345_abcd_Demo.mp4"), final)
	data, err := os.ReadFile(final)
	require.NoError(t, err)
	assert.Equal(t, "video-bytes", string(data))
}

func rpcCall(t *testing.T, handler http.Handler, method string, params any) render.RPCResponse {
	t.Helper()
	var rawParams json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		require.NoError(t, err)
		rawParams = data
	}
	body, err := json.Marshal(render.RPCRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: rawParams})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp render.RPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestRPCInitializeAndListTools(t *testing.T) {
	handler := newRPCHandler(NewExecutor(DefaultExecutorConfig())).Handler()

	resp := rpcCall(t, handler, "initialize", map[string]any{"protocolVersion": render.ProtocolVersion})
	require.Nil(t, resp.Error)
	var init render.InitializeResult
	require.NoError(t, json.Unmarshal(resp.Result, &init))
	assert.Equal(t, "manim-server", init.ServerInfo.Name)
	assert.Equal(t, render.ProtocolVersion, init.ProtocolVersion)

	resp = rpcCall(t, handler, "tools/list", nil)
	require.Nil(t, resp.Error)
	var tools render.ListToolsResult
	require.NoError(t, json.Unmarshal(resp.Result, &tools))
	require.Len(t, tools.Tools, 1)
	assert.Equal(t, render.ToolName, tools.Tools[0].Name)
}

func TestRPCPing(t *testing.T) {
	handler := newRPCHandler(NewExecutor(DefaultExecutorConfig())).Handler()
	resp := rpcCall(t, handler, "ping", nil)
	assert.Nil(t, resp.Error)
}

func TestRPCUnknownMethod(t *testing.T) {
	handler := newRPCHandler(NewExecutor(DefaultExecutorConfig())).Handler()
	resp := rpcCall(t, handler, "resources/list", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, render.CodeMethodNotFound, resp.Error.Code)
}

func TestRPCCallRejectsUnknownTool(t *testing.T) {
	handler := newRPCHandler(NewExecutor(DefaultExecutorConfig())).Handler()
	resp := rpcCall(t, handler, "tools/call", render.CallToolParams{
		Name:      "other_tool",
		Arguments: json.RawMessage(`{}`),
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, render.CodeMethodNotFound, resp.Error.Code)
}

func TestRPCCallRequiresCode(t *testing.T) {
	args, _ := json.Marshal(render.RenderArguments{})
	handler := newRPCHandler(NewExecutor(DefaultExecutorConfig())).Handler()
	resp := rpcCall(t, handler, "tools/call", render.CallToolParams{Name: render.ToolName, Arguments: args})
	require.NotNil(t, resp.Error)
	assert.Equal(t, render.CodeInvalidParams, resp.Error.Code)
}

func TestRenderReportsMissingInterpreter(t *testing.T) {
	e := NewExecutor(ExecutorConfig{
		Python:      "definitely-not-a-real-python-binary",
		OutputDir:   t.TempDir(),
		Timeout:     5 * time.Second,
		BaseTempDir: t.TempDir(),
	})

	payload := e.Render(t.Context(), render.RenderArguments{Code: "from manim import *"})
	assert.False(t, payload.Success)
	assert.True(t, strings.Contains(payload.Stderr, "failed to start manim"))
}
