package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"animagen/internal/logging"
)

// GatewayClient talks JSON-RPC over HTTP to a rendering gateway.
type GatewayClient struct {
	mu sync.RWMutex

	baseURL    string
	timeout    time.Duration
	client     *http.Client
	connected  bool
	serverInfo *ServerInfo

	nextID atomic.Int64
}

// NewGatewayClient creates a client for the gateway at baseURL.
func NewGatewayClient(baseURL string, timeout time.Duration) *GatewayClient {
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &GatewayClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// Connect performs the initialize handshake and verifies the render tool
// is available.
func (c *GatewayClient) Connect(ctx context.Context) error {
	log := logging.Get(logging.CategoryRender)

	params, _ := json.Marshal(map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]string{
			"name":    "animagen",
			"version": "1.0.0",
		},
	})

	resp, err := c.call(ctx, "initialize", params)
	if err != nil {
		return fmt.Errorf("failed to connect to render gateway at %s: %w", c.baseURL, err)
	}

	var init InitializeResult
	if err := json.Unmarshal(resp.Result, &init); err != nil {
		return fmt.Errorf("failed to parse initialize response: %w", err)
	}

	tools, err := c.listTools(ctx)
	if err != nil {
		return err
	}
	found := false
	for _, tool := range tools {
		if tool.Name == ToolName {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("render gateway at %s does not expose %s", c.baseURL, ToolName)
	}

	c.mu.Lock()
	c.serverInfo = &init.ServerInfo
	c.connected = true
	c.mu.Unlock()

	log.Infof("connected to render gateway %s (%s %s)", c.baseURL, init.ServerInfo.Name, init.ServerInfo.Version)
	return nil
}

// Ping checks that the gateway is responsive.
func (c *GatewayClient) Ping(ctx context.Context) error {
	_, err := c.call(ctx, "ping", nil)
	return err
}

// IsConnected reports whether Connect succeeded.
func (c *GatewayClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Render implements Renderer via the render_manim_scene tool.
func (c *GatewayClient) Render(ctx context.Context, req Request) (*Result, error) {
	log := logging.Get(logging.CategoryRender)

	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	if !connected {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	args, err := json.Marshal(RenderArguments{
		Code:       req.Code,
		SceneName:  req.SceneName,
		Quality:    req.Quality,
		Resolution: req.Resolution,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal render arguments: %w", err)
	}
	params, err := json.Marshal(CallToolParams{Name: ToolName, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool call: %w", err)
	}

	start := time.Now()
	log.Infof("rendering scene %q quality=%s", req.SceneName, req.Quality)

	resp, err := c.call(ctx, "tools/call", params)
	if err != nil {
		return nil, fmt.Errorf("render gateway call failed: %w", err)
	}

	var payload RenderPayload
	if err := json.Unmarshal(resp.Result, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse render result: %w", err)
	}

	result := &Result{
		Success:   payload.Success,
		VideoPath: payload.VideoPath,
		Stdout:    payload.Stdout,
		Stderr:    payload.Stderr,
	}

	if !payload.Success {
		diagnostic := strings.TrimSpace(payload.Stderr)
		if diagnostic == "" {
			diagnostic = strings.TrimSpace(payload.Stdout)
		}
		if diagnostic == "" {
			diagnostic = "manim produced no output"
		}
		log.Warnf("render failed for scene %q after %v", req.SceneName, time.Since(start))
		return result, &ExecutionError{Diagnostic: diagnostic}
	}

	log.Infof("rendered scene %q in %v -> %s", req.SceneName, time.Since(start), payload.VideoPath)
	return result, nil
}

func (c *GatewayClient) listTools(ctx context.Context) ([]ToolSchema, error) {
	resp, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list gateway tools: %w", err)
	}
	var result ListToolsResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to parse tools response: %w", err)
	}
	return result.Tools, nil
}

// call sends one JSON-RPC request to the gateway's /rpc endpoint.
func (c *GatewayClient) call(ctx context.Context, method string, params json.RawMessage) (*RPCResponse, error) {
	rpcReq := RPCRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(rpcReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gateway unreachable: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned status %d: %s", httpResp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var rpcResp RPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("gateway error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return &rpcResp, nil
}

var _ Renderer = (*GatewayClient)(nil)
