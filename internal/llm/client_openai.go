package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"animagen/internal/logging"
)

// OpenAIClient implements Client for the OpenAI chat-completions API and, in
// azure mode, Azure OpenAI deployments (same wire format, different URL and
// auth header).
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	azure      bool
	deployment string
	apiVersion string

	httpClient  *http.Client
	mu          sync.Mutex
	lastRequest time.Time
}

// openAIMessage is a chat message.
type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// openAIRequest is the chat-completions request body.
type openAIRequest struct {
	Model       string          `json:"model,omitempty"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
}

// openAIResponse is the chat-completions response body.
type openAIResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// NewOpenAIClient creates a client for the openai or azure provider.
func NewOpenAIClient(cfg Config) *OpenAIClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4.1-mini"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &OpenAIClient{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		model:      model,
		azure:      cfg.Provider == "azure",
		deployment: cfg.Deployment,
		apiVersion: cfg.APIVersion,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Refine implements Client.
func (c *OpenAIClient) Refine(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, refineSystemMessage, refinePrompt(prompt), 0.25, 2500)
}

// GenerateScene implements Client.
func (c *OpenAIClient) GenerateScene(ctx context.Context, req Request) (*SceneCode, error) {
	raw, err := c.complete(ctx, generateSystemMessage, generatePrompt(req.Prompt, req.Storyboard), 0.2, 4000)
	if err != nil {
		return nil, err
	}
	return sceneFromResponse(raw), nil
}

// FixScene implements Client.
func (c *OpenAIClient) FixScene(ctx context.Context, req Request, prior *SceneCode, errDetail string) (*SceneCode, error) {
	raw, err := c.complete(ctx, fixSystemMessage, fixPrompt(req.Prompt, req.Storyboard, prior.Code, errDetail), 0.15, 4000)
	if err != nil {
		return nil, err
	}
	return sceneFromResponse(raw), nil
}

// endpoint returns the chat-completions URL for the configured mode.
func (c *OpenAIClient) endpoint() string {
	if c.azure {
		return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			c.baseURL, c.deployment, c.apiVersion)
	}
	return c.baseURL + "/chat/completions"
}

func (c *OpenAIClient) providerName() string {
	if c.azure {
		return "azure"
	}
	return "openai"
}

// complete sends one chat completion, retrying transient failures.
func (c *OpenAIClient) complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error) {
	log := logging.Get(logging.CategoryAPI)

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	if c.apiKey == "" {
		return "", &ProviderError{Provider: c.providerName(), Message: "API key not configured", Fatal: true}
	}

	// Keep a small gap between requests.
	c.mu.Lock()
	if elapsed := time.Since(c.lastRequest); elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	reqBody := openAIRequest{
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	if !c.azure {
		reqBody.Model = c.model
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	start := time.Now()
	log.Debugf("[%s] completion: model=%s system_len=%d user_len=%d",
		c.providerName(), c.model, len(systemPrompt), len(userPrompt))

	const maxRetries = 3
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return "", &ProviderError{Provider: c.providerName(), Message: "request cancelled", Err: ctx.Err()}
			case <-time.After(time.Duration(1<<uint(i-1)) * time.Second):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(jsonData))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.azure {
			req.Header.Set("api-key", c.apiKey)
		} else {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = &ProviderError{Provider: c.providerName(), Message: err.Error(), Err: err}
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = &ProviderError{Provider: c.providerName(), Message: "failed to read response: " + err.Error(), Err: err}
			continue
		}

		if fatalStatus(resp.StatusCode) {
			return "", &ProviderError{
				Provider:   c.providerName(),
				StatusCode: resp.StatusCode,
				Message:    strings.TrimSpace(string(body)),
				Fatal:      true,
			}
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = &ProviderError{Provider: c.providerName(), StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return "", &ProviderError{Provider: c.providerName(), StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		}

		var parsed openAIResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return "", &ProviderError{Provider: c.providerName(), Message: "failed to parse response: " + err.Error(), Err: err}
		}
		if parsed.Error != nil {
			return "", &ProviderError{Provider: c.providerName(), Message: parsed.Error.Message}
		}
		if len(parsed.Choices) == 0 {
			return "", &ProviderError{Provider: c.providerName(), Message: "no completion returned"}
		}

		out := strings.TrimSpace(parsed.Choices[0].Message.Content)
		log.Debugf("[%s] completion done in %v response_len=%d", c.providerName(), time.Since(start), len(out))
		return out, nil
	}

	log.Warnf("[%s] completion failed after retries: %v", c.providerName(), lastErr)
	return "", lastErr
}

var _ Client = (*OpenAIClient)(nil)
