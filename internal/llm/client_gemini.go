package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/genai"

	"animagen/internal/logging"
)

// GeminiClient implements Client on top of the Google GenAI SDK.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiClient creates a Gemini-backed generator.
func NewGeminiClient(cfg Config) (*GeminiClient, error) {
	model := cfg.Model
	if model == "" || strings.HasPrefix(model, "gpt-") {
		model = "gemini-2.5-flash"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, &ProviderError{Provider: "gemini", Message: "failed to create client: " + err.Error(), Fatal: true, Err: err}
	}

	return &GeminiClient{
		client:  client,
		model:   model,
		timeout: timeout,
	}, nil
}

// Refine implements Client.
func (c *GeminiClient) Refine(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, refineSystemMessage, refinePrompt(prompt), 0.25, 2500)
}

// GenerateScene implements Client.
func (c *GeminiClient) GenerateScene(ctx context.Context, req Request) (*SceneCode, error) {
	raw, err := c.complete(ctx, generateSystemMessage, generatePrompt(req.Prompt, req.Storyboard), 0.2, 4000)
	if err != nil {
		return nil, err
	}
	return sceneFromResponse(raw), nil
}

// FixScene implements Client.
func (c *GeminiClient) FixScene(ctx context.Context, req Request, prior *SceneCode, errDetail string) (*SceneCode, error) {
	raw, err := c.complete(ctx, fixSystemMessage, fixPrompt(req.Prompt, req.Storyboard, prior.Code, errDetail), 0.15, 4000)
	if err != nil {
		return nil, err
	}
	return sceneFromResponse(raw), nil
}

func (c *GeminiClient) complete(ctx context.Context, systemPrompt, userPrompt string, temperature float32, maxTokens int32) (string, error) {
	log := logging.Get(logging.CategoryAPI)

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	log.Debugf("[gemini] completion: model=%s user_len=%d", c.model, len(userPrompt))

	result, err := c.client.Models.GenerateContent(ctx, c.model,
		genai.Text(userPrompt),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
			Temperature:       genai.Ptr(temperature),
			MaxOutputTokens:   maxTokens,
		},
	)
	if err != nil {
		return "", c.wrapError(err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", &ProviderError{Provider: "gemini", Message: "no completion returned"}
	}

	log.Debugf("[gemini] completion done in %v response_len=%d", time.Since(start), len(text))
	return text, nil
}

func (c *GeminiClient) wrapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider:   "gemini",
			StatusCode: apiErr.Code,
			Message:    apiErr.Message,
			Fatal:      fatalStatus(apiErr.Code),
			Err:        err,
		}
	}
	return &ProviderError{Provider: "gemini", Message: err.Error(), Err: err}
}

var _ Client = (*GeminiClient)(nil)
