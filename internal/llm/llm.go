// Package llm turns animation requests into Manim code by calling a hosted
// LLM provider. It exposes one narrow Client interface consumed by the
// correction loop; each provider gets its own client implementation.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Request carries the user prompt and, once the refine pass has run, the
// storyboard derived from it. Immutable for the lifetime of one generation.
type Request struct {
	Prompt     string
	Storyboard string
}

// SceneCode is a generated Manim script plus the Scene class it defines.
type SceneCode struct {
	Code      string
	SceneName string
}

// Client is the code generator consumed by the correction loop.
type Client interface {
	// Refine expands a raw user prompt into a storyboard.
	Refine(ctx context.Context, prompt string) (string, error)

	// GenerateScene produces a Manim script from a refined request.
	GenerateScene(ctx context.Context, req Request) (*SceneCode, error)

	// FixScene repairs a failing script given the execution diagnostic.
	// The diagnostic is forwarded verbatim; this package does not interpret it.
	FixScene(ctx context.Context, req Request, prior *SceneCode, errDetail string) (*SceneCode, error)
}

// Config holds provider-independent client settings.
type Config struct {
	Provider string // openai, azure, gemini
	APIKey   string
	Model    string
	BaseURL  string

	// Azure OpenAI only
	Deployment string
	APIVersion string

	Timeout time.Duration
}

// New creates the client for the configured provider.
func New(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, &ProviderError{Provider: cfg.Provider, Message: "API key not configured", Fatal: true}
	}

	switch cfg.Provider {
	case "openai", "azure":
		return NewOpenAIClient(cfg), nil
	case "gemini":
		return NewGeminiClient(cfg)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.Provider)
	}
}

// ProviderError reports a failed provider call. Fatal errors (bad credentials,
// missing configuration) must stop the correction loop immediately; everything
// else consumes one retry slot.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Fatal      bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s provider error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s provider error: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsFatal reports whether the error must not be retried.
func (e *ProviderError) IsFatal() bool { return e.Fatal }

// fatalStatus reports whether an HTTP status indicates a credential or
// configuration problem rather than a transient failure.
func fatalStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

// IsProviderFatal reports whether err carries a non-retryable provider failure.
func IsProviderFatal(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Fatal
}
