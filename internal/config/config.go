// Package config holds all animagen configuration: LLM provider credentials,
// render gateway settings, the correction-loop budget, and the web shell.
// Configuration is loaded once at process start from YAML plus environment
// overrides and passed explicitly into constructors; there is no ambient
// global state.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for configuration unless told otherwise.
const DefaultPath = "animagen.yaml"

// Config holds all animagen configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM code generator
	LLM LLMConfig `yaml:"llm"`

	// Render gateway (execution server)
	Render RenderConfig `yaml:"render"`

	// Correction loop
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Web shell
	Server ServerConfig `yaml:"server"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the code generator provider.
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai, azure, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`

	// Azure OpenAI only
	Deployment string `yaml:"deployment"`
	APIVersion string `yaml:"api_version"`

	Timeout string `yaml:"timeout"`
}

// RenderConfig configures the Manim render gateway.
type RenderConfig struct {
	BaseURL    string `yaml:"base_url"`
	Timeout    string `yaml:"timeout"`
	Quality    string `yaml:"quality"` // low, medium, high
	Resolution string `yaml:"resolution"`
	OutputDir  string `yaml:"output_dir"`
}

// PipelineConfig configures the correction loop.
type PipelineConfig struct {
	// MaxAttempts bounds generation/execution round trips per request.
	MaxAttempts int `yaml:"max_attempts"`

	// DisableRefine skips the storyboard refinement pass.
	DisableRefine bool `yaml:"disable_refine"`

	// DisableSafety skips pre-execution validation of generated code.
	DisableSafety bool `yaml:"disable_safety"`
}

// ServerConfig configures the web shell.
type ServerConfig struct {
	ListenAddr   string `yaml:"listen_addr"`
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "animagen",
		Version: "0.3.0",

		LLM: LLMConfig{
			Provider:   "openai",
			Model:      "gpt-4.1-mini",
			BaseURL:    "https://api.openai.com/v1",
			APIVersion: "2024-02-15-preview",
			Timeout:    "120s",
		},

		Render: RenderConfig{
			BaseURL:    "http://localhost:8765",
			Timeout:    "300s",
			Quality:    "medium",
			Resolution: "1920x1080",
			OutputDir:  "videos",
		},

		Pipeline: PipelineConfig{
			MaxAttempts: 3,
		},

		Server: ServerConfig{
			ListenAddr:   ":8080",
			DatabasePath: "data/animagen.db",
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults when
// the file does not exist. Environment variables override file values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// Provider credentials, in priority order. Azure wins over plain OpenAI
	// when both endpoints are configured, matching the upstream behavior.
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "openai"
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}
	if key := os.Getenv("AZURE_OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "azure"
	}
	if endpoint := os.Getenv("AZURE_OPENAI_ENDPOINT"); endpoint != "" {
		c.LLM.BaseURL = endpoint
		c.LLM.Provider = "azure"
	}
	if deployment := os.Getenv("AZURE_OPENAI_DEPLOYMENT"); deployment != "" {
		c.LLM.Deployment = deployment
	}
	if model := os.Getenv("ANIMAGEN_MODEL"); model != "" {
		c.LLM.Model = model
	}

	if url := os.Getenv("ANIMAGEN_RENDER_URL"); url != "" {
		c.Render.BaseURL = url
	}
	if dir := os.Getenv("ANIMAGEN_OUTPUT_DIR"); dir != "" {
		c.Render.OutputDir = dir
	}
	if addr := os.Getenv("ANIMAGEN_LISTEN_ADDR"); addr != "" {
		c.Server.ListenAddr = addr
	}
}

// Validate checks the configuration for errors that must stop startup.
// Anything reported here is a configuration error: fatal, never retried.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required (set OPENAI_API_KEY, AZURE_OPENAI_API_KEY, or GEMINI_API_KEY)")
	}

	switch c.LLM.Provider {
	case "openai", "gemini":
	case "azure":
		if c.LLM.BaseURL == "" {
			return fmt.Errorf("llm.base_url (Azure endpoint) is required for provider azure")
		}
		if c.LLM.Deployment == "" {
			return fmt.Errorf("llm.deployment is required for provider azure")
		}
	default:
		return fmt.Errorf("unknown llm.provider %q (want openai, azure, or gemini)", c.LLM.Provider)
	}

	switch c.Render.Quality {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("unknown render.quality %q (want low, medium, or high)", c.Render.Quality)
	}

	if c.Pipeline.MaxAttempts <= 0 {
		return fmt.Errorf("pipeline.max_attempts must be positive, got %d", c.Pipeline.MaxAttempts)
	}

	return nil
}

// GetLLMTimeout returns the LLM call timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 120*time.Second)
}

// GetRenderTimeout returns the render call timeout as a duration.
func (c *Config) GetRenderTimeout() time.Duration {
	return parseDuration(c.Render.Timeout, 300*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
