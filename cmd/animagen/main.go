// animagen turns natural-language prompts into rendered Manim animations.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"animagen/internal/config"
	"animagen/internal/llm"
	"animagen/internal/logging"
	"animagen/internal/pipeline"
	"animagen/internal/render"
	"animagen/internal/safety"
)

const version = "1.0.0"

var (
	flagConfigPath  string
	flagVerbose     bool
	flagAPIKey      string
	flagMaxAttempts int

	cfg *config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "animagen",
		Short: "Generate Manim animations from natural-language prompts",
		Long: `animagen asks an LLM to write a Manim scene for your prompt, renders it
through a manim-server gateway, and feeds render errors back to the model
until the video succeeds or the attempt budget runs out.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(flagConfigPath)
			if err != nil {
				return err
			}
			if flagAPIKey != "" {
				cfg.LLM.APIKey = flagAPIKey
			}
			if flagMaxAttempts > 0 {
				cfg.Pipeline.MaxAttempts = flagMaxAttempts
			}

			level := cfg.Logging.Level
			if flagVerbose {
				level = "debug"
			}
			return logging.Initialize(logging.Options{
				Level:      level,
				Verbose:    flagVerbose,
				Categories: cfg.Logging.Categories,
			})
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Sync()
		},
	}

	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", config.DefaultPath, "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "override the LLM API key")
	rootCmd.PersistentFlags().IntVar(&flagMaxAttempts, "max-attempts", 0, "override the correction loop attempt budget")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newGenerateCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// buildLoop assembles the correction loop from configuration.
func buildLoop(cfg *config.Config) (*pipeline.Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	generator, err := llm.New(llm.Config{
		Provider:   cfg.LLM.Provider,
		APIKey:     cfg.LLM.APIKey,
		Model:      cfg.LLM.Model,
		BaseURL:    cfg.LLM.BaseURL,
		Deployment: cfg.LLM.Deployment,
		APIVersion: cfg.LLM.APIVersion,
		Timeout:    cfg.GetLLMTimeout(),
	})
	if err != nil {
		return nil, err
	}

	renderer := render.NewGatewayClient(cfg.Render.BaseURL, cfg.GetRenderTimeout())

	var validator pipeline.Validator
	if !cfg.Pipeline.DisableSafety {
		validator = safety.NewValidator()
	}

	return pipeline.New(generator, renderer, validator, pipeline.Config{
		MaxAttempts:   cfg.Pipeline.MaxAttempts,
		Quality:       cfg.Render.Quality,
		Resolution:    cfg.Render.Resolution,
		DisableRefine: cfg.Pipeline.DisableRefine,
		DisableSafety: cfg.Pipeline.DisableSafety,
	})
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the animagen version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("animagen %s\n", version)
		},
	}
}
