package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"animagen/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage animagen configuration",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(flagConfigPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", flagConfigPath)
			}
			if err := config.DefaultConfig().Save(flagConfigPath); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", flagConfigPath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("provider:     %s\n", cfg.LLM.Provider)
			fmt.Printf("model:        %s\n", cfg.LLM.Model)
			fmt.Printf("api key:      %s\n", maskKey(cfg.LLM.APIKey))
			fmt.Printf("render url:   %s\n", cfg.Render.BaseURL)
			fmt.Printf("quality:      %s\n", cfg.Render.Quality)
			fmt.Printf("output dir:   %s\n", cfg.Render.OutputDir)
			fmt.Printf("max attempts: %d\n", cfg.Pipeline.MaxAttempts)
			fmt.Printf("listen addr:  %s\n", cfg.Server.ListenAddr)
			fmt.Printf("database:     %s\n", cfg.Server.DatabasePath)
			return nil
		},
	}

	cmd.AddCommand(initCmd)
	cmd.AddCommand(showCmd)
	return cmd
}

func maskKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
