package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"animagen/internal/pipeline"
	"animagen/internal/store"
)

func newGenerateCmd() *cobra.Command {
	var noSave bool

	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate one animation and print the video path",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")

			loop, err := buildLoop(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			req := pipeline.Request{
				ID:        uuid.NewString(),
				Prompt:    prompt,
				CreatedAt: time.Now().UTC(),
			}

			result, err := loop.Run(ctx, req, func(ev pipeline.Event) {
				if ev.Attempt > 0 {
					fmt.Printf("  [attempt %d] %s: %s\n", ev.Attempt, ev.Stage, ev.Message)
				} else {
					fmt.Printf("  %s: %s\n", ev.Stage, ev.Message)
				}
			})
			if err != nil {
				return err
			}

			if !noSave {
				if err := saveToHistory(ctx, result); err != nil {
					fmt.Fprintf(os.Stderr, "warning: failed to save history: %v\n", err)
				}
			}

			switch result.Status {
			case pipeline.StatusSucceeded:
				fmt.Printf("\nDone in %d attempt(s).\nVideo: %s\n", len(result.Attempts), result.VideoPath)
				return nil
			case pipeline.StatusFailedExhausted:
				return fmt.Errorf("no successful render after %d attempts: %s", len(result.Attempts), result.FinalError)
			default:
				return fmt.Errorf("generation failed: %s", result.FinalError)
			}
		},
	}

	cmd.Flags().BoolVar(&noSave, "no-save", false, "do not record the run in history")
	return cmd
}

func saveToHistory(ctx context.Context, result *pipeline.Result) error {
	history, err := store.Open(cfg.Server.DatabasePath)
	if err != nil {
		return err
	}
	defer history.Close()
	return history.SaveResult(ctx, result)
}
