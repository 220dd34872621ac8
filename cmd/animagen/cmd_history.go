package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"animagen/internal/store"
)

func newHistoryCmd() *cobra.Command {
	var limit int
	var showID string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past generation runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			history, err := store.Open(cfg.Server.DatabasePath)
			if err != nil {
				return err
			}
			defer history.Close()

			if showID != "" {
				return showGeneration(cmd, history, showID)
			}

			generations, err := history.ListGenerations(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(generations) == 0 {
				fmt.Println("No runs recorded yet.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCREATED\tSTATUS\tPROMPT\tVIDEO")
			for _, gen := range generations {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					gen.ID,
					gen.CreatedAt.Local().Format("2006-01-02 15:04"),
					gen.Status,
					truncate(gen.Prompt, 48),
					gen.VideoPath,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	cmd.Flags().StringVar(&showID, "id", "", "show the full record for one run")
	return cmd
}

func showGeneration(cmd *cobra.Command, history *store.Store, id string) error {
	gen, err := history.GetGeneration(cmd.Context(), id)
	if err != nil {
		return err
	}

	fmt.Printf("ID:      %s\n", gen.ID)
	fmt.Printf("Created: %s\n", gen.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("Status:  %s\n", gen.Status)
	fmt.Printf("Prompt:  %s\n", gen.Prompt)
	if gen.VideoPath != "" {
		fmt.Printf("Video:   %s\n", gen.VideoPath)
	}
	if gen.FinalError != "" {
		fmt.Printf("Error:   %s\n", gen.FinalError)
	}
	for _, attempt := range gen.Attempts {
		fmt.Printf("\nAttempt %d (%s, %s)\n", attempt.Seq, attempt.Outcome, attempt.Duration)
		if attempt.ErrorDetail != "" {
			fmt.Printf("  %s\n", attempt.ErrorDetail)
		}
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
