package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"animagen/internal/server"
	"animagen/internal/store"
)

func newServeCmd() *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web UI and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			loop, err := buildLoop(cfg)
			if err != nil {
				return err
			}

			history, err := store.Open(cfg.Server.DatabasePath)
			if err != nil {
				return err
			}
			defer history.Close()

			addr := cfg.Server.ListenAddr
			if listenAddr != "" {
				addr = listenAddr
			}

			srv, err := server.New(server.LoopRunner{Loop: loop}, history, server.Options{
				ListenAddr: addr,
				OutputDir:  cfg.Render.OutputDir,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Printf("animagen listening on %s\n", addr)
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (overrides config)")
	return cmd
}
