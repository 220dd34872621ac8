// manim-server is the rendering gateway: a small HTTP JSON-RPC server that
// executes Manim scripts via the manim CLI and exposes the result as the
// render_manim_scene tool.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"animagen/internal/logging"
)

var (
	flagListen    string
	flagOutputDir string
	flagPython    string
	flagTimeout   time.Duration
	flagVerbose   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "manim-server",
		Short: "HTTP rendering gateway for Manim scenes",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := "info"
			if flagVerbose {
				level = "debug"
			}
			return logging.Initialize(logging.Options{Level: level, Verbose: flagVerbose})
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Sync()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	defaults := DefaultExecutorConfig()
	rootCmd.Flags().StringVar(&flagListen, "listen", ":8765", "listen address")
	rootCmd.Flags().StringVar(&flagOutputDir, "output-dir", defaults.OutputDir, "directory for finished videos")
	rootCmd.Flags().StringVar(&flagPython, "python", defaults.Python, "python interpreter to run manim with")
	rootCmd.Flags().DurationVar(&flagTimeout, "timeout", defaults.Timeout, "per-render timeout")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	log := logging.Get(logging.CategoryServer)

	cfg := DefaultExecutorConfig()
	cfg.OutputDir = flagOutputDir
	cfg.Python = flagPython
	cfg.Timeout = flagTimeout

	handler := newRPCHandler(NewExecutor(cfg))

	httpServer := &http.Server{
		Addr:              flagListen,
		Handler:           handler.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infof("manim-server listening on %s (python=%s, output=%s)", flagListen, cfg.Python, cfg.OutputDir)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
