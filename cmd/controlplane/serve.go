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

	"github.com/cyberpunk042/devops-control-plane-sub010/internal/httpapi"
	"github.com/spf13/cobra"
)

// serveFlags are the only CLI surface this subcommand exposes — every
// other tunable lives in the settings file loaded by appconfig.Load.
type serveFlags struct {
	configPath string
}

func newServeCmd() *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control plane HTTP daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), flags.configPath)
		},
	}

	cmd.Flags().StringVar(&flags.configPath, "config", "controlplane.yaml", "path to the server settings file")

	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	c, err := buildCore(configPath)
	if err != nil {
		return err
	}
	defer c.Close()

	srv := httpapi.NewServer(c.registry, c.resolver, c.engine, c.matcher, c.planner, c.chains, c.audit, c.cache, c.profiler, c.runner, c.log, c.cfg.RecipeDir)

	httpServer := &http.Server{
		Addr:         c.cfg.BindAddress,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // execution streams can run long; the executor pool bounds concurrency instead
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		c.log.WithFields(map[string]any{"bind_address": c.cfg.BindAddress, "recipe_dir": c.cfg.RecipeDir}).Info("starting control plane")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c.log.Info("shutting down control plane")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return <-serveErr
	case err := <-serveErr:
		return err
	}
}
