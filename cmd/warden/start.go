// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sigil-dev/warden/internal/server"
	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the warden HTTP server",
		Long:  "Load configuration, wire stores, capabilities and the query loop, and serve the REST API.",
		RunE:  runStart,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")

	return cmd
}

func runStart(cmd *cobra.Command, _ []string) error {
	if f := cmd.Flags().Lookup("listen"); f.Changed {
		viper.Set("networking.listen", f.Value.String())
	}

	app, err := wireFromConfig()
	if err != nil {
		return err
	}
	defer closeApp(app)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, app, cmd)
}

// serve runs the HTTP server for app until ctx is cancelled.
func serve(ctx context.Context, app *App, cmd *cobra.Command) error {
	cfg := app.Config
	server.Version = version

	srv, err := server.New(server.Config{
		ListenAddr:  cfg.Networking.Listen,
		CORSOrigins: cfg.Networking.CORSOrigins,
		RateLimit: server.RateLimitConfig{
			RequestsPerSecond: cfg.Networking.RateLimitRPS,
			Burst:             cfg.Networking.RateLimitBurst,
		},
		// Writes must outlast the slowest query.
		WriteTimeout: cfg.Orchestrator.QueryTimeout + 30*time.Second,
		Logger:       app.logger,
	})
	if err != nil {
		return sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "creating server: %w", err)
	}
	defer func() { _ = srv.Close() }()

	services, err := app.Services()
	if err != nil {
		return sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "creating services: %w", err)
	}
	srv.RegisterServices(services)

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "warden %s listening on %s (router: %s, max iterations: %d)\n",
		version, cfg.Networking.Listen, app.Strategy(), cfg.Orchestrator.MaxIterations)

	if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
