// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agentic CDP Contributors

package main

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/romangoldberg/agentic-cdp-demo/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the discovery API over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			profiles, index, err := buildStores(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = profiles.Close() }()
			defer func() { _ = index.Close() }()

			coordinator := buildCoordinator(cfg, profiles, index)
			srv, err := server.New(server.Config{
				ListenAddr:  cfg.Server.Listen,
				CORSOrigins: cfg.Server.CORSOrigins,
			}, coordinator)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			slog.Info("serving discovery API", "listen", cfg.Server.Listen, "backend", cfg.Storage.Backend)
			return srv.Start(ctx)
		},
	}
}
