// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agentic CDP Contributors

package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/romangoldberg/agentic-cdp-demo/internal/config"
	cdperr "github.com/romangoldberg/agentic-cdp-demo/pkg/errors"
)

// NewRootCmd creates the root cdp command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cdp",
		Short:         "cdp is hybrid audience discovery for customer data",
		Long:          "cdp ingests CRM and clickstream data into a relational store and a semantic index, and discovers audience segments by fusing exact behavioral filters with semantic similarity search.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initViper(cmd)
		},
	}

	// Global flags; these map to viper keys via initViper.
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "path to data directory")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	// Register subcommands
	root.AddCommand(
		newIngestCmd(),
		newDiscoverCmd(),
		newServeCmd(),
		newVersionCmd(),
	)

	return root
}

// initViper sets up the global Viper with defaults, env bindings, flag
// bindings, and optional config file so the standard precedence
// (flag > env > file > defaults) is handled uniformly.
func initViper(cmd *cobra.Command) error {
	v := viper.GetViper()

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return cdperr.Errorf(cdperr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// Auto-discover cdp.yaml from standard locations. No config file is
		// fine, defaults and env vars still apply; parse or permission
		// errors must surface.
		v.SetConfigName("cdp")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/cdp")
		v.AddConfigPath("/etc/cdp")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return cdperr.Errorf(cdperr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
		}
	}

	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		v.Set("storage.data_dir", dataDir)
	}

	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	return nil
}

// loadConfig unmarshals and validates the global viper state.
func loadConfig() (*config.Config, error) {
	return config.FromViper(viper.GetViper())
}
