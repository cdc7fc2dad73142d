// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agentic CDP Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/romangoldberg/agentic-cdp-demo/internal/ingest"
)

func newIngestCmd() *cobra.Command {
	var customersCSV, eventsCSV string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load CRM and clickstream exports into both stores",
		Long:  "Loads customers and events from CSV, recomputes derived profile fields and behavioral summaries, and rebuilds the semantic documents in the index.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if customersCSV != "" {
				cfg.Ingest.CustomersCSV = customersCSV
			}
			if eventsCSV != "" {
				cfg.Ingest.EventsCSV = eventsCSV
			}

			profiles, index, err := buildStores(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = profiles.Close() }()
			defer func() { _ = index.Close() }()

			runner := ingest.NewRunner(profiles, index, ingest.Config{
				CustomersCSV: cfg.Ingest.CustomersCSV,
				EventsCSV:    cfg.Ingest.EventsCSV,
				Behavior:     behaviorConfig(cfg),
			})

			stats, err := runner.Run(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "ingested %d customers, %d events, %d documents\n",
				stats.Customers, stats.Events, stats.Documents)
			return nil
		},
	}

	cmd.Flags().StringVar(&customersCSV, "customers", "", "path to the CRM customers CSV")
	cmd.Flags().StringVar(&eventsCSV, "events", "", "path to the clickstream events CSV")

	return cmd
}
