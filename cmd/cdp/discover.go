// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agentic CDP Contributors

package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/romangoldberg/agentic-cdp-demo/internal/discovery"
	cdperr "github.com/romangoldberg/agentic-cdp-demo/pkg/errors"
)

func newDiscoverCmd() *cobra.Command {
	var (
		predicate string
		topK      int
		fields    []string
		filters   map[string]string
	)

	cmd := &cobra.Command{
		Use:   "discover <semantic query>",
		Short: "Run one hybrid discovery call and print the results as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			if strings.TrimSpace(query) == "" {
				return cdperr.New(cdperr.CodeCLIInputInvalid, "semantic query must not be empty")
			}

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

			var metaFilters map[string]any
			if len(filters) > 0 {
				metaFilters = make(map[string]any, len(filters))
				for k, v := range filters {
					metaFilters[k] = v
				}
			}

			coordinator := buildCoordinator(cfg, profiles, index)
			result, err := coordinator.Discover(cmd.Context(), discovery.Request{
				Predicate:    predicate,
				Query:        query,
				TopK:         topK,
				Filters:      metaFilters,
				EnrichFields: fields,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVar(&predicate, "where", "", "behavioral predicate over the events table (SQL WHERE syntax)")
	cmd.Flags().IntVar(&topK, "top-k", 0, "maximum number of results (0 uses the configured default)")
	cmd.Flags().StringSliceVar(&fields, "fields", nil, "profile fields to enrich with (default all)")
	cmd.Flags().StringToStringVar(&filters, "filter", nil, "metadata equality filters applied during refinement (key=value)")

	return cmd
}
