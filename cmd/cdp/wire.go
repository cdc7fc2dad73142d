// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agentic CDP Contributors

package main

import (
	"os"

	"github.com/romangoldberg/agentic-cdp-demo/internal/behavior"
	"github.com/romangoldberg/agentic-cdp-demo/internal/config"
	"github.com/romangoldberg/agentic-cdp-demo/internal/discovery"
	"github.com/romangoldberg/agentic-cdp-demo/internal/embed"
	"github.com/romangoldberg/agentic-cdp-demo/internal/store"
	cdperr "github.com/romangoldberg/agentic-cdp-demo/pkg/errors"

	// Storage backends register themselves with the store factory.
	_ "github.com/romangoldberg/agentic-cdp-demo/internal/store/postgres"
	_ "github.com/romangoldberg/agentic-cdp-demo/internal/store/sqlite"
)

// buildStores wires the embedder, profile store, and semantic index from
// config. The caller owns both store handles and must Close them.
func buildStores(cfg *config.Config) (store.ProfileStore, store.SemanticIndex, error) {
	em, err := embed.New(embed.Config{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Dimensions: cfg.Embedding.Dimensions,
	})
	if err != nil {
		return nil, nil, err
	}

	if cfg.Storage.DataDir != "" {
		if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
			return nil, nil, cdperr.Wrapf(err, cdperr.CodeCLISetupFailure, "creating data directory %s", cfg.Storage.DataDir)
		}
	}

	return store.NewStores(&store.StorageConfig{
		Backend:            cfg.Storage.Backend,
		DataDir:            cfg.Storage.DataDir,
		DSN:                cfg.Storage.DSN,
		AllowListChunkSize: cfg.Discovery.AllowListChunkSize,
	}, em)
}

// buildCoordinator wires a discovery coordinator over the given stores.
func buildCoordinator(cfg *config.Config, profiles store.ProfileStore, index store.SemanticIndex) *discovery.Coordinator {
	return discovery.New(profiles, index, discovery.Options{
		DefaultTopK:          cfg.Discovery.DefaultTopK,
		MaxUngatedPopulation: cfg.Discovery.MaxUngatedPopulation,
		StageTimeout:         cfg.Discovery.StageTimeout,
	})
}

// behaviorConfig maps the config section onto the aggregator's tuning.
func behaviorConfig(cfg *config.Config) behavior.Config {
	return behavior.Config{
		LuxuryThreshold: cfg.Behavior.LuxuryThreshold,
		TopInterests:    cfg.Behavior.TopInterests,
	}
}
