// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agentic CDP Contributors

package postgres

import (
	"context"
	"path/filepath"

	"github.com/romangoldberg/agentic-cdp-demo/internal/store"
	"github.com/romangoldberg/agentic-cdp-demo/internal/store/sqlite"
)

func init() {
	store.RegisterBackend("postgres", newProfileStore, newSemanticIndex)
}

func newProfileStore(cfg *store.StorageConfig) (store.ProfileStore, error) {
	return NewProfileStore(context.Background(), cfg.DSN)
}

// The semantic index stays a local sqlite-vec file even when profiles live
// in Postgres, mirroring the reference deployment where the vector store runs
// beside the relational store as a separate system.
func newSemanticIndex(cfg *store.StorageConfig, em store.Embedder) (store.SemanticIndex, error) {
	var opts []sqlite.Option
	if cfg.AllowListChunkSize > 0 {
		opts = append(opts, sqlite.WithAllowListChunkSize(cfg.AllowListChunkSize))
	}
	return sqlite.NewSemanticIndex(filepath.Join(cfg.DataDir, "documents.db"), em, opts...)
}
