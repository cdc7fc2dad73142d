// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agentic CDP Contributors

package sqlite

import (
	"path/filepath"

	"github.com/romangoldberg/agentic-cdp-demo/internal/store"
)

func init() {
	store.RegisterBackend("sqlite", newProfileStore, newSemanticIndex)
}

func newProfileStore(cfg *store.StorageConfig) (store.ProfileStore, error) {
	return NewProfileStore(filepath.Join(cfg.DataDir, "profiles.db"))
}

func newSemanticIndex(cfg *store.StorageConfig, em store.Embedder) (store.SemanticIndex, error) {
	var opts []Option
	if cfg.AllowListChunkSize > 0 {
		opts = append(opts, WithAllowListChunkSize(cfg.AllowListChunkSize))
	}
	return NewSemanticIndex(filepath.Join(cfg.DataDir, "documents.db"), em, opts...)
}
