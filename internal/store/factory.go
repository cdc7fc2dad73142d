// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agentic CDP Contributors

package store

import (
	"sync"

	cdperr "github.com/romangoldberg/agentic-cdp-demo/pkg/errors"
)

// ProfileFactory creates a ProfileStore for a backend.
type ProfileFactory func(cfg *StorageConfig) (ProfileStore, error)

// IndexFactory creates a SemanticIndex for a backend. The embedder is
// injected because query embedding is the index client's responsibility.
type IndexFactory func(cfg *StorageConfig, em Embedder) (SemanticIndex, error)

var (
	profileFactories = map[string]ProfileFactory{}
	indexFactories   = map[string]IndexFactory{}
	factoriesMu      sync.RWMutex
)

// RegisterBackend registers factory functions for a named storage backend.
// Backend packages call this from init(). This function is goroutine-safe.
func RegisterBackend(name string, pf ProfileFactory, ixf IndexFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	profileFactories[name] = pf
	indexFactories[name] = ixf
}

// resolveBackend returns the effective backend name, defaulting to "sqlite".
func resolveBackend(cfg *StorageConfig) string {
	if cfg.Backend == "" {
		return "sqlite"
	}
	return cfg.Backend
}

// NewStores creates the profile store and semantic index for the configured
// backend. Both are independently-owned client handles; callers own their
// lifecycle and must Close them.
func NewStores(cfg *StorageConfig, em Embedder) (ProfileStore, SemanticIndex, error) {
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	pf, pok := profileFactories[backend]
	ixf, iok := indexFactories[backend]
	factoriesMu.RUnlock()
	if !pok || !iok {
		return nil, nil, cdperr.Errorf(cdperr.CodeStoreBackendUnsupported, "unsupported storage backend: %q", backend)
	}

	ps, err := pf(cfg)
	if err != nil {
		return nil, nil, err
	}

	ix, err := ixf(cfg, em)
	if err != nil {
		_ = ps.Close()
		return nil, nil, err
	}

	return ps, ix, nil
}
