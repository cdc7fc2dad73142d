// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agentic CDP Contributors

// Package embed provides the embedding clients the semantic index uses to
// turn document and query text into vectors.
package embed

import (
	"github.com/romangoldberg/agentic-cdp-demo/internal/store"
	cdperr "github.com/romangoldberg/agentic-cdp-demo/pkg/errors"
)

// Config selects and configures an embedding provider.
type Config struct {
	Provider   string // "local" (default) or "openai"
	Model      string // provider model name, e.g. "text-embedding-3-small"
	APIKey     string
	BaseURL    string // optional, useful for testing against a mock server
	Dimensions int    // 0 uses the provider default
}

// New creates the configured embedder.
func New(cfg Config) (store.Embedder, error) {
	switch cfg.Provider {
	case "", "local":
		return NewLocal(cfg.Dimensions), nil
	case "openai":
		return NewOpenAI(cfg)
	default:
		return nil, cdperr.Errorf(cdperr.CodeEmbedProviderUnsupported, "unsupported embedding provider: %q", cfg.Provider)
	}
}
