// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agentic CDP Contributors

package store

// StorageConfig controls which backend the store factory uses.
type StorageConfig struct {
	Backend string // "sqlite" (default) or "postgres"
	DataDir string // directory for sqlite database files
	DSN     string // postgres connection string

	// AllowListChunkSize caps how many gated IDs one KNN query carries.
	// Zero uses the index default.
	AllowListChunkSize int
}
