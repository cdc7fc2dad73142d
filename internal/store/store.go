// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agentic CDP Contributors

package store

import "context"

// ProfileStore is the relational store of customer attributes and raw
// events. It answers exact-match/range/join predicates over the event
// history and returns identifier sets or full records.
type ProfileStore interface {
	// SelectDistinctIDs executes an opaque, caller-validated filter
	// expression against the events table and returns the distinct set of
	// surviving customer IDs. The store does not interpret the predicate's
	// semantics, only passes it through.
	SelectDistinctIDs(ctx context.Context, predicate string) ([]int64, error)

	// FetchByIDs fetches the named fields for each ID in one batched
	// lookup. An empty id list returns an empty map, not an error. Field
	// names are validated against the profile column whitelist; an empty
	// field list selects all columns. Result order is undefined; callers
	// that care about ordering must impose their own.
	FetchByIDs(ctx context.Context, ids []int64, fields []string) (map[int64]Record, error)

	// ListCustomerIDs returns up to limit known customer IDs in ascending
	// order. Used as the surviving set when discovery runs un-gated.
	ListCustomerIDs(ctx context.Context, limit int) ([]int64, error)

	// UpsertProfiles inserts or replaces customer rows.
	UpsertProfiles(ctx context.Context, profiles []*CustomerProfile) error

	// AppendEvents appends raw event rows. Events are immutable.
	AppendEvents(ctx context.Context, events []*Event) error

	// EventsByCustomer returns the complete event history grouped by
	// customer. Behavioral summaries are recomputed from this in full on
	// every ingestion run.
	EventsByCustomer(ctx context.Context) (map[int64][]*Event, error)

	Close() error
}

// SemanticIndex is the vector store of customer embeddings and metadata.
// Embedding of query text into a vector is the index's responsibility; the
// distance metric (cosine) is owned by the store configuration.
type SemanticIndex interface {
	// Upsert rebuilds the document for each customer: embed the text and
	// replace any existing vector and metadata under the same ID.
	Upsert(ctx context.Context, docs []*SemanticDocument) error

	// NearestNeighbors returns up to topK customers ordered by descending
	// similarity, ties broken by ascending customer ID. A non-empty
	// allowList restricts candidates before ranking, never as a post-filter;
	// a nil or empty allowList searches the whole index. Allow-list IDs
	// absent from the index are silently excluded. Non-nil filters further
	// restrict candidates to documents whose stored metadata matches every
	// key/value pair by equality, again before ranking.
	NearestNeighbors(ctx context.Context, queryText string, allowList []int64, filters map[string]any, topK int) ([]ScoredID, error)

	Close() error
}

// Embedder turns document or query text into fixed-dimension vectors.
// Implementations must be deterministic per input for reproducible search.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}
