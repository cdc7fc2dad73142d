// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agentic CDP Contributors

package store

import (
	"slices"
	"time"

	cdperr "github.com/romangoldberg/agentic-cdp-demo/pkg/errors"
)

// --- Event types ---

// EventType identifies the kind of customer interaction an event records.
type EventType string

const (
	EventView      EventType = "view"
	EventAddToCart EventType = "add_to_cart"
	EventPurchase  EventType = "purchase"
)

// Event is one raw interaction record. Events are immutable and append-only;
// they are produced by an external ingestion source.
type Event struct {
	CustomerID int64
	Type       EventType
	Category   string
	Color      string  // optional
	Amount     float64 // optional; only meaningful for purchases
	Timestamp  time.Time
}

// --- Profile types ---

// CustomerProfile is one row per customer in the relational store.
// TotalSpent is derived (sum of purchase amounts) and recomputed whenever
// new purchase events are ingested. FavoriteColor is a declared CRM
// attribute, independent of observed behavior.
type CustomerProfile struct {
	CustomerID    int64
	FirstName     string
	LastName      string
	Email         string
	Country       string
	Age           int
	FavoriteColor string
	TotalSpent    float64
}

// BehavioralSummary is derived per customer from the complete event history.
// It is a pure function of (events, profile.TotalSpent) at build time and is
// recomputed in full on every ingestion run, never merged incrementally.
type BehavioralSummary struct {
	PrimaryInterests []string // most-weighted category first
	PreferredColors  []string // most-weighted color first
	LikesLuxury      bool
}

// SemanticDocument is the unit stored in the semantic index: exactly one per
// customer profile, rebuilt (not appended) whenever the profile's behavioral
// summary changes. Metadata carries every profile field plus the rendered
// interests text and the luxury flag so enrichment-style reads can be served
// without a second store round-trip.
type SemanticDocument struct {
	CustomerID int64
	Text       string
	Metadata   map[string]any
}

// --- Query types ---

// ScoredID is a single nearest-neighbor hit: a customer and its cosine
// similarity to the query (higher = more similar).
type ScoredID struct {
	CustomerID int64
	Score      float64
}

// Record is a projected customer row keyed by column name.
type Record map[string]any

// profileColumns is the whitelist of selectable customer fields. Enrich
// field names arrive from an external caller and are interpolated into SQL,
// so anything outside this list is rejected before query construction.
var profileColumns = []string{
	"customer_id",
	"first_name",
	"last_name",
	"email",
	"country",
	"age",
	"favorite_color",
	"total_spent",
}

// ProfileColumns returns the full selectable column list, in schema order.
func ProfileColumns() []string {
	return slices.Clone(profileColumns)
}

// NormalizeFields validates and normalizes an enrich-field list. An empty
// list (or the single entry "all") selects every column. The customer_id
// column is always included so results can be joined back to the ranking.
func NormalizeFields(fields []string) ([]string, error) {
	if len(fields) == 0 || (len(fields) == 1 && fields[0] == "all") {
		return ProfileColumns(), nil
	}

	out := []string{"customer_id"}
	for _, f := range fields {
		if !slices.Contains(profileColumns, f) {
			return nil, cdperr.Errorf(cdperr.CodeStoreInvalidInput, "unknown customer field %q", f)
		}
		if f == "customer_id" {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}
