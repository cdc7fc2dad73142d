// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agentic CDP Contributors

// Package behavior turns raw event histories into behavioral summaries and
// the semantic documents embedded for similarity search. Both transforms are
// pure and deterministic: identical inputs always yield identical outputs,
// regardless of event arrival order.
package behavior

import (
	"sort"

	"github.com/romangoldberg/agentic-cdp-demo/internal/store"
)

const (
	// DefaultTopInterests is how many categories/colors a summary keeps.
	DefaultTopInterests = 2

	// DefaultLuxuryThreshold is the total-spent cutoff above which a
	// customer is tagged as liking luxury items.
	DefaultLuxuryThreshold = 800.0
)

// Config tunes the aggregation. Zero values fall back to the defaults.
type Config struct {
	TopInterests    int
	LuxuryThreshold float64
}

func (c Config) withDefaults() Config {
	if c.TopInterests <= 0 {
		c.TopInterests = DefaultTopInterests
	}
	if c.LuxuryThreshold <= 0 {
		c.LuxuryThreshold = DefaultLuxuryThreshold
	}
	return c
}

// eventWeight is the contribution of one event to its category and, when a
// color is present, to that color. Unknown event types count as views.
func eventWeight(t store.EventType) int {
	switch t {
	case store.EventPurchase:
		return 3
	case store.EventAddToCart:
		return 2
	default:
		return 1
	}
}

// Summarize computes a customer's behavioral summary from their complete
// event history and current total spend. Categories and colors are ranked
// independently: a color accumulates weight regardless of which category the
// event belonged to. Ranking descends by accumulated weight with ties broken
// by ascending name, so the result is a total order independent of event
// order. A customer with zero events gets empty rankings; the luxury flag is
// still computed from totalSpent.
func Summarize(events []*store.Event, totalSpent float64, cfg Config) store.BehavioralSummary {
	cfg = cfg.withDefaults()

	categoryScores := map[string]int{}
	colorScores := map[string]int{}
	for _, e := range events {
		w := eventWeight(e.Type)
		categoryScores[e.Category] += w
		if e.Color != "" {
			colorScores[e.Color] += w
		}
	}

	return store.BehavioralSummary{
		PrimaryInterests: rank(categoryScores, cfg.TopInterests),
		PreferredColors:  rank(colorScores, cfg.TopInterests),
		LikesLuxury:      totalSpent > cfg.LuxuryThreshold,
	}
}

// rank orders names by descending score, ties ascending by name, truncated
// to the top k.
func rank(scores map[string]int, k int) []string {
	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if scores[names[i]] != scores[names[j]] {
			return scores[names[i]] > scores[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > k {
		names = names[:k]
	}
	return names
}
