// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agentic CDP Contributors

package behavior_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romangoldberg/agentic-cdp-demo/internal/behavior"
	"github.com/romangoldberg/agentic-cdp-demo/internal/store"
)

func sampleProfile() *store.CustomerProfile {
	return &store.CustomerProfile{
		CustomerID:    1,
		FirstName:     "Alice",
		LastName:      "Nguyen",
		Email:         "alice@example.com",
		Country:       "Germany",
		Age:           34,
		FavoriteColor: "red",
		TotalSpent:    950,
	}
}

func TestBuildDocument_ExactText(t *testing.T) {
	summary := store.BehavioralSummary{
		PrimaryInterests: []string{"socks", "shoes"},
		PreferredColors:  []string{"red", "blue"},
		LikesLuxury:      true,
	}

	doc := behavior.BuildDocument(sampleProfile(), summary)
	require.NotNil(t, doc)

	want := "Customer Alice Nguyen (alice@example.com) from Germany, age 34, favorite color red. " +
		"Total spent: 950.00. Primary interests: socks, shoes. Preferred colors: red, blue. " +
		"This customer likes luxury items."
	assert.Equal(t, want, doc.Text)
	assert.Equal(t, int64(1), doc.CustomerID)
}

func TestBuildDocument_NoLuxurySentenceBelowThreshold(t *testing.T) {
	p := sampleProfile()
	p.TotalSpent = 120.5
	summary := store.BehavioralSummary{
		PrimaryInterests: []string{"hats"},
		PreferredColors:  []string{"green"},
	}

	doc := behavior.BuildDocument(p, summary)

	want := "Customer Alice Nguyen (alice@example.com) from Germany, age 34, favorite color red. " +
		"Total spent: 120.50. Primary interests: hats. Preferred colors: green."
	assert.Equal(t, want, doc.Text)
	assert.NotContains(t, doc.Text, "luxury")
}

func TestBuildDocument_NoEventsFallbackSentence(t *testing.T) {
	p := sampleProfile()
	p.TotalSpent = 0

	doc := behavior.BuildDocument(p, store.BehavioralSummary{})

	assert.Contains(t, doc.Text, "No specific behavioral interests calculated.")
	assert.NotContains(t, doc.Text, "Primary interests:")
}

func TestBuildDocument_Deterministic(t *testing.T) {
	summary := store.BehavioralSummary{
		PrimaryInterests: []string{"socks", "shoes"},
		PreferredColors:  []string{"red"},
		LikesLuxury:      true,
	}

	first := behavior.BuildDocument(sampleProfile(), summary)
	second := behavior.BuildDocument(sampleProfile(), summary)

	assert.Equal(t, first.Text, second.Text)
}

func TestBuildDocument_Metadata(t *testing.T) {
	summary := store.BehavioralSummary{
		PrimaryInterests: []string{"socks"},
		PreferredColors:  []string{"red"},
		LikesLuxury:      true,
	}

	doc := behavior.BuildDocument(sampleProfile(), summary)

	assert.Equal(t, int64(1), doc.Metadata["customer_id"])
	assert.Equal(t, "alice@example.com", doc.Metadata["email"])
	assert.Equal(t, 950.0, doc.Metadata["total_spent"])
	assert.Equal(t, true, doc.Metadata["likes_luxury"])
	assert.Equal(t, "Primary interests: socks. Preferred colors: red.", doc.Metadata["calculated_interests"])
}

func TestRenderInterests(t *testing.T) {
	assert.Equal(t,
		"Primary interests: socks, shoes. Preferred colors: red, blue.",
		behavior.RenderInterests(store.BehavioralSummary{
			PrimaryInterests: []string{"socks", "shoes"},
			PreferredColors:  []string{"red", "blue"},
		}))

	assert.Equal(t,
		"No specific behavioral interests calculated.",
		behavior.RenderInterests(store.BehavioralSummary{}))
}
