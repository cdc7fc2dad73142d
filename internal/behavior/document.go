// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agentic CDP Contributors

package behavior

import (
	"fmt"
	"strings"

	"github.com/romangoldberg/agentic-cdp-demo/internal/store"
)

const (
	// luxurySentence is appended verbatim when the summary carries the
	// luxury flag. The wording is part of the embedding contract: documents
	// must be byte-identical across rebuilds or similarity scores drift.
	luxurySentence = "This customer likes luxury items."

	// noInterestsSentence replaces the interest/color sentences for
	// customers with no recorded events.
	noInterestsSentence = "No specific behavioral interests calculated."
)

// RenderInterests renders the interest and color rankings as the fixed
// two-sentence fragment embedded into the document text and stored in
// metadata as calculated_interests.
func RenderInterests(s store.BehavioralSummary) string {
	if len(s.PrimaryInterests) == 0 && len(s.PreferredColors) == 0 {
		return noInterestsSentence
	}
	return fmt.Sprintf("Primary interests: %s. Preferred colors: %s.",
		strings.Join(s.PrimaryInterests, ", "),
		strings.Join(s.PreferredColors, ", "))
}

// BuildDocument renders the semantic document for one customer. The text
// template is fixed byte-for-byte:
//
//	Customer {first} {last} ({email}) from {country}, age {age}, favorite
//	color {color}. Total spent: {total_spent:.2f}. Primary interests: {i1},
//	{i2}. Preferred colors: {c1}, {c2}.
//
// with the luxury sentence appended when applicable. Metadata carries every
// profile field plus calculated_interests and likes_luxury so post-hoc
// filtering and enrichment-style reads need no second store round-trip.
func BuildDocument(p *store.CustomerProfile, s store.BehavioralSummary) *store.SemanticDocument {
	interests := RenderInterests(s)

	text := fmt.Sprintf("Customer %s %s (%s) from %s, age %d, favorite color %s. Total spent: %.2f. %s",
		p.FirstName, p.LastName, p.Email, p.Country, p.Age, p.FavoriteColor, p.TotalSpent, interests)
	if s.LikesLuxury {
		text += " " + luxurySentence
	}

	return &store.SemanticDocument{
		CustomerID: p.CustomerID,
		Text:       text,
		Metadata: map[string]any{
			"customer_id":          p.CustomerID,
			"first_name":           p.FirstName,
			"last_name":            p.LastName,
			"email":                p.Email,
			"country":              p.Country,
			"age":                  p.Age,
			"favorite_color":       p.FavoriteColor,
			"total_spent":          p.TotalSpent,
			"calculated_interests": interests,
			"likes_luxury":         s.LikesLuxury,
		},
	}
}
