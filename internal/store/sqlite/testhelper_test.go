// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agentic CDP Contributors

package sqlite_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/romangoldberg/agentic-cdp-demo/internal/embed"
	"github.com/romangoldberg/agentic-cdp-demo/internal/store"
	"github.com/romangoldberg/agentic-cdp-demo/internal/store/sqlite"
)

func testDBPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name)
}

func newTestProfileStore(t *testing.T) *sqlite.ProfileStore {
	t.Helper()
	ps, err := sqlite.NewProfileStore(testDBPath(t, "profiles.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ps.Close() })
	return ps
}

// newTestIndex uses a small local embedder so vector blobs stay tiny and
// similarity is a pure function of shared tokens.
func newTestIndex(t *testing.T, opts ...sqlite.Option) *sqlite.SemanticIndex {
	t.Helper()
	idx, err := sqlite.NewSemanticIndex(testDBPath(t, "documents.db"), embed.NewLocal(128), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func testProfile(id int64, firstName string, totalSpent float64) *store.CustomerProfile {
	return &store.CustomerProfile{
		CustomerID:    id,
		FirstName:     firstName,
		LastName:      "Tester",
		Email:         firstName + "@example.com",
		Country:       "Germany",
		Age:           30,
		FavoriteColor: "red",
		TotalSpent:    totalSpent,
	}
}

func testEvent(id int64, typ store.EventType, category, color string, amount float64) *store.Event {
	return &store.Event{
		CustomerID: id,
		Type:       typ,
		Category:   category,
		Color:      color,
		Amount:     amount,
		Timestamp:  time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
}

func doc(id int64, text string) *store.SemanticDocument {
	return &store.SemanticDocument{
		CustomerID: id,
		Text:       text,
		Metadata:   map[string]any{"customer_id": id},
	}
}
