// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agentic CDP Contributors

package discovery_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romangoldberg/agentic-cdp-demo/internal/discovery"
	"github.com/romangoldberg/agentic-cdp-demo/internal/store"
	cdperr "github.com/romangoldberg/agentic-cdp-demo/pkg/errors"
)

// mockProfiles implements store.ProfileStore with pluggable behavior and call
// counters, so tests can assert which stages actually ran.
type mockProfiles struct {
	selectFn func(ctx context.Context, predicate string) ([]int64, error)
	fetchFn  func(ctx context.Context, ids []int64, fields []string) (map[int64]store.Record, error)
	listFn   func(ctx context.Context, limit int) ([]int64, error)

	selectCalls int
	fetchCalls  int
	listCalls   int
}

func (m *mockProfiles) SelectDistinctIDs(ctx context.Context, predicate string) ([]int64, error) {
	m.selectCalls++
	return m.selectFn(ctx, predicate)
}

func (m *mockProfiles) FetchByIDs(ctx context.Context, ids []int64, fields []string) (map[int64]store.Record, error) {
	m.fetchCalls++
	return m.fetchFn(ctx, ids, fields)
}

func (m *mockProfiles) ListCustomerIDs(ctx context.Context, limit int) ([]int64, error) {
	m.listCalls++
	return m.listFn(ctx, limit)
}

func (m *mockProfiles) UpsertProfiles(context.Context, []*store.CustomerProfile) error { return nil }
func (m *mockProfiles) AppendEvents(context.Context, []*store.Event) error             { return nil }
func (m *mockProfiles) EventsByCustomer(context.Context) (map[int64][]*store.Event, error) {
	return nil, nil
}
func (m *mockProfiles) Close() error { return nil }

type mockIndex struct {
	nnFn func(ctx context.Context, query string, allowList []int64, topK int) ([]store.ScoredID, error)

	nnCalls int

	lastAllowList []int64
	lastFilters   map[string]any
	lastTopK      int
}

func (m *mockIndex) Upsert(context.Context, []*store.SemanticDocument) error { return nil }

func (m *mockIndex) NearestNeighbors(ctx context.Context, query string, allowList []int64, filters map[string]any, topK int) ([]store.ScoredID, error) {
	m.nnCalls++
	m.lastAllowList = allowList
	m.lastFilters = filters
	m.lastTopK = topK
	return m.nnFn(ctx, query, allowList, topK)
}

func (m *mockIndex) Close() error { return nil }

func recordFor(id int64) store.Record {
	return store.Record{"customer_id": id, "email": "c@example.com"}
}

func TestDiscover_EmptyGateShortCircuits(t *testing.T) {
	profiles := &mockProfiles{
		selectFn: func(context.Context, string) ([]int64, error) { return nil, nil },
		fetchFn: func(context.Context, []int64, []string) (map[int64]store.Record, error) {
			return nil, nil
		},
	}
	index := &mockIndex{
		nnFn: func(context.Context, string, []int64, int) ([]store.ScoredID, error) {
			return nil, nil
		},
	}
	c := discovery.New(profiles, index, discovery.Options{})

	result, err := c.Discover(context.Background(), discovery.Request{
		Predicate: "category = 'yachts'",
		Query:     "luxury lifestyle",
	})
	require.NoError(t, err)

	assert.Empty(t, result.Records)
	assert.Empty(t, result.Missing)
	assert.Equal(t, 1, profiles.selectCalls)
	// Neither later stage may be touched on an empty population.
	assert.Equal(t, 0, index.nnCalls)
	assert.Equal(t, 0, profiles.fetchCalls)
}

func TestDiscover_RecordsPreserveRefineOrder(t *testing.T) {
	profiles := &mockProfiles{
		selectFn: func(context.Context, string) ([]int64, error) { return []int64{1, 3, 5}, nil },
		fetchFn: func(_ context.Context, ids []int64, _ []string) (map[int64]store.Record, error) {
			// Map iteration order is deliberately unordered; the coordinator
			// must reassemble by rank, not by fetch order.
			out := map[int64]store.Record{}
			for _, id := range ids {
				out[id] = recordFor(id)
			}
			return out, nil
		},
	}
	index := &mockIndex{
		nnFn: func(context.Context, string, []int64, int) ([]store.ScoredID, error) {
			return []store.ScoredID{
				{CustomerID: 3, Score: 0.91},
				{CustomerID: 5, Score: 0.74},
				{CustomerID: 1, Score: 0.52},
			}, nil
		},
	}
	c := discovery.New(profiles, index, discovery.Options{})

	result, err := c.Discover(context.Background(), discovery.Request{
		Predicate: "event_type = 'purchase'",
		Query:     "luxury lifestyle",
	})
	require.NoError(t, err)
	require.Len(t, result.Records, 3)

	assert.Equal(t, []int64{1, 3, 5}, index.lastAllowList)
	gotOrder := []int64{result.Records[0].CustomerID, result.Records[1].CustomerID, result.Records[2].CustomerID}
	assert.Equal(t, []int64{3, 5, 1}, gotOrder)
	assert.InDelta(t, 0.91, result.Records[0].Score, 1e-9)
	assert.NotNil(t, result.Records[0].Fields)
	assert.Empty(t, result.Missing)
}

func TestDiscover_PartialEnrichment(t *testing.T) {
	profiles := &mockProfiles{
		selectFn: func(context.Context, string) ([]int64, error) { return []int64{1, 2}, nil },
		fetchFn: func(context.Context, []int64, []string) (map[int64]store.Record, error) {
			// Customer 2 has a vector but no profile row anymore.
			return map[int64]store.Record{1: recordFor(1)}, nil
		},
	}
	index := &mockIndex{
		nnFn: func(context.Context, string, []int64, int) ([]store.ScoredID, error) {
			return []store.ScoredID{{CustomerID: 2, Score: 0.9}, {CustomerID: 1, Score: 0.8}}, nil
		},
	}
	c := discovery.New(profiles, index, discovery.Options{})

	result, err := c.Discover(context.Background(), discovery.Request{
		Predicate: "amount > 100",
		Query:     "frequent buyer",
	})
	require.NoError(t, err)

	require.Len(t, result.Records, 2)
	assert.Equal(t, int64(2), result.Records[0].CustomerID)
	assert.Nil(t, result.Records[0].Fields)
	assert.NotNil(t, result.Records[1].Fields)
	assert.Equal(t, []int64{2}, result.Missing)
	assert.NotEmpty(t, result.Warnings)
}

func TestDiscover_EnrichmentFailureDegrades(t *testing.T) {
	profiles := &mockProfiles{
		selectFn: func(context.Context, string) ([]int64, error) { return []int64{7}, nil },
		fetchFn: func(context.Context, []int64, []string) (map[int64]store.Record, error) {
			return nil, cdperr.New(cdperr.CodeStoreUnavailable, "connection reset")
		},
	}
	index := &mockIndex{
		nnFn: func(context.Context, string, []int64, int) ([]store.ScoredID, error) {
			return []store.ScoredID{{CustomerID: 7, Score: 0.66}}, nil
		},
	}
	c := discovery.New(profiles, index, discovery.Options{})

	result, err := c.Discover(context.Background(), discovery.Request{
		Predicate: "color = 'red'",
		Query:     "red fans",
	})
	require.NoError(t, err) // ranking survives even when enrichment does not

	require.Len(t, result.Records, 1)
	assert.Nil(t, result.Records[0].Fields)
	assert.Equal(t, []int64{7}, result.Missing)
	assert.NotEmpty(t, result.Warnings)
}

func TestDiscover_InvalidPredicateKeepsCode(t *testing.T) {
	profiles := &mockProfiles{
		selectFn: func(context.Context, string) ([]int64, error) {
			return nil, cdperr.New(cdperr.CodeStorePredicateInvalid, `near "FORM": syntax error`)
		},
	}
	index := &mockIndex{}
	c := discovery.New(profiles, index, discovery.Options{})

	_, err := c.Discover(context.Background(), discovery.Request{
		Predicate: "SELECT * FORM events",
		Query:     "anything",
	})
	require.Error(t, err)
	assert.True(t, cdperr.HasCode(err, cdperr.CodeStorePredicateInvalid))
	assert.Equal(t, 0, index.nnCalls)
}

func TestDiscover_GateFailureWrapped(t *testing.T) {
	profiles := &mockProfiles{
		selectFn: func(context.Context, string) ([]int64, error) {
			return nil, cdperr.New(cdperr.CodeStoreUnavailable, "dial tcp: connection refused")
		},
	}
	c := discovery.New(profiles, &mockIndex{}, discovery.Options{})

	_, err := c.Discover(context.Background(), discovery.Request{
		Predicate: "amount > 0",
		Query:     "anything",
	})
	require.Error(t, err)
	assert.True(t, cdperr.HasCode(err, cdperr.CodeGateFailure))
}

func TestDiscover_RefineFailureWrapped(t *testing.T) {
	profiles := &mockProfiles{
		selectFn: func(context.Context, string) ([]int64, error) { return []int64{1}, nil },
	}
	index := &mockIndex{
		nnFn: func(context.Context, string, []int64, int) ([]store.ScoredID, error) {
			return nil, cdperr.New(cdperr.CodeStoreDatabaseFailure, "index corrupt")
		},
	}
	c := discovery.New(profiles, index, discovery.Options{})

	_, err := c.Discover(context.Background(), discovery.Request{
		Predicate: "amount > 0",
		Query:     "anything",
	})
	require.Error(t, err)
	assert.True(t, cdperr.HasCode(err, cdperr.CodeRefineFailure))
}

func TestDiscover_UngatedWarnsAndBoundsPopulation(t *testing.T) {
	var gotLimit int
	profiles := &mockProfiles{
		listFn: func(_ context.Context, limit int) ([]int64, error) {
			gotLimit = limit
			return []int64{1, 2}, nil
		},
		fetchFn: func(_ context.Context, ids []int64, _ []string) (map[int64]store.Record, error) {
			out := map[int64]store.Record{}
			for _, id := range ids {
				out[id] = recordFor(id)
			}
			return out, nil
		},
	}
	index := &mockIndex{
		nnFn: func(context.Context, string, []int64, int) ([]store.ScoredID, error) {
			return []store.ScoredID{{CustomerID: 1, Score: 0.5}}, nil
		},
	}
	c := discovery.New(profiles, index, discovery.Options{MaxUngatedPopulation: 50})

	result, err := c.Discover(context.Background(), discovery.Request{Query: "anything"})
	require.NoError(t, err)

	assert.Equal(t, 1, profiles.listCalls)
	assert.Equal(t, 0, profiles.selectCalls)
	assert.Equal(t, 50, gotLimit)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "no behavioral predicate")
}

func TestDiscover_DefaultTopK(t *testing.T) {
	profiles := &mockProfiles{
		selectFn: func(context.Context, string) ([]int64, error) { return []int64{1}, nil },
		fetchFn: func(context.Context, []int64, []string) (map[int64]store.Record, error) {
			return map[int64]store.Record{1: recordFor(1)}, nil
		},
	}
	index := &mockIndex{
		nnFn: func(context.Context, string, []int64, int) ([]store.ScoredID, error) {
			return []store.ScoredID{{CustomerID: 1, Score: 1}}, nil
		},
	}
	c := discovery.New(profiles, index, discovery.Options{})

	_, err := c.Discover(context.Background(), discovery.Request{
		Predicate: "amount > 0",
		Query:     "anything",
	})
	require.NoError(t, err)
	assert.Equal(t, discovery.DefaultTopK, index.lastTopK)
}

func TestDiscover_FiltersReachRefineStage(t *testing.T) {
	profiles := &mockProfiles{
		selectFn: func(context.Context, string) ([]int64, error) { return []int64{1}, nil },
		fetchFn: func(context.Context, []int64, []string) (map[int64]store.Record, error) {
			return map[int64]store.Record{1: recordFor(1)}, nil
		},
	}
	index := &mockIndex{
		nnFn: func(context.Context, string, []int64, int) ([]store.ScoredID, error) {
			return []store.ScoredID{{CustomerID: 1, Score: 0.9}}, nil
		},
	}
	c := discovery.New(profiles, index, discovery.Options{})

	_, err := c.Discover(context.Background(), discovery.Request{
		Predicate: "amount > 0",
		Query:     "frequent buyer",
		Filters:   map[string]any{"country": "PL", "likes_luxury": true},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"country": "PL", "likes_luxury": true}, index.lastFilters)
}

func TestDiscover_RequestValidation(t *testing.T) {
	profiles := &mockProfiles{
		selectFn: func(context.Context, string) ([]int64, error) { return []int64{1}, nil },
	}
	c := discovery.New(profiles, &mockIndex{}, discovery.Options{})

	_, err := c.Discover(context.Background(), discovery.Request{Query: "   "})
	require.Error(t, err)
	assert.True(t, cdperr.IsInvalidInput(err))

	_, err = c.Discover(context.Background(), discovery.Request{Query: "q", TopK: -3})
	require.Error(t, err)
	assert.True(t, cdperr.IsInvalidInput(err))

	_, err = c.Discover(context.Background(), discovery.Request{
		Query:        "q",
		EnrichFields: []string{"password_hash"},
	})
	require.Error(t, err)
	assert.True(t, cdperr.IsInvalidInput(err))
	// Validation failures happen before any store call.
	assert.Equal(t, 0, profiles.selectCalls)
	assert.Equal(t, 0, profiles.listCalls)
}

func TestEnrichedRecord_MarshalJSONFlattens(t *testing.T) {
	rec := discovery.EnrichedRecord{
		CustomerID: 42,
		Score:      0.875,
		Fields:     store.Record{"email": "x@example.com", "country": "France"},
	}

	raw, err := json.Marshal(rec)
	require.NoError(t, err)

	var flat map[string]any
	require.NoError(t, json.Unmarshal(raw, &flat))
	assert.Equal(t, float64(42), flat["customer_id"])
	assert.Equal(t, 0.875, flat["similarity_score"])
	assert.Equal(t, "x@example.com", flat["email"])
	assert.Equal(t, "France", flat["country"])
	assert.NotContains(t, flat, "Fields")
}
