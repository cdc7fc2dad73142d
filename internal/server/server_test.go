// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agentic CDP Contributors

package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romangoldberg/agentic-cdp-demo/internal/discovery"
	"github.com/romangoldberg/agentic-cdp-demo/internal/server"
	"github.com/romangoldberg/agentic-cdp-demo/internal/store"
	cdperr "github.com/romangoldberg/agentic-cdp-demo/pkg/errors"
)

type stubDiscoverer struct {
	result  *discovery.Result
	err     error
	lastReq discovery.Request
}

func (s *stubDiscoverer) Discover(_ context.Context, req discovery.Request) (*discovery.Result, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func newTestServer(t *testing.T, d server.Discoverer) *httptest.Server {
	t.Helper()
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"}, d)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postDiscover(t *testing.T, ts *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/v1/discover", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t, &stubDiscoverer{result: &discovery.Result{}})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestServer_Discover(t *testing.T) {
	stub := &stubDiscoverer{result: &discovery.Result{
		Records: []discovery.EnrichedRecord{
			{CustomerID: 3, Score: 0.91, Fields: store.Record{"email": "c3@example.com"}},
			{CustomerID: 5, Score: 0.74, Fields: store.Record{"email": "c5@example.com"}},
		},
	}}
	ts := newTestServer(t, stub)

	resp := postDiscover(t, ts, `{"predicate":"category = 'socks'","query":"luxury lifestyle","top_k":5}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		RequestID string           `json:"request_id"`
		Records   []map[string]any `json:"records"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	assert.NotEmpty(t, body.RequestID)
	require.Len(t, body.Records, 2)
	// Records arrive flattened: score and profile fields side by side.
	assert.Equal(t, float64(3), body.Records[0]["customer_id"])
	assert.Equal(t, 0.91, body.Records[0]["similarity_score"])
	assert.Equal(t, "c3@example.com", body.Records[0]["email"])

	assert.Equal(t, "category = 'socks'", stub.lastReq.Predicate)
	assert.Equal(t, "luxury lifestyle", stub.lastReq.Query)
	assert.Equal(t, 5, stub.lastReq.TopK)
}

func TestServer_DiscoverErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid request", cdperr.New(cdperr.CodeDiscoverRequestInvalid, "empty query"), http.StatusBadRequest},
		{"invalid predicate", cdperr.New(cdperr.CodeStorePredicateInvalid, "syntax error"), http.StatusBadRequest},
		{"store down", cdperr.New(cdperr.CodeStoreUnavailable, "connection refused"), http.StatusServiceUnavailable},
		{"stage failure", cdperr.New(cdperr.CodeRefineFailure, "index corrupt"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, &stubDiscoverer{err: tt.err})

			resp := postDiscover(t, ts, `{"query":"anything"}`)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestServer_DiscoverWarningsAndMissing(t *testing.T) {
	stub := &stubDiscoverer{result: &discovery.Result{
		Records:  []discovery.EnrichedRecord{{CustomerID: 2, Score: 0.5}},
		Missing:  []int64{2},
		Warnings: []string{"some customers could not be enriched"},
	}}
	ts := newTestServer(t, stub)

	resp := postDiscover(t, ts, `{"query":"anything"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Missing  []int64  `json:"missing_customer_ids"`
		Warnings []string `json:"warnings"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, []int64{2}, body.Missing)
	assert.NotEmpty(t, body.Warnings)
}

func TestServer_OpenAPIDescribesFlattenedRecords(t *testing.T) {
	ts := newTestServer(t, &stubDiscoverer{result: &discovery.Result{}})

	resp, err := http.Get(ts.URL + "/openapi.json")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var spec struct {
		Components struct {
			Schemas map[string]json.RawMessage `json:"schemas"`
		} `json:"components"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&spec))

	// The record schema advertises the flattened wire shape, not the
	// struct's nested fields.
	all, err := json.Marshal(spec.Components.Schemas)
	require.NoError(t, err)
	assert.Contains(t, string(all), "similarity_score")
	assert.Contains(t, string(all), "customer_id")
	assert.NotContains(t, string(all), `"Fields"`)
}

func TestServer_CORSOnlyWhenConfigured(t *testing.T) {
	get := func(t *testing.T, cfg server.Config) *http.Response {
		t.Helper()
		srv, err := server.New(cfg, &stubDiscoverer{result: &discovery.Result{}})
		require.NoError(t, err)
		ts := httptest.NewServer(srv.Handler())
		t.Cleanup(ts.Close)

		req, err := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "http://app.example.com")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	t.Run("configured origin is allowed", func(t *testing.T) {
		resp := get(t, server.Config{
			ListenAddr:  "127.0.0.1:0",
			CORSOrigins: []string{"http://app.example.com"},
		})
		assert.Equal(t, "http://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	})

	t.Run("no origins means no CORS headers", func(t *testing.T) {
		resp := get(t, server.Config{ListenAddr: "127.0.0.1:0"})
		assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	})
}

func TestServer_NewValidation(t *testing.T) {
	_, err := server.New(server.Config{}, &stubDiscoverer{})
	require.Error(t, err)

	_, err = server.New(server.Config{ListenAddr: "127.0.0.1:0"}, nil)
	require.Error(t, err)
}
