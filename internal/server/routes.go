// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agentic CDP Contributors

package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/romangoldberg/agentic-cdp-demo/internal/discovery"
	cdperr "github.com/romangoldberg/agentic-cdp-demo/pkg/errors"
)

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "discover",
		Method:      http.MethodPost,
		Path:        "/api/v1/discover",
		Summary:     "Run hybrid audience discovery",
		Description: "Gate the population by a behavioral predicate, refine by semantic similarity, and return ranked enriched records.",
		Tags:        []string{"discovery"},
	}, s.handleDiscover)
}

// DiscoverInput is the discover request envelope.
type DiscoverInput struct {
	Body discovery.Request
}

// recordPayload serializes an enriched record in its flattened wire form,
// with enrichment fields spliced in next to customer_id and similarity_score.
type recordPayload discovery.EnrichedRecord

func (r recordPayload) MarshalJSON() ([]byte, error) {
	return discovery.EnrichedRecord(r).MarshalJSON()
}

// Schema describes the flattened form; the struct fields alone would
// advertise a nested shape the wire format never produces.
func (recordPayload) Schema(_ huma.Registry) *huma.Schema {
	return &huma.Schema{
		Type:        "object",
		Description: "Enriched discovery record. Requested profile fields appear as additional top-level properties.",
		Required:    []string{"customer_id", "similarity_score"},
		Properties: map[string]*huma.Schema{
			"customer_id": {
				Type:        "integer",
				Format:      "int64",
				Description: "Customer identifier",
			},
			"similarity_score": {
				Type:        "number",
				Format:      "double",
				Description: "Cosine similarity against the query, descending",
			},
		},
		AdditionalProperties: true,
	}
}

// DiscoverBody is the discover response body.
type DiscoverBody struct {
	RequestID string          `json:"request_id" doc:"Server-assigned identifier for this call"`
	Records   []recordPayload `json:"records"`
	Missing   []int64         `json:"missing_customer_ids,omitempty"`
	Warnings  []string        `json:"warnings,omitempty"`
}

// DiscoverOutput wraps the discover response.
type DiscoverOutput struct {
	Body DiscoverBody
}

func (s *Server) handleDiscover(ctx context.Context, in *DiscoverInput) (*DiscoverOutput, error) {
	requestID := uuid.NewString()

	result, err := s.discoverer.Discover(ctx, in.Body)
	if err != nil {
		slog.Warn("discover failed", "request_id", requestID, "code", cdperr.CodeOf(err), "error", err)
		return nil, huma.NewError(cdperr.HTTPStatus(err), "discover failed", err)
	}

	records := make([]recordPayload, len(result.Records))
	for i, rec := range result.Records {
		records[i] = recordPayload(rec)
	}

	return &DiscoverOutput{Body: DiscoverBody{
		RequestID: requestID,
		Records:   records,
		Missing:   result.Missing,
		Warnings:  result.Warnings,
	}}, nil
}
