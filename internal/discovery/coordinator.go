// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agentic CDP Contributors

// Package discovery implements the hybrid query-fusion pipeline: gate the
// customer population by an exact behavioral predicate, refine the survivors
// by semantic similarity, then re-expand the ranked IDs into full profile
// records.
package discovery

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/romangoldberg/agentic-cdp-demo/internal/store"
	cdperr "github.com/romangoldberg/agentic-cdp-demo/pkg/errors"
)

// Pipeline stage names, used for error context and logging.
const (
	stageGate   = "gate"
	stageRefine = "refine"
	stageEnrich = "enrich"
)

const (
	// DefaultTopK is the result size when the caller does not specify one.
	DefaultTopK = 10

	// DefaultMaxUngatedPopulation bounds the surviving set when discovery
	// runs without a behavioral predicate.
	DefaultMaxUngatedPopulation = 10000

	// DefaultStageTimeout bounds each store interaction so no stage can
	// hang the whole pipeline.
	DefaultStageTimeout = 10 * time.Second
)

// ungatedWarning is returned to the caller when no behavioral predicate is
// supplied. Un-gated semantic search over the whole population is
// intentionally discouraged, but it is not an error.
const ungatedWarning = "no behavioral predicate supplied; searching the full customer population"

// Options tunes a Coordinator. Zero values fall back to the defaults.
type Options struct {
	DefaultTopK          int
	MaxUngatedPopulation int
	StageTimeout         time.Duration
	Logger               *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.DefaultTopK <= 0 {
		o.DefaultTopK = DefaultTopK
	}
	if o.MaxUngatedPopulation <= 0 {
		o.MaxUngatedPopulation = DefaultMaxUngatedPopulation
	}
	if o.StageTimeout <= 0 {
		o.StageTimeout = DefaultStageTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Coordinator executes the three-stage pipeline. It holds no per-call
// mutable state; concurrent Discover calls are independent, each owning its
// own gated working set. Store handles are injected and explicitly owned by
// the caller, never ambient singletons.
type Coordinator struct {
	profiles store.ProfileStore
	index    store.SemanticIndex
	opts     Options
}

// New creates a Coordinator over the given store clients.
func New(profiles store.ProfileStore, index store.SemanticIndex, opts Options) *Coordinator {
	return &Coordinator{
		profiles: profiles,
		index:    index,
		opts:     opts.withDefaults(),
	}
}

// Request is the Discover call contract.
type Request struct {
	// Predicate is an opaque, externally validated filter over the events
	// table. Empty means un-gated: the full (bounded) population survives.
	Predicate string `json:"predicate,omitempty"`

	// Query is the free-text semantic intent, e.g. "luxury lifestyle".
	Query string `json:"query"`

	// TopK caps the result size. Zero uses the coordinator default.
	TopK int `json:"top_k,omitempty"`

	// Filters are structured equality constraints over the document
	// metadata (e.g. {"country": "PL"}), applied inside the refine stage
	// before ranking.
	Filters map[string]any `json:"filters,omitempty"`

	// EnrichFields names the profile fields to attach. Empty means all.
	EnrichFields []string `json:"enrich_fields,omitempty"`
}

// EnrichedRecord is one ranked result: the stage-2 similarity score plus the
// requested profile fields.
type EnrichedRecord struct {
	CustomerID int64
	Score      float64
	// Fields holds the enriched profile columns. Nil when enrichment could
	// not produce a record for this customer; such IDs also appear in
	// Result.Missing.
	Fields store.Record
}

// MarshalJSON flattens the record into {customer_id, similarity_score,
// ...requested fields} per the call contract.
func (r EnrichedRecord) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(r.Fields)+2)
	for k, v := range r.Fields {
		flat[k] = v
	}
	flat["customer_id"] = r.CustomerID
	flat["similarity_score"] = r.Score
	return json.Marshal(flat)
}

// Result is the terminal output of one Discover call. Records preserve the
// refine-stage ranking exactly. Missing lists ranked IDs that could not be
// enriched, so partial success stays distinguishable from total failure.
type Result struct {
	Records  []EnrichedRecord `json:"records"`
	Missing  []int64          `json:"missing_customer_ids,omitempty"`
	Warnings []string         `json:"warnings,omitempty"`
}

// Discover runs the pipeline: gate, refine, enrich, strictly in order with
// short-circuits. An empty gate population terminates immediately without
// touching the semantic index. Gate and refine failures abort the call;
// enrichment degrades to partial results. All stages are read-only, so a
// failed call is safe to retry wholesale.
func (c *Coordinator) Discover(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, cdperr.New(cdperr.CodeDiscoverRequestInvalid, "semantic query must not be empty")
	}
	topK := req.TopK
	if topK == 0 {
		topK = c.opts.DefaultTopK
	}
	if topK < 0 {
		return nil, cdperr.Errorf(cdperr.CodeDiscoverRequestInvalid, "top_k must be positive, got %d", req.TopK)
	}
	// Reject unknown enrich fields before any store work: a bad field list
	// is a caller error, not an enrichment degradation.
	if _, err := store.NormalizeFields(req.EnrichFields); err != nil {
		return nil, err
	}

	result := &Result{}

	// Stage 1: gate.
	start := time.Now()
	gated, err := c.gate(ctx, req.Predicate, result)
	if err != nil {
		return nil, err
	}
	c.opts.Logger.Debug("gate complete", "survivors", len(gated), "duration", time.Since(start))
	if len(gated) == 0 {
		// Empty population is a valid terminal outcome, not an error. No
		// refinement or enrichment call is made.
		return result, nil
	}

	// Stage 2: refine.
	start = time.Now()
	ranked, err := c.refine(ctx, req.Query, gated, req.Filters, topK)
	if err != nil {
		return nil, err
	}
	c.opts.Logger.Debug("refine complete", "hits", len(ranked), "duration", time.Since(start))
	if len(ranked) == 0 {
		return result, nil
	}

	// Stage 3: enrich.
	start = time.Now()
	c.enrich(ctx, ranked, req.EnrichFields, result)
	c.opts.Logger.Debug("enrich complete",
		"records", len(result.Records), "missing", len(result.Missing), "duration", time.Since(start))

	return result, nil
}

// gate narrows the population with the behavioral predicate, or lists the
// bounded full population when no predicate is given.
func (c *Coordinator) gate(ctx context.Context, predicate string, result *Result) ([]int64, error) {
	stageCtx, cancel := context.WithTimeout(ctx, c.opts.StageTimeout)
	defer cancel()

	if strings.TrimSpace(predicate) == "" {
		c.opts.Logger.Warn("un-gated discovery", "max_population", c.opts.MaxUngatedPopulation)
		result.Warnings = append(result.Warnings, ungatedWarning)

		ids, err := c.profiles.ListCustomerIDs(stageCtx, c.opts.MaxUngatedPopulation)
		if err != nil {
			return nil, cdperr.Wrap(err, cdperr.CodeGateFailure, "listing customer population", cdperr.FieldStage(stageGate))
		}
		return ids, nil
	}

	ids, err := c.profiles.SelectDistinctIDs(stageCtx, predicate)
	if err != nil {
		// A malformed predicate is the caller's to correct; keep its code
		// visible instead of burying it under a stage failure.
		if cdperr.IsInvalidInput(err) {
			return nil, err
		}
		return nil, cdperr.Wrap(err, cdperr.CodeGateFailure, "executing behavioral gate", cdperr.FieldStage(stageGate))
	}
	return ids, nil
}

// refine ranks the gated survivors by semantic similarity. The allow-list
// and any metadata filters are applied before ranking, so topK is satisfied
// from within the gated population rather than dominated by ungated
// near-matches.
func (c *Coordinator) refine(ctx context.Context, query string, gated []int64, filters map[string]any, topK int) ([]store.ScoredID, error) {
	stageCtx, cancel := context.WithTimeout(ctx, c.opts.StageTimeout)
	defer cancel()

	ranked, err := c.index.NearestNeighbors(stageCtx, query, gated, filters, topK)
	if err != nil {
		return nil, cdperr.Wrap(err, cdperr.CodeRefineFailure, "running semantic refinement", cdperr.FieldStage(stageRefine))
	}
	return ranked, nil
}

// enrich attaches profile fields to the ranked IDs in one batched lookup,
// reassembling in stage-2 order. The store's native fetch order is never
// trusted: re-sorting here would silently discard the relevance ranking that
// is the entire point of the refine stage. Failures degrade to partial
// results rather than discarding the ranking.
func (c *Coordinator) enrich(ctx context.Context, ranked []store.ScoredID, fields []string, result *Result) {
	stageCtx, cancel := context.WithTimeout(ctx, c.opts.StageTimeout)
	defer cancel()

	ids := make([]int64, len(ranked))
	for i, r := range ranked {
		ids[i] = r.CustomerID
	}

	records, err := c.profiles.FetchByIDs(stageCtx, ids, fields)
	if err != nil {
		c.opts.Logger.Warn("enrichment failed, returning ranked IDs without fields",
			"stage", stageEnrich, "error", err)
		result.Warnings = append(result.Warnings, "enrichment failed: "+err.Error())
		records = nil
	}

	for _, r := range ranked {
		rec := EnrichedRecord{CustomerID: r.CustomerID, Score: r.Score}
		if fieldsRec, ok := records[r.CustomerID]; ok {
			rec.Fields = fieldsRec
		} else {
			result.Missing = append(result.Missing, r.CustomerID)
		}
		result.Records = append(result.Records, rec)
	}

	if err == nil && len(result.Missing) > 0 {
		result.Warnings = append(result.Warnings, "some customers could not be enriched")
	}
}
