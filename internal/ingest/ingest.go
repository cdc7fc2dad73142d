// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agentic CDP Contributors

// Package ingest runs the offline ingestion cycle: load CRM customers and
// clickstream events, recompute derived profile fields, build behavioral
// summaries and semantic documents, and write into both stores. It is a
// batch process with no concurrency interaction with Discover beyond
// eventual consistency across the two stores during a live re-ingestion.
package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/romangoldberg/agentic-cdp-demo/internal/behavior"
	"github.com/romangoldberg/agentic-cdp-demo/internal/store"
	cdperr "github.com/romangoldberg/agentic-cdp-demo/pkg/errors"
)

// defaultBatchSize is how many documents go to the semantic index per
// upsert call.
const defaultBatchSize = 100

// Config controls one ingestion run.
type Config struct {
	CustomersCSV string
	EventsCSV    string
	Behavior     behavior.Config
	BatchSize    int
	Logger       *slog.Logger
}

// Stats summarizes a completed run.
type Stats struct {
	Customers int
	Events    int
	Documents int
}

// Runner executes ingestion runs against injected store handles.
type Runner struct {
	profiles store.ProfileStore
	index    store.SemanticIndex
	cfg      Config
}

// NewRunner creates a Runner.
func NewRunner(profiles store.ProfileStore, index store.SemanticIndex, cfg Config) *Runner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{profiles: profiles, index: index, cfg: cfg}
}

// Run executes one full ingestion cycle. Summaries are recomputed from the
// complete event history, never merged incrementally, and each customer's
// semantic document is rebuilt and replaced in the index.
func (r *Runner) Run(ctx context.Context) (*Stats, error) {
	customers, err := readCustomers(r.cfg.CustomersCSV)
	if err != nil {
		return nil, err
	}
	events, err := readEvents(r.cfg.EventsCSV)
	if err != nil {
		return nil, err
	}
	r.cfg.Logger.Info("loaded source data", "customers", len(customers), "events", len(events))

	if err := r.profiles.UpsertProfiles(ctx, customers); err != nil {
		return nil, cdperr.Wrapf(err, cdperr.CodeIngestRunFailure, "writing customer profiles")
	}
	if err := r.profiles.AppendEvents(ctx, events); err != nil {
		return nil, cdperr.Wrapf(err, cdperr.CodeIngestRunFailure, "writing events")
	}

	// Derived fields come from the complete stored history, not this run's
	// file alone, so delta exports accumulate instead of overwriting.
	history, err := r.profiles.EventsByCustomer(ctx)
	if err != nil {
		return nil, cdperr.Wrapf(err, cdperr.CodeIngestRunFailure, "reading event history")
	}

	// total_spent is derived: recompute from all stored purchase amounts.
	for _, c := range customers {
		var spent float64
		for _, e := range history[c.CustomerID] {
			if e.Type == store.EventPurchase {
				spent += e.Amount
			}
		}
		c.TotalSpent = spent
	}
	if err := r.profiles.UpsertProfiles(ctx, customers); err != nil {
		return nil, cdperr.Wrapf(err, cdperr.CodeIngestRunFailure, "writing derived profile fields")
	}

	docs := make([]*store.SemanticDocument, 0, len(customers))
	for _, c := range customers {
		summary := behavior.Summarize(history[c.CustomerID], c.TotalSpent, r.cfg.Behavior)
		docs = append(docs, behavior.BuildDocument(c, summary))
	}

	for start := 0; start < len(docs); start += r.cfg.BatchSize {
		end := min(start+r.cfg.BatchSize, len(docs))
		if err := r.index.Upsert(ctx, docs[start:end]); err != nil {
			return nil, cdperr.Wrapf(err, cdperr.CodeIngestRunFailure, "indexing documents %d-%d", start, end)
		}
	}

	r.cfg.Logger.Info("ingestion complete",
		"customers", len(customers), "events", len(events), "documents", len(docs))
	return &Stats{Customers: len(customers), Events: len(events), Documents: len(docs)}, nil
}

// readCustomers parses the CRM export. Columns are matched by header name;
// unknown columns are ignored so upstream exports can carry extras (e.g.
// created_at). Any total_spent column is ignored; the value is derived from
// events during the run.
func readCustomers(path string) ([]*store.CustomerProfile, error) {
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	required := []string{"customer_id", "first_name", "last_name", "email", "country", "age", "favorite_color"}
	idx, err := headerIndex(path, header, required)
	if err != nil {
		return nil, err
	}

	out := make([]*store.CustomerProfile, 0, len(rows))
	for i, row := range rows {
		id, err := strconv.ParseInt(row[idx["customer_id"]], 10, 64)
		if err != nil {
			return nil, cdperr.Errorf(cdperr.CodeIngestSourceInvalid, "%s row %d: bad customer_id %q", path, i+2, row[idx["customer_id"]])
		}
		age, err := strconv.Atoi(row[idx["age"]])
		if err != nil {
			return nil, cdperr.Errorf(cdperr.CodeIngestSourceInvalid, "%s row %d: bad age %q", path, i+2, row[idx["age"]])
		}
		out = append(out, &store.CustomerProfile{
			CustomerID:    id,
			FirstName:     row[idx["first_name"]],
			LastName:      row[idx["last_name"]],
			Email:         row[idx["email"]],
			Country:       row[idx["country"]],
			Age:           age,
			FavoriteColor: row[idx["favorite_color"]],
		})
	}
	return out, nil
}

// readEvents parses the clickstream export. color and amount are optional
// per row; timestamps accept RFC 3339 or "2006-01-02 15:04:05".
func readEvents(path string) ([]*store.Event, error) {
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	required := []string{"customer_id", "event_type", "category", "color", "amount", "timestamp"}
	idx, err := headerIndex(path, header, required)
	if err != nil {
		return nil, err
	}

	out := make([]*store.Event, 0, len(rows))
	for i, row := range rows {
		id, err := strconv.ParseInt(row[idx["customer_id"]], 10, 64)
		if err != nil {
			return nil, cdperr.Errorf(cdperr.CodeIngestSourceInvalid, "%s row %d: bad customer_id %q", path, i+2, row[idx["customer_id"]])
		}

		var amount float64
		if raw := strings.TrimSpace(row[idx["amount"]]); raw != "" {
			amount, err = strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, cdperr.Errorf(cdperr.CodeIngestSourceInvalid, "%s row %d: bad amount %q", path, i+2, raw)
			}
		}

		ts, err := parseTimestamp(row[idx["timestamp"]])
		if err != nil {
			return nil, cdperr.Errorf(cdperr.CodeIngestSourceInvalid, "%s row %d: bad timestamp %q", path, i+2, row[idx["timestamp"]])
		}

		out = append(out, &store.Event{
			CustomerID: id,
			Type:       store.EventType(row[idx["event_type"]]),
			Category:   row[idx["category"]],
			Color:      strings.TrimSpace(row[idx["color"]]),
			Amount:     amount,
			Timestamp:  ts,
		})
	}
	return out, nil
}

func readCSV(path string) (rows [][]string, header []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, cdperr.Wrapf(err, cdperr.CodeIngestSourceInvalid, "opening %s", path)
	}
	defer func() { _ = f.Close() }()

	reader := csv.NewReader(f)
	header, err = reader.Read()
	if err != nil {
		return nil, nil, cdperr.Wrapf(err, cdperr.CodeIngestSourceInvalid, "reading %s header", path)
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, cdperr.Wrapf(err, cdperr.CodeIngestSourceInvalid, "reading %s", path)
		}
		rows = append(rows, row)
	}
	return rows, header, nil
}

func headerIndex(path string, header []string, required []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.TrimSpace(strings.ToLower(col))] = i
	}
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			return nil, cdperr.Errorf(cdperr.CodeIngestSourceInvalid, "%s: missing required column %q", path, col)
		}
	}
	return idx, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	return time.Parse("2006-01-02 15:04:05", raw)
}
