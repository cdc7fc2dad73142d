// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agentic CDP Contributors

// Package sqlite implements the profile store and semantic index on SQLite,
// using the sqlite-vec extension for nearest-neighbor search.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/romangoldberg/agentic-cdp-demo/internal/store"
	cdperr "github.com/romangoldberg/agentic-cdp-demo/pkg/errors"
)

// Compile-time interface check.
var _ store.ProfileStore = (*ProfileStore)(nil)

// ProfileStore implements store.ProfileStore backed by SQLite.
type ProfileStore struct {
	db *sql.DB
}

// NewProfileStore opens (or creates) a SQLite database at dbPath and
// initialises the customers and events tables.
func NewProfileStore(dbPath string) (*ProfileStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, cdperr.Wrapf(err, cdperr.CodeStoreUnavailable, "opening sqlite db %s", dbPath)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, cdperr.Wrapf(err, cdperr.CodeStoreUnavailable, "pinging sqlite db %s", dbPath)
	}

	if err := migrateProfile(db); err != nil {
		_ = db.Close()
		return nil, cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "migrating profile tables")
	}

	return &ProfileStore{db: db}, nil
}

func migrateProfile(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS customers (
	customer_id    INTEGER PRIMARY KEY,
	first_name     TEXT NOT NULL,
	last_name      TEXT NOT NULL,
	email          TEXT NOT NULL,
	country        TEXT NOT NULL,
	age            INTEGER NOT NULL,
	favorite_color TEXT NOT NULL,
	total_spent    REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS events (
	customer_id INTEGER NOT NULL REFERENCES customers(customer_id),
	event_type  TEXT NOT NULL,
	category    TEXT NOT NULL,
	color       TEXT,
	amount      REAL,
	timestamp   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_customer ON events(customer_id);
CREATE INDEX IF NOT EXISTS idx_events_category ON events(category, event_type);
`
	_, err := db.Exec(ddl)
	return err
}

// Close closes the underlying database connection.
func (p *ProfileStore) Close() error {
	return p.db.Close()
}

// SelectDistinctIDs runs the behavioral gate. The predicate is an opaque,
// caller-validated filter over the events table; a query failure that is not
// a timeout or cancellation is classified as an invalid predicate and
// surfaced to the caller for correction.
func (p *ProfileStore) SelectDistinctIDs(ctx context.Context, predicate string) ([]int64, error) {
	if strings.TrimSpace(predicate) == "" {
		return nil, cdperr.New(cdperr.CodeStoreInvalidInput, "empty gate predicate")
	}

	q := "SELECT DISTINCT customer_id FROM events WHERE " + predicate + " ORDER BY customer_id"
	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, classifyQueryErr(err, "executing gate predicate")
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "scanning gated customer id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyQueryErr(err, "iterating gated customer ids")
	}

	return ids, nil
}

// classifyQueryErr separates transient failures (timeout, cancellation) from
// predicate errors. SQLite reports a malformed WHERE clause as a plain query
// error, so anything that is not context-scoped is treated as a bad
// predicate.
func classifyQueryErr(err error, msg string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return cdperr.Wrapf(err, cdperr.CodeStoreUnavailable, "%s", msg)
	}
	return cdperr.Wrapf(err, cdperr.CodeStorePredicateInvalid, "%s", msg)
}

// FetchByIDs fetches the named fields for each ID in one batched query.
// Empty ids returns an empty map.
func (p *ProfileStore) FetchByIDs(ctx context.Context, ids []int64, fields []string) (map[int64]store.Record, error) {
	out := make(map[int64]store.Record, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	cols, err := store.NormalizeFields(fields)
	if err != nil {
		return nil, err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	q := "SELECT " + strings.Join(cols, ", ") + " FROM customers WHERE customer_id IN (" + placeholders + ")"
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "fetching %d customer records", len(ids))
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		rec, id, err := scanRecord(rows, cols)
		if err != nil {
			return nil, err
		}
		out[id] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "iterating customer records")
	}

	return out, nil
}

// scanRecord scans one customers row into a Record keyed by column name.
// Destinations are typed per column so numeric fields survive the trip as
// int64/float64 rather than driver-specific representations.
func scanRecord(rows *sql.Rows, cols []string) (store.Record, int64, error) {
	dests := make([]any, len(cols))
	for i, col := range cols {
		switch col {
		case "customer_id", "age":
			dests[i] = new(int64)
		case "total_spent":
			dests[i] = new(float64)
		default:
			dests[i] = new(string)
		}
	}

	if err := rows.Scan(dests...); err != nil {
		return nil, 0, cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "scanning customer record")
	}

	rec := make(store.Record, len(cols))
	var id int64
	for i, col := range cols {
		switch v := dests[i].(type) {
		case *int64:
			rec[col] = *v
			if col == "customer_id" {
				id = *v
			}
		case *float64:
			rec[col] = *v
		case *string:
			rec[col] = *v
		}
	}
	return rec, id, nil
}

// ListCustomerIDs returns up to limit customer IDs in ascending order.
func (p *ProfileStore) ListCustomerIDs(ctx context.Context, limit int) ([]int64, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT customer_id FROM customers ORDER BY customer_id LIMIT ?", limit)
	if err != nil {
		return nil, cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "listing customer ids")
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "scanning customer id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "iterating customer ids")
	}
	return ids, nil
}

// UpsertProfiles inserts or replaces customer rows in one transaction.
func (p *ProfileStore) UpsertProfiles(ctx context.Context, profiles []*store.CustomerProfile) error {
	if len(profiles) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	const q = `INSERT INTO customers (customer_id, first_name, last_name, email, country, age, favorite_color, total_spent)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(customer_id) DO UPDATE SET
	first_name = excluded.first_name,
	last_name = excluded.last_name,
	email = excluded.email,
	country = excluded.country,
	age = excluded.age,
	favorite_color = excluded.favorite_color,
	total_spent = excluded.total_spent`

	for _, c := range profiles {
		if _, err := tx.ExecContext(ctx, q,
			c.CustomerID, c.FirstName, c.LastName, c.Email, c.Country, c.Age, c.FavoriteColor, c.TotalSpent,
		); err != nil {
			return cdperr.Wrap(err, cdperr.CodeStoreDatabaseFailure, "upserting customer", cdperr.FieldCustomerID(c.CustomerID))
		}
	}

	if err := tx.Commit(); err != nil {
		return cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "committing customer upsert")
	}
	return nil
}

// AppendEvents appends raw event rows in one transaction.
func (p *ProfileStore) AppendEvents(ctx context.Context, events []*store.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	const q = `INSERT INTO events (customer_id, event_type, category, color, amount, timestamp)
VALUES (?, ?, ?, ?, ?, ?)`

	for _, e := range events {
		if _, err := tx.ExecContext(ctx, q,
			e.CustomerID, string(e.Type), e.Category, e.Color, e.Amount, formatTime(e.Timestamp),
		); err != nil {
			return cdperr.Wrap(err, cdperr.CodeStoreDatabaseFailure, "appending event", cdperr.FieldCustomerID(e.CustomerID))
		}
	}

	if err := tx.Commit(); err != nil {
		return cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "committing event append")
	}
	return nil
}

// EventsByCustomer returns the complete event history grouped by customer.
func (p *ProfileStore) EventsByCustomer(ctx context.Context) (map[int64][]*store.Event, error) {
	const q = `SELECT customer_id, event_type, category, COALESCE(color, ''), COALESCE(amount, 0), timestamp
FROM events ORDER BY customer_id, timestamp`

	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "querying event history")
	}
	defer func() { _ = rows.Close() }()

	out := map[int64][]*store.Event{}
	for rows.Next() {
		var e store.Event
		var typ, ts string
		if err := rows.Scan(&e.CustomerID, &typ, &e.Category, &e.Color, &e.Amount, &ts); err != nil {
			return nil, cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "scanning event")
		}
		e.Type = store.EventType(typ)
		e.Timestamp, _ = time.Parse(time.RFC3339, ts)
		out[e.CustomerID] = append(out[e.CustomerID], &e)
	}
	if err := rows.Err(); err != nil {
		return nil, cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "iterating events")
	}
	return out, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
