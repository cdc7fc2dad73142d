// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agentic CDP Contributors

// Package postgres implements the profile store on PostgreSQL via pgx. The
// pool supports concurrent outstanding calls, so many Discover invocations
// can gate and enrich simultaneously over one shared handle.
package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/romangoldberg/agentic-cdp-demo/internal/store"
	cdperr "github.com/romangoldberg/agentic-cdp-demo/pkg/errors"
)

// maxRetries bounds the client-level transient retry. The coordinator never
// retries internally; this is the only retry layer in the pipeline.
const maxRetries = 3

// Compile-time interface check.
var _ store.ProfileStore = (*ProfileStore)(nil)

// ProfileStore implements store.ProfileStore backed by PostgreSQL.
type ProfileStore struct {
	pool *pgxpool.Pool
}

// NewProfileStore connects to PostgreSQL using the given DSN and initialises
// the customers and events tables.
func NewProfileStore(ctx context.Context, dsn string) (*ProfileStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, cdperr.Wrapf(err, cdperr.CodeStoreUnavailable, "creating postgres pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, cdperr.Wrapf(err, cdperr.CodeStoreUnavailable, "pinging postgres")
	}

	if err := migrateProfile(ctx, pool); err != nil {
		pool.Close()
		return nil, cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "migrating profile tables")
	}

	return &ProfileStore{pool: pool}, nil
}

func migrateProfile(ctx context.Context, pool *pgxpool.Pool) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS customers (
	customer_id    BIGINT PRIMARY KEY,
	first_name     TEXT NOT NULL,
	last_name      TEXT NOT NULL,
	email          TEXT NOT NULL,
	country        TEXT NOT NULL,
	age            INTEGER NOT NULL,
	favorite_color TEXT NOT NULL,
	total_spent    DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS events (
	customer_id BIGINT NOT NULL REFERENCES customers(customer_id),
	event_type  TEXT NOT NULL,
	category    TEXT NOT NULL,
	color       TEXT,
	amount      DOUBLE PRECISION,
	timestamp   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_customer ON events(customer_id);
CREATE INDEX IF NOT EXISTS idx_events_category ON events(category, event_type);
`
	_, err := pool.Exec(ctx, ddl)
	return err
}

// Close releases the connection pool.
func (p *ProfileStore) Close() error {
	p.pool.Close()
	return nil
}

// query runs a read query with bounded retry on transient connection
// failures. Context cancellation and SQL-level errors are permanent.
func (p *ProfileStore) query(ctx context.Context, q string, args ...any) (pgx.Rows, error) {
	op := func() (pgx.Rows, error) {
		rows, err := p.pool.Query(ctx, q, args...)
		if err != nil && !isTransient(err) {
			return nil, backoff.Permanent(err)
		}
		return rows, err
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxRetries),
	)
}

// isTransient reports whether an error is a connection-level failure worth a
// client-side retry.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if pgconn.SafeToRetry(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exceptions.
		return strings.HasPrefix(pgErr.Code, "08")
	}
	return false
}

// classifyQueryErr separates transient failures from predicate errors.
// Postgres reports a malformed WHERE clause as a class 42 (syntax or access
// rule) error.
func classifyQueryErr(err error, msg string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || isTransient(err) {
		return cdperr.Wrapf(err, cdperr.CodeStoreUnavailable, "%s", msg)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "42") {
		return cdperr.Wrapf(err, cdperr.CodeStorePredicateInvalid, "%s", msg)
	}
	return cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "%s", msg)
}

// SelectDistinctIDs runs the behavioral gate against the events table.
func (p *ProfileStore) SelectDistinctIDs(ctx context.Context, predicate string) ([]int64, error) {
	if strings.TrimSpace(predicate) == "" {
		return nil, cdperr.New(cdperr.CodeStoreInvalidInput, "empty gate predicate")
	}

	q := "SELECT DISTINCT customer_id FROM events WHERE " + predicate + " ORDER BY customer_id"
	rows, err := p.query(ctx, q)
	if err != nil {
		return nil, classifyQueryErr(err, "executing gate predicate")
	}
	defer rows.Close()

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

// FetchByIDs fetches the named fields for each ID in one batched query.
func (p *ProfileStore) FetchByIDs(ctx context.Context, ids []int64, fields []string) (map[int64]store.Record, error) {
	out := make(map[int64]store.Record, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	cols, err := store.NormalizeFields(fields)
	if err != nil {
		return nil, err
	}

	q := "SELECT " + strings.Join(cols, ", ") + " FROM customers WHERE customer_id = ANY($1)"
	rows, err := p.query(ctx, q, ids)
	if err != nil {
		return nil, cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "fetching %d customer records", len(ids))
	}
	defer rows.Close()

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

func scanRecord(rows pgx.Rows, cols []string) (store.Record, int64, error) {
	dests := make([]any, len(cols))
	for i, col := range cols {
		switch col {
		case "customer_id":
			dests[i] = new(int64)
		case "age":
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
	rows, err := p.query(ctx, "SELECT customer_id FROM customers ORDER BY customer_id LIMIT $1", limit)
	if err != nil {
		return nil, cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "listing customer ids")
	}
	defer rows.Close()

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

	const q = `INSERT INTO customers (customer_id, first_name, last_name, email, country, age, favorite_color, total_spent)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT(customer_id) DO UPDATE SET
	first_name = excluded.first_name,
	last_name = excluded.last_name,
	email = excluded.email,
	country = excluded.country,
	age = excluded.age,
	favorite_color = excluded.favorite_color,
	total_spent = excluded.total_spent`

	return p.inTx(ctx, func(tx pgx.Tx) error {
		for _, c := range profiles {
			if _, err := tx.Exec(ctx, q,
				c.CustomerID, c.FirstName, c.LastName, c.Email, c.Country, c.Age, c.FavoriteColor, c.TotalSpent,
			); err != nil {
				return cdperr.Wrap(err, cdperr.CodeStoreDatabaseFailure, "upserting customer", cdperr.FieldCustomerID(c.CustomerID))
			}
		}
		return nil
	})
}

// AppendEvents appends raw event rows in one transaction.
func (p *ProfileStore) AppendEvents(ctx context.Context, events []*store.Event) error {
	if len(events) == 0 {
		return nil
	}

	const q = `INSERT INTO events (customer_id, event_type, category, color, amount, timestamp)
VALUES ($1, $2, $3, $4, $5, $6)`

	return p.inTx(ctx, func(tx pgx.Tx) error {
		for _, e := range events {
			if _, err := tx.Exec(ctx, q,
				e.CustomerID, string(e.Type), e.Category, e.Color, e.Amount, e.Timestamp.UTC(),
			); err != nil {
				return cdperr.Wrap(err, cdperr.CodeStoreDatabaseFailure, "appending event", cdperr.FieldCustomerID(e.CustomerID))
			}
		}
		return nil
	})
}

// EventsByCustomer returns the complete event history grouped by customer.
func (p *ProfileStore) EventsByCustomer(ctx context.Context) (map[int64][]*store.Event, error) {
	const q = `SELECT customer_id, event_type, category, COALESCE(color, ''), COALESCE(amount, 0), timestamp
FROM events ORDER BY customer_id, timestamp`

	rows, err := p.query(ctx, q)
	if err != nil {
		return nil, cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "querying event history")
	}
	defer rows.Close()

	out := map[int64][]*store.Event{}
	for rows.Next() {
		var e store.Event
		var typ string
		var ts time.Time
		if err := rows.Scan(&e.CustomerID, &typ, &e.Category, &e.Color, &e.Amount, &ts); err != nil {
			return nil, cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "scanning event")
		}
		e.Type = store.EventType(typ)
		e.Timestamp = ts
		out[e.CustomerID] = append(out[e.CustomerID], &e)
	}
	if err := rows.Err(); err != nil {
		return nil, cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "iterating events")
	}
	return out, nil
}

func (p *ProfileStore) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "committing transaction")
	}
	return nil
}
