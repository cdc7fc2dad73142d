// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agentic CDP Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/romangoldberg/agentic-cdp-demo/internal/store"
	cdperr "github.com/romangoldberg/agentic-cdp-demo/pkg/errors"
)

func init() {
	sqlite_vec.Auto()
}

// defaultAllowListChunkSize bounds how many IDs a single KNN query carries.
// Large gated populations are split into chunks and re-merged; chunking must
// not change result ordering or scoring.
const defaultAllowListChunkSize = 256

// Compile-time interface check.
var _ store.SemanticIndex = (*SemanticIndex)(nil)

// SemanticIndex implements store.SemanticIndex backed by SQLite with
// sqlite-vec. Vectors live in a vec0 virtual table keyed by customer ID; the
// document text and metadata payload live in a companion table.
type SemanticIndex struct {
	db        *sql.DB
	embedder  store.Embedder
	chunkSize int
}

// Option configures a SemanticIndex.
type Option func(*SemanticIndex)

// WithAllowListChunkSize overrides the allow-list chunk size. Values below 1
// are ignored.
func WithAllowListChunkSize(n int) Option {
	return func(s *SemanticIndex) {
		if n >= 1 {
			s.chunkSize = n
		}
	}
}

// NewSemanticIndex opens (or creates) a SQLite database at dbPath and
// initialises the vec0 virtual table and companion document table. Vector
// dimensions come from the embedder.
func NewSemanticIndex(dbPath string, em store.Embedder, opts ...Option) (*SemanticIndex, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, cdperr.Wrapf(err, cdperr.CodeStoreUnavailable, "opening sqlite db %s", dbPath)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, cdperr.Wrapf(err, cdperr.CodeStoreUnavailable, "pinging sqlite db %s", dbPath)
	}

	if err := migrateIndex(db, em.Dimensions()); err != nil {
		_ = db.Close()
		return nil, cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "migrating index tables")
	}

	s := &SemanticIndex{db: db, embedder: em, chunkSize: defaultAllowListChunkSize}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func migrateIndex(db *sql.DB, dimensions int) error {
	// The distance metric is fixed here, in the store schema, not chosen
	// per query.
	vecDDL := "CREATE VIRTUAL TABLE IF NOT EXISTS documents USING vec0(customer_id TEXT PRIMARY KEY, embedding float[" +
		strconv.Itoa(dimensions) + "] distance_metric=cosine)"
	if _, err := db.Exec(vecDDL); err != nil {
		return err
	}

	const metaDDL = `
CREATE TABLE IF NOT EXISTS document_metadata (
	customer_id TEXT PRIMARY KEY,
	text        TEXT NOT NULL,
	metadata    TEXT NOT NULL DEFAULT '{}'
)`
	_, err := db.Exec(metaDDL)
	return err
}

// Close closes the underlying database connection.
func (s *SemanticIndex) Close() error {
	return s.db.Close()
}

// Upsert embeds each document's text and replaces any existing vector and
// payload under the same customer ID. All texts go to the embedder in one
// batch, then the rows are written in one transaction.
func (s *SemanticIndex) Upsert(ctx context.Context, docs []*store.SemanticDocument) error {
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(docs) {
		return cdperr.Errorf(cdperr.CodeEmbedRequestFailure,
			"embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	for i, doc := range docs {
		blob, err := sqlite_vec.SerializeFloat32(vectors[i])
		if err != nil {
			return cdperr.Wrap(err, cdperr.CodeStoreDatabaseFailure, "serializing embedding", cdperr.FieldCustomerID(doc.CustomerID))
		}

		metaJSON := []byte("{}")
		if len(doc.Metadata) > 0 {
			metaJSON, err = json.Marshal(doc.Metadata)
			if err != nil {
				return cdperr.Wrap(err, cdperr.CodeStoreDatabaseFailure, "marshalling metadata", cdperr.FieldCustomerID(doc.CustomerID))
			}
		}

		id := strconv.FormatInt(doc.CustomerID, 10)

		// vec0 does not support ON CONFLICT; delete first for upsert.
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE customer_id = ?`, id); err != nil {
			return cdperr.Wrap(err, cdperr.CodeStoreDatabaseFailure, "deleting existing vector", cdperr.FieldCustomerID(doc.CustomerID))
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO documents(customer_id, embedding) VALUES (?, ?)`, id, blob); err != nil {
			return cdperr.Wrap(err, cdperr.CodeStoreDatabaseFailure, "inserting vector", cdperr.FieldCustomerID(doc.CustomerID))
		}

		const metaQ = `INSERT INTO document_metadata(customer_id, text, metadata) VALUES (?, ?, ?)
ON CONFLICT(customer_id) DO UPDATE SET text = excluded.text, metadata = excluded.metadata`
		if _, err := tx.ExecContext(ctx, metaQ, id, doc.Text, string(metaJSON)); err != nil {
			return cdperr.Wrap(err, cdperr.CodeStoreDatabaseFailure, "upserting document payload", cdperr.FieldCustomerID(doc.CustomerID))
		}
	}

	if err := tx.Commit(); err != nil {
		return cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "committing document upsert")
	}
	return nil
}

// NearestNeighbors embeds the query text and runs a KNN search restricted to
// the allow-list. sqlite-vec reports cosine distance (lower = closer); scores
// are returned as similarity = 1 - distance so higher means more similar.
// Ordering is descending similarity with ties broken by ascending customer
// ID. Allow-list IDs absent from the index simply produce no hit. Metadata
// filters narrow the candidate set before the KNN runs, the same way the
// allow-list does.
func (s *SemanticIndex) NearestNeighbors(ctx context.Context, queryText string, allowList []int64, filters map[string]any, topK int) ([]store.ScoredID, error) {
	if topK <= 0 {
		return nil, cdperr.Errorf(cdperr.CodeStoreInvalidInput, "topK must be positive, got %d", topK)
	}

	if len(filters) > 0 {
		narrowed, err := s.filterByMetadata(ctx, allowList, filters)
		if err != nil {
			return nil, err
		}
		if len(narrowed) == 0 {
			return nil, nil
		}
		allowList = narrowed
	}

	vectors, err := s.embedder.Embed(ctx, []string{queryText})
	if err != nil {
		return nil, err
	}
	blob, err := sqlite_vec.SerializeFloat32(vectors[0])
	if err != nil {
		return nil, cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "serializing query vector")
	}

	var hits []store.ScoredID
	if len(allowList) == 0 {
		hits, err = s.knn(ctx, blob, nil, topK)
		if err != nil {
			return nil, err
		}
	} else {
		// Each chunk is an independent KNN over a disjoint candidate set;
		// merging and re-sorting afterwards yields the same result as one
		// unchunked query.
		for start := 0; start < len(allowList); start += s.chunkSize {
			end := min(start+s.chunkSize, len(allowList))
			chunkHits, err := s.knn(ctx, blob, allowList[start:end], topK)
			if err != nil {
				return nil, err
			}
			hits = append(hits, chunkHits...)
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].CustomerID < hits[j].CustomerID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// filterByMetadata resolves metadata equality filters against the stored
// document payloads and returns the matching customer IDs, intersected with
// the allow-list when one is given. Filter keys are bound as json paths, not
// interpolated, so arbitrary caller keys are safe.
func (s *SemanticIndex) filterByMetadata(ctx context.Context, allowList []int64, filters map[string]any) ([]int64, error) {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		conds = append(conds, "json_extract(metadata, ?) = ?")
		args = append(args, "$."+k, filters[k])
	}

	q := "SELECT customer_id FROM document_metadata WHERE " + strings.Join(conds, " AND ") + " ORDER BY customer_id"
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "filtering document metadata")
	}
	defer func() { _ = rows.Close() }()

	matched := map[int64]bool{}
	var all []int64
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "scanning filtered customer id")
		}
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return nil, cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "parsing customer id %q", idStr)
		}
		matched[id] = true
		all = append(all, id)
	}
	if err := rows.Err(); err != nil {
		return nil, cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "iterating filtered customer ids")
	}

	if len(allowList) == 0 {
		return all, nil
	}
	var out []int64
	for _, id := range allowList {
		if matched[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

// knn runs one vec0 KNN query, optionally constrained to an ID set.
func (s *SemanticIndex) knn(ctx context.Context, queryBlob []byte, ids []int64, k int) ([]store.ScoredID, error) {
	q := `SELECT customer_id, distance FROM documents WHERE embedding MATCH ? AND k = ?`
	args := []any{queryBlob, k}

	if len(ids) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
		q += ` AND customer_id IN (` + placeholders + `)`
		for _, id := range ids {
			args = append(args, strconv.FormatInt(id, 10))
		}
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "searching documents")
	}
	defer func() { _ = rows.Close() }()

	var out []store.ScoredID
	for rows.Next() {
		var idStr string
		var distance float64
		if err := rows.Scan(&idStr, &distance); err != nil {
			return nil, cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "scanning search hit")
		}
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return nil, cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "parsing customer id %q", idStr)
		}
		out = append(out, store.ScoredID{CustomerID: id, Score: 1 - distance})
	}
	if err := rows.Err(); err != nil {
		return nil, cdperr.Wrapf(err, cdperr.CodeStoreDatabaseFailure, "iterating search hits")
	}
	return out, nil
}
