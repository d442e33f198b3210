// Package sqlite persists chunk vectors in an embedded SQLite database and
// searches them by brute-force cosine similarity.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	// Register modernc SQLite driver with database/sql.
	_ "modernc.org/sqlite"

	"docintel/internal/domain"
	"docintel/internal/vectorstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	doc_id     TEXT    NOT NULL,
	chunk_id   INTEGER NOT NULL,
	text       TEXT    NOT NULL,
	char_start INTEGER NOT NULL,
	char_end   INTEGER NOT NULL,
	vector     TEXT    NOT NULL,
	PRIMARY KEY (doc_id, chunk_id)
);
CREATE TABLE IF NOT EXISTS store_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// Storage is a domain.VectorStore backed by a single SQLite file.
type Storage struct {
	db *sql.DB

	mu        sync.RWMutex
	dimension int
}

// Open opens (or creates) the database at path. ":memory:" is accepted for tests.
func Open(ctx context.Context, path string) (*Storage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// One writer at a time; also keeps ":memory:" on a single shared connection.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Storage{db: db}, nil
}

func (s *Storage) Close() error { return s.db.Close() }

// Init fixes the vector dimension. Re-initialising a non-empty store with a
// different dimension fails; the caller must Clear first.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return vectorstore.ErrInvalidDimension
	}
	var stored int
	err := s.db.QueryRowContext(ctx, `SELECT CAST(value AS INTEGER) FROM store_meta WHERE key = 'dimension'`).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("sqlite: read dimension: %w", err)
	case stored != dimension:
		n, cerr := s.Count(ctx)
		if cerr != nil {
			return cerr
		}
		if n > 0 {
			return fmt.Errorf("%w: store holds %d-dimensional vectors, got %d", vectorstore.ErrDimensionMismatch, stored, dimension)
		}
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO store_meta (key, value) VALUES ('dimension', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, fmt.Sprint(dimension)); err != nil {
		return fmt.Errorf("sqlite: write dimension: %w", err)
	}
	s.mu.Lock()
	s.dimension = dimension
	s.mu.Unlock()
	return nil
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	s.mu.RLock()
	dim := s.dimension
	s.mu.RUnlock()
	if err := vectorstore.CheckUpsert(dim, chunks, vectors); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (doc_id, chunk_id, text, char_start, char_end, vector)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(doc_id, chunk_id) DO UPDATE SET
			text = excluded.text,
			char_start = excluded.char_start,
			char_end = excluded.char_end,
			vector = excluded.vector`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i, c := range chunks {
		raw, err := json.Marshal(vectors[i])
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, c.DocID, c.ChunkID, c.Text, c.CharStart, c.CharEnd, string(raw)); err != nil {
			return fmt.Errorf("sqlite: upsert %s: %w", vectorstore.ChunkKey(c), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, req domain.SearchRequest) ([]domain.Match, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc_id, chunk_id, text, char_start, char_end, vector FROM chunks ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: search: %w", err)
	}
	defer rows.Close()

	matches := make([]domain.Match, 0)
	for rows.Next() {
		var (
			c   domain.Chunk
			raw string
			vec []float64
		)
		if err := rows.Scan(&c.DocID, &c.ChunkID, &c.Text, &c.CharStart, &c.CharEnd, &raw); err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &vec); err != nil {
			return nil, fmt.Errorf("sqlite: decode vector %s: %w", vectorstore.ChunkKey(c), err)
		}
		m := domain.Match{ID: vectorstore.ChunkKey(c), Score: vectorstore.Cosine(vec, req.Vector)}
		if req.IncludeMetadata {
			m.Metadata = c.Metadata()
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate: %w", err)
	}
	return vectorstore.TopK(matches, req.TopK), nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count: %w", err)
	}
	return n, nil
}

func (s *Storage) DeleteDoc(ctx context.Context, docID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE doc_id = ?`, docID); err != nil {
		return fmt.Errorf("sqlite: delete %s: %w", docID, err)
	}
	return nil
}

func (s *Storage) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("sqlite: clear: %w", err)
	}
	return nil
}
