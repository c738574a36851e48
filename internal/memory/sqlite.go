package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore persists interactions in a single SQLite file. Embeddings are
// stored as little-endian float32 BLOBs and similarity is computed in Go,
// since modernc.org/sqlite cannot load vector extensions.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the database at path. The parent
// directory is created when missing. ":memory:" is accepted for tests.
func NewSQLiteStore(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite store: empty path")
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite store: create dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}
	// One connection keeps ":memory:" databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite store: set pragma: %w", err)
		}
	}

	s, err := NewSQLiteStoreFromDB(ctx, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStoreFromDB wraps an already open database and ensures the schema.
func NewSQLiteStoreFromDB(ctx context.Context, db *sql.DB, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS interactions (
			id        TEXT PRIMARY KEY,
			document  TEXT NOT NULL,
			embedding BLOB,
			ts        INTEGER NOT NULL,
			metadata  TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_ts ON interactions (ts DESC, id DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("sqlite store: init schema failed on %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Add(ctx context.Context, rec Record) error {
	blob, err := encodeVector(rec.Embedding)
	if err != nil {
		return fmt.Errorf("sqlite store: %w", err)
	}
	meta, err := json.Marshal(nonNilMeta(rec.Metadata))
	if err != nil {
		return fmt.Errorf("sqlite store: marshal metadata: %w", err)
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM interactions WHERE id = ?`, rec.ID).Scan(&exists)
	switch {
	case err == nil:
		return fmt.Errorf("sqlite store: add %s: %w", rec.ID, ErrDuplicateID)
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("sqlite store: check id: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO interactions (id, document, embedding, ts, metadata) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Document, blob, rec.Timestamp, string(meta),
	)
	if err != nil {
		return fmt.Errorf("sqlite store: insert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, f Filter, limit int) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	if f.Before != nil {
		where = append(where, "(ts < ? OR (ts = ? AND id < ?))")
		args = append(args, f.Before.Timestamp, f.Before.Timestamp, f.Before.ID)
	}
	if f.AtOrBefore > 0 {
		where = append(where, "ts <= ?")
		args = append(args, f.AtOrBefore)
	}

	q := `SELECT id, document, embedding, ts, metadata FROM interactions`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY ts DESC, id DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: query records: %w", err)
	}
	defer rows.Close()
	return s.scanRecords(rows)
}

func (s *SQLiteStore) Query(ctx context.Context, embedding []float32, n int) ([]ScoredRecord, error) {
	if n <= 0 || len(embedding) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document, embedding, ts, metadata FROM interactions WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: query embeddings: %w", err)
	}
	defer rows.Close()

	recs, err := s.scanRecords(rows)
	if err != nil {
		return nil, err
	}
	return rankByDistance(scoreRecords(embedding, recs, s.logger), n), nil
}

func (s *SQLiteStore) scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var (
			r    Record
			blob []byte
			meta string
		)
		if err := rows.Scan(&r.ID, &r.Document, &blob, &r.Timestamp, &meta); err != nil {
			return nil, fmt.Errorf("sqlite store: scan row: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			s.logger.Warn("sqlite store: skipping row with bad embedding", "id", r.ID, "error", err)
			continue
		}
		r.Embedding = vec
		if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
			s.logger.Warn("sqlite store: skipping row with bad metadata", "id", r.ID, "error", err)
			continue
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite store: iterate rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite store: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM interactions WHERE id = ?`)
	if err != nil {
		return 0, fmt.Errorf("sqlite store: prepare delete: %w", err)
	}
	defer stmt.Close()

	total := 0
	for _, id := range ids {
		res, err := stmt.ExecContext(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("sqlite store: delete %s: %w", id, err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite store: commit delete: %w", err)
	}
	return total, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM interactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite store: count: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func nonNilMeta(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

var _ Store = (*SQLiteStore)(nil)
