package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists interactions in PostgreSQL with pgvector for
// similarity search.
type PostgresStore struct {
	pool *pgxpool.Pool
	dim  int
}

func NewPostgresStore(ctx context.Context, databaseURL string, dim int) (*PostgresStore, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("postgres store: embedding dimension must be positive, got %d", dim)
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool, dim); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool, dim: dim}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool, dim int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector;`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chat_interactions (
			id TEXT PRIMARY KEY,
			document TEXT NOT NULL,
			embedding vector(%d),
			ts BIGINT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb
		);`, dim),
		`CREATE INDEX IF NOT EXISTS idx_chat_interactions_ts ON chat_interactions (ts DESC, id DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Add(ctx context.Context, rec Record) error {
	if len(rec.Embedding) > 0 && len(rec.Embedding) != s.dim {
		return fmt.Errorf("add %s: embedding has %d dimensions, store expects %d", rec.ID, len(rec.Embedding), s.dim)
	}
	meta, err := json.Marshal(nonNilMeta(rec.Metadata))
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	var vec any
	if len(rec.Embedding) > 0 {
		vec = vectorLiteral(rec.Embedding)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO chat_interactions (id, document, embedding, ts, metadata)
		 VALUES ($1, $2, $3::vector, $4, $5::jsonb)`,
		rec.ID,
		rec.Document,
		vec,
		rec.Timestamp,
		string(meta),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("add %s: %w", rec.ID, ErrDuplicateID)
		}
		return fmt.Errorf("save interaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, f Filter, limit int) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	if f.Before != nil {
		args = append(args, f.Before.Timestamp, f.Before.ID)
		where = append(where, fmt.Sprintf("(ts, id) < ($%d, $%d)", len(args)-1, len(args)))
	}
	if f.AtOrBefore > 0 {
		args = append(args, f.AtOrBefore)
		where = append(where, fmt.Sprintf("ts <= $%d", len(args)))
	}

	q := `SELECT id, document, embedding::text, ts, metadata FROM chat_interactions`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY ts DESC, id DESC"
	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, max(limit, 0))
	for rows.Next() {
		r, err := scanPostgresRecord(rows, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interaction rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Query(ctx context.Context, embedding []float32, n int) ([]ScoredRecord, error) {
	if n <= 0 || len(embedding) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, document, embedding::text, ts, metadata, embedding <=> $1::vector AS distance
		 FROM chat_interactions WHERE embedding IS NOT NULL
		 ORDER BY distance ASC, ts DESC, id ASC LIMIT $2`,
		vectorLiteral(embedding),
		n,
	)
	if err != nil {
		return nil, fmt.Errorf("query similar interactions: %w", err)
	}
	defer rows.Close()

	out := make([]ScoredRecord, 0, n)
	for rows.Next() {
		var distance float64
		r, err := scanPostgresRecord(rows, &distance)
		if err != nil {
			return nil, err
		}
		out = append(out, ScoredRecord{Record: r, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate similar rows: %w", err)
	}
	return out, nil
}

func scanPostgresRecord(rows pgx.Rows, distance *float64) (Record, error) {
	var (
		r   Record
		vec *string
	)
	dest := []any{&r.ID, &r.Document, &vec, &r.Timestamp, &r.Metadata}
	if distance != nil {
		dest = append(dest, distance)
	}
	if err := rows.Scan(dest...); err != nil {
		return Record{}, fmt.Errorf("scan interaction row: %w", err)
	}
	if vec != nil {
		parsed, err := parseVectorLiteral(*vec)
		if err != nil {
			return Record{}, fmt.Errorf("scan interaction %s: %w", r.ID, err)
		}
		r.Embedding = parsed
	}
	return r, nil
}

func (s *PostgresStore) Delete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM chat_interactions WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("delete interactions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chat_interactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count interactions: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// parseVectorLiteral is the inverse of vectorLiteral.
func parseVectorLiteral(text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "[") || !strings.HasSuffix(text, "]") {
		return nil, fmt.Errorf("parse vector %q: missing brackets", text)
	}
	body := strings.TrimSpace(text[1 : len(text)-1])
	if body == "" {
		return nil, nil
	}
	parts := strings.Split(body, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("parse vector element %d: %w", i, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}

var _ Store = (*PostgresStore)(nil)
