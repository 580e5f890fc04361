// Package postgres keeps the decision log in PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kilianp07/busalloc/core/decisionlog"
	"github.com/kilianp07/busalloc/core/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS decisions (
	seq        BIGSERIAL PRIMARY KEY,
	id         TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL,
	stop_id    TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	record     JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS decisions_status_idx ON decisions (status);
CREATE INDEX IF NOT EXISTS decisions_created_at_idx ON decisions (created_at DESC);
`

// Store is a decisionlog.Store backed by a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ decisionlog.Store = (*Store)(nil)

// NewStore connects to databaseURL, pings it and ensures the schema.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Append(ctx context.Context, d model.Decision) error {
	if d.ID == "" {
		return errors.New("decision id is required")
	}
	rec, err := json.Marshal(d)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO decisions (id, created_at, stop_id, status, record) VALUES ($1, $2, $3, $4, $5)`,
		d.ID, d.CreatedAt, d.StopID, string(d.Status), rec)
	if err != nil {
		return fmt.Errorf("failed to insert decision %s: %w", d.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (model.Decision, error) {
	return get(ctx, s.pool, id, "")
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func get(ctx context.Context, q rowQuerier, id, suffix string) (model.Decision, error) {
	var rec []byte
	err := q.QueryRow(ctx, `SELECT record FROM decisions WHERE id = $1`+suffix, id).Scan(&rec)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Decision{}, fmt.Errorf("%s: %w", id, decisionlog.ErrNotFound)
	}
	if err != nil {
		return model.Decision{}, fmt.Errorf("failed to load decision %s: %w", id, err)
	}
	var d model.Decision
	if err := json.Unmarshal(rec, &d); err != nil {
		return model.Decision{}, fmt.Errorf("failed to decode decision %s: %w", id, err)
	}
	return d, nil
}

// Update locks the row for the duration of fn.
func (s *Store) Update(ctx context.Context, id string, fn func(*model.Decision) error) (model.Decision, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Decision{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	d, err := get(ctx, tx, id, " FOR UPDATE")
	if err != nil {
		return model.Decision{}, err
	}
	if err := fn(&d); err != nil {
		return model.Decision{}, err
	}
	d.ID = id
	rec, err := json.Marshal(d)
	if err != nil {
		return model.Decision{}, err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE decisions SET status = $2, stop_id = $3, record = $4 WHERE id = $1`,
		id, string(d.Status), d.StopID, rec); err != nil {
		return model.Decision{}, fmt.Errorf("failed to update decision %s: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Decision{}, err
	}
	return d, nil
}

// Query returns matching decisions, most recent first.
func (s *Store) Query(ctx context.Context, q decisionlog.Query) ([]model.Decision, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if q.Status != "" {
		add("status = $%d", string(q.Status))
	}
	if q.StopID != "" {
		add("stop_id = $%d", q.StopID)
	}
	if !q.Start.IsZero() {
		add("created_at >= $%d", q.Start)
	}
	if !q.End.IsZero() {
		add("created_at <= $%d", q.End)
	}
	sql := `SELECT record FROM decisions`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY created_at DESC, seq DESC"

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	var out []model.Decision
	for rows.Next() {
		var rec []byte
		if err := rows.Scan(&rec); err != nil {
			return nil, fmt.Errorf("failed to scan decision row: %w", err)
		}
		var d model.Decision
		if err := json.Unmarshal(rec, &d); err != nil {
			return nil, fmt.Errorf("failed to decode decision: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decision rows: %w", err)
	}
	return out, nil
}
