package decisionlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/busalloc/core/model"
)

// SQLiteStore persists decisions to a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS decisions (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        id TEXT NOT NULL UNIQUE,
        ts INTEGER NOT NULL,
        stop_id TEXT,
        status TEXT,
        record TEXT NOT NULL
    );`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, d model.Decision) error {
	if d.ID == "" {
		return fmt.Errorf("decision id is required")
	}
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO decisions (id, ts, stop_id, status, record) VALUES (?, ?, ?, ?, ?)`,
		d.ID, d.CreatedAt.UnixNano(), d.StopID, string(d.Status), string(b))
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (model.Decision, error) {
	return s.get(ctx, s.db, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) get(ctx context.Context, q queryer, id string) (model.Decision, error) {
	var data string
	err := q.QueryRowContext(ctx, `SELECT record FROM decisions WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Decision{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Decision{}, err
	}
	var d model.Decision
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return model.Decision{}, fmt.Errorf("unmarshal decision: %w", err)
	}
	return d, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id string, fn func(*model.Decision) error) (model.Decision, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Decision{}, err
	}
	defer func() { _ = tx.Rollback() }()
	d, err := s.get(ctx, tx, id)
	if err != nil {
		return model.Decision{}, err
	}
	if err := fn(&d); err != nil {
		return model.Decision{}, err
	}
	d.ID = id
	b, err := json.Marshal(d)
	if err != nil {
		return model.Decision{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE decisions SET status = ?, record = ? WHERE id = ?`,
		string(d.Status), string(b), id); err != nil {
		return model.Decision{}, err
	}
	return d, tx.Commit()
}

func (s *SQLiteStore) Query(ctx context.Context, q Query) ([]model.Decision, error) {
	var args []any
	query := `SELECT record FROM decisions WHERE 1=1`
	if !q.Start.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, q.End.UnixNano())
	}
	if q.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(q.Status))
	}
	if q.StopID != "" {
		query += ` AND stop_id = ?`
		args = append(args, q.StopID)
	}
	query += ` ORDER BY ts DESC, seq DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.Decision
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var d model.Decision
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			return nil, fmt.Errorf("unmarshal decision: %w", err)
		}
		res = append(res, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
