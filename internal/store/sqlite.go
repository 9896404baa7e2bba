package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const runSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	scenario     TEXT NOT NULL,
	strategy     TEXT NOT NULL,
	symbol       TEXT NOT NULL,
	timeframe    TEXT NOT NULL,
	created_at   INTEGER NOT NULL,
	return_pct   REAL NOT NULL,
	sharpe_ratio REAL NOT NULL,
	total_trades INTEGER NOT NULL,
	report_path  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_scenario ON runs(scenario, created_at);
`

// NewSQLiteStore opens (or creates) the database at path and ensures the
// schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db %s: %w", path, err)
	}
	if _, err := db.Exec(runSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun inserts a run record and fills in its assigned ID.
func (s *SQLiteStore) SaveRun(ctx context.Context, rec *RunRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (scenario, strategy, symbol, timeframe, created_at,
			return_pct, sharpe_ratio, total_trades, report_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Scenario, rec.Strategy, rec.Symbol, rec.Timeframe,
		rec.CreatedAt.UnixMilli(), rec.ReturnPct, rec.SharpeRatio,
		rec.TotalTrades, rec.ReportPath)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	rec.ID, err = res.LastInsertId()
	return err
}

// ListRuns returns the most recent runs for a scenario, newest first. A
// limit of 0 means no limit. An empty scenario matches all scenarios.
func (s *SQLiteStore) ListRuns(ctx context.Context, scenario string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite: negative LIMIT means unlimited
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, scenario, strategy, symbol, timeframe, created_at,
			return_pct, sharpe_ratio, total_trades, report_path
		 FROM runs
		 WHERE (? = '' OR scenario = ?)
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		scenario, scenario, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// GetRun fetches a single run by ID. Returns sql.ErrNoRows if absent.
func (s *SQLiteStore) GetRun(ctx context.Context, id int64) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, scenario, strategy, symbol, timeframe, created_at,
			return_pct, sharpe_ratio, total_trades, report_path
		 FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var rec RunRecord
	var createdMs int64
	err := row.Scan(&rec.ID, &rec.Scenario, &rec.Strategy, &rec.Symbol,
		&rec.Timeframe, &createdMs, &rec.ReturnPct, &rec.SharpeRatio,
		&rec.TotalTrades, &rec.ReportPath)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = time.UnixMilli(createdMs).UTC()
	return &rec, nil
}
