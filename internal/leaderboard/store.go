// Package leaderboard keeps a durable, append-only record of model
// standings across benchmark runs, separate from the per-run report
// files.
package leaderboard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const defaultLimit = 50

type Store struct {
	db *sql.DB
}

// Entry is one model's standing from one run. AverageScore is nil when
// every cell of the model failed to score in that run.
type Entry struct {
	ID           int64
	RunID        string
	Model        string
	Provider     string
	AverageScore *float64
	TotalCost    float64
	Scenarios    int
	Unscored     int
	EvalDate     time.Time
}

func NewStore(dbPath string) (*Store, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, errors.New("leaderboard: empty db path")
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("leaderboard: create db dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: open db: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("leaderboard: ping db: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("leaderboard: nil db")
	}

	stmts := []string{
		`PRAGMA foreign_keys = ON`,
		`PRAGMA journal_mode = WAL`,
		`CREATE TABLE IF NOT EXISTS leaderboard_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			model TEXT NOT NULL,
			provider TEXT NOT NULL,
			average_score REAL,
			total_cost REAL NOT NULL,
			scenarios INTEGER NOT NULL,
			unscored INTEGER NOT NULL,
			eval_date INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_leaderboard_run ON leaderboard_entries(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_leaderboard_model ON leaderboard_entries(model)`,
		`CREATE INDEX IF NOT EXISTS idx_leaderboard_eval_date ON leaderboard_entries(eval_date)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("leaderboard: init schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Save(ctx context.Context, entry *Entry) error {
	if s == nil || s.db == nil {
		return errors.New("leaderboard: nil store")
	}
	if ctx == nil {
		return errors.New("leaderboard: nil context")
	}
	if entry == nil {
		return errors.New("leaderboard: nil entry")
	}

	runID := strings.TrimSpace(entry.RunID)
	model := strings.TrimSpace(entry.Model)
	provider := strings.TrimSpace(entry.Provider)
	if runID == "" || model == "" || provider == "" {
		return errors.New("leaderboard: missing run/model/provider")
	}

	evalDate := entry.EvalDate
	if evalDate.IsZero() {
		evalDate = time.Now().UTC()
	}

	var avg any
	if entry.AverageScore != nil {
		avg = *entry.AverageScore
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO leaderboard_entries (
			run_id, model, provider, average_score, total_cost, scenarios, unscored, eval_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, model, provider, avg, entry.TotalCost, entry.Scenarios, entry.Unscored, evalDate.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("leaderboard: insert entry: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	entry.EvalDate = evalDate
	entry.RunID = runID
	entry.Model = model
	entry.Provider = provider
	return nil
}

// Standings returns each model's most recent entry, best score first
// with unscored models last and ties broken by lower cost.
func (s *Store) Standings(ctx context.Context, limit int) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("leaderboard: nil store")
	}
	if ctx == nil {
		return nil, errors.New("leaderboard: nil context")
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.run_id, e.model, e.provider, e.average_score, e.total_cost, e.scenarios, e.unscored, e.eval_date
		FROM leaderboard_entries e
		JOIN (
			SELECT model, MAX(eval_date) AS latest
			FROM leaderboard_entries
			GROUP BY model
		) m ON m.model = e.model AND m.latest = e.eval_date
		ORDER BY e.average_score IS NULL ASC, e.average_score DESC, e.total_cost ASC, e.model ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: query standings: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// ModelTrend returns one model's entries across runs, newest first.
func (s *Store) ModelTrend(ctx context.Context, model string, limit int) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("leaderboard: nil store")
	}
	if ctx == nil {
		return nil, errors.New("leaderboard: nil context")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, errors.New("leaderboard: empty model")
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, model, provider, average_score, total_cost, scenarios, unscored, eval_date
		FROM leaderboard_entries
		WHERE model = ?
		ORDER BY eval_date DESC
		LIMIT ?
	`, model, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: query model trend: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

func scanRows(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var e Entry
		var avg sql.NullFloat64
		var evalDateMS int64
		if err := rows.Scan(
			&e.ID,
			&e.RunID,
			&e.Model,
			&e.Provider,
			&avg,
			&e.TotalCost,
			&e.Scenarios,
			&e.Unscored,
			&evalDateMS,
		); err != nil {
			return nil, fmt.Errorf("leaderboard: scan entry: %w", err)
		}
		if avg.Valid {
			v := avg.Float64
			e.AverageScore = &v
		}
		e.EvalDate = time.UnixMilli(evalDateMS).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leaderboard: scan rows: %w", err)
	}
	return out, nil
}
