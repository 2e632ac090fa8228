package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const defaultHistoryLimit = 50

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB

	insertRunStmt     *sql.Stmt
	insertResultStmt  *sql.Stmt
	getRunStmt        *sql.Stmt
	resultsByRunStmt  *sql.Stmt
	modelHistoryStmt  *sql.Stmt
	resultsByCellStmt *sql.Stmt
}

var (
	sqliteOpen              = sql.Open
	sqlitePrepareStatements = (*SQLiteStore).prepareStatements
)

// NewSQLiteStore opens or creates a SQLite store at the given path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("store: empty sqlite path")
	}
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("store: create sqlite dir: %w", err)
			}
		}
	}

	db, err := sqliteOpen("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping sqlite: %w", err)
	}

	if err := initSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	st := &SQLiteStore{db: db}
	if err := sqlitePrepareStatements(st); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func initSQLiteSchema(db *sql.DB) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON`,
		`PRAGMA journal_mode = WAL`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			total_pairs INTEGER NOT NULL,
			scored_pairs INTEGER NOT NULL,
			failed_pairs INTEGER NOT NULL,
			report_path TEXT,
			config_json TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS results (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			model TEXT NOT NULL,
			scenario TEXT NOT NULL,
			score REAL,
			cost REAL NOT NULL,
			duration_s REAL NOT NULL,
			tokens INTEGER NOT NULL,
			error_kind TEXT,
			error TEXT,
			details BLOB,
			created_at INTEGER NOT NULL,
			FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_run_id ON results(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_results_model ON results(model, scenario)`,
		`CREATE INDEX IF NOT EXISTS idx_results_created_at ON results(created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("store: init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) prepareStatements() error {
	if s == nil || s.db == nil {
		return errors.New("store: nil sqlite store")
	}

	ctx := context.Background()
	type stmtSpec struct {
		dst    **sql.Stmt
		query  string
		errFmt string
	}

	specs := []stmtSpec{
		{
			dst: &s.insertRunStmt,
			query: `
				INSERT INTO runs (
					id, started_at, finished_at, total_pairs, scored_pairs, failed_pairs, report_path, config_json
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`,
			errFmt: "store: prepare insert run: %w",
		},
		{
			dst: &s.insertResultStmt,
			query: `
				INSERT INTO results (
					id, run_id, model, scenario, score, cost, duration_s, tokens,
					error_kind, error, details, created_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`,
			errFmt: "store: prepare insert result: %w",
		},
		{
			dst: &s.getRunStmt,
			query: `
				SELECT id, started_at, finished_at, total_pairs, scored_pairs, failed_pairs, report_path, config_json
				FROM runs WHERE id = ?
			`,
			errFmt: "store: prepare get run: %w",
		},
		{
			dst: &s.resultsByRunStmt,
			query: `
				SELECT id, run_id, model, scenario, score, cost, duration_s, tokens,
					error_kind, error, details, created_at
				FROM results
				WHERE run_id = ?
				ORDER BY model ASC, scenario ASC
			`,
			errFmt: "store: prepare get results: %w",
		},
		{
			dst: &s.modelHistoryStmt,
			query: `
				SELECT id, run_id, model, scenario, score, cost, duration_s, tokens,
					error_kind, error, details, created_at
				FROM results
				WHERE model = ?
				ORDER BY created_at DESC
				LIMIT ?
			`,
			errFmt: "store: prepare model history: %w",
		},
		{
			dst: &s.resultsByCellStmt,
			query: `
				SELECT id, run_id, model, scenario, score, cost, duration_s, tokens,
					error_kind, error, details, created_at
				FROM results
				WHERE run_id = ? AND model = ?
				ORDER BY scenario ASC
			`,
			errFmt: "store: prepare results by cell: %w",
		},
	}

	for _, spec := range specs {
		stmt, err := s.db.PrepareContext(ctx, spec.query)
		if err != nil {
			return fmt.Errorf(spec.errFmt, err)
		}
		*spec.dst = stmt
	}

	return nil
}

// Close releases database resources.
func (s *SQLiteStore) Close() error {
	if s == nil {
		return nil
	}
	stmts := []*sql.Stmt{
		s.insertRunStmt,
		s.insertResultStmt,
		s.getRunStmt,
		s.resultsByRunStmt,
		s.modelHistoryStmt,
		s.resultsByCellStmt,
	}
	for _, stmt := range stmts {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveRun persists a run summary.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *RunRecord) error {
	if s == nil {
		return errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return errors.New("store: nil context")
	}
	if run == nil {
		return errors.New("store: nil run")
	}

	id := strings.TrimSpace(run.ID)
	if id == "" {
		return errors.New("store: empty run id")
	}
	if run.StartedAt.IsZero() || run.FinishedAt.IsZero() {
		return errors.New("store: missing run timestamps")
	}

	cfgJSON := []byte("null")
	if run.Config != nil {
		var err error
		cfgJSON, err = json.Marshal(run.Config)
		if err != nil {
			return fmt.Errorf("store: marshal run config: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin run tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt := tx.StmtContext(ctx, s.insertRunStmt)
	defer stmt.Close()

	_, err = stmt.ExecContext(
		ctx,
		id,
		run.StartedAt.UTC().UnixMilli(),
		run.FinishedAt.UTC().UnixMilli(),
		run.TotalPairs,
		run.ScoredPairs,
		run.FailedPairs,
		run.ReportPath,
		string(cfgJSON),
	)
	if err != nil {
		return fmt.Errorf("store: insert run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit run: %w", err)
	}
	return nil
}

// SaveResult persists one model/scenario cell.
func (s *SQLiteStore) SaveResult(ctx context.Context, result *ResultRecord) error {
	if s == nil {
		return errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return errors.New("store: nil context")
	}
	if result == nil {
		return errors.New("store: nil result")
	}

	id := strings.TrimSpace(result.ID)
	if id == "" {
		return errors.New("store: empty result id")
	}
	if strings.TrimSpace(result.RunID) == "" {
		return errors.New("store: empty run id")
	}
	if strings.TrimSpace(result.Model) == "" || strings.TrimSpace(result.Scenario) == "" {
		return errors.New("store: missing model/scenario")
	}

	createdAt := result.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	detailsJSON, err := json.Marshal(result.Details)
	if err != nil {
		return fmt.Errorf("store: marshal details: %w", err)
	}

	var score any
	if result.Score != nil {
		score = *result.Score
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin result tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt := tx.StmtContext(ctx, s.insertResultStmt)
	defer stmt.Close()

	_, err = stmt.ExecContext(
		ctx,
		id,
		result.RunID,
		result.Model,
		result.Scenario,
		score,
		result.Cost,
		result.DurationS,
		result.Tokens,
		result.ErrorKind,
		result.Error,
		detailsJSON,
		createdAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("store: insert result: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit result: %w", err)
	}
	return nil
}

// GetRun loads a run by id.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	if s == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("store: empty run id")
	}

	row := s.getRunStmt.QueryRowContext(ctx, id)
	rec, err := scanRunRow(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: get run: %w", err)
	}
	return rec, nil
}

// ListRuns returns runs matching the filter.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]*RunRecord, error) {
	if s == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}

	model := strings.TrimSpace(filter.Model)
	scenario := strings.TrimSpace(filter.Scenario)
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	var sb strings.Builder
	sb.WriteString(`SELECT DISTINCT r.id, r.started_at, r.finished_at, r.total_pairs, r.scored_pairs, r.failed_pairs, r.report_path, r.config_json FROM runs r`)
	if model != "" || scenario != "" {
		sb.WriteString(` JOIN results s ON s.run_id = r.id`)
	}
	sb.WriteString(` WHERE 1=1`)

	var args []any
	if model != "" {
		sb.WriteString(` AND s.model = ?`)
		args = append(args, model)
	}
	if scenario != "" {
		sb.WriteString(` AND s.scenario = ?`)
		args = append(args, scenario)
	}
	if !filter.Since.IsZero() {
		sb.WriteString(` AND r.started_at >= ?`)
		args = append(args, filter.Since.UTC().UnixMilli())
	}
	if !filter.Until.IsZero() {
		sb.WriteString(` AND r.started_at <= ?`)
		args = append(args, filter.Until.UTC().UnixMilli())
	}
	sb.WriteString(` ORDER BY r.started_at DESC`)
	if limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var out []*RunRecord
	for rows.Next() {
		rec, err := scanRunRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	return out, nil
}

func scanRunRow(scan func(...any) error) (*RunRecord, error) {
	var (
		runID        string
		startedAtMS  int64
		finishedAtMS int64
		totalPairs   int
		scoredPairs  int
		failedPairs  int
		reportPath   sql.NullString
		cfgJSON      sql.NullString
	)
	if err := scan(&runID, &startedAtMS, &finishedAtMS, &totalPairs, &scoredPairs, &failedPairs, &reportPath, &cfgJSON); err != nil {
		return nil, err
	}

	cfg, err := decodeConfig(cfgJSON)
	if err != nil {
		return nil, fmt.Errorf("decode run config: %w", err)
	}

	return &RunRecord{
		ID:          runID,
		StartedAt:   time.UnixMilli(startedAtMS).UTC(),
		FinishedAt:  time.UnixMilli(finishedAtMS).UTC(),
		TotalPairs:  totalPairs,
		ScoredPairs: scoredPairs,
		FailedPairs: failedPairs,
		ReportPath:  reportPath.String,
		Config:      cfg,
	}, nil
}

// GetResults lists cell results for a run.
func (s *SQLiteStore) GetResults(ctx context.Context, runID string) ([]*ResultRecord, error) {
	if s == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, errors.New("store: empty run id")
	}

	rows, err := s.resultsByRunStmt.QueryContext(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("store: get results: %w", err)
	}
	defer rows.Close()

	return scanResultRows(rows)
}

// GetModelHistory returns recent cell results for a model across runs.
func (s *SQLiteStore) GetModelHistory(ctx context.Context, model string, limit int) ([]*ResultRecord, error) {
	if s == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, errors.New("store: empty model")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	rows, err := s.modelHistoryStmt.QueryContext(ctx, model, limit)
	if err != nil {
		return nil, fmt.Errorf("store: model history: %w", err)
	}
	defer rows.Close()

	return scanResultRows(rows)
}

// GetRunComparison compares scores cell by cell between two runs.
func (s *SQLiteStore) GetRunComparison(ctx context.Context, runID1, runID2 string) (*RunComparison, error) {
	if s == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}
	runID1 = strings.TrimSpace(runID1)
	runID2 = strings.TrimSpace(runID2)
	if runID1 == "" || runID2 == "" {
		return nil, errors.New("store: missing run ids")
	}

	res1, err := s.GetResults(ctx, runID1)
	if err != nil {
		return nil, err
	}
	res2, err := s.GetResults(ctx, runID2)
	if err != nil {
		return nil, err
	}

	regressions, improvements := compareCellScores(res1, res2)

	return &RunComparison{
		RunID1:       runID1,
		RunID2:       runID2,
		Run1Results:  res1,
		Run2Results:  res2,
		Regressions:  regressions,
		Improvements: improvements,
	}, nil
}

func scanResultRows(rows *sql.Rows) ([]*ResultRecord, error) {
	var out []*ResultRecord
	for rows.Next() {
		var (
			id          string
			runID       string
			model       string
			scenario    string
			score       sql.NullFloat64
			cost        float64
			durationS   float64
			tokens      int
			errorKind   sql.NullString
			errMsg      sql.NullString
			detailsJSON []byte
			createdAtMS int64
		)
		if err := rows.Scan(
			&id,
			&runID,
			&model,
			&scenario,
			&score,
			&cost,
			&durationS,
			&tokens,
			&errorKind,
			&errMsg,
			&detailsJSON,
			&createdAtMS,
		); err != nil {
			return nil, fmt.Errorf("store: scan result: %w", err)
		}

		details, err := decodeDetails(detailsJSON)
		if err != nil {
			return nil, fmt.Errorf("store: decode details: %w", err)
		}

		rec := &ResultRecord{
			ID:        id,
			RunID:     runID,
			Model:     model,
			Scenario:  scenario,
			Cost:      cost,
			DurationS: durationS,
			Tokens:    tokens,
			ErrorKind: errorKind.String,
			Error:     errMsg.String,
			Details:   details,
			CreatedAt: time.UnixMilli(createdAtMS).UTC(),
		}
		if score.Valid {
			v := score.Float64
			rec.Score = &v
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: scan result rows: %w", err)
	}
	return out, nil
}

func decodeConfig(cfgJSON sql.NullString) (map[string]any, error) {
	if !cfgJSON.Valid {
		return nil, nil
	}
	raw := strings.TrimSpace(cfgJSON.String)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var cfg map[string]any
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeDetails(detailsJSON []byte) (map[string]any, error) {
	if len(detailsJSON) == 0 {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal(detailsJSON, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func compareCellScores(res1, res2 []*ResultRecord) ([]string, []string) {
	cells1 := make(map[string]*float64)
	for _, r := range res1 {
		cells1[r.Model+"/"+r.Scenario] = r.Score
	}
	cells2 := make(map[string]*float64)
	for _, r := range res2 {
		cells2[r.Model+"/"+r.Scenario] = r.Score
	}

	var regressions []string
	var improvements []string
	for cell, s1 := range cells1 {
		s2, ok := cells2[cell]
		if !ok {
			continue
		}
		switch {
		case s1 != nil && s2 == nil:
			regressions = append(regressions, cell)
		case s1 == nil && s2 != nil:
			improvements = append(improvements, cell)
		case s1 != nil && s2 != nil && *s2 < *s1:
			regressions = append(regressions, cell)
		case s1 != nil && s2 != nil && *s2 > *s1:
			improvements = append(improvements, cell)
		}
	}

	sort.Strings(regressions)
	sort.Strings(improvements)
	return regressions, improvements
}
