package store

import (
	"context"
	"time"
)

// RunWriter defines persistence for run summaries and cell results.
type RunWriter interface {
	SaveRun(ctx context.Context, run *RunRecord) error
	SaveResult(ctx context.Context, result *ResultRecord) error
}

// RunReader defines read access to run and result data.
type RunReader interface {
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*RunRecord, error)
	GetResults(ctx context.Context, runID string) ([]*ResultRecord, error)
}

// Analytics defines query helpers for historical comparisons.
type Analytics interface {
	GetModelHistory(ctx context.Context, model string, limit int) ([]*ResultRecord, error)
	GetRunComparison(ctx context.Context, runID1, runID2 string) (*RunComparison, error)
}

// Store defines persistence for runs and results.
type Store interface {
	RunWriter
	RunReader
	Analytics
	Close() error
}

// RunRecord stores a single benchmark run summary.
type RunRecord struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time
	TotalPairs  int
	ScoredPairs int
	FailedPairs int
	ReportPath  string
	Config      map[string]any // Serialized config
}

// ResultRecord stores one model/scenario cell.
type ResultRecord struct {
	ID        string
	RunID     string
	Model     string
	Scenario  string
	Score     *float64 // nil when the cell never scored
	Cost      float64
	DurationS float64
	Tokens    int
	ErrorKind string
	Error     string
	Details   map[string]any // JSON serialized
	CreatedAt time.Time
}

// RunFilter filters run listings.
type RunFilter struct {
	Model    string
	Scenario string
	Since    time.Time
	Until    time.Time
	Limit    int
}

// RunComparison summarizes score movement between two runs.
type RunComparison struct {
	RunID1       string
	RunID2       string
	Run1Results  []*ResultRecord
	Run2Results  []*ResultRecord
	Regressions  []string // "model/scenario" cells that dropped
	Improvements []string // cells that rose
}
