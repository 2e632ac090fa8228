package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alfredivory/modelbench/internal/config"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func testRun(id string, startedAt time.Time) *RunRecord {
	return &RunRecord{
		ID:          id,
		StartedAt:   startedAt,
		FinishedAt:  startedAt.Add(90 * time.Second),
		TotalPairs:  6,
		ScoredPairs: 5,
		FailedPairs: 1,
		ReportPath:  "results/bench_20260301_120000.json",
		Config:      map[string]any{"concurrency": float64(4)},
	}
}

func testResult(runID, model, scenarioID string, s *float64) *ResultRecord {
	return &ResultRecord{
		ID:        fmt.Sprintf("%s_%s_%s", runID, model, scenarioID),
		RunID:     runID,
		Model:     model,
		Scenario:  scenarioID,
		Score:     s,
		Cost:      0.0123,
		DurationS: 2.5,
		Tokens:    150,
		Details:   map[string]any{"passed": true},
	}
}

func scoreOf(v float64) *float64 { return &v }

func TestSaveAndGetRun(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	startedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := st.SaveRun(ctx, testRun("run_1", startedAt)); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := st.GetRun(ctx, "run_1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.ID != "run_1" || got.TotalPairs != 6 || got.ScoredPairs != 5 || got.FailedPairs != 1 {
		t.Fatalf("got %+v", got)
	}
	if !got.StartedAt.Equal(startedAt) {
		t.Fatalf("got started_at %v, want %v", got.StartedAt, startedAt)
	}
	if got.ReportPath != "results/bench_20260301_120000.json" {
		t.Fatalf("got report_path %q", got.ReportPath)
	}
	if got.Config["concurrency"] != float64(4) {
		t.Fatalf("got config %v", got.Config)
	}

	if _, err := st.GetRun(ctx, "missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("got %v, want sql.ErrNoRows", err)
	}
}

func TestSaveRunValidation(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.SaveRun(ctx, nil); err == nil {
		t.Fatalf("nil run: expected error")
	}
	if err := st.SaveRun(ctx, &RunRecord{StartedAt: time.Now(), FinishedAt: time.Now()}); err == nil {
		t.Fatalf("empty id: expected error")
	}
	if err := st.SaveRun(ctx, &RunRecord{ID: "r"}); err == nil {
		t.Fatalf("missing timestamps: expected error")
	}
}

func TestSaveAndGetResults(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.SaveRun(ctx, testRun("run_1", time.Now().UTC())); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	// Insert out of order; reads come back sorted by model, scenario.
	for _, rec := range []*ResultRecord{
		testResult("run_1", "model-b", "s1", scoreOf(70)),
		testResult("run_1", "model-a", "s2", nil),
		testResult("run_1", "model-a", "s1", scoreOf(92.5)),
	} {
		if err := st.SaveResult(ctx, rec); err != nil {
			t.Fatalf("SaveResult: %v", err)
		}
	}

	results, err := st.GetResults(ctx, "run_1")
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}

	want := []string{"model-a/s1", "model-a/s2", "model-b/s1"}
	for i, r := range results {
		if got := r.Model + "/" + r.Scenario; got != want[i] {
			t.Fatalf("order[%d]: got %s, want %s", i, got, want[i])
		}
	}

	if results[0].Score == nil || *results[0].Score != 92.5 {
		t.Fatalf("got score %v", results[0].Score)
	}
	if results[1].Score != nil {
		t.Fatalf("null score should survive the roundtrip, got %v", *results[1].Score)
	}
	if results[0].Details["passed"] != true {
		t.Fatalf("got details %v", results[0].Details)
	}
	if results[0].Tokens != 150 || results[0].Cost != 0.0123 {
		t.Fatalf("got %+v", results[0])
	}
}

func TestSaveResultValidation(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.SaveResult(ctx, nil); err == nil {
		t.Fatalf("nil result: expected error")
	}
	if err := st.SaveResult(ctx, &ResultRecord{RunID: "r", Model: "m", Scenario: "s"}); err == nil {
		t.Fatalf("empty id: expected error")
	}
	if err := st.SaveResult(ctx, &ResultRecord{ID: "x", RunID: "r", Model: "", Scenario: "s"}); err == nil {
		t.Fatalf("missing model: expected error")
	}
}

func TestListRuns(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("run_%d", i)
		if err := st.SaveRun(ctx, testRun(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}
	if err := st.SaveResult(ctx, testResult("run_0", "model-a", "s1", scoreOf(50))); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	if err := st.SaveResult(ctx, testResult("run_2", "model-b", "s2", scoreOf(60))); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	{
		// newest first
		runs, err := st.ListRuns(ctx, RunFilter{})
		if err != nil {
			t.Fatalf("ListRuns: %v", err)
		}
		if len(runs) != 3 || runs[0].ID != "run_2" || runs[2].ID != "run_0" {
			t.Fatalf("got %d runs, first=%s", len(runs), runs[0].ID)
		}
	}

	{
		runs, err := st.ListRuns(ctx, RunFilter{Limit: 2})
		if err != nil {
			t.Fatalf("ListRuns limit: %v", err)
		}
		if len(runs) != 2 {
			t.Fatalf("got %d runs", len(runs))
		}
	}

	{
		runs, err := st.ListRuns(ctx, RunFilter{Model: "model-a"})
		if err != nil {
			t.Fatalf("ListRuns by model: %v", err)
		}
		if len(runs) != 1 || runs[0].ID != "run_0" {
			t.Fatalf("got %+v", runs)
		}
	}

	{
		runs, err := st.ListRuns(ctx, RunFilter{Scenario: "s2"})
		if err != nil {
			t.Fatalf("ListRuns by scenario: %v", err)
		}
		if len(runs) != 1 || runs[0].ID != "run_2" {
			t.Fatalf("got %+v", runs)
		}
	}

	{
		runs, err := st.ListRuns(ctx, RunFilter{Since: base.Add(90 * time.Minute)})
		if err != nil {
			t.Fatalf("ListRuns since: %v", err)
		}
		if len(runs) != 1 || runs[0].ID != "run_2" {
			t.Fatalf("got %+v", runs)
		}
	}

	{
		runs, err := st.ListRuns(ctx, RunFilter{Until: base.Add(30 * time.Minute)})
		if err != nil {
			t.Fatalf("ListRuns until: %v", err)
		}
		if len(runs) != 1 || runs[0].ID != "run_0" {
			t.Fatalf("got %+v", runs)
		}
	}
}

func TestGetModelHistory(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.SaveRun(ctx, testRun("run_1", time.Now().UTC())); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		rec := testResult("run_1", "model-a", fmt.Sprintf("s%d", i), scoreOf(float64(50+i)))
		rec.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := st.SaveResult(ctx, rec); err != nil {
			t.Fatalf("SaveResult: %v", err)
		}
	}
	other := testResult("run_1", "model-b", "s0", scoreOf(10))
	if err := st.SaveResult(ctx, other); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	history, err := st.GetModelHistory(ctx, "model-a", 2)
	if err != nil {
		t.Fatalf("GetModelHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("got %d entries", len(history))
	}
	// newest first
	if history[0].Scenario != "s2" || history[1].Scenario != "s1" {
		t.Fatalf("got %s, %s", history[0].Scenario, history[1].Scenario)
	}

	if _, err := st.GetModelHistory(ctx, "", 5); err == nil {
		t.Fatalf("empty model: expected error")
	}
}

func TestGetRunComparison(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	if err := st.SaveRun(ctx, testRun("run_1", now)); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := st.SaveRun(ctx, testRun("run_2", now.Add(time.Hour))); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	seed := []struct {
		runID    string
		model    string
		scenario string
		score    *float64
	}{
		{"run_1", "model-a", "s1", scoreOf(80)},
		{"run_1", "model-a", "s2", scoreOf(60)},
		{"run_1", "model-a", "s3", nil},
		{"run_2", "model-a", "s1", scoreOf(70)},  // regression
		{"run_2", "model-a", "s2", scoreOf(90)},  // improvement
		{"run_2", "model-a", "s3", scoreOf(50)},  // null -> scored
	}
	for _, c := range seed {
		if err := st.SaveResult(ctx, testResult(c.runID, c.model, c.scenario, c.score)); err != nil {
			t.Fatalf("SaveResult: %v", err)
		}
	}

	cmp, err := st.GetRunComparison(ctx, "run_1", "run_2")
	if err != nil {
		t.Fatalf("GetRunComparison: %v", err)
	}
	if len(cmp.Run1Results) != 3 || len(cmp.Run2Results) != 3 {
		t.Fatalf("got %d/%d results", len(cmp.Run1Results), len(cmp.Run2Results))
	}
	if len(cmp.Regressions) != 1 || cmp.Regressions[0] != "model-a/s1" {
		t.Fatalf("got regressions %v", cmp.Regressions)
	}
	if len(cmp.Improvements) != 2 || cmp.Improvements[0] != "model-a/s2" || cmp.Improvements[1] != "model-a/s3" {
		t.Fatalf("got improvements %v", cmp.Improvements)
	}

	if _, err := st.GetRunComparison(ctx, "run_1", ""); err == nil {
		t.Fatalf("missing run id: expected error")
	}
}

func TestOpenFromConfig(t *testing.T) {
	t.Parallel()

	{
		cfg := &config.Config{}
		cfg.Storage.Type = "memory"
		st, err := Open(cfg)
		if err != nil {
			t.Fatalf("Open memory: %v", err)
		}
		_ = st.Close()
	}

	{
		cfg := &config.Config{}
		cfg.Storage.Type = "postgres"
		if _, err := Open(cfg); err == nil {
			t.Fatalf("unsupported type: expected error")
		}
	}

	{
		if _, err := Open(nil); err == nil {
			t.Fatalf("nil config: expected error")
		}
	}
}
