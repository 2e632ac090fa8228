package leaderboard

import (
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func avg(v float64) *float64 { return &v }

func entry(runID, model string, score *float64, cost float64, evalDate time.Time) *Entry {
	return &Entry{
		RunID:        runID,
		Model:        model,
		Provider:     "openrouter",
		AverageScore: score,
		TotalCost:    cost,
		Scenarios:    6,
		EvalDate:     evalDate,
	}
}

func TestSave(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	e := entry("run_1", "model-a", avg(88.5), 0.04, time.Time{})
	if err := st.Save(ctx, e); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if e.ID == 0 {
		t.Fatalf("expected assigned id")
	}
	if e.EvalDate.IsZero() {
		t.Fatalf("expected defaulted eval date")
	}

	if err := st.Save(ctx, &Entry{RunID: "r", Model: "m"}); err == nil {
		t.Fatalf("missing provider: expected error")
	}
	if err := st.Save(ctx, nil); err == nil {
		t.Fatalf("nil entry: expected error")
	}
}

func TestStandings(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	day1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	seed := []*Entry{
		// model-a improved on day 2; only the latest entry counts.
		entry("run_1", "model-a", avg(60), 0.02, day1),
		entry("run_2", "model-a", avg(90), 0.03, day2),
		// model-b and model-c tie on score; cheaper ranks higher.
		entry("run_2", "model-b", avg(75), 0.05, day2),
		entry("run_2", "model-c", avg(75), 0.01, day2),
		// model-d never scored; it ranks last.
		entry("run_2", "model-d", nil, 0.08, day2),
	}
	for _, e := range seed {
		if err := st.Save(ctx, e); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	standings, err := st.Standings(ctx, 0)
	if err != nil {
		t.Fatalf("Standings: %v", err)
	}
	if len(standings) != 4 {
		t.Fatalf("got %d entries, want 4", len(standings))
	}

	wantOrder := []string{"model-a", "model-c", "model-b", "model-d"}
	for i, e := range standings {
		if e.Model != wantOrder[i] {
			t.Fatalf("order[%d]: got %s, want %s", i, e.Model, wantOrder[i])
		}
	}
	if standings[0].AverageScore == nil || *standings[0].AverageScore != 90 {
		t.Fatalf("model-a should use its latest entry, got %v", standings[0].AverageScore)
	}
	if standings[0].RunID != "run_2" {
		t.Fatalf("got run %q", standings[0].RunID)
	}
	if standings[3].AverageScore != nil {
		t.Fatalf("unscored model should carry nil average")
	}

	limited, err := st.Standings(ctx, 2)
	if err != nil {
		t.Fatalf("Standings limit: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("got %d entries", len(limited))
	}
}

func TestModelTrend(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	day1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		e := entry("run", "model-a", avg(float64(50+10*i)), 0.01, day1.Add(time.Duration(i)*time.Hour))
		e.RunID = e.RunID + "_" + string(rune('a'+i))
		if err := st.Save(ctx, e); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	if err := st.Save(ctx, entry("run_x", "model-b", avg(99), 0.01, day1)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	trend, err := st.ModelTrend(ctx, "model-a", 0)
	if err != nil {
		t.Fatalf("ModelTrend: %v", err)
	}
	if len(trend) != 3 {
		t.Fatalf("got %d entries", len(trend))
	}
	// newest first
	if *trend[0].AverageScore != 70 || *trend[2].AverageScore != 50 {
		t.Fatalf("got %v, %v", *trend[0].AverageScore, *trend[2].AverageScore)
	}

	if _, err := st.ModelTrend(ctx, "  ", 0); err == nil {
		t.Fatalf("empty model: expected error")
	}
}
