package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alfredivory/modelbench/internal/llm"
	"github.com/alfredivory/modelbench/internal/scenario"
)

func TestCheckpointRoundtrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "progress.jsonl")

	cp, err := openCheckpoint(path)
	if err != nil {
		t.Fatalf("openCheckpoint: %v", err)
	}
	score := 87.5
	cp.record(&Result{Model: "model-a", Scenario: "s1", Score: &score, Cost: 0.003})
	cp.record(&Result{Model: "model-a", Scenario: "s2", ErrorKind: ErrorKindProvider, Error: "boom"})
	cp.close()

	cp2, err := openCheckpoint(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer cp2.close()

	res, ok := cp2.lookup("model-a", "s1")
	if !ok {
		t.Fatalf("expected s1 in checkpoint")
	}
	if res.Score == nil || *res.Score != 87.5 {
		t.Fatalf("got score=%v", res.Score)
	}
	if res.Cost != 0.003 {
		t.Fatalf("got cost=%v", res.Cost)
	}

	res, ok = cp2.lookup("model-a", "s2")
	if !ok {
		t.Fatalf("expected s2 in checkpoint")
	}
	if res.Score != nil || res.ErrorKind != ErrorKindProvider {
		t.Fatalf("got %+v", res)
	}

	if _, ok := cp2.lookup("model-b", "s1"); ok {
		t.Fatalf("unexpected entry for model-b")
	}
}

func TestCheckpointToleratesTornLine(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "progress.jsonl")
	content := `{"model":"model-a","scenario":"s1","score":100,"details":null,"usage":{},"cost":0,"duration_s":1.2}
{"model":"model-a","scenario":"s2","sco`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cp, err := openCheckpoint(path)
	if err != nil {
		t.Fatalf("openCheckpoint: %v", err)
	}
	defer cp.close()

	if _, ok := cp.lookup("model-a", "s1"); !ok {
		t.Fatalf("intact line should load")
	}
	if _, ok := cp.lookup("model-a", "s2"); ok {
		t.Fatalf("torn line should be dropped")
	}
}

func TestCheckpointRemove(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "progress.jsonl")
	cp, err := openCheckpoint(path)
	if err != nil {
		t.Fatalf("openCheckpoint: %v", err)
	}
	score := 50.0
	cp.record(&Result{Model: "m", Scenario: "s", Score: &score})
	cp.remove()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("checkpoint should be deleted, stat err=%v", err)
	}
}

func TestCheckpointEmptyPathIsNoop(t *testing.T) {
	t.Parallel()

	cp, err := openCheckpoint("")
	if err != nil {
		t.Fatalf("openCheckpoint: %v", err)
	}
	score := 10.0
	cp.record(&Result{Model: "m", Scenario: "s", Score: &score})
	if _, ok := cp.lookup("m", "s"); ok {
		t.Fatalf("disabled checkpoint should not retain entries")
	}
	cp.remove()
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "progress.jsonl")

	// Pre-complete one pair on disk.
	cp, err := openCheckpoint(path)
	if err != nil {
		t.Fatalf("openCheckpoint: %v", err)
	}
	score := 42.0
	cp.record(&Result{Model: "model-a", Scenario: "s1", Score: &score})
	cp.close()

	provider := &fakeProvider{
		name: "openrouter",
		kind: llm.KindCloud,
		respond: func(_ int, req *llm.Request) (*llm.Response, error) {
			if req.Prompt == "say one" {
				t.Errorf("completed pair was re-run")
			}
			return &llm.Response{Text: "one two"}, nil
		},
	}

	r := newTestRunner(provider, Config{Concurrency: 1, ProgressPath: path})
	results, err := r.Run(context.Background(),
		[]*scenario.Model{cloudModel("model-a")},
		[]*scenario.Scenario{autoScenario("s1", "one"), autoScenario("s2", "two")},
		Filter{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Score == nil || *results[0].Score != 42 {
		t.Fatalf("resumed pair: got score=%v", results[0].Score)
	}
	if provider.callCount() != 1 {
		t.Fatalf("got %d provider calls, want 1", provider.callCount())
	}

	// A fully completed run clears the checkpoint.
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("checkpoint should be removed after complete run, stat err=%v", err)
	}
}
