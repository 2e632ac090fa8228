package runner

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// checkpoint persists one JSON line per finished pair so an interrupted
// run can resume without re-spending provider calls. A zero-path
// checkpoint is a no-op.
type checkpoint struct {
	path string
	file *os.File

	mu        sync.Mutex
	completed map[string]*Result
}

func openCheckpoint(path string) (*checkpoint, error) {
	cp := &checkpoint{
		path:      strings.TrimSpace(path),
		completed: make(map[string]*Result),
	}
	if cp.path == "" {
		return cp, nil
	}

	if dir := filepath.Dir(cp.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("runner: create checkpoint dir: %w", err)
		}
	}

	if b, err := os.ReadFile(cp.path); err == nil {
		scanner := bufio.NewScanner(strings.NewReader(string(b)))
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var res Result
			if err := json.Unmarshal([]byte(line), &res); err != nil {
				// A torn final line from an interrupted run; drop it.
				continue
			}
			cp.completed[pairKey(res.Model, res.Scenario)] = &res
		}
	}

	f, err := os.OpenFile(cp.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("runner: open checkpoint: %w", err)
	}
	cp.file = f
	return cp, nil
}

func (cp *checkpoint) lookup(model, scenarioID string) (*Result, bool) {
	if cp == nil {
		return nil, false
	}
	res, ok := cp.completed[pairKey(model, scenarioID)]
	return res, ok
}

func (cp *checkpoint) record(res *Result) {
	if cp == nil || cp.file == nil || res == nil {
		return
	}
	b, err := json.Marshal(res)
	if err != nil {
		return
	}

	cp.mu.Lock()
	defer cp.mu.Unlock()
	_, _ = cp.file.Write(append(b, '\n'))
}

func (cp *checkpoint) close() {
	if cp == nil || cp.file == nil {
		return
	}
	_ = cp.file.Close()
	cp.file = nil
}

// remove deletes the checkpoint after a fully completed run.
func (cp *checkpoint) remove() {
	if cp == nil || cp.path == "" {
		return
	}
	cp.close()
	_ = os.Remove(cp.path)
}

func pairKey(model, scenarioID string) string {
	return model + "\x00" + scenarioID
}
