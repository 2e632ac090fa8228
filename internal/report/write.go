package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LatestName is the well-known filename of the most recent report.
const LatestName = "latest.json"

// Save writes the report to dir as a timestamped file and refreshes the
// latest.json copy. It returns the path of the timestamped file.
func Save(dir string, r *Report) (string, error) {
	if r == nil {
		return "", fmt.Errorf("report: nil report")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("report: create results dir: %w", err)
	}

	ts, err := time.Parse(time.RFC3339, r.Timestamp)
	if err != nil {
		ts = time.Now().UTC()
	}
	name := fmt.Sprintf("bench_%s.json", ts.UTC().Format("20060102_150405"))
	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("report: encode: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("report: write %s: %w", path, err)
	}
	if err := os.WriteFile(filepath.Join(dir, LatestName), data, 0o644); err != nil {
		return "", fmt.Errorf("report: write %s: %w", LatestName, err)
	}
	return path, nil
}

// Load reads a previously persisted report.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("report: read %s: %w", path, err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("report: parse %s: %w", path, err)
	}
	return &r, nil
}
