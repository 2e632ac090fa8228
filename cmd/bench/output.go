package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/alfredivory/modelbench/internal/report"
)

type outputFormat string

const (
	formatTable outputFormat = "table"
	formatJSON  outputFormat = "json"
)

const (
	colorReset = "\033[0m"
	colorGreen = "\033[32m"
)

func resolveOutputFormat(s string) (outputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "table":
		return formatTable, nil
	case "json":
		return formatJSON, nil
	default:
		return "", fmt.Errorf("invalid --output %q (expected table|json)", s)
	}
}

func printReportTable(w io.Writer, rep *report.Report) {
	if rep == nil {
		_, _ = fmt.Fprintln(w, "no report")
		return
	}

	_, _ = fmt.Fprintf(w, "Benchmark %s (%d results)\n\n", rep.Timestamp, len(rep.Results))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tMODEL\tAVG\tCOST\tUNSCORED")
	for _, entry := range rep.Summary.Ranking {
		ms := rep.Summary.Models[entry.Model]
		name := entry.Model
		if entry.Rank == 1 && entry.AverageScore != nil {
			name = colorGreen + name + colorReset
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t$%.4f\t%d\n",
			entry.Rank, name, scoreLabel(entry.AverageScore), ms.TotalCost, ms.Unscored)
	}
	_ = tw.Flush()

	if len(rep.Summary.Scenarios) == 0 {
		return
	}

	_, _ = fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENARIO\tAVG\tBEST MODEL\tBEST")
	for _, id := range sortedKeys(rep.Summary.Scenarios) {
		ss := rep.Summary.Scenarios[id]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			id, scoreLabel(ss.AverageScore), dash(ss.BestModel), scoreLabel(ss.BestScore))
	}
	_ = tw.Flush()
}

func printReportJSON(w io.Writer, rep *report.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("run: marshal json: %w", err)
	}
	return nil
}

func scoreLabel(score *float64) string {
	if score == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *score)
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
