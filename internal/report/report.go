package report

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/alfredivory/modelbench/internal/runner"
	"github.com/alfredivory/modelbench/internal/scenario"
)

// Version identifies the persisted report schema.
const Version = "1.0"

// Report is the persisted benchmark artifact. Field names and nesting
// are a stable contract consumed by the dashboard.
type Report struct {
	Timestamp string          `json:"timestamp"`
	Version   string          `json:"version"`
	Results   []runner.Result `json:"results"`
	Summary   Summary         `json:"summary"`
}

type Summary struct {
	Scenarios map[string]ScenarioSummary `json:"scenarios"`
	Models    map[string]ModelSummary    `json:"models"`
	Ranking   []RankEntry                `json:"ranking"`
}

// ModelSummary holds the per-model roll-up. Scores carries an entry for
// every scenario in the summary; a nil entry means the cell was never
// scored, which is distinct from a genuine 0.
type ModelSummary struct {
	Scores       map[string]*float64 `json:"scores"`
	AverageScore *float64            `json:"average_score"`
	TotalCost    float64             `json:"total_cost"`
	Unscored     int                 `json:"unscored,omitempty"`
}

type ScenarioSummary struct {
	Label        string   `json:"label"`
	AverageScore *float64 `json:"average_score"`
	BestModel    string   `json:"best_model,omitempty"`
	BestScore    *float64 `json:"best_score,omitempty"`
}

type RankEntry struct {
	Rank         int      `json:"rank"`
	Model        string   `json:"model"`
	AverageScore *float64 `json:"average_score"`
}

// Build folds a flat result collection into the summary structure. It
// is a pure function of its inputs: identical inputs yield identical
// reports, byte for byte.
func Build(timestamp time.Time, results []runner.Result, scenarios []*scenario.Scenario) *Report {
	labels := make(map[string]string, len(scenarios))
	weights := make(map[string]float64, len(scenarios))
	for _, sc := range scenarios {
		labels[sc.ID] = sc.Label()
		w := sc.Weight
		if w <= 0 {
			w = 1
		}
		weights[sc.ID] = w
	}

	// Group cell scores by (model, scenario); repeated trials of the
	// same pair are averaged over their non-null scores.
	type cell struct {
		sum   float64
		count int
	}
	cells := make(map[string]map[string]*cell)
	costs := make(map[string]float64)
	scenarioSeen := make(map[string]bool)
	for i := range results {
		r := &results[i]
		scenarioSeen[r.Scenario] = true
		if _, ok := labels[r.Scenario]; !ok {
			labels[r.Scenario] = r.Scenario
			weights[r.Scenario] = 1
		}

		byScenario, ok := cells[r.Model]
		if !ok {
			byScenario = make(map[string]*cell)
			cells[r.Model] = byScenario
		}
		c, ok := byScenario[r.Scenario]
		if !ok {
			c = &cell{}
			byScenario[r.Scenario] = c
		}
		if r.Score != nil {
			c.sum += *r.Score
			c.count++
		}

		// Cost was incurred whether or not the cell scored.
		costs[r.Model] += r.Cost
	}

	scenarioIDs := make([]string, 0, len(scenarioSeen))
	for id := range scenarioSeen {
		scenarioIDs = append(scenarioIDs, id)
	}
	sort.Strings(scenarioIDs)

	models := make(map[string]ModelSummary, len(cells))
	for model, byScenario := range cells {
		scores := make(map[string]*float64, len(scenarioIDs))
		var weightedSum, totalWeight float64
		unscored := 0
		for _, id := range scenarioIDs {
			c, attempted := byScenario[id]
			if !attempted || c.count == 0 {
				scores[id] = nil
				unscored++
				continue
			}
			avg := round1(c.sum / float64(c.count))
			scores[id] = &avg
			weightedSum += avg * weights[id]
			totalWeight += weights[id]
		}

		ms := ModelSummary{
			Scores:    scores,
			TotalCost: round6(costs[model]),
			Unscored:  unscored,
		}
		if totalWeight > 0 {
			avg := round1(weightedSum / totalWeight)
			ms.AverageScore = &avg
		}
		models[model] = ms
	}

	scenarioSummaries := buildScenarioSummaries(scenarioIDs, labels, models)
	ranking := buildRanking(models)

	return &Report{
		Timestamp: timestamp.UTC().Format(time.RFC3339),
		Version:   Version,
		Results:   results,
		Summary: Summary{
			Scenarios: scenarioSummaries,
			Models:    models,
			Ranking:   ranking,
		},
	}
}

func buildScenarioSummaries(scenarioIDs []string, labels map[string]string, models map[string]ModelSummary) map[string]ScenarioSummary {
	out := make(map[string]ScenarioSummary, len(scenarioIDs))

	modelIDs := make([]string, 0, len(models))
	for id := range models {
		modelIDs = append(modelIDs, id)
	}
	sort.Strings(modelIDs)

	for _, id := range scenarioIDs {
		ss := ScenarioSummary{Label: labels[id]}

		var sum float64
		count := 0
		for _, model := range modelIDs {
			score := models[model].Scores[id]
			if score == nil {
				continue
			}
			sum += *score
			count++
			if ss.BestScore == nil || *score > *ss.BestScore {
				v := *score
				ss.BestScore = &v
				ss.BestModel = model
			}
		}
		if count > 0 {
			avg := round1(sum / float64(count))
			ss.AverageScore = &avg
		}
		out[id] = ss
	}
	return out
}

// buildRanking orders models descending by average score with unscored
// models last, ties broken by ascending total cost, then by model id
// for determinism.
func buildRanking(models map[string]ModelSummary) []RankEntry {
	ids := make([]string, 0, len(models))
	for id := range models {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool {
		a, b := models[ids[i]], models[ids[j]]
		switch {
		case a.AverageScore == nil && b.AverageScore == nil:
			// fall through to cost
		case a.AverageScore == nil:
			return false
		case b.AverageScore == nil:
			return true
		case *a.AverageScore != *b.AverageScore:
			return *a.AverageScore > *b.AverageScore
		}
		if a.TotalCost != b.TotalCost {
			return a.TotalCost < b.TotalCost
		}
		return ids[i] < ids[j]
	})

	out := make([]RankEntry, 0, len(ids))
	for i, id := range ids {
		out = append(out, RankEntry{
			Rank:         i + 1,
			Model:        id,
			AverageScore: models[id].AverageScore,
		})
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// SortResults orders the flat result list by model then scenario so the
// persisted sequence is stable regardless of worker completion order.
func SortResults(results []runner.Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Model != results[j].Model {
			return strings.Compare(results[i].Model, results[j].Model) < 0
		}
		return strings.Compare(results[i].Scenario, results[j].Scenario) < 0
	})
}
