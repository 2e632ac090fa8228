package evaluator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/alfredivory/modelbench/internal/scenario"
)

// CheckResult holds the outcome of one automated scoring criterion.
type CheckResult struct {
	Type   string
	Score  float64 // 0-100
	Weight float64
	Detail map[string]any
}

const defaultSemanticThreshold = 60.0

// runCheck scores a response against one automated criterion. A response
// that fails the criterion scores low; it is never an error, since the
// model's own failure is the signal being measured. The only error path
// is a malformed check definition.
func runCheck(c *scenario.Check, response string) (CheckResult, error) {
	out := CheckResult{
		Type:   strings.TrimSpace(c.Type),
		Weight: c.Weight,
	}
	if out.Weight <= 0 {
		out.Weight = 1
	}

	switch out.Type {
	case "json_valid":
		_, ok := extractJSON(response)
		if ok {
			out.Score = 100
		}
		out.Detail = map[string]any{"valid": ok}

	case "json_schema":
		value, ok := extractJSON(response)
		if !ok {
			out.Detail = map[string]any{"valid": false, "present": 0, "total": len(c.Required)}
			return out, nil
		}
		obj, ok := value.(map[string]any)
		if !ok {
			out.Detail = map[string]any{"valid": false, "present": 0, "total": len(c.Required)}
			return out, nil
		}
		present := 0
		var missing []string
		for _, field := range c.Required {
			if _, ok := obj[field]; ok {
				present++
			} else {
				missing = append(missing, field)
			}
		}
		out.Score = 100 * float64(present) / float64(len(c.Required))
		out.Detail = map[string]any{"present": present, "total": len(c.Required)}
		if len(missing) > 0 {
			out.Detail["missing"] = missing
		}

	case "exact_match":
		matched := normalize(response) == normalize(c.Target)
		if matched {
			out.Score = 100
		}
		out.Detail = map[string]any{"matched": matched}

	case "semantic_match":
		threshold := c.Threshold
		if threshold <= 0 {
			threshold = defaultSemanticThreshold
		}
		score := semanticScore(response, c.Target)
		out.Score = score
		out.Detail = map[string]any{
			"similarity": score,
			"threshold":  threshold,
			"passed":     score >= threshold,
		}

	case "contains_all":
		found := 0
		var missing []string
		lower := strings.ToLower(response)
		for _, kw := range c.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				found++
			} else {
				missing = append(missing, kw)
			}
		}
		out.Score = 100 * float64(found) / float64(len(c.Keywords))
		out.Detail = map[string]any{"found": found, "total": len(c.Keywords)}
		if len(missing) > 0 {
			out.Detail["missing"] = missing
		}

	case "regex_all":
		matched := 0
		var missing []string
		for _, pattern := range c.Patterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return out, fmt.Errorf("evaluator: regex_all: compile %q: %w", pattern, err)
			}
			if re.MatchString(response) {
				matched++
			} else {
				missing = append(missing, pattern)
			}
		}
		out.Score = 100 * float64(matched) / float64(len(c.Patterns))
		out.Detail = map[string]any{"matched": matched, "total": len(c.Patterns)}
		if len(missing) > 0 {
			out.Detail["missing"] = missing
		}

	case "classification_accuracy", "binary_decision":
		correct := 0
		lower := strings.ToLower(response)
		for _, expected := range c.GroundTruth {
			if strings.Contains(lower, strings.ToLower(expected)) {
				correct++
			}
		}
		out.Score = 100 * float64(correct) / float64(len(c.GroundTruth))
		out.Detail = map[string]any{"correct": correct, "total": len(c.GroundTruth)}

	default:
		return out, fmt.Errorf("evaluator: unknown check type %q", c.Type)
	}

	return out, nil
}

// extractJSON pulls a JSON value out of model output, tolerating
// markdown code fences around it.
func extractJSON(text string) (any, bool) {
	s := strings.TrimSpace(text)
	if m := fencedBlockRe.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}

	var value any
	if err := json.Unmarshal([]byte(s), &value); err != nil {
		return nil, false
	}
	return value, true
}

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// semanticScore returns 100 when the normalized target appears verbatim
// in the response, otherwise the token-overlap ratio of target tokens
// found in the response, scaled to 0-100.
func semanticScore(response, target string) float64 {
	resp := normalize(response)
	tgt := normalize(target)
	if tgt == "" {
		return 0
	}
	if strings.Contains(resp, tgt) {
		return 100
	}

	targetTokens := tokenize(tgt)
	if len(targetTokens) == 0 {
		return 0
	}
	respTokens := make(map[string]bool)
	for _, tok := range tokenize(resp) {
		respTokens[tok] = true
	}

	found := 0
	for _, tok := range targetTokens {
		if respTokens[tok] {
			found++
		}
	}
	return 100 * float64(found) / float64(len(targetTokens))
}

var tokenRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

func tokenize(s string) []string {
	return tokenRe.FindAllString(s, -1)
}
