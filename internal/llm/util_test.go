package llm

import "testing"

func TestParseJSON(t *testing.T) {
	t.Parallel()

	type payload struct {
		Score     float64 `json:"score"`
		Rationale string  `json:"rationale"`
	}

	{
		var p payload
		if err := ParseJSON(`{"score": 85, "rationale": "good"}`, &p); err != nil {
			t.Fatalf("plain object: %v", err)
		}
		if p.Score != 85 || p.Rationale != "good" {
			t.Fatalf("got %+v", p)
		}
	}

	{
		var p payload
		raw := "```json\n{\"score\": 70, \"rationale\": \"ok\"}\n```"
		if err := ParseJSON(raw, &p); err != nil {
			t.Fatalf("fenced object: %v", err)
		}
		if p.Score != 70 {
			t.Fatalf("got %+v", p)
		}
	}

	{
		var p payload
		raw := "Here is my assessment:\n{\"score\": 40, \"rationale\": \"weak\"}\nThanks."
		if err := ParseJSON(raw, &p); err != nil {
			t.Fatalf("prose-wrapped object: %v", err)
		}
		if p.Score != 40 {
			t.Fatalf("got %+v", p)
		}
	}

	{
		var p payload
		if err := ParseJSON("", &p); err == nil {
			t.Fatalf("empty input: expected error")
		}
		if err := ParseJSON("   \n  ", &p); err == nil {
			t.Fatalf("blank input: expected error")
		}
	}

	{
		var p payload
		if err := ParseJSON("the model did well, score 90", &p); err == nil {
			t.Fatalf("no object: expected error")
		}
	}

	{
		var p payload
		if err := ParseJSON(`{"score": `, &p); err == nil {
			t.Fatalf("truncated object: expected error")
		}
	}
}
