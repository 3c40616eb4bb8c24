package llm

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestRepairJSON_ValidJSON(t *testing.T) {
	valid := `{"dependencies": [{"type": "added", "dependency": "billing-api"}]}`

	repaired, stats, err := RepairJSON(valid)

	if err != nil {
		t.Errorf("Expected no error for valid JSON, got: %v", err)
	}
	if stats.WasRepaired {
		t.Error("Expected WasRepaired to be false for valid JSON")
	}
	if repaired != valid {
		t.Error("Expected valid JSON to be returned unchanged")
	}
	if stats.OriginalBytes != len(valid) || stats.RepairedBytes != len(valid) {
		t.Error("Expected byte counts to match original")
	}
}

func TestRepairJSON_Strategies(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		strategy string
	}{
		{
			name:     "trailing commas",
			input:    `{"dependencies": [{"type": "added", "file": "a.go",}]}`,
			expected: `{"dependencies": [{"type": "added", "file": "a.go"}]}`,
			strategy: "trailing_commas",
		},
		{
			name:     "unescaped quotes in description",
			input:    `{"description": "calls the "billing" service", "severity": "low"}`,
			expected: `{"description": "calls the \"billing\" service", "severity": "low"}`,
			strategy: "unescaped_quotes",
		},
		{
			name:     "incomplete object",
			input:    `{"violations": [{"severity": "high"}`,
			expected: `{"violations": [{"severity": "high"}]}`,
			strategy: "completion",
		},
		{
			name:     "truncated string",
			input:    `{"summary": "cut off`,
			expected: `{"summary": "cut off"}`,
			strategy: "completion",
		},
		{
			name:     "unquoted keys",
			input:    `{severity: "high", description: "x"}`,
			expected: `{"severity": "high", "description": "x"}`,
			strategy: "key_quotes",
		},
		{
			name:     "single quotes",
			input:    `{'summary': 'ok'}`,
			expected: `{"summary": "ok"}`,
			strategy: "single_quotes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repaired, stats, err := RepairJSON(tt.input)
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if repaired != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, repaired)
			}
			if !stats.WasRepaired {
				t.Error("Expected WasRepaired to be true")
			}
			if len(stats.Strategies) != 1 || stats.Strategies[0] != tt.strategy {
				t.Errorf("Expected strategies [%s], got %v", tt.strategy, stats.Strategies)
			}
			if stats.ErrorsFixed != 1 {
				t.Errorf("Expected 1 error fixed, got %d", stats.ErrorsFixed)
			}
		})
	}
}

func TestRepairJSON_Comments(t *testing.T) {
	input := "{\n  // extracted dependencies\n  \"summary\": \"see https://example.com/x\",\n  \"dependencies\": [] /* none */\n}\n"

	repaired, stats, err := RepairJSON(input)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	var out struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(repaired), &out); err != nil {
		t.Fatalf("Repaired JSON should be valid: %v", err)
	}
	if out.Summary != "see https://example.com/x" {
		t.Errorf("URL inside a string must survive comment removal, got %q", out.Summary)
	}
	if stats.CommentsLost != 2 {
		t.Errorf("Expected 2 comments lost, got %d", stats.CommentsLost)
	}
}

func TestRepairJSON_LibraryFallback(t *testing.T) {
	repaired, stats, err := RepairJSON(`{"a": 1 "b": 2}`)
	if err != nil {
		t.Fatalf("Expected library repair to succeed, got: %v", err)
	}

	found := false
	for _, s := range stats.Strategies {
		if s == "jsonrepair_library" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected jsonrepair_library strategy, got %v", stats.Strategies)
	}

	var out map[string]int
	if err := json.Unmarshal([]byte(repaired), &out); err != nil {
		t.Fatalf("Repaired JSON should be valid: %v", err)
	}
	if out["b"] != 2 {
		t.Errorf("Expected b=2, got %v", out)
	}
}

func TestDecodeResponse(t *testing.T) {
	type extraction struct {
		Summary      string   `json:"summary"`
		Dependencies []string `json:"dependencies"`
	}

	tests := []struct {
		name    string
		raw     string
		summary string
	}{
		{"plain", `{"summary": "ok", "dependencies": ["a"]}`, "ok"},
		{"fenced", "Here you go:\n```json\n{\"summary\": \"fenced\", \"dependencies\": []}\n```\nThanks", "fenced"},
		{"prose around braces", `The result is {"summary": "a {b} c", "dependencies": []} done`, "a {b} c"},
		{"repaired", "```\n{\"summary\": \"late\", \"dependencies\": [\"x\",]}\n```", "late"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out extraction
			if _, err := DecodeResponse(tt.raw, &out, nil); err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if out.Summary != tt.summary {
				t.Errorf("Expected summary %q, got %q", tt.summary, out.Summary)
			}
		})
	}
}

func TestDecodeResponse_NoJSON(t *testing.T) {
	var out map[string]interface{}
	_, err := DecodeResponse("I could not find any dependencies.", &out, nil)
	if err != ErrNoJSON {
		t.Errorf("Expected ErrNoJSON, got %v", err)
	}
}

func TestDecodeResponse_TypeMismatch(t *testing.T) {
	var out struct {
		Count int `json:"count"`
	}
	_, err := DecodeResponse(`{"count": "many"}`, &out, nil)
	if err == nil || !strings.Contains(err.Error(), "failed to decode response") {
		t.Errorf("Expected decode error, got %v", err)
	}
}

func TestStripCodeFences(t *testing.T) {
	if got := StripCodeFences("model {\n}"); got != "model {\n}" {
		t.Errorf("Expected unfenced text unchanged, got %q", got)
	}

	got := StripCodeFences("```likec4\nmodel {\n  a -> b\n}\n```\ntrailing")
	if got != "model {\n  a -> b\n}" {
		t.Errorf("Unexpected fence body %q", got)
	}
}
