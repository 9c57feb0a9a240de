// Echolog - Voice Recording Ingestion and Memory Pipeline
// Copyright 2026 Avery K. (averyk)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averyk/echolog

package extract

import (
	"errors"
	"testing"
)

func TestParseExtraction(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantErr   error
		wantFacts int
		wantTasks int
	}{
		{
			name:      "clean JSON",
			raw:       `{"facts": ["likes coffee"], "tasks": [], "events": [], "people": []}`,
			wantFacts: 1,
		},
		{
			name: "markdown fenced with language tag",
			raw: "```json\n" +
				`{"facts": ["a", "b"], "tasks": [{"description": "call mom"}]}` +
				"\n```",
			wantFacts: 2,
			wantTasks: 1,
		},
		{
			name: "fenced without language tag",
			raw: "```\n" +
				`{"facts": ["a"]}` +
				"\n```",
			wantFacts: 1,
		},
		{
			name:      "leading prose before JSON",
			raw:       `Here is the extraction you asked for: {"facts": ["x"]}`,
			wantFacts: 1,
		},
		{
			name:      "trailing commas repaired",
			raw:       `{"facts": ["a", "b",], "tasks": [],}`,
			wantFacts: 2,
		},
		{
			name:      "trailing comma with whitespace before closer",
			raw:       "{\"facts\": [\"a\",\n  ],\n}",
			wantFacts: 1,
		},
		{
			name:      "braces inside strings do not confuse the scanner",
			raw:       `{"facts": ["set {x} to }y{"], "tasks": []}`,
			wantFacts: 1,
		},
		{
			name:    "no JSON at all",
			raw:     "I could not extract anything from this conversation.",
			wantErr: errNoJSON,
		},
		{
			name:    "empty response",
			raw:     "",
			wantErr: errNoJSON,
		},
		{
			name:    "unbalanced JSON rejected",
			raw:     `{"facts": ["a"`,
			wantErr: errParseFailed,
		},
		{
			name:    "invalid JSON keys rejected",
			raw:     `Explanation text {facts: ["a",]}`,
			wantErr: errParseFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseExtraction(tt.raw)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("parseExtraction() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseExtraction() unexpected error: %v", err)
			}
			if len(result.Facts) != tt.wantFacts {
				t.Errorf("facts = %d, want %d", len(result.Facts), tt.wantFacts)
			}
			if len(result.Tasks) != tt.wantTasks {
				t.Errorf("tasks = %d, want %d", len(result.Tasks), tt.wantTasks)
			}
		})
	}
}

func TestFirstJSONObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"simple", `{"a": 1}`, `{"a": 1}`, true},
		{"nested", `x {"a": {"b": 2}} y`, `{"a": {"b": 2}}`, true},
		{"string braces", `{"a": "}"}`, `{"a": "}"}`, true},
		{"escaped quote", `{"a": "\"}"}`, `{"a": "\"}"}`, true},
		{"none", "no braces here", "", false},
		{"unbalanced tail", `{"a": 1`, `{"a": 1`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := firstJSONObject(tt.in)
			if ok != tt.ok || got != tt.want {
				t.Errorf("firstJSONObject(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestRemoveTrailingCommasPreservesStrings(t *testing.T) {
	in := `{"a": "keep ,] this", "b": [1, 2,]}`
	want := `{"a": "keep ,] this", "b": [1, 2]}`
	if got := removeTrailingCommas(in); got != want {
		t.Errorf("removeTrailingCommas() = %q, want %q", got, want)
	}
}
