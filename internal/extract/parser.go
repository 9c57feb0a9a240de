// Echolog - Voice Recording Ingestion and Memory Pipeline
// Copyright 2026 Avery K. (averyk)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averyk/echolog

package extract

import (
	"errors"
	"strings"

	"github.com/goccy/go-json"

	"github.com/averyk/echolog/internal/models"
)

// Parse errors surfaced as fallback reasons, never as run failures.
var (
	errNoJSON      = errors.New("response contains no JSON object")
	errParseFailed = errors.New("response JSON did not parse")
)

// parseExtraction recovers an ExtractionResult from free-form model
// output. The model is asked for pure JSON but routinely wraps it in
// markdown fences or leading prose, and occasionally emits trailing
// commas; all three are repaired before parsing.
func parseExtraction(raw string) (*models.ExtractionResult, error) {
	text := stripCodeFences(raw)

	span, ok := firstJSONObject(text)
	if !ok {
		return nil, errNoJSON
	}

	span = removeTrailingCommas(span)

	var result models.ExtractionResult
	if err := json.Unmarshal([]byte(span), &result); err != nil {
		return nil, errParseFailed
	}
	return &result, nil
}

// stripCodeFences removes a markdown code fence wrapper if present,
// tolerating a language tag after the opening fence.
func stripCodeFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.Contains(trimmed, "```") {
		return trimmed
	}

	start := strings.Index(trimmed, "```")
	rest := trimmed[start+3:]
	// Drop the language tag line ("json", "JSON", ...).
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(rest[:nl])
		if len(firstLine) <= 10 && !strings.ContainsAny(firstLine, "{}") {
			rest = rest[nl+1:]
		}
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// firstJSONObject returns the first balanced {...} span in s, tracking
// string literals and escapes so braces inside strings do not count.
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}

	// Unbalanced: return the tail and let the JSON parser reject it.
	return s[start:], true
}

// removeTrailingCommas deletes commas that directly precede a closing
// bracket or brace, the most common malformation in model output.
func removeTrailingCommas(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]

		if escaped {
			sb.WriteByte(c)
			escaped = false
			continue
		}
		if inString {
			if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			sb.WriteByte(c)
			continue
		}

		switch c {
		case '"':
			inString = true
			sb.WriteByte(c)
		case ',':
			// Look ahead past whitespace for a closer.
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n' || s[j] == '\r') {
				j++
			}
			if j < len(s) && (s[j] == ']' || s[j] == '}') {
				continue // drop the comma
			}
			sb.WriteByte(c)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
