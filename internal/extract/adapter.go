// Echolog - Voice Recording Ingestion and Memory Pipeline
// Copyright 2026 Avery K. (averyk)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averyk/echolog

package extract

import (
	"context"
	"strings"

	"github.com/averyk/echolog/internal/logging"
	"github.com/averyk/echolog/internal/metrics"
	"github.com/averyk/echolog/internal/models"
	"github.com/averyk/echolog/internal/speaker"
)

// Outcome tags how an extraction concluded. There is no error outcome:
// every failure mode degrades to OutcomeFallback with speaker-only data.
type Outcome int

const (
	// OutcomeParsed means the AI response parsed into the full schema.
	OutcomeParsed Outcome = iota

	// OutcomeFallback means the result carries only speaker-derived
	// people; facts, tasks, and events are empty.
	OutcomeFallback
)

// Result is the tagged outcome of one extraction.
type Result struct {
	Extraction     models.ExtractionResult
	Outcome        Outcome
	FallbackReason string
}

// Adapter drives the AI extraction call for one recording.
type Adapter struct {
	completer Completer
	resolver  *speaker.Resolver
}

// NewAdapter builds an extraction adapter.
func NewAdapter(completer Completer, resolver *speaker.Resolver) *Adapter {
	return &Adapter{completer: completer, resolver: resolver}
}

// BuildTranscript renders the attributed transcript: one "{label}: {text}"
// line per non-empty segment, using canonical labels.
func (a *Adapter) BuildTranscript(rec *models.Recording, res *speaker.Resolution) string {
	var sb strings.Builder
	for i := range rec.Segments {
		seg := &rec.Segments[i]
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		sb.WriteString(res.Label(a.resolver, seg))
		sb.WriteString(": ")
		sb.WriteString(text)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Extract sends the attributed transcript to the extraction service and
// returns a tagged result. Never returns an error: API failures and
// unparseable responses degrade to a speaker-only fallback so the
// pipeline keeps moving.
func (a *Adapter) Extract(ctx context.Context, rec *models.Recording, res *speaker.Resolution) *Result {
	transcript := a.BuildTranscript(rec, res)
	prompt := buildPrompt(rec.Title, rec.Summary, transcript, res.MultiSpeaker())

	metrics.ExtractionCalls.Inc()

	raw, err := a.completer.Complete(ctx, prompt)
	if err != nil {
		logging.Warn().Err(err).Str("recording", rec.ID).Msg("Extraction call failed, using speaker-only fallback")
		metrics.ExtractionFallbacks.WithLabelValues("api_error").Inc()
		return a.fallback(res, "api_error: "+err.Error())
	}

	parsed, err := parseExtraction(raw)
	if err != nil {
		reason := "parse_error"
		if err == errNoJSON {
			reason = "no_json"
		}
		logging.Warn().Err(err).Str("recording", rec.ID).Msg("Extraction response unparseable, using speaker-only fallback")
		metrics.ExtractionFallbacks.WithLabelValues(reason).Inc()
		return a.fallback(res, reason)
	}

	parsed.People = a.mergePeople(res, parsed.People)
	return &Result{Extraction: *parsed, Outcome: OutcomeParsed}
}

// fallback builds a speaker-only result.
func (a *Adapter) fallback(res *speaker.Resolution, reason string) *Result {
	return &Result{
		Extraction: models.ExtractionResult{
			People: res.People(),
		},
		Outcome:        OutcomeFallback,
		FallbackReason: reason,
	}
}

// mergePeople combines speaker-resolved people with AI-supplied ones.
// AI duplicates (by case-insensitive name) are skipped, and any AI-supplied
// banned label is rewritten to the next free "Speaker N" rather than
// silently dropped, preserving the label invariants after merging.
func (a *Adapter) mergePeople(res *speaker.Resolution, aiPeople []models.Person) []models.Person {
	merged := res.People()
	seen := make(map[string]bool, len(merged))
	for _, p := range merged {
		seen[strings.ToLower(p.Name)] = true
	}

	for _, p := range aiPeople {
		name := strings.TrimSpace(p.Name)
		if a.resolver.IsBanned(name) {
			p.Name = res.AllocLabel()
		} else {
			p.Name = name
		}
		key := strings.ToLower(p.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, p)
	}
	return merged
}
