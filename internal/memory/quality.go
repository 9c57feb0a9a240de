// Echolog - Voice Recording Ingestion and Memory Pipeline
// Copyright 2026 Avery K. (averyk)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averyk/echolog

package memory

import (
	"strings"

	"github.com/averyk/echolog/internal/config"
	"github.com/averyk/echolog/internal/models"
)

// QualityFilter decides whether an extraction is worth materializing and
// trims it down to its most valuable parts. All heuristics live in
// configurable rule tables so behavior is tunable without code changes.
type QualityFilter struct {
	titleDenylist   []string
	factBoilerplate []string
	maxFacts        int
	maxPeople       int
}

// NewQualityFilter builds a filter from the configured rule tables.
func NewQualityFilter(cfg *config.QualityConfig) *QualityFilter {
	denylist := make([]string, len(cfg.TitleDenylist))
	for i, t := range cfg.TitleDenylist {
		denylist[i] = strings.ToLower(strings.TrimSpace(t))
	}
	boilerplate := make([]string, len(cfg.FactBoilerplate))
	for i, b := range cfg.FactBoilerplate {
		boilerplate[i] = strings.ToLower(strings.TrimSpace(b))
	}
	return &QualityFilter{
		titleDenylist:   denylist,
		factBoilerplate: boilerplate,
		maxFacts:        cfg.MaxFacts,
		maxPeople:       cfg.MaxPeople,
	}
}

// SkipReason explains why a recording was not materialized.
type SkipReason string

const (
	SkipNone         SkipReason = ""
	SkipEmpty        SkipReason = "nothing worth keeping"
	SkipGenericTitle SkipReason = "generic low-information title"
)

// ShouldSkip reports whether the recording should not be materialized at
// all: nothing extractable, or a title matching the generic denylist.
func (q *QualityFilter) ShouldSkip(title, transcript string, extraction *models.ExtractionResult) SkipReason {
	if strings.TrimSpace(transcript) == "" &&
		len(extraction.Facts) == 0 &&
		len(extraction.People) == 0 &&
		len(extraction.Tasks) == 0 {
		return SkipEmpty
	}

	lowered := strings.ToLower(strings.TrimSpace(title))
	for _, denied := range q.titleDenylist {
		if denied != "" && strings.Contains(lowered, denied) {
			return SkipGenericTitle
		}
	}
	return SkipNone
}

// TopFacts filters out boilerplate facts and caps the survivors. Order is
// preserved: the first facts the extraction produced are assumed most
// salient.
func (q *QualityFilter) TopFacts(facts []string) []string {
	kept := make([]string, 0, q.maxFacts)
	for _, fact := range facts {
		trimmed := strings.TrimSpace(fact)
		if trimmed == "" || q.isBoilerplate(trimmed) {
			continue
		}
		kept = append(kept, trimmed)
		if len(kept) == q.maxFacts {
			break
		}
	}
	return kept
}

// isBoilerplate reports whether a fact is generic filler.
func (q *QualityFilter) isBoilerplate(fact string) bool {
	lowered := strings.ToLower(fact)
	for _, phrase := range q.factBoilerplate {
		if phrase != "" && strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}

// TopPeople keeps the most meaningful people: named entries with
// substantive context. Bare synthesized labels ("Speaker N") and the owner
// ("You") only survive when they carry context beyond the defaults the
// resolver attaches.
func (q *QualityFilter) TopPeople(people []models.Person) []models.Person {
	kept := make([]models.Person, 0, q.maxPeople)
	for _, p := range people {
		if !meaningfulPerson(p) {
			continue
		}
		kept = append(kept, p)
		if len(kept) == q.maxPeople {
			break
		}
	}
	return kept
}

// meaningfulPerson reports whether a person entry carries real information.
func meaningfulPerson(p models.Person) bool {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return false
	}
	if isSyntheticLabel(name) {
		// A placeholder identity is only worth keeping when something
		// substantive was learned about them.
		return !genericContext(strings.TrimSpace(p.Context))
	}
	return true
}

// isSyntheticLabel matches resolver-assigned placeholder identities.
func isSyntheticLabel(name string) bool {
	if name == "You" {
		return true
	}
	if !strings.HasPrefix(name, "Speaker ") {
		return false
	}
	rest := name[len("Speaker "):]
	if rest == "" {
		return false
	}
	for i := 0; i < len(rest); i++ {
		if rest[i] < '0' || rest[i] > '9' {
			return false
		}
	}
	return true
}

// genericContext matches the boilerplate contexts the resolver attaches
// to speakers it could not say anything about.
func genericContext(context string) bool {
	switch strings.ToLower(context) {
	case "", "identified speaker in recording", "account owner", "speaker", "person in conversation":
		return true
	}
	return false
}

// InferType classifies consolidated memory content by keyword rule table.
func InferType(content string) string {
	lowered := strings.ToLower(content)
	switch {
	case containsAny(lowered, "task", "todo", "to-do", "remind", "deadline", "follow up", "follow-up"):
		return models.MemoryTypeNote
	case containsAny(lowered, "birthday", "anniversary", "appointment", "scheduled for"):
		return models.MemoryTypeImportantDate
	case containsAny(lowered, "met with", "talked to", "spoke with", "friend", "colleague", "family", "relationship"):
		return models.MemoryTypeRelationship
	case containsAny(lowered, "prefers", "likes", "dislikes", "favorite", "allergic", "hates"):
		return models.MemoryTypePreference
	default:
		return models.MemoryTypeFact
	}
}

// containsAny reports whether s contains any of the substrings.
func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
