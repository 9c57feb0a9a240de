// Echolog - Voice Recording Ingestion and Memory Pipeline
// Copyright 2026 Avery K. (averyk)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averyk/echolog

// Package speaker resolves raw per-segment speaker identifiers into stable
// canonical labels: "You" for the account owner, a real name when the
// source supplied one, or "Speaker N" for everyone else.
//
// Within one recording, canonical labels are never a banned placeholder
// ("unknown", "unidentified", empty) and "Speaker N" numbers are unique
// and gap-free starting at 0.
package speaker

import (
	"sort"
	"strconv"
	"strings"

	"github.com/averyk/echolog/internal/config"
	"github.com/averyk/echolog/internal/models"
)

// PrimaryLabel is the canonical label for the account owner.
const PrimaryLabel = "You"

// Resolver maps raw speaker identifiers to canonical labels using
// configurable rule tables.
type Resolver struct {
	primaryID string
	banned    map[string]bool
}

// NewResolver builds a resolver from the configured rule tables.
func NewResolver(cfg *config.SpeakerConfig) *Resolver {
	banned := make(map[string]bool, len(cfg.BannedNames))
	for _, name := range cfg.BannedNames {
		banned[strings.ToLower(strings.TrimSpace(name))] = true
	}
	return &Resolver{
		primaryID: cfg.PrimaryID,
		banned:    banned,
	}
}

// IsBanned reports whether name is a placeholder the pipeline must never
// surface as a canonical label. The check is case-insensitive.
func (r *Resolver) IsBanned(name string) bool {
	return r.banned[strings.ToLower(strings.TrimSpace(name))]
}

// Resolution is the outcome of resolving one recording's speakers. The
// mapping is recording-scoped and never persisted beyond the recording's
// cached artifact.
type Resolution struct {
	// Speakers holds one entry per distinct resolved identity.
	Speakers []models.CanonicalSpeaker

	// Mapping is rawSpeakerID -> canonical label, used for transcript
	// reattribution.
	Mapping map[string]string

	// taken holds every canonical label assigned so far, including
	// source-supplied names that already look like "Speaker N".
	taken map[string]bool

	// nextN is the next candidate "Speaker N" number within this recording.
	nextN int
}

// AllocLabel returns the next unused "Speaker N" label for this recording,
// skipping numbers already claimed by source-supplied names. Used both
// during resolution and by the post-extraction validation pass when
// upstream AI output reintroduces a banned label.
func (res *Resolution) AllocLabel() string {
	for {
		label := "Speaker " + strconv.Itoa(res.nextN)
		res.nextN++
		if !res.taken[label] {
			res.markTaken(label)
			return label
		}
	}
}

// markTaken records a label as assigned within this recording.
func (res *Resolution) markTaken(label string) {
	if res.taken == nil {
		res.taken = make(map[string]bool)
	}
	res.taken[label] = true
}

// Resolve assigns canonical labels to every speaker in the recording.
//
// Raw identifiers are processed in sorted order and name ties break to the
// lexicographically smallest valid name, so resolution is deterministic
// for a given recording.
func (r *Resolver) Resolve(rec *models.Recording) *Resolution {
	res := &Resolution{
		Mapping: make(map[string]string),
	}

	// Group distinct names seen per raw identifier. Segments carrying no
	// identifier at all are tracked separately.
	namesByID := make(map[string]map[string]bool)
	unattributed := false
	for i := range rec.Segments {
		seg := &rec.Segments[i]
		if seg.SpeakerID == "" {
			unattributed = true
			continue
		}
		if namesByID[seg.SpeakerID] == nil {
			namesByID[seg.SpeakerID] = make(map[string]bool)
		}
		namesByID[seg.SpeakerID][seg.SpeakerName] = true
	}

	ids := make([]string, 0, len(namesByID))
	for id := range namesByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// Claim all source-supplied names up front so AllocLabel never
	// collides with one, regardless of identifier order.
	picked := make(map[string]string)
	for _, id := range ids {
		if id == r.primaryID {
			continue
		}
		if name, ok := r.pickValidName(namesByID[id]); ok {
			picked[id] = name
			res.markTaken(name)
		}
	}

	for _, id := range ids {
		if id == r.primaryID {
			res.add(models.CanonicalSpeaker{Label: PrimaryLabel, RawID: id, IsPrimary: true})
			continue
		}

		if name, ok := picked[id]; ok {
			res.add(models.CanonicalSpeaker{Label: name, RawID: id})
			continue
		}

		// Only banned or empty names for this identifier.
		res.add(models.CanonicalSpeaker{Label: res.AllocLabel(), RawID: id})
	}

	// Unattributed segments get one synthesized speaker, but only when
	// nobody else was resolved to claim them.
	if unattributed && len(res.Speakers) == 0 {
		res.add(models.CanonicalSpeaker{Label: res.AllocLabel()})
	}

	// Degenerate recording with no speakers at all: default to the owner.
	if len(res.Speakers) == 0 {
		res.add(models.CanonicalSpeaker{Label: PrimaryLabel, IsPrimary: true})
	}

	return res
}

// pickValidName returns the lexicographically smallest non-banned name
// from the set, if any.
func (r *Resolver) pickValidName(names map[string]bool) (string, bool) {
	best := ""
	found := false
	for name := range names {
		if r.IsBanned(name) {
			continue
		}
		if !found || name < best {
			best = name
			found = true
		}
	}
	return best, found
}

// add records a speaker and its mapping entry.
func (res *Resolution) add(s models.CanonicalSpeaker) {
	res.Speakers = append(res.Speakers, s)
	if s.RawID != "" {
		res.Mapping[s.RawID] = s.Label
	}
}

// Label returns the canonical label for a segment. A segment whose raw
// identifier never made it into the mapping falls back to its own name if
// valid, then to the first resolved speaker.
func (res *Resolution) Label(r *Resolver, seg *models.Segment) string {
	if label, ok := res.Mapping[seg.SpeakerID]; ok {
		return label
	}
	if seg.SpeakerName != "" && !r.IsBanned(seg.SpeakerName) {
		return seg.SpeakerName
	}
	if len(res.Speakers) > 0 {
		return res.Speakers[0].Label
	}
	return PrimaryLabel
}

// MultiSpeaker reports whether the resolution produced more than one
// distinct canonical label.
func (res *Resolution) MultiSpeaker() bool {
	seen := make(map[string]bool)
	for _, s := range res.Speakers {
		seen[s.Label] = true
	}
	return len(seen) > 1
}

// People converts resolved speakers into the extraction people list.
func (res *Resolution) People() []models.Person {
	people := make([]models.Person, 0, len(res.Speakers))
	for _, s := range res.Speakers {
		context := "identified speaker in recording"
		if s.IsPrimary {
			context = "account owner"
		}
		people = append(people, models.Person{
			Name:      s.Label,
			Context:   context,
			IsSpeaker: true,
		})
	}
	return people
}
