// Echolog - Voice Recording Ingestion and Memory Pipeline
// Copyright 2026 Avery K. (averyk)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averyk/echolog

package speaker

import (
	"strings"
	"testing"

	"github.com/averyk/echolog/internal/config"
	"github.com/averyk/echolog/internal/models"
)

func newTestResolver() *Resolver {
	return NewResolver(&config.SpeakerConfig{
		PrimaryID:   "user",
		BannedNames: []string{"", "unknown", "unknown speaker", "unidentified", "unidentified speaker"},
	})
}

func seg(id, name string) models.Segment {
	return models.Segment{SpeakerID: id, SpeakerName: name, Text: "hello"}
}

func TestIsBanned(t *testing.T) {
	r := newTestResolver()

	tests := []struct {
		name   string
		banned bool
	}{
		{"", true},
		{"unknown", true},
		{"Unknown", true},
		{"UNKNOWN SPEAKER", true},
		{"  unidentified  ", true},
		{"Unidentified Speaker", true},
		{"Maria", false},
		{"unknownish", false},
	}

	for _, tt := range tests {
		if got := r.IsBanned(tt.name); got != tt.banned {
			t.Errorf("IsBanned(%q) = %v, want %v", tt.name, got, tt.banned)
		}
	}
}

func TestResolvePrimaryUser(t *testing.T) {
	r := newTestResolver()

	rec := &models.Recording{
		ID: "rec1",
		Segments: []models.Segment{
			seg("user", "Avery"),
			seg("spk_2", "Maria"),
		},
	}

	res := r.Resolve(rec)

	if len(res.Speakers) != 2 {
		t.Fatalf("expected 2 speakers, got %d", len(res.Speakers))
	}
	if res.Mapping["user"] != PrimaryLabel {
		t.Errorf("primary speaker label = %q, want %q", res.Mapping["user"], PrimaryLabel)
	}
	if res.Mapping["spk_2"] != "Maria" {
		t.Errorf("named speaker label = %q, want Maria", res.Mapping["spk_2"])
	}

	var primary *models.CanonicalSpeaker
	for i := range res.Speakers {
		if res.Speakers[i].IsPrimary {
			primary = &res.Speakers[i]
		}
	}
	if primary == nil {
		t.Fatal("no speaker marked primary")
	}
	if primary.Label != PrimaryLabel {
		t.Errorf("primary label = %q, want %q", primary.Label, PrimaryLabel)
	}
}

func TestResolveNeverProducesBannedLabels(t *testing.T) {
	r := newTestResolver()

	rec := &models.Recording{
		ID: "rec1",
		Segments: []models.Segment{
			seg("spk_1", "unknown"),
			seg("spk_2", ""),
			seg("spk_3", "Unidentified Speaker"),
			seg("spk_4", "Dana"),
		},
	}

	res := r.Resolve(rec)

	for _, s := range res.Speakers {
		if r.IsBanned(s.Label) {
			t.Errorf("resolved speaker carries banned label %q", s.Label)
		}
	}
	if res.Mapping["spk_4"] != "Dana" {
		t.Errorf("spk_4 label = %q, want Dana", res.Mapping["spk_4"])
	}
}

func TestResolveSpeakerNumbersGapFree(t *testing.T) {
	r := newTestResolver()

	// Three identifiers with only banned names should get Speaker 0..2
	// in sorted identifier order.
	rec := &models.Recording{
		ID: "rec1",
		Segments: []models.Segment{
			seg("spk_c", "unknown"),
			seg("spk_a", ""),
			seg("spk_b", "unidentified"),
		},
	}

	res := r.Resolve(rec)

	want := map[string]string{
		"spk_a": "Speaker 0",
		"spk_b": "Speaker 1",
		"spk_c": "Speaker 2",
	}
	for id, label := range want {
		if res.Mapping[id] != label {
			t.Errorf("mapping[%q] = %q, want %q", id, res.Mapping[id], label)
		}
	}
}

func TestResolveSourceNumberedNamesNeverCollide(t *testing.T) {
	r := newTestResolver()

	// Diarization output sometimes names speakers "Speaker 0" itself.
	// Such a name claims its number: allocated labels must skip it no
	// matter which side of the named identifier they sort on.
	tests := []struct {
		name string
		segs []models.Segment
		want map[string]string
	}{
		{
			name: "named identifier sorts first",
			segs: []models.Segment{seg("spk_a", "Speaker 0"), seg("spk_b", "")},
			want: map[string]string{"spk_a": "Speaker 0", "spk_b": "Speaker 1"},
		},
		{
			name: "named identifier sorts last",
			segs: []models.Segment{seg("spk_a", ""), seg("spk_b", "Speaker 0")},
			want: map[string]string{"spk_a": "Speaker 1", "spk_b": "Speaker 0"},
		},
		{
			name: "named number in the middle of the range",
			segs: []models.Segment{seg("spk_a", ""), seg("spk_b", "Speaker 1"), seg("spk_c", "")},
			want: map[string]string{"spk_a": "Speaker 0", "spk_b": "Speaker 1", "spk_c": "Speaker 2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Resolve(&models.Recording{ID: "rec1", Segments: tt.segs})

			for id, label := range tt.want {
				if res.Mapping[id] != label {
					t.Errorf("mapping[%q] = %q, want %q", id, res.Mapping[id], label)
				}
			}

			byLabel := make(map[string][]string)
			for _, s := range res.Speakers {
				byLabel[s.Label] = append(byLabel[s.Label], s.RawID)
			}
			for label, ids := range byLabel {
				if len(ids) > 1 {
					t.Errorf("label %q assigned to %d distinct speakers: %v", label, len(ids), ids)
				}
			}
		})
	}
}

func TestAllocLabelSkipsTakenNumbers(t *testing.T) {
	r := newTestResolver()

	res := r.Resolve(&models.Recording{
		ID:       "rec1",
		Segments: []models.Segment{seg("spk_a", "Speaker 0"), seg("spk_b", "Speaker 2")},
	})

	// Post-resolution allocation (the people-merge path) must also steer
	// around source-claimed numbers.
	if got := res.AllocLabel(); got != "Speaker 1" {
		t.Errorf("AllocLabel() = %q, want Speaker 1", got)
	}
	if got := res.AllocLabel(); got != "Speaker 3" {
		t.Errorf("AllocLabel() = %q, want Speaker 3", got)
	}
}

func TestResolveDeterministic(t *testing.T) {
	r := newTestResolver()

	rec := &models.Recording{
		ID: "rec1",
		Segments: []models.Segment{
			seg("spk_2", "Zoe"),
			seg("spk_1", "unknown"),
			seg("user", ""),
			seg("spk_2", "Adam"),
		},
	}

	first := r.Resolve(rec)
	for i := 0; i < 10; i++ {
		res := r.Resolve(rec)
		if len(res.Speakers) != len(first.Speakers) {
			t.Fatalf("run %d: speaker count changed", i)
		}
		for id, label := range first.Mapping {
			if res.Mapping[id] != label {
				t.Errorf("run %d: mapping[%q] = %q, want %q", i, id, res.Mapping[id], label)
			}
		}
	}

	// Name ties break to the lexicographically smallest valid name.
	if first.Mapping["spk_2"] != "Adam" {
		t.Errorf("spk_2 label = %q, want Adam", first.Mapping["spk_2"])
	}
}

func TestResolveUnattributedSegments(t *testing.T) {
	r := newTestResolver()

	t.Run("only unattributed segments synthesize one speaker", func(t *testing.T) {
		rec := &models.Recording{
			Segments: []models.Segment{
				{Text: "hello"},
				{Text: "world"},
			},
		}
		res := r.Resolve(rec)
		if len(res.Speakers) != 1 {
			t.Fatalf("expected 1 speaker, got %d", len(res.Speakers))
		}
		if res.Speakers[0].Label != "Speaker 0" {
			t.Errorf("label = %q, want Speaker 0", res.Speakers[0].Label)
		}
	})

	t.Run("unattributed segments are absorbed when speakers exist", func(t *testing.T) {
		rec := &models.Recording{
			Segments: []models.Segment{
				seg("user", ""),
				{Text: "no speaker id"},
			},
		}
		res := r.Resolve(rec)
		if len(res.Speakers) != 1 {
			t.Fatalf("expected 1 speaker, got %d", len(res.Speakers))
		}
		if !res.Speakers[0].IsPrimary {
			t.Error("expected remaining speaker to be the account owner")
		}
	})

	t.Run("empty recording defaults to owner", func(t *testing.T) {
		res := r.Resolve(&models.Recording{})
		if len(res.Speakers) != 1 || res.Speakers[0].Label != PrimaryLabel {
			t.Fatalf("expected single %q speaker, got %+v", PrimaryLabel, res.Speakers)
		}
	})
}

func TestLabelFallbacks(t *testing.T) {
	r := newTestResolver()

	rec := &models.Recording{
		Segments: []models.Segment{seg("spk_1", "Maria")},
	}
	res := r.Resolve(rec)

	tests := []struct {
		name string
		seg  models.Segment
		want string
	}{
		{"mapped identifier", seg("spk_1", "anything"), "Maria"},
		{"unmapped with valid name", seg("spk_9", "Dana"), "Dana"},
		{"unmapped with banned name", seg("spk_9", "unknown"), "Maria"},
		{"unmapped with no name", seg("spk_9", ""), "Maria"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := res.Label(r, &tt.seg); got != tt.want {
				t.Errorf("Label() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMultiSpeaker(t *testing.T) {
	r := newTestResolver()

	solo := r.Resolve(&models.Recording{Segments: []models.Segment{seg("user", "")}})
	if solo.MultiSpeaker() {
		t.Error("single speaker reported as multi")
	}

	multi := r.Resolve(&models.Recording{
		Segments: []models.Segment{seg("user", ""), seg("spk_2", "Maria")},
	})
	if !multi.MultiSpeaker() {
		t.Error("two speakers not reported as multi")
	}
}

func TestPeople(t *testing.T) {
	r := newTestResolver()

	res := r.Resolve(&models.Recording{
		Segments: []models.Segment{seg("user", ""), seg("spk_2", "Maria")},
	})

	people := res.People()
	if len(people) != 2 {
		t.Fatalf("expected 2 people, got %d", len(people))
	}
	for _, p := range people {
		if !p.IsSpeaker {
			t.Errorf("person %q not flagged as speaker", p.Name)
		}
		if p.Name == PrimaryLabel && !strings.Contains(p.Context, "owner") {
			t.Errorf("owner context = %q", p.Context)
		}
	}
}
