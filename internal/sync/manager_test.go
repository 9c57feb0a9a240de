// Echolog - Voice Recording Ingestion and Memory Pipeline
// Copyright 2026 Avery K. (averyk)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averyk/echolog

package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/averyk/echolog/internal/config"
	"github.com/averyk/echolog/internal/extract"
	"github.com/averyk/echolog/internal/memory"
	"github.com/averyk/echolog/internal/models"
	"github.com/averyk/echolog/internal/source"
	"github.com/averyk/echolog/internal/speaker"
	"github.com/averyk/echolog/internal/statestore"
)

// fakeSource serves a fixed recording list in one page.
type fakeSource struct {
	recordings []models.Recording
	pingErr    error
	listCalls  int
}

func (f *fakeSource) Ping(context.Context) error { return f.pingErr }

func (f *fakeSource) ListRecordings(_ context.Context, start, end time.Time, cursor string, _ int) (*source.Page, error) {
	f.listCalls++
	if cursor != "" {
		return &source.Page{}, nil
	}
	var items []models.Recording
	for _, rec := range f.recordings {
		t := rec.MaxTime()
		if !start.IsZero() && t.Before(start) {
			continue
		}
		if !end.IsZero() && t.After(end) {
			continue
		}
		items = append(items, rec)
	}
	return &source.Page{Items: items}, nil
}

// fixedCompleter always returns the same extraction response.
type fixedCompleter struct {
	response string
	err      error
}

func (f *fixedCompleter) Complete(context.Context, string) (string, error) {
	return f.response, f.err
}

type managerFixture struct {
	manager *Manager
	source  *fakeSource
	state   *statestore.Store
	store   *memory.Store
	now     time.Time
}

func newManagerFixture(t *testing.T, src *fakeSource, completer extract.Completer) *managerFixture {
	t.Helper()

	state := newTestState(t)

	memStore, err := memory.OpenStore(":memory:")
	if err != nil {
		t.Fatalf("open memory store: %v", err)
	}
	t.Cleanup(func() { _ = memStore.Close() })

	speakerCfg := &config.SpeakerConfig{
		PrimaryID:   "user",
		BannedNames: []string{"", "unknown", "unknown speaker", "unidentified", "unidentified speaker"},
	}
	qualityCfg := &config.QualityConfig{
		TitleDenylist: []string{"a brief, unclear exchange"},
		MaxFacts:      3,
		MaxPeople:     3,
	}
	syncCfg := &config.SyncConfig{
		AccountID:     "acct1",
		UserID:        "user1",
		Mode:          ModeToday,
		ProcessedTTL:  time.Hour,
		PerfSampleTTL: time.Hour,
		HistoryStart:  time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	resolver := speaker.NewResolver(speakerCfg)
	adapter := extract.NewAdapter(completer, resolver)
	materializer := memory.NewMaterializer(memStore, state, qualityCfg, nil, nil, time.Hour)
	walker := source.NewWalker(src, &config.SourceConfig{
		PageSize:  10,
		MaxPages:  5,
		PageDelay: time.Millisecond,
	})

	m := NewManager(syncCfg, src, walker, state, resolver, adapter, materializer)

	now := time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	return &managerFixture{manager: m, source: src, state: state, store: memStore, now: now}
}

func recordingAt(id string, end time.Time) models.Recording {
	return models.Recording{
		ID:        id,
		Title:     "Team check-in " + id,
		StartTime: end.Add(-10 * time.Minute),
		EndTime:   end,
		Segments: []models.Segment{
			{SpeakerID: "user", Text: "Quick update on the project."},
			{SpeakerID: "spk_2", SpeakerName: "Maria", Text: "Sounds good to me."},
		},
	}
}

const extractionResponse = `{"facts": ["The project ships next week"], "tasks": [], "events": [], "people": []}`

func TestSyncProcessesAndDeduplicates(t *testing.T) {
	now := time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC)
	src := &fakeSource{recordings: []models.Recording{
		recordingAt("rec1", now.Add(-2*time.Hour)),
		recordingAt("rec2", now.Add(-1*time.Hour)),
	}}
	fx := newManagerFixture(t, src, &fixedCompleter{response: extractionResponse})
	ctx := context.Background()

	report, err := fx.manager.Sync(ctx, "acct1", ModeToday)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if report.Fetched != 2 || report.Processed != 2 || report.AlreadyProcessed != 0 {
		t.Fatalf("first run report = %+v", report)
	}
	if report.MemoriesCreated != 2 {
		t.Errorf("memories created = %d, want 2", report.MemoriesCreated)
	}
	if report.Errors != 0 {
		t.Errorf("errors = %d, want 0", report.Errors)
	}

	// Second run over the same window: everything already processed,
	// nothing re-materialized.
	report2, err := fx.manager.Sync(ctx, "acct1", ModeToday)
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if report2.AlreadyProcessed != report2.Fetched {
		t.Errorf("second run: already=%d fetched=%d, want all skipped", report2.AlreadyProcessed, report2.Fetched)
	}
	if report2.Processed != 0 || report2.MemoriesCreated != 0 {
		t.Errorf("second run re-processed: %+v", report2)
	}

	memories, err := fx.store.ListForUser(ctx, "user1", 10)
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(memories) != 2 {
		t.Errorf("stored memories = %d, want 2", len(memories))
	}
}

// cancelingCompleter cancels the run context shortly after the first
// extraction, landing the cancellation inside the pacing delay that
// precedes the next recording.
type cancelingCompleter struct {
	inner     extract.Completer
	cancel    context.CancelFunc
	scheduled bool
}

func (c *cancelingCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	if !c.scheduled {
		c.scheduled = true
		time.AfterFunc(200*time.Millisecond, c.cancel)
	}
	return c.inner.Complete(ctx, prompt)
}

func TestSyncCancellationDuringPacingLeavesRemainingPending(t *testing.T) {
	now := time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC)
	src := &fakeSource{recordings: []models.Recording{
		recordingAt("rec1", now.Add(-2*time.Hour)),
		recordingAt("rec2", now.Add(-1*time.Hour)),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	completer := &cancelingCompleter{inner: &fixedCompleter{response: extractionResponse}, cancel: cancel}
	fx := newManagerFixture(t, src, completer)
	fx.manager.cfg.RecordingDelay = 2 * time.Second

	start := time.Now()
	report, err := fx.manager.Sync(ctx, "acct1", ModeToday)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if elapsed := time.Since(start); elapsed >= 2*time.Second {
		t.Errorf("cancellation did not interrupt the pacing delay (took %v)", elapsed)
	}

	// The recording after the canceled delay was never processed and
	// left no marker, so it stays pending.
	if report.Processed != 1 {
		t.Errorf("processed = %d, want 1", report.Processed)
	}
	marked, err := fx.state.Exists(context.Background(), statestore.ProcessedPrefix+"rec2")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if marked {
		t.Error("canceled run marked the unprocessed recording")
	}

	// A fresh run picks it back up.
	fx.manager.cfg.RecordingDelay = 0
	report2, err := fx.manager.Sync(context.Background(), "acct1", ModeToday)
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if report2.Processed != 1 {
		t.Errorf("second run processed = %d, want 1", report2.Processed)
	}

	memories, err := fx.store.ListForUser(context.Background(), "user1", 10)
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(memories) != 2 {
		t.Errorf("stored memories = %d, want 2", len(memories))
	}
}

func TestSyncAdvancesWatermark(t *testing.T) {
	now := time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC)
	latest := now.Add(-1 * time.Hour)
	src := &fakeSource{recordings: []models.Recording{
		recordingAt("rec1", now.Add(-3*time.Hour)),
		recordingAt("rec2", latest),
	}}
	fx := newManagerFixture(t, src, &fixedCompleter{response: extractionResponse})
	ctx := context.Background()

	if _, err := fx.manager.Sync(ctx, "acct1", ModeToday); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	watermark, err := fx.manager.Watermark(ctx, "acct1")
	if err != nil {
		t.Fatalf("Watermark: %v", err)
	}
	if !watermark.Equal(latest) {
		t.Errorf("watermark = %v, want %v", watermark, latest)
	}

	// A later run with nothing new must not move the watermark backward.
	if _, err := fx.manager.Sync(ctx, "acct1", ModeToday); err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	after, err := fx.manager.Watermark(ctx, "acct1")
	if err != nil {
		t.Fatalf("Watermark: %v", err)
	}
	if after.Before(watermark) {
		t.Errorf("watermark moved backward: %v -> %v", watermark, after)
	}
}

func TestSyncExtractionFallbackStillProcesses(t *testing.T) {
	// A dead AI service degrades to speaker-only extraction; recordings
	// are still marked processed and the run reports no errors.
	now := time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC)
	src := &fakeSource{recordings: []models.Recording{
		recordingAt("rec1", now.Add(-1 * time.Hour)),
	}}
	fx := newManagerFixture(t, src, &fixedCompleter{err: errors.New("model unavailable")})
	ctx := context.Background()

	report, err := fx.manager.Sync(ctx, "acct1", ModeToday)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if report.Processed != 1 || report.Errors != 0 {
		t.Fatalf("report = %+v", report)
	}

	processed, err := NewLedger(fx.state, time.Hour).IsProcessed(ctx, "rec1")
	if err != nil || !processed {
		t.Errorf("recording not marked processed after fallback: %v, %v", processed, err)
	}
}

func TestSyncPingFailureIsFatal(t *testing.T) {
	src := &fakeSource{pingErr: errors.New("connection refused")}
	fx := newManagerFixture(t, src, &fixedCompleter{response: extractionResponse})

	_, err := fx.manager.Sync(context.Background(), "acct1", ModeToday)
	if err == nil {
		t.Fatal("expected fatal error when source is unreachable")
	}
	if src.listCalls != 0 {
		t.Errorf("list called %d times despite failed ping", src.listCalls)
	}
}

func TestSyncUnknownMode(t *testing.T) {
	fx := newManagerFixture(t, &fakeSource{}, &fixedCompleter{response: extractionResponse})

	for _, mode := range []string{"weekly", "hours_", "hours_x", "hours_-3", ""} {
		if _, err := fx.manager.Sync(context.Background(), "acct1", mode); !errors.Is(err, ErrUnknownMode) {
			t.Errorf("Sync(mode=%q) error = %v, want ErrUnknownMode", mode, err)
		}
	}
}

func TestWindowStart(t *testing.T) {
	fx := newManagerFixture(t, &fakeSource{}, &fixedCompleter{response: extractionResponse})
	now := fx.now

	tests := []struct {
		mode string
		want time.Time
	}{
		{ModeToday, time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)},
		{ModeYesterday, time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)},
		{"hours_6", now.Add(-6 * time.Hour)},
		{"hours_48", now.Add(-48 * time.Hour)},
		{ModeAll, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			got, err := fx.manager.windowStart(tt.mode, now)
			if err != nil {
				t.Fatalf("windowStart(%q): %v", tt.mode, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("windowStart(%q) = %v, want %v", tt.mode, got, tt.want)
			}
		})
	}
}

func TestSyncIncrementalWindowFromWatermark(t *testing.T) {
	now := time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC)
	old := recordingAt("old", now.Add(-5*time.Hour))
	fresh := recordingAt("fresh", now.Add(-30*time.Minute))
	src := &fakeSource{recordings: []models.Recording{old, fresh}}
	fx := newManagerFixture(t, src, &fixedCompleter{response: extractionResponse})
	ctx := context.Background()

	// Seed a watermark past the old recording. Incremental sync must not
	// refetch it even though "today" covers it.
	seed := now.Add(-2 * time.Hour)
	key := statestore.WatermarkPrefix + "acct1"
	if err := fx.state.Set(ctx, key, []byte(seed.Format(time.RFC3339Nano))); err != nil {
		t.Fatalf("seed watermark: %v", err)
	}

	report, err := fx.manager.Sync(ctx, "acct1", ModeToday)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if report.Fetched != 1 || report.Processed != 1 {
		t.Fatalf("report = %+v, want only the fresh recording", report)
	}
	if !report.WindowStart.Equal(seed) {
		t.Errorf("window start = %v, want watermark %v", report.WindowStart, seed)
	}
}

func TestSyncModeAllIgnoresWatermark(t *testing.T) {
	now := time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC)
	old := recordingAt("old", now.Add(-100*time.Hour))
	src := &fakeSource{recordings: []models.Recording{old}}
	fx := newManagerFixture(t, src, &fixedCompleter{response: extractionResponse})
	ctx := context.Background()

	key := statestore.WatermarkPrefix + "acct1"
	if err := fx.state.Set(ctx, key, []byte(now.Format(time.RFC3339Nano))); err != nil {
		t.Fatalf("seed watermark: %v", err)
	}

	report, err := fx.manager.Sync(ctx, "acct1", ModeAll)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if report.Fetched != 1 {
		t.Errorf("fetched = %d, want 1 (full history walk)", report.Fetched)
	}
	if !report.WindowStart.Equal(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("window start = %v, want history floor", report.WindowStart)
	}
}

func TestEfficiency(t *testing.T) {
	tests := []struct {
		name    string
		fetched int
		already int
		want    float64
	}{
		{"all new", 10, 0, 1.0},
		{"all skipped", 10, 10, 0.0},
		{"half", 10, 5, 0.5},
		{"nothing fetched", 0, 0, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := models.SyncReport{Fetched: tt.fetched, AlreadyProcessed: tt.already}
			got := r.Efficiency()
			if got != tt.want {
				t.Errorf("Efficiency() = %v, want %v", got, tt.want)
			}
			if got < 0 || got > 1 {
				t.Errorf("Efficiency() = %v, out of [0,1]", got)
			}
		})
	}
}
