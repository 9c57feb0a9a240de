// Echolog - Voice Recording Ingestion and Memory Pipeline
// Copyright 2026 Avery K. (averyk)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averyk/echolog

package sync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	gosync "sync"
	"time"

	"github.com/averyk/echolog/internal/config"
	"github.com/averyk/echolog/internal/extract"
	"github.com/averyk/echolog/internal/logging"
	"github.com/averyk/echolog/internal/memory"
	"github.com/averyk/echolog/internal/metrics"
	"github.com/averyk/echolog/internal/models"
	"github.com/averyk/echolog/internal/source"
	"github.com/averyk/echolog/internal/speaker"
	"github.com/averyk/echolog/internal/statestore"
)

// Sync modes. hours_N takes any positive N (e.g. "hours_6").
const (
	ModeToday     = "today"
	ModeYesterday = "yesterday"
	ModeAll       = "all"

	hoursModePrefix = "hours_"
)

// ErrUnknownMode is returned for a mode string the orchestrator does not
// recognize.
var ErrUnknownMode = errors.New("unknown sync mode")

// Pipeline stage names, shared by metrics and performance samples.
const (
	StageSpeakers    = "speakers"
	StageExtraction  = "extraction"
	StageMaterialize = "materialize"
	StageMark        = "mark"
)

// Manager is the sync orchestrator. It selects the fetch window from the
// account watermark and requested mode, drives each recording through
// speaker resolution, extraction, materialization, and marking, then
// advances the watermark.
//
// All external collaborators are injected, never global: the source
// client, the extraction adapter's completer, the task client, and the
// state store all arrive through the constructor so tests can substitute
// doubles.
type Manager struct {
	cfg          *config.SyncConfig
	client       source.ClientInterface
	walker       *source.Walker
	state        *statestore.Store
	ledger       *Ledger
	resolver     *speaker.Resolver
	adapter      *extract.Adapter
	materializer *memory.Materializer
	perf         *PerfRecorder

	// syncMu serializes sync execution: a manual trigger racing a
	// scheduled trigger must not interleave watermark updates.
	syncMu gosync.Mutex

	// now is swappable for tests.
	now func() time.Time

	// scheduler state
	wg       gosync.WaitGroup
	stopChan chan struct{}
	stopOnce gosync.Once
}

// NewManager wires the orchestrator.
func NewManager(
	cfg *config.SyncConfig,
	client source.ClientInterface,
	walker *source.Walker,
	state *statestore.Store,
	resolver *speaker.Resolver,
	adapter *extract.Adapter,
	materializer *memory.Materializer,
) *Manager {
	return &Manager{
		cfg:          cfg,
		client:       client,
		walker:       walker,
		state:        state,
		ledger:       NewLedger(state, cfg.ProcessedTTL),
		resolver:     resolver,
		adapter:      adapter,
		materializer: materializer,
		perf:         NewPerfRecorder(state, cfg.PerfSampleTTL),
		now:          time.Now,
		stopChan:     make(chan struct{}),
	}
}

// Perf exposes the performance recorder for the query surface.
func (m *Manager) Perf() *PerfRecorder {
	return m.perf
}

// Watermark returns the account's last-processed timestamp, zero when the
// account has never completed a run.
func (m *Manager) Watermark(ctx context.Context, accountID string) (time.Time, error) {
	data, err := m.state.Get(ctx, statestore.WatermarkPrefix+accountID)
	if errors.Is(err, statestore.ErrKeyNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read watermark for %s: %w", accountID, err)
	}
	ts, err := time.Parse(time.RFC3339Nano, string(data))
	if err != nil {
		return time.Time{}, fmt.Errorf("watermark for %s is malformed: %w", accountID, err)
	}
	return ts, nil
}

// advanceWatermark moves the watermark forward to ts. The watermark is
// monotonic: a candidate at or before the current value is a no-op.
func (m *Manager) advanceWatermark(ctx context.Context, accountID string, ts time.Time) error {
	if ts.IsZero() {
		return nil
	}
	current, err := m.Watermark(ctx, accountID)
	if err != nil {
		return err
	}
	if !ts.After(current) {
		return nil
	}
	key := statestore.WatermarkPrefix + accountID
	if err := m.state.Set(ctx, key, []byte(ts.UTC().Format(time.RFC3339Nano))); err != nil {
		return fmt.Errorf("advance watermark for %s: %w", accountID, err)
	}
	logging.Info().Str("account", accountID).Time("watermark", ts).Msg("Watermark advanced")
	return nil
}

// windowStart computes the requested window start for a mode, before
// watermark comparison. Mode "all" ignores the watermark entirely and
// starts at the configured history floor.
func (m *Manager) windowStart(mode string, now time.Time) (time.Time, error) {
	switch {
	case mode == ModeToday:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()), nil
	case mode == ModeYesterday:
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		return midnight.AddDate(0, 0, -1), nil
	case mode == ModeAll:
		return m.cfg.HistoryStart, nil
	case strings.HasPrefix(mode, hoursModePrefix):
		n, err := strconv.Atoi(strings.TrimPrefix(mode, hoursModePrefix))
		if err != nil || n <= 0 {
			return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
		}
		return now.Add(-time.Duration(n) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

// Sync runs one full synchronization for the account.
//
// Only fatal errors escape: an unrecognized mode, unreachable source
// before any fetch, or an exhausted page-retry budget mid-fetch.
// Per-recording failures are absorbed into the report's error count.
func (m *Manager) Sync(ctx context.Context, accountID, mode string) (*models.SyncReport, error) {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()

	started := m.now()
	now := started

	windowStart, err := m.windowStart(mode, now)
	if err != nil {
		return nil, err
	}

	// Incremental sync: resume from the watermark when it is already past
	// the requested window start. Mode "all" always walks full history.
	if mode != ModeAll {
		watermark, err := m.Watermark(ctx, accountID)
		if err != nil {
			return nil, err
		}
		if watermark.After(windowStart) {
			logging.Debug().Time("watermark", watermark).Time("window", windowStart).Msg("Incremental sync from watermark")
			windowStart = watermark
		}
	}

	// Credentials or connectivity problems are fatal before any fetch.
	if err := m.client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("recording source unavailable: %w", err)
	}

	report := &models.SyncReport{
		AccountID:   accountID,
		Mode:        mode,
		WindowStart: windowStart,
		WindowEnd:   now,
	}

	recordings, err := m.walker.FetchAll(ctx, windowStart, now)
	if err != nil {
		metrics.SyncErrors.WithLabelValues("fetch").Inc()
		return nil, fmt.Errorf("fetch window [%s, %s]: %w", windowStart.Format(time.RFC3339), now.Format(time.RFC3339), err)
	}
	report.Fetched = len(recordings)

	pending, already, err := m.ledger.Partition(ctx, recordings)
	if err != nil {
		return nil, fmt.Errorf("partition fetched recordings: %w", err)
	}
	report.AlreadyProcessed = len(already)
	metrics.SyncRecordingsSkipped.WithLabelValues("already_processed").Add(float64(len(already)))

	logging.Info().
		Str("account", accountID).
		Str("mode", mode).
		Int("fetched", report.Fetched).
		Int("pending", len(pending)).
		Int("already_processed", report.AlreadyProcessed).
		Msg("Sync window fetched")

	watermarkCandidate := m.processPending(ctx, report, pending, already)

	if err := m.advanceWatermark(ctx, accountID, watermarkCandidate); err != nil {
		logging.Error().Err(err).Str("account", accountID).Msg("Failed to advance watermark")
		report.Errors++
	}

	duration := m.now().Sub(started)
	report.Duration = duration.Milliseconds()
	metrics.RecordSyncRun(duration, report.Fetched, report.Processed, report.Efficiency(), nil)

	logging.Info().
		Str("account", accountID).
		Int("processed", report.Processed).
		Int("errors", report.Errors).
		Int("memories", report.MemoriesCreated).
		Int("tasks", report.TasksCreated).
		Dur("duration", duration).
		Msg("Sync completed")

	return report, nil
}

// processPending drives every pending recording through the stage loop
// and returns the watermark candidate: the maximum timestamp observed on
// recordings that are safely done, capped below the earliest failure so
// the watermark never advances past data that still needs processing.
func (m *Manager) processPending(ctx context.Context, report *models.SyncReport, pending, already []models.Recording) time.Time {
	var maxDone time.Time
	var minFailed time.Time

	for i := range already {
		if t := already[i].MaxTime(); t.After(maxDone) {
			maxDone = t
		}
	}

	for i := range pending {
		rec := &pending[i]

		if i > 0 && m.cfg.RecordingDelay > 0 {
			select {
			case <-time.After(m.cfg.RecordingDelay):
			case <-ctx.Done():
			}
		}

		// Cancellation is honored between recordings, including during
		// the pacing delay; an in-flight recording either completes or
		// is retried next run.
		if ctx.Err() != nil {
			logging.Warn().Int("remaining", len(pending)-i).Msg("Sync canceled, leaving remaining recordings pending")
			break
		}

		if err := m.processRecording(ctx, report, rec); err != nil {
			report.Errors++
			logging.Error().Err(err).Str("recording", rec.ID).Msg("Failed to process recording")
			if t := rec.MaxTime(); minFailed.IsZero() || t.Before(minFailed) {
				minFailed = t
			}
			continue
		}

		report.Processed++
		if t := rec.MaxTime(); t.After(maxDone) {
			maxDone = t
		}
	}

	// Never advance past a failed recording: it must be fetched again.
	if !minFailed.IsZero() && !maxDone.Before(minFailed) {
		capped := minFailed.Add(-time.Second)
		if capped.Before(maxDone) {
			maxDone = capped
		}
	}
	return maxDone
}

// processRecording runs the full stage sequence for one recording:
// speaker resolution, extraction, materialization, marking. A panic in
// any stage is converted to an error at this boundary so one malformed
// recording cannot take down the run.
func (m *Manager) processRecording(ctx context.Context, report *models.SyncReport, rec *models.Recording) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing recording %s: %v", rec.ID, r)
		}
	}()

	timings := make(map[string]int64, 4)
	runStart := m.now()

	stageStart := time.Now()
	resolution := m.resolver.Resolve(rec)
	timings[StageSpeakers] = time.Since(stageStart).Milliseconds()

	stageStart = time.Now()
	extracted := m.adapter.Extract(ctx, rec, resolution)
	timings[StageExtraction] = time.Since(stageStart).Milliseconds()
	if extracted.Outcome == extract.OutcomeFallback {
		logging.Debug().Str("recording", rec.ID).Str("reason", extracted.FallbackReason).Msg("Extraction fell back to speaker-only data")
	}

	stageStart = time.Now()
	transcript := m.adapter.BuildTranscript(rec, resolution)
	materialized, err := m.materializer.Materialize(ctx, m.cfg.UserID, rec.ID, rec.Title, transcript, &extracted.Extraction)
	timings[StageMaterialize] = time.Since(stageStart).Milliseconds()
	if err != nil {
		metrics.SyncErrors.WithLabelValues(StageMaterialize).Inc()
		return fmt.Errorf("materialize: %w", err)
	}
	if materialized.MemoryCreated {
		report.MemoriesCreated++
	}
	report.TasksCreated += materialized.TasksCreated
	if materialized.Skipped {
		report.Skipped++
	}

	stageStart = time.Now()
	if err := m.ledger.MarkProcessed(ctx, rec.ID); err != nil {
		metrics.SyncErrors.WithLabelValues(StageMark).Inc()
		return fmt.Errorf("mark processed: %w", err)
	}
	timings[StageMark] = time.Since(stageStart).Milliseconds()

	m.perf.Record(ctx, models.PerformanceSample{
		RecordingID:  rec.ID,
		StageTimings: timings,
		TotalTime:    time.Since(runStart).Milliseconds(),
		ProcessedAt:  m.now(),
	})

	return nil
}
