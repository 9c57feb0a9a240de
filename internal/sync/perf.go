// Echolog - Voice Recording Ingestion and Memory Pipeline
// Copyright 2026 Avery K. (averyk)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averyk/echolog

package sync

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/averyk/echolog/internal/logging"
	"github.com/averyk/echolog/internal/metrics"
	"github.com/averyk/echolog/internal/models"
	"github.com/averyk/echolog/internal/statestore"
)

// bottleneckShare flags a stage consuming more than this share of a
// recording's total processing time.
const bottleneckShare = 0.30

// PerfRecorder persists per-recording stage timings as short-TTL samples
// in the state store and mirrors them into Prometheus histograms.
type PerfRecorder struct {
	state *statestore.Store
	ttl   time.Duration
}

// NewPerfRecorder creates a recorder with the given sample TTL.
func NewPerfRecorder(state *statestore.Store, ttl time.Duration) *PerfRecorder {
	return &PerfRecorder{state: state, ttl: ttl}
}

// Record appends one sample. Failures are logged, not propagated: losing
// a performance sample must never fail a recording.
func (p *PerfRecorder) Record(ctx context.Context, sample models.PerformanceSample) {
	for stage, ms := range sample.StageTimings {
		metrics.ObserveStage(stage, time.Duration(ms)*time.Millisecond)
	}

	key := statestore.PerfSamplePrefix + strconv.FormatInt(sample.ProcessedAt.UnixNano(), 10) + ":" + sample.RecordingID
	if err := p.state.SetJSON(ctx, key, sample, p.ttl); err != nil {
		logging.Warn().Err(err).Str("recording", sample.RecordingID).Msg("Failed to persist performance sample")
	}
}

// StageAggregate summarizes one stage across samples, in milliseconds.
type StageAggregate struct {
	Min   int64   `json:"min"`
	Avg   float64 `json:"avg"`
	Max   int64   `json:"max"`
	Total int64   `json:"total"`
}

// PerfReport is the answer to a performance query.
type PerfReport struct {
	Window      string                     `json:"window"`
	Count       int                        `json:"count"`
	Total       StageAggregate             `json:"total"`
	Stages      map[string]StageAggregate  `json:"stages"`
	Bottlenecks []string                   `json:"bottlenecks,omitempty"`
	Samples     []models.PerformanceSample `json:"samples"`
}

// Query returns samples processed within the given window, newest first,
// with min/avg/max aggregates and simple bottleneck detection: any stage
// consuming more than 30% of cumulative total time is flagged.
func (p *PerfRecorder) Query(ctx context.Context, window time.Duration) (*PerfReport, error) {
	raw, err := p.state.ScanPrefix(ctx, statestore.PerfSamplePrefix)
	if err != nil {
		return nil, fmt.Errorf("scan performance samples: %w", err)
	}

	cutoff := time.Now().Add(-window)
	report := &PerfReport{
		Window: window.String(),
		Stages: make(map[string]StageAggregate),
	}

	var samples []models.PerformanceSample
	for key, value := range raw {
		var sample models.PerformanceSample
		if err := json.Unmarshal(value, &sample); err != nil {
			logging.Warn().Str("key", key).Msg("Dropping malformed performance sample")
			continue
		}
		if sample.ProcessedAt.Before(cutoff) {
			continue
		}
		samples = append(samples, sample)
	}
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].ProcessedAt.After(samples[j].ProcessedAt)
	})

	report.Samples = samples
	report.Count = len(samples)
	if len(samples) == 0 {
		return report, nil
	}

	stageTotals := make(map[string]*StageAggregate)
	totalAgg := &StageAggregate{Min: samples[0].TotalTime}
	for _, sample := range samples {
		accumulate(totalAgg, sample.TotalTime)
		for stage, ms := range sample.StageTimings {
			agg, ok := stageTotals[stage]
			if !ok {
				agg = &StageAggregate{Min: ms}
				stageTotals[stage] = agg
			}
			accumulate(agg, ms)
		}
	}

	finalize(totalAgg, len(samples))
	report.Total = *totalAgg
	for stage, agg := range stageTotals {
		finalize(agg, len(samples))
		report.Stages[stage] = *agg
		if totalAgg.Total > 0 && float64(agg.Total)/float64(totalAgg.Total) > bottleneckShare {
			report.Bottlenecks = append(report.Bottlenecks, stage)
		}
	}
	sort.Strings(report.Bottlenecks)

	return report, nil
}

// accumulate folds one observation into an aggregate.
func accumulate(agg *StageAggregate, ms int64) {
	if ms < agg.Min {
		agg.Min = ms
	}
	if ms > agg.Max {
		agg.Max = ms
	}
	agg.Total += ms
}

// finalize computes the average once all observations are in.
func finalize(agg *StageAggregate, count int) {
	if count > 0 {
		agg.Avg = float64(agg.Total) / float64(count)
	}
}
