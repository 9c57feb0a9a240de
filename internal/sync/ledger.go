// Echolog - Voice Recording Ingestion and Memory Pipeline
// Copyright 2026 Avery K. (averyk)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averyk/echolog

// Package sync contains the ingestion orchestrator and its supporting
// state: the processed-marker ledger, the performance recorder, the
// scheduled sync loop, and async run tracking for the HTTP trigger.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/averyk/echolog/internal/models"
	"github.com/averyk/echolog/internal/statestore"
)

// Ledger is the per-recording idempotency gate. A marker's presence is the
// sole signal that a recording has been fully materialized; markers are
// TTL-bounded so the store does not grow without end.
//
// MarkProcessed is called only after materialization succeeds. A crash in
// between leaves the recording pending again on the next run; content-level
// dedup in the materializer keeps that retry harmless.
type Ledger struct {
	state *statestore.Store
	ttl   time.Duration
}

// NewLedger creates a ledger with the given marker TTL.
func NewLedger(state *statestore.Store, ttl time.Duration) *Ledger {
	return &Ledger{state: state, ttl: ttl}
}

// IsProcessed reports whether the recording already has a processed marker.
func (l *Ledger) IsProcessed(ctx context.Context, recordingID string) (bool, error) {
	exists, err := l.state.Exists(ctx, statestore.ProcessedPrefix+recordingID)
	if err != nil {
		return false, fmt.Errorf("processed marker check for %s: %w", recordingID, err)
	}
	return exists, nil
}

// MarkProcessed sets the recording's processed marker atomically
// (set-if-not-exists), so two racing runs cannot both claim to have
// marked it first. Marking an already-marked recording is a no-op.
func (l *Ledger) MarkProcessed(ctx context.Context, recordingID string) error {
	_, err := l.state.SetNX(ctx, statestore.ProcessedPrefix+recordingID, []byte("1"), l.ttl)
	if err != nil {
		return fmt.Errorf("mark processed %s: %w", recordingID, err)
	}
	return nil
}

// Partition splits fetched recordings into those already processed
// (counted and skipped) and those still pending, preserving fetch order.
func (l *Ledger) Partition(ctx context.Context, recordings []models.Recording) (pending, already []models.Recording, err error) {
	for i := range recordings {
		processed, err := l.IsProcessed(ctx, recordings[i].ID)
		if err != nil {
			return nil, nil, err
		}
		if processed {
			already = append(already, recordings[i])
		} else {
			pending = append(pending, recordings[i])
		}
	}
	return pending, already, nil
}
