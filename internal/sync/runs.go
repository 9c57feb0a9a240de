// Echolog - Voice Recording Ingestion and Memory Pipeline
// Copyright 2026 Avery K. (averyk)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averyk/echolog

package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/averyk/echolog/internal/logging"
	"github.com/averyk/echolog/internal/models"
	"github.com/averyk/echolog/internal/statestore"
)

// ErrRunNotFound is returned when a run ID has no stored record.
var ErrRunNotFound = errors.New("sync run not found")

// runRecordTTL keeps finished run records pollable for a week.
const runRecordTTL = 7 * 24 * time.Hour

// RunAsync starts a sync in the background and returns a run ID the
// caller can poll. Mode validation happens up front so a bad request
// fails synchronously instead of producing a doomed run record.
func (m *Manager) RunAsync(ctx context.Context, accountID, mode string) (string, error) {
	if _, err := m.windowStart(mode, m.now()); err != nil {
		return "", err
	}

	run := models.SyncRun{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Mode:      mode,
		Status:    models.RunStatusRunning,
		StartedAt: m.now(),
	}
	if err := m.storeRun(ctx, &run); err != nil {
		return "", err
	}

	go func() {
		// Detached from the request context: the run outlives the
		// HTTP call that triggered it.
		bg := context.Background()
		report, err := m.Sync(bg, accountID, mode)
		finished := m.now()
		run.FinishedAt = &finished
		if err != nil {
			run.Status = models.RunStatusFailed
			run.Error = err.Error()
		} else {
			run.Status = models.RunStatusCompleted
			run.Report = report
		}
		if storeErr := m.storeRun(bg, &run); storeErr != nil {
			logging.Error().Err(storeErr).Str("run", run.ID).Msg("Failed to persist sync run result")
		}
	}()

	return run.ID, nil
}

// GetRun returns the stored record for a run ID.
func (m *Manager) GetRun(ctx context.Context, runID string) (*models.SyncRun, error) {
	var run models.SyncRun
	err := m.state.GetJSON(ctx, statestore.SyncRunPrefix+runID, &run)
	if errors.Is(err, statestore.ErrKeyNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load sync run %s: %w", runID, err)
	}
	return &run, nil
}

func (m *Manager) storeRun(ctx context.Context, run *models.SyncRun) error {
	key := statestore.SyncRunPrefix + run.ID
	if err := m.state.SetJSON(ctx, key, run, runRecordTTL); err != nil {
		return fmt.Errorf("store sync run: %w", err)
	}
	return nil
}
