// Echolog - Voice Recording Ingestion and Memory Pipeline
// Copyright 2026 Avery K. (averyk)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averyk/echolog

package sync

import (
	"context"
	"time"

	"github.com/averyk/echolog/internal/logging"
)

// Start launches the periodic sync loop. When InitialSync is enabled an
// immediate catch-up run fires before the first tick. Safe to call once;
// Stop shuts the loop down and waits for any in-flight run.
func (m *Manager) Start() {
	if m.cfg.Interval <= 0 {
		logging.Info().Msg("Scheduled sync disabled, manual triggers only")
		return
	}

	m.wg.Add(1)
	go m.syncLoop()

	logging.Info().
		Dur("interval", m.cfg.Interval).
		Str("mode", m.cfg.Mode).
		Bool("initial_sync", m.cfg.InitialSync).
		Msg("Sync scheduler started")
}

// Stop signals the loop to exit and blocks until it has drained.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
	m.wg.Wait()
}

func (m *Manager) syncLoop() {
	defer m.wg.Done()

	if m.cfg.InitialSync {
		m.runScheduled()
	}

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.runScheduled()
		case <-m.stopChan:
			logging.Debug().Msg("Sync scheduler stopping")
			return
		}
	}
}

// runScheduled executes one scheduled run with a context that is
// canceled on shutdown, so Stop does not wait out a long fetch window.
func (m *Manager) runScheduled() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		select {
		case <-m.stopChan:
			cancel()
		case <-done:
		}
	}()
	defer close(done)

	report, err := m.Sync(ctx, m.cfg.AccountID, m.cfg.Mode)
	if err != nil {
		logging.Error().Err(err).Msg("Scheduled sync failed")
		return
	}
	logging.Debug().
		Int("fetched", report.Fetched).
		Int("processed", report.Processed).
		Msg("Scheduled sync finished")
}
