// Echolog - Voice Recording Ingestion and Memory Pipeline
// Copyright 2026 Avery K. (averyk)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averyk/echolog

package source

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/averyk/echolog/internal/config"
	"github.com/averyk/echolog/internal/logging"
	"github.com/averyk/echolog/internal/metrics"
	"github.com/averyk/echolog/internal/models"
)

// Walker drains a time window from the Recording Source API page by page,
// following opaque cursors until the listing is exhausted.
//
// Termination conditions, any of which ends the walk:
//   - a page returns no items
//   - a page returns no next cursor
//   - the hard page-count cap is reached
//
// Page-level network errors are retried a bounded number of times; an
// exhausted retry budget aborts the whole fetch, which the orchestrator
// treats as fatal for that run only.
type Walker struct {
	client      ClientInterface
	pageSize    int
	maxPages    int
	pageRetries int
	limiter     *rate.Limiter
}

// NewWalker creates a walker using the configured page size, page cap,
// retry budget, and inter-page delay.
func NewWalker(client ClientInterface, cfg *config.SourceConfig) *Walker {
	delay := cfg.PageDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	return &Walker{
		client:      client,
		pageSize:    cfg.PageSize,
		maxPages:    cfg.MaxPages,
		pageRetries: cfg.PageRetries,
		limiter:     rate.NewLimiter(rate.Every(delay), 1),
	}
}

// FetchAll returns every recording the source reports inside [start, end].
func (w *Walker) FetchAll(ctx context.Context, start, end time.Time) ([]models.Recording, error) {
	var all []models.Recording
	cursor := ""

	for page := 0; page < w.maxPages; page++ {
		// Respect the source's rate limits between pages.
		if err := w.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		result, err := w.fetchPage(ctx, start, end, cursor)
		if err != nil {
			return nil, fmt.Errorf("fetch aborted at page %d: %w", page, err)
		}
		metrics.SyncPageFetches.Inc()

		if len(result.Items) == 0 {
			break
		}
		all = append(all, result.Items...)

		logging.Debug().
			Int("page", page).
			Int("items", len(result.Items)).
			Int("total", len(all)).
			Msg("Fetched recordings page")

		if result.NextCursor == "" {
			break
		}
		cursor = result.NextCursor

		if page == w.maxPages-1 {
			logging.Warn().Int("max_pages", w.maxPages).Msg("Page safety cap reached, stopping fetch")
		}
	}

	return all, nil
}

// fetchPage fetches one page, retrying transient errors up to the
// configured budget.
func (w *Walker) fetchPage(ctx context.Context, start, end time.Time, cursor string) (*Page, error) {
	var lastErr error

	for attempt := 0; attempt <= w.pageRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		result, err := w.client.ListRecordings(ctx, start, end, cursor, w.pageSize)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt < w.pageRetries {
			logging.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Int("max", w.pageRetries).
				Msg("Page fetch failed, retrying")

			select {
			case <-time.After(time.Second * time.Duration(attempt+1)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return nil, fmt.Errorf("page fetch failed after %d retries: %w", w.pageRetries, lastErr)
}
