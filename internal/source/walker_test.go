// Echolog - Voice Recording Ingestion and Memory Pipeline
// Copyright 2026 Avery K. (averyk)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averyk/echolog

package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/averyk/echolog/internal/config"
	"github.com/averyk/echolog/internal/models"
)

// pagedClient serves a fixed page sequence, optionally failing the first
// failures calls.
type pagedClient struct {
	pages    []*Page
	calls    int
	failures int
}

func (c *pagedClient) Ping(context.Context) error { return nil }

func (c *pagedClient) ListRecordings(_ context.Context, _, _ time.Time, cursor string, _ int) (*Page, error) {
	c.calls++
	if c.failures > 0 {
		c.failures--
		return nil, errors.New("transient network error")
	}
	idx := 0
	if cursor != "" {
		for i, p := range c.pages {
			if p.NextCursor == cursor {
				idx = i + 1
				break
			}
		}
	}
	if idx >= len(c.pages) {
		return &Page{}, nil
	}
	return c.pages[idx], nil
}

func walkerFor(client ClientInterface) *Walker {
	return NewWalker(client, &config.SourceConfig{
		PageSize:    10,
		MaxPages:    5,
		PageRetries: 2,
		PageDelay:   time.Millisecond,
	})
}

func recs(ids ...string) []models.Recording {
	out := make([]models.Recording, len(ids))
	for i, id := range ids {
		out[i] = models.Recording{ID: id}
	}
	return out
}

func TestFetchAllFollowsCursors(t *testing.T) {
	client := &pagedClient{pages: []*Page{
		{Items: recs("a", "b"), NextCursor: "c1"},
		{Items: recs("c"), NextCursor: "c2"},
		{Items: recs("d")}, // empty cursor ends the walk
	}}

	all, err := walkerFor(client).FetchAll(context.Background(), time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("fetched %d recordings, want 4", len(all))
	}
	want := []string{"a", "b", "c", "d"}
	for i, id := range want {
		if all[i].ID != id {
			t.Errorf("recording %d = %q, want %q (fetch order must be preserved)", i, all[i].ID, id)
		}
	}
}

func TestFetchAllStopsOnEmptyPage(t *testing.T) {
	client := &pagedClient{pages: []*Page{
		{Items: recs("a"), NextCursor: "c1"},
		{NextCursor: "c2"}, // no items
	}}

	all, err := walkerFor(client).FetchAll(context.Background(), time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(all) != 1 {
		t.Errorf("fetched %d recordings, want 1", len(all))
	}
	if client.calls != 2 {
		t.Errorf("client calls = %d, want 2", client.calls)
	}
}

func TestFetchAllHonorsPageCap(t *testing.T) {
	// Every page points to another one; the cap must stop the walk.
	pages := make([]*Page, 20)
	for i := range pages {
		pages[i] = &Page{Items: recs("r"), NextCursor: "c" + string(rune('a'+i))}
	}
	client := &pagedClient{pages: pages}

	all, err := walkerFor(client).FetchAll(context.Background(), time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(all) != 5 {
		t.Errorf("fetched %d recordings, want 5 (one per page up to the cap)", len(all))
	}
	if client.calls != 5 {
		t.Errorf("client calls = %d, want 5", client.calls)
	}
}

func TestFetchPageRetriesTransientErrors(t *testing.T) {
	client := &pagedClient{
		pages:    []*Page{{Items: recs("a")}},
		failures: 2, // matches the retry budget exactly
	}

	all, err := walkerFor(client).FetchAll(context.Background(), time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(all) != 1 {
		t.Errorf("fetched %d recordings, want 1", len(all))
	}
}

func TestFetchAllAbortsAfterRetryBudget(t *testing.T) {
	client := &pagedClient{
		pages:    []*Page{{Items: recs("a")}},
		failures: 10,
	}

	_, err := walkerFor(client).FetchAll(context.Background(), time.Time{}, time.Time{})
	if err == nil {
		t.Fatal("expected fetch abort")
	}
}

func TestFetchAllRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &pagedClient{pages: []*Page{{Items: recs("a")}}}
	_, err := walkerFor(client).FetchAll(ctx, time.Time{}, time.Time{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}
