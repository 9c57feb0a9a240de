// Echolog - Voice Recording Ingestion and Memory Pipeline
// Copyright 2026 Avery K. (averyk)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averyk/echolog

// Package source talks to the pendant Recording Source API: a paginated,
// cursor-based listing of recorded sessions ("lifelogs"). The package
// provides the HTTP client, a circuit-breaker wrapper, and the cursor
// walker that drains a time window page by page.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/averyk/echolog/internal/config"
	"github.com/averyk/echolog/internal/models"
)

// maxErrorBodySize limits how much of an error response body is read back
// for diagnostics, preventing unbounded allocation on large error pages.
const maxErrorBodySize = 64 * 1024 // 64KB

// Page is one page of recordings plus the opaque cursor for the next page.
// An empty NextCursor means the listing is exhausted.
type Page struct {
	Items      []models.Recording
	NextCursor string
}

// ClientInterface is the Recording Source API surface the pipeline needs.
// Implemented by Client for production and by test doubles.
//
// All methods accept a context for cancellation and are safe for
// concurrent use.
type ClientInterface interface {
	Ping(ctx context.Context) error
	ListRecordings(ctx context.Context, start, end time.Time, cursor string, limit int) (*Page, error)
}

// listResponse is the wire shape of GET /v1/lifelogs.
type listResponse struct {
	Items      []models.Recording `json:"items"`
	NextCursor string             `json:"nextCursor,omitempty"`
}

// Client is the HTTP client for the Recording Source API.
//
// Resilience:
//   - 30-second request timeout
//   - Exponential backoff on HTTP 429 (1s, 2s, 4s, 8s, 16s; max 5 retries),
//     honoring Retry-After when present
//   - Context-aware waits, cancellable mid-backoff
type Client struct {
	baseURL        string
	apiKey         string
	client         *http.Client
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewClient creates a Recording Source API client from configuration.
func NewClient(cfg *config.SourceConfig) *Client {
	return &Client{
		baseURL: cfg.URL,
		apiKey:  cfg.APIKey,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries:     5,
		retryBaseDelay: 1 * time.Second,
	}
}

// doRequestWithRateLimit performs a GET with automatic HTTP 429 handling.
func (c *Client) doRequestWithRateLimit(ctx context.Context, reqURL string) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("X-API-Key", c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("HTTP request failed: %w", err)
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		_ = resp.Body.Close() // retrying anyway

		if attempt == c.maxRetries {
			lastErr = fmt.Errorf("rate limit exceeded after %d retries (HTTP 429)", c.maxRetries)
			break
		}

		// 1s, 2s, 4s, 8s, 16s
		delay := c.retryBaseDelay * time.Duration(1<<uint(attempt))
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
				delay = seconds
			}
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

// readBodyForError reads up to maxErrorBodySize of a response body for
// error reporting.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("\n... (truncated)")...)
	}
	return body
}

// Ping verifies connectivity and credentials against the source API.
// A failure here is fatal to a sync run before any fetch happens.
func (c *Client) Ping(ctx context.Context) error {
	reqURL := fmt.Sprintf("%s/v1/lifelogs?limit=1", c.baseURL)

	resp, err := c.doRequestWithRateLimit(ctx, reqURL)
	if err != nil {
		return fmt.Errorf("failed to ping recording source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("recording source rejected credentials (HTTP %d)", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("recording source ping failed with status: %d", resp.StatusCode)
	}
	return nil
}

// ListRecordings fetches one page of recordings inside [start, end].
// Time filters are optional on the wire; zero times are omitted. The
// service caps limit at 10 per page.
func (c *Client) ListRecordings(ctx context.Context, start, end time.Time, cursor string, limit int) (*Page, error) {
	params := url.Values{}
	if !start.IsZero() {
		params.Set("start", start.UTC().Format(time.RFC3339))
	}
	if !end.IsZero() {
		params.Set("end", end.UTC().Format(time.RFC3339))
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	params.Set("limit", strconv.Itoa(limit))

	reqURL := fmt.Sprintf("%s/v1/lifelogs?%s", c.baseURL, params.Encode())

	resp, err := c.doRequestWithRateLimit(ctx, reqURL)
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := readBodyForError(resp.Body)
		return nil, fmt.Errorf("list recordings failed with status %d: %s", resp.StatusCode, string(body))
	}

	var decoded listResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode recordings response: %w", err)
	}

	return &Page{Items: decoded.Items, NextCursor: decoded.NextCursor}, nil
}
