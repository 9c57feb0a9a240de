// Echolog - Voice Recording Ingestion and Memory Pipeline
// Copyright 2026 Avery K. (averyk)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averyk/echolog

// Package tasks is the client for the external Task Creation Service.
// Task creation is best-effort: callers log failures and keep going, and
// only successfully created tasks are counted by the pipeline.
package tasks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/averyk/echolog/internal/config"
)

// Creator is the Task Creation Service boundary, implemented by Client in
// production and by stubs in tests.
type Creator interface {
	Create(ctx context.Context, title, notes, dueDate string) (string, error)
}

// Client talks to the Task Creation Service over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a task service client from configuration.
func NewClient(cfg *config.TasksConfig) *Client {
	return &Client{
		baseURL: cfg.URL,
		apiKey:  cfg.APIKey,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type createRequest struct {
	Title   string `json:"title"`
	Notes   string `json:"notes,omitempty"`
	DueDate string `json:"due_date,omitempty"`
}

type createResponse struct {
	ID string `json:"id"`
}

// Create submits a task and returns its service-assigned identifier.
func (c *Client) Create(ctx context.Context, title, notes, dueDate string) (string, error) {
	payload, err := json.Marshal(createRequest{Title: title, Notes: notes, DueDate: dueDate})
	if err != nil {
		return "", fmt.Errorf("marshal task: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/tasks", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("task creation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("task creation failed with status %d: %s", resp.StatusCode, string(body))
	}

	var decoded createResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode task response: %w", err)
	}
	if decoded.ID == "" {
		return "", fmt.Errorf("task service returned empty id")
	}
	return decoded.ID, nil
}
