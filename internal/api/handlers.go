// Echolog - Voice Recording Ingestion and Memory Pipeline
// Copyright 2026 Avery K. (averyk)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averyk/echolog

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/averyk/echolog/internal/config"
	"github.com/averyk/echolog/internal/logging"
	"github.com/averyk/echolog/internal/memory"
	echosync "github.com/averyk/echolog/internal/sync"
)

// Handler holds the dependencies for all HTTP handlers.
type Handler struct {
	cfg      *config.Config
	manager  *echosync.Manager
	memories *memory.Store
	started  time.Time
}

// NewHandler creates the handler set.
func NewHandler(cfg *config.Config, manager *echosync.Manager, memories *memory.Store) *Handler {
	return &Handler{
		cfg:      cfg,
		manager:  manager,
		memories: memories,
		started:  time.Now(),
	}
}

// syncRequest is the POST /sync body. Both fields are optional and
// default to the configured account and mode.
type syncRequest struct {
	AccountID string `json:"account_id"`
	Mode      string `json:"mode"`
}

// TriggerSync starts an asynchronous sync and returns a pollable run ID.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req syncRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			rw.BadRequest("invalid request body: " + err.Error())
			return
		}
	}
	if req.AccountID == "" {
		req.AccountID = h.cfg.Sync.AccountID
	}
	if req.Mode == "" {
		req.Mode = h.cfg.Sync.Mode
	}

	runID, err := h.manager.RunAsync(r.Context(), req.AccountID, req.Mode)
	if err != nil {
		if errors.Is(err, echosync.ErrUnknownMode) {
			rw.BadRequest(err.Error())
			return
		}
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to start sync run")
		rw.InternalError("failed to start sync run")
		return
	}

	rw.Accepted(map[string]string{"run_id": runID})
}

// SyncRun returns the stored record for a sync run.
func (h *Handler) SyncRun(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	runID := chi.URLParam(r, "runID")
	run, err := h.manager.GetRun(r.Context(), runID)
	if errors.Is(err, echosync.ErrRunNotFound) {
		rw.NotFound("no sync run with ID " + runID)
		return
	}
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("run", runID).Msg("Failed to load sync run")
		rw.InternalError("failed to load sync run")
		return
	}

	rw.Success(run)
}

// Performance returns aggregated per-stage timings over a window.
// Query param "hours" selects the window, default 24, max 720.
func (h *Handler) Performance(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 720 {
			rw.BadRequest("hours must be an integer between 1 and 720")
			return
		}
		hours = n
	}

	report, err := h.manager.Perf().Query(r.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to query performance samples")
		rw.InternalError("failed to query performance samples")
		return
	}

	rw.Success(report)
}

// Memories lists the user's recent memories. Query param "limit"
// defaults to 50, max 500.
func (h *Handler) Memories(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			rw.BadRequest("limit must be an integer between 1 and 500")
			return
		}
		limit = n
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = h.cfg.Sync.UserID
	}

	list, err := h.memories.ListForUser(r.Context(), userID, limit)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to list memories")
		rw.InternalError("failed to list memories")
		return
	}

	rw.Success(map[string]interface{}{
		"memories": list,
		"count":    len(list),
	})
}

// healthStatus is the GET /health payload.
type healthStatus struct {
	Status        string    `json:"status"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Watermark     time.Time `json:"watermark,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Health reports liveness plus the account watermark so operators can
// see sync lag at a glance.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	status := healthStatus{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Timestamp:     time.Now(),
	}

	watermark, err := h.manager.Watermark(r.Context(), h.cfg.Sync.AccountID)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Health check could not read watermark")
		status.Status = "degraded"
	} else {
		status.Watermark = watermark
	}

	if _, err := h.memories.ListForUser(r.Context(), h.cfg.Sync.UserID, 1); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Health check could not reach memory store")
		status.Status = "degraded"
	}

	rw.Success(status)
}
