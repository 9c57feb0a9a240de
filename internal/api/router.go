// Echolog - Voice Recording Ingestion and Memory Pipeline
// Copyright 2026 Avery K. (averyk)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averyk/echolog

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router wires handlers into the HTTP mux.
type Router struct {
	handler        *Handler
	allowedOrigins []string
}

// NewRouter creates the router.
func NewRouter(handler *Handler, allowedOrigins []string) *Router {
	return &Router{handler: handler, allowedOrigins: allowedOrigins}
}

// Setup builds the full route tree.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(RequestLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(CORS(router.allowedOrigins))

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(RateLimitHealth())
		r.Use(SecurityHeaders())
		r.Get("/", router.handler.Health)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(SecurityHeaders())

		r.With(RateLimitSync()).Post("/sync", router.handler.TriggerSync)

		r.Group(func(r chi.Router) {
			r.Use(RateLimitRead())
			r.Get("/sync/{runID}", router.handler.SyncRun)
			r.Get("/performance", router.handler.Performance)
			r.Get("/memories", router.handler.Memories)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
