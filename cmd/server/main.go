// Echolog - Voice Recording Ingestion and Memory Pipeline
// Copyright 2026 Avery K. (averyk)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averyk/echolog

// Package main is the entry point for the Echolog server.
//
// Echolog ingests voice recordings from a wearable pendant's cloud API,
// resolves speakers, extracts structured facts with an AI model, and
// materializes deduplicated memories and action-item tasks.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered settings from defaults, config.yaml, and
//     ECHOLOG_* environment variables (Koanf v2)
//  2. State store: BadgerDB for watermarks, processed markers, and
//     performance samples
//  3. Memory store: DuckDB for materialized memories
//  4. Source client: pendant cloud API with circuit breaker and
//     rate-limited page walker
//  5. Extraction: Anthropic Messages API with defensive JSON parsing
//  6. Notifications (optional): task-created events over NATS
//  7. Supervisor tree: sync scheduler and HTTP server under Suture
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables, config.yaml, built-in defaults.
//
//	export ECHOLOG_SOURCE_URL=https://api.example.com
//	export ECHOLOG_SOURCE_API_KEY=your-api-key
//	export ECHOLOG_AI_API_KEY=your-anthropic-key
//	./echolog
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM: the
// scheduler finishes or abandons the in-flight recording, the HTTP
// server drains connections, and both stores are closed.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/averyk/echolog/internal/api"
	"github.com/averyk/echolog/internal/config"
	"github.com/averyk/echolog/internal/extract"
	"github.com/averyk/echolog/internal/logging"
	"github.com/averyk/echolog/internal/memory"
	"github.com/averyk/echolog/internal/notify"
	"github.com/averyk/echolog/internal/source"
	"github.com/averyk/echolog/internal/speaker"
	"github.com/averyk/echolog/internal/statestore"
	"github.com/averyk/echolog/internal/supervisor"
	echosync "github.com/averyk/echolog/internal/sync"
	"github.com/averyk/echolog/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Config errors use the default logger since logging settings
		// were not loaded.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("source_url", cfg.Source.URL).
		Str("mode", cfg.Sync.Mode).
		Dur("interval", cfg.Sync.Interval).
		Msg("Starting Echolog")

	state, err := statestore.Open(statestore.Options{
		Dir:      cfg.State.Dir,
		InMemory: cfg.State.InMemory,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open state store")
	}
	defer func() {
		if err := state.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing state store")
		}
	}()

	memStore, err := memory.OpenStore(cfg.Memory.Path)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open memory store")
	}
	defer func() {
		if err := memStore.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing memory store")
		}
	}()

	// Source client behind a circuit breaker so a pendant API outage
	// degrades to fast failures instead of piling up timeouts.
	client := source.NewBreakerClient(source.NewClient(&cfg.Source))
	if err := client.Ping(context.Background()); err != nil {
		logging.Warn().Err(err).Msg("Recording source unreachable at startup (will retry)")
	} else {
		logging.Info().Msg("Connected to recording source")
	}
	walker := source.NewWalker(client, &cfg.Source)

	resolver := speaker.NewResolver(&cfg.Speaker)
	adapter := extract.NewAdapter(extract.NewAnthropicCompleter(&cfg.AI), resolver)

	var taskCreator tasks.Creator
	if cfg.Tasks.URL != "" {
		taskCreator = tasks.NewClient(&cfg.Tasks)
	}

	var notifier notify.Notifier = notify.Noop{}
	if cfg.NATS.Enabled {
		publisher, err := notify.NewPublisher(&cfg.NATS)
		if err != nil {
			logging.Warn().Err(err).Msg("NATS unavailable, task notifications disabled")
		} else {
			notifier = publisher
			defer func() {
				if err := publisher.Close(); err != nil {
					logging.Error().Err(err).Msg("Error closing NATS publisher")
				}
			}()
			logging.Info().Str("url", cfg.NATS.URL).Msg("NATS notifications enabled")
		}
	}

	materializer := memory.NewMaterializer(memStore, state, &cfg.Quality, taskCreator, notifier, cfg.Sync.ProcessedTTL)
	manager := echosync.NewManager(&cfg.Sync, client, walker, state, resolver, adapter, materializer)

	handler := api.NewHandler(cfg, manager, memStore)
	router := api.NewRouter(handler, nil)
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bridge zerolog to slog for sutureslog.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddPipelineService(supervisor.NewSchedulerService(manager))
	tree.AddAPIService(supervisor.NewHTTPServerService(server, 10*time.Second))

	errCh := make(chan error, 1)
	go func() {
		errCh <- tree.Serve(ctx)
	}()

	logging.Info().Str("addr", cfg.Addr()).Msg("Echolog started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Shutting down")
		cancel()
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree exited with error")
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Fatal().Err(err).Msg("Supervisor tree exited unexpectedly")
		}
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", fmt.Sprintf("%v", svc.Service)).Msg("Service failed to stop in time")
		}
	}

	logging.Info().Msg("Echolog stopped")
}
