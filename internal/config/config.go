// Echolog - Voice Recording Ingestion and Memory Pipeline
// Copyright 2026 Avery K. (averyk)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averyk/echolog

// Package config loads and validates Echolog configuration using koanf.
//
// Configuration is layered, later layers overriding earlier ones:
//  1. Struct defaults (defaultConfig)
//  2. YAML config file (config.yaml, or ECHOLOG_CONFIG_PATH)
//  3. Environment variables with the ECHOLOG_ prefix
//     (ECHOLOG_SOURCE_API_KEY -> source.api_key)
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the Echolog server.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Logging LoggingConfig `koanf:"logging"`
	Source  SourceConfig  `koanf:"source"`
	Sync    SyncConfig    `koanf:"sync"`
	AI      AIConfig      `koanf:"ai"`
	Tasks   TasksConfig   `koanf:"tasks"`
	NATS    NATSConfig    `koanf:"nats"`
	State   StateConfig   `koanf:"state"`
	Memory  MemoryConfig  `koanf:"memory"`
	Speaker SpeakerConfig `koanf:"speaker"`
	Quality QualityConfig `koanf:"quality"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// SourceConfig holds Recording Source API settings.
type SourceConfig struct {
	URL    string `koanf:"url"`
	APIKey string `koanf:"api_key"`

	// PageSize is the per-page fetch limit. The reference deployment caps
	// pages at 10 items.
	PageSize int `koanf:"page_size"`

	// MaxPages bounds a single fetch walk regardless of cursors returned.
	MaxPages int `koanf:"max_pages"`

	// PageRetries is the per-page retry budget for transient errors.
	PageRetries int `koanf:"page_retries"`

	// PageDelay is the pause between page fetches.
	PageDelay time.Duration `koanf:"page_delay"`
}

// SyncConfig holds orchestrator settings.
type SyncConfig struct {
	// AccountID identifies the account whose watermark this instance owns.
	AccountID string `koanf:"account_id"`

	// UserID is the owner of materialized memories and tasks.
	UserID string `koanf:"user_id"`

	// Interval between scheduled sync runs. Zero disables the scheduler.
	Interval time.Duration `koanf:"interval"`

	// Mode used by scheduled runs: today, yesterday, hours_N, all.
	Mode string `koanf:"mode"`

	// RecordingDelay is the pause between recordings within a run.
	RecordingDelay time.Duration `koanf:"recording_delay"`

	// InitialSync runs one sync immediately on startup.
	InitialSync bool `koanf:"initial_sync"`

	// ProcessedTTL bounds how long per-recording processed markers live.
	ProcessedTTL time.Duration `koanf:"processed_ttl"`

	// PerfSampleTTL bounds how long performance samples live.
	PerfSampleTTL time.Duration `koanf:"perf_sample_ttl"`

	// HistoryStart is the window start used by mode "all". Y2K rather than
	// the Unix epoch because some APIs mishandle pre-2000 dates.
	HistoryStart time.Time `koanf:"-"`
}

// AIConfig holds AI extraction service settings.
type AIConfig struct {
	APIKey    string `koanf:"api_key"`
	Model     string `koanf:"model"`
	MaxTokens int    `koanf:"max_tokens"`
}

// TasksConfig holds Task Creation Service settings.
type TasksConfig struct {
	URL    string `koanf:"url"`
	APIKey string `koanf:"api_key"`
}

// NATSConfig holds notification sink settings. Notifications are
// best-effort; the pipeline runs fine with NATS disabled.
type NATSConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
	Subject string `koanf:"subject"`
}

// StateConfig holds BadgerDB state store settings.
type StateConfig struct {
	Dir      string `koanf:"dir"`
	InMemory bool   `koanf:"in_memory"`
}

// MemoryConfig holds DuckDB memory store settings.
type MemoryConfig struct {
	Path string `koanf:"path"`
}

// SpeakerConfig holds the speaker resolver rule tables. Keeping these in
// configuration rather than inline branches makes the heuristics tunable
// without code changes.
type SpeakerConfig struct {
	// PrimaryID is the sentinel speaker identifier for the account owner.
	PrimaryID string `koanf:"primary_id"`

	// BannedNames are speaker names treated as unidentified.
	BannedNames []string `koanf:"banned_names"`
}

// QualityConfig holds the materializer quality-filter rule tables.
type QualityConfig struct {
	// TitleDenylist skips recordings whose title matches a generic,
	// low-information phrasing.
	TitleDenylist []string `koanf:"title_denylist"`

	// FactBoilerplate filters out generic or political boilerplate facts.
	FactBoilerplate []string `koanf:"fact_boilerplate"`

	// MaxFacts caps facts kept per recording.
	MaxFacts int `koanf:"max_facts"`

	// MaxPeople caps people kept per recording.
	MaxPeople int `koanf:"max_people"`
}

// defaultConfig returns a Config with all defaults applied. Defaults are
// loaded first, then overridden by the config file and environment.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8580,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Source: SourceConfig{
			URL:         "",
			APIKey:      "",
			PageSize:    10,
			MaxPages:    100,
			PageRetries: 3,
			PageDelay:   500 * time.Millisecond,
		},
		Sync: SyncConfig{
			AccountID:      "default",
			UserID:         "default",
			Interval:       15 * time.Minute,
			Mode:           "today",
			RecordingDelay: time.Second,
			InitialSync:    true,
			ProcessedTTL:   30 * 24 * time.Hour,
			PerfSampleTTL:  24 * time.Hour,
			HistoryStart:   time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		AI: AIConfig{
			APIKey:    "",
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 2048,
		},
		Tasks: TasksConfig{
			URL:    "",
			APIKey: "",
		},
		NATS: NATSConfig{
			Enabled: false,
			URL:     "nats://127.0.0.1:4222",
			Subject: "echolog.tasks.created",
		},
		State: StateConfig{
			Dir: "/data/echolog/state",
		},
		Memory: MemoryConfig{
			Path: "/data/echolog/memories.db",
		},
		Speaker: SpeakerConfig{
			PrimaryID: "user",
			BannedNames: []string{
				"",
				"unknown",
				"unknown speaker",
				"unidentified",
				"unidentified speaker",
			},
		},
		Quality: QualityConfig{
			TitleDenylist: []string{
				"a brief, unclear exchange",
				"brief conversation",
				"unclear audio",
				"background noise",
				"no meaningful content",
				"silence",
			},
			FactBoilerplate: []string{
				"the conversation",
				"they discussed",
				"politics",
				"the weather",
				"general discussion",
			},
			MaxFacts:  3,
			MaxPeople: 3,
		},
	}
}

// Validate checks the configuration for values that would make the
// pipeline misbehave at runtime, returning actionable errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Source.PageSize < 1 || c.Source.PageSize > 10 {
		return fmt.Errorf("source.page_size must be 1-10 (service cap), got %d", c.Source.PageSize)
	}
	if c.Source.MaxPages < 1 {
		return fmt.Errorf("source.max_pages must be positive, got %d", c.Source.MaxPages)
	}
	if c.Source.PageRetries < 0 {
		return fmt.Errorf("source.page_retries must be non-negative, got %d", c.Source.PageRetries)
	}
	if c.Sync.AccountID == "" {
		return fmt.Errorf("sync.account_id must not be empty")
	}
	if c.Sync.UserID == "" {
		return fmt.Errorf("sync.user_id must not be empty")
	}
	if c.Sync.ProcessedTTL <= 0 {
		return fmt.Errorf("sync.processed_ttl must be positive, got %v", c.Sync.ProcessedTTL)
	}
	if c.Speaker.PrimaryID == "" {
		return fmt.Errorf("speaker.primary_id must not be empty")
	}
	if c.Quality.MaxFacts < 1 {
		return fmt.Errorf("quality.max_facts must be positive, got %d", c.Quality.MaxFacts)
	}
	if c.Quality.MaxPeople < 1 {
		return fmt.Errorf("quality.max_people must be positive, got %d", c.Quality.MaxPeople)
	}
	if c.AI.MaxTokens < 256 {
		return fmt.Errorf("ai.max_tokens must be at least 256, got %d", c.AI.MaxTokens)
	}
	return nil
}

// Addr returns the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
