// Echolog - Voice Recording Ingestion and Memory Pipeline
// Copyright 2026 Avery K. (averyk)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averyk/echolog

// Package memory persists the durable Memory artifacts the pipeline
// materializes from recordings, and hosts the quality filter and
// materializer that decide what is worth keeping.
//
// Storage is DuckDB via database/sql. Memories are soft-deleted only:
// status moves active -> archived, rows are never physically removed.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"

	"github.com/averyk/echolog/internal/models"
)

// ErrNotFound is returned when a memory does not exist.
var ErrNotFound = errors.New("memory: not found")

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id         VARCHAR PRIMARY KEY,
	user_id    VARCHAR NOT NULL,
	content    VARCHAR NOT NULL,
	normalized VARCHAR NOT NULL,
	type       VARCHAR NOT NULL,
	importance INTEGER NOT NULL DEFAULT 5,
	source     VARCHAR NOT NULL,
	created_at TIMESTAMP NOT NULL,
	status     VARCHAR NOT NULL DEFAULT 'active'
);
CREATE INDEX IF NOT EXISTS idx_memories_user_type ON memories (user_id, type, status);
CREATE INDEX IF NOT EXISTS idx_memories_dedup ON memories (user_id, source, normalized);
`

// Store is the DuckDB-backed memory store. Safe for concurrent use; the
// underlying *sql.DB pools connections.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the memory database at path. ":memory:" is
// accepted for tests.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb at %q: %w", path, err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply memory schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// NormalizeContent canonicalizes content for dedup comparison: lowercase,
// collapsed whitespace, trailing punctuation dropped.
func NormalizeContent(content string) string {
	normalized := strings.ToLower(strings.TrimSpace(content))
	normalized = strings.Join(strings.Fields(normalized), " ")
	return strings.TrimRight(normalized, ".!? ")
}

// Create inserts a new active memory and returns it with its assigned ID.
func (s *Store) Create(ctx context.Context, userID, content, memType, source string, importance int) (*models.Memory, error) {
	m := &models.Memory{
		ID:         uuid.NewString(),
		UserID:     userID,
		Content:    content,
		Type:       memType,
		Importance: importance,
		Source:     source,
		CreatedAt:  time.Now().UTC(),
		Status:     models.MemoryStatusActive,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (id, user_id, content, normalized, type, importance, source, created_at, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.UserID, m.Content, NormalizeContent(m.Content), m.Type, m.Importance, m.Source, m.CreatedAt, m.Status)
	if err != nil {
		return nil, fmt.Errorf("insert memory: %w", err)
	}
	return m, nil
}

// FindActiveDuplicate returns an active memory for the same user, same
// source, and equivalent normalized content, or ErrNotFound. This is the
// content-level dedup guarantee: no two such active memories may coexist.
func (s *Store) FindActiveDuplicate(ctx context.Context, userID, source, content string) (*models.Memory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, content, type, importance, source, created_at, status
		 FROM memories
		 WHERE user_id = ? AND source = ? AND normalized = ? AND status = ?
		 LIMIT 1`,
		userID, source, NormalizeContent(content), models.MemoryStatusActive)
	return scanMemory(row)
}

// ListRecent returns the newest active memories of one type for a user.
func (s *Store) ListRecent(ctx context.Context, userID, memType string, limit int) ([]models.Memory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, content, type, importance, source, created_at, status
		 FROM memories
		 WHERE user_id = ? AND type = ? AND status = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		userID, memType, models.MemoryStatusActive, limit)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var memories []models.Memory
	for rows.Next() {
		var m models.Memory
		if err := rows.Scan(&m.ID, &m.UserID, &m.Content, &m.Type, &m.Importance, &m.Source, &m.CreatedAt, &m.Status); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

// ListForUser returns the newest active memories for a user across types.
func (s *Store) ListForUser(ctx context.Context, userID string, limit int) ([]models.Memory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, content, type, importance, source, created_at, status
		 FROM memories
		 WHERE user_id = ? AND status = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		userID, models.MemoryStatusActive, limit)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var memories []models.Memory
	for rows.Next() {
		var m models.Memory
		if err := rows.Scan(&m.ID, &m.UserID, &m.Content, &m.Type, &m.Importance, &m.Source, &m.CreatedAt, &m.Status); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

// UpdateContent replaces a memory's content in place, used when a new
// extraction strictly improves an existing memory instead of duplicating it.
func (s *Store) UpdateContent(ctx context.Context, id, content string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE memories SET content = ?, normalized = ? WHERE id = ?`,
		content, NormalizeContent(content), id)
	if err != nil {
		return fmt.Errorf("update memory %s: %w", id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Archive soft-deletes a memory. Archived memories never return to active.
func (s *Store) Archive(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE memories SET status = ? WHERE id = ? AND status = ?`,
		models.MemoryStatusArchived, id, models.MemoryStatusActive)
	if err != nil {
		return fmt.Errorf("archive memory %s: %w", id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// scanMemory scans a single-row query result.
func scanMemory(row *sql.Row) (*models.Memory, error) {
	var m models.Memory
	err := row.Scan(&m.ID, &m.UserID, &m.Content, &m.Type, &m.Importance, &m.Source, &m.CreatedAt, &m.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan memory: %w", err)
	}
	return &m, nil
}
