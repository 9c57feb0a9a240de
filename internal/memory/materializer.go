// Echolog - Voice Recording Ingestion and Memory Pipeline
// Copyright 2026 Avery K. (averyk)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averyk/echolog

package memory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/averyk/echolog/internal/config"
	"github.com/averyk/echolog/internal/logging"
	"github.com/averyk/echolog/internal/metrics"
	"github.com/averyk/echolog/internal/models"
	"github.com/averyk/echolog/internal/notify"
	"github.com/averyk/echolog/internal/statestore"
	"github.com/averyk/echolog/internal/tasks"
)

// memorySource tags memories created by this pipeline, scoping the
// content-level dedup guarantee to pipeline-created artifacts.
const memorySource = "recording_pipeline"

// recentDedupWindow bounds how many recent memories of the same type the
// secondary dedup check inspects.
const recentDedupWindow = 20

// MaterializationResult summarizes one recording's materialization.
type MaterializationResult struct {
	Skipped        bool
	SkipReason     SkipReason
	MemoryCreated  bool
	MemoryUpdated  bool
	MemoryID       string
	TasksCreated   int
	TasksFailed    int
	CreatedTaskIDs []string
}

// Materializer turns extraction results into persisted Memory and Task
// artifacts, idempotently. Two layers keep retries safe: a fast
// per-recording dedup marker in the state store, and a content-level
// duplicate check against the user's memories.
type Materializer struct {
	store    *Store
	state    *statestore.Store
	filter   *QualityFilter
	tasks    tasks.Creator
	notifier notify.Notifier

	markerTTL time.Duration

	// dedupEnabled can be cleared by callers that explicitly want
	// duplicate memories (bulk imports, tests).
	dedupEnabled bool
}

// NewMaterializer wires the materializer with its collaborators.
func NewMaterializer(store *Store, state *statestore.Store, qcfg *config.QualityConfig, taskCreator tasks.Creator, notifier notify.Notifier, markerTTL time.Duration) *Materializer {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Materializer{
		store:        store,
		state:        state,
		filter:       NewQualityFilter(qcfg),
		tasks:        taskCreator,
		notifier:     notifier,
		markerTTL:    markerTTL,
		dedupEnabled: true,
	}
}

// SetDeduplication toggles memory dedup. On by default; callers bypass it
// explicitly and accept duplicate artifacts when they do.
func (m *Materializer) SetDeduplication(enabled bool) {
	m.dedupEnabled = enabled
}

// Materialize filters, consolidates, and persists one recording's
// extraction. Task-creation failures are logged and excluded from counts
// but never abort memory materialization.
func (m *Materializer) Materialize(ctx context.Context, userID, recordingID, title, transcript string, extraction *models.ExtractionResult) (*MaterializationResult, error) {
	result := &MaterializationResult{}

	if reason := m.filter.ShouldSkip(title, transcript, extraction); reason != SkipNone {
		logging.Debug().Str("recording", recordingID).Str("reason", string(reason)).Msg("Skipping low-quality recording")
		metrics.SyncRecordingsSkipped.WithLabelValues("low_quality").Inc()
		result.Skipped = true
		result.SkipReason = reason
		return result, nil
	}

	if err := m.materializeMemory(ctx, userID, recordingID, title, extraction, result); err != nil {
		return result, err
	}

	// Tasks come second so a task-service outage cannot cost us the memory.
	m.materializeTasks(ctx, userID, recordingID, extraction, result)

	return result, nil
}

// materializeMemory creates (or dedups) the consolidated memory for a
// recording.
func (m *Materializer) materializeMemory(ctx context.Context, userID, recordingID, title string, extraction *models.ExtractionResult, result *MaterializationResult) error {
	facts := m.filter.TopFacts(extraction.Facts)
	people := m.filter.TopPeople(extraction.People)
	content := buildContent(title, facts, people, len(extraction.Tasks))
	if content == "" {
		result.Skipped = true
		result.SkipReason = SkipEmpty
		return nil
	}
	memType := InferType(content)

	// Fast path: the per-recording marker says this memory already exists.
	// SetNX doubles as the race guard between concurrent runs.
	markerKey := statestore.MemDedupPrefix + userID + ":" + recordingID
	if m.dedupEnabled {
		created, err := m.state.SetNX(ctx, markerKey, []byte("1"), m.markerTTL)
		if err != nil {
			return fmt.Errorf("memory dedup marker check: %w", err)
		}
		if !created {
			logging.Debug().Str("recording", recordingID).Msg("Memory already materialized for recording")
			metrics.MemoriesDeduplicated.WithLabelValues("marker").Inc()
			return nil
		}
	}

	if m.dedupEnabled {
		duplicate, improved, err := m.checkContentDuplicate(ctx, userID, memType, content)
		if err != nil {
			logging.Warn().Err(err).Str("recording", recordingID).Msg("Content dedup check failed, creating anyway")
		} else if duplicate != nil {
			if improved {
				if err := m.store.UpdateContent(ctx, duplicate.ID, content); err != nil {
					return fmt.Errorf("update duplicate memory: %w", err)
				}
				result.MemoryUpdated = true
				result.MemoryID = duplicate.ID
				logging.Info().Str("memory", duplicate.ID).Msg("Updated existing memory in place")
			} else {
				metrics.MemoriesDeduplicated.WithLabelValues("content").Inc()
				logging.Debug().Str("recording", recordingID).Msg("Duplicate memory content, skipping create")
			}
			return nil
		}
	}

	created, err := m.store.Create(ctx, userID, content, memType, memorySource, importanceFor(facts, len(extraction.Tasks)))
	if err != nil {
		// Release the marker so the next retry is not blocked by a memory
		// that never got written.
		if m.dedupEnabled {
			if delErr := m.state.Delete(ctx, markerKey); delErr != nil {
				logging.Warn().Err(delErr).Str("recording", recordingID).Msg("Failed to release dedup marker")
			}
		}
		return fmt.Errorf("create memory: %w", err)
	}
	metrics.MemoriesCreated.Inc()
	result.MemoryCreated = true
	result.MemoryID = created.ID
	logging.Info().Str("memory", created.ID).Str("type", memType).Str("recording", recordingID).Msg("Memory created")
	return nil
}

// checkContentDuplicate looks for an existing active memory this content
// duplicates or strictly improves. Deterministic containment on normalized
// content, rather than an AI judge: equal content is a duplicate, a strict
// superset of an existing memory's content is an improvement.
func (m *Materializer) checkContentDuplicate(ctx context.Context, userID, memType, content string) (dup *models.Memory, improved bool, err error) {
	existing, err := m.store.FindActiveDuplicate(ctx, userID, memorySource, content)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	recent, err := m.store.ListRecent(ctx, userID, memType, recentDedupWindow)
	if err != nil {
		return nil, false, err
	}
	normalized := NormalizeContent(content)
	for i := range recent {
		existingNorm := NormalizeContent(recent[i].Content)
		if existingNorm == normalized {
			return &recent[i], false, nil
		}
		if len(normalized) > len(existingNorm) && strings.Contains(normalized, existingNorm) {
			return &recent[i], true, nil
		}
	}
	return nil, false, nil
}

// materializeTasks attempts creation of every extracted task with a
// non-empty description. A per-recording marker prevents re-attempting
// tasks already materialized on a retry while still allowing genuinely
// new tasks discovered on reprocessing.
func (m *Materializer) materializeTasks(ctx context.Context, userID, recordingID string, extraction *models.ExtractionResult, result *MaterializationResult) {
	if len(extraction.Tasks) == 0 {
		return
	}
	if m.tasks == nil {
		logging.Debug().Str("recording", recordingID).Msg("No task service configured, skipping task creation")
		return
	}

	doneKey := statestore.TaskDonePrefix + recordingID
	var done map[string]bool
	if err := m.state.GetJSON(ctx, doneKey, &done); err != nil && !errors.Is(err, statestore.ErrKeyNotFound) {
		logging.Warn().Err(err).Str("recording", recordingID).Msg("Task marker read failed, proceeding without")
	}
	if done == nil {
		done = make(map[string]bool)
	}

	for i := range extraction.Tasks {
		task := &extraction.Tasks[i]
		description := strings.TrimSpace(task.Description)
		if description == "" {
			continue
		}
		if done[NormalizeContent(description)] {
			task.CreatedSuccessfully = true
			continue
		}

		taskID, err := m.tasks.Create(ctx, description, taskNotes(task, recordingID), task.DueDate)
		if err != nil {
			metrics.TaskCreationErrors.Inc()
			logging.Warn().Err(err).Str("recording", recordingID).Str("task", description).Msg("Task creation failed (continuing)")
			result.TasksFailed++
			continue
		}

		task.CreatedSuccessfully = true
		done[NormalizeContent(description)] = true
		result.TasksCreated++
		result.CreatedTaskIDs = append(result.CreatedTaskIDs, taskID)
		metrics.TasksCreated.Inc()

		m.notifier.TaskCreated(ctx, userID, taskID, *task)
	}

	if err := m.state.SetJSON(ctx, doneKey, done, m.markerTTL); err != nil {
		logging.Warn().Err(err).Str("recording", recordingID).Msg("Task marker write failed")
	}
}

// taskNotes renders the supplementary notes attached to a created task.
func taskNotes(task *models.ExtractedTask, recordingID string) string {
	var sb strings.Builder
	sb.WriteString("From recording ")
	sb.WriteString(recordingID)
	if task.AssignedBy != "" {
		sb.WriteString("\nAssigned by: ")
		sb.WriteString(task.AssignedBy)
	}
	if task.AssignedTo != "" {
		sb.WriteString("\nAssigned to: ")
		sb.WriteString(task.AssignedTo)
	}
	if task.Urgency != "" {
		sb.WriteString("\nUrgency: ")
		sb.WriteString(task.Urgency)
	}
	return sb.String()
}

// buildContent consolidates one recording into a single memory content
// string: topic, involved people, and task count. One memory per
// recording, not one per fact.
func buildContent(title string, facts []string, people []models.Person, taskCount int) string {
	var parts []string

	if t := strings.TrimSpace(title); t != "" {
		parts = append(parts, "Conversation: "+t)
	}
	for _, fact := range facts {
		parts = append(parts, fact)
	}
	if len(people) > 0 {
		names := make([]string, 0, len(people))
		for _, p := range people {
			if p.Context != "" {
				names = append(names, p.Name+" ("+p.Context+")")
			} else {
				names = append(names, p.Name)
			}
		}
		parts = append(parts, "People: "+strings.Join(names, ", "))
	}
	if taskCount > 0 {
		parts = append(parts, "Action items: "+strconv.Itoa(taskCount))
	}

	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ". ")
}

// importanceFor scores a memory 1-10 from its substance.
func importanceFor(facts []string, taskCount int) int {
	importance := 4 + len(facts)
	if taskCount > 0 {
		importance++
	}
	if importance > 10 {
		importance = 10
	}
	return importance
}
