// Echolog - Voice Recording Ingestion and Memory Pipeline
// Copyright 2026 Avery K. (averyk)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averyk/echolog

// Package models defines the shared domain types flowing through the
// ingestion pipeline: recordings fetched from the pendant source API,
// AI extraction results, durable memory artifacts, and run reports.
package models

import "time"

// PrimaryUserSpeakerID is the sentinel speaker identifier the recording
// source uses for segments spoken by the account owner.
const PrimaryUserSpeakerID = "user"

// Recording is one captured audio session with its speaker-segmented
// transcript. Immutable once fetched; owned by the run that fetched it.
type Recording struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary,omitempty"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Segments  []Segment `json:"segments"`
}

// Segment is a single attributed span of transcript within a recording.
type Segment struct {
	SpeakerID   string    `json:"speakerId"`
	SpeakerName string    `json:"speakerName"`
	Text        string    `json:"text"`
	StartTime   time.Time `json:"startTime,omitempty"`
	EndTime     time.Time `json:"endTime,omitempty"`
}

// MaxTime returns the latest timestamp the recording covers, falling back
// from EndTime to StartTime to segment times. Used for watermark advancement.
func (r *Recording) MaxTime() time.Time {
	max := r.EndTime
	if r.StartTime.After(max) {
		max = r.StartTime
	}
	for i := range r.Segments {
		if r.Segments[i].EndTime.After(max) {
			max = r.Segments[i].EndTime
		}
		if r.Segments[i].StartTime.After(max) {
			max = r.Segments[i].StartTime
		}
	}
	return max
}

// CanonicalSpeaker is a stable, collision-free label assigned to a raw
// speaker identifier within one recording: "You", a real name, or "Speaker N".
type CanonicalSpeaker struct {
	Label     string `json:"label"`
	RawID     string `json:"rawId,omitempty"`
	IsPrimary bool   `json:"isPrimary"`
}

// ExtractionResult is the structured output of the AI extraction call.
// A fallback result carries only the speaker-derived People list.
type ExtractionResult struct {
	Facts  []string         `json:"facts"`
	Tasks  []ExtractedTask  `json:"tasks"`
	Events []ExtractedEvent `json:"events"`
	People []Person         `json:"people"`
}

// ExtractedTask is a single actionable item found in a transcript.
type ExtractedTask struct {
	Description string `json:"description"`
	DueDate     string `json:"due_date,omitempty"`
	AssignedTo  string `json:"assigned_to,omitempty"`
	AssignedBy  string `json:"assigned_by,omitempty"`
	Source      string `json:"source,omitempty"`
	Urgency     string `json:"urgency,omitempty"`

	// CreatedSuccessfully is set by the materializer after the Task
	// Creation Service accepted the task. Only successful tasks count.
	CreatedSuccessfully bool `json:"created_successfully,omitempty"`
}

// ExtractedEvent is a calendar-worthy event found in a transcript.
type ExtractedEvent struct {
	Title string `json:"title"`
	Date  string `json:"date"`
	Time  string `json:"time,omitempty"`
}

// Person is someone mentioned in or speaking during a recording.
type Person struct {
	Name      string `json:"name"`
	Context   string `json:"context,omitempty"`
	IsSpeaker bool   `json:"is_speaker"`
}

// Memory lifecycle states. Memories are soft-deleted only.
const (
	MemoryStatusActive   = "active"
	MemoryStatusArchived = "archived"
)

// Memory types inferred from extracted content.
const (
	MemoryTypeFact          = "fact"
	MemoryTypeNote          = "note"
	MemoryTypeRelationship  = "relationship"
	MemoryTypeImportantDate = "important_date"
	MemoryTypePreference    = "preference"
)

// Memory is a durable artifact materialized from one recording.
type Memory struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Content    string    `json:"content"`
	Type       string    `json:"type"`
	Importance int       `json:"importance"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"createdAt"`
	Status     string    `json:"status"`
}

// SyncReport summarizes one orchestrator run. Per-recording failures are
// reflected in Errors; only fatal configuration or fetch errors escape
// the run as Go errors.
type SyncReport struct {
	AccountID        string    `json:"accountId"`
	Mode             string    `json:"mode"`
	WindowStart      time.Time `json:"windowStart"`
	WindowEnd        time.Time `json:"windowEnd"`
	Fetched          int       `json:"fetched"`
	Processed        int       `json:"processed"`
	AlreadyProcessed int       `json:"alreadyProcessed"`
	Skipped          int       `json:"skipped"`
	Errors           int       `json:"errors"`
	MemoriesCreated  int       `json:"memoriesCreated"`
	TasksCreated     int       `json:"tasksCreated"`
	Duration         int64     `json:"durationMs"`
}

// Efficiency is the share of fetched recordings that actually needed
// processing. Always within [0, 1] when Fetched > 0.
func (r *SyncReport) Efficiency() float64 {
	if r.Fetched == 0 {
		return 0
	}
	pending := r.Fetched - r.AlreadyProcessed
	return float64(pending) / float64(r.Fetched)
}

// PerformanceSample records per-stage wall-clock timings for one recording.
// Append-only with a short TTL in the state store.
type PerformanceSample struct {
	RecordingID  string           `json:"recordingId"`
	StageTimings map[string]int64 `json:"stageTimings"` // stage -> milliseconds
	TotalTime    int64            `json:"totalTime"`
	ProcessedAt  time.Time        `json:"processedAt"`
}

// Sync run states recorded in the state store for HTTP polling.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// SyncRun is the pollable record of an asynchronously triggered sync.
type SyncRun struct {
	ID         string      `json:"id"`
	AccountID  string      `json:"accountId"`
	Mode       string      `json:"mode"`
	Status     string      `json:"status"`
	StartedAt  time.Time   `json:"startedAt"`
	FinishedAt *time.Time  `json:"finishedAt,omitempty"`
	Error      string      `json:"error,omitempty"`
	Report     *SyncReport `json:"report,omitempty"`
}
