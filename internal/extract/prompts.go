// Echolog - Voice Recording Ingestion and Memory Pipeline
// Copyright 2026 Avery K. (averyk)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averyk/echolog

package extract

import (
	"fmt"
	"strings"
)

// extractionSchema is the JSON shape the extraction service is asked to
// produce. The parser tolerates deviations; this is the contract we state
// in the prompt.
const extractionSchema = `{
  "facts": ["specific, useful fact"],
  "tasks": [{"description": "...", "due_date": null, "assigned_to": "...", "assigned_by": "...", "source": "natural_language", "urgency": "medium"}],
  "events": [{"title": "...", "date": "YYYY-MM-DD", "time": null}],
  "people": [{"name": "...", "context": "...", "is_speaker": true}]
}`

// multiSpeakerTemplate frames the transcript as a conversation between
// distinct speakers. Only the framing differs from the single-speaker
// template; the output schema is identical.
const multiSpeakerTemplate = `You are analyzing a voice recording of a conversation between multiple people. Speaker labels are reliable: "You" is the device owner.

Title: %s
Summary: %s

Transcript:
%s

Extract durable information worth remembering. Respond with exactly one JSON object in this shape, and nothing else:
%s

Only include facts that are specific and useful later. Only include tasks that are clear commitments or requests. Mark urgency high only for explicit deadlines within days.`

// singleSpeakerTemplate frames the transcript as the owner's own notes.
const singleSpeakerTemplate = `You are analyzing a voice recording of a single person (the device owner, labeled "You") thinking out loud or dictating notes.

Title: %s
Summary: %s

Transcript:
%s

Extract durable information worth remembering. Respond with exactly one JSON object in this shape, and nothing else:
%s

Only include facts that are specific and useful later. Only include tasks that are clear commitments. Mark urgency high only for explicit deadlines within days.`

// buildPrompt selects the template by speaker count and fills it in.
func buildPrompt(title, summary, transcript string, multiSpeaker bool) string {
	if strings.TrimSpace(summary) == "" {
		summary = "(none)"
	}
	template := singleSpeakerTemplate
	if multiSpeaker {
		template = multiSpeakerTemplate
	}
	return fmt.Sprintf(template, title, summary, transcript, extractionSchema)
}
