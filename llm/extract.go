package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// WorkInstruction is the structured update extracted from a free-form
// email reply. Zero-valued fields were absent from the reply.
type WorkInstruction struct {
	// Status is "" or a canonical work item status such as "completed",
	// "active", "in_progress", or "blocked".
	Status string `json:"status"`

	// Comment is the substantive reply text to attach to the work item.
	Comment string `json:"comment"`

	// TimeSpentHours is hours of effort reported in the reply, 0 if none.
	TimeSpentHours float64 `json:"time_spent_hours"`

	// NextSteps captures any stated follow-up actions.
	NextSteps string `json:"next_steps"`
}

// IsEmpty reports whether the instruction carries no update at all.
func (w WorkInstruction) IsEmpty() bool {
	return w.Status == "" && w.Comment == "" && w.TimeSpentHours == 0 && w.NextSteps == ""
}

const extractSystemPrompt = `You extract work status updates from email replies.
Respond with ONLY a JSON object, no prose, in this shape:
{"status": "", "comment": "", "time_spent_hours": 0, "next_steps": ""}
Rules:
- status must be one of: completed, active, in_progress, blocked, ready, or "" when the reply states no status change
- comment is the substantive reply text, stripped of greetings, signatures, and quoted history
- time_spent_hours is a number of hours of effort the reply reports, or 0
- next_steps captures any stated follow-up actions, or ""`

// statusAliases maps reply status words onto canonical work item
// statuses. Canonical statuses map to themselves; informal words map to
// their nearest canonical status. The mail parser's structured grammar
// normalizes through the same table.
var statusAliases = map[string]string{
	"draft":       "draft",
	"active":      "active",
	"in_progress": "in_progress",
	"completed":   "completed",
	"archived":    "archived",
	"rejected":    "rejected",
	"blocked":     "blocked",
	"ready":       "ready",
	"mitigated":   "mitigated",

	"complete": "completed",
	"done":     "completed",
	"finished": "completed",
	"closed":   "completed",
	"working":  "active",
	"started":  "active",
	"ongoing":  "active",
	"waiting":  "blocked",
	"on_hold":  "blocked",
	"stuck":    "blocked",
}

// NormalizeStatus maps a status word from a reply to a canonical work
// item status. Spaces collapse to underscores, so "in progress" and
// "in_progress" are the same word. Unknown words return the empty string.
func NormalizeStatus(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, " ", "_")
	return statusAliases[s]
}

// ExtractWorkInstruction asks the model to pull a structured instruction
// out of an email reply body. The raw model output is sanitized: unknown
// statuses and negative time reports are dropped rather than propagated.
func (c *Client) ExtractWorkInstruction(ctx context.Context, body string) (*WorkInstruction, error) {
	if strings.TrimSpace(body) == "" {
		return &WorkInstruction{}, nil
	}

	temperature := 0.0
	resp, err := c.Complete(ctx, Request{
		Messages: []Message{
			{Role: "system", Content: extractSystemPrompt},
			{Role: "user", Content: body},
		},
		Temperature: &temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("extract work instruction: %w", err)
	}

	raw := ExtractJSON(resp.Content)
	if raw == "" {
		return nil, fmt.Errorf("extract work instruction: no JSON in model output")
	}

	var instruction WorkInstruction
	if err := json.Unmarshal([]byte(raw), &instruction); err != nil {
		return nil, fmt.Errorf("extract work instruction: parse model output: %w", err)
	}

	instruction.Status = NormalizeStatus(instruction.Status)
	if instruction.TimeSpentHours < 0 {
		instruction.TimeSpentHours = 0
	}
	instruction.Comment = strings.TrimSpace(instruction.Comment)
	instruction.NextSteps = strings.TrimSpace(instruction.NextSteps)

	return &instruction, nil
}
