// Package sprint implements the sprint/backlog coordinator: the sprint
// state machine, at-most-one-active enforcement per project, the mutual
// exclusion between backlog and sprint placement of a task, capacity
// admission, velocity, and burndown.
package sprint

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/c360studio/traceline/graph"
)

// Status is a sprint lifecycle state. Transitions only move forward:
// planning to active to completed, or planning to cancelled.
type Status string

const (
	StatusPlanning  Status = "planning"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known sprint status.
func (s Status) Valid() bool {
	switch s {
	case StatusPlanning, StatusActive, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Graph labels and relationship types used by the coordinator.
const (
	LabelSprint  = "Sprint"
	LabelBacklog = "Backlog"

	RelAssignedToSprint = "ASSIGNED_TO_SPRINT"
	RelInBacklog        = "IN_BACKLOG"
)

var (
	// ErrNotFound indicates the sprint or backlog does not exist.
	ErrNotFound = errors.New("sprint not found")
	// ErrTaskNotInSprint indicates the task carries no assignment edge to
	// the sprint.
	ErrTaskNotInSprint = errors.New("task not assigned to sprint")
)

// Conflict types carried by ConflictError.
const (
	ConflictActiveSprintExists = "active_sprint_exists"
	ConflictCapacityExceeded   = "capacity_exceeded"
	ConflictInvalidTransition  = "invalid_transition"
)

// ConflictError reports a state conflict: a second active sprint, a
// capacity overrun, or a backward lifecycle transition. Type is
// machine-readable; Message is for humans.
type ConflictError struct {
	Type    string `json:"conflict_type"`
	Message string `json:"message"`
}

func (e *ConflictError) Error() string { return e.Message }

// Sprint is one time-boxed iteration of a project.
type Sprint struct {
	ID                        string    `json:"id"`
	ProjectID                 string    `json:"project_id"`
	Name                      string    `json:"name"`
	Goal                      string    `json:"goal,omitempty"`
	StartDate                 time.Time `json:"start_date"`
	EndDate                   time.Time `json:"end_date"`
	Status                    Status    `json:"status"`
	CapacityHours             float64   `json:"capacity_hours,omitempty"`
	CapacityStoryPoints       int       `json:"capacity_story_points,omitempty"`
	ActualVelocityHours       float64   `json:"actual_velocity_hours"`
	ActualVelocityStoryPoints int       `json:"actual_velocity_story_points"`
	CreatedAt                 time.Time `json:"created_at"`
	UpdatedAt                 time.Time `json:"updated_at"`
}

// Backlog is a project's holding area for tasks not assigned to a sprint.
type Backlog struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
}

// Velocity is completed work summed over a sprint.
type Velocity struct {
	Hours       float64 `json:"hours"`
	StoryPoints int     `json:"story_points"`
}

// BurndownPoint is one day of a sprint's burndown series.
type BurndownPoint struct {
	Date                  string  `json:"date"`
	IdealRemainingHours   float64 `json:"ideal_remaining_hours"`
	ActualRemainingHours  float64 `json:"actual_remaining_hours"`
	IdealRemainingPoints  float64 `json:"ideal_remaining_points"`
	ActualRemainingPoints float64 `json:"actual_remaining_points"`
}

// sprintProps flattens a sprint into graph node properties, adding unix
// timestamps the store uses for ordering.
func sprintProps(sp *Sprint) (map[string]any, error) {
	raw, err := json.Marshal(sp)
	if err != nil {
		return nil, fmt.Errorf("encode sprint: %w", err)
	}
	props := make(map[string]any)
	if err := json.Unmarshal(raw, &props); err != nil {
		return nil, fmt.Errorf("flatten sprint: %w", err)
	}
	props["start_date_unix"] = sp.StartDate.UnixMilli()
	props["end_date_unix"] = sp.EndDate.UnixMilli()
	return props, nil
}

// sprintFromRow rebuilds a sprint from a normalized graph row.
func sprintFromRow(row graph.Row) (*Sprint, error) {
	clean := make(map[string]any, len(row))
	for k, v := range row {
		clean[k] = v
	}
	delete(clean, "start_date_unix")
	delete(clean, "end_date_unix")

	raw, err := json.Marshal(clean)
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	var sp Sprint
	if err := json.Unmarshal(raw, &sp); err != nil {
		return nil, fmt.Errorf("decode sprint: %w", err)
	}
	return &sp, nil
}
