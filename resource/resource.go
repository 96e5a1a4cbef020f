// Package resource implements the resource, milestone, and skill-matching
// services: scoring resources against a task's skill needs, the allocation
// kind rule (a resource serves projects or tasks, never both), and cycle
// rejection on dependency edges.
package resource

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/c360studio/traceline/graph"
)

// Availability states of a resource.
const (
	AvailabilityAvailable   = "available"
	AvailabilityBusy        = "busy"
	AvailabilityUnavailable = "unavailable"
)

// Graph labels and relationship types used by the service.
const (
	LabelResource   = "Resource"
	LabelMilestone  = "Milestone"
	LabelProject    = "Project"
	LabelDepartment = "Department"

	RelAllocatedTo        = "ALLOCATED_TO"
	RelLinkedToDepartment = "LINKED_TO_DEPARTMENT"
	RelDependsOn          = "DEPENDS_ON"
	RelBefore             = "BEFORE"
)

var (
	// ErrNotFound indicates the resource or milestone does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrAllocationKind rejects mixing project and task allocations on one
	// resource.
	ErrAllocationKind = errors.New("resource already allocated to the other kind")
	// ErrCycle rejects a dependency edge that would close a cycle.
	ErrCycle = errors.New("dependency cycle")
)

// Resource is a person or piece of equipment that can be allocated.
type Resource struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Capacity     int      `json:"capacity"`
	DepartmentID string   `json:"department_id,omitempty"`
	Skills       []string `json:"skills,omitempty"`
	Availability string   `json:"availability"`
}

// Allocation carries the properties of an ALLOCATED_TO relationship.
type Allocation struct {
	Percentage int        `json:"allocation_percentage"`
	Lead       bool       `json:"lead"`
	StartDate  *time.Time `json:"start_date,omitempty"`
	EndDate    *time.Time `json:"end_date,omitempty"`
}

// Milestone is a dated project marker. With IsManualConstraint set its
// target date binds the schedule; otherwise the date is derived.
type Milestone struct {
	ID                 string    `json:"id"`
	ProjectID          string    `json:"project_id"`
	Title              string    `json:"title"`
	TargetDate         time.Time `json:"target_date"`
	IsManualConstraint bool      `json:"is_manual_constraint"`
	Status             string    `json:"status"`
	CompletionCriteria string    `json:"completion_criteria,omitempty"`
}

// Match is one scored resource in a skill-match result.
type Match struct {
	Resource   *Resource `json:"resource"`
	MatchCount int       `json:"match_count"`
	Score      float64   `json:"score"`
	Lead       bool      `json:"lead"`
}

func resourceProps(r *Resource) map[string]any {
	skills := make([]any, len(r.Skills))
	for i, s := range r.Skills {
		skills[i] = s
	}
	return map[string]any{
		"id":            r.ID,
		"name":          r.Name,
		"type":          r.Type,
		"capacity":      r.Capacity,
		"department_id": r.DepartmentID,
		"skills":        skills,
		"availability":  r.Availability,
	}
}

func resourceFromRow(row graph.Row) (*Resource, error) {
	raw, err := json.Marshal(map[string]any(row))
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	var r Resource
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode resource: %w", err)
	}
	return &r, nil
}

func milestoneProps(m *Milestone) map[string]any {
	return map[string]any{
		"id":                   m.ID,
		"project_id":           m.ProjectID,
		"title":                m.Title,
		"target_date":          m.TargetDate.UTC().Format(time.RFC3339),
		"is_manual_constraint": m.IsManualConstraint,
		"status":               m.Status,
		"completion_criteria":  m.CompletionCriteria,
	}
}

func milestoneFromRow(row graph.Row) (*Milestone, error) {
	raw, err := json.Marshal(map[string]any(row))
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	var m Milestone
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode milestone: %w", err)
	}
	return &m, nil
}
