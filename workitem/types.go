// Package workitem implements the versioned work-item store: typed
// create/update with immutable version chains on the property graph,
// signature invalidation on mutation, search, comparison, and restore.
package workitem

import (
	"time"
)

// Type classifies a work item.
type Type string

const (
	TypeRequirement Type = "requirement"
	TypeTask        Type = "task"
	TypeTestSpec    Type = "test_spec"
	TypeTestRun     Type = "test_run"
	TypeRisk        Type = "risk"
	TypeDocument    Type = "document"
)

// Valid reports whether t is a known work-item type.
func (t Type) Valid() bool {
	switch t {
	case TypeRequirement, TypeTask, TypeTestSpec, TypeTestRun, TypeRisk, TypeDocument:
		return true
	}
	return false
}

// Status values. The base set applies to every type; tasks additionally move
// through ready/in_progress/blocked, risks may end up mitigated.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusArchived  Status = "archived"
	StatusRejected  Status = "rejected"

	StatusReady      Status = "ready"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"

	StatusMitigated Status = "mitigated"
)

var baseStatuses = []Status{StatusDraft, StatusActive, StatusCompleted, StatusArchived, StatusRejected}

// AllowedStatuses returns the status set for a work-item type.
func AllowedStatuses(t Type) []Status {
	switch t {
	case TypeTask:
		return append([]Status{StatusReady, StatusInProgress, StatusBlocked}, baseStatuses...)
	case TypeRisk:
		return append([]Status{StatusMitigated}, baseStatuses...)
	default:
		return baseStatuses
	}
}

func statusAllowed(t Type, s Status) bool {
	for _, allowed := range AllowedStatuses(t) {
		if s == allowed {
			return true
		}
	}
	return false
}

// Graph labels and relationship types used by the store.
const (
	LabelWorkItem = "WorkItem"
	LabelSnapshot = "WorkItemVersion"
	LabelComment  = "Comment"

	RelNextVersion = "NEXT_VERSION"
	RelBelongsTo   = "BELONGS_TO"
)

// InvalidationReasonModified is the reason recorded on signatures when their
// work item mutates.
const InvalidationReasonModified = "WorkItem modified"

// WorkItem is one snapshot of a work item at a specific version. Snapshots
// are immutable once persisted; mutations append a new snapshot linked by a
// NEXT_VERSION relationship.
type WorkItem struct {
	ID                string    `json:"id"`
	Type              Type      `json:"type"`
	Title             string    `json:"title"`
	Description       string    `json:"description,omitempty"`
	Status            Status    `json:"status"`
	Priority          int       `json:"priority,omitempty"`
	AssignedTo        string    `json:"assigned_to,omitempty"`
	ProjectID         string    `json:"project_id,omitempty"`
	Source            string    `json:"source,omitempty"`
	Version           string    `json:"version"`
	CreatedBy         string    `json:"created_by"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	UpdatedBy         string    `json:"updated_by,omitempty"`
	ChangeDescription string    `json:"change_description,omitempty"`

	// Requirement fields.
	AcceptanceCriteria string `json:"acceptance_criteria,omitempty"`

	// Task fields.
	EstimatedHours float64  `json:"estimated_hours,omitempty"`
	ActualHours    float64  `json:"actual_hours,omitempty"`
	StoryPoints    int      `json:"story_points,omitempty"`
	SkillsNeeded   []string `json:"skills_needed,omitempty"`

	// Risk (FMEA) fields; RPN is derived as severity*occurrence*detection.
	Severity   int    `json:"severity,omitempty"`
	Occurrence int    `json:"occurrence,omitempty"`
	Detection  int    `json:"detection,omitempty"`
	RPN        int    `json:"rpn,omitempty"`
	Mitigation string `json:"mitigation,omitempty"`

	// Test spec fields.
	Steps          []string `json:"steps,omitempty"`
	ExpectedResult string   `json:"expected_result,omitempty"`

	// Test run fields.
	Result     string `json:"result,omitempty"`
	ExecutedBy string `json:"executed_by,omitempty"`

	// Document fields.
	DocumentURL  string `json:"document_url,omitempty"`
	DocumentType string `json:"document_type,omitempty"`
}

// CreateInput is the typed create payload.
type CreateInput struct {
	Type        Type     `json:"type"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      Status   `json:"status,omitempty"`
	Priority    int      `json:"priority,omitempty"`
	AssignedTo  string   `json:"assigned_to,omitempty"`
	ProjectID   string   `json:"project_id,omitempty"`
	Source      string   `json:"source,omitempty"`

	AcceptanceCriteria string `json:"acceptance_criteria,omitempty"`

	EstimatedHours float64  `json:"estimated_hours,omitempty"`
	StoryPoints    int      `json:"story_points,omitempty"`
	SkillsNeeded   []string `json:"skills_needed,omitempty"`

	Severity   int    `json:"severity,omitempty"`
	Occurrence int    `json:"occurrence,omitempty"`
	Detection  int    `json:"detection,omitempty"`
	Mitigation string `json:"mitigation,omitempty"`

	Steps          []string `json:"steps,omitempty"`
	ExpectedResult string   `json:"expected_result,omitempty"`

	Result     string `json:"result,omitempty"`
	ExecutedBy string `json:"executed_by,omitempty"`

	DocumentURL  string `json:"document_url,omitempty"`
	DocumentType string `json:"document_type,omitempty"`
}

// Update is a sparse mutation: nil fields are left untouched, set fields
// overwrite. ChangeDescription is mandatory for audit compliance.
type Update struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *Status `json:"status,omitempty"`
	Priority    *int    `json:"priority,omitempty"`
	AssignedTo  *string `json:"assigned_to,omitempty"`
	ProjectID   *string `json:"project_id,omitempty"`
	Source      *string `json:"source,omitempty"`

	AcceptanceCriteria *string `json:"acceptance_criteria,omitempty"`

	EstimatedHours *float64  `json:"estimated_hours,omitempty"`
	ActualHours    *float64  `json:"actual_hours,omitempty"`
	StoryPoints    *int      `json:"story_points,omitempty"`
	SkillsNeeded   *[]string `json:"skills_needed,omitempty"`

	Severity   *int    `json:"severity,omitempty"`
	Occurrence *int    `json:"occurrence,omitempty"`
	Detection  *int    `json:"detection,omitempty"`
	Mitigation *string `json:"mitigation,omitempty"`

	Steps          *[]string `json:"steps,omitempty"`
	ExpectedResult *string   `json:"expected_result,omitempty"`

	Result     *string `json:"result,omitempty"`
	ExecutedBy *string `json:"executed_by,omitempty"`

	DocumentURL  *string `json:"document_url,omitempty"`
	DocumentType *string `json:"document_type,omitempty"`

	ChangeDescription string `json:"change_description"`
}

// apply overwrites set fields on item and returns the names of the fields
// it touched, for the audit trail.
func (u Update) apply(item *WorkItem) []string {
	var changed []string
	set := func(name string, f func()) {
		f()
		changed = append(changed, name)
	}
	if u.Title != nil {
		set("title", func() { item.Title = *u.Title })
	}
	if u.Description != nil {
		set("description", func() { item.Description = *u.Description })
	}
	if u.Status != nil {
		set("status", func() { item.Status = *u.Status })
	}
	if u.Priority != nil {
		set("priority", func() { item.Priority = *u.Priority })
	}
	if u.AssignedTo != nil {
		set("assigned_to", func() { item.AssignedTo = *u.AssignedTo })
	}
	if u.ProjectID != nil {
		set("project_id", func() { item.ProjectID = *u.ProjectID })
	}
	if u.Source != nil {
		set("source", func() { item.Source = *u.Source })
	}
	if u.AcceptanceCriteria != nil {
		set("acceptance_criteria", func() { item.AcceptanceCriteria = *u.AcceptanceCriteria })
	}
	if u.EstimatedHours != nil {
		set("estimated_hours", func() { item.EstimatedHours = *u.EstimatedHours })
	}
	if u.ActualHours != nil {
		set("actual_hours", func() { item.ActualHours = *u.ActualHours })
	}
	if u.StoryPoints != nil {
		set("story_points", func() { item.StoryPoints = *u.StoryPoints })
	}
	if u.SkillsNeeded != nil {
		set("skills_needed", func() { item.SkillsNeeded = append([]string(nil), (*u.SkillsNeeded)...) })
	}
	if u.Severity != nil {
		set("severity", func() { item.Severity = *u.Severity })
	}
	if u.Occurrence != nil {
		set("occurrence", func() { item.Occurrence = *u.Occurrence })
	}
	if u.Detection != nil {
		set("detection", func() { item.Detection = *u.Detection })
	}
	if u.Mitigation != nil {
		set("mitigation", func() { item.Mitigation = *u.Mitigation })
	}
	if u.Steps != nil {
		set("steps", func() { item.Steps = append([]string(nil), (*u.Steps)...) })
	}
	if u.ExpectedResult != nil {
		set("expected_result", func() { item.ExpectedResult = *u.ExpectedResult })
	}
	if u.Result != nil {
		set("result", func() { item.Result = *u.Result })
	}
	if u.ExecutedBy != nil {
		set("executed_by", func() { item.ExecutedBy = *u.ExecutedBy })
	}
	if u.DocumentURL != nil {
		set("document_url", func() { item.DocumentURL = *u.DocumentURL })
	}
	if u.DocumentType != nil {
		set("document_type", func() { item.DocumentType = *u.DocumentType })
	}
	return changed
}

// Comment is free-form discussion attached to a work item's identity. It is
// not part of the versioned snapshot and never affects signatures.
type Comment struct {
	ID         string    `json:"id"`
	WorkItemID string    `json:"workitem_id"`
	Author     string    `json:"author"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// Filter selects current-version snapshots in Search.
type Filter struct {
	Text                  string `json:"text,omitempty"`
	Type                  Type   `json:"type,omitempty"`
	Status                Status `json:"status,omitempty"`
	Priority              int    `json:"priority,omitempty"`
	AssignedTo            string `json:"assigned_to,omitempty"`
	CreatedBy             string `json:"created_by,omitempty"`
	Source                string `json:"source,omitempty"`
	ProjectID             string `json:"project_id,omitempty"`
	HasAcceptanceCriteria bool   `json:"has_acceptance_criteria,omitempty"`
	Limit                 int    `json:"limit,omitempty"`
	Offset                int    `json:"offset,omitempty"`
}

// FieldChange records one field's value on each side of a comparison.
type FieldChange struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// Comparison is the field-level diff between two versions of a work item.
type Comparison struct {
	WorkItemID      string                 `json:"workitem_id"`
	VersionA        string                 `json:"version_a"`
	VersionB        string                 `json:"version_b"`
	ChangedFields   map[string]FieldChange `json:"changed_fields"`
	UnchangedFields []string               `json:"unchanged_fields"`
	AddedFields     []string               `json:"added_fields"`
	RemovedFields   []string               `json:"removed_fields"`
}
