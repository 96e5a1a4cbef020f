// Package scheduler computes constraint-based project schedules: task
// dependencies with lags, cumulative resource capacity, earliest starts,
// deadlines, milestone constraints, and the critical path. The solver is
// pure and in-process; callers hand in tasks, resources, and constraints
// and receive a stored schedule back.
package scheduler

import (
	"errors"
	"sort"
	"time"
)

// DependencyType selects how a successor is bound to its predecessor.
type DependencyType string

const (
	FinishToStart  DependencyType = "finish_to_start"
	StartToStart   DependencyType = "start_to_start"
	FinishToFinish DependencyType = "finish_to_finish"
)

// Valid reports whether d is a known dependency type.
func (d DependencyType) Valid() bool {
	switch d {
	case FinishToStart, StartToStart, FinishToFinish:
		return true
	}
	return false
}

// Schedule status values.
const (
	StatusOptimal    = "optimal"
	StatusFeasible   = "feasible"
	StatusInfeasible = "infeasible"
)

// Conflict types synthesized when no schedule exists.
const (
	ConflictMissingDependency  = "missing_dependency"
	ConflictMissingResource    = "missing_resource"
	ConflictCircularDependency = "circular_dependency"
	ConflictResourceOverload   = "resource_over_allocation"
	ConflictImpossibleDeadline = "impossible_deadline"
	ConflictHorizonExceeded    = "horizon_exceeded"
	ConflictMilestoneMissed    = "milestone_missed"
)

var (
	// ErrNotFound indicates no stored schedule for the project.
	ErrNotFound = errors.New("schedule not found")
	// ErrInvalidInput indicates an unusable problem definition.
	ErrInvalidInput = errors.New("invalid scheduling input")
)

// Dependency binds a task to a predecessor with an optional lag in hours.
type Dependency struct {
	PredecessorID string         `json:"predecessor_id"`
	Type          DependencyType `json:"dependency_type"`
	Lag           int            `json:"lag"`
}

// Task is one schedulable unit of work.
type Task struct {
	ID                string         `json:"id"`
	Title             string         `json:"title"`
	EstimatedHours    int            `json:"estimated_hours"`
	Dependencies      []Dependency   `json:"dependencies,omitempty"`
	RequiredResources []string       `json:"required_resources,omitempty"`
	ResourceDemand    map[string]int `json:"resource_demand,omitempty"`
	EarliestStart     *time.Time     `json:"earliest_start,omitempty"`
	Deadline          *time.Time     `json:"deadline,omitempty"`
	SkillsNeeded      []string       `json:"skills_needed,omitempty"`
}

// demandOn returns the task's demand on a resource, defaulting to one unit
// for listed resources.
func (t *Task) demandOn(resourceID string) int {
	if d, ok := t.ResourceDemand[resourceID]; ok && d > 0 {
		return d
	}
	return 1
}

// resourceIDs returns every resource the task uses: the required list plus
// any resource named only in ResourceDemand, in stable order.
func (t *Task) resourceIDs() []string {
	ids := make([]string, 0, len(t.RequiredResources)+len(t.ResourceDemand))
	seen := make(map[string]bool, len(t.RequiredResources))
	for _, id := range t.RequiredResources {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	extra := make([]string, 0, len(t.ResourceDemand))
	for id := range t.ResourceDemand {
		if !seen[id] {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	return append(ids, extra...)
}

// Resource is a capacity-bounded scheduling resource.
type Resource struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Capacity int      `json:"capacity"`
	Skills   []string `json:"skills,omitempty"`
	Lead     bool     `json:"lead,omitempty"`
}

// Constraints frames the whole problem: the calendar origin, the horizon,
// and an optional project deadline.
type Constraints struct {
	ProjectStart       time.Time  `json:"project_start"`
	HorizonDays        int        `json:"horizon_days"`
	WorkingHoursPerDay int        `json:"working_hours_per_day"`
	RespectWeekends    bool       `json:"respect_weekends"`
	ProjectDeadline    *time.Time `json:"project_deadline,omitempty"`
}

// horizonHours is the total schedulable hours.
func (c Constraints) horizonHours() int {
	return c.HorizonDays * c.WorkingHoursPerDay
}

// MilestoneInput is a milestone handed to the solver. With
// IsManualConstraint set, every dependency must finish by TargetDate;
// otherwise the milestone's date is read back from the schedule.
type MilestoneInput struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	TargetDate         time.Time `json:"target_date"`
	IsManualConstraint bool      `json:"is_manual_constraint"`
	Dependencies       []string  `json:"dependencies,omitempty"`
}

// MilestoneResult is a milestone's computed completion.
type MilestoneResult struct {
	MilestoneID  string    `json:"milestone_id"`
	Title        string    `json:"title"`
	Date         time.Time `json:"date"`
	IsConstraint bool      `json:"is_constraint"`
}

// Conflict explains one reason a schedule is infeasible.
type Conflict struct {
	Type    string   `json:"conflict_type"`
	Message string   `json:"message"`
	TaskIDs []string `json:"task_ids,omitempty"`
}

// ScheduledTask is one placed task.
type ScheduledTask struct {
	TaskID        string    `json:"task_id"`
	Title         string    `json:"title"`
	StartHour     int       `json:"start_hour"`
	EndHour       int       `json:"end_hour"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	DurationHours int       `json:"duration_hours"`
	IsCritical    bool      `json:"is_critical"`
	Resources     []string  `json:"resources,omitempty"`
}

// Schedule is the solver's result for one project.
type Schedule struct {
	ProjectID            string            `json:"project_id"`
	Status               string            `json:"status"`
	Tasks                []ScheduledTask   `json:"schedule"`
	CriticalPath         []string          `json:"critical_path"`
	ProjectStart         time.Time         `json:"project_start"`
	ProjectEnd           time.Time         `json:"project_end"`
	ProjectDurationHours int               `json:"project_duration_hours"`
	Conflicts            []Conflict        `json:"conflicts,omitempty"`
	Milestones           []MilestoneResult `json:"milestones,omitempty"`
	Version              int               `json:"version"`
	ComputedAt           time.Time         `json:"computed_at"`
}

// Problem bundles one solve request.
type Problem struct {
	ProjectID   string           `json:"project_id"`
	Tasks       []Task           `json:"tasks"`
	Resources   []Resource       `json:"resources,omitempty"`
	Constraints Constraints      `json:"constraints"`
	Milestones  []MilestoneInput `json:"milestones,omitempty"`
}
