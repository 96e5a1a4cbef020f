package sprint

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/traceline/audit"
	"github.com/c360studio/traceline/graph"
	"github.com/c360studio/traceline/workitem"
)

// TaskSource is the slice of the work-item store the coordinator reads
// task snapshots from.
type TaskSource interface {
	Get(ctx context.Context, id string) (*workitem.WorkItem, error)
}

// Coordinator drives sprints and backlogs. All check-and-set sequences for
// one project (sprint activation, capacity admission) are serialized
// through a per-project lock; there is no global lock.
type Coordinator struct {
	exec   graph.Executor
	tasks  TaskSource
	audit  audit.Recorder
	logger *slog.Logger
	now    func() time.Time

	projLocks sync.Map // project id -> *sync.Mutex
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithAuditRecorder wires the audit trail in.
func WithAuditRecorder(r audit.Recorder) Option {
	return func(c *Coordinator) { c.audit = r }
}

// WithLogger sets the coordinator's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator builds a coordinator over the graph executor and task
// source.
func NewCoordinator(exec graph.Executor, tasks TaskSource, opts ...Option) *Coordinator {
	c := &Coordinator{
		exec:   exec,
		tasks:  tasks,
		audit:  audit.Nop(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// lock serializes check-and-set sequences of one project.
func (c *Coordinator) lock(projectID string) func() {
	mu, _ := c.projLocks.LoadOrStore(projectID, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// CreateInput is the typed sprint-create payload.
type CreateInput struct {
	ProjectID           string    `json:"project_id"`
	Name                string    `json:"name"`
	Goal                string    `json:"goal,omitempty"`
	StartDate           time.Time `json:"start_date"`
	EndDate             time.Time `json:"end_date"`
	Status              Status    `json:"status,omitempty"`
	CapacityHours       float64   `json:"capacity_hours,omitempty"`
	CapacityStoryPoints int       `json:"capacity_story_points,omitempty"`
}

func validateCreate(in *CreateInput) error {
	if strings.TrimSpace(in.ProjectID) == "" {
		return fmt.Errorf("project_id is required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if !in.StartDate.Before(in.EndDate) {
		return fmt.Errorf("start_date must be before end_date")
	}
	if in.Status == "" {
		in.Status = StatusPlanning
	}
	if !in.Status.Valid() {
		return fmt.Errorf("unknown sprint status %q", in.Status)
	}
	if in.CapacityHours < 0 || in.CapacityStoryPoints < 0 {
		return fmt.Errorf("capacity must be non-negative")
	}
	return nil
}

// Create persists a new sprint. Creating one directly in active state is
// subject to the same uniqueness check as Start.
func (c *Coordinator) Create(ctx context.Context, in CreateInput, actor string) (*Sprint, error) {
	if err := validateCreate(&in); err != nil {
		return nil, err
	}

	unlock := c.lock(in.ProjectID)
	defer unlock()

	if in.Status == StatusActive {
		if err := c.checkNoActiveSprint(ctx, in.ProjectID, ""); err != nil {
			return nil, err
		}
	}

	now := c.now().UTC()
	sp := &Sprint{
		ID:                  uuid.New().String(),
		ProjectID:           in.ProjectID,
		Name:                strings.TrimSpace(in.Name),
		Goal:                in.Goal,
		StartDate:           in.StartDate.UTC(),
		EndDate:             in.EndDate.UTC(),
		Status:              in.Status,
		CapacityHours:       in.CapacityHours,
		CapacityStoryPoints: in.CapacityStoryPoints,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	props, err := sprintProps(sp)
	if err != nil {
		return nil, err
	}
	if err := c.exec.CreateNode(ctx, LabelSprint, props); err != nil {
		return nil, fmt.Errorf("persist sprint: %w", err)
	}

	c.recordAudit(ctx, actor, "sprint.create", sp.ID, map[string]any{
		"project_id": sp.ProjectID,
		"status":     string(sp.Status),
	})
	c.logger.Info("sprint created", "id", sp.ID, "project_id", sp.ProjectID, "actor", actor)
	return sp, nil
}

// Get returns one sprint by id.
func (c *Coordinator) Get(ctx context.Context, id string) (*Sprint, error) {
	rows, err := c.exec.ExecuteQuery(ctx, graph.Query{
		Label: LabelSprint,
		Where: []graph.Cond{graph.Eq("id", id)},
		Limit: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("load sprint: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sprintFromRow(rows[0])
}

// Update is a sparse sprint mutation. Status moves only through Start,
// Complete, and Cancel; completed and cancelled sprints are read-only.
type Update struct {
	Name                *string    `json:"name,omitempty"`
	Goal                *string    `json:"goal,omitempty"`
	StartDate           *time.Time `json:"start_date,omitempty"`
	EndDate             *time.Time `json:"end_date,omitempty"`
	CapacityHours       *float64   `json:"capacity_hours,omitempty"`
	CapacityStoryPoints *int       `json:"capacity_story_points,omitempty"`
}

// Update merges the sparse fields over the sprint and persists it.
func (c *Coordinator) Update(ctx context.Context, id string, upd Update, actor string) (*Sprint, error) {
	sp, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sp.Status == StatusCompleted || sp.Status == StatusCancelled {
		return nil, &ConflictError{
			Type:    ConflictInvalidTransition,
			Message: fmt.Sprintf("sprint %s is %s and read-only", id, sp.Status),
		}
	}

	if upd.Name != nil {
		if strings.TrimSpace(*upd.Name) == "" {
			return nil, fmt.Errorf("name must not be blank")
		}
		sp.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Goal != nil {
		sp.Goal = *upd.Goal
	}
	if upd.StartDate != nil {
		sp.StartDate = upd.StartDate.UTC()
	}
	if upd.EndDate != nil {
		sp.EndDate = upd.EndDate.UTC()
	}
	if !sp.StartDate.Before(sp.EndDate) {
		return nil, fmt.Errorf("start_date must be before end_date")
	}
	if upd.CapacityHours != nil {
		if *upd.CapacityHours < 0 {
			return nil, fmt.Errorf("capacity must be non-negative")
		}
		sp.CapacityHours = *upd.CapacityHours
	}
	if upd.CapacityStoryPoints != nil {
		if *upd.CapacityStoryPoints < 0 {
			return nil, fmt.Errorf("capacity must be non-negative")
		}
		sp.CapacityStoryPoints = *upd.CapacityStoryPoints
	}
	sp.UpdatedAt = c.now().UTC()

	if err := c.persist(ctx, sp); err != nil {
		return nil, err
	}
	c.recordAudit(ctx, actor, "sprint.update", sp.ID, nil)
	return sp, nil
}

// Start transitions a planning sprint to active, enforcing at most one
// active sprint per project.
func (c *Coordinator) Start(ctx context.Context, id, actor string) (*Sprint, error) {
	sp, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := c.lock(sp.ProjectID)
	defer unlock()

	// Re-read under the lock so the check-and-set is serialized.
	sp, err = c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sp.Status != StatusPlanning {
		return nil, &ConflictError{
			Type:    ConflictInvalidTransition,
			Message: fmt.Sprintf("sprint %s cannot start from status %s", id, sp.Status),
		}
	}
	if err := c.checkNoActiveSprint(ctx, sp.ProjectID, id); err != nil {
		return nil, err
	}

	sp.Status = StatusActive
	sp.UpdatedAt = c.now().UTC()
	if err := c.persist(ctx, sp); err != nil {
		return nil, err
	}

	c.recordAudit(ctx, actor, "sprint.start", sp.ID, map[string]any{"project_id": sp.ProjectID})
	c.logger.Info("sprint started", "id", sp.ID, "project_id", sp.ProjectID, "actor", actor)
	return sp, nil
}

// Complete transitions an active sprint to completed, writes back the
// achieved velocity, and returns unfinished ready tasks to the backlog.
func (c *Coordinator) Complete(ctx context.Context, id, actor string) (*Sprint, error) {
	sp, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := c.lock(sp.ProjectID)
	defer unlock()

	sp, err = c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sp.Status != StatusActive {
		return nil, &ConflictError{
			Type:    ConflictInvalidTransition,
			Message: fmt.Sprintf("sprint %s cannot complete from status %s", id, sp.Status),
		}
	}

	tasks, err := c.SprintTasks(ctx, id)
	if err != nil {
		return nil, err
	}
	vel := velocityOf(tasks)

	sp.Status = StatusCompleted
	sp.ActualVelocityHours = vel.Hours
	sp.ActualVelocityStoryPoints = vel.StoryPoints
	sp.UpdatedAt = c.now().UTC()
	if err := c.persist(ctx, sp); err != nil {
		return nil, err
	}

	var returned []string
	for _, task := range tasks {
		if task.Status != workitem.StatusReady {
			continue
		}
		if err := c.moveTaskToBacklog(ctx, task.ID, id, sp.ProjectID); err != nil {
			return nil, err
		}
		returned = append(returned, task.ID)
	}

	c.recordAudit(ctx, actor, "sprint.complete", sp.ID, map[string]any{
		"velocity_hours":  vel.Hours,
		"velocity_points": vel.StoryPoints,
		"returned_tasks":  returned,
	})
	c.logger.Info("sprint completed",
		"id", sp.ID, "velocity_hours", vel.Hours, "velocity_points", vel.StoryPoints,
		"returned_tasks", len(returned), "actor", actor)
	return sp, nil
}

// Cancel transitions a planning sprint to cancelled.
func (c *Coordinator) Cancel(ctx context.Context, id, actor string) (*Sprint, error) {
	sp, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sp.Status != StatusPlanning {
		return nil, &ConflictError{
			Type:    ConflictInvalidTransition,
			Message: fmt.Sprintf("sprint %s cannot cancel from status %s", id, sp.Status),
		}
	}
	sp.Status = StatusCancelled
	sp.UpdatedAt = c.now().UTC()
	if err := c.persist(ctx, sp); err != nil {
		return nil, err
	}
	c.recordAudit(ctx, actor, "sprint.cancel", sp.ID, nil)
	return sp, nil
}

// Delete removes a sprint. Every assigned task is taken out first and
// returned to the backlog when still ready.
func (c *Coordinator) Delete(ctx context.Context, id, actor string) error {
	sp, err := c.Get(ctx, id)
	if err != nil {
		return err
	}

	tasks, err := c.SprintTasks(ctx, id)
	if err != nil {
		return err
	}
	for _, task := range tasks {
		if task.Status == workitem.StatusReady {
			if err := c.moveTaskToBacklog(ctx, task.ID, id, sp.ProjectID); err != nil {
				return err
			}
			continue
		}
		if err := c.exec.RemoveRelationships(ctx, task.ID, id, RelAssignedToSprint); err != nil {
			return fmt.Errorf("unassign task %s: %w", task.ID, err)
		}
	}

	if err := c.exec.DeleteNode(ctx, id); err != nil {
		return fmt.Errorf("delete sprint: %w", err)
	}
	c.recordAudit(ctx, actor, "sprint.delete", id, map[string]any{"project_id": sp.ProjectID})
	c.logger.Info("sprint deleted", "id", id, "actor", actor)
	return nil
}

// AddTask assigns a task to the sprint. Any backlog placement or prior
// sprint assignment is removed in the same operation; a task lives in at
// most one place. Capacity limits, when set, admit or reject the task as
// a whole.
func (c *Coordinator) AddTask(ctx context.Context, sprintID, taskID, actor string) error {
	sp, err := c.Get(ctx, sprintID)
	if err != nil {
		return err
	}
	if sp.Status == StatusCompleted || sp.Status == StatusCancelled {
		return &ConflictError{
			Type:    ConflictInvalidTransition,
			Message: fmt.Sprintf("sprint %s is %s and cannot accept tasks", sprintID, sp.Status),
		}
	}
	task, err := c.tasks.Get(ctx, taskID)
	if err != nil {
		return fmt.Errorf("load task: %w", err)
	}
	if task.Type != workitem.TypeTask {
		return fmt.Errorf("work item %s is a %s, only tasks join sprints", taskID, task.Type)
	}

	unlock := c.lock(sp.ProjectID)
	defer unlock()

	if sp.CapacityHours > 0 || sp.CapacityStoryPoints > 0 {
		assigned, err := c.SprintTasks(ctx, sprintID)
		if err != nil {
			return err
		}
		var usedHours float64
		var usedPoints int
		for _, t := range assigned {
			usedHours += t.EstimatedHours
			usedPoints += t.StoryPoints
		}
		if sp.CapacityHours > 0 && usedHours+task.EstimatedHours > sp.CapacityHours {
			return &ConflictError{
				Type: ConflictCapacityExceeded,
				Message: fmt.Sprintf("sprint capacity exceeded: %.1fh used + %.1fh requested > %.1fh capacity",
					usedHours, task.EstimatedHours, sp.CapacityHours),
			}
		}
		if sp.CapacityStoryPoints > 0 && usedPoints+task.StoryPoints > sp.CapacityStoryPoints {
			return &ConflictError{
				Type: ConflictCapacityExceeded,
				Message: fmt.Sprintf("sprint capacity exceeded: %d points used + %d requested > %d capacity",
					usedPoints, task.StoryPoints, sp.CapacityStoryPoints),
			}
		}
	}

	if err := c.exec.RemoveRelationships(ctx, taskID, "", RelInBacklog); err != nil {
		return fmt.Errorf("leave backlog: %w", err)
	}
	if err := c.exec.RemoveRelationships(ctx, taskID, "", RelAssignedToSprint); err != nil {
		return fmt.Errorf("leave previous sprint: %w", err)
	}
	if err := c.exec.CreateRelationship(ctx, taskID, sprintID, RelAssignedToSprint, nil); err != nil {
		return fmt.Errorf("assign task: %w", err)
	}

	c.recordAudit(ctx, actor, "sprint.add_task", sprintID, map[string]any{"task_id": taskID})
	c.logger.Info("task assigned to sprint", "sprint_id", sprintID, "task_id", taskID, "actor", actor)
	return nil
}

// RemoveTask takes a task out of the sprint. With returnToBacklog set and
// the task still ready, it is re-linked to the project's backlog.
func (c *Coordinator) RemoveTask(ctx context.Context, sprintID, taskID string, returnToBacklog bool, actor string) error {
	sp, err := c.Get(ctx, sprintID)
	if err != nil {
		return err
	}
	assigned, err := c.taskAssigned(ctx, sprintID, taskID)
	if err != nil {
		return err
	}
	if !assigned {
		return fmt.Errorf("%w: task %s, sprint %s", ErrTaskNotInSprint, taskID, sprintID)
	}
	task, err := c.tasks.Get(ctx, taskID)
	if err != nil {
		return fmt.Errorf("load task: %w", err)
	}

	if returnToBacklog && task.Status == workitem.StatusReady {
		if err := c.moveTaskToBacklog(ctx, taskID, sprintID, sp.ProjectID); err != nil {
			return err
		}
	} else if err := c.exec.RemoveRelationships(ctx, taskID, sprintID, RelAssignedToSprint); err != nil {
		return fmt.Errorf("unassign task: %w", err)
	}

	c.recordAudit(ctx, actor, "sprint.remove_task", sprintID, map[string]any{
		"task_id":           taskID,
		"return_to_backlog": returnToBacklog,
	})
	return nil
}

// SprintTasks returns the current snapshots of every task assigned to the
// sprint.
func (c *Coordinator) SprintTasks(ctx context.Context, sprintID string) ([]*workitem.WorkItem, error) {
	rows, err := c.exec.ExecuteQuery(ctx, graph.Query{
		Label: workitem.LabelWorkItem,
		Rel: &graph.RelPattern{
			Type:        RelAssignedToSprint,
			Direction:   graph.DirectionOut,
			TargetLabel: LabelSprint,
			TargetWhere: []graph.Cond{graph.Eq("id", sprintID)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("list sprint tasks: %w", err)
	}
	tasks := make([]*workitem.WorkItem, 0, len(rows))
	for _, row := range rows {
		id, _ := row["id"].(string)
		if id == "" {
			continue
		}
		task, err := c.tasks.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load task %s: %w", id, err)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// EnsureBacklog returns the project's backlog, creating it on first use.
func (c *Coordinator) EnsureBacklog(ctx context.Context, projectID string) (*Backlog, error) {
	rows, err := c.exec.ExecuteQuery(ctx, graph.Query{
		Label: LabelBacklog,
		Where: []graph.Cond{graph.Eq("project_id", projectID)},
		Limit: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("load backlog: %w", err)
	}
	if len(rows) > 0 {
		id, _ := rows[0]["id"].(string)
		name, _ := rows[0]["name"].(string)
		return &Backlog{ID: id, ProjectID: projectID, Name: name}, nil
	}

	bl := &Backlog{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Name:      "Backlog",
	}
	err = c.exec.CreateNode(ctx, LabelBacklog, map[string]any{
		"id":         bl.ID,
		"project_id": bl.ProjectID,
		"name":       bl.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("create backlog: %w", err)
	}
	return bl, nil
}

// AddTaskToBacklog links a task to the project's backlog, removing any
// sprint assignment first.
func (c *Coordinator) AddTaskToBacklog(ctx context.Context, projectID, taskID, actor string) error {
	if _, err := c.tasks.Get(ctx, taskID); err != nil {
		return fmt.Errorf("load task: %w", err)
	}
	bl, err := c.EnsureBacklog(ctx, projectID)
	if err != nil {
		return err
	}
	if err := c.exec.RemoveRelationships(ctx, taskID, "", RelAssignedToSprint); err != nil {
		return fmt.Errorf("leave sprint: %w", err)
	}
	if err := c.exec.CreateRelationship(ctx, taskID, bl.ID, RelInBacklog, nil); err != nil {
		return fmt.Errorf("join backlog: %w", err)
	}
	c.recordAudit(ctx, actor, "backlog.add_task", bl.ID, map[string]any{"task_id": taskID})
	return nil
}

// BacklogTasks returns the current snapshots of every task in the
// project's backlog.
func (c *Coordinator) BacklogTasks(ctx context.Context, projectID string) ([]*workitem.WorkItem, error) {
	bl, err := c.EnsureBacklog(ctx, projectID)
	if err != nil {
		return nil, err
	}
	rows, err := c.exec.ExecuteQuery(ctx, graph.Query{
		Label: workitem.LabelWorkItem,
		Rel: &graph.RelPattern{
			Type:        RelInBacklog,
			Direction:   graph.DirectionOut,
			TargetLabel: LabelBacklog,
			TargetWhere: []graph.Cond{graph.Eq("id", bl.ID)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("list backlog tasks: %w", err)
	}
	tasks := make([]*workitem.WorkItem, 0, len(rows))
	for _, row := range rows {
		id, _ := row["id"].(string)
		if id == "" {
			continue
		}
		task, err := c.tasks.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load task %s: %w", id, err)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// moveTaskToBacklog swaps a task's sprint assignment for a backlog
// placement.
func (c *Coordinator) moveTaskToBacklog(ctx context.Context, taskID, sprintID, projectID string) error {
	bl, err := c.EnsureBacklog(ctx, projectID)
	if err != nil {
		return err
	}
	if err := c.exec.RemoveRelationships(ctx, taskID, sprintID, RelAssignedToSprint); err != nil {
		return fmt.Errorf("unassign task: %w", err)
	}
	if err := c.exec.CreateRelationship(ctx, taskID, bl.ID, RelInBacklog, nil); err != nil {
		return fmt.Errorf("join backlog: %w", err)
	}
	return nil
}

// taskAssigned reports whether the assignment edge exists.
func (c *Coordinator) taskAssigned(ctx context.Context, sprintID, taskID string) (bool, error) {
	rows, err := c.exec.ExecuteQuery(ctx, graph.Query{
		Label: workitem.LabelWorkItem,
		Where: []graph.Cond{graph.Eq("id", taskID)},
		Rel: &graph.RelPattern{
			Type:        RelAssignedToSprint,
			Direction:   graph.DirectionOut,
			TargetWhere: []graph.Cond{graph.Eq("id", sprintID)},
		},
	})
	if err != nil {
		return false, fmt.Errorf("check assignment: %w", err)
	}
	return len(rows) > 0, nil
}

// checkNoActiveSprint rejects when another sprint of the project is active.
func (c *Coordinator) checkNoActiveSprint(ctx context.Context, projectID, exceptID string) error {
	rows, err := c.exec.ExecuteQuery(ctx, graph.Query{
		Label: LabelSprint,
		Where: []graph.Cond{
			graph.Eq("project_id", projectID),
			graph.Eq("status", string(StatusActive)),
		},
	})
	if err != nil {
		return fmt.Errorf("check active sprints: %w", err)
	}
	for _, row := range rows {
		id, _ := row["id"].(string)
		if id != exceptID {
			return &ConflictError{
				Type:    ConflictActiveSprintExists,
				Message: fmt.Sprintf("project %s already has an active sprint (%s)", projectID, id),
			}
		}
	}
	return nil
}

func (c *Coordinator) persist(ctx context.Context, sp *Sprint) error {
	props, err := sprintProps(sp)
	if err != nil {
		return err
	}
	if err := c.exec.UpdateNode(ctx, sp.ID, props); err != nil {
		return fmt.Errorf("persist sprint: %w", err)
	}
	return nil
}

func (c *Coordinator) recordAudit(ctx context.Context, actor, operation, entityID string, details map[string]any) {
	event := audit.NewEvent(actor, operation, "sprint", entityID, details)
	if err := c.audit.Record(ctx, event); err != nil {
		c.logger.Error("audit record failed", "operation", operation, "entity_id", entityID, "error", err)
	}
}
