package resource

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/c360studio/traceline/audit"
	"github.com/c360studio/traceline/graph"
)

// Service persists resources and milestones and enforces the allocation
// and dependency rules.
type Service struct {
	exec   graph.Executor
	audit  audit.Recorder
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithAuditRecorder wires the audit trail in.
func WithAuditRecorder(r audit.Recorder) Option {
	return func(s *Service) { s.audit = r }
}

// WithLogger sets the service's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService builds a resource service over the graph executor.
func NewService(exec graph.Executor, opts ...Option) *Service {
	s := &Service{
		exec:   exec,
		audit:  audit.Nop(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateResource persists a new resource node.
func (s *Service) CreateResource(ctx context.Context, r Resource, actor string) (*Resource, error) {
	if strings.TrimSpace(r.Name) == "" {
		return nil, fmt.Errorf("name is required")
	}
	if r.Capacity < 1 {
		r.Capacity = 1
	}
	if r.Availability == "" {
		r.Availability = AvailabilityAvailable
	}
	switch r.Availability {
	case AvailabilityAvailable, AvailabilityBusy, AvailabilityUnavailable:
	default:
		return nil, fmt.Errorf("unknown availability %q", r.Availability)
	}
	r.ID = uuid.New().String()

	if err := s.exec.CreateNode(ctx, LabelResource, resourceProps(&r)); err != nil {
		return nil, fmt.Errorf("persist resource: %w", err)
	}
	s.recordAudit(ctx, actor, "resource.create", r.ID, map[string]any{"name": r.Name})
	return &r, nil
}

// GetResource returns one resource by id.
func (s *Service) GetResource(ctx context.Context, id string) (*Resource, error) {
	rows, err := s.exec.ExecuteQuery(ctx, graph.Query{
		Label: LabelResource,
		Where: []graph.Cond{graph.Eq("id", id)},
		Limit: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("load resource: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return resourceFromRow(rows[0])
}

// SetAvailability updates a resource's availability state.
func (s *Service) SetAvailability(ctx context.Context, id, availability, actor string) error {
	switch availability {
	case AvailabilityAvailable, AvailabilityBusy, AvailabilityUnavailable:
	default:
		return fmt.Errorf("unknown availability %q", availability)
	}
	if _, err := s.GetResource(ctx, id); err != nil {
		return err
	}
	if err := s.exec.UpdateNode(ctx, id, map[string]any{"availability": availability}); err != nil {
		return fmt.Errorf("update resource: %w", err)
	}
	s.recordAudit(ctx, actor, "resource.set_availability", id, map[string]any{"availability": availability})
	return nil
}

// EnsureProject returns the id of the project node, creating it on first
// use so allocation edges have an endpoint.
func (s *Service) EnsureProject(ctx context.Context, projectID string) error {
	rows, err := s.exec.ExecuteQuery(ctx, graph.Query{
		Label: LabelProject,
		Where: []graph.Cond{graph.Eq("id", projectID)},
		Limit: 1,
	})
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}
	if len(rows) > 0 {
		return nil
	}
	if err := s.exec.CreateNode(ctx, LabelProject, map[string]any{"id": projectID}); err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

// allocationProps flattens an allocation into relationship properties.
func allocationProps(a Allocation) map[string]any {
	props := map[string]any{
		"allocation_percentage": a.Percentage,
		"lead":                  a.Lead,
	}
	if a.StartDate != nil {
		props["start_date"] = a.StartDate.UTC().Format("2006-01-02")
	}
	if a.EndDate != nil {
		props["end_date"] = a.EndDate.UTC().Format("2006-01-02")
	}
	return props
}

// AllocateToProject allocates a resource to a project. Rejected when the
// resource already holds any task allocation: a resource serves projects
// or tasks, never both kinds at once.
func (s *Service) AllocateToProject(ctx context.Context, resourceID, projectID string, alloc Allocation, actor string) error {
	if _, err := s.GetResource(ctx, resourceID); err != nil {
		return err
	}
	tasks, err := s.allocationTargets(ctx, resourceID, false)
	if err != nil {
		return err
	}
	if len(tasks) > 0 {
		return fmt.Errorf("%w: resource %s holds task allocations", ErrAllocationKind, resourceID)
	}
	if err := s.EnsureProject(ctx, projectID); err != nil {
		return err
	}
	if err := s.exec.CreateRelationship(ctx, resourceID, projectID, RelAllocatedTo, allocationProps(alloc)); err != nil {
		return fmt.Errorf("allocate resource: %w", err)
	}
	s.recordAudit(ctx, actor, "resource.allocate_project", resourceID, map[string]any{
		"project_id": projectID,
		"lead":       alloc.Lead,
	})
	return nil
}

// AllocateToTask allocates a resource to a task, subject to the same kind
// rule as AllocateToProject.
func (s *Service) AllocateToTask(ctx context.Context, resourceID, taskID string, alloc Allocation, actor string) error {
	if _, err := s.GetResource(ctx, resourceID); err != nil {
		return err
	}
	projects, err := s.allocationTargets(ctx, resourceID, true)
	if err != nil {
		return err
	}
	if len(projects) > 0 {
		return fmt.Errorf("%w: resource %s holds project allocations", ErrAllocationKind, resourceID)
	}
	if err := s.exec.CreateRelationship(ctx, resourceID, taskID, RelAllocatedTo, allocationProps(alloc)); err != nil {
		return fmt.Errorf("allocate resource: %w", err)
	}
	s.recordAudit(ctx, actor, "resource.allocate_task", resourceID, map[string]any{
		"task_id": taskID,
		"lead":    alloc.Lead,
	})
	return nil
}

// Deallocate removes the allocation edge between a resource and a target.
func (s *Service) Deallocate(ctx context.Context, resourceID, targetID, actor string) error {
	if err := s.exec.RemoveRelationships(ctx, resourceID, targetID, RelAllocatedTo); err != nil {
		return fmt.Errorf("deallocate resource: %w", err)
	}
	s.recordAudit(ctx, actor, "resource.deallocate", resourceID, map[string]any{"target_id": targetID})
	return nil
}

// allocationTargets lists the ids a resource is allocated to, filtered to
// project targets when projects is true and to everything else otherwise.
func (s *Service) allocationTargets(ctx context.Context, resourceID string, projects bool) ([]string, error) {
	rows, err := s.exec.ExecuteQuery(ctx, graph.Query{
		Label: LabelResource,
		Where: []graph.Cond{graph.Eq("id", resourceID)},
		Rel: &graph.RelPattern{
			Type:         RelAllocatedTo,
			Direction:    graph.DirectionOut,
			ReturnTarget: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	var out []string
	for _, row := range rows {
		id, _ := row["id"].(string)
		if id == "" {
			continue
		}
		isProject, err := s.isProjectNode(ctx, id)
		if err != nil {
			return nil, err
		}
		if isProject == projects {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *Service) isProjectNode(ctx context.Context, id string) (bool, error) {
	rows, err := s.exec.ExecuteQuery(ctx, graph.Query{
		Label: LabelProject,
		Where: []graph.Cond{graph.Eq("id", id)},
		Limit: 1,
	})
	if err != nil {
		return false, fmt.Errorf("classify allocation target: %w", err)
	}
	return len(rows) > 0, nil
}

// LeadAllocations returns the ids of resources holding at least one lead
// allocation.
func (s *Service) LeadAllocations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.exec.ExecuteQuery(ctx, graph.Query{
		Label: LabelResource,
		Rel: &graph.RelPattern{
			Type:           RelAllocatedTo,
			Direction:      graph.DirectionOut,
			ReturnRelProps: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("list lead allocations: %w", err)
	}
	leads := make(map[string]bool)
	for _, row := range rows {
		id, _ := row["id"].(string)
		if id == "" {
			continue
		}
		if lead, _ := row["lead"].(bool); lead {
			leads[id] = true
		}
	}
	return leads, nil
}

// LeadResourcesForTask returns the resources allocated to the task with
// the lead flag set.
func (s *Service) LeadResourcesForTask(ctx context.Context, taskID string) ([]*Resource, error) {
	rows, err := s.exec.ExecuteQuery(ctx, graph.Query{
		Label: LabelResource,
		Rel: &graph.RelPattern{
			Type:           RelAllocatedTo,
			Direction:      graph.DirectionOut,
			TargetWhere:    []graph.Cond{graph.Eq("id", taskID)},
			ReturnRelProps: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("list task allocations: %w", err)
	}
	var out []*Resource
	for _, row := range rows {
		if lead, _ := row["lead"].(bool); !lead {
			continue
		}
		r, err := resourceFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// CreateMilestone persists a new milestone node.
func (s *Service) CreateMilestone(ctx context.Context, m Milestone, actor string) (*Milestone, error) {
	if strings.TrimSpace(m.Title) == "" {
		return nil, fmt.Errorf("title is required")
	}
	if m.Status == "" {
		m.Status = "open"
	}
	m.ID = uuid.New().String()
	if err := s.exec.CreateNode(ctx, LabelMilestone, milestoneProps(&m)); err != nil {
		return nil, fmt.Errorf("persist milestone: %w", err)
	}
	s.recordAudit(ctx, actor, "milestone.create", m.ID, map[string]any{"title": m.Title})
	return &m, nil
}

// GetMilestone returns one milestone by id.
func (s *Service) GetMilestone(ctx context.Context, id string) (*Milestone, error) {
	rows, err := s.exec.ExecuteQuery(ctx, graph.Query{
		Label: LabelMilestone,
		Where: []graph.Cond{graph.Eq("id", id)},
		Limit: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("load milestone: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return milestoneFromRow(rows[0])
}

// LinkDepartment links a project (work package) to a department, feeding
// the affinity boost in skill matching.
func (s *Service) LinkDepartment(ctx context.Context, projectID, departmentID string) error {
	if err := s.EnsureProject(ctx, projectID); err != nil {
		return err
	}
	rows, err := s.exec.ExecuteQuery(ctx, graph.Query{
		Label: LabelDepartment,
		Where: []graph.Cond{graph.Eq("id", departmentID)},
		Limit: 1,
	})
	if err != nil {
		return fmt.Errorf("load department: %w", err)
	}
	if len(rows) == 0 {
		if err := s.exec.CreateNode(ctx, LabelDepartment, map[string]any{"id": departmentID}); err != nil {
			return fmt.Errorf("create department: %w", err)
		}
	}
	if err := s.exec.CreateRelationship(ctx, projectID, departmentID, RelLinkedToDepartment, nil); err != nil {
		return fmt.Errorf("link department: %w", err)
	}
	return nil
}

// LinkedDepartments returns the department ids linked to a project.
func (s *Service) LinkedDepartments(ctx context.Context, projectID string) ([]string, error) {
	rows, err := s.exec.ExecuteQuery(ctx, graph.Query{
		Label: LabelProject,
		Where: []graph.Cond{graph.Eq("id", projectID)},
		Rel: &graph.RelPattern{
			Type:         RelLinkedToDepartment,
			Direction:    graph.DirectionOut,
			ReturnTarget: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	var out []string
	for _, row := range rows {
		if id, _ := row["id"].(string); id != "" {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *Service) recordAudit(ctx context.Context, actor, operation, entityID string, details map[string]any) {
	event := audit.NewEvent(actor, operation, "resource", entityID, details)
	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.Error("audit record failed", "operation", operation, "entity_id", entityID, "error", err)
	}
}
