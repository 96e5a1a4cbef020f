package workitem

import (
	"context"
	"fmt"

	"github.com/c360studio/traceline/graph"
)

const (
	// MaxSearchLimit caps one search page.
	MaxSearchLimit = 1000
	// DefaultSearchLimit applies when the filter leaves Limit unset.
	DefaultSearchLimit = 100
)

// Search returns current-version snapshots matching the filter, most
// recently updated first.
func (s *Store) Search(ctx context.Context, f Filter) ([]*WorkItem, error) {
	if f.Limit < 0 || f.Limit > MaxSearchLimit {
		verr := &ValidationError{}
		verr.add("limit", fmt.Sprintf("must be between 0 and %d", MaxSearchLimit))
		return nil, verr
	}
	if f.Offset < 0 {
		verr := &ValidationError{}
		verr.add("offset", "must not be negative")
		return nil, verr
	}
	limit := f.Limit
	if limit == 0 {
		limit = DefaultSearchLimit
	}

	q := graph.Query{
		Label: LabelSnapshot,
		Where: []graph.Cond{graph.Eq("is_current", true)},
		OrderBy: []graph.Order{
			{Field: "updated_at_unix", Desc: true},
			{Field: "work_item_id"},
		},
		Limit:  limit,
		Offset: f.Offset,
	}
	if f.Type != "" {
		q.Where = append(q.Where, graph.Eq("type", string(f.Type)))
	}
	if f.Status != "" {
		q.Where = append(q.Where, graph.Eq("status", string(f.Status)))
	}
	if f.Priority != 0 {
		q.Where = append(q.Where, graph.Eq("priority", f.Priority))
	}
	if f.AssignedTo != "" {
		q.Where = append(q.Where, graph.Eq("assigned_to", f.AssignedTo))
	}
	if f.CreatedBy != "" {
		q.Where = append(q.Where, graph.Eq("created_by", f.CreatedBy))
	}
	if f.Source != "" {
		q.Where = append(q.Where, graph.Eq("source", f.Source))
	}
	if f.ProjectID != "" {
		q.Where = append(q.Where, graph.Eq("project_id", f.ProjectID))
	}
	if f.HasAcceptanceCriteria {
		q.Where = append(q.Where, graph.Cond{Field: "acceptance_criteria", Op: graph.OpExists})
	}
	if f.Text != "" {
		q.Text = &graph.TextCond{
			Fields: []string{"title", "description", "acceptance_criteria"},
			Needle: f.Text,
		}
	}

	rows, err := s.exec.ExecuteQuery(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search work items: %w", err)
	}
	items := make([]*WorkItem, 0, len(rows))
	for _, row := range rows {
		item, err := itemFromRow(row)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
