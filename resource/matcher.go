package resource

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/c360studio/traceline/graph"
	"github.com/c360studio/traceline/workitem"
)

// Boosts applied on top of the skill-overlap fraction.
const (
	departmentBoost = 0.10
	leadBoost       = 0.05
)

// TaskSource is the slice of the work-item store the matcher reads task
// snapshots from.
type TaskSource interface {
	Get(ctx context.Context, id string) (*workitem.WorkItem, error)
}

// Match scores every resource against a skill need. The score is the
// fraction of needed skills the resource covers, boosted by department
// affinity and by holding any lead allocation. With skills to match,
// resources covering none are excluded; with an empty need every resource
// is returned. Ordering is deterministic: lead holders first, then score,
// then overlap count, then id.
func (s *Service) Match(ctx context.Context, skills, linkedDepartments []string) ([]Match, error) {
	rows, err := s.exec.ExecuteQuery(ctx, graph.Query{Label: LabelResource})
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	leads, err := s.LeadAllocations(ctx)
	if err != nil {
		return nil, err
	}

	departments := make(map[string]bool, len(linkedDepartments))
	for _, d := range linkedDepartments {
		departments[d] = true
	}
	needed := make(map[string]bool, len(skills))
	for _, skill := range skills {
		needed[strings.ToLower(strings.TrimSpace(skill))] = true
	}

	var matches []Match
	for _, row := range rows {
		r, err := resourceFromRow(row)
		if err != nil {
			return nil, err
		}

		count := 0
		for _, skill := range r.Skills {
			if needed[strings.ToLower(strings.TrimSpace(skill))] {
				count++
			}
		}
		if len(needed) > 0 && count == 0 {
			continue
		}

		var score float64
		if len(needed) > 0 {
			score = float64(count) / float64(len(needed))
		}
		if r.DepartmentID != "" && departments[r.DepartmentID] {
			score += departmentBoost
		}
		if leads[r.ID] {
			score += leadBoost
		}

		matches = append(matches, Match{
			Resource:   r,
			MatchCount: count,
			Score:      score,
			Lead:       leads[r.ID],
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Lead != b.Lead {
			return a.Lead
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.MatchCount != b.MatchCount {
			return a.MatchCount > b.MatchCount
		}
		return a.Resource.ID < b.Resource.ID
	})
	return matches, nil
}

// MatchForTask scores resources against a task's skill needs, with the
// department affinity taken from the task's project links.
func (s *Service) MatchForTask(ctx context.Context, tasks TaskSource, taskID string) ([]Match, error) {
	task, err := tasks.Get(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	var departments []string
	if task.ProjectID != "" {
		departments, err = s.LinkedDepartments(ctx, task.ProjectID)
		if err != nil {
			return nil, err
		}
	}
	return s.Match(ctx, task.SkillsNeeded, departments)
}
