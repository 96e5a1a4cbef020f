package resource

import (
	"context"
	"fmt"

	"github.com/c360studio/traceline/graph"
)

// AddDependency creates from -DEPENDS_ON-> to after checking that no path
// to -DEPENDS_ON*-> from already exists, direct or indirect. It covers
// task-on-task, milestone-on-task, and task-on-milestone edges alike.
func (s *Service) AddDependency(ctx context.Context, fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("%w: %s depends on itself", ErrCycle, fromID)
	}
	reachable, err := s.pathExists(ctx, toID, fromID, RelDependsOn)
	if err != nil {
		return err
	}
	if reachable {
		return fmt.Errorf("%w: %s already depends on %s", ErrCycle, toID, fromID)
	}
	if err := s.exec.CreateRelationship(ctx, fromID, toID, RelDependsOn, nil); err != nil {
		return fmt.Errorf("create dependency: %w", err)
	}
	return nil
}

// AddMilestoneBefore creates first -BEFORE-> second on the milestone phase
// chain, rejecting any ordering cycle.
func (s *Service) AddMilestoneBefore(ctx context.Context, firstID, secondID string) error {
	if firstID == secondID {
		return fmt.Errorf("%w: %s ordered before itself", ErrCycle, firstID)
	}
	reachable, err := s.pathExists(ctx, secondID, firstID, RelBefore)
	if err != nil {
		return err
	}
	if reachable {
		return fmt.Errorf("%w: %s already ordered before %s", ErrCycle, secondID, firstID)
	}
	if err := s.exec.CreateRelationship(ctx, firstID, secondID, RelBefore, nil); err != nil {
		return fmt.Errorf("create ordering: %w", err)
	}
	return nil
}

// pathExists walks relType edges depth-first from start and reports
// whether goal is reachable.
func (s *Service) pathExists(ctx context.Context, start, goal, relType string) (bool, error) {
	visited := map[string]bool{}
	stack := []string{start}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if current == goal {
			return true, nil
		}
		if visited[current] {
			continue
		}
		visited[current] = true

		next, err := s.neighbors(ctx, current, relType)
		if err != nil {
			return false, err
		}
		for _, id := range next {
			if !visited[id] {
				stack = append(stack, id)
			}
		}
	}
	return false, nil
}

// neighbors returns the targets of a node's outgoing relType edges.
func (s *Service) neighbors(ctx context.Context, id, relType string) ([]string, error) {
	rows, err := s.exec.ExecuteQuery(ctx, graph.Query{
		Where: []graph.Cond{graph.Eq("id", id)},
		Rel: &graph.RelPattern{
			Type:         relType,
			Direction:    graph.DirectionOut,
			ReturnTarget: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("expand %s: %w", relType, err)
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		if target, _ := row["id"].(string); target != "" {
			out = append(out, target)
		}
	}
	return out, nil
}
