package scheduler

import (
	"fmt"
	"sort"
)

// synthesizeConflicts inspects the problem for structural reasons no
// schedule can exist: dangling dependency targets, unknown resources,
// dependency cycles, resources whose total demand exceeds their capacity
// over the horizon, and deadlines tighter than the work they bound.
func synthesizeConflicts(p *Problem) []Conflict {
	var conflicts []Conflict

	tasks := make(map[string]*Task, len(p.Tasks))
	for i := range p.Tasks {
		tasks[p.Tasks[i].ID] = &p.Tasks[i]
	}
	resources := make(map[string]*Resource, len(p.Resources))
	for i := range p.Resources {
		resources[p.Resources[i].ID] = &p.Resources[i]
	}

	for i := range p.Tasks {
		task := &p.Tasks[i]
		for _, dep := range task.Dependencies {
			if _, ok := tasks[dep.PredecessorID]; !ok {
				conflicts = append(conflicts, Conflict{
					Type:    ConflictMissingDependency,
					Message: fmt.Sprintf("task %s depends on unknown task %s", task.ID, dep.PredecessorID),
					TaskIDs: []string{task.ID},
				})
			}
		}
		for _, resID := range task.resourceIDs() {
			if _, ok := resources[resID]; !ok {
				conflicts = append(conflicts, Conflict{
					Type:    ConflictMissingResource,
					Message: fmt.Sprintf("task %s requires unknown resource %s", task.ID, resID),
					TaskIDs: []string{task.ID},
				})
			}
		}
	}

	if cycle := findCycle(p.Tasks, tasks); len(cycle) > 0 {
		conflicts = append(conflicts, Conflict{
			Type:    ConflictCircularDependency,
			Message: fmt.Sprintf("circular dependency involving tasks %v", cycle),
			TaskIDs: cycle,
		})
	}

	horizon := p.Constraints.horizonHours()
	for _, res := range p.Resources {
		var totalDemand int
		var users []string
		for i := range p.Tasks {
			task := &p.Tasks[i]
			if !requiresResource(task, res.ID) {
				continue
			}
			totalDemand += task.demandOn(res.ID) * task.EstimatedHours
			users = append(users, task.ID)
		}
		if totalDemand > res.Capacity*horizon {
			sort.Strings(users)
			conflicts = append(conflicts, Conflict{
				Type: ConflictResourceOverload,
				Message: fmt.Sprintf("resource %s is over-allocated: %d demand-hours exceed %d capacity-hours over the horizon",
					res.ID, totalDemand, res.Capacity*horizon),
				TaskIDs: users,
			})
		}
	}

	cal := newCalendar(p.Constraints)
	for i := range p.Tasks {
		task := &p.Tasks[i]
		deadline := task.Deadline
		if deadline == nil {
			deadline = p.Constraints.ProjectDeadline
		} else if p.Constraints.ProjectDeadline != nil && p.Constraints.ProjectDeadline.Before(*deadline) {
			deadline = p.Constraints.ProjectDeadline
		}
		if deadline == nil {
			continue
		}
		available := cal.hourOf(*deadline)
		if task.EarliestStart != nil {
			available -= cal.hourOf(*task.EarliestStart)
		}
		if available < task.EstimatedHours {
			conflicts = append(conflicts, Conflict{
				Type: ConflictImpossibleDeadline,
				Message: fmt.Sprintf("task %s needs %dh but only %dh are available before its deadline",
					task.ID, task.EstimatedHours, max(available, 0)),
				TaskIDs: []string{task.ID},
			})
		}
	}

	return conflicts
}

func requiresResource(task *Task, resourceID string) bool {
	for _, id := range task.RequiredResources {
		if id == resourceID {
			return true
		}
	}
	_, ok := task.ResourceDemand[resourceID]
	return ok
}

// findCycle runs a DFS with a recursion stack over the dependency graph
// and returns one cycle's task ids, or nil.
func findCycle(tasks []Task, byID map[string]*Task) []string {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int, len(tasks))
	var cycle []string

	var visit func(id string, stack []string) bool
	visit = func(id string, stack []string) bool {
		state[id] = inStack
		stack = append(stack, id)
		task := byID[id]
		for _, dep := range task.Dependencies {
			pred, ok := byID[dep.PredecessorID]
			if !ok {
				continue
			}
			switch state[pred.ID] {
			case inStack:
				// Slice the stack from the first occurrence of pred.
				for i, sid := range stack {
					if sid == pred.ID {
						cycle = append([]string{}, stack[i:]...)
						return true
					}
				}
				cycle = append([]string{}, stack...)
				return true
			case unvisited:
				if visit(pred.ID, stack) {
					return true
				}
			}
		}
		state[id] = done
		return false
	}

	ids := make([]string, 0, len(tasks))
	for i := range tasks {
		ids = append(ids, tasks[i].ID)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if state[id] == unvisited {
			if visit(id, nil) {
				sort.Strings(cycle)
				return cycle
			}
		}
	}
	return nil
}
