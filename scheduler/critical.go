package scheduler

import "sort"

// topoOrder returns the task ids in dependency order. The input is assumed
// acyclic; callers run cycle detection first.
func topoOrder(tasks []Task, byID map[string]*Task) []string {
	indegree := make(map[string]int, len(tasks))
	successors := make(map[string][]string, len(tasks))
	for i := range tasks {
		task := &tasks[i]
		if _, ok := indegree[task.ID]; !ok {
			indegree[task.ID] = 0
		}
		for _, dep := range task.Dependencies {
			if _, ok := byID[dep.PredecessorID]; !ok {
				continue
			}
			indegree[task.ID]++
			successors[dep.PredecessorID] = append(successors[dep.PredecessorID], task.ID)
		}
	}

	var queue []string
	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		var released []string
		for _, succ := range successors[id] {
			indegree[succ]--
			if indegree[succ] == 0 {
				released = append(released, succ)
			}
		}
		sort.Strings(released)
		queue = append(queue, released...)
	}
	return order
}

// pathLengths computes, per task, the longest downstream chain length in
// hours including the task itself. Used as a placement priority.
func pathLengths(tasks []Task, byID map[string]*Task) map[string]int {
	order := topoOrder(tasks, byID)
	successors := make(map[string][]string, len(tasks))
	for i := range tasks {
		for _, dep := range tasks[i].Dependencies {
			successors[dep.PredecessorID] = append(successors[dep.PredecessorID], tasks[i].ID)
		}
	}
	depth := make(map[string]int, len(tasks))
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		best := 0
		for _, succ := range successors[id] {
			if depth[succ] > best {
				best = depth[succ]
			}
		}
		depth[id] = byID[id].EstimatedHours + best
	}
	return depth
}

// criticalPath computes the longest chain of dependent tasks weighted by
// estimated hours and returns it in execution order, with its total
// length. An empty task set yields an empty path.
func criticalPath(tasks []Task, byID map[string]*Task) ([]string, int) {
	order := topoOrder(tasks, byID)
	if len(order) != len(tasks) {
		// Defensive: a cycle slipped through. Degrade to no path.
		return []string{}, 0
	}

	// dist is the longest chain ending at each task; prev backtracks it.
	dist := make(map[string]int, len(tasks))
	prev := make(map[string]string, len(tasks))
	for _, id := range order {
		task := byID[id]
		best := 0
		bestPred := ""
		for _, dep := range task.Dependencies {
			if _, ok := byID[dep.PredecessorID]; !ok {
				continue
			}
			if d := dist[dep.PredecessorID]; d > best || (d == best && bestPred == "") {
				best = d
				bestPred = dep.PredecessorID
			}
		}
		dist[id] = best + task.EstimatedHours
		if bestPred != "" {
			prev[id] = bestPred
		}
	}

	endID := ""
	total := 0
	ids := make([]string, 0, len(dist))
	for id := range dist {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if dist[id] > total {
			total = dist[id]
			endID = id
		}
	}
	if endID == "" {
		return []string{}, 0
	}

	var path []string
	for id := endID; id != ""; id = prev[id] {
		path = append(path, id)
		if _, ok := prev[id]; !ok {
			break
		}
	}
	// Reverse into execution order.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, total
}

// makespanLowerBound is the longest dependency chain in hours, counting
// positive finish-to-start lags. No schedule can finish earlier, so a
// placement meeting it is optimal.
func makespanLowerBound(tasks []Task, byID map[string]*Task) int {
	order := topoOrder(tasks, byID)
	dist := make(map[string]int, len(tasks))
	bound := 0
	for _, id := range order {
		task := byID[id]
		best := 0
		for _, dep := range task.Dependencies {
			pred, ok := byID[dep.PredecessorID]
			if !ok {
				continue
			}
			var via int
			switch dep.Type {
			case StartToStart:
				via = dist[pred.ID] - pred.EstimatedHours + max(dep.Lag, 0)
			case FinishToFinish:
				via = dist[pred.ID] + max(dep.Lag, 0) - task.EstimatedHours
			default:
				via = dist[pred.ID] + max(dep.Lag, 0)
			}
			if via > best {
				best = via
			}
		}
		dist[id] = best + task.EstimatedHours
		if dist[id] > bound {
			bound = dist[id]
		}
	}
	return bound
}
