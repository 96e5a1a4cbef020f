package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// DefaultSolveTimeout bounds one solve's wall-clock time.
const DefaultSolveTimeout = 60 * time.Second

// Solver computes schedules. It is stateless and safe for concurrent use;
// callers typically pair it with a Store for retention.
type Solver struct {
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

// SolverOption configures a Solver.
type SolverOption func(*Solver)

// WithLogger sets the solver's logger.
func WithLogger(logger *slog.Logger) SolverOption {
	return func(s *Solver) { s.logger = logger }
}

// WithTimeout overrides the solve time limit.
func WithTimeout(d time.Duration) SolverOption {
	return func(s *Solver) { s.timeout = d }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) SolverOption {
	return func(s *Solver) { s.now = now }
}

// NewSolver builds a solver.
func NewSolver(opts ...SolverOption) *Solver {
	s := &Solver{
		logger:  slog.Default(),
		timeout: DefaultSolveTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func validateProblem(p *Problem) error {
	if p.ProjectID == "" {
		return fmt.Errorf("%w: project_id is required", ErrInvalidInput)
	}
	if len(p.Tasks) == 0 {
		return fmt.Errorf("%w: at least one task is required", ErrInvalidInput)
	}
	if p.Constraints.HorizonDays < 1 {
		return fmt.Errorf("%w: horizon_days must be at least 1", ErrInvalidInput)
	}
	if p.Constraints.WorkingHoursPerDay < 1 || p.Constraints.WorkingHoursPerDay > 24 {
		return fmt.Errorf("%w: working_hours_per_day must be in 1..24", ErrInvalidInput)
	}
	if p.Constraints.ProjectStart.IsZero() {
		return fmt.Errorf("%w: project_start is required", ErrInvalidInput)
	}
	seen := make(map[string]bool, len(p.Tasks))
	for i := range p.Tasks {
		task := &p.Tasks[i]
		if task.ID == "" {
			return fmt.Errorf("%w: task without id", ErrInvalidInput)
		}
		if seen[task.ID] {
			return fmt.Errorf("%w: duplicate task id %s", ErrInvalidInput, task.ID)
		}
		seen[task.ID] = true
		if task.EstimatedHours < 1 {
			return fmt.Errorf("%w: task %s needs estimated_hours >= 1", ErrInvalidInput, task.ID)
		}
		for _, dep := range task.Dependencies {
			if !dep.Type.Valid() {
				return fmt.Errorf("%w: task %s has unknown dependency type %q", ErrInvalidInput, task.ID, dep.Type)
			}
		}
	}
	return nil
}

// Solve computes a schedule for the problem. Structural conflicts come
// back as an infeasible schedule with conflict details; only unusable
// input is an error.
func (s *Solver) Solve(ctx context.Context, p Problem) (*Schedule, error) {
	if err := validateProblem(&p); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	started := s.now()

	cal := newCalendar(p.Constraints)

	if conflicts := synthesizeConflicts(&p); len(conflicts) > 0 {
		s.logger.Warn("schedule infeasible",
			"project_id", p.ProjectID, "conflicts", len(conflicts))
		return s.infeasible(&p, cal, conflicts), nil
	}

	byID := make(map[string]*Task, len(p.Tasks))
	for i := range p.Tasks {
		byID[p.Tasks[i].ID] = &p.Tasks[i]
	}

	best, bestMakespan := s.search(ctx, &p, byID, cal)
	if best == nil {
		conflicts := []Conflict{{
			Type:    ConflictHorizonExceeded,
			Message: fmt.Sprintf("no placement fits the %d-hour horizon", p.Constraints.horizonHours()),
		}}
		return s.infeasible(&p, cal, conflicts), nil
	}

	if conflicts := checkPlacement(&p, cal, best); len(conflicts) > 0 {
		return s.infeasible(&p, cal, conflicts), nil
	}

	milestones, conflicts := evalMilestones(&p, cal, best)
	if len(conflicts) > 0 {
		return s.infeasible(&p, cal, conflicts), nil
	}

	path, _ := criticalPath(p.Tasks, byID)
	critical := make(map[string]bool, len(path))
	for _, id := range path {
		critical[id] = true
	}

	status := StatusFeasible
	if bestMakespan <= makespanLowerBound(p.Tasks, byID) {
		status = StatusOptimal
	}

	sched := &Schedule{
		ProjectID:            p.ProjectID,
		Status:               status,
		CriticalPath:         path,
		ProjectStart:         cal.timeOf(0),
		ProjectEnd:           cal.timeOf(bestMakespan),
		ProjectDurationHours: bestMakespan,
		Milestones:           milestones,
		Version:              1,
		ComputedAt:           s.now().UTC(),
	}
	ids := make([]string, 0, len(best.start))
	for id := range best.start {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if best.start[ids[i]] != best.start[ids[j]] {
			return best.start[ids[i]] < best.start[ids[j]]
		}
		return ids[i] < ids[j]
	})
	for _, id := range ids {
		task := byID[id]
		sched.Tasks = append(sched.Tasks, ScheduledTask{
			TaskID:        id,
			Title:         task.Title,
			StartHour:     best.start[id],
			EndHour:       best.end[id],
			StartDate:     cal.timeOf(best.start[id]),
			EndDate:       cal.timeOf(best.end[id]),
			DurationHours: task.EstimatedHours,
			IsCritical:    critical[id],
			Resources:     append([]string(nil), task.RequiredResources...),
		})
	}

	s.logger.Info("schedule computed",
		"project_id", p.ProjectID, "status", status,
		"makespan_hours", bestMakespan, "tasks", len(sched.Tasks),
		"elapsed", s.now().Sub(started))
	return sched, nil
}

// placement maps task ids to start and end hours.
type placement struct {
	start map[string]int
	end   map[string]int
}

// search runs the serial schedule-generation procedure under several
// priority heuristics and keeps the shortest makespan found within the
// time budget.
func (s *Solver) search(ctx context.Context, p *Problem, byID map[string]*Task, cal calendar) (*placement, int) {
	heuristics := []func(a, b *Task) bool{
		longestPathFirst(p.Tasks, byID),
		earliestDeadlineFirst(),
		longestDurationFirst(),
	}

	var best *placement
	bestMakespan := 0
	for _, less := range heuristics {
		if ctx.Err() != nil {
			break
		}
		pl, makespan, ok := place(p, byID, cal, less)
		if !ok {
			continue
		}
		if best == nil || makespan < bestMakespan {
			best = pl
			bestMakespan = makespan
		}
	}
	return best, bestMakespan
}

// place runs one serial schedule generation: repeatedly pick the highest
// priority task whose predecessors are placed, and put it at the earliest
// hour where its dependency bounds hold and every required resource has
// spare cumulative capacity for the whole interval.
func place(p *Problem, byID map[string]*Task, cal calendar, less func(a, b *Task) bool) (*placement, int, bool) {
	horizon := p.Constraints.horizonHours()

	usage := make(map[string][]int, len(p.Resources))
	capacity := make(map[string]int, len(p.Resources))
	for _, res := range p.Resources {
		usage[res.ID] = make([]int, horizon)
		capacity[res.ID] = res.Capacity
	}

	pl := &placement{
		start: make(map[string]int, len(p.Tasks)),
		end:   make(map[string]int, len(p.Tasks)),
	}

	placed := make(map[string]bool, len(p.Tasks))
	for len(placed) < len(p.Tasks) {
		var candidates []*Task
		for i := range p.Tasks {
			task := &p.Tasks[i]
			if placed[task.ID] {
				continue
			}
			ready := true
			for _, dep := range task.Dependencies {
				if !placed[dep.PredecessorID] {
					ready = false
					break
				}
			}
			if ready {
				candidates = append(candidates, task)
			}
		}
		if len(candidates) == 0 {
			return nil, 0, false
		}
		sort.Slice(candidates, func(i, j int) bool {
			if less(candidates[i], candidates[j]) {
				return true
			}
			if less(candidates[j], candidates[i]) {
				return false
			}
			return candidates[i].ID < candidates[j].ID
		})
		task := candidates[0]

		earliest := 0
		for _, dep := range task.Dependencies {
			var bound int
			switch dep.Type {
			case StartToStart:
				bound = pl.start[dep.PredecessorID] + dep.Lag
			case FinishToFinish:
				bound = pl.end[dep.PredecessorID] + dep.Lag - task.EstimatedHours
			default: // finish_to_start
				bound = pl.end[dep.PredecessorID] + dep.Lag
			}
			if bound > earliest {
				earliest = bound
			}
		}
		if task.EarliestStart != nil {
			if bound := cal.hourOf(*task.EarliestStart); bound > earliest {
				earliest = bound
			}
		}

		start, ok := firstFit(task, earliest, horizon, usage, capacity)
		if !ok {
			return nil, 0, false
		}
		pl.start[task.ID] = start
		pl.end[task.ID] = start + task.EstimatedHours
		for _, resID := range task.resourceIDs() {
			demand := task.demandOn(resID)
			for h := start; h < start+task.EstimatedHours; h++ {
				usage[resID][h] += demand
			}
		}
		placed[task.ID] = true
	}

	makespan := 0
	for _, end := range pl.end {
		if end > makespan {
			makespan = end
		}
	}
	return pl, makespan, true
}

// firstFit scans upward from earliest for the first start hour where the
// task's whole interval fits the horizon and every resource the task uses.
func firstFit(task *Task, earliest, horizon int, usage map[string][]int, capacity map[string]int) (int, bool) {
	if earliest < 0 {
		earliest = 0
	}
	for start := earliest; start+task.EstimatedHours <= horizon; start++ {
		fits := true
		for _, resID := range task.resourceIDs() {
			demand := task.demandOn(resID)
			for h := start; h < start+task.EstimatedHours; h++ {
				if usage[resID][h]+demand > capacity[resID] {
					fits = false
					break
				}
			}
			if !fits {
				break
			}
		}
		if fits {
			return start, true
		}
	}
	return 0, false
}

// checkPlacement verifies deadlines against the placed schedule.
func checkPlacement(p *Problem, cal calendar, pl *placement) []Conflict {
	var conflicts []Conflict
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
		if pl.end[task.ID] > cal.hourOf(*deadline) {
			conflicts = append(conflicts, Conflict{
				Type: ConflictImpossibleDeadline,
				Message: fmt.Sprintf("task %s ends at hour %d, past its deadline at hour %d",
					task.ID, pl.end[task.ID], cal.hourOf(*deadline)),
				TaskIDs: []string{task.ID},
			})
		}
	}
	return conflicts
}

// evalMilestones reads milestone completion off the placement. Manual
// constraints must be met; derived milestones just report their date.
func evalMilestones(p *Problem, cal calendar, pl *placement) ([]MilestoneResult, []Conflict) {
	var results []MilestoneResult
	var conflicts []Conflict
	for _, ms := range p.Milestones {
		maxEnd := 0
		for _, dep := range ms.Dependencies {
			if end, ok := pl.end[dep]; ok && end > maxEnd {
				maxEnd = end
			}
		}
		if ms.IsManualConstraint && maxEnd > cal.hourOf(ms.TargetDate) {
			conflicts = append(conflicts, Conflict{
				Type: ConflictMilestoneMissed,
				Message: fmt.Sprintf("milestone %s requires its dependencies done by %s",
					ms.ID, ms.TargetDate.Format(time.RFC3339)),
				TaskIDs: append([]string(nil), ms.Dependencies...),
			})
			continue
		}
		results = append(results, MilestoneResult{
			MilestoneID:  ms.ID,
			Title:        ms.Title,
			Date:         cal.timeOf(maxEnd),
			IsConstraint: ms.IsManualConstraint,
		})
	}
	return results, conflicts
}

// infeasible builds the conflict-only result. The caller's stored schedule
// is left untouched; storage happens in the Store, not here.
func (s *Solver) infeasible(p *Problem, cal calendar, conflicts []Conflict) *Schedule {
	return &Schedule{
		ProjectID:    p.ProjectID,
		Status:       StatusInfeasible,
		CriticalPath: []string{},
		ProjectStart: cal.timeOf(0),
		Conflicts:    conflicts,
		Version:      1,
		ComputedAt:   s.now().UTC(),
	}
}

// Priority heuristics for the placement order.

func longestPathFirst(tasks []Task, byID map[string]*Task) func(a, b *Task) bool {
	depth := pathLengths(tasks, byID)
	return func(a, b *Task) bool { return depth[a.ID] > depth[b.ID] }
}

func earliestDeadlineFirst() func(a, b *Task) bool {
	return func(a, b *Task) bool {
		switch {
		case a.Deadline != nil && b.Deadline == nil:
			return true
		case a.Deadline == nil && b.Deadline != nil:
			return false
		case a.Deadline != nil && b.Deadline != nil && !a.Deadline.Equal(*b.Deadline):
			return a.Deadline.Before(*b.Deadline)
		}
		return a.EstimatedHours > b.EstimatedHours
	}
}

func longestDurationFirst() func(a, b *Task) bool {
	return func(a, b *Task) bool { return a.EstimatedHours > b.EstimatedHours }
}
