package scheduler

import (
	"fmt"
	"sync"
	"time"
)

// TaskAdjustment overrides a placed task's dates. When only one side is
// given the other is recomputed from the task's duration.
type TaskAdjustment struct {
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

// Store retains the last successful schedule per project in process
// memory. Access to one project's schedule is serialized; the store does
// not survive a restart.
type Store struct {
	mu        sync.RWMutex
	schedules map[string]*Schedule
}

// NewStore returns an empty schedule store.
func NewStore() *Store {
	return &Store{schedules: make(map[string]*Schedule)}
}

// Save retains a schedule. Infeasible results never replace a stored
// schedule.
func (s *Store) Save(sched *Schedule) {
	if sched == nil || sched.Status == StatusInfeasible {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cloneSchedule(sched)
	if prev, ok := s.schedules[sched.ProjectID]; ok {
		cp.Version = prev.Version + 1
	}
	s.schedules[sched.ProjectID] = cp
}

// Get returns the stored schedule for a project.
func (s *Store) Get(projectID string) (*Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sched, ok := s.schedules[projectID]
	if !ok {
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, projectID)
	}
	return cloneSchedule(sched), nil
}

// Update applies manual task adjustments to the stored schedule, bumps
// its version, and re-derives the project bounds.
func (s *Store) Update(projectID string, adjustments map[string]TaskAdjustment) (*Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[projectID]
	if !ok {
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, projectID)
	}

	for taskID, adj := range adjustments {
		idx := -1
		for i := range sched.Tasks {
			if sched.Tasks[i].TaskID == taskID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%w: task %s not in schedule", ErrNotFound, taskID)
		}
		task := &sched.Tasks[idx]
		duration := time.Duration(task.DurationHours) * time.Hour
		switch {
		case adj.StartDate != nil && adj.EndDate != nil:
			if !adj.StartDate.Before(*adj.EndDate) {
				return nil, fmt.Errorf("task %s: start_date must be before end_date", taskID)
			}
			task.StartDate = *adj.StartDate
			task.EndDate = *adj.EndDate
			task.DurationHours = int(adj.EndDate.Sub(*adj.StartDate).Hours())
		case adj.StartDate != nil:
			task.StartDate = *adj.StartDate
			task.EndDate = adj.StartDate.Add(duration)
		case adj.EndDate != nil:
			task.EndDate = *adj.EndDate
			task.StartDate = adj.EndDate.Add(-duration)
		}
	}

	sched.Version++
	deriveProjectBounds(sched)
	return cloneSchedule(sched), nil
}

// deriveProjectBounds recomputes the project window from the task dates.
func deriveProjectBounds(sched *Schedule) {
	if len(sched.Tasks) == 0 {
		return
	}
	start := sched.Tasks[0].StartDate
	end := sched.Tasks[0].EndDate
	for _, task := range sched.Tasks[1:] {
		if task.StartDate.Before(start) {
			start = task.StartDate
		}
		if task.EndDate.After(end) {
			end = task.EndDate
		}
	}
	sched.ProjectStart = start
	sched.ProjectEnd = end
	sched.ProjectDurationHours = int(end.Sub(start).Hours())
}

func cloneSchedule(sched *Schedule) *Schedule {
	cp := *sched
	cp.Tasks = make([]ScheduledTask, len(sched.Tasks))
	copy(cp.Tasks, sched.Tasks)
	cp.CriticalPath = append([]string(nil), sched.CriticalPath...)
	cp.Conflicts = append([]Conflict(nil), sched.Conflicts...)
	cp.Milestones = append([]MilestoneResult(nil), sched.Milestones...)
	return &cp
}
