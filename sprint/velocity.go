package sprint

import (
	"context"
	"fmt"
	"time"

	"github.com/c360studio/traceline/graph"
	"github.com/c360studio/traceline/workitem"
)

// velocityOf sums completed work over a task set.
func velocityOf(tasks []*workitem.WorkItem) Velocity {
	var vel Velocity
	for _, task := range tasks {
		if task.Status != workitem.StatusCompleted {
			continue
		}
		vel.Hours += task.EstimatedHours
		vel.StoryPoints += task.StoryPoints
	}
	return vel
}

// SprintVelocity returns the completed work of one sprint.
func (c *Coordinator) SprintVelocity(ctx context.Context, sprintID string) (*Velocity, error) {
	if _, err := c.Get(ctx, sprintID); err != nil {
		return nil, err
	}
	tasks, err := c.SprintTasks(ctx, sprintID)
	if err != nil {
		return nil, err
	}
	vel := velocityOf(tasks)
	return &vel, nil
}

// TeamAverageVelocity averages the written-back velocities of the
// project's most recent n completed sprints, newest first by end date.
func (c *Coordinator) TeamAverageVelocity(ctx context.Context, projectID string, n int) (*Velocity, error) {
	if n <= 0 {
		n = 3
	}
	sprints, err := c.CompletedSprints(ctx, projectID, n)
	if err != nil {
		return nil, err
	}
	if len(sprints) == 0 {
		return &Velocity{}, nil
	}
	var vel Velocity
	for _, sp := range sprints {
		vel.Hours += sp.ActualVelocityHours
		vel.StoryPoints += sp.ActualVelocityStoryPoints
	}
	vel.Hours /= float64(len(sprints))
	vel.StoryPoints /= len(sprints)
	return &vel, nil
}

// CompletedSprints returns up to limit completed sprints of the project,
// most recently ended first.
func (c *Coordinator) CompletedSprints(ctx context.Context, projectID string, limit int) ([]*Sprint, error) {
	rows, err := c.exec.ExecuteQuery(ctx, graph.Query{
		Label: LabelSprint,
		Where: []graph.Cond{
			graph.Eq("project_id", projectID),
			graph.Eq("status", string(StatusCompleted)),
		},
		OrderBy: []graph.Order{{Field: "end_date_unix", Desc: true}},
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list completed sprints: %w", err)
	}
	sprints := make([]*Sprint, 0, len(rows))
	for _, row := range rows {
		sp, err := sprintFromRow(row)
		if err != nil {
			return nil, err
		}
		sprints = append(sprints, sp)
	}
	return sprints, nil
}

// Burndown produces one point per day from the sprint's start to its end,
// both inclusive. The ideal series falls linearly from the total planned
// work at day zero to nothing on the last day; the actual series subtracts
// work completed on or before each day. Both are monotone non-increasing.
func (c *Coordinator) Burndown(ctx context.Context, sprintID string) ([]BurndownPoint, error) {
	sp, err := c.Get(ctx, sprintID)
	if err != nil {
		return nil, err
	}
	tasks, err := c.SprintTasks(ctx, sprintID)
	if err != nil {
		return nil, err
	}

	var totalHours float64
	var totalPoints float64
	for _, task := range tasks {
		totalHours += task.EstimatedHours
		totalPoints += float64(task.StoryPoints)
	}

	start := dateOf(sp.StartDate)
	end := dateOf(sp.EndDate)
	days := int(end.Sub(start).Hours()/24) + 1
	if days < 1 {
		days = 1
	}

	points := make([]BurndownPoint, 0, days)
	for d := 0; d < days; d++ {
		day := start.AddDate(0, 0, d)
		endOfDay := day.AddDate(0, 0, 1).Add(-time.Nanosecond)

		var doneHours, donePoints float64
		for _, task := range tasks {
			if task.Status != workitem.StatusCompleted {
				continue
			}
			if task.UpdatedAt.After(endOfDay) {
				continue
			}
			doneHours += task.EstimatedHours
			donePoints += float64(task.StoryPoints)
		}

		var idealFrac float64
		if days > 1 {
			idealFrac = float64(days-1-d) / float64(days-1)
		}
		points = append(points, BurndownPoint{
			Date:                  day.Format("2006-01-02"),
			IdealRemainingHours:   totalHours * idealFrac,
			ActualRemainingHours:  totalHours - doneHours,
			IdealRemainingPoints:  totalPoints * idealFrac,
			ActualRemainingPoints: totalPoints - donePoints,
		})
	}
	return points, nil
}

// dateOf truncates a time to its UTC calendar day.
func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
