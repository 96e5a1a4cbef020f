package sprint_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/traceline/graph"
	"github.com/c360studio/traceline/sprint"
	"github.com/c360studio/traceline/workitem"
)

type fixture struct {
	exec  *graph.Memory
	items *workitem.Store
	coord *sprint.Coordinator
	clock *fakeClock
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	exec := graph.NewMemory()
	items := workitem.NewStore(exec, workitem.WithClock(clock.now))
	coord := sprint.NewCoordinator(exec, items, sprint.WithClock(clock.now))
	return &fixture{exec: exec, items: items, coord: coord, clock: clock}
}

func (f *fixture) createTask(t *testing.T, title string, hours float64, points int) *workitem.WorkItem {
	t.Helper()
	task, err := f.items.Create(context.Background(), workitem.CreateInput{
		Type:           workitem.TypeTask,
		Title:          title,
		Status:         workitem.StatusReady,
		ProjectID:      "proj-1",
		EstimatedHours: hours,
		StoryPoints:    points,
	}, "alice")
	require.NoError(t, err)
	return task
}

func (f *fixture) createSprint(t *testing.T, in sprint.CreateInput) *sprint.Sprint {
	t.Helper()
	if in.ProjectID == "" {
		in.ProjectID = "proj-1"
	}
	if in.Name == "" {
		in.Name = "Iteration 1"
	}
	if in.StartDate.IsZero() {
		in.StartDate = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	}
	if in.EndDate.IsZero() {
		in.EndDate = time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC)
	}
	sp, err := f.coord.Create(context.Background(), in, "alice")
	require.NoError(t, err)
	return sp
}

func (f *fixture) completeTask(t *testing.T, id string) {
	t.Helper()
	done := workitem.StatusCompleted
	_, err := f.items.Update(context.Background(), id, workitem.Update{
		Status:            &done,
		ChangeDescription: "work finished",
	}, "alice")
	require.NoError(t, err)
}

func TestStartSprint(t *testing.T) {
	f := newFixture(t)
	sp := f.createSprint(t, sprint.CreateInput{})
	assert.Equal(t, sprint.StatusPlanning, sp.Status)

	started, err := f.coord.Start(context.Background(), sp.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, sprint.StatusActive, started.Status)
}

func TestSecondActiveSprintRejected(t *testing.T) {
	f := newFixture(t)
	a := f.createSprint(t, sprint.CreateInput{Name: "Sprint A"})
	b := f.createSprint(t, sprint.CreateInput{Name: "Sprint B"})

	_, err := f.coord.Start(context.Background(), a.ID, "alice")
	require.NoError(t, err)

	_, err = f.coord.Start(context.Background(), b.ID, "alice")
	var conflict *sprint.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, sprint.ConflictActiveSprintExists, conflict.Type)
	assert.Contains(t, conflict.Message, "already has an active sprint")
}

func TestCreateDirectlyActiveChecksUniqueness(t *testing.T) {
	f := newFixture(t)
	f.createSprint(t, sprint.CreateInput{Name: "Sprint A", Status: sprint.StatusActive})

	_, err := f.coord.Create(context.Background(), sprint.CreateInput{
		ProjectID: "proj-1",
		Name:      "Sprint B",
		Status:    sprint.StatusActive,
		StartDate: time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 3, 27, 0, 0, 0, 0, time.UTC),
	}, "alice")
	var conflict *sprint.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, sprint.ConflictActiveSprintExists, conflict.Type)
}

func TestActiveSprintsInDifferentProjectsCoexist(t *testing.T) {
	f := newFixture(t)
	f.createSprint(t, sprint.CreateInput{ProjectID: "proj-1", Status: sprint.StatusActive})
	_, err := f.coord.Create(context.Background(), sprint.CreateInput{
		ProjectID: "proj-2",
		Name:      "Other project",
		Status:    sprint.StatusActive,
		StartDate: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC),
	}, "alice")
	require.NoError(t, err)
}

func TestBacklogSprintMutualExclusion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.createTask(t, "Implement login", 8, 3)
	sp := f.createSprint(t, sprint.CreateInput{})

	require.NoError(t, f.coord.AddTaskToBacklog(ctx, "proj-1", task.ID, "alice"))
	backlog, err := f.coord.BacklogTasks(ctx, "proj-1")
	require.NoError(t, err)
	require.Len(t, backlog, 1)

	require.NoError(t, f.coord.AddTask(ctx, sp.ID, task.ID, "alice"))

	backlog, err = f.coord.BacklogTasks(ctx, "proj-1")
	require.NoError(t, err)
	assert.Empty(t, backlog, "task must leave the backlog when it joins a sprint")

	assigned, err := f.coord.SprintTasks(ctx, sp.ID)
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, task.ID, assigned[0].ID)
}

func TestReassignMovesTaskBetweenSprints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.createTask(t, "Implement login", 8, 3)
	a := f.createSprint(t, sprint.CreateInput{Name: "Sprint A"})
	b := f.createSprint(t, sprint.CreateInput{Name: "Sprint B"})

	require.NoError(t, f.coord.AddTask(ctx, a.ID, task.ID, "alice"))
	require.NoError(t, f.coord.AddTask(ctx, b.ID, task.ID, "alice"))

	inA, err := f.coord.SprintTasks(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, inA, "task must leave its previous sprint on reassignment")

	inB, err := f.coord.SprintTasks(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, inB, 1)
	assert.Equal(t, task.ID, inB[0].ID)
}

func TestCapacityAdmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sp := f.createSprint(t, sprint.CreateInput{CapacityHours: 40})

	big := f.createTask(t, "Large migration", 36, 0)
	require.NoError(t, f.coord.AddTask(ctx, sp.ID, big.ID, "alice"))

	over := f.createTask(t, "One task too many", 8, 0)
	err := f.coord.AddTask(ctx, sp.ID, over.ID, "alice")
	var conflict *sprint.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, sprint.ConflictCapacityExceeded, conflict.Type)
	assert.Contains(t, conflict.Message, "capacity")

	fits := f.createTask(t, "Small cleanup", 4, 0)
	require.NoError(t, f.coord.AddTask(ctx, sp.ID, fits.ID, "alice"))
}

func TestStoryPointCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sp := f.createSprint(t, sprint.CreateInput{CapacityStoryPoints: 10})

	first := f.createTask(t, "First story", 0, 8)
	require.NoError(t, f.coord.AddTask(ctx, sp.ID, first.ID, "alice"))

	second := f.createTask(t, "Second story", 0, 5)
	err := f.coord.AddTask(ctx, sp.ID, second.ID, "alice")
	var conflict *sprint.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, sprint.ConflictCapacityExceeded, conflict.Type)
}

func TestRemoveTaskReturnsReadyToBacklog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sp := f.createSprint(t, sprint.CreateInput{})
	task := f.createTask(t, "Returnable task", 8, 3)
	require.NoError(t, f.coord.AddTask(ctx, sp.ID, task.ID, "alice"))

	require.NoError(t, f.coord.RemoveTask(ctx, sp.ID, task.ID, true, "alice"))

	backlog, err := f.coord.BacklogTasks(ctx, "proj-1")
	require.NoError(t, err)
	require.Len(t, backlog, 1)
	assert.Equal(t, task.ID, backlog[0].ID)

	assigned, err := f.coord.SprintTasks(ctx, sp.ID)
	require.NoError(t, err)
	assert.Empty(t, assigned)
}

func TestRemoveCompletedTaskSkipsBacklog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sp := f.createSprint(t, sprint.CreateInput{})
	task := f.createTask(t, "Finished task", 8, 3)
	require.NoError(t, f.coord.AddTask(ctx, sp.ID, task.ID, "alice"))
	f.completeTask(t, task.ID)

	require.NoError(t, f.coord.RemoveTask(ctx, sp.ID, task.ID, true, "alice"))

	backlog, err := f.coord.BacklogTasks(ctx, "proj-1")
	require.NoError(t, err)
	assert.Empty(t, backlog, "completed tasks never return to the backlog")
}

func TestCompleteWritesVelocityAndReturnsReadyTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sp := f.createSprint(t, sprint.CreateInput{})
	_, err := f.coord.Start(ctx, sp.ID, "alice")
	require.NoError(t, err)

	done := f.createTask(t, "Completed work", 16, 5)
	open := f.createTask(t, "Unfinished work", 8, 3)
	require.NoError(t, f.coord.AddTask(ctx, sp.ID, done.ID, "alice"))
	require.NoError(t, f.coord.AddTask(ctx, sp.ID, open.ID, "alice"))
	f.completeTask(t, done.ID)

	completed, err := f.coord.Complete(ctx, sp.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, sprint.StatusCompleted, completed.Status)
	assert.Equal(t, 16.0, completed.ActualVelocityHours)
	assert.Equal(t, 5, completed.ActualVelocityStoryPoints)

	backlog, err := f.coord.BacklogTasks(ctx, "proj-1")
	require.NoError(t, err)
	require.Len(t, backlog, 1)
	assert.Equal(t, open.ID, backlog[0].ID)
}

func TestCompleteRequiresActive(t *testing.T) {
	f := newFixture(t)
	sp := f.createSprint(t, sprint.CreateInput{})

	_, err := f.coord.Complete(context.Background(), sp.ID, "alice")
	var conflict *sprint.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, sprint.ConflictInvalidTransition, conflict.Type)
}

func TestNoBackwardTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sp := f.createSprint(t, sprint.CreateInput{})
	_, err := f.coord.Start(ctx, sp.ID, "alice")
	require.NoError(t, err)
	_, err = f.coord.Complete(ctx, sp.ID, "alice")
	require.NoError(t, err)

	_, err = f.coord.Start(ctx, sp.ID, "alice")
	var conflict *sprint.ConflictError
	require.ErrorAs(t, err, &conflict)

	_, err = f.coord.Cancel(ctx, sp.ID, "alice")
	require.ErrorAs(t, err, &conflict)
}

func TestDeleteSprintReturnsTasksFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sp := f.createSprint(t, sprint.CreateInput{})
	task := f.createTask(t, "Orphan candidate", 8, 3)
	require.NoError(t, f.coord.AddTask(ctx, sp.ID, task.ID, "alice"))

	require.NoError(t, f.coord.Delete(ctx, sp.ID, "alice"))

	_, err := f.coord.Get(ctx, sp.ID)
	assert.ErrorIs(t, err, sprint.ErrNotFound)

	backlog, err := f.coord.BacklogTasks(ctx, "proj-1")
	require.NoError(t, err)
	require.Len(t, backlog, 1)
	assert.Equal(t, task.ID, backlog[0].ID)
}

func TestTeamAverageVelocity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i, hours := range []float64{10, 20, 30} {
		start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i*14)
		sp := f.createSprint(t, sprint.CreateInput{
			Name:      "Iteration",
			StartDate: start,
			EndDate:   start.AddDate(0, 0, 10),
		})
		_, err := f.coord.Start(ctx, sp.ID, "alice")
		require.NoError(t, err)

		task := f.createTask(t, "Sprint deliverable", hours, int(hours)/2)
		require.NoError(t, f.coord.AddTask(ctx, sp.ID, task.ID, "alice"))
		f.completeTask(t, task.ID)

		_, err = f.coord.Complete(ctx, sp.ID, "alice")
		require.NoError(t, err)
	}

	avg, err := f.coord.TeamAverageVelocity(ctx, "proj-1", 3)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, avg.Hours, 0.001)

	// The window only covers the two most recent sprints.
	avg, err = f.coord.TeamAverageVelocity(ctx, "proj-1", 2)
	require.NoError(t, err)
	assert.InDelta(t, 25.0, avg.Hours, 0.001)
}

func TestOnlyTasksJoinSprints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sp := f.createSprint(t, sprint.CreateInput{})

	req, err := f.items.Create(ctx, workitem.CreateInput{
		Type:      workitem.TypeRequirement,
		Title:     "Login requirement",
		Status:    workitem.StatusDraft,
		ProjectID: "proj-1",
	}, "alice")
	require.NoError(t, err)

	err = f.coord.AddTask(ctx, sp.ID, req.ID, "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only tasks")
}
