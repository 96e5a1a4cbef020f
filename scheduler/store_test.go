package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/traceline/scheduler"
)

func storedSchedule(t *testing.T) (*scheduler.Store, *scheduler.Schedule) {
	t.Helper()
	sched := solve(t, scheduler.Problem{
		ProjectID: "proj-1",
		Tasks: []scheduler.Task{
			{ID: "A", EstimatedHours: 8},
			{ID: "B", EstimatedHours: 16, Dependencies: []scheduler.Dependency{fs("A", 0)}},
		},
		Constraints: defaultConstraints(),
	})
	store := scheduler.NewStore()
	store.Save(sched)
	return store, sched
}

func TestStoreSaveAndGet(t *testing.T) {
	store, sched := storedSchedule(t)

	got, err := store.Get("proj-1")
	require.NoError(t, err)
	assert.Equal(t, sched.ProjectDurationHours, got.ProjectDurationHours)
	assert.Equal(t, 1, got.Version)

	_, err = store.Get("unknown")
	assert.ErrorIs(t, err, scheduler.ErrNotFound)
}

func TestStoreIgnoresInfeasible(t *testing.T) {
	store, _ := storedSchedule(t)

	infeasible := solve(t, scheduler.Problem{
		ProjectID: "proj-1",
		Tasks: []scheduler.Task{
			{ID: "A", EstimatedHours: 8, Dependencies: []scheduler.Dependency{fs("A", 0)}},
		},
		Constraints: defaultConstraints(),
	})
	require.Equal(t, scheduler.StatusInfeasible, infeasible.Status)
	store.Save(infeasible)

	got, err := store.Get("proj-1")
	require.NoError(t, err)
	assert.NotEqual(t, scheduler.StatusInfeasible, got.Status, "stored schedule stays untouched")
}

func TestStoreResaveBumpsVersion(t *testing.T) {
	store, sched := storedSchedule(t)
	store.Save(sched)

	got, err := store.Get("proj-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
}

func TestUpdateAdjustsStartKeepingDuration(t *testing.T) {
	store, _ := storedSchedule(t)
	newStart := projectStart.Add(48 * time.Hour)

	updated, err := store.Update("proj-1", map[string]scheduler.TaskAdjustment{
		"A": {StartDate: &newStart},
	})
	require.NoError(t, err)

	a := taskByID(t, updated, "A")
	assert.Equal(t, newStart, a.StartDate)
	assert.Equal(t, newStart.Add(8*time.Hour), a.EndDate)
	assert.Equal(t, 2, updated.Version)

	// Project bounds re-derive from the adjusted tasks.
	assert.Equal(t, a.EndDate, updated.ProjectEnd)
	assert.True(t, !updated.ProjectStart.After(a.StartDate))
}

func TestUpdateAdjustsEndRecomputingStart(t *testing.T) {
	store, _ := storedSchedule(t)
	newEnd := projectStart.Add(60 * time.Hour)

	updated, err := store.Update("proj-1", map[string]scheduler.TaskAdjustment{
		"B": {EndDate: &newEnd},
	})
	require.NoError(t, err)

	b := taskByID(t, updated, "B")
	assert.Equal(t, newEnd, b.EndDate)
	assert.Equal(t, newEnd.Add(-16*time.Hour), b.StartDate)
}

func TestUpdateUnknownTaskFails(t *testing.T) {
	store, _ := storedSchedule(t)
	now := projectStart

	_, err := store.Update("proj-1", map[string]scheduler.TaskAdjustment{
		"ghost": {StartDate: &now},
	})
	assert.ErrorIs(t, err, scheduler.ErrNotFound)
}

func TestSolveWithTimeoutStillReturns(t *testing.T) {
	solver := scheduler.NewSolver(scheduler.WithTimeout(50 * time.Millisecond))
	sched, err := solver.Solve(context.Background(), scheduler.Problem{
		ProjectID: "proj-1",
		Tasks: []scheduler.Task{
			{ID: "A", EstimatedHours: 8},
		},
		Constraints: defaultConstraints(),
	})
	require.NoError(t, err)
	assert.NotEqual(t, scheduler.StatusInfeasible, sched.Status)
}
