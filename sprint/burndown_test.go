package sprint_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/traceline/sprint"
)

func TestBurndownSeries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sp := f.createSprint(t, sprint.CreateInput{
		StartDate: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC),
	})
	_, err := f.coord.Start(ctx, sp.ID, "alice")
	require.NoError(t, err)

	done := f.createTask(t, "Finished midway", 10, 5)
	open := f.createTask(t, "Still open", 10, 5)
	require.NoError(t, f.coord.AddTask(ctx, sp.ID, done.ID, "alice"))
	require.NoError(t, f.coord.AddTask(ctx, sp.ID, open.ID, "alice"))

	// Finish one task on the third sprint day.
	f.clock.t = time.Date(2026, 3, 4, 14, 0, 0, 0, time.UTC)
	f.completeTask(t, done.ID)

	points, err := f.coord.Burndown(ctx, sp.ID)
	require.NoError(t, err)
	require.Len(t, points, 5)

	assert.Equal(t, "2026-03-02", points[0].Date)
	assert.Equal(t, "2026-03-06", points[4].Date)

	// Ideal falls linearly from the planned total to zero.
	assert.InDelta(t, 20.0, points[0].IdealRemainingHours, 0.001)
	assert.InDelta(t, 15.0, points[1].IdealRemainingHours, 0.001)
	assert.InDelta(t, 10.0, points[2].IdealRemainingHours, 0.001)
	assert.InDelta(t, 0.0, points[4].IdealRemainingHours, 0.001)

	// Actual drops when the task completes and stays down.
	assert.InDelta(t, 20.0, points[0].ActualRemainingHours, 0.001)
	assert.InDelta(t, 20.0, points[1].ActualRemainingHours, 0.001)
	assert.InDelta(t, 10.0, points[2].ActualRemainingHours, 0.001)
	assert.InDelta(t, 10.0, points[4].ActualRemainingHours, 0.001)

	assert.InDelta(t, 10.0, points[0].IdealRemainingPoints, 0.001)
	assert.InDelta(t, 5.0, points[2].ActualRemainingPoints, 0.001)
}

func TestBurndownMonotone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sp := f.createSprint(t, sprint.CreateInput{
		StartDate: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC),
	})
	_, err := f.coord.Start(ctx, sp.ID, "alice")
	require.NoError(t, err)

	days := []time.Time{
		time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 6, 16, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC),
	}
	for i, when := range days {
		task := f.createTask(t, "Deliverable number x", float64(4+i*2), i+1)
		require.NoError(t, f.coord.AddTask(ctx, sp.ID, task.ID, "alice"))
		f.clock.t = when
		f.completeTask(t, task.ID)
	}

	points, err := f.coord.Burndown(ctx, sp.ID)
	require.NoError(t, err)
	require.NotEmpty(t, points)

	for i := 1; i < len(points); i++ {
		assert.LessOrEqual(t, points[i].ActualRemainingHours, points[i-1].ActualRemainingHours)
		assert.LessOrEqual(t, points[i].ActualRemainingPoints, points[i-1].ActualRemainingPoints)
		assert.LessOrEqual(t, points[i].IdealRemainingHours, points[i-1].IdealRemainingHours)
		assert.LessOrEqual(t, points[i].IdealRemainingPoints, points[i-1].IdealRemainingPoints)
	}
	last := points[len(points)-1]
	assert.Zero(t, last.IdealRemainingHours)
	assert.Zero(t, last.IdealRemainingPoints)
}

func TestBurndownSingleDaySprint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sp := f.createSprint(t, sprint.CreateInput{
		StartDate: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC),
	})
	task := f.createTask(t, "Single day push", 6, 2)
	require.NoError(t, f.coord.AddTask(ctx, sp.ID, task.ID, "alice"))

	points, err := f.coord.Burndown(ctx, sp.ID)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Zero(t, points[0].IdealRemainingHours)
	assert.InDelta(t, 6.0, points[0].ActualRemainingHours, 0.001)
}
