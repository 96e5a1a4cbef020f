package resource_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/traceline/graph"
	"github.com/c360studio/traceline/resource"
	"github.com/c360studio/traceline/workitem"
)

func newService(t *testing.T) (*resource.Service, *graph.Memory) {
	t.Helper()
	exec := graph.NewMemory()
	return resource.NewService(exec), exec
}

func createResource(t *testing.T, svc *resource.Service, name, dept string, skills ...string) *resource.Resource {
	t.Helper()
	r, err := svc.CreateResource(context.Background(), resource.Resource{
		Name:         name,
		Type:         "person",
		Capacity:     1,
		DepartmentID: dept,
		Skills:       skills,
	}, "alice")
	require.NoError(t, err)
	return r
}

func TestAllocationKindsAreExclusive(t *testing.T) {
	svc, exec := newService(t)
	ctx := context.Background()
	r := createResource(t, svc, "Dana", "d-1", "go")

	require.NoError(t, exec.CreateNode(ctx, "WorkItem", map[string]any{"id": "task-1"}))

	require.NoError(t, svc.AllocateToProject(ctx, r.ID, "proj-1", resource.Allocation{Percentage: 50}, "alice"))

	err := svc.AllocateToTask(ctx, r.ID, "task-1", resource.Allocation{Percentage: 50}, "alice")
	assert.ErrorIs(t, err, resource.ErrAllocationKind)

	// After deallocating the project, task allocation is allowed.
	require.NoError(t, svc.Deallocate(ctx, r.ID, "proj-1", "alice"))
	require.NoError(t, svc.AllocateToTask(ctx, r.ID, "task-1", resource.Allocation{Percentage: 50}, "alice"))

	err = svc.AllocateToProject(ctx, r.ID, "proj-1", resource.Allocation{Percentage: 50}, "alice")
	assert.ErrorIs(t, err, resource.ErrAllocationKind)
}

func TestLeadResourcesForTask(t *testing.T) {
	svc, exec := newService(t)
	ctx := context.Background()
	lead := createResource(t, svc, "Lead engineer", "d-1", "go")
	member := createResource(t, svc, "Team member", "d-1", "go")

	require.NoError(t, exec.CreateNode(ctx, "WorkItem", map[string]any{"id": "task-1"}))
	require.NoError(t, svc.AllocateToTask(ctx, lead.ID, "task-1", resource.Allocation{Percentage: 80, Lead: true}, "alice"))
	require.NoError(t, svc.AllocateToTask(ctx, member.ID, "task-1", resource.Allocation{Percentage: 40}, "alice"))

	leads, err := svc.LeadResourcesForTask(ctx, "task-1")
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, lead.ID, leads[0].ID)
}

func TestSkillMatchScoringAndOrder(t *testing.T) {
	svc, exec := newService(t)
	ctx := context.Background()

	full := createResource(t, svc, "Covers everything", "", "go", "neo4j")
	half := createResource(t, svc, "Covers half", "", "go")
	affine := createResource(t, svc, "Half plus department", "d-1", "neo4j")
	createResource(t, svc, "No overlap", "", "cobol")
	leadHalf := createResource(t, svc, "Half but lead", "", "go")

	require.NoError(t, exec.CreateNode(ctx, "WorkItem", map[string]any{"id": "task-1"}))
	require.NoError(t, svc.AllocateToTask(ctx, leadHalf.ID, "task-1", resource.Allocation{Percentage: 50, Lead: true}, "alice"))

	matches, err := svc.Match(ctx, []string{"go", "neo4j"}, []string{"d-1"})
	require.NoError(t, err)
	require.Len(t, matches, 4, "zero-overlap resources are excluded")

	// Lead holders sort first regardless of score.
	assert.Equal(t, leadHalf.ID, matches[0].Resource.ID)
	assert.InDelta(t, 0.55, matches[0].Score, 0.001)

	assert.Equal(t, full.ID, matches[1].Resource.ID)
	assert.InDelta(t, 1.0, matches[1].Score, 0.001)
	assert.Equal(t, 2, matches[1].MatchCount)

	assert.Equal(t, affine.ID, matches[2].Resource.ID)
	assert.InDelta(t, 0.6, matches[2].Score, 0.001)

	assert.Equal(t, half.ID, matches[3].Resource.ID)
	assert.InDelta(t, 0.5, matches[3].Score, 0.001)
}

func TestMatchWithoutSkillsReturnsAllLeadFirst(t *testing.T) {
	svc, exec := newService(t)
	ctx := context.Background()

	a := createResource(t, svc, "Plain resource", "", "go")
	b := createResource(t, svc, "Lead resource", "", "rust")

	require.NoError(t, exec.CreateNode(ctx, "WorkItem", map[string]any{"id": "task-1"}))
	require.NoError(t, svc.AllocateToTask(ctx, b.ID, "task-1", resource.Allocation{Percentage: 50, Lead: true}, "alice"))

	matches, err := svc.Match(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, b.ID, matches[0].Resource.ID)
	assert.Equal(t, a.ID, matches[1].Resource.ID)
}

func TestMatchForTaskUsesTaskSkillsAndDepartments(t *testing.T) {
	svc, exec := newService(t)
	ctx := context.Background()
	items := workitem.NewStore(exec)

	task, err := items.Create(ctx, workitem.CreateInput{
		Type:         workitem.TypeTask,
		Title:        "Build graph layer",
		Status:       workitem.StatusReady,
		ProjectID:    "proj-1",
		SkillsNeeded: []string{"neo4j"},
	}, "alice")
	require.NoError(t, err)

	matched := createResource(t, svc, "Graph specialist", "d-1", "neo4j")
	createResource(t, svc, "Unrelated", "", "cobol")
	require.NoError(t, svc.LinkDepartment(ctx, "proj-1", "d-1"))

	matches, err := svc.MatchForTask(ctx, items, task.ID)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, matched.ID, matches[0].Resource.ID)
	assert.InDelta(t, 1.10, matches[0].Score, 0.001)
}

func TestDependencyCycleRejected(t *testing.T) {
	svc, exec := newService(t)
	ctx := context.Background()
	for _, id := range []string{"t1", "t2", "t3", "m1"} {
		require.NoError(t, exec.CreateNode(ctx, "WorkItem", map[string]any{"id": id}))
	}

	require.NoError(t, svc.AddDependency(ctx, "t1", "t2"))
	require.NoError(t, svc.AddDependency(ctx, "t2", "t3"))

	// Direct cycle.
	err := svc.AddDependency(ctx, "t2", "t1")
	assert.ErrorIs(t, err, resource.ErrCycle)

	// Indirect cycle through t2.
	err = svc.AddDependency(ctx, "t3", "t1")
	assert.ErrorIs(t, err, resource.ErrCycle)

	// Self dependency.
	err = svc.AddDependency(ctx, "t1", "t1")
	assert.ErrorIs(t, err, resource.ErrCycle)

	// Milestone depending on a task that transitively depends on it.
	require.NoError(t, svc.AddDependency(ctx, "t3", "m1"))
	err = svc.AddDependency(ctx, "m1", "t1")
	assert.ErrorIs(t, err, resource.ErrCycle)
}

func TestMilestoneOrderingCycleRejected(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	m1, err := svc.CreateMilestone(ctx, resource.Milestone{ProjectID: "proj-1", Title: "Design freeze"}, "alice")
	require.NoError(t, err)
	m2, err := svc.CreateMilestone(ctx, resource.Milestone{ProjectID: "proj-1", Title: "Code freeze"}, "alice")
	require.NoError(t, err)
	m3, err := svc.CreateMilestone(ctx, resource.Milestone{ProjectID: "proj-1", Title: "Release"}, "alice")
	require.NoError(t, err)

	require.NoError(t, svc.AddMilestoneBefore(ctx, m1.ID, m2.ID))
	require.NoError(t, svc.AddMilestoneBefore(ctx, m2.ID, m3.ID))

	err = svc.AddMilestoneBefore(ctx, m3.ID, m1.ID)
	assert.ErrorIs(t, err, resource.ErrCycle)
}
