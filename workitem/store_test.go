package workitem_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/traceline/audit"
	"github.com/c360studio/traceline/graph"
	"github.com/c360studio/traceline/workitem"
)

type fakeGuard struct {
	signed        bool
	invalidations []string
}

func (g *fakeGuard) IsSigned(context.Context, string) (bool, error) {
	return g.signed, nil
}

func (g *fakeGuard) InvalidateWorkItemSignatures(_ context.Context, _ string, reason string) error {
	g.invalidations = append(g.invalidations, reason)
	return nil
}

func newTestStore(t *testing.T) (*workitem.Store, *fakeGuard, *audit.Memory) {
	t.Helper()
	guard := &fakeGuard{}
	trail := audit.NewMemory()
	store := workitem.NewStore(graph.NewMemory(),
		workitem.WithSignatureGuard(guard),
		workitem.WithAuditRecorder(trail),
	)
	return store, guard, trail
}

func createTask(t *testing.T, store *workitem.Store, title string) *workitem.WorkItem {
	t.Helper()
	item, err := store.Create(context.Background(), workitem.CreateInput{
		Type:           workitem.TypeTask,
		Title:          title,
		EstimatedHours: 8,
		StoryPoints:    3,
	}, "alice")
	require.NoError(t, err)
	return item
}

func TestCreateAndGetRoundtrip(t *testing.T) {
	store, _, trail := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, workitem.CreateInput{
		Type:               workitem.TypeRequirement,
		Title:              "User authentication",
		Description:        "Login with corporate SSO",
		AcceptanceCriteria: "Given a valid account, login succeeds",
		Priority:           2,
	}, "alice")
	require.NoError(t, err)
	assert.Equal(t, "1.0", created.Version)
	assert.Equal(t, "alice", created.CreatedBy)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Title, got.Title)
	assert.Equal(t, created.Version, got.Version)
	assert.Equal(t, created.AcceptanceCriteria, got.AcceptanceCriteria)

	events := trail.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "workitem.create", events[0].Operation)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	store, _, _ := newTestStore(t)
	_, err := store.Get(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, workitem.ErrNotFound)
}

func TestUpdateAppendsVersionAndInvalidatesSignatures(t *testing.T) {
	store, guard, trail := newTestStore(t)
	ctx := context.Background()
	item := createTask(t, store, "Implement login")

	title := "Implement SSO login"
	updated, err := store.Update(ctx, item.ID, workitem.Update{
		Title:             &title,
		ChangeDescription: "scope changed to SSO",
	}, "bob")
	require.NoError(t, err)
	assert.Equal(t, "1.1", updated.Version)
	assert.Equal(t, "bob", updated.UpdatedBy)
	assert.Equal(t, "scope changed to SSO", updated.ChangeDescription)

	// The previous snapshot is intact and no longer current.
	old, err := store.GetVersion(ctx, item.ID, "1.0")
	require.NoError(t, err)
	assert.Equal(t, "Implement login", old.Title)

	current, err := store.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "1.1", current.Version)
	assert.Equal(t, title, current.Title)

	require.Len(t, guard.invalidations, 1)
	assert.Equal(t, "WorkItem modified", guard.invalidations[0])

	events := trail.Events()
	last := events[len(events)-1]
	assert.Equal(t, "workitem.update", last.Operation)
	assert.ElementsMatch(t, []string{"title"}, last.Details["updated_fields"])
}

func TestVersionChainIsMonotone(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()
	item := createTask(t, store, "Long lived task")

	for i := range 12 {
		desc := fmt.Sprintf("iteration %d", i)
		_, err := store.Update(ctx, item.ID, workitem.Update{
			Description:       &desc,
			ChangeDescription: desc,
		}, "alice")
		require.NoError(t, err)
	}

	history, err := store.History(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, history, 13)
	assert.Equal(t, "1.12", history[0].Version)
	assert.Equal(t, "1.0", history[len(history)-1].Version)

	for i := 0; i < len(history)-1; i++ {
		assert.Equal(t, 1, workitem.CompareVersions(history[i].Version, history[i+1].Version),
			"history must be strictly decreasing: %s then %s", history[i].Version, history[i+1].Version)
	}
}

func TestSnapshotsAreStableAcrossLaterUpdates(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()
	item := createTask(t, store, "Snapshot stability")

	first, err := store.GetVersion(ctx, item.ID, "1.0")
	require.NoError(t, err)

	hours := 40.0
	_, err = store.Update(ctx, item.ID, workitem.Update{
		EstimatedHours:    &hours,
		ChangeDescription: "re-estimated",
	}, "alice")
	require.NoError(t, err)

	again, err := store.GetVersion(ctx, item.ID, "1.0")
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, 8.0, again.EstimatedHours)
}

func TestDeleteRefusesSignedWithoutForce(t *testing.T) {
	store, guard, _ := newTestStore(t)
	ctx := context.Background()
	item := createTask(t, store, "Signed task")
	guard.signed = true

	err := store.Delete(ctx, item.ID, false, "alice")
	assert.ErrorIs(t, err, workitem.ErrSigned)

	// Still present.
	_, err = store.Get(ctx, item.ID)
	assert.NoError(t, err)
}

func TestForcedDeleteInvalidatesAndRemoves(t *testing.T) {
	store, guard, _ := newTestStore(t)
	ctx := context.Background()
	item := createTask(t, store, "Signed task")
	guard.signed = true

	require.NoError(t, store.Delete(ctx, item.ID, true, "admin"))
	assert.Contains(t, guard.invalidations, "WorkItem deleted")

	_, err := store.Get(ctx, item.ID)
	assert.ErrorIs(t, err, workitem.ErrNotFound)
	_, err = store.GetVersion(ctx, item.ID, "1.0")
	assert.ErrorIs(t, err, workitem.ErrNotFound)
}

func TestRestoreWritesNewVersionOnTop(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()
	item := createTask(t, store, "Original title")

	renamed := "Renamed title"
	_, err := store.Update(ctx, item.ID, workitem.Update{
		Title:             &renamed,
		ChangeDescription: "rename",
	}, "alice")
	require.NoError(t, err)

	restored, err := store.Restore(ctx, item.ID, "1.0", "alice")
	require.NoError(t, err)
	assert.Equal(t, "1.2", restored.Version)
	assert.Equal(t, "Original title", restored.Title)
	assert.Equal(t, "Restored to version 1.0", restored.ChangeDescription)

	// The intermediate version still exists untouched.
	middle, err := store.GetVersion(ctx, item.ID, "1.1")
	require.NoError(t, err)
	assert.Equal(t, renamed, middle.Title)
}

func TestCommentsAreChronologicalAndUnversioned(t *testing.T) {
	store, guard, _ := newTestStore(t)
	ctx := context.Background()
	item := createTask(t, store, "Discussed task")

	_, err := store.AddComment(ctx, item.ID, "first note", "alice")
	require.NoError(t, err)
	_, err = store.AddComment(ctx, item.ID, "second note", "bob")
	require.NoError(t, err)

	comments, err := store.Comments(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "first note", comments[0].Text)
	assert.Equal(t, "second note", comments[1].Text)

	// Comments do not advance the version or touch signatures.
	current, err := store.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "1.0", current.Version)
	assert.Empty(t, guard.invalidations)
}

func TestConcurrentUpdatesSerializePerItem(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()
	item := createTask(t, store, "Contended task")

	const writers = 8
	done := make(chan error, writers)
	for i := 0; i < writers; i++ {
		go func(n int) {
			desc := fmt.Sprintf("writer %d", n)
			_, err := store.Update(ctx, item.ID, workitem.Update{
				Description:       &desc,
				ChangeDescription: desc,
			}, "alice")
			done <- err
		}(i)
	}
	deadline := time.After(5 * time.Second)
	for i := 0; i < writers; i++ {
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-deadline:
			t.Fatal("concurrent updates did not finish")
		}
	}

	history, err := store.History(ctx, item.ID)
	require.NoError(t, err)
	// Every writer produced exactly one new snapshot.
	assert.Len(t, history, writers+1)
	assert.Equal(t, fmt.Sprintf("1.%d", writers), history[0].Version)
}
