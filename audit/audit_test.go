package audit_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/traceline/audit"
)

func TestNewEventStampsIdentityAndTime(t *testing.T) {
	e := audit.NewEvent("alice", "workitem.update", "workitem", "wi-1", map[string]any{"version": "1.1"})
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.OccurredAt.IsZero())
	assert.Equal(t, "alice", e.Actor)
	assert.Equal(t, "workitem.update", e.Operation)
}

func TestMemoryRecorderKeepsOrder(t *testing.T) {
	rec := audit.NewMemory()
	ctx := context.Background()

	require.NoError(t, rec.Record(ctx, audit.NewEvent("a", "op.one", "workitem", "1", nil)))
	require.NoError(t, rec.Record(ctx, audit.NewEvent("b", "op.two", "workitem", "1", nil)))

	events := rec.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "op.one", events[0].Operation)
	assert.Equal(t, "op.two", events[1].Operation)
}

type failingRecorder struct{ err error }

func (f failingRecorder) Record(context.Context, audit.Event) error { return f.err }

func TestMultiRecorderJoinsErrors(t *testing.T) {
	boom := errors.New("sink down")
	mem := audit.NewMemory()
	rec := audit.Multi(failingRecorder{err: boom}, mem)

	err := rec.Record(context.Background(), audit.NewEvent("a", "op", "workitem", "1", nil))
	assert.ErrorIs(t, err, boom)
	// The healthy sink still receives the event.
	assert.Len(t, mem.Events(), 1)
}

func TestNopRecorderAcceptsEverything(t *testing.T) {
	assert.NoError(t, audit.Nop().Record(context.Background(), audit.Event{}))
}
