package mail_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/traceline/mail"
)

func TestThreadChronologicalOrder(t *testing.T) {
	store := mail.NewMemoryThreadStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	// Appended out of order; reads come back sorted by timestamp.
	for _, msg := range []mail.Message{
		{MessageID: "m2", Timestamp: base.Add(2 * time.Hour)},
		{MessageID: "m1", Timestamp: base.Add(1 * time.Hour)},
		{MessageID: "m3", Timestamp: base.Add(3 * time.Hour)},
	} {
		require.NoError(t, store.Append(ctx, "wi-1", "subject", msg))
	}

	thread, err := store.Get(ctx, mail.ThreadID("wi-1"))
	require.NoError(t, err)
	assert.Equal(t, "wi-1", thread.WorkItemID)
	require.Len(t, thread.Emails, 3)
	assert.Equal(t, "m1", thread.Emails[0].MessageID)
	assert.Equal(t, "m2", thread.Emails[1].MessageID)
	assert.Equal(t, "m3", thread.Emails[2].MessageID)
}

func TestThreadEqualTimestampsKeepArrivalOrder(t *testing.T) {
	store := mail.NewMemoryThreadStore()
	ctx := context.Background()
	ts := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(ctx, "wi-1", "s", mail.Message{MessageID: "first", Timestamp: ts}))
	require.NoError(t, store.Append(ctx, "wi-1", "s", mail.Message{MessageID: "second", Timestamp: ts}))

	thread, err := store.Get(ctx, mail.ThreadID("wi-1"))
	require.NoError(t, err)
	assert.Equal(t, "first", thread.Emails[0].MessageID)
	assert.Equal(t, "second", thread.Emails[1].MessageID)
}

func TestThreadToleratesDuplicateMessageIDs(t *testing.T) {
	store := mail.NewMemoryThreadStore()
	ctx := context.Background()
	ts := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(ctx, "wi-1", "s", mail.Message{MessageID: "dup", Timestamp: ts}))
	require.NoError(t, store.Append(ctx, "wi-1", "s", mail.Message{MessageID: "dup", Timestamp: ts.Add(time.Minute)}))

	thread, err := store.Get(ctx, mail.ThreadID("wi-1"))
	require.NoError(t, err)
	assert.Len(t, thread.Emails, 2)
}

func TestThreadGetUnknown(t *testing.T) {
	store := mail.NewMemoryThreadStore()
	_, err := store.Get(context.Background(), "thread-missing")
	assert.ErrorIs(t, err, mail.ErrThreadNotFound)
}

func TestThreadGetReturnsCopy(t *testing.T) {
	store := mail.NewMemoryThreadStore()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "wi-1", "s", mail.Message{MessageID: "m1", Timestamp: time.Now()}))
	thread, err := store.Get(ctx, mail.ThreadID("wi-1"))
	require.NoError(t, err)
	thread.Emails[0].MessageID = "tampered"

	again, err := store.Get(ctx, mail.ThreadID("wi-1"))
	require.NoError(t, err)
	assert.Equal(t, "m1", again.Emails[0].MessageID)
}
