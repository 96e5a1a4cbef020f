package mail_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/traceline/mail"
)

type fakeSource struct {
	mu       sync.Mutex
	messages []mail.Inbound
	fetches  int
}

func (f *fakeSource) FetchUnseen(context.Context) ([]mail.Inbound, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	msgs := f.messages
	f.messages = nil
	return msgs, nil
}

func (f *fakeSource) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func TestPollerSingleFlight(t *testing.T) {
	f := newProcessorFixture(t)
	poller := mail.NewPoller(&fakeSource{}, f.processor, time.Hour)

	require.NoError(t, poller.Start(context.Background()))
	assert.ErrorIs(t, poller.Start(context.Background()), mail.ErrAlreadyPolling)

	require.NoError(t, poller.Stop(time.Second))
	// After a clean stop the poller may be started again.
	require.NoError(t, poller.Start(context.Background()))
	require.NoError(t, poller.Stop(time.Second))
}

func TestPollerStopIdempotent(t *testing.T) {
	f := newProcessorFixture(t)
	poller := mail.NewPoller(&fakeSource{}, f.processor, time.Hour)

	assert.NoError(t, poller.Stop(time.Second), "stopping a stopped poller is a no-op")
	require.NoError(t, poller.Start(context.Background()))
	assert.NoError(t, poller.Stop(time.Second))
	assert.NoError(t, poller.Stop(time.Second))
}

func TestPollerProcessesMessages(t *testing.T) {
	f := newProcessorFixture(t)
	source := &fakeSource{messages: []mail.Inbound{
		reply(f.item.ID, "STATUS: done"),
	}}
	poller := mail.NewPoller(source, f.processor, time.Hour)

	require.NoError(t, poller.Start(context.Background()))
	// First tick runs immediately on start.
	require.Eventually(t, func() bool { return source.fetchCount() >= 1 },
		time.Second, 10*time.Millisecond)
	require.NoError(t, poller.Stop(time.Second))

	updated, err := f.store.Get(context.Background(), f.item.ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", string(updated.Status))
}

func TestPollerTicksRepeatedly(t *testing.T) {
	f := newProcessorFixture(t)
	source := &fakeSource{}
	poller := mail.NewPoller(source, f.processor, 10*time.Millisecond)

	require.NoError(t, poller.Start(context.Background()))
	require.Eventually(t, func() bool { return source.fetchCount() >= 3 },
		time.Second, 5*time.Millisecond)
	require.NoError(t, poller.Stop(time.Second))
}

func TestPollerParentContextCancelStopsLoop(t *testing.T) {
	f := newProcessorFixture(t)
	poller := mail.NewPoller(&fakeSource{}, f.processor, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, poller.Start(ctx))
	cancel()
	assert.NoError(t, poller.Stop(time.Second))
}
