package mail

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "gopkg.in/gomail.v2"

	"github.com/c360studio/traceline/workitem"
)

type captureDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *captureDialer) DialAndSend(m ...*gomail.Message) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, m...)
	return nil
}

func testItem() *workitem.WorkItem {
	return &workitem.WorkItem{
		ID:          "550e8400-e29b-41d4-a716-446655440000",
		Type:        workitem.TypeTask,
		Title:       "Fix login",
		Status:      workitem.StatusActive,
		Description: "SSO redirect loops",
	}
}

func newTestSender(cfg SenderConfig) (*Sender, *captureDialer, *MemoryThreadStore) {
	d := &captureDialer{}
	threads := NewMemoryThreadStore()
	fixed := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s := NewSender(cfg, threads,
		withDialer(d),
		WithSenderClock(func() time.Time { return fixed }),
	)
	return s, d, threads
}

func TestSendWorkInstruction(t *testing.T) {
	s, d, threads := newTestSender(SenderConfig{From: "alm@corp.example", ReplyTo: "replies@corp.example"})
	item := testItem()

	err := s.SendWorkInstruction(context.Background(), item, []string{"dev@corp.example"})
	require.NoError(t, err)
	require.Len(t, d.sent, 1)

	msg := d.sent[0]
	assert.Equal(t, []string{"[WorkItem-550e8400-e29b-41d4-a716-446655440000] Fix login"}, msg.GetHeader("Subject"))
	assert.Equal(t, []string{"replies@corp.example"}, msg.GetHeader("Reply-To"))
	assert.Equal(t, []string{"dev@corp.example"}, msg.GetHeader("To"))

	thread, err := threads.Get(context.Background(), ThreadID(item.ID))
	require.NoError(t, err)
	require.Len(t, thread.Emails, 1)
	assert.Equal(t, DirectionOutbound, thread.Emails[0].Direction)
	assert.Contains(t, thread.Emails[0].Body, "STATUS:")
}

func TestSendWorkInstructionSkipsInvalidRecipients(t *testing.T) {
	s, d, _ := newTestSender(SenderConfig{From: "alm@corp.example"})

	err := s.SendWorkInstruction(context.Background(), testItem(),
		[]string{"not-an-address", "dev@corp.example"})
	require.NoError(t, err)
	require.Len(t, d.sent, 1)
	assert.Equal(t, []string{"dev@corp.example"}, d.sent[0].GetHeader("To"))
}

func TestSendWorkInstructionAllInvalid(t *testing.T) {
	s, d, _ := newTestSender(SenderConfig{From: "alm@corp.example"})

	err := s.SendWorkInstruction(context.Background(), testItem(), []string{"nope", ""})
	assert.ErrorIs(t, err, ErrNoValidRecipients)
	assert.Empty(t, d.sent)
}

func TestRecipientAllowlist(t *testing.T) {
	s, _, _ := newTestSender(SenderConfig{
		From:          "alm@corp.example",
		AllowPatterns: []string{"*@corp.example"},
	})

	valid, rejected := s.ValidRecipients([]string{
		"dev@corp.example",
		"outsider@evil.example",
		"Dev Two <dev2@corp.example>",
	})
	assert.Equal(t, []string{"dev@corp.example", "dev2@corp.example"}, valid)
	assert.Equal(t, []string{"outsider@evil.example"}, rejected)
}

func TestSendParseError(t *testing.T) {
	s, d, _ := newTestSender(SenderConfig{From: "alm@corp.example"})

	err := s.SendParseError(context.Background(), "dev@corp.example", "[WorkItem-x] y", "no fields found")
	require.NoError(t, err)
	require.Len(t, d.sent, 1)
	assert.Equal(t, []string{"Re: [WorkItem-x] y"}, d.sent[0].GetHeader("Subject"))
}
