package mail_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/traceline/mail"
)

const testWorkItemID = "550e8400-e29b-41d4-a716-446655440000"

func TestWorkItemIDFromSubject(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		wantID  string
		wantOK  bool
	}{
		{
			name:    "plain marker",
			subject: "[WorkItem-" + testWorkItemID + "] Fix login",
			wantID:  testWorkItemID,
			wantOK:  true,
		},
		{
			name:    "reply prefix",
			subject: "Re: [WorkItem-" + testWorkItemID + "] Fix login",
			wantID:  testWorkItemID,
			wantOK:  true,
		},
		{
			name:    "forward prefix and case",
			subject: "Fwd: RE: [workitem-" + testWorkItemID + "] Fix login",
			wantID:  testWorkItemID,
			wantOK:  true,
		},
		{
			name:    "no marker",
			subject: "Out of office",
			wantOK:  false,
		},
		{
			name:    "malformed uuid",
			subject: "[WorkItem-not-a-uuid] X",
			wantOK:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := mail.WorkItemIDFromSubject(tt.subject)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestParseStructuredPipeSeparated(t *testing.T) {
	instruction, ok := mail.ParseStructured("STATUS: done | COMMENT: ok | TIME: 2.5")
	require.True(t, ok)
	assert.Equal(t, "completed", instruction.Status)
	assert.Equal(t, "ok", instruction.Comment)
	assert.Equal(t, 2.5, instruction.TimeSpentHours)
}

func TestParseStructuredNewlinesAnyOrder(t *testing.T) {
	body := "TIME: 4\nSTATUS: working\nCOMMENT: halfway through the migration"
	instruction, ok := mail.ParseStructured(body)
	require.True(t, ok)
	assert.Equal(t, "active", instruction.Status)
	assert.Equal(t, "halfway through the migration", instruction.Comment)
	assert.Equal(t, 4.0, instruction.TimeSpentHours)
}

func TestParseStructuredAliases(t *testing.T) {
	for raw, want := range map[string]string{
		"done":        "completed",
		"Finished":    "completed",
		"complete":    "completed",
		"closed":      "completed",
		"working":     "active",
		"started":     "active",
		"ongoing":     "active",
		"in_progress": "in_progress",
		"In Progress": "in_progress",
		"blocked":     "blocked",
		"waiting":     "blocked",
		"on hold":     "blocked",
	} {
		instruction, ok := mail.ParseStructured("STATUS: " + raw)
		require.True(t, ok, raw)
		assert.Equal(t, want, instruction.Status, raw)
	}
}

func TestParseStructuredDropsUnknownStatus(t *testing.T) {
	instruction, ok := mail.ParseStructured("STATUS: percolating | COMMENT: hmm")
	require.True(t, ok, "comment alone still counts")
	assert.Empty(t, instruction.Status)
	assert.Equal(t, "hmm", instruction.Comment)

	_, ok = mail.ParseStructured("STATUS: percolating")
	assert.False(t, ok, "unknown status alone yields nothing")
}

func TestParseStructuredDropsNegativeTime(t *testing.T) {
	instruction, ok := mail.ParseStructured("TIME: -3 | COMMENT: oops")
	require.True(t, ok)
	assert.Zero(t, instruction.TimeSpentHours)
	assert.Equal(t, "oops", instruction.Comment)
}

func TestParseStructuredTruncatesLongComment(t *testing.T) {
	long := strings.Repeat("x", 3000)
	instruction, ok := mail.ParseStructured("COMMENT: " + long)
	require.True(t, ok)
	assert.Len(t, instruction.Comment, 2000)
}

func TestParseStructuredNothing(t *testing.T) {
	_, ok := mail.ParseStructured("Thanks, will look into it tomorrow.")
	assert.False(t, ok)
}

func TestExtractTextBodyPlain(t *testing.T) {
	raw := []byte("From: dev@example.com\r\n" +
		"Subject: Re: update\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"STATUS: done\r\n")

	body, err := mail.ExtractTextBody(raw)
	require.NoError(t, err)
	assert.Equal(t, "STATUS: done", body)
}

func TestExtractTextBodyPrefersPlainOverHTML(t *testing.T) {
	raw := []byte("From: dev@example.com\r\n" +
		"Content-Type: multipart/alternative; boundary=BOUND\r\n" +
		"\r\n" +
		"--BOUND\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"plain wins\r\n" +
		"--BOUND\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<p>html loses</p>\r\n" +
		"--BOUND--\r\n")

	body, err := mail.ExtractTextBody(raw)
	require.NoError(t, err)
	assert.Equal(t, "plain wins", body)
}

func TestExtractTextBodyHTMLOnly(t *testing.T) {
	raw := []byte("From: dev@example.com\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<p>Hello <b>world</b></p>\r\n")

	body, err := mail.ExtractTextBody(raw)
	require.NoError(t, err)
	assert.Contains(t, body, "Hello")
	assert.Contains(t, body, "**world**")
}

func TestExtractTextBodyDeclaredCharset(t *testing.T) {
	// "café" in ISO-8859-1: caf\xe9
	raw := []byte("From: dev@example.com\r\n" +
		"Content-Type: text/plain; charset=iso-8859-1\r\n" +
		"\r\n" +
		"caf\xe9\r\n")

	body, err := mail.ExtractTextBody(raw)
	require.NoError(t, err)
	assert.Equal(t, "café", body)
}
