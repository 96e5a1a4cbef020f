// Package mail implements Traceline's email surface: outbound work
// instructions over SMTP, an IMAP poller for replies, the structured
// reply parser with LLM fallback, and threaded correspondence keyed to
// work items.
package mail

import (
	"errors"
	"fmt"
	"time"
)

// Errors returned by the mail layer.
var (
	// ErrNoValidRecipients means every recipient failed validation.
	ErrNoValidRecipients = errors.New("no valid recipients")

	// ErrNoWorkItemID means the subject carried no work item marker.
	ErrNoWorkItemID = errors.New("no work item id in subject")

	// ErrUnparsable means neither the structured grammar nor the LLM
	// produced an instruction.
	ErrUnparsable = errors.New("reply could not be parsed")

	// ErrAlreadyPolling means Start was called on a running poller.
	ErrAlreadyPolling = errors.New("poller already running")
)

// Parse methods, recorded per processed reply.
const (
	ParseMethodStructured = "structured"
	ParseMethodLLM        = "llm"
	ParseMethodNone       = "none"
)

// Message directions within a thread.
const (
	DirectionOutbound = "outbound"
	DirectionInbound  = "inbound"
)

// Message is one email within a work item's thread.
type Message struct {
	MessageID string    `json:"message_id"`
	Direction string    `json:"direction"`
	From      string    `json:"from"`
	To        []string  `json:"to,omitempty"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// Thread is the ordered correspondence attached to one work item.
type Thread struct {
	ThreadID   string    `json:"thread_id"`
	WorkItemID string    `json:"workitem_id"`
	Subject    string    `json:"subject"`
	Emails     []Message `json:"emails"`
}

// ThreadID derives the thread identifier for a work item.
func ThreadID(workItemID string) string {
	return "thread-" + workItemID
}

// Subject composes the outbound subject line carrying the work item marker.
func Subject(workItemID, title string) string {
	return fmt.Sprintf("[WorkItem-%s] %s", workItemID, title)
}
