// Package audit records the append-only trail of mutating operations.
// Entries are written to a relational store, published to NATS JetStream,
// or both; invalidation and deletion elsewhere never remove audit entries.
package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one audit entry. Details carries operation-specific context such
// as updated field names or the new version.
type Event struct {
	ID         string         `json:"id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Actor      string         `json:"actor"`
	Operation  string         `json:"operation"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Details    map[string]any `json:"details,omitempty"`
}

// NewEvent stamps an event with an id and the current time.
func NewEvent(actor, operation, entityType, entityID string, details map[string]any) Event {
	return Event{
		ID:         uuid.New().String(),
		OccurredAt: time.Now().UTC(),
		Actor:      actor,
		Operation:  operation,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
	}
}

// Recorder accepts audit events. Implementations must be safe for
// concurrent use.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, Event) error { return nil }

// Nop returns a recorder that discards everything.
func Nop() Recorder { return nopRecorder{} }

// Multi fans events out to every recorder and joins their errors.
func Multi(recorders ...Recorder) Recorder {
	return multiRecorder(recorders)
}

type multiRecorder []Recorder

func (m multiRecorder) Record(ctx context.Context, event Event) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Memory keeps events in process for tests and development.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// NewMemory returns an empty in-memory recorder.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Record(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of everything recorded so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
