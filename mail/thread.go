package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// threadBucket is the JetStream KV bucket holding email threads.
const threadBucket = "EMAIL_THREADS"

// ErrThreadNotFound is returned for threads with no recorded messages.
var ErrThreadNotFound = errors.New("thread not found")

// ThreadStore persists per-work-item email threads in chronological order.
type ThreadStore interface {
	// Append records a message on the work item's thread, keeping the
	// thread sorted by timestamp. Duplicate message ids are tolerated.
	Append(ctx context.Context, workItemID, subject string, msg Message) error

	// Get returns a thread by its id.
	Get(ctx context.Context, threadID string) (*Thread, error)
}

// insertChronological places msg after the last message with an earlier
// or equal timestamp, preserving arrival order among equals.
func insertChronological(emails []Message, msg Message) []Message {
	idx := len(emails)
	for idx > 0 && emails[idx-1].Timestamp.After(msg.Timestamp) {
		idx--
	}
	emails = append(emails, Message{})
	copy(emails[idx+1:], emails[idx:])
	emails[idx] = msg
	return emails
}

// MemoryThreadStore keeps threads in process memory, for tests and
// single-node deployments without NATS.
type MemoryThreadStore struct {
	mu      sync.RWMutex
	threads map[string]*Thread
}

// NewMemoryThreadStore returns an empty in-memory thread store.
func NewMemoryThreadStore() *MemoryThreadStore {
	return &MemoryThreadStore{threads: make(map[string]*Thread)}
}

func (s *MemoryThreadStore) Append(_ context.Context, workItemID, subject string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	threadID := ThreadID(workItemID)
	thread, ok := s.threads[threadID]
	if !ok {
		thread = &Thread{ThreadID: threadID, WorkItemID: workItemID, Subject: subject}
		s.threads[threadID] = thread
	}
	thread.Emails = insertChronological(thread.Emails, msg)
	return nil
}

func (s *MemoryThreadStore) Get(_ context.Context, threadID string) (*Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	thread, ok := s.threads[threadID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
	}
	cp := *thread
	cp.Emails = append([]Message(nil), thread.Emails...)
	return &cp, nil
}

// NATSThreadStore persists threads in a JetStream KV bucket so they
// survive restarts and are visible across replicas.
type NATSThreadStore struct {
	kv jetstream.KeyValue
}

// NewNATSThreadStore ensures the thread bucket exists and returns a
// store backed by it.
func NewNATSThreadStore(ctx context.Context, nc *nats.Conn) (*NATSThreadStore, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: threadBucket})
	if err != nil {
		return nil, fmt.Errorf("ensure thread bucket: %w", err)
	}
	return &NATSThreadStore{kv: kv}, nil
}

func (s *NATSThreadStore) Append(ctx context.Context, workItemID, subject string, msg Message) error {
	threadID := ThreadID(workItemID)

	thread := &Thread{ThreadID: threadID, WorkItemID: workItemID, Subject: subject}
	entry, err := s.kv.Get(ctx, threadID)
	switch {
	case err == nil:
		if err := json.Unmarshal(entry.Value(), thread); err != nil {
			return fmt.Errorf("decode thread %s: %w", threadID, err)
		}
	case errors.Is(err, jetstream.ErrKeyNotFound):
		// First message on this thread.
	default:
		return fmt.Errorf("load thread %s: %w", threadID, err)
	}

	thread.Emails = insertChronological(thread.Emails, msg)

	data, err := json.Marshal(thread)
	if err != nil {
		return fmt.Errorf("encode thread %s: %w", threadID, err)
	}
	if _, err := s.kv.Put(ctx, threadID, data); err != nil {
		return fmt.Errorf("store thread %s: %w", threadID, err)
	}
	return nil
}

func (s *NATSThreadStore) Get(ctx context.Context, threadID string) (*Thread, error) {
	entry, err := s.kv.Get(ctx, threadID)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
	}
	if err != nil {
		return nil, fmt.Errorf("load thread %s: %w", threadID, err)
	}
	var thread Thread
	if err := json.Unmarshal(entry.Value(), &thread); err != nil {
		return nil, fmt.Errorf("decode thread %s: %w", threadID, err)
	}
	return &thread, nil
}
