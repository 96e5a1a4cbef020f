package signature

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps signatures in process, for tests and development.
type MemoryStore struct {
	mu   sync.RWMutex
	sigs map[string]*Signature // id -> signature
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sigs: make(map[string]*Signature)}
}

func (m *MemoryStore) Insert(_ context.Context, sig *Signature) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sigs[sig.ID]; exists {
		return fmt.Errorf("duplicate signature id %s", sig.ID)
	}
	cp := *sig
	m.sigs[sig.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Signature, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sig, ok := m.sigs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cp := *sig
	return &cp, nil
}

func (m *MemoryStore) ListByWorkItem(_ context.Context, workItemID string, includeInvalid bool) ([]*Signature, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Signature
	for _, sig := range m.sigs {
		if sig.WorkItemID != workItemID {
			continue
		}
		if !includeInvalid && !sig.IsValid {
			continue
		}
		cp := *sig
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SignedAt.Equal(out[j].SignedAt) {
			return out[i].SignedAt.After(out[j].SignedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) HasValid(_ context.Context, workItemID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sig := range m.sigs {
		if sig.WorkItemID == workItemID && sig.IsValid {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) Invalidate(_ context.Context, workItemID, reason string, at time.Time) ([]*Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Signature
	for _, sig := range m.sigs {
		if sig.WorkItemID != workItemID || !sig.IsValid {
			continue
		}
		sig.IsValid = false
		when := at
		sig.InvalidatedAt = &when
		sig.InvalidationReason = reason
		cp := *sig
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
