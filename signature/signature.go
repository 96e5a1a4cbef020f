// Package signature implements the digital-signature service: signing a
// work-item snapshot with RSA-PSS, verifying it against current content,
// and the irreversible invalidation lifecycle. Signature rows are
// append-only; invalidation is a state transition, never a delete.
package signature

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the signature id does not exist.
	ErrNotFound = errors.New("signature not found")
	// ErrSignFailed wraps crypto-level failures during signing.
	ErrSignFailed = errors.New("signing failed")
)

// Signature is one signing act over a specific work-item version. ContentHash
// is the canonical hash of the snapshot at signing time; SignatureHash is the
// hex RSA-PSS signature over it.
type Signature struct {
	ID                 string     `json:"id"`
	WorkItemID         string     `json:"workitem_id"`
	WorkItemVersion    string     `json:"workitem_version"`
	UserID             string     `json:"user_id"`
	ContentHash        string     `json:"content_hash"`
	SignatureHash      string     `json:"signature_hash"`
	SignedAt           time.Time  `json:"signed_at"`
	IsValid            bool       `json:"is_valid"`
	InvalidatedAt      *time.Time `json:"invalidated_at,omitempty"`
	InvalidationReason string     `json:"invalidation_reason,omitempty"`
}

// Store persists signatures. Implementations must be safe for concurrent
// use and must never transition a signature from invalid back to valid.
type Store interface {
	// Insert appends a new signature row.
	Insert(ctx context.Context, sig *Signature) error

	// Get returns one signature by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Signature, error)

	// ListByWorkItem returns the signatures of a work item, newest first.
	// With includeInvalid false only valid ones are returned.
	ListByWorkItem(ctx context.Context, workItemID string, includeInvalid bool) ([]*Signature, error)

	// HasValid reports whether any valid signature exists for the work item.
	HasValid(ctx context.Context, workItemID string) (bool, error)

	// Invalidate marks every valid signature of the work item invalid with
	// the given reason and timestamp, returning the ones it transitioned.
	// Already-invalid signatures are left untouched.
	Invalidate(ctx context.Context, workItemID, reason string, at time.Time) ([]*Signature, error)
}
