package signature

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/traceline/audit"
	"github.com/c360studio/traceline/signing"
)

// Verification is the outcome of checking a signature against current
// content. IsValid holds only when the content still matches the signed
// hash and the cryptographic check passes.
type Verification struct {
	IsValid         bool   `json:"is_valid"`
	ContentMatches  bool   `json:"content_matches"`
	SignatureIntact bool   `json:"signature_intact"`
	Error           string `json:"error,omitempty"`
}

// Service signs, verifies, and invalidates work-item signatures.
type Service struct {
	store  Store
	audit  audit.Recorder
	logger *slog.Logger
	now    func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithAuditRecorder wires the audit trail in.
func WithAuditRecorder(r audit.Recorder) ServiceOption {
	return func(s *Service) { s.audit = r }
}

// WithLogger sets the service's logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService builds a signature service over the given store.
func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		audit:  audit.Nop(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sign hashes the snapshot canonically, signs the hash with the caller's
// private key, and persists the signature as valid.
func (s *Service) Sign(ctx context.Context, workItemID, workItemVersion string, snapshot any, userID string, privateKeyPEM []byte) (*Signature, error) {
	contentHash, err := signing.CanonicalHash(snapshot)
	if err != nil {
		return nil, fmt.Errorf("hash snapshot: %w", err)
	}
	signatureHash, err := signing.Sign(contentHash, privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignFailed, err)
	}

	sig := &Signature{
		ID:              uuid.New().String(),
		WorkItemID:      workItemID,
		WorkItemVersion: workItemVersion,
		UserID:          userID,
		ContentHash:     contentHash,
		SignatureHash:   signatureHash,
		SignedAt:        s.now().UTC(),
		IsValid:         true,
	}
	if err := s.store.Insert(ctx, sig); err != nil {
		return nil, fmt.Errorf("persist signature: %w", err)
	}

	s.recordAudit(ctx, userID, "signature.sign", workItemID, map[string]any{
		"signature_id": sig.ID,
		"version":      workItemVersion,
	})
	s.logger.Info("work item signed",
		"workitem_id", workItemID, "version", workItemVersion, "signature_id", sig.ID, "user", userID)
	return sig, nil
}

// Verify checks a stored signature against the current snapshot content and
// the given public key. It reports rather than errors: a missing signature,
// an invalidated one, changed content, and a failed cryptographic check all
// come back as a Verification, never a raised error.
func (s *Service) Verify(ctx context.Context, signatureID string, currentSnapshot any, publicKeyPEM []byte) (*Verification, error) {
	sig, err := s.store.Get(ctx, signatureID)
	if errors.Is(err, ErrNotFound) {
		return &Verification{Error: "Signature not found"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load signature: %w", err)
	}

	currentHash, err := signing.CanonicalHash(currentSnapshot)
	if err != nil {
		return nil, fmt.Errorf("hash snapshot: %w", err)
	}

	v := &Verification{
		ContentMatches:  currentHash == sig.ContentHash,
		SignatureIntact: signing.Verify(sig.ContentHash, sig.SignatureHash, publicKeyPEM),
	}

	if !sig.IsValid {
		v.Error = fmt.Sprintf("Signature invalidated: %s", sig.InvalidationReason)
		return v, nil
	}
	if !v.ContentMatches {
		v.Error = "Content has changed since signing"
		return v, nil
	}
	if !v.SignatureIntact {
		v.Error = "Cryptographic verification failed"
		return v, nil
	}
	v.IsValid = true
	return v, nil
}

// Invalidate transitions every valid signature of the work item to invalid
// with the supplied reason. Idempotent: re-invoking on an item with no valid
// signatures returns an empty list.
func (s *Service) Invalidate(ctx context.Context, workItemID, reason string) ([]*Signature, error) {
	invalidated, err := s.store.Invalidate(ctx, workItemID, reason, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("invalidate signatures: %w", err)
	}
	if len(invalidated) == 0 {
		return invalidated, nil
	}

	ids := make([]string, len(invalidated))
	for i, sig := range invalidated {
		ids[i] = sig.ID
	}
	s.recordAudit(ctx, "system", "signature.invalidate", workItemID, map[string]any{
		"signature_ids": ids,
		"reason":        reason,
	})
	s.logger.Info("signatures invalidated",
		"workitem_id", workItemID, "count", len(invalidated), "reason", reason)
	return invalidated, nil
}

// InvalidateWorkItemSignatures adapts Invalidate to the work-item store's
// guard contract.
func (s *Service) InvalidateWorkItemSignatures(ctx context.Context, workItemID, reason string) error {
	_, err := s.Invalidate(ctx, workItemID, reason)
	return err
}

// SignaturesFor lists the signatures of a work item, newest first.
func (s *Service) SignaturesFor(ctx context.Context, workItemID string, includeInvalid bool) ([]*Signature, error) {
	return s.store.ListByWorkItem(ctx, workItemID, includeInvalid)
}

// IsSigned reports whether the work item carries any valid signature.
func (s *Service) IsSigned(ctx context.Context, workItemID string) (bool, error) {
	return s.store.HasValid(ctx, workItemID)
}

func (s *Service) recordAudit(ctx context.Context, actor, operation, entityID string, details map[string]any) {
	event := audit.NewEvent(actor, operation, "signature", entityID, details)
	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.Error("audit record failed", "operation", operation, "entity_id", entityID, "error", err)
	}
}
