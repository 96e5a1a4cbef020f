package signature_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/traceline/audit"
	"github.com/c360studio/traceline/signature"
	"github.com/c360studio/traceline/signing"
)

func newService(t *testing.T) (*signature.Service, *audit.Memory) {
	t.Helper()
	trail := audit.NewMemory()
	svc := signature.NewService(signature.NewMemoryStore(),
		signature.WithAuditRecorder(trail))
	return svc, trail
}

func testKeys(t *testing.T) (priv, pub []byte) {
	t.Helper()
	priv, pub, err := signing.GenerateKeyPair(2048)
	require.NoError(t, err)
	return priv, pub
}

func TestSignAndVerify(t *testing.T) {
	svc, trail := newService(t)
	priv, pub := testKeys(t)
	ctx := context.Background()

	snapshot := map[string]any{"id": "wi-1", "title": "Auth", "version": "1.0"}
	sig, err := svc.Sign(ctx, "wi-1", "1.0", snapshot, "alice", priv)
	require.NoError(t, err)
	assert.True(t, sig.IsValid)
	assert.Len(t, sig.ContentHash, 64)
	// 2048-bit key: 256-byte signature, 512 hex chars.
	assert.Len(t, sig.SignatureHash, 512)

	v, err := svc.Verify(ctx, sig.ID, snapshot, pub)
	require.NoError(t, err)
	assert.True(t, v.IsValid)
	assert.True(t, v.ContentMatches)
	assert.True(t, v.SignatureIntact)
	assert.Empty(t, v.Error)

	events := trail.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "signature.sign", events[0].Operation)
}

func TestVerifyNotFound(t *testing.T) {
	svc, _ := newService(t)
	_, pub := testKeys(t)

	v, err := svc.Verify(context.Background(), "missing", map[string]any{}, pub)
	require.NoError(t, err)
	assert.False(t, v.IsValid)
	assert.False(t, v.ContentMatches)
	assert.False(t, v.SignatureIntact)
	assert.Equal(t, "Signature not found", v.Error)
}

func TestVerifyDetectsChangedContent(t *testing.T) {
	svc, _ := newService(t)
	priv, pub := testKeys(t)
	ctx := context.Background()

	signed := map[string]any{"title": "Auth"}
	sig, err := svc.Sign(ctx, "wi-1", "1.0", signed, "alice", priv)
	require.NoError(t, err)

	current := map[string]any{"title": "AuthV2"}
	v, err := svc.Verify(ctx, sig.ID, current, pub)
	require.NoError(t, err)
	assert.False(t, v.IsValid)
	assert.False(t, v.ContentMatches)
	// The stored hash still verifies: the signature itself was not tampered
	// with, only the content moved on.
	assert.True(t, v.SignatureIntact)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	svc, _ := newService(t)
	priv, _ := testKeys(t)
	_, otherPub := testKeys(t)
	ctx := context.Background()

	snapshot := map[string]any{"title": "Auth"}
	sig, err := svc.Sign(ctx, "wi-1", "1.0", snapshot, "alice", priv)
	require.NoError(t, err)

	v, err := svc.Verify(ctx, sig.ID, snapshot, otherPub)
	require.NoError(t, err)
	assert.False(t, v.IsValid)
	assert.True(t, v.ContentMatches)
	assert.False(t, v.SignatureIntact)
}

func TestInvalidateTransitionsAllValid(t *testing.T) {
	svc, _ := newService(t)
	priv, pub := testKeys(t)
	ctx := context.Background()

	snapshot := map[string]any{"title": "Auth"}
	sig1, err := svc.Sign(ctx, "wi-1", "1.0", snapshot, "alice", priv)
	require.NoError(t, err)
	sig2, err := svc.Sign(ctx, "wi-1", "1.0", snapshot, "bob", priv)
	require.NoError(t, err)

	invalidated, err := svc.Invalidate(ctx, "wi-1", "WorkItem modified")
	require.NoError(t, err)
	assert.Len(t, invalidated, 2)
	for _, sig := range invalidated {
		assert.False(t, sig.IsValid)
		require.NotNil(t, sig.InvalidatedAt)
		assert.Equal(t, "WorkItem modified", sig.InvalidationReason)
	}

	v, err := svc.Verify(ctx, sig1.ID, snapshot, pub)
	require.NoError(t, err)
	assert.False(t, v.IsValid)
	assert.Equal(t, "Signature invalidated: WorkItem modified", v.Error)

	signed, err := svc.IsSigned(ctx, "wi-1")
	require.NoError(t, err)
	assert.False(t, signed)

	_ = sig2
}

func TestInvalidateIdempotent(t *testing.T) {
	svc, _ := newService(t)
	priv, _ := testKeys(t)
	ctx := context.Background()

	_, err := svc.Sign(ctx, "wi-1", "1.0", map[string]any{"a": 1}, "alice", priv)
	require.NoError(t, err)

	first, err := svc.Invalidate(ctx, "wi-1", "WorkItem modified")
	require.NoError(t, err)
	assert.Len(t, first, 1)

	second, err := svc.Invalidate(ctx, "wi-1", "WorkItem modified")
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestSignaturesForFiltersInvalid(t *testing.T) {
	svc, _ := newService(t)
	priv, _ := testKeys(t)
	ctx := context.Background()

	_, err := svc.Sign(ctx, "wi-1", "1.0", map[string]any{"a": 1}, "alice", priv)
	require.NoError(t, err)
	_, err = svc.Invalidate(ctx, "wi-1", "WorkItem modified")
	require.NoError(t, err)
	_, err = svc.Sign(ctx, "wi-1", "1.1", map[string]any{"a": 2}, "alice", priv)
	require.NoError(t, err)

	valid, err := svc.SignaturesFor(ctx, "wi-1", false)
	require.NoError(t, err)
	assert.Len(t, valid, 1)

	all, err := svc.SignaturesFor(ctx, "wi-1", true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSignRejectsMalformedKey(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Sign(context.Background(), "wi-1", "1.0", map[string]any{"a": 1}, "alice", []byte("not a pem"))
	require.Error(t, err)
	assert.ErrorIs(t, err, signature.ErrSignFailed)
}

func TestSignedAtIsUTC(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	svc := signature.NewService(signature.NewMemoryStore(),
		signature.WithClock(func() time.Time { return fixed }))
	priv, _ := testKeys(t)

	sig, err := svc.Sign(context.Background(), "wi-1", "1.0", map[string]any{"a": 1}, "alice", priv)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, sig.SignedAt.Location())
}
