package signing_test

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/traceline/signing"
)

func generateTestKeys(t *testing.T) (priv, pub []byte) {
	t.Helper()
	priv, pub, err := signing.GenerateKeyPair(2048)
	require.NoError(t, err)
	return priv, pub
}

func TestSignVerifyRoundtrip(t *testing.T) {
	priv, pub := generateTestKeys(t)

	hash, err := signing.CanonicalHash(map[string]string{"title": "Auth"})
	require.NoError(t, err)

	sig, err := signing.Sign(hash, priv)
	require.NoError(t, err)
	assert.True(t, signing.Verify(hash, sig, pub))
}

func TestSignatureLengthMatchesKeySize(t *testing.T) {
	priv, _ := generateTestKeys(t)

	hash, err := signing.CanonicalHash(map[string]string{"a": "b"})
	require.NoError(t, err)

	sig, err := signing.Sign(hash, priv)
	require.NoError(t, err)

	raw, err := hex.DecodeString(sig)
	require.NoError(t, err)
	assert.Len(t, raw, 256) // 2048-bit key: 2048/8 signature bytes
}

func TestVerifyRejectsDifferentContent(t *testing.T) {
	priv, pub := generateTestKeys(t)

	hashA, err := signing.CanonicalHash(map[string]string{"title": "Auth"})
	require.NoError(t, err)
	hashB, err := signing.CanonicalHash(map[string]string{"title": "AuthV2"})
	require.NoError(t, err)
	require.NotEqual(t, hashA, hashB)

	sig, err := signing.Sign(hashA, priv)
	require.NoError(t, err)
	assert.False(t, signing.Verify(hashB, sig, pub))
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	priv, _ := generateTestKeys(t)
	_, otherPub := generateTestKeys(t)

	hash, err := signing.CanonicalHash(map[string]string{"title": "Auth"})
	require.NoError(t, err)

	sig, err := signing.Sign(hash, priv)
	require.NoError(t, err)
	assert.False(t, signing.Verify(hash, sig, otherPub))
}

func TestSignaturesAreRandomizedButBothVerify(t *testing.T) {
	priv, pub := generateTestKeys(t)

	hash, err := signing.CanonicalHash(map[string]string{"title": "Auth"})
	require.NoError(t, err)

	first, err := signing.Sign(hash, priv)
	require.NoError(t, err)
	second, err := signing.Sign(hash, priv)
	require.NoError(t, err)

	// PSS salts are random, so the bytes differ while both stay verifiable.
	assert.NotEqual(t, first, second)
	assert.True(t, signing.Verify(hash, first, pub))
	assert.True(t, signing.Verify(hash, second, pub))
}

func TestVerifyMalformedInputs(t *testing.T) {
	priv, pub := generateTestKeys(t)

	hash, err := signing.CanonicalHash(map[string]string{"title": "Auth"})
	require.NoError(t, err)
	sig, err := signing.Sign(hash, priv)
	require.NoError(t, err)

	assert.False(t, signing.Verify(hash, "not-hex", pub))
	assert.False(t, signing.Verify(hash, sig, []byte("not a pem block")))
	assert.False(t, signing.Verify(hash, "", pub))
	assert.False(t, signing.Verify("", sig, pub))
}

func TestSignRejectsMalformedKey(t *testing.T) {
	hash, err := signing.CanonicalHash(map[string]string{"title": "Auth"})
	require.NoError(t, err)

	_, err = signing.Sign(hash, []byte("garbage"))
	assert.ErrorIs(t, err, signing.ErrInvalidPrivateKey)
}
