package signing

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
)

var (
	// ErrInvalidPrivateKey indicates the private key PEM could not be parsed.
	ErrInvalidPrivateKey = errors.New("invalid private key")
	// ErrInvalidPublicKey indicates the public key PEM could not be parsed.
	ErrInvalidPublicKey = errors.New("invalid public key")
	// ErrNotRSAKey indicates a well-formed key of a non-RSA type.
	ErrNotRSAKey = errors.New("not an RSA key")
)

// pssOptions pins the signature scheme: PSS with MGF1-SHA256 and a salt as
// long as the digest. Signatures are randomized, so byte equality between two
// signatures over the same content is not expected.
func pssOptions() *rsa.PSSOptions {
	return &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA256,
	}
}

// Sign produces a hex-encoded RSA-PSS signature over the given content hash.
// The content hash is the hex string returned by CanonicalHash; its bytes are
// digested with SHA-256 before signing. The resulting signature is
// keyBits/8 bytes long (keyBits/4 hex characters).
func Sign(contentHashHex string, privateKeyPEM []byte) (string, error) {
	priv, err := ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256([]byte(contentHashHex))
	sig, err := rsa.SignPSS(rand.Reader, priv, crypto.SHA256, digest[:], pssOptions())
	if err != nil {
		return "", fmt.Errorf("sign content hash: %w", err)
	}
	return hex.EncodeToString(sig), nil
}

// Verify reports whether signatureHex is a valid signature over
// contentHashHex under the given public key. Malformed keys, malformed hex,
// and failed verification all return false; Verify never returns an error.
func Verify(contentHashHex, signatureHex string, publicKeyPEM []byte) bool {
	pub, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return false
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	digest := sha256.Sum256([]byte(contentHashHex))
	return rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, pssOptions()) == nil
}

// ParsePrivateKey decodes an RSA private key from PEM in PKCS#8 or PKCS#1
// form.
func ParsePrivateKey(keyPEM []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrInvalidPrivateKey)
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, ErrNotRSAKey
		}
		return rsaKey, nil
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPrivateKey, err)
	}
	return key, nil
}

// ParsePublicKey decodes an RSA public key from PEM in PKIX or PKCS#1 form.
func ParsePublicKey(keyPEM []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrInvalidPublicKey)
	}
	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, ErrNotRSAKey
		}
		return rsaKey, nil
	}
	key, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPublicKey, err)
	}
	return key, nil
}

// GenerateKeyPair creates a fresh RSA keypair and returns it as PKCS#8
// private and PKIX public PEM blocks.
func GenerateKeyPair(bits int) (privatePEM, publicPEM []byte, err error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, fmt.Errorf("generate RSA key: %w", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal public key: %w", err)
	}
	privatePEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	publicPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return privatePEM, publicPEM, nil
}
