// Package signing provides canonical content hashing and RSA-PSS signatures
// for work-item snapshots.
package signing

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// CanonicalJSON encodes v as compact JSON with object keys sorted
// lexicographically at every nesting level. Unicode text is preserved as-is;
// HTML-unsafe runes are not escaped. Two values that differ only in map key
// order produce identical output.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical encode: %w", err)
	}

	// Round-trip through an untyped tree so struct fields and map entries
	// alike end up in maps, which encoding/json emits with sorted keys.
	// UseNumber keeps numeric literals exact across the round trip.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("canonical decode: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(tree); err != nil {
		return nil, fmt.Errorf("canonical encode: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// CanonicalHash returns the lowercase hex SHA-256 of the canonical JSON
// encoding of v. The result is stable across processes and key orderings.
func CanonicalHash(v any) (string, error) {
	data, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
