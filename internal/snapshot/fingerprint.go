package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// CanonicalJSON serializes value with object keys sorted at every level, so
// semantically equal objects produce identical bytes regardless of input
// ordering.
func CanonicalJSON(value any) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal content: %w", err)
	}

	// Round-trip through generic maps: encoding/json sorts map keys on
	// output, and json.Number keeps numeric representations intact.
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var generic any
	if err := decoder.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}

	canonical, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("canonicalize content: %w", err)
	}
	return canonical, nil
}

// Fingerprint returns the hex sha256 of the canonical serialization of the
// full content object.
func Fingerprint(content any) (string, error) {
	canonical, err := CanonicalJSON(content)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
