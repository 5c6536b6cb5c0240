// Package canonical produces RFC 8785 (JCS) canonical JSON and stable
// SHA-256 fingerprints over it. Decision-cache keys and audit content hashes
// must be reproducible across hosts, so every hash in the system goes through
// this package rather than raw encoding/json output.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Marshal serializes v to canonical JSON: UTF-8, sorted keys, no
// insignificant whitespace, normalized number forms.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonical: transform: %w", err)
	}
	return out, nil
}

// Fingerprint returns the lowercase hex SHA-256 of the canonical form of v.
func Fingerprint(v any) (string, error) {
	c, err := Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(c)
	return hex.EncodeToString(sum[:]), nil
}

// ChainHash hashes canonical content concatenated with the previous link's
// identifier. Used by the audit log: id = ChainHash(canonical(record), prev).
func ChainHash(canonicalContent []byte, prevHash string) string {
	h := sha256.New()
	h.Write(canonicalContent)
	h.Write([]byte(prevHash))
	return hex.EncodeToString(h.Sum(nil))
}

// HashString returns the lowercase hex SHA-256 of a raw string. Replay nonces
// are stored under this digest so plaintext nonces never hit the store.
func HashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
