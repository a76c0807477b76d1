package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// SecretBytes is the entropy of opaque refresh and reset tokens.
const SecretBytes = 32

// NewOpaqueToken returns SecretBytes of randomness, base64url encoded
// without padding.
func NewOpaqueToken() (string, error) {
	buf := make([]byte, SecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cryptox: read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Fingerprint is the value stored in place of an opaque token. Lookups hash
// the presented token and compare fingerprints.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
