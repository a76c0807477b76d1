package jwtx

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// EdDSASigner signs with one Ed25519 key for the life of the process.
// Tokens from an earlier process stop verifying once the key changes.
type EdDSASigner struct {
	kid string
	key ed25519.PrivateKey
}

// NewSignerEdDSA parses a PKCS8 "PRIVATE KEY" PEM block holding an Ed25519
// key.
func NewSignerEdDSA(kid string, pemKey []byte) (*EdDSASigner, error) {
	block, _ := pem.Decode(pemKey)
	switch {
	case block == nil:
		return nil, errors.New("jwtx: no PEM block in signing key")
	case block.Type != "PRIVATE KEY":
		return nil, fmt.Errorf("jwtx: signing key is %q, want PKCS8 PRIVATE KEY", block.Type)
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("jwtx: parse PKCS8: %w", err)
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("jwtx: signing key is %T, want ed25519", parsed)
	}

	return &EdDSASigner{kid: kid, key: key}, nil
}

func (s *EdDSASigner) Alg() string { return jwt.SigningMethodEdDSA.Alg() }
func (s *EdDSASigner) KID() string { return s.kid }

func (s *EdDSASigner) public() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

// Verifier accepts tokens from this signer carrying the given issuer.
func (s *EdDSASigner) Verifier(issuer string) *EdDSAVerifier {
	return NewVerifierEdDSA(s.kid, s.public(), issuer)
}

// Sign returns claims as a compact JWT with the kid header set.
func (s *EdDSASigner) Sign(claims Claims) (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}

	t := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}

// Validate reports a signer without a usable key.
func (s *EdDSASigner) Validate() error {
	if len(s.key) != ed25519.PrivateKeySize {
		return errors.New("jwtx: missing or truncated Ed25519 key")
	}
	return nil
}
