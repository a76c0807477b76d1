package jwtx

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// DecodeError reports why an access token could not be read as Claims.
// It always matches ErrMalformed with errors.Is.
type DecodeError struct {
	// Claim names the offending claim, empty for structural failures.
	Claim string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Claim == "" {
		return fmt.Sprintf("jwtx: decode: %v", e.Err)
	}
	return fmt.Sprintf("jwtx: decode: claim %q: %v", e.Claim, e.Err)
}

func (e *DecodeError) Unwrap() []error { return []error{ErrMalformed, e.Err} }

// Decode reads the claims of a compact JWT without verifying its signature.
// The issuer's signature is the server's concern; callers only use the
// result for expiry and display decisions. The payload must match the
// Claims schema: sub, role and exp are required and every claim present
// must have the expected JSON type.
func Decode(token string) (Claims, error) {
	var c Claims

	if _, _, err := jwt.NewParser().ParseUnverified(token, &c); err != nil {
		return Claims{}, &DecodeError{Err: err}
	}

	if err := c.validateSchema(); err != nil {
		return Claims{}, err
	}

	return c, nil
}

func (c *Claims) validateSchema() error {
	switch {
	case c.Subject == "":
		return &DecodeError{Claim: "sub", Err: ErrInvalidClaim}
	case c.Role == "":
		return &DecodeError{Claim: "role", Err: ErrInvalidClaim}
	case c.ExpiresAt == nil:
		return &DecodeError{Claim: "exp", Err: ErrInvalidClaim}
	}

	for _, p := range c.Permissions {
		if p == "" {
			return &DecodeError{Claim: "permissions", Err: ErrInvalidClaim}
		}
	}

	return nil
}
