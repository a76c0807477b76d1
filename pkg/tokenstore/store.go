// Package tokenstore persists the single session record shared by every
// request a client makes. Absence is a normal state: backends report a
// missing, unreadable or half-written record as "no session" rather than as
// an error, so a corrupt record can never keep a user half logged in.
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
)

// DefaultKey is the well-known key a session record is stored under.
const DefaultKey = "dealerdesk.session"

// ErrIncompleteSession is returned by Write for a record missing a token.
var ErrIncompleteSession = errors.New("tokenstore: session requires both access and refresh token")

// Session is the persisted credential pair. Both tokens come from the same
// issuance, except after a refresh whose response carried no refresh token:
// the previous refresh token is then kept next to the new access token.
// Expiry is never stored, it is derived from the access token's exp claim.
type Session struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Complete reports whether both tokens are present.
func (s Session) Complete() bool {
	return s.AccessToken != "" && s.RefreshToken != ""
}

// Store is durable storage for at most one Session.
type Store interface {
	// Read returns the stored session. ok is false when nothing usable is
	// stored; backend failures are logged and also read as absent.
	Read(ctx context.Context) (s Session, ok bool)

	// Write replaces the whole record atomically.
	Write(ctx context.Context, s Session) error

	// Clear removes the record. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}

// Encode serialises s into the persisted record format.
func Encode(s Session) ([]byte, error) {
	if !s.Complete() {
		return nil, ErrIncompleteSession
	}
	return json.Marshal(s)
}

// Decode parses a persisted record. Malformed or incomplete records decode
// as absent.
func Decode(data []byte) (Session, bool) {
	if len(data) == 0 {
		return Session{}, false
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, false
	}
	if !s.Complete() {
		return Session{}, false
	}

	return s, true
}
