package sessionsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrSessionInvalid reports that no usable session exists any more. Callers
// treat it as "log the user out".
var ErrSessionInvalid = errors.New("sessionsdk: session invalid")

// Default messages used when the issuer gives no reason.
const (
	msgLoginFailed          = "Login failed"
	msgRegisterFailed       = "Registration failed"
	msgRefreshFailed        = "Session refresh failed"
	msgLogoutFailed         = "Logout failed"
	msgChangePasswordFailed = "Password update failed"
	msgForgotPasswordFailed = "Password reset request failed"
	msgResetPasswordFailed  = "Password reset failed"
)

// AuthError is an issuer rejection of an authentication operation.
type AuthError struct {
	// Op is the operation that failed, e.g. "login".
	Op string

	// StatusCode is the HTTP status the issuer answered with, or zero when
	// the response was unusable.
	StatusCode int

	// Message is the issuer's reason, or a generic default.
	Message string
}

func (e *AuthError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("sessionsdk: %s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("sessionsdk: %s: %s (HTTP %d)", e.Op, e.Message, e.StatusCode)
}

// NetworkError is a transport-level failure talking to the issuer.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("sessionsdk: %s: network: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RefreshError is a failed renewal. The session has already been cleared
// when a caller sees it.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("sessionsdk: session invalid: %v", e.Err)
}

func (e *RefreshError) Unwrap() []error { return []error{ErrSessionInvalid, e.Err} }

// parseErrorResponse builds an AuthError from a non-2xx issuer response,
// preferring the issuer's own message over the default.
func parseErrorResponse(op string, resp *http.Response, body []byte, fallback string) *AuthError {
	msg := fallback

	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil {
		switch {
		case strings.TrimSpace(er.Message) != "":
			msg = er.Message
		case strings.TrimSpace(er.ErrorDescription) != "":
			msg = er.ErrorDescription
		case strings.TrimSpace(er.Error) != "":
			msg = er.Error
		}
	}

	return &AuthError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Message:    msg,
	}
}
