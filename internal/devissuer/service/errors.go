package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidRefresh     = errors.New("invalid_refresh_token")
	ErrInvalidReset       = errors.New("invalid_reset_token")
	ErrUserExists         = errors.New("user_exists")
	ErrRoleNotAllowed     = errors.New("role_not_allowed")
	ErrUserNotFound       = errors.New("user_not_found")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
