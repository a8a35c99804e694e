package auth

import "errors"

// ErrAuthenticationFailed matches every rejected login.
var ErrAuthenticationFailed = errors.New("authentication failed")

// DefaultFailureMessage is shown when the backend gives no reason.
const DefaultFailureMessage = "Login failed"

// LoginError carries the user-facing reason for a rejected login.
type LoginError struct {
	Message string
	cause   error
}

func (e *LoginError) Error() string { return e.Message }

// Is lets errors.Is match ErrAuthenticationFailed.
func (e *LoginError) Is(target error) bool { return target == ErrAuthenticationFailed }

// Unwrap returns the underlying cause.
func (e *LoginError) Unwrap() error { return e.cause }
