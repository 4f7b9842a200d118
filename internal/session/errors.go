package session

import "errors"

// User-facing messages.
const (
	FallbackLoginMessage    = "Login failed"
	FallbackRegisterMessage = "Registration failed"
	NoticeSessionExpired    = "Session expired. Please sign in again."
)

// ErrNoSession is returned when an operation needs a session and there is none.
var ErrNoSession = errors.New("session: not signed in")

// AuthError is a rejected login or registration. Message is safe to show.
type AuthError struct {
	Op      string
	Message string
	Err     error
}

func (e *AuthError) Error() string { return e.Message }

func (e *AuthError) Unwrap() error { return e.Err }
