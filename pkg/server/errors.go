package server

import (
	"errors"
	"fmt"
)

// Sentinel errors for common registry, session and socket conditions.
var (
	// ErrUnknownComponent is returned when a message names an unregistered component type.
	ErrUnknownComponent = errors.New("server: unknown component type")

	// ErrDuplicateComponent is returned when a component type is registered twice.
	ErrDuplicateComponent = errors.New("server: component type already registered")

	// ErrRegistryFrozen is returned when registering after startup.
	ErrRegistryFrozen = errors.New("server: registry frozen")

	// ErrInvalidRegistration is returned for an empty type id or nil factory.
	ErrInvalidRegistration = errors.New("server: invalid component registration")

	// ErrNilComponent is returned when a factory produces no component.
	ErrNilComponent = errors.New("server: factory returned nil component")

	// ErrSocketClosed is returned when initializing a terminated socket.
	ErrSocketClosed = errors.New("server: socket closed")

	// ErrNotBound is returned when a component sends before it has a socket.
	ErrNotBound = errors.New("server: component not bound to a socket")

	// ErrNoConnection is returned when initializing without a physical connection.
	ErrNoConnection = errors.New("server: no connection")
)

// errEntryRemoved signals a lookup raced with session removal; callers retry.
var errEntryRemoved = errors.New("server: session entry removed")

// SessionError wraps an error with session context for debugging.
type SessionError struct {
	SessionKey string
	Op         string // Operation that failed
	Err        error  // Underlying error
}

// Error returns the error message with session context.
func (e *SessionError) Error() string {
	if e.SessionKey == "" {
		return fmt.Sprintf("server: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("server: session %s: %s: %v", e.SessionKey, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *SessionError) Unwrap() error {
	return e.Err
}

// NewSessionError creates a new SessionError.
func NewSessionError(sessionKey, op string, err error) *SessionError {
	return &SessionError{
		SessionKey: sessionKey,
		Op:         op,
		Err:        err,
	}
}

// HandlerError describes a failure inside a component message handler.
// Either Err (returned error) or Panic (recovered value) is set.
type HandlerError struct {
	ErrorID     string // Correlation identifier written to the log
	SessionKey  string
	Component   string
	MessageType string
	Origin      string // file:line of the failing frame, if known
	Err         error
	Panic       any
	Stack       []byte
}

// Error returns the error message.
func (e *HandlerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("server: handler panic in session %s, component %s, message %s: %v",
			e.SessionKey, e.Component, e.MessageType, e.Panic)
	}
	return fmt.Sprintf("server: handler error in session %s, component %s, message %s: %v",
		e.SessionKey, e.Component, e.MessageType, e.Err)
}

// Unwrap returns the returned handler error, if any.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// IsPanic reports whether the handler panicked rather than returning an error.
func (e *HandlerError) IsPanic() bool {
	return e.Panic != nil
}
