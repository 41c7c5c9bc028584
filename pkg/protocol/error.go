package protocol

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by DecodeMessage.
var (
	// ErrEmptyMessage is returned for a zero-length frame.
	ErrEmptyMessage = errors.New("protocol: empty message")

	// ErrMessageTooLarge is returned when a frame exceeds MaxMessageSize.
	ErrMessageTooLarge = errors.New("protocol: message too large")

	// ErrMissingType is returned when the "type" tag is absent or empty.
	ErrMissingType = errors.New("protocol: missing message type")

	// ErrMissingSession is returned when sessionId or sessionIdUuid is absent.
	ErrMissingSession = errors.New("protocol: missing session identifier")

	// ErrFieldAbsent is returned by Message.Bind for a field the frame did not carry.
	ErrFieldAbsent = errors.New("protocol: field absent")
)

// DecodeError wraps a failure to parse an inbound frame.
type DecodeError struct {
	Field string // Routing field that failed, empty for syntax errors
	Err   error
}

// Error returns the error message.
func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("protocol: decode message: %v", e.Err)
	}
	return fmt.Sprintf("protocol: decode message field %q: %v", e.Field, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *DecodeError) Unwrap() error {
	return e.Err
}
