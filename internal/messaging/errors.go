package messaging

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized means the caller's identity could not be established.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the caller is not a participant of the conversation.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidOperation is returned for requests that can never succeed,
	// such as opening a conversation with yourself.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrInvalidInput is returned for malformed message content.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound means the conversation or identity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrTransient wraps storage failures. Callers may retry.
	ErrTransient = errors.New("temporarily unavailable")
)

func transient(err error) error {
	return fmt.Errorf("%w: %v", ErrTransient, err)
}
