package services

import (
	"errors"
	"fmt"
)

// ValidationError rejects a request before anything is persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ErrConversationNotFound is returned by operations that require an
// existing thread. Listing operations on an unknown conversation return
// empty results instead.
var ErrConversationNotFound = errors.New("conversation not found")

// ErrNotParticipant is returned when a viewer tries to open a
// conversation they are not a party to. Deliberately indistinguishable
// from a missing conversation at the HTTP layer.
var ErrNotParticipant = errors.New("viewer is not a participant of this conversation")

// TransientError wraps store or delivery failures worth one retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a request validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
