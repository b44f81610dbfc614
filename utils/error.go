package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// ValidationError covers missing/invalid top-level input fields.
// Surfaced before any state is mutated.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(message string) error {
	return &ValidationError{Message: message}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StateError covers delivery-status / transaction-type mismatches during
// settlement and edits of already-settled transactions.
type StateError struct {
	Message string
}

func (e *StateError) Error() string {
	return e.Message
}

func NewStateError(message string) error {
	return &StateError{Message: message}
}

func IsStateError(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}
