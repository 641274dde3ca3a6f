package booking

import (
	"errors"
	"fmt"
)

// ErrSlotFull is returned when the requested slot already holds the maximum
// number of active appointments.
var ErrSlotFull = errors.New("slot capacity reached")

// ValidationError carries the field that failed so the handler can return a
// field-level 400.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
