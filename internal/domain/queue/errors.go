package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the code or pid resolves to no known patient.
	ErrNotFound = errors.New("patient not found")
	// ErrCooldown means the same identity checked in within the scan
	// cooldown window.
	ErrCooldown = errors.New("check-in cooldown active")
	// ErrInvalidTransition means a staff status update named a status
	// outside the allowed set.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError reports a rejected intake field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
