package service

import (
	"errors"
	"fmt"
)

// Reminder service errors
var (
	ErrValidation  = errors.New("invalid reminder")
	ErrPersistence = errors.New("reminder store unavailable")
	ErrNotFound    = errors.New("reminder not found")
)

// ValidationError describes a rejected input field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Is makes errors.Is(err, ErrValidation) match any ValidationError
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
