package models

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation tags caller-correctable input errors.
	ErrValidation = errors.New("validation failed")

	// ErrPersistence tags storage-layer failures.
	ErrPersistence = errors.New("persistence failed")

	// ErrInvalidTransition is returned when a timer operation is not valid
	// from the current phase. The state is left unchanged.
	ErrInvalidTransition = errors.New("invalid timer transition")

	// ErrTimerActive is returned when starting a session while one is
	// already running.
	ErrTimerActive = errors.New("timer already active")
)

// ValidationError carries which field failed and why.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// PersistenceError wraps an underlying storage failure with the operation
// that triggered it. errors.Is(err, ErrPersistence) matches it, and
// Unwrap exposes the driver error for inspection.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
