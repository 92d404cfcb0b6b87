package service

import (
	"errors"
	"fmt"
)

// Errors returned by the payout services. Callers classify with errors.Is.
var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrNoPendingSales      = errors.New("professor has no pending sales")
	ErrAlreadyPaid         = errors.New("payout batch is already paid")
	ErrConcurrencyConflict = errors.New("concurrent update conflict, try again")

	ErrProfessorNotFound = fmt.Errorf("professor %w", ErrNotFound)
	ErrCourseNotFound    = fmt.Errorf("course %w for professor", ErrNotFound)
	ErrBatchNotFound     = fmt.Errorf("payout batch %w", ErrNotFound)
)

// ValidationError describes one rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
