package model

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the service and the HTTP layer.
var (
	ErrInvalidCollection = errors.New("invalid collection")
	ErrFilterNotFound    = errors.New("filter not found")
	ErrRecordNotFound    = errors.New("record not found")
	ErrValidation        = errors.New("validation failed")
	ErrNoData            = errors.New("no data to export")
)

// QueryError wraps a failure of the underlying store.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s failed: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// WrapQuery wraps err as a QueryError unless it is nil or already classified.
func WrapQuery(op string, err error) error {
	if err == nil {
		return nil
	}
	var qe *QueryError
	if errors.As(err, &qe) ||
		errors.Is(err, ErrInvalidCollection) ||
		errors.Is(err, ErrFilterNotFound) ||
		errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNoData) {
		return err
	}
	return &QueryError{Op: op, Err: err}
}

// Validationf builds an ErrValidation with a message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
