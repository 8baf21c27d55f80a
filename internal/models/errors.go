package models

import "errors"

// Sentinel validation failures. Validate wraps them in a *FieldError.
var (
	ErrNameRequired = errors.New("name is required")
	ErrURLRequired  = errors.New("url is required")
	ErrInvalidURL   = errors.New("url must be absolute")
	ErrInvalidState = errors.New("unknown stream state")
)

// FieldError reports which field failed validation and why.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *FieldError) Unwrap() error {
	return e.Err
}
