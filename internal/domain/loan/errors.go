package loan

import "errors"

var (
	ErrNotFound     = errors.New("loan not found")
	ErrUnauthorized = errors.New("caller not authorized")
	ErrInvalidState = errors.New("operation not valid for current loan status")
	ErrValidation   = errors.New("validation failed")
)
