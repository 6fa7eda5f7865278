package apperrors

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidTestType = errors.New("invalid test type")
	ErrVectorNotReady  = errors.New("vector support is not ready")
)
