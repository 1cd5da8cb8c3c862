package router

import (
	"errors"
	"fmt"
)

// Model errors.
var (
	// ErrModelFormat matches every *ModelFormatError.
	ErrModelFormat = errors.New("malformed model")
)

// Configuration errors.
var (
	ErrNoRoutes       = errors.New("at least one route is required")
	ErrDuplicateRoute = errors.New("duplicate route label")
)

// ModelFormatError reports why a model was rejected by Import.
type ModelFormatError struct {
	Field  string
	Reason string
}

func (e *ModelFormatError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed model: %s", e.Reason)
	}
	return fmt.Sprintf("malformed model: %s: %s", e.Field, e.Reason)
}

// Is reports whether target is ErrModelFormat.
func (e *ModelFormatError) Is(target error) bool {
	return target == ErrModelFormat
}

func formatErr(field, format string, args ...any) *ModelFormatError {
	return &ModelFormatError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
