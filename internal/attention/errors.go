package attention

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput matches every *InputError.
	ErrInvalidInput = errors.New("invalid attention input")

	// ErrInvalidConfig indicates a rejected configuration or patch.
	ErrInvalidConfig = errors.New("invalid attention config")

	// ErrUnknownBackend indicates an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown attention backend")
)

// InputError describes why attention inputs were rejected.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string {
	return "invalid attention input: " + e.Reason
}

// Is reports whether target is ErrInvalidInput.
func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}

func inputErr(format string, args ...any) *InputError {
	return &InputError{Reason: fmt.Sprintf(format, args...)}
}
