package function

import "errors"

var (
	// ErrUnknownFunction is returned when a request names no registered function.
	ErrUnknownFunction = errors.New("unknown function")

	// ErrInvalidInput is returned when a request's input does not fit its function.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotExecutable is returned when a composite function is executed
	// directly instead of through its decomposition.
	ErrNotExecutable = errors.New("function must be decomposed before execution")
)
