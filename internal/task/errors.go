package task

import (
	"errors"
	"fmt"
)

// ErrPanic marks a unit whose Run function panicked.
var ErrPanic = errors.New("task panicked")

// UnitError is the failure that aborts a fail-fast batch. It names the unit
// that failed first.
type UnitError struct {
	Operation string
	InputID   string
	Err       error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("%s (input %s): %v", e.Operation, e.InputID, e.Err)
}

func (e *UnitError) Unwrap() error {
	return e.Err
}
