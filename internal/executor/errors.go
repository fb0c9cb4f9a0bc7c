package executor

import "errors"

// ErrConfiguration is returned when the registry or one of its pool pairs
// cannot be built from the given configuration. It is not retryable.
var ErrConfiguration = errors.New("executor configuration")
