package dispatch

import "errors"

// ErrCompositeFailed wraps the failure that aborted a request. The wrapped
// error names the operation and input identity of the failing call.
var ErrCompositeFailed = errors.New("function call failed")
