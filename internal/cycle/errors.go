package cycle

import "errors"

// ErrConnectExhausted marks a publish attempt that failed because the
// transport could not be (re)connected within its own retry policy.
var ErrConnectExhausted = errors.New("cycle: transport connect exhausted")
