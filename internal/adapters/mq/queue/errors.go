package queue

import "errors"

// Sentinel kinds for enqueue failures.
var (
	ErrFull   = errors.New("analysis queue full")
	ErrClosed = errors.New("analysis queue closed")
)
