package service

import "errors"

// Sentinel kinds for pipeline errors.
var (
	ErrNotFound   = errors.New("run not found")
	ErrStage      = errors.New("operation not allowed in current stage")
	ErrInFlight   = errors.New("operation already in progress")
	ErrBusy       = errors.New("analysis queue is full")
	ErrNotStarted = errors.New("service not started")
	ErrMissingDep = errors.New("missing service dependency")
)
