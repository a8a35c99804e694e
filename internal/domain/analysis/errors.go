package analysis

import "errors"

var (
	// ErrResourceUnavailable means a fallback artifact could not be loaded.
	// The static provider swallows it and returns an empty event list.
	ErrResourceUnavailable = errors.New("analysis resource unavailable")
	// ErrAnalysisFailed is returned when a remote analysis call fails.
	ErrAnalysisFailed = errors.New("analysis failed")
	// ErrUnknownProvider is returned for an unsupported provider name.
	ErrUnknownProvider = errors.New("unknown analysis provider")
	// ErrNoVideo is returned when a submission has no readable video.
	ErrNoVideo = errors.New("match video not available")
)
