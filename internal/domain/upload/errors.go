package upload

import "errors"

// Sentinel kinds for upload errors.
var (
	ErrFileTooLarge = errors.New("file too large")
	ErrNoFile       = errors.New("no file")
)
