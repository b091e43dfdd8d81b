package service

import "errors"

// Error kinds surfaced by the publishing and rendering services. Handlers map
// each kind to a distinct HTTP status and machine-readable code.
var (
	// ErrInvalidFileType is returned when an upload is not an .html file.
	ErrInvalidFileType = errors.New("only HTML files are allowed")
	// ErrFileTooLarge is returned when an upload exceeds the configured ceiling.
	ErrFileTooLarge = errors.New("file too large")
	// ErrInvalidFilename is returned when a rename target is empty after trimming.
	ErrInvalidFilename = errors.New("filename is required")
	// ErrNotFound is returned when no document record exists for an ID.
	ErrNotFound = errors.New("document not found")
	// ErrStoreUnavailable is returned when a blob or metadata store call fails.
	ErrStoreUnavailable = errors.New("store unavailable")
)
