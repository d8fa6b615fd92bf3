package models

import "errors"

// Error classes shared by collaborators. Adapters wrap their failures with
// one of these so the pipeline can decide between retry and remediation.
var (
	// ErrNotConfigured marks configuration failures such as a missing API key.
	// They are not retryable without user action.
	ErrNotConfigured = errors.New("not configured")

	ErrTranscription = errors.New("transcription failed")
	ErrAnalysis      = errors.New("analysis failed")
	ErrPersistence   = errors.New("persistence failed")
)
