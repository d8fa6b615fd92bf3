// Package recording provides the recording session controller.
package recording

import (
	"errors"
	"fmt"
)

// State represents the lifecycle state of a recording session.
type State int

const (
	// StateIdle - No session has been started.
	StateIdle State = iota
	// StateRecording - Capture process is running and audio is written to disk.
	StateRecording
	// StateStopping - Capture process has been asked to exit.
	StateStopping
	// StateStopped - Session finished; the output file is closed.
	StateStopped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRecording:
		return "RECORDING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Errors returned by the controller.
var (
	ErrAlreadyRecording = errors.New("recording: a session is already active")
	ErrNotRecording     = errors.New("recording: no active session")
	ErrControllerClosed = errors.New("recording: controller is shut down")
)
