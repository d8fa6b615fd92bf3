// Package pipeline sequences a finished recording through transcription,
// speaker naming, analysis and persistence.
package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/2re1million/ekko/internal/models"
)

// Stage represents the position of a run in the pipeline.
type Stage int

const (
	// StageTranscribing - Initial stage; the transcription client is called.
	StageTranscribing Stage = iota
	// StageAwaitingSpeakerNames - Suspended until names are submitted or naming is skipped.
	StageAwaitingSpeakerNames
	// StageAnalyzing - The analysis client is called.
	StageAnalyzing
	// StagePersisting - The meeting record is saved. Cancellation is refused from here on.
	StagePersisting
	// StageComplete - Terminal. The record was persisted exactly once.
	StageComplete
	// StageFailed - Terminal. Carries a Failure.
	StageFailed
)

// String returns the string representation of the stage.
func (s Stage) String() string {
	switch s {
	case StageTranscribing:
		return "TRANSCRIBING"
	case StageAwaitingSpeakerNames:
		return "AWAITING_SPEAKER_NAMES"
	case StageAnalyzing:
		return "ANALYZING"
	case StagePersisting:
		return "PERSISTING"
	case StageComplete:
		return "COMPLETE"
	case StageFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// MarshalText encodes the stage by name.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsTerminal returns true for COMPLETE and FAILED.
func (s Stage) IsTerminal() bool {
	return s == StageComplete || s == StageFailed
}

// Transitions:
//
//	TRANSCRIBING → AWAITING_SPEAKER_NAMES → ANALYZING → PERSISTING → COMPLETE
//	      │                  ▲                  ▲
//	      └──────────────────┴──────────────────┘ (no naming needed)
//
//	any non-terminal stage → FAILED
var transitions = map[Stage][]Stage{
	StageTranscribing:         {StageAwaitingSpeakerNames, StageAnalyzing},
	StageAwaitingSpeakerNames: {StageAnalyzing},
	StageAnalyzing:            {StagePersisting},
	StagePersisting:           {StageComplete},
}

// canTransition reports whether from → to is a legal move.
func canTransition(from, to Stage) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StageFailed {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Errors returned by the pipeline.
var (
	ErrRunActive           = errors.New("pipeline: a run for this audio file is already in progress")
	ErrRunNotFound         = errors.New("pipeline: run not found")
	ErrNotAwaitingNames    = errors.New("pipeline: run is not awaiting speaker names")
	ErrInvalidSpeakerNames = errors.New("pipeline: invalid speaker names")
	ErrCancelNotAllowed    = errors.New("pipeline: run is persisting and can no longer be canceled")
	ErrCanceled            = errors.New("pipeline: run canceled")
	ErrInvalidTransition   = errors.New("pipeline: invalid stage transition")
	ErrNoAudioPath         = errors.New("pipeline: audio path is required")
)

// Remediation hints shown with a failure.
const (
	RemediationRetry              = "retry"
	RemediationCheckConfiguration = "check configuration"
)

// Failure describes why a run ended in StageFailed.
type Failure struct {
	Stage       Stage  `json:"stage"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
	Remediation string `json:"remediation"`
	Err         error  `json:"-"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s failed: %s", strings.ToLower(f.Stage.String()), f.Message)
}

func (f *Failure) Unwrap() error { return f.Err }

// newFailure classifies err. Configuration errors need user action; every
// other failure may be retried with a fresh run.
func newFailure(stage Stage, err error) *Failure {
	f := &Failure{
		Stage:       stage,
		Message:     err.Error(),
		Recoverable: true,
		Remediation: RemediationRetry,
		Err:         err,
	}
	if errors.Is(err, models.ErrNotConfigured) {
		f.Recoverable = false
		f.Remediation = RemediationCheckConfiguration
	}
	return f
}

// validateNames trims names and checks they are non-empty, pairwise distinct
// (case-insensitive) and one per speaker.
func validateNames(names []string, speakers int) ([]string, error) {
	if len(names) != speakers {
		return nil, fmt.Errorf("%w: expected %d names, got %d", ErrInvalidSpeakerNames, speakers, len(names))
	}
	out := make([]string, len(names))
	seen := make(map[string]int, len(names))
	for i, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			return nil, fmt.Errorf("%w: name %d is empty", ErrInvalidSpeakerNames, i+1)
		}
		key := strings.ToLower(n)
		if j, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: names %d and %d are both %q", ErrInvalidSpeakerNames, j+1, i+1, n)
		}
		seen[key] = i
		out[i] = n
	}
	return out, nil
}
