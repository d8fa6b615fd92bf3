// Package stt defines the transcription client contract.
package stt

import (
	"context"
	"strings"

	"github.com/2re1million/ekko/internal/models"
)

// Client transcribes a finished audio file. Implementations must be safe
// for concurrent use by independent pipeline runs.
type Client interface {
	// Transcribe returns the transcript, any speakers the provider detected
	// and the audio duration. Failures wrap models.ErrTranscription or
	// models.ErrNotConfigured.
	Transcribe(ctx context.Context, audioPath string) (models.Transcription, error)
}

// SpeakerEstimator guesses speakers from transcript text.
type SpeakerEstimator interface {
	Speakers(ctx context.Context, audioPath, transcript string) []models.Speaker
}

// EstimatingClient fills in speakers for providers that do not diarize.
type EstimatingClient struct {
	next      Client
	estimator SpeakerEstimator
}

// WithSpeakerEstimate wraps next so that results without speakers are passed
// through est. A nil est returns next unchanged.
func WithSpeakerEstimate(next Client, est SpeakerEstimator) Client {
	if est == nil {
		return next
	}
	return &EstimatingClient{next: next, estimator: est}
}

func (c *EstimatingClient) Transcribe(ctx context.Context, audioPath string) (models.Transcription, error) {
	res, err := c.next.Transcribe(ctx, audioPath)
	if err != nil {
		return res, err
	}
	if len(res.Speakers) == 0 && strings.TrimSpace(res.Transcript) != "" {
		res.Speakers = c.estimator.Speakers(ctx, audioPath, res.Transcript)
	}
	return res, nil
}
