package stt

import (
	"context"
	"errors"
	"testing"

	"github.com/2re1million/ekko/internal/models"
)

type testClient struct {
	res models.Transcription
	err error
}

func (c *testClient) Transcribe(ctx context.Context, audioPath string) (models.Transcription, error) {
	return c.res, c.err
}

type testEstimator struct {
	calls int
}

func (e *testEstimator) Speakers(ctx context.Context, audioPath, transcript string) []models.Speaker {
	e.calls++
	return []models.Speaker{{ID: "speaker_1", DisplayName: "Speaker 1"}}
}

func TestWithSpeakerEstimate(t *testing.T) {
	provided := []models.Speaker{{ID: "a"}, {ID: "b"}}

	tests := []struct {
		name         string
		res          models.Transcription
		err          error
		wantSpeakers int
		wantCalls    int
	}{
		{"fills missing speakers", models.Transcription{Transcript: "hello there"}, nil, 1, 1},
		{"keeps provider speakers", models.Transcription{Transcript: "hello", Speakers: provided}, nil, 2, 0},
		{"empty transcript has no speakers", models.Transcription{Transcript: "  "}, nil, 0, 0},
		{"errors pass through", models.Transcription{}, errors.New("boom"), 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est := &testEstimator{}
			c := WithSpeakerEstimate(&testClient{res: tt.res, err: tt.err}, est)

			res, err := c.Transcribe(context.Background(), "/tmp/a.wav")
			if (err != nil) != (tt.err != nil) {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(res.Speakers) != tt.wantSpeakers {
				t.Errorf("expected %d speakers, got %d", tt.wantSpeakers, len(res.Speakers))
			}
			if est.calls != tt.wantCalls {
				t.Errorf("expected %d estimator calls, got %d", tt.wantCalls, est.calls)
			}
		})
	}
}

func TestWithSpeakerEstimate_NilEstimator(t *testing.T) {
	inner := &testClient{}
	if c := WithSpeakerEstimate(inner, nil); c != Client(inner) {
		t.Error("expected the inner client back")
	}
}
