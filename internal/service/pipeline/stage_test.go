package pipeline

import (
	"errors"
	"fmt"
	"testing"

	"github.com/2re1million/ekko/internal/models"
)

func TestStageString(t *testing.T) {
	tests := []struct {
		stage Stage
		want  string
	}{
		{StageTranscribing, "TRANSCRIBING"},
		{StageAwaitingSpeakerNames, "AWAITING_SPEAKER_NAMES"},
		{StageAnalyzing, "ANALYZING"},
		{StagePersisting, "PERSISTING"},
		{StageComplete, "COMPLETE"},
		{StageFailed, "FAILED"},
		{Stage(42), "UNKNOWN(42)"},
	}
	for _, tt := range tests {
		if got := tt.stage.String(); got != tt.want {
			t.Errorf("Stage(%d).String() = %q, want %q", tt.stage, got, tt.want)
		}
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Stage
		want     bool
	}{
		{StageTranscribing, StageAwaitingSpeakerNames, true},
		{StageTranscribing, StageAnalyzing, true},
		{StageTranscribing, StagePersisting, false},
		{StageTranscribing, StageFailed, true},
		{StageAwaitingSpeakerNames, StageAnalyzing, true},
		{StageAwaitingSpeakerNames, StageTranscribing, false},
		{StageAnalyzing, StagePersisting, true},
		{StageAnalyzing, StageComplete, false},
		{StagePersisting, StageComplete, true},
		{StagePersisting, StageFailed, true},
		{StageComplete, StageFailed, false},
		{StageFailed, StageTranscribing, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			if got := canTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("canTransition = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateNames(t *testing.T) {
	tests := []struct {
		name     string
		names    []string
		speakers int
		want     []string
		wantErr  bool
	}{
		{"valid", []string{"Alice", "Bob"}, 2, []string{"Alice", "Bob"}, false},
		{"trimmed", []string{"  Alice ", "Bob\t"}, 2, []string{"Alice", "Bob"}, false},
		{"too few", []string{"Alice"}, 2, nil, true},
		{"too many", []string{"Alice", "Bob", "Carol"}, 2, nil, true},
		{"empty", []string{"Alice", "  "}, 2, nil, true},
		{"duplicate", []string{"Alice", "alice"}, 2, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validateNames(tt.names, tt.speakers)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSpeakerNames) {
					t.Fatalf("err = %v, want ErrInvalidSpeakerNames", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("names = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewFailure(t *testing.T) {
	f := newFailure(StageTranscribing, fmt.Errorf("%w: missing key", models.ErrNotConfigured))
	if f.Recoverable {
		t.Error("configuration failure should not be recoverable")
	}
	if f.Remediation != RemediationCheckConfiguration {
		t.Errorf("Remediation = %q", f.Remediation)
	}

	f = newFailure(StageAnalyzing, fmt.Errorf("%w: timeout", models.ErrAnalysis))
	if !f.Recoverable || f.Remediation != RemediationRetry {
		t.Errorf("failure = %+v, want recoverable retry", f)
	}
	if !errors.Is(f, models.ErrAnalysis) {
		t.Error("failure should unwrap to the cause")
	}
	if f.Error() != "analyzing failed: analysis failed: timeout" {
		t.Errorf("Error() = %q", f.Error())
	}
}
