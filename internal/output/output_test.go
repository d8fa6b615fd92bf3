package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/2re1million/ekko/internal/models"
	"github.com/2re1million/ekko/internal/service/pipeline"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{42 * time.Second, "42s"},
		{70*time.Minute + 5*time.Second, "1h10m05s"},
		{3*time.Minute + 400*time.Millisecond, "3m00s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestLevelBar(t *testing.T) {
	if got := levelBar(0); got != "["+strings.Repeat(" ", levelBarWidth)+"]" {
		t.Errorf("levelBar(0) = %q", got)
	}
	if got := levelBar(2); got != "["+strings.Repeat("█", levelBarWidth)+"]" {
		t.Errorf("levelBar(2) = %q", got)
	}
}

func TestRunFailedRemediation(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf)
	f.RunFailed(pipeline.Failure{
		Stage:       pipeline.StageTranscribing,
		Message:     "not configured: MISTRAL_API_KEY is not set",
		Remediation: pipeline.RemediationCheckConfiguration,
	})
	if !strings.Contains(buf.String(), "check configuration") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestMeetingComplete(t *testing.T) {
	var buf bytes.Buffer
	NewFormatter(&buf).MeetingComplete(models.PersistedMeeting{
		ID: "m-1",
		MeetingDraft: models.MeetingDraft{
			Title:       "Weekly sync",
			Decisions:   []string{"Ship Tuesday"},
			ActionItems: []models.ActionItem{{Description: "Send notes", Assignee: "Anna"}},
		},
	})
	out := buf.String()
	for _, want := range []string{"Weekly sync", "Ship Tuesday", "Send notes (Anna)", "m-1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
