package diarization

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func words(word string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = word
	}
	return out
}

func TestEstimateCount(t *testing.T) {
	mixed := func(indicators, filler int) string {
		parts := append(words("you", indicators), words("budget", filler)...)
		return strings.Join(parts, " ")
	}
	dialogue := strings.Repeat("alpha beta gamma delta. ", 40)

	tests := []struct {
		name       string
		transcript string
		want       int
	}{
		{"empty", "", 0},
		{"whitespace only", "   \n\t ", 0},
		{"fifty words of chatter", mixed(50, 0), 1},
		{"exactly one hundred words", mixed(60, 40), 1},
		{"ratio 0.20 gives three", mixed(100, 400), 3},
		{"ratio 0.10 gives two", mixed(50, 450), 2},
		{"ratio 0.04 gives one", mixed(20, 480), 1},
		{"all indicators still clamped", mixed(500, 0), 3},
		{"short sentences imply dialogue", dialogue, 2},
		{"end to end sentence", "Yes I agree, you said the budget is approved", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateCount(tt.transcript)
			if got != tt.want {
				t.Errorf("EstimateCount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEstimateCount_Bounds(t *testing.T) {
	inputs := []string{
		strings.Repeat("Yes. No. Okay you said so! Right? ", 200),
		strings.Repeat("the quarterly budget review continues with further items ", 100),
		strings.Repeat("you ", 1000),
	}
	for i, in := range inputs {
		got := EstimateCount(in)
		if got < MinSpeakers || got > MaxSpeakers {
			t.Errorf("input %d: estimate %d outside [%d,%d]", i, got, MinSpeakers, MaxSpeakers)
		}
	}
}

func TestNormalizeToken(t *testing.T) {
	tests := map[string]string{
		"You,":   "you",
		"\"Yes!": "yes",
		"OK...":  "ok",
		"--":     "",
	}
	for in, want := range tests {
		if got := normalizeToken(in); got != want {
			t.Errorf("normalizeToken(%q) = %q, want %q", in, got, want)
		}
	}
}

type fakeExtractor struct {
	failFor map[int]bool
	starts  []time.Duration
}

func (f *fakeExtractor) Extract(ctx context.Context, audioPath string, speaker int, start, length time.Duration) (string, error) {
	f.starts = append(f.starts, start)
	if length != ExemplarDuration {
		return "", errors.New("unexpected length")
	}
	if f.failFor[speaker] {
		return "", errors.New("ffmpeg exploded")
	}
	return ExemplarPath("", audioPath, speaker), nil
}

func TestEstimator_Speakers(t *testing.T) {
	x := &fakeExtractor{failFor: map[int]bool{2: true}}
	e := NewEstimator(x, nil)

	transcript := strings.Join(append(words("you", 100), words("budget", 400)...), " ")
	speakers := e.Speakers(context.Background(), "/tmp/rec/meeting.wav", transcript)

	if len(speakers) != 3 {
		t.Fatalf("expected 3 speakers, got %d", len(speakers))
	}
	wantStarts := []time.Duration{10 * time.Second, 40 * time.Second, 70 * time.Second}
	for i, s := range x.starts {
		if s != wantStarts[i] {
			t.Errorf("speaker %d: expected start %v, got %v", i+1, wantStarts[i], s)
		}
	}

	for i, sp := range speakers {
		if sp.DisplayName != GenericName(i) {
			t.Errorf("speaker %d: unexpected name %q", i, sp.DisplayName)
		}
		if sp.Confidence != DefaultConfidence {
			t.Errorf("speaker %d: unexpected confidence %v", i, sp.Confidence)
		}
	}
	if speakers[0].ExemplarPath != "/tmp/rec/meeting_speaker_1.wav" {
		t.Errorf("unexpected exemplar %q", speakers[0].ExemplarPath)
	}
	if speakers[1].ExemplarPath != "" {
		t.Errorf("failed extraction should leave exemplar empty, got %q", speakers[1].ExemplarPath)
	}
	if speakers[2].ExemplarPath == "" {
		t.Error("failure for one speaker must not affect others")
	}
}

func TestEstimator_NoExtractor(t *testing.T) {
	e := NewEstimator(nil, nil)
	speakers := e.Speakers(context.Background(), "/tmp/a.wav", "Yes I agree, you said the budget is approved")
	if len(speakers) != 1 || speakers[0].DisplayName != "Speaker 1" || speakers[0].ExemplarPath != "" {
		t.Errorf("unexpected speakers %+v", speakers)
	}

	if got := e.Speakers(context.Background(), "/tmp/a.wav", ""); len(got) != 0 {
		t.Errorf("expected no speakers for empty transcript, got %d", len(got))
	}
}

func TestExemplarPath(t *testing.T) {
	if got := ExemplarPath("", "/data/rec/recording_20240101_090000.wav", 2); got != filepath.Join("/data/rec", "recording_20240101_090000_speaker_2.wav") {
		t.Errorf("unexpected path %s", got)
	}
	if got := ExemplarPath("/out", "/data/rec/a.wav", 1); got != filepath.Join("/out", "a_speaker_1.wav") {
		t.Errorf("unexpected path %s", got)
	}
}

func TestFFmpegExtractor_MissingBinary(t *testing.T) {
	x := NewFFmpegExtractor(filepath.Join(t.TempDir(), "no-ffmpeg"))
	if _, err := x.Extract(context.Background(), "/tmp/a.wav", 1, ExemplarOffset, ExemplarDuration); err == nil {
		t.Error("expected error for missing ffmpeg")
	}
}

func TestFormatSeconds(t *testing.T) {
	if got := formatSeconds(10 * time.Second); got != "10" {
		t.Errorf("expected 10, got %s", got)
	}
	if got := formatSeconds(1500 * time.Millisecond); got != "1.5" {
		t.Errorf("expected 1.5, got %s", got)
	}
}
