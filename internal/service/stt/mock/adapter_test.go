package mock

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/2re1million/ekko/internal/models"
	"github.com/2re1million/ekko/internal/service/recorder"
)

func writeWAV(t *testing.T, seconds int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.wav")
	w, err := recorder.CreateWAV(path, 16000)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(make([]byte, 32000*seconds)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestClient_CyclesMeetings(t *testing.T) {
	path := writeWAV(t, 2)
	c := New()

	first, err := c.Transcribe(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Transcript == "" {
		t.Error("expected transcript")
	}
	if len(first.Speakers) != 0 {
		t.Errorf("expected no speakers for first meeting, got %d", len(first.Speakers))
	}
	if first.DurationSeconds != 2 {
		t.Errorf("expected duration 2s from header, got %d", first.DurationSeconds)
	}

	second, _ := c.Transcribe(context.Background(), path)
	if len(second.Speakers) != 2 {
		t.Errorf("expected 2 speakers for second meeting, got %d", len(second.Speakers))
	}
	if second.Transcript == first.Transcript {
		t.Error("expected a different transcript on the second call")
	}

	third, _ := c.Transcribe(context.Background(), path)
	if third.Transcript != first.Transcript {
		t.Error("expected meetings to cycle")
	}
	if c.Calls() != 3 {
		t.Errorf("expected 3 calls, got %d", c.Calls())
	}
}

func TestClient_WithTranscript(t *testing.T) {
	path := writeWAV(t, 1)
	c := New(WithTranscript("Yes I agree, you said the budget is approved", 0))

	res, err := c.Transcribe(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Transcript != "Yes I agree, you said the budget is approved" {
		t.Errorf("unexpected transcript %q", res.Transcript)
	}
}

func TestClient_MissingFile(t *testing.T) {
	c := New()
	_, err := c.Transcribe(context.Background(), filepath.Join(t.TempDir(), "nope.wav"))
	if !errors.Is(err, models.ErrTranscription) {
		t.Fatalf("expected ErrTranscription, got %v", err)
	}
}

func TestClient_WithError(t *testing.T) {
	want := errors.New("rate limited")
	c := New(WithError(want))
	if _, err := c.Transcribe(context.Background(), writeWAV(t, 1)); !errors.Is(err, want) {
		t.Fatalf("expected configured error, got %v", err)
	}
}

func TestClient_DelayHonorsContext(t *testing.T) {
	c := New(WithDelay(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Transcribe(ctx, writeWAV(t, 1))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestClient_Concurrent(t *testing.T) {
	path := writeWAV(t, 1)
	c := New()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Transcribe(context.Background(), path); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if c.Calls() != 10 {
		t.Errorf("expected 10 calls, got %d", c.Calls())
	}
}
