package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/2re1million/ekko/internal/models"
)

func newStore(t *testing.T) *MeetingStore {
	t.Helper()
	s, err := NewMeetingStore(filepath.Join(t.TempDir(), "meetings.db"))
	if err != nil {
		t.Fatalf("NewMeetingStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func draft(title string) models.MeetingDraft {
	return models.MeetingDraft{
		Title:           title,
		Date:            time.Date(2024, 5, 2, 10, 30, 0, 0, time.UTC),
		DurationSeconds: 1800,
		Participants:    []string{"Anna", "Ben"},
		Transcript:      "The budget is approved.",
		Summary:         "Budget approved.",
		Decisions:       []string{"Approve budget"},
		ActionItems:     []models.ActionItem{{Description: "Send notes", Assignee: "Anna"}},
		Tags:            []string{"budget"},
		AudioFilePath:   "/data/recording.wav",
	}
}

func TestMeetingStore_SaveAndGet(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	saved, err := s.Save(ctx, draft("Budget review"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if saved.ID == "" {
		t.Error("expected generated ID")
	}
	if saved.CreatedAt.IsZero() || !saved.CreatedAt.Equal(saved.UpdatedAt) {
		t.Errorf("unexpected timestamps %v %v", saved.CreatedAt, saved.UpdatedAt)
	}

	got, err := s.Get(ctx, saved.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Title != "Budget review" || got.Transcript != "The budget is approved." {
		t.Errorf("unexpected meeting %+v", got)
	}
	if !got.Date.Equal(saved.Date) || !got.CreatedAt.Equal(saved.CreatedAt) {
		t.Errorf("timestamps did not round trip: %v / %v", got.Date, got.CreatedAt)
	}
	if len(got.Participants) != 2 || got.Participants[1] != "Ben" {
		t.Errorf("unexpected participants %v", got.Participants)
	}
	if len(got.ActionItems) != 1 || got.ActionItems[0].Assignee != "Anna" {
		t.Errorf("unexpected action items %v", got.ActionItems)
	}
	if got.AudioFilePath != "/data/recording.wav" {
		t.Errorf("unexpected audio path %q", got.AudioFilePath)
	}
}

func TestMeetingStore_NilListsStoredEmpty(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	d := draft("Empty")
	d.Decisions, d.ActionItems, d.Tags, d.AudioFilePath = nil, nil, nil, ""
	saved, err := s.Save(ctx, d)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := s.Get(ctx, saved.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Decisions == nil || got.ActionItems == nil || got.Tags == nil {
		t.Error("expected empty, non-nil lists")
	}
	if got.AudioFilePath != "" {
		t.Errorf("expected empty audio path, got %q", got.AudioFilePath)
	}
}

func TestMeetingStore_GetMissing(t *testing.T) {
	s := newStore(t)
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrMeetingNotFound) {
		t.Fatalf("expected ErrMeetingNotFound, got %v", err)
	}
}

func TestMeetingStore_ListNewestFirst(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, title := range []string{"first", "second", "third"} {
		offset := time.Duration(i) * time.Minute
		s.now = func() time.Time { return base.Add(offset) }
		if _, err := s.Save(ctx, draft(title)); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	list, err := s.List(ctx, 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 meetings, got %d", len(list))
	}
	if list[0].Title != "third" || list[1].Title != "second" {
		t.Errorf("unexpected order %s, %s", list[0].Title, list[1].Title)
	}
}

func TestMeetingStore_SaveAfterClose(t *testing.T) {
	s, err := NewMeetingStore(filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatal(err)
	}
	s.Close()
	if _, err := s.Save(context.Background(), draft("x")); !errors.Is(err, models.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
}

func TestMeetingStore_ConcurrentSaves(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Save(ctx, draft("concurrent")); err != nil {
				t.Errorf("Save failed: %v", err)
			}
		}()
	}
	wg.Wait()

	list, err := s.List(ctx, 100)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 8 {
		t.Errorf("expected 8 meetings, got %d", len(list))
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCleaner_DeleteAudioAndExemplars(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "recording_20240101_090000.wav")
	ex1 := filepath.Join(dir, "recording_20240101_090000_speaker_1.wav")
	ex2 := filepath.Join(dir, "recording_20240101_090000_speaker_2.wav")
	other := filepath.Join(dir, "recording_20240101_100000_speaker_1.wav")
	for _, p := range []string{audio, ex1, ex2, other} {
		touch(t, p)
	}

	if err := NewCleaner().DeleteAudioAndExemplars(audio); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, p := range []string{audio, ex1, ex2} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("expected %s to be deleted", filepath.Base(p))
		}
	}
	if _, err := os.Stat(other); err != nil {
		t.Errorf("unrelated exemplar must be kept: %v", err)
	}
}

func TestCleaner_MissingFileIsNotAnError(t *testing.T) {
	if err := NewCleaner().DeleteAudioAndExemplars(filepath.Join(t.TempDir(), "gone.wav")); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestCleaner_ReportsFailures(t *testing.T) {
	dir := t.TempDir()
	// a non-empty directory cannot be removed with os.Remove
	target := filepath.Join(dir, "busy.wav")
	if err := os.Mkdir(target, 0o755); err != nil {
		t.Fatal(err)
	}
	touch(t, filepath.Join(target, "inner"))

	if err := NewCleaner().DeleteAudioAndExemplars(target); err == nil {
		t.Error("expected error for undeletable path")
	}
}
