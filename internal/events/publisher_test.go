package events

import (
	"context"
	"testing"
	"time"

	"github.com/2re1million/ekko/internal/models"
)

func TestNewPublisher_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPublisher(tt.cfg, nil)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.enabled {
				t.Error("expected publisher to be disabled")
			}
			if p.writerRecording != nil {
				t.Error("expected nil recording writer when disabled")
			}
			if p.writerPipeline != nil {
				t.Error("expected nil pipeline writer when disabled")
			}
		})
	}
}

func TestNewPublisher_ConfigValues(t *testing.T) {
	p := NewPublisher(&Config{
		Enabled:        false,
		Brokers:        []string{"localhost:9092"},
		TopicRecording: "test.recording",
		TopicPipeline:  "test.pipeline",
		Principal:      "test-principal",
	}, nil)

	if p.principal != "test-principal" {
		t.Errorf("expected principal 'test-principal', got %s", p.principal)
	}
	if p.topicRecording != "test.recording" {
		t.Errorf("expected recording topic 'test.recording', got %s", p.topicRecording)
	}
	if p.topicPipeline != "test.pipeline" {
		t.Errorf("expected pipeline topic 'test.pipeline', got %s", p.topicPipeline)
	}
}

func TestPublisher_Publish_Disabled(t *testing.T) {
	p := NewPublisher(&Config{Enabled: false}, nil)

	events := []Event{
		New(KindRecordingStarted, "recording_1.wav", models.RecordingStarted{FileName: "recording_1.wav"}),
		New(KindRunFailed, "run-1", map[string]string{"message": "boom"}),
	}
	for _, ev := range events {
		if err := p.Publish(context.Background(), ev); err != nil {
			t.Errorf("%s: expected no error when disabled, got %v", ev.Kind, err)
		}
	}
}

func TestPublisher_Publish_InvalidPayload(t *testing.T) {
	p := NewPublisher(&Config{Enabled: false}, nil)

	err := p.Publish(context.Background(), New(KindRunComplete, "run-1", make(chan int)))
	if err == nil {
		t.Error("expected error for unmarshalable payload")
	}
}

func TestPublisher_Close_NoWriters(t *testing.T) {
	p := NewPublisher(&Config{Enabled: false}, nil)

	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}
}

func TestPublisher_Forward_StopsWhenBusCloses(t *testing.T) {
	p := NewPublisher(nil, nil)
	bus := NewBus(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Forward(ctx, bus)

	bus.Publish(New(KindRecordingStopped, "r.wav", models.RecordingStopped{FilePath: "r.wav", DurationSeconds: 3}))
	bus.Close()

	// Give the forwarder a moment to observe the closed channel.
	time.Sleep(20 * time.Millisecond)
}

func TestKind_Domain(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindStatusChanged, "recording"},
		{KindTimeWarning, "recording"},
		{KindStageChanged, "pipeline"},
		{KindRunComplete, "pipeline"},
		{Kind("plain"), "plain"},
	}
	for _, tt := range tests {
		if got := tt.kind.Domain(); got != tt.want {
			t.Errorf("Kind(%q).Domain() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
