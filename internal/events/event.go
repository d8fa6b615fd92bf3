// Package events provides the in-process event bus used by the recorder and
// the pipeline, and a Kafka publisher that mirrors bus traffic.
package events

import (
	"strings"
	"time"
)

// Kind identifies an event.
type Kind string

const (
	KindStatusChanged    Kind = "recording.status"
	KindTimeWarning      Kind = "recording.warning"
	KindRecordingStarted Kind = "recording.started"
	KindRecordingStopped Kind = "recording.stopped"
	KindRecordingError   Kind = "recording.error"

	KindStageChanged Kind = "pipeline.stage"
	KindRunComplete  Kind = "pipeline.complete"
	KindRunFailed    Kind = "pipeline.failed"
)

// Domain returns the part of the kind before the first dot.
func (k Kind) Domain() string {
	s := string(k)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return s[:i]
	}
	return s
}

// Event is one message on the bus. Key groups related events, for example
// the run ID of a pipeline run or the file name of a recording.
type Event struct {
	Kind    Kind      `json:"kind"`
	Key     string    `json:"key,omitempty"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload"`
}

// New builds an event stamped with the current time.
func New(kind Kind, key string, payload any) Event {
	return Event{
		Kind:    kind,
		Key:     key,
		Time:    time.Now().UTC(),
		Payload: payload,
	}
}
