// Package models defines the value types shared between the recorder,
// the processing pipeline and their collaborators.
package models

// Speaker is one voice attributed in a transcript.
type Speaker struct {
	ID           string  `json:"id"`
	DisplayName  string  `json:"displayName"`
	Confidence   float64 `json:"confidence"`
	ExemplarPath string  `json:"exemplarAudioPath,omitempty"`
}

// Transcription is the result of a transcription call.
type Transcription struct {
	Transcript      string    `json:"transcript"`
	Speakers        []Speaker `json:"speakers"`
	DurationSeconds int       `json:"durationSeconds"`
}
