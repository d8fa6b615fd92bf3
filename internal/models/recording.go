package models

// RecordingStatus is a point-in-time snapshot of the recorder. A fresh value
// is built for every broadcast.
type RecordingStatus struct {
	IsRecording    bool    `json:"isRecording"`
	ElapsedSeconds int     `json:"elapsedSeconds"`
	AudioLevel     float64 `json:"audioLevel"`
	FileName       string  `json:"fileName,omitempty"`
}

// WarningLevel grades a TimeWarning.
type WarningLevel string

const (
	WarningLevelWarning  WarningLevel = "warning"
	WarningLevelCritical WarningLevel = "critical"
)

// TimeWarning is emitted once per threshold crossing within a session.
type TimeWarning struct {
	Level          WarningLevel `json:"level"`
	ElapsedSeconds int          `json:"elapsedSeconds"`
	Message        string       `json:"message"`
}

// RecordingStarted is broadcast when a capture session begins.
type RecordingStarted struct {
	FileName string `json:"fileName"`
	FilePath string `json:"filePath"`
}

// RecordingStopped is broadcast when a capture session ends normally.
type RecordingStopped struct {
	FilePath        string `json:"filePath"`
	DurationSeconds int    `json:"durationSeconds"`
}

// RecordingError is broadcast when a session is terminated by a failure.
type RecordingError struct {
	FilePath string `json:"filePath,omitempty"`
	Message  string `json:"message"`
}
