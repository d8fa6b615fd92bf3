package models

import "time"

// ActionItem is a follow-up extracted from a meeting.
type ActionItem struct {
	Description string `json:"description"`
	Assignee    string `json:"assignee,omitempty"`
	DueDate     string `json:"dueDate,omitempty"`
}

// AnalysisResult is produced once per successful analysis call and is not
// modified afterwards.
type AnalysisResult struct {
	Summary        string       `json:"summary"`
	Decisions      []string     `json:"decisions"`
	ActionItems    []ActionItem `json:"actionItems"`
	SuggestedTitle string       `json:"suggestedTitle"`
	KeyTopics      []string     `json:"keyTopics"`
}

// AnalysisMetadata accompanies a transcript sent for analysis.
type AnalysisMetadata struct {
	Date            time.Time `json:"date"`
	DurationSeconds int       `json:"durationSeconds"`
	Participants    []string  `json:"participants"`
}

// MeetingDraft is the record handed to the persistence collaborator.
// AudioFilePath is empty when the source audio is scheduled for deletion.
type MeetingDraft struct {
	Title           string       `json:"title"`
	Date            time.Time    `json:"date"`
	DurationSeconds int          `json:"durationSeconds"`
	Participants    []string     `json:"participants"`
	Transcript      string       `json:"transcript"`
	Summary         string       `json:"summary"`
	Decisions       []string     `json:"decisions"`
	ActionItems     []ActionItem `json:"actionItems"`
	Tags            []string     `json:"tags"`
	AudioFilePath   string       `json:"audioFilePath"`
}

// PersistedMeeting is a MeetingDraft after it has been stored.
type PersistedMeeting struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	MeetingDraft
}

// DefaultTitle is used when analysis suggests no title.
func DefaultTitle(date time.Time) string {
	return "Meeting " + date.Format("2006-01-02 15:04")
}
