// Package output formats CLI feedback.
package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/2re1million/ekko/internal/models"
	"github.com/2re1million/ekko/internal/service/pipeline"
)

const levelBarWidth = 20

type Formatter struct {
	w io.Writer
}

func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w}
}

func (f *Formatter) RecordingStarted(path string) {
	fmt.Fprintf(f.w, "🎙️  Recording to %s (Ctrl+C to stop)\n", path)
}

// RecordingStatus redraws the status line in place.
func (f *Formatter) RecordingStatus(s models.RecordingStatus) {
	fmt.Fprintf(f.w, "\r⏺️  %s  %s", formatDuration(time.Duration(s.ElapsedSeconds)*time.Second), levelBar(s.AudioLevel))
}

func (f *Formatter) TimeWarning(w models.TimeWarning) {
	icon := "⚠️ "
	if w.Level == models.WarningLevelCritical {
		icon = "🚨"
	}
	fmt.Fprintf(f.w, "\n%s %s\n", icon, w.Message)
}

func (f *Formatter) RecordingStopped(duration time.Duration) {
	fmt.Fprintf(f.w, "\n⏹️  Recording stopped (%s)\n", formatDuration(duration))
}

func (f *Formatter) Stage(s pipeline.Stage) {
	switch s {
	case pipeline.StageTranscribing:
		fmt.Fprintf(f.w, "📝 Transcribing audio...\n")
	case pipeline.StageAwaitingSpeakerNames:
		fmt.Fprintf(f.w, "🗣️  Speakers detected\n")
	case pipeline.StageAnalyzing:
		fmt.Fprintf(f.w, "🤖 Generating summary...\n")
	case pipeline.StagePersisting:
		fmt.Fprintf(f.w, "💾 Saving meeting...\n")
	}
}

// SpeakerPrompt asks for the name of speaker i (zero-based).
func (f *Formatter) SpeakerPrompt(i int, sp models.Speaker) {
	if sp.ExemplarPath != "" {
		fmt.Fprintf(f.w, "  Sample: %s\n", sp.ExemplarPath)
	}
	fmt.Fprintf(f.w, "  Name for %s [%s]: ", sp.DisplayName, sp.DisplayName)
}

func (f *Formatter) MeetingComplete(m models.PersistedMeeting) {
	fmt.Fprintf(f.w, "\n✅ %s\n", m.Title)
	if m.Summary != "" {
		fmt.Fprintf(f.w, "\n%s\n", m.Summary)
	}
	if len(m.Decisions) > 0 {
		fmt.Fprintf(f.w, "\nDecisions:\n")
		for _, d := range m.Decisions {
			fmt.Fprintf(f.w, "  • %s\n", d)
		}
	}
	if len(m.ActionItems) > 0 {
		fmt.Fprintf(f.w, "\nAction items:\n")
		for _, a := range m.ActionItems {
			line := a.Description
			if a.Assignee != "" {
				line += " (" + a.Assignee + ")"
			}
			if a.DueDate != "" {
				line += " due " + a.DueDate
			}
			fmt.Fprintf(f.w, "  • %s\n", line)
		}
	}
	fmt.Fprintf(f.w, "\n📁 Meeting saved: %s\n", m.ID)
}

func (f *Formatter) RunFailed(fl pipeline.Failure) {
	fmt.Fprintf(f.w, "❌ %s\n", fl.Error())
	if fl.Recoverable {
		fmt.Fprintf(f.w, "   You can retry with: ekko process <file>\n")
	} else {
		fmt.Fprintf(f.w, "   Remediation: %s (see ekko doctor)\n", fl.Remediation)
	}
}

func (f *Formatter) Error(msg string) {
	fmt.Fprintf(f.w, "❌ %s\n", msg)
}

func (f *Formatter) Info(msg string) {
	fmt.Fprintf(f.w, "ℹ️  %s\n", msg)
}

func (f *Formatter) Success(msg string) {
	fmt.Fprintf(f.w, "✅ %s\n", msg)
}

func (f *Formatter) Warning(msg string) {
	fmt.Fprintf(f.w, "⚠️  %s\n", msg)
}

func (f *Formatter) MeetingListHeader() {
	fmt.Fprintf(f.w, "📁 Meetings:\n\n")
}

func (f *Formatter) MeetingListItem(m models.PersistedMeeting) {
	audio := ""
	if m.AudioFilePath != "" {
		audio = " 🔊"
	}
	fmt.Fprintf(f.w, "  %s  %-40s %8s  %s%s\n",
		m.Date.Local().Format("2006-01-02 15:04"),
		m.Title,
		formatDuration(time.Duration(m.DurationSeconds)*time.Second),
		m.ID,
		audio)
}

func (f *Formatter) SetupCheck(name string, ok bool, detail string) {
	if ok {
		fmt.Fprintf(f.w, "  ✅ %s: %s\n", name, detail)
	} else {
		fmt.Fprintf(f.w, "  ❌ %s: %s\n", name, detail)
	}
}

func levelBar(level float64) string {
	n := int(level*levelBarWidth + 0.5)
	if n > levelBarWidth {
		n = levelBarWidth
	}
	if n < 0 {
		n = 0
	}
	return "[" + strings.Repeat("█", n) + strings.Repeat(" ", levelBarWidth-n) + "]"
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
