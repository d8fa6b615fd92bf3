// Package mock provides a transcription client for running without cloud
// credentials. It returns canned meeting transcripts.
package mock

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/2re1million/ekko/internal/models"
	"github.com/2re1million/ekko/internal/service/recorder"
)

// SimulatedMeeting is one canned transcript.
type SimulatedMeeting struct {
	Lines    []string
	Speakers int // 0 leaves speaker detection to the caller
}

// DefaultMeetings provides sample transcripts, used in turn.
var DefaultMeetings = []SimulatedMeeting{
	{
		Lines: []string{
			"Okay let's get started with the weekly sync.",
			"The budget for the second quarter is approved.",
			"We agreed to move the launch to next Tuesday.",
			"Anna will send the release notes by Friday.",
		},
	},
	{
		Lines: []string{
			"Thanks everyone for joining.",
			"I think we should prioritize the onboarding flow.",
			"Yes I agree, the current drop off is too high.",
			"So the decision is to pause the pricing experiment.",
		},
		Speakers: 2,
	},
}

// Client implements stt.Client with canned results.
type Client struct {
	mu       sync.Mutex
	meetings []SimulatedMeeting
	next     int
	delay    time.Duration
	err      error
	calls    int
}

// Option configures the mock.
type Option func(*Client)

// WithMeetings replaces the canned transcripts.
func WithMeetings(m ...SimulatedMeeting) Option {
	return func(c *Client) { c.meetings = m }
}

// WithTranscript makes every call return text with the given number of
// provider-detected speakers.
func WithTranscript(text string, speakers int) Option {
	return func(c *Client) {
		c.meetings = []SimulatedMeeting{{Lines: []string{text}, Speakers: speakers}}
	}
}

// WithDelay simulates provider latency.
func WithDelay(d time.Duration) Option {
	return func(c *Client) { c.delay = d }
}

// WithError makes every call fail with err.
func WithError(err error) Option {
	return func(c *Client) { c.err = err }
}

// New creates a new mock transcription client.
func New(opts ...Option) *Client {
	c := &Client{meetings: DefaultMeetings}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transcribe returns the next canned transcript. The audio file must exist;
// its WAV header supplies the duration when readable.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (models.Transcription, error) {
	c.mu.Lock()
	c.calls++
	meeting := c.meetings[c.next%len(c.meetings)]
	c.next++
	delay, failure := c.delay, c.err
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return models.Transcription{}, fmt.Errorf("%w: %w", models.ErrTranscription, ctx.Err())
		}
	}
	if failure != nil {
		return models.Transcription{}, failure
	}

	if _, err := os.Stat(audioPath); err != nil {
		return models.Transcription{}, fmt.Errorf("%w: %w", models.ErrTranscription, err)
	}

	res := models.Transcription{Transcript: strings.Join(meeting.Lines, " ")}
	if info, err := recorder.ReadWAVInfo(audioPath); err == nil {
		res.DurationSeconds = int(info.Duration() / time.Second)
	}
	for i := 0; i < meeting.Speakers; i++ {
		res.Speakers = append(res.Speakers, models.Speaker{
			ID:          fmt.Sprintf("speaker_%d", i+1),
			DisplayName: fmt.Sprintf("Speaker %d", i+1),
			Confidence:  0.9,
		})
	}
	return res, nil
}

// Calls returns how many times Transcribe ran.
func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
