// Package mock provides an analysis client that needs no credentials.
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/2re1million/ekko/internal/models"
)

// Client returns a fixed result, or one derived from the transcript.
type Client struct {
	mu     sync.Mutex
	result *models.AnalysisResult
	err    error
	calls  int
	last   models.AnalysisMetadata
}

// New creates a mock that derives its result from the transcript.
func New() *Client {
	return &Client{}
}

// NewFixed creates a mock that always returns r.
func NewFixed(r models.AnalysisResult) *Client {
	return &Client{result: &r}
}

// NewFailing creates a mock that always fails with err.
func NewFailing(err error) *Client {
	return &Client{err: err}
}

func (c *Client) Analyze(ctx context.Context, transcript string, meta models.AnalysisMetadata) (models.AnalysisResult, error) {
	c.mu.Lock()
	c.calls++
	c.last = meta
	fixed, failure := c.result, c.err
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return models.AnalysisResult{}, err
	}
	if failure != nil {
		return models.AnalysisResult{}, failure
	}
	if fixed != nil {
		return *fixed, nil
	}
	return derive(transcript, meta), nil
}

// Calls returns how many times Analyze ran.
func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// LastMetadata returns the metadata of the most recent call.
func (c *Client) LastMetadata() models.AnalysisMetadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// derive builds a plausible result: the first sentence is the summary and
// sentences mentioning a decision keyword become decisions.
func derive(transcript string, meta models.AnalysisMetadata) models.AnalysisResult {
	res := models.AnalysisResult{
		SuggestedTitle: models.DefaultTitle(meta.Date),
		Decisions:      []string{},
		ActionItems:    []models.ActionItem{},
		KeyTopics:      []string{},
	}

	sentences := strings.FieldsFunc(transcript, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if res.Summary == "" {
			res.Summary = s + "."
		}
		lower := strings.ToLower(s)
		switch {
		case strings.Contains(lower, "approved"), strings.Contains(lower, "agreed"), strings.Contains(lower, "decision"):
			res.Decisions = append(res.Decisions, s)
		case strings.Contains(lower, " will "):
			res.ActionItems = append(res.ActionItems, models.ActionItem{Description: s})
		}
	}
	if strings.Contains(strings.ToLower(transcript), "budget") {
		res.KeyTopics = append(res.KeyTopics, "budget")
	}
	return res
}
