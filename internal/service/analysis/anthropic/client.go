// Package anthropic provides an analysis client backed by the Anthropic
// Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/2re1million/ekko/internal/models"
	"github.com/2re1million/ekko/internal/observability/logging"
)

const (
	DefaultBaseURL   = "https://api.anthropic.com"
	DefaultModel     = "claude-haiku-4-5"
	DefaultMaxTokens = 4096
	apiVersion       = "2023-06-01"
)

const systemPrompt = `You analyze meeting transcripts. Reply with a single JSON object and nothing else:
{"summary": string, "decisions": [string], "actionItems": [{"description": string, "assignee": string, "dueDate": string}], "suggestedTitle": string, "keyTopics": [string]}
Use empty strings or empty arrays when something is not present. Write in the language of the transcript.`

// Client generates meeting analyses with Claude.
type Client struct {
	APIKey     string
	Model      string
	MaxTokens  int
	BaseURL    string
	HTTPClient *http.Client

	log zerolog.Logger
}

// New creates a client. An empty key is reported on first use.
func New(apiKey, model string, maxTokens int) *Client {
	if model == "" {
		model = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Client{
		APIKey:     apiKey,
		Model:      model,
		MaxTokens:  maxTokens,
		BaseURL:    DefaultBaseURL,
		HTTPClient: &http.Client{Timeout: 5 * time.Minute},
		log:        logging.WithComponent("analysis.anthropic"),
	}
}

// Analyze sends the transcript with its metadata and parses the JSON reply.
func (c *Client) Analyze(ctx context.Context, transcript string, meta models.AnalysisMetadata) (models.AnalysisResult, error) {
	if c.APIKey == "" {
		return models.AnalysisResult{}, fmt.Errorf("%w: anthropic API key not set: set ANTHROPIC_API_KEY or add analysis.anthropic_api_key to the config file", models.ErrNotConfigured)
	}

	reqBody := anthropicRequest{
		Model:     c.Model,
		MaxTokens: c.MaxTokens,
		System:    systemPrompt,
		Messages: []anthropicMessage{
			{Role: "user", Content: userPrompt(transcript, meta)},
		},
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return models.AnalysisResult{}, fmt.Errorf("%w: %w", models.ErrAnalysis, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return models.AnalysisResult{}, fmt.Errorf("%w: %w", models.ErrAnalysis, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", apiVersion)

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return models.AnalysisResult{}, fmt.Errorf("%w: calling Anthropic API: %w", models.ErrAnalysis, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.AnalysisResult{}, fmt.Errorf("%w: reading response: %w", models.ErrAnalysis, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return models.AnalysisResult{}, fmt.Errorf("%w: anthropic API rejected the key (HTTP 401)", models.ErrNotConfigured)
	case resp.StatusCode != http.StatusOK:
		return models.AnalysisResult{}, fmt.Errorf("%w: anthropic API error (HTTP %d): %s",
			models.ErrAnalysis, resp.StatusCode, string(respBody))
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return models.AnalysisResult{}, fmt.Errorf("%w: parsing Anthropic response: %w", models.ErrAnalysis, err)
	}

	var text strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return models.AnalysisResult{}, fmt.Errorf("%w: empty response from Anthropic API", models.ErrAnalysis)
	}

	result, err := parseResult(text.String(), meta)
	if err != nil {
		return models.AnalysisResult{}, err
	}

	c.log.Info().
		Str("model", c.Model).
		Int("decisions", len(result.Decisions)).
		Int("actionItems", len(result.ActionItems)).
		Dur("latency", time.Since(start)).
		Msg("Analysis complete")
	return result, nil
}

func userPrompt(transcript string, meta models.AnalysisMetadata) string {
	var sb strings.Builder
	sb.WriteString("Meeting date: " + meta.Date.Format("2006-01-02 15:04") + "\n")
	fmt.Fprintf(&sb, "Duration: %d minutes\n", meta.DurationSeconds/60)
	if len(meta.Participants) > 0 {
		sb.WriteString("Participants: " + strings.Join(meta.Participants, ", ") + "\n")
	}
	sb.WriteString("\nHere is the meeting transcript to analyze:\n\n")
	sb.WriteString(transcript)
	return sb.String()
}

// parseResult extracts the JSON object from the model output, tolerating
// code fences and surrounding prose.
func parseResult(text string, meta models.AnalysisMetadata) (models.AnalysisResult, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return models.AnalysisResult{}, fmt.Errorf("%w: no JSON object in model output", models.ErrAnalysis)
	}

	var res models.AnalysisResult
	if err := json.Unmarshal([]byte(text[start:end+1]), &res); err != nil {
		return models.AnalysisResult{}, fmt.Errorf("%w: malformed analysis JSON: %w", models.ErrAnalysis, err)
	}

	if strings.TrimSpace(res.SuggestedTitle) == "" {
		res.SuggestedTitle = models.DefaultTitle(meta.Date)
	}
	if res.Decisions == nil {
		res.Decisions = []string{}
	}
	if res.ActionItems == nil {
		res.ActionItems = []models.ActionItem{}
	}
	if res.KeyTopics == nil {
		res.KeyTopics = []string{}
	}
	return res, nil
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}
