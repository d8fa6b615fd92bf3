// Package mistral provides a transcription client for the Mistral Voxtral API.
package mistral

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/2re1million/ekko/internal/models"
	"github.com/2re1million/ekko/internal/observability/logging"
)

const (
	DefaultBaseURL = "https://api.mistral.ai"
	DefaultModel   = "voxtral-mini-latest"
)

// Client handles audio transcription via Mistral Voxtral API.
type Client struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client

	log zerolog.Logger
}

// New creates a client. An empty key is reported on first use.
func New(apiKey, model string) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		APIKey:     apiKey,
		Model:      model,
		BaseURL:    DefaultBaseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Minute},
		log:        logging.WithComponent("stt.mistral"),
	}
}

// Transcribe uploads the audio file with diarization requested.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (models.Transcription, error) {
	if c.APIKey == "" {
		return models.Transcription{}, fmt.Errorf("%w: mistral API key not set: set MISTRAL_API_KEY or add stt.mistral_api_key to the config file", models.ErrNotConfigured)
	}

	body, contentType, err := c.buildBody(audioPath)
	if err != nil {
		return models.Transcription{}, fmt.Errorf("%w: %w", models.ErrTranscription, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/audio/transcriptions", body)
	if err != nil {
		return models.Transcription{}, fmt.Errorf("%w: %w", models.ErrTranscription, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return models.Transcription{}, fmt.Errorf("%w: calling Mistral API: %w", models.ErrTranscription, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Transcription{}, fmt.Errorf("%w: reading response: %w", models.ErrTranscription, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return models.Transcription{}, fmt.Errorf("%w: mistral API rejected the key (HTTP 401)", models.ErrNotConfigured)
	case resp.StatusCode != http.StatusOK:
		return models.Transcription{}, fmt.Errorf("%w: mistral API error (HTTP %d): %s",
			models.ErrTranscription, resp.StatusCode, string(respBody))
	}

	var apiResp transcriptionAPIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return models.Transcription{}, fmt.Errorf("%w: parsing Mistral response: %w", models.ErrTranscription, err)
	}

	res := apiResp.toTranscription()
	c.log.Info().
		Str("audioPath", audioPath).
		Int("segments", len(apiResp.Segments)).
		Int("speakers", len(res.Speakers)).
		Dur("latency", time.Since(start)).
		Msg("Transcription complete")
	return res, nil
}

func (c *Client) buildBody(audioPath string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("model", c.Model); err != nil {
		return nil, "", err
	}
	if err := writer.WriteField("diarize", "true"); err != nil {
		return nil, "", err
	}

	file, err := os.Open(audioPath)
	if err != nil {
		return nil, "", fmt.Errorf("opening audio file: %w", err)
	}
	defer file.Close()

	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}

// transcriptionAPIResponse matches the Mistral transcription API response.
type transcriptionAPIResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Speaker string  `json:"speaker"`
		Text    string  `json:"text"`
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
	} `json:"segments"`
	Usage struct {
		PromptAudioSeconds float64 `json:"prompt_audio_seconds"`
	} `json:"usage"`
}

func (r transcriptionAPIResponse) toTranscription() models.Transcription {
	res := models.Transcription{Transcript: strings.TrimSpace(r.Text)}

	var end float64
	seen := map[string]bool{}
	var parts []string
	for _, seg := range r.Segments {
		if seg.End > end {
			end = seg.End
		}
		if t := strings.TrimSpace(seg.Text); t != "" {
			parts = append(parts, t)
		}
		if seg.Speaker == "" || seen[seg.Speaker] {
			continue
		}
		seen[seg.Speaker] = true
		res.Speakers = append(res.Speakers, models.Speaker{
			ID:          seg.Speaker,
			DisplayName: fmt.Sprintf("Speaker %d", len(res.Speakers)+1),
			Confidence:  0.8,
		})
	}
	if res.Transcript == "" {
		res.Transcript = strings.Join(parts, " ")
	}

	if r.Usage.PromptAudioSeconds > end {
		end = r.Usage.PromptAudioSeconds
	}
	res.DurationSeconds = int(end)
	return res
}
