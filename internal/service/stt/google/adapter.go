// Package google provides a Google Cloud Speech-to-Text transcription client.
package google

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"

	"github.com/2re1million/ekko/internal/models"
	"github.com/2re1million/ekko/internal/observability/logging"
)

// maxInlineBytes is the largest audio payload accepted inline by the API.
const maxInlineBytes = 10 * 1024 * 1024

// Config holds Google STT configuration.
type Config struct {
	LanguageCode      string
	SampleRateHz      int
	AudioEncoding     string
	EnableDiarization bool
	MinSpeakers       int
	MaxSpeakers       int
}

// DefaultConfig returns the configuration used for recorder output.
func DefaultConfig() Config {
	return Config{
		LanguageCode:      "en-US",
		SampleRateHz:      16000,
		AudioEncoding:     "LINEAR16",
		EnableDiarization: true,
		MinSpeakers:       1,
		MaxSpeakers:       4,
	}
}

// Client implements stt.Client using LongRunningRecognize.
type Client struct {
	client *speech.Client
	cfg    Config
}

// New creates a new Google STT client.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config) (*Client, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: google speech client: %w", models.ErrNotConfigured, err)
	}
	return &Client{client: c, cfg: cfg}, nil
}

// Transcribe uploads the file inline and waits for the recognition result.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (models.Transcription, error) {
	data, err := os.ReadFile(audioPath)
	if err != nil {
		return models.Transcription{}, fmt.Errorf("%w: %w", models.ErrTranscription, err)
	}
	if len(data) > maxInlineBytes {
		return models.Transcription{}, fmt.Errorf("%w: audio is %d bytes, inline limit is %d",
			models.ErrTranscription, len(data), maxInlineBytes)
	}

	log := logging.WithComponent("stt.google")
	start := time.Now()

	op, err := c.client.LongRunningRecognize(ctx, buildRequest(c.cfg, data))
	if err != nil {
		return models.Transcription{}, fmt.Errorf("%w: %w", models.ErrTranscription, err)
	}
	resp, err := op.Wait(ctx)
	if err != nil {
		return models.Transcription{}, fmt.Errorf("%w: %w", models.ErrTranscription, err)
	}

	res := parseResponse(resp, c.cfg.EnableDiarization)
	log.Info().
		Str("audioPath", audioPath).
		Int("results", len(resp.GetResults())).
		Int("speakers", len(res.Speakers)).
		Dur("latency", time.Since(start)).
		Msg("Recognition complete")
	return res, nil
}

// Close releases the underlying client.
func (c *Client) Close() error {
	return c.client.Close()
}

func buildRequest(cfg Config, audio []byte) *speechpb.LongRunningRecognizeRequest {
	rc := &speechpb.RecognitionConfig{
		Encoding:                   parseAudioEncoding(cfg.AudioEncoding),
		SampleRateHertz:            int32(cfg.SampleRateHz),
		LanguageCode:               cfg.LanguageCode,
		EnableAutomaticPunctuation: true,
	}
	if cfg.EnableDiarization {
		rc.DiarizationConfig = &speechpb.SpeakerDiarizationConfig{
			EnableSpeakerDiarization: true,
			MinSpeakerCount:          int32(cfg.MinSpeakers),
			MaxSpeakerCount:          int32(cfg.MaxSpeakers),
		}
	}
	return &speechpb.LongRunningRecognizeRequest{
		Config: rc,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	}
}

// parseResponse joins result transcripts and collects speaker tags. With
// diarization on, the last result repeats every word with its speaker tag
// and is not part of the transcript.
func parseResponse(resp *speechpb.LongRunningRecognizeResponse, diarized bool) models.Transcription {
	results := resp.GetResults()
	var res models.Transcription

	var tagged *speechpb.SpeechRecognitionAlternative
	textResults := results
	if diarized && len(results) > 0 {
		last := results[len(results)-1]
		if alts := last.GetAlternatives(); len(alts) > 0 && hasSpeakerTags(alts[0]) {
			tagged = alts[0]
			if len(results) > 1 {
				textResults = results[:len(results)-1]
			}
		}
	}

	var parts []string
	for _, r := range textResults {
		if alts := r.GetAlternatives(); len(alts) > 0 {
			if t := strings.TrimSpace(alts[0].GetTranscript()); t != "" {
				parts = append(parts, t)
			}
		}
	}
	res.Transcript = strings.Join(parts, " ")

	var end time.Duration
	for _, r := range results {
		if d := r.GetResultEndTime().AsDuration(); d > end {
			end = d
		}
	}
	res.DurationSeconds = int(end / time.Second)

	if tagged != nil {
		res.Speakers = speakersFromTags(tagged)
	}
	return res
}

func hasSpeakerTags(alt *speechpb.SpeechRecognitionAlternative) bool {
	for _, w := range alt.GetWords() {
		if w.GetSpeakerTag() > 0 {
			return true
		}
	}
	return false
}

func speakersFromTags(alt *speechpb.SpeechRecognitionAlternative) []models.Speaker {
	seen := map[int32]bool{}
	var tags []int32
	for _, w := range alt.GetWords() {
		tag := w.GetSpeakerTag()
		if tag > 0 && !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })

	speakers := make([]models.Speaker, 0, len(tags))
	for i, tag := range tags {
		speakers = append(speakers, models.Speaker{
			ID:          fmt.Sprintf("speaker_%d", tag),
			DisplayName: fmt.Sprintf("Speaker %d", i+1),
			Confidence:  float64(alt.GetConfidence()),
		})
	}
	return speakers
}

// parseAudioEncoding converts a string encoding name to the protobuf enum.
// Unknown values fall back to LINEAR16.
func parseAudioEncoding(s string) speechpb.RecognitionConfig_AudioEncoding {
	switch s {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}
