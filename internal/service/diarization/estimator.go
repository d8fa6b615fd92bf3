// Package diarization approximates speaker attribution from transcript text.
//
// The estimate is a text heuristic, not acoustic analysis: it counts
// conversational and address words and looks for short back-and-forth
// sentences. Treat its output as a starting point for human naming.
package diarization

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/2re1million/ekko/internal/models"
	"github.com/2re1million/ekko/internal/observability/logging"
	"github.com/2re1million/ekko/internal/observability/metrics"
)

const (
	MinSpeakers = 1
	MaxSpeakers = 4

	// minWords is the word count at or below which there is not enough signal.
	minWords = 100

	ratioThree = 0.15
	ratioTwo   = 0.08

	minSentenceChars      = 10
	minSentences          = 5
	shortSentenceWords    = 15
	shortSentenceFraction = 0.6

	// DefaultConfidence is attached to every estimated speaker.
	DefaultConfidence = 0.6

	ExemplarOffset   = 10 * time.Second
	ExemplarSpacing  = 30 * time.Second
	ExemplarDuration = 5 * time.Second
)

var indicatorWords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"i", "you", "your", "we", "us", "our", "me", "my",
		"yes", "no", "yeah", "yep", "okay", "ok", "right", "sure",
		"well", "so", "agree", "think", "said", "mean", "thanks", "thank",
		"hey", "hi", "hello", "what", "why", "how", "exactly", "absolutely",
	} {
		indicatorWords[w] = struct{}{}
	}
}

// EstimateCount returns the estimated number of speakers in transcript.
// An empty transcript has no speakers; anything else is in [1, 4].
func EstimateCount(transcript string) int {
	tokens := strings.Fields(transcript)
	total := len(tokens)
	if total == 0 {
		return 0
	}
	if total <= minWords {
		return MinSpeakers
	}

	indicators := 0
	for _, tok := range tokens {
		if _, ok := indicatorWords[normalizeToken(tok)]; ok {
			indicators++
		}
	}
	ratio := float64(indicators) / float64(total)

	estimate := 1
	switch {
	case ratio > ratioThree:
		estimate = 3
	case ratio > ratioTwo:
		estimate = 2
	}

	if looksLikeDialogue(transcript) && estimate < 2 {
		estimate = 2
	}

	return clamp(estimate, MinSpeakers, MaxSpeakers)
}

// looksLikeDialogue reports whether most sentences are short.
func looksLikeDialogue(transcript string) bool {
	parts := strings.FieldsFunc(transcript, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})

	var sentences, short int
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if len(p) <= minSentenceChars {
			continue
		}
		sentences++
		if len(strings.Fields(p)) < shortSentenceWords {
			short++
		}
	}
	if sentences <= minSentences {
		return false
	}
	return float64(short)/float64(sentences) > shortSentenceFraction
}

func normalizeToken(tok string) string {
	return strings.ToLower(strings.TrimFunc(tok, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ExemplarExtractor cuts a short clip of one speaker from the source audio.
type ExemplarExtractor interface {
	Extract(ctx context.Context, audioPath string, speaker int, start, length time.Duration) (string, error)
}

// Estimator turns a transcript into generic speakers with exemplar clips.
type Estimator struct {
	extractor  ExemplarExtractor
	confidence float64
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

// NewEstimator creates an estimator. extractor may be nil, in which case
// speakers carry no exemplar.
func NewEstimator(extractor ExemplarExtractor, m *metrics.Metrics) *Estimator {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Estimator{
		extractor:  extractor,
		confidence: DefaultConfidence,
		metrics:    m,
		log:        logging.WithComponent("diarization"),
	}
}

// Speakers estimates the speakers of transcript. Exemplar extraction
// failures leave that speaker's exemplar empty and never abort.
func (e *Estimator) Speakers(ctx context.Context, audioPath, transcript string) []models.Speaker {
	n := EstimateCount(transcript)
	speakers := make([]models.Speaker, 0, n)

	for i := 0; i < n; i++ {
		sp := models.Speaker{
			ID:          fmt.Sprintf("speaker_%d", i+1),
			DisplayName: GenericName(i),
			Confidence:  e.confidence,
		}

		if e.extractor != nil && audioPath != "" {
			start := ExemplarOffset + time.Duration(i)*ExemplarSpacing
			path, err := e.extractor.Extract(ctx, audioPath, i+1, start, ExemplarDuration)
			if err != nil {
				e.metrics.RecordCleanupFailure("exemplar")
				e.log.Warn().Err(err).
					Str("audioPath", audioPath).
					Int("speaker", i+1).
					Msg("Exemplar extraction failed")
			} else {
				sp.ExemplarPath = path
			}
		}
		speakers = append(speakers, sp)
	}

	e.log.Debug().Int("speakers", n).Msg("Speaker count estimated")
	return speakers
}

// GenericName returns the positional placeholder name for speaker index i.
func GenericName(i int) string {
	return fmt.Sprintf("Speaker %d", i+1)
}
