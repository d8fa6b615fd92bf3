// Package analysis defines the semantic analysis client contract.
package analysis

import (
	"context"

	"github.com/2re1million/ekko/internal/models"
)

// Client turns a transcript into a structured meeting analysis.
// Implementations must be safe for concurrent use. Failures wrap
// models.ErrAnalysis or models.ErrNotConfigured.
type Client interface {
	Analyze(ctx context.Context, transcript string, meta models.AnalysisMetadata) (models.AnalysisResult, error)
}
