// Package analyzer derives metadata (sentiment, priority, category, entities,
// keywords) from email subject and body text.
//
// Two interchangeable implementations exist: a keyword-table heuristic and a
// model-backed variant that delegates sentiment and category classification to
// a remote inference service. Both produce the same record shape. Analysis
// never fails the caller: internal errors degrade to a neutral, low-confidence
// record so enrichment cannot block ingestion.
package analyzer

import (
	"context"
	"log/slog"
	"time"

	"github.com/solarmail/solarsync/pkg/models"
)

// Analyzer kinds reported through Info.
const (
	KindHeuristic = "heuristic"
	KindModel     = "model"
)

// Input is one message to analyze.
type Input struct {
	Subject string
	Body    string
}

// Info describes the resolved analyzer for observability.
type Info struct {
	Ready              bool   `json:"ready"`
	Kind               string `json:"kind"`
	ModelID            string `json:"model_id"`
	SentimentAvailable bool   `json:"sentiment_available"`
	CategoryAvailable  bool   `json:"category_available"`
}

// Analyzer converts message text into a metadata record. The returned record
// has EmailID unset; the caller attaches it before persisting.
//
// Analyze never returns an error: implementations degrade internally to a
// default neutral record. AnalyzeBatch is order-preserving with the same
// per-item contract.
type Analyzer interface {
	Analyze(ctx context.Context, subject, body string) *models.EmailMeta
	AnalyzeBatch(ctx context.Context, msgs []Input) []*models.EmailMeta
	Info() Info
}

// Config selects and configures the analyzer variant at construction time.
type Config struct {
	Kind     string // "auto", "heuristic" or "model"
	ModelURL string // Inference service base URL, required for "model"
	ModelID  string
	Timeout  time.Duration // Per-request budget for the model backend
}

// New resolves the analyzer variant once. "auto" picks the model-backed
// variant when a backend URL is configured and reachable, the heuristic
// otherwise. The model-backed variant wraps the heuristic as a fallback when
// the backend is unavailable, so the returned analyzer always satisfies the
// full contract.
func New(cfg Config, logger *slog.Logger) Analyzer {
	switch cfg.Kind {
	case KindModel:
		return NewModel(cfg, logger)
	case KindHeuristic:
		return NewHeuristic()
	default: // auto
		if cfg.ModelURL == "" {
			return NewHeuristic()
		}
		m := NewModel(cfg, logger)
		if !m.Info().Ready {
			logger.Warn("model backend unreachable, using heuristic analyzer", "url", cfg.ModelURL)
			return NewHeuristic()
		}
		return m
	}
}

// defaultMeta is the documented degradation record: neutral sentiment, low
// priority, General category, empty entities and keywords.
func defaultMeta(model string) *models.EmailMeta {
	return &models.EmailMeta{
		Sentiment:          models.SentimentNeutral,
		SentimentScore:     0.5,
		Priority:           models.PriorityLow,
		PriorityScore:      0.3,
		Category:           models.CategoryGeneral,
		CategoryConfidence: 0.5,
		Entities:           models.Entities{Emails: []string{}, Dates: []string{}, URLs: []string{}, Persons: []string{}},
		Keywords:           models.Keywords{Keywords: []string{}, Topics: []string{}},
		AnalyzedAt:         time.Now(),
		Model:              model,
	}
}
