package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/solarmail/solarsync/pkg/models"
)

// Zero-shot candidate labels and their mapping onto the canonical category
// names shared with the heuristic variant.
var zeroShotLabels = []string{
	"work and business",
	"documents and invoices",
	"tasks and assignments",
	"personal and social",
	"news and updates",
	"spam and promotions",
}

var zeroShotMapping = map[string]string{
	"work and business":      "Work",
	"documents and invoices": "Docs",
	"tasks and assignments":  "Tasks",
	"personal and social":    "People",
	"news and updates":       "News",
	"spam and promotions":    "Spam",
}

// maxModelInputChars bounds the classified text; BERT-family models accept
// roughly 512 tokens.
const maxModelInputChars = 2000

// Model delegates sentiment and category classification to a remote
// inference service; priority combines the heuristic keyword rule with a
// sentiment boost. When the backend is unreachable at construction, Model
// wraps the heuristic analyzer and tags its output so provenance stays
// visible.
type Model struct {
	baseURL   string
	modelID   string
	client    *http.Client
	logger    *slog.Logger
	fallback  *Heuristic
	ready     bool
	sentiment bool
	category  bool
}

// NewModel creates the model-backed analyzer and probes the backend once.
func NewModel(cfg Config, logger *slog.Logger) *Model {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	modelID := cfg.ModelID
	if modelID == "" {
		modelID = "distilbert-base-uncased-finetuned-sst-2-english"
	}

	m := &Model{
		baseURL:  strings.TrimRight(cfg.ModelURL, "/"),
		modelID:  modelID,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With("component", "model_analyzer"),
		fallback: NewHeuristic(),
	}
	m.probe()
	return m
}

// probe asks the backend which pipelines are loaded. Any failure leaves the
// analyzer in fallback mode.
func (m *Model) probe() {
	if m.baseURL == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/health", nil)
	if err != nil {
		return
	}
	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.Warn("model backend probe failed", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		m.logger.Warn("model backend probe failed", "status", resp.StatusCode)
		return
	}

	var health struct {
		SentimentReady bool `json:"sentiment_ready"`
		ZeroShotReady  bool `json:"zero_shot_ready"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		m.logger.Warn("model backend probe returned invalid body", "error", err)
		return
	}

	m.sentiment = health.SentimentReady
	m.category = health.ZeroShotReady
	m.ready = health.SentimentReady
	m.logger.Info("model backend ready",
		"model", m.modelID, "sentiment", m.sentiment, "zero_shot", m.category)
}

// Info implements Analyzer.
func (m *Model) Info() Info {
	return Info{
		Ready:              m.ready,
		Kind:               KindModel,
		ModelID:            m.modelID,
		SentimentAvailable: m.sentiment,
		CategoryAvailable:  m.category,
	}
}

// Analyze implements Analyzer.
func (m *Model) Analyze(ctx context.Context, subject, body string) *models.EmailMeta {
	start := time.Now()

	if !m.ready {
		meta := m.fallback.Analyze(ctx, subject, body)
		meta.Model = m.modelID + " (heuristic-fallback)"
		return meta
	}

	fullText := subject + " " + body
	if runes := []rune(fullText); len(runes) > maxModelInputChars {
		fullText = string(runes[:maxModelInputChars])
	}

	sentiment, sentimentScore := m.classifySentiment(ctx, fullText)
	category, categoryConfidence := m.classifyCategory(ctx, fullText)
	priority, priorityScore := hybridPriority(strings.ToLower(fullText), sentimentScore)

	return &models.EmailMeta{
		Sentiment:          sentiment,
		SentimentScore:     sentimentScore,
		Priority:           priority,
		PriorityScore:      priorityScore,
		Category:           category,
		CategoryConfidence: categoryConfidence,
		Entities:           extractEntities(subject + " " + body),
		Keywords:           extractKeywords(strings.ToLower(fullText)),
		AnalyzedAt:         time.Now(),
		Model:              m.modelID,
		ProcessingTimeMs:   time.Since(start).Milliseconds(),
	}
}

// AnalyzeBatch implements Analyzer. A backend failure for one message never
// aborts the batch; that message degrades to its neutral defaults.
func (m *Model) AnalyzeBatch(ctx context.Context, msgs []Input) []*models.EmailMeta {
	out := make([]*models.EmailMeta, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, m.Analyze(ctx, msg.Subject, msg.Body))
	}
	return out
}

// classifySentiment calls the binary sentiment endpoint. The negative score
// is inverted so that lower always means more negative. Any failure is
// neutral.
func (m *Model) classifySentiment(ctx context.Context, text string) (string, float64) {
	if strings.TrimSpace(text) == "" {
		return models.SentimentNeutral, 0.5
	}

	var result struct {
		Label string  `json:"label"`
		Score float64 `json:"score"`
	}
	err := m.post(ctx, "/v1/sentiment", map[string]any{
		"model": m.modelID,
		"text":  text,
	}, &result)
	if err != nil {
		m.logger.Warn("sentiment classification failed", "error", err)
		return models.SentimentNeutral, 0.5
	}

	switch strings.ToLower(result.Label) {
	case "positive":
		return models.SentimentPositive, result.Score
	case "negative":
		return models.SentimentNegative, 1.0 - result.Score
	default:
		return models.SentimentNeutral, 0.5
	}
}

// classifyCategory calls the zero-shot endpoint with the fixed label set and
// maps the winner onto the canonical category names. Any failure, or a
// backend without a zero-shot pipeline, yields General.
func (m *Model) classifyCategory(ctx context.Context, text string) (string, float64) {
	if !m.category || strings.TrimSpace(text) == "" {
		return models.CategoryGeneral, 0.5
	}

	var result struct {
		Labels []string  `json:"labels"`
		Scores []float64 `json:"scores"`
	}
	err := m.post(ctx, "/v1/classify", map[string]any{
		"text":   text,
		"labels": zeroShotLabels,
	}, &result)
	if err != nil {
		m.logger.Warn("category classification failed", "error", err)
		return models.CategoryGeneral, 0.5
	}
	if len(result.Labels) == 0 || len(result.Scores) == 0 {
		return models.CategoryGeneral, 0.5
	}

	category, ok := zeroShotMapping[result.Labels[0]]
	if !ok {
		category = models.CategoryGeneral
	}
	return category, result.Scores[0]
}

// hybridPriority applies the heuristic keyword rule plus a flat +0.2 boost
// when the sentiment score signals a problem (< 0.4). Low priority carries no
// boost.
func hybridPriority(text string, sentimentScore float64) (string, float64) {
	highHits := countHits(text, priorityKeywords["high"])
	mediumHits := countHits(text, priorityKeywords["medium"])

	boost := 0.0
	if sentimentScore < 0.4 {
		boost = 0.2
	}

	switch {
	case highHits > 0:
		return models.PriorityHigh, min(0.7+float64(highHits)*0.1+boost, 1.0)
	case mediumHits > 0:
		return models.PriorityMedium, min(0.4+float64(mediumHits)*0.1+boost, 0.7)
	default:
		return models.PriorityLow, 0.3
	}
}

func (m *Model) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference API error (%d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
