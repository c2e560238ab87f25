package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Sentiment labels produced by analyzers.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// Priority labels produced by analyzers.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// CategoryGeneral is assigned when no category keyword matches.
const CategoryGeneral = "General"

// Entities holds named entities extracted from a message, grouped by kind.
// Each list is capped at 10 items.
type Entities struct {
	Emails  []string `json:"emails"`
	Dates   []string `json:"dates"`
	URLs    []string `json:"urls"`
	Persons []string `json:"persons"`
}

// Keywords holds the most frequent significant words and the topics
// inferred from them.
type Keywords struct {
	Keywords []string `json:"keywords"`
	Topics   []string `json:"topics"`
}

// EmailMeta is derived metadata attached 1:1 to an Email. At most one row
// exists per email; enrichment never overwrites an existing row.
type EmailMeta struct {
	ID                 int64     `db:"id"`
	EmailID            int64     `db:"email_id"`
	Sentiment          string    `db:"sentiment"`
	SentimentScore     float64   `db:"sentiment_score"`
	Priority           string    `db:"priority"`
	PriorityScore      float64   `db:"priority_score"`
	Category           string    `db:"category"`
	CategoryConfidence float64   `db:"category_confidence"`
	Entities           Entities  `db:"entities_json"`
	Keywords           Keywords  `db:"keywords_json"`
	AnalyzedAt         time.Time `db:"analyzed_at"`
	Model              string    `db:"model"`              // Analyzer/model identifier
	ProcessingTimeMs   int64     `db:"processing_time_ms"` // Wall time spent analyzing
}

// Value implements driver.Valuer, storing entities as a JSON text column.
func (e Entities) Value() (driver.Value, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entities: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (e *Entities) Scan(src any) error {
	return scanJSON(src, e)
}

// Value implements driver.Valuer, storing keywords as a JSON text column.
func (k Keywords) Value() (driver.Value, error) {
	b, err := json.Marshal(k)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal keywords: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (k *Keywords) Scan(src any) error {
	return scanJSON(src, k)
}

func scanJSON(src, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case string:
		return json.Unmarshal([]byte(v), dst)
	case []byte:
		return json.Unmarshal(v, dst)
	default:
		return fmt.Errorf("cannot scan %T into JSON column", src)
	}
}
