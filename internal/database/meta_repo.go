package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/solarmail/solarsync/pkg/models"
)

// InsertEmailMeta attaches derived metadata to an email. Each email holds at
// most one metadata row; inserting for an already-analyzed email returns
// ErrAlreadyExists and leaves the stored row untouched.
func (db *DB) InsertEmailMeta(ctx context.Context, meta *models.EmailMeta) error {
	query := `
		INSERT OR IGNORE INTO email_meta (
			email_id, sentiment, sentiment_score, priority, priority_score,
			category, category_confidence, entities_json, keywords_json,
			analyzed_at, model, processing_time_ms
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	analyzedAt := meta.AnalyzedAt
	if analyzedAt.IsZero() {
		analyzedAt = now
	}

	result, err := db.ExecContext(ctx, query,
		meta.EmailID,
		meta.Sentiment,
		meta.SentimentScore,
		meta.Priority,
		meta.PriorityScore,
		meta.Category,
		meta.CategoryConfidence,
		meta.Entities,
		meta.Keywords,
		analyzedAt,
		meta.Model,
		meta.ProcessingTimeMs,
	)
	if err != nil {
		return fmt.Errorf("failed to insert email meta: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAlreadyExists
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	meta.ID = id
	meta.AnalyzedAt = analyzedAt
	return nil
}

// GetEmailMeta returns the metadata row for an email, or ErrNotFound when the
// email has not been analyzed.
func (db *DB) GetEmailMeta(ctx context.Context, emailID int64) (*models.EmailMeta, error) {
	var meta models.EmailMeta
	err := db.GetContext(ctx, &meta, `SELECT * FROM email_meta WHERE email_id = ?`, emailID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email meta: %w", err)
	}
	return &meta, nil
}
