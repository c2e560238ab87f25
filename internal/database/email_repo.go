package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/solarmail/solarsync/pkg/models"
)

// InsertEmail inserts a mirrored email. A duplicate UID is a normal outcome,
// reported as ErrAlreadyExists without storing anything.
func (db *DB) InsertEmail(ctx context.Context, email *models.Email) error {
	query := `
		INSERT OR IGNORE INTO emails (uid, sender, subject, date, body_preview, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		email.UID,
		email.Sender,
		email.Subject,
		email.Date,
		email.BodyPreview,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert email: %w", err)
	}

	// Check if row was actually inserted (not ignored due to duplicate)
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

	email.ID = id
	email.CreatedAt = now
	return nil
}

// EmailExists reports whether an email with the given UID is stored.
func (db *DB) EmailExists(ctx context.Context, uid string) (bool, error) {
	var count int
	err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM emails WHERE uid = ?`, uid)
	if err != nil {
		return false, fmt.Errorf("failed to check email existence: %w", err)
	}
	return count > 0, nil
}

// GetEmailByUID returns an email by its external UID
func (db *DB) GetEmailByUID(ctx context.Context, uid string) (*models.Email, error) {
	var email models.Email
	err := db.GetContext(ctx, &email, `SELECT * FROM emails WHERE uid = ?`, uid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email: %w", err)
	}
	return &email, nil
}

// CountEmails returns the total number of mirrored emails
func (db *DB) CountEmails(ctx context.Context) (int, error) {
	var count int
	if err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM emails`); err != nil {
		return 0, fmt.Errorf("failed to count emails: %w", err)
	}
	return count, nil
}

// ListEmails returns emails newest first. limit <= 0 returns all.
func (db *DB) ListEmails(ctx context.Context, limit int) ([]*models.Email, error) {
	query := `SELECT * FROM emails ORDER BY date DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	var emails []*models.Email
	if err := db.SelectContext(ctx, &emails, query); err != nil {
		return nil, fmt.Errorf("failed to list emails: %w", err)
	}
	return emails, nil
}

// DeleteEmail removes an email by UID; its metadata row is cascade-deleted.
func (db *DB) DeleteEmail(ctx context.Context, uid string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM emails WHERE uid = ?`, uid)
	if err != nil {
		return fmt.Errorf("failed to delete email: %w", err)
	}
	return nil
}

// emailMetaRow is the flat scan target for email+meta join queries.
type emailMetaRow struct {
	models.Email
	MetaID             sql.NullInt64   `db:"meta_id"`
	Sentiment          sql.NullString  `db:"sentiment"`
	SentimentScore     sql.NullFloat64 `db:"sentiment_score"`
	Priority           sql.NullString  `db:"priority"`
	PriorityScore      sql.NullFloat64 `db:"priority_score"`
	Category           sql.NullString  `db:"category"`
	CategoryConfidence sql.NullFloat64 `db:"category_confidence"`
	Entities           models.Entities `db:"entities_json"`
	Keywords           models.Keywords `db:"keywords_json"`
	AnalyzedAt         sql.NullTime    `db:"analyzed_at"`
	Model              sql.NullString  `db:"model"`
	ProcessingTimeMs   sql.NullInt64   `db:"processing_time_ms"`
}

const emailMetaColumns = `
	e.id, e.uid, e.sender, e.subject, e.date, e.body_preview, e.created_at,
	m.id AS meta_id, m.sentiment, m.sentiment_score, m.priority, m.priority_score,
	m.category, m.category_confidence, m.entities_json, m.keywords_json,
	m.analyzed_at, m.model, m.processing_time_ms
`

func (r *emailMetaRow) toEmailWithMeta() *models.EmailWithMeta {
	out := &models.EmailWithMeta{Email: r.Email}
	if !r.MetaID.Valid {
		return out
	}
	out.Meta = &models.EmailMeta{
		ID:                 r.MetaID.Int64,
		EmailID:            r.Email.ID,
		Sentiment:          r.Sentiment.String,
		SentimentScore:     r.SentimentScore.Float64,
		Priority:           r.Priority.String,
		PriorityScore:      r.PriorityScore.Float64,
		Category:           r.Category.String,
		CategoryConfidence: r.CategoryConfidence.Float64,
		Entities:           r.Entities,
		Keywords:           r.Keywords,
		AnalyzedAt:         r.AnalyzedAt.Time,
		Model:              r.Model.String,
		ProcessingTimeMs:   r.ProcessingTimeMs.Int64,
	}
	return out
}

func (db *DB) selectEmailsWithMeta(ctx context.Context, query string, args ...any) ([]*models.EmailWithMeta, error) {
	var rows []emailMetaRow
	if err := db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	out := make([]*models.EmailWithMeta, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toEmailWithMeta())
	}
	return out, nil
}

// ListEmailsWithMeta returns emails newest first together with their metadata.
// Left-join semantics: unanalyzed emails are returned with a nil Meta.
func (db *DB) ListEmailsWithMeta(ctx context.Context, limit int) ([]*models.EmailWithMeta, error) {
	query := `
		SELECT ` + emailMetaColumns + `
		FROM emails e
		LEFT JOIN email_meta m ON e.id = m.email_id
		ORDER BY e.date DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	out, err := db.selectEmailsWithMeta(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list emails with meta: %w", err)
	}
	return out, nil
}

// ListEmailsByCategory returns analyzed emails of the given category, newest
// first. Inner-join semantics: unanalyzed emails are never returned.
func (db *DB) ListEmailsByCategory(ctx context.Context, category string, limit int) ([]*models.EmailWithMeta, error) {
	query := `
		SELECT ` + emailMetaColumns + `
		FROM emails e
		INNER JOIN email_meta m ON e.id = m.email_id
		WHERE m.category = ?
		ORDER BY e.date DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	out, err := db.selectEmailsWithMeta(ctx, query, category)
	if err != nil {
		return nil, fmt.Errorf("failed to list emails by category: %w", err)
	}
	return out, nil
}

// ListEmailsByPriority returns analyzed emails of the given priority, highest
// priority score first, then newest first.
func (db *DB) ListEmailsByPriority(ctx context.Context, priority string, limit int) ([]*models.EmailWithMeta, error) {
	query := `
		SELECT ` + emailMetaColumns + `
		FROM emails e
		INNER JOIN email_meta m ON e.id = m.email_id
		WHERE m.priority = ?
		ORDER BY m.priority_score DESC, e.date DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	out, err := db.selectEmailsWithMeta(ctx, query, priority)
	if err != nil {
		return nil, fmt.Errorf("failed to list emails by priority: %w", err)
	}
	return out, nil
}

// ListEmailsMissingMeta returns emails that have no metadata row yet, oldest
// first. This is the retry surface for enrichment that failed earlier.
func (db *DB) ListEmailsMissingMeta(ctx context.Context, limit int) ([]*models.Email, error) {
	query := `
		SELECT e.* FROM emails e
		LEFT JOIN email_meta m ON e.id = m.email_id
		WHERE m.id IS NULL
		ORDER BY e.date ASC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	var emails []*models.Email
	if err := db.SelectContext(ctx, &emails, query); err != nil {
		return nil, fmt.Errorf("failed to list emails missing meta: %w", err)
	}
	return emails, nil
}
