package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/solarmail/solarsync/pkg/models"
)

// InitSyncStatus creates the status row for an account if it does not exist
// yet. Returns ErrAlreadyExists when the account is already tracked.
func (db *DB) InitSyncStatus(ctx context.Context, accountEmail string, syncDays int) error {
	query := `
		INSERT OR IGNORE INTO sync_status (account_email, sync_days, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`
	now := time.Now()
	result, err := db.ExecContext(ctx, query, accountEmail, syncDays, now, now)
	if err != nil {
		return fmt.Errorf("failed to init sync status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// GetSyncStatus returns the status row for an account
func (db *DB) GetSyncStatus(ctx context.Context, accountEmail string) (*models.SyncStatus, error) {
	var status models.SyncStatus
	err := db.GetContext(ctx, &status, `SELECT * FROM sync_status WHERE account_email = ?`, accountEmail)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync status: %w", err)
	}
	return &status, nil
}

// ListSyncStatuses returns all tracked accounts, most recently updated first
func (db *DB) ListSyncStatuses(ctx context.Context) ([]*models.SyncStatus, error) {
	var statuses []*models.SyncStatus
	query := `SELECT * FROM sync_status ORDER BY updated_at DESC`
	if err := db.SelectContext(ctx, &statuses, query); err != nil {
		return nil, fmt.Errorf("failed to list sync statuses: %w", err)
	}
	return statuses, nil
}

// LastSyncDate returns the watermark for an account. ok is false when the
// account has never recorded a sync.
func (db *DB) LastSyncDate(ctx context.Context, accountEmail string) (time.Time, bool, error) {
	var last sql.NullTime
	err := db.GetContext(ctx, &last,
		`SELECT last_sync_date FROM sync_status WHERE account_email = ?`, accountEmail)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get last sync date: %w", err)
	}
	if !last.Valid {
		return time.Time{}, false, nil
	}
	return last.Time, true, nil
}

// UpsertSyncStatus records the outcome of one sync attempt in a single atomic
// statement, so concurrent callers on the same account cannot lose updates.
//
// A zero watermark keeps the stored one unchanged (connect failures must not
// advance the fetch window). totalEmailsSynced accumulates only new emails
// from successful attempts; lastBatchCount is replaced every attempt.
func (db *DB) UpsertSyncStatus(
	ctx context.Context,
	accountEmail string,
	watermark time.Time,
	stats models.SyncStats,
	success bool,
	errorMessage string,
) error {
	var wm any
	if !watermark.IsZero() {
		wm = watermark
	}
	var errMsg any
	if errorMessage != "" {
		errMsg = errorMessage
	}
	newSynced := 0
	if success {
		newSynced = stats.New
	}

	query := `
		INSERT INTO sync_status (
			account_email, last_sync_date, last_sync_success, last_error_message,
			total_emails_synced, last_batch_count, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_email) DO UPDATE SET
			last_sync_date = COALESCE(excluded.last_sync_date, sync_status.last_sync_date),
			last_sync_success = excluded.last_sync_success,
			last_error_message = excluded.last_error_message,
			total_emails_synced = sync_status.total_emails_synced + excluded.total_emails_synced,
			last_batch_count = excluded.last_batch_count,
			updated_at = excluded.updated_at
	`
	now := time.Now()
	_, err := db.ExecContext(ctx, query,
		accountEmail,
		wm,
		success,
		errMsg,
		newSynced,
		stats.Total,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert sync status: %w", err)
	}
	return nil
}
