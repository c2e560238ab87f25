package models

import (
	"database/sql"
	"time"
)

// SyncStatus is the per-account sync ledger: one row per account email.
// LastSyncDate is the watermark, the inclusive lower bound for the next
// fetch window.
type SyncStatus struct {
	ID               int64          `db:"id"`
	AccountEmail     string         `db:"account_email"`
	LastSyncDate     sql.NullTime   `db:"last_sync_date"` // NULL until the first attempt records one
	LastSyncSuccess  bool           `db:"last_sync_success"`
	LastErrorMessage sql.NullString `db:"last_error_message"`

	TotalEmailsSynced int64 `db:"total_emails_synced"` // Incremented by successful attempts only
	LastBatchCount    int64 `db:"last_batch_count"`    // Overwritten every attempt

	SyncEnabled bool `db:"sync_enabled"`
	SyncDays    int  `db:"sync_days"` // Lookback window for the first sync

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// SyncStats counts the outcome of one fetch batch.
type SyncStats struct {
	Total     int
	New       int
	Duplicate int
}

// Report is the structured outcome of one sync cycle.
type Report struct {
	SyncStats
	Enriched int
	Success  bool
	Err      error
}
