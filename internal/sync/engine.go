// Package sync drives incremental mailbox synchronization: it reads the
// account watermark, pulls messages from the external source, persists new
// ones, enriches them with derived metadata and records the attempt outcome.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/solarmail/solarsync/internal/analyzer"
	"github.com/solarmail/solarsync/internal/database"
	"github.com/solarmail/solarsync/pkg/models"
)

// ErrSyncDisabled is returned when the account's status row has sync turned
// off. No attempt is recorded for a disabled account.
var ErrSyncDisabled = errors.New("sync disabled for account")

// previewLimit bounds stored body previews.
const previewLimit = 200

// Source is the external message collaborator. Implementations fetch all
// messages with a date at or after the given bound.
type Source interface {
	Connect(ctx context.Context) error
	FetchSince(ctx context.Context, since time.Time) ([]models.RawMessage, error)
	Close() error
}

// Store is the cache persistence the engine writes through.
type Store interface {
	InsertEmail(ctx context.Context, email *models.Email) error
	GetEmailMeta(ctx context.Context, emailID int64) (*models.EmailMeta, error)
	InsertEmailMeta(ctx context.Context, meta *models.EmailMeta) error
	GetSyncStatus(ctx context.Context, accountEmail string) (*models.SyncStatus, error)
	LastSyncDate(ctx context.Context, accountEmail string) (time.Time, bool, error)
	UpsertSyncStatus(ctx context.Context, accountEmail string, watermark time.Time, stats models.SyncStats, success bool, errorMessage string) error
}

// Deps are the collaborators an Engine is built from.
type Deps struct {
	Store    Store
	Source   Source
	Analyzer analyzer.Analyzer
	Account  string
	SyncDays int  // Lookback window when the account has no watermark yet
	Enrich   bool // Run the analyzer on newly persisted messages
	Logger   *slog.Logger
}

// Engine runs one synchronization cycle at a time for a single account. It
// keeps no state across cycles: everything needed to decide the next fetch
// window is rehydrated from the sync status row.
type Engine struct {
	store    Store
	source   Source
	analyzer analyzer.Analyzer
	account  string
	syncDays int
	enrich   bool
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a sync engine
func New(deps Deps) *Engine {
	return &Engine{
		store:    deps.Store,
		source:   deps.Source,
		analyzer: deps.Analyzer,
		account:  deps.Account,
		syncDays: deps.SyncDays,
		enrich:   deps.Enrich,
		logger:   deps.Logger.With("component", "sync_engine", "account", deps.Account),
		now:      time.Now,
	}
}

// Run executes one cycle: connect, fetch, persist, enrich, record. The
// returned report is also recorded in the account's sync status row.
//
// A connect failure is recorded without advancing the watermark, so the next
// cycle retries the same window. Any fault after a successful connect is
// recorded with the cycle start time as the new watermark and re-surfaced.
func (e *Engine) Run(ctx context.Context) (models.Report, error) {
	start := e.now()

	since, err := e.fetchSinceBound(ctx, start)
	if err != nil {
		if errors.Is(err, ErrSyncDisabled) {
			return models.Report{}, err
		}
		return models.Report{Err: err}, err
	}

	e.logger.Info("sync cycle started", "since", since)

	// Connecting
	if err := e.source.Connect(ctx); err != nil {
		connErr := fmt.Errorf("failed to connect to source: %w", err)
		e.recordFailure(ctx, time.Time{}, models.SyncStats{}, connErr)
		return models.Report{Err: connErr}, connErr
	}

	// Fetching
	msgs, err := e.source.FetchSince(ctx, since)
	if closeErr := e.source.Close(); closeErr != nil {
		e.logger.Warn("failed to close source", "error", closeErr)
	}
	if err != nil {
		fetchErr := fmt.Errorf("failed to fetch messages: %w", err)
		e.recordFailure(ctx, start, models.SyncStats{}, fetchErr)
		return models.Report{Err: fetchErr}, fetchErr
	}
	e.logger.Info("fetched messages", "count", len(msgs))

	// Persisting. The fetch window always overlaps the previous cycle, so
	// duplicates are expected steady-state behavior.
	stats := models.SyncStats{Total: len(msgs)}
	var inserted []*models.Email
	for _, raw := range msgs {
		email := normalizeMessage(raw, start)
		err := e.store.InsertEmail(ctx, email)
		switch {
		case errors.Is(err, database.ErrAlreadyExists):
			stats.Duplicate++
		case err != nil:
			persistErr := fmt.Errorf("failed to persist message %s: %w", email.UID, err)
			e.recordFailure(ctx, start, stats, persistErr)
			return models.Report{SyncStats: stats, Err: persistErr}, persistErr
		default:
			stats.New++
			inserted = append(inserted, email)
		}
	}
	e.logger.Info("persisted messages", "new", stats.New, "duplicate", stats.Duplicate)

	// Enriching
	enriched := 0
	if e.enrich && e.analyzer != nil {
		enriched = e.enrichEmails(ctx, inserted)
	}

	// Recording. Losing the watermark update risks re-processing, so an
	// upsert failure is the cycle's own failure.
	if err := e.store.UpsertSyncStatus(ctx, e.account, start, stats, true, ""); err != nil {
		recordErr := fmt.Errorf("failed to record sync status: %w", err)
		return models.Report{SyncStats: stats, Enriched: enriched, Err: recordErr}, recordErr
	}

	e.logger.Info("sync cycle completed",
		"total", stats.Total, "new", stats.New, "duplicate", stats.Duplicate, "enriched", enriched)

	return models.Report{SyncStats: stats, Enriched: enriched, Success: true}, nil
}

// fetchSinceBound determines the lower bound for this cycle's fetch: one
// second past the watermark when one exists (the boundary message is already
// stored), otherwise the configured lookback.
func (e *Engine) fetchSinceBound(ctx context.Context, start time.Time) (time.Time, error) {
	days := e.syncDays

	status, err := e.store.GetSyncStatus(ctx, e.account)
	switch {
	case errors.Is(err, database.ErrNotFound):
		// First attempt for this account
	case err != nil:
		return time.Time{}, fmt.Errorf("failed to read sync status: %w", err)
	default:
		if !status.SyncEnabled {
			return time.Time{}, ErrSyncDisabled
		}
		if status.SyncDays > 0 {
			days = status.SyncDays
		}
	}

	watermark, ok, err := e.store.LastSyncDate(ctx, e.account)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read watermark: %w", err)
	}
	if ok {
		return watermark.Add(time.Second), nil
	}
	return start.AddDate(0, 0, -days), nil
}

// enrichEmails analyzes newly persisted emails that lack metadata. A failure
// for one message never aborts the rest: the message stays without metadata
// and is picked up by a later cycle.
func (e *Engine) enrichEmails(ctx context.Context, emails []*models.Email) int {
	enriched := 0
	for _, email := range emails {
		_, err := e.store.GetEmailMeta(ctx, email.ID)
		if err == nil {
			continue // already analyzed
		}
		if !errors.Is(err, database.ErrNotFound) {
			e.logger.Warn("failed to check metadata", "uid", email.UID, "error", err)
			continue
		}

		meta := e.analyzer.Analyze(ctx, email.Subject, email.BodyPreview)
		meta.EmailID = email.ID

		err = e.store.InsertEmailMeta(ctx, meta)
		switch {
		case errors.Is(err, database.ErrAlreadyExists):
			// Raced with another writer; the stored row wins
		case err != nil:
			e.logger.Warn("failed to write metadata, message stays eligible for retry",
				"uid", email.UID, "error", err)
		default:
			enriched++
		}
	}
	return enriched
}

// recordFailure writes a failed attempt to the status row. Counters for new
// emails stay unincremented; last_batch_count resets to the partial count.
func (e *Engine) recordFailure(ctx context.Context, watermark time.Time, stats models.SyncStats, cause error) {
	if err := e.store.UpsertSyncStatus(ctx, e.account, watermark, stats, false, cause.Error()); err != nil {
		e.logger.Error("failed to record failed sync attempt", "error", err)
	}
}

var newlineReplacer = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// normalizeMessage converts a raw source message into the stored Email shape,
// filling the documented defaults for missing fields.
func normalizeMessage(raw models.RawMessage, now time.Time) *models.Email {
	sender := strings.TrimSpace(raw.Sender)
	if sender == "" {
		sender = "Unknown"
	}

	subject := strings.TrimSpace(raw.Subject)
	if subject == "" {
		subject = "(No Subject)"
	}

	date := raw.Date
	if !raw.HasDate || date.IsZero() {
		date = now
	}

	return &models.Email{
		UID:         raw.UID,
		Sender:      sender,
		Subject:     subject,
		Date:        date,
		BodyPreview: makePreview(raw.Body),
	}
}

// makePreview bounds the body to 200 characters and collapses newlines.
func makePreview(body string) string {
	runes := []rune(body)
	if len(runes) > previewLimit {
		runes = runes[:previewLimit]
	}
	return strings.TrimSpace(newlineReplacer.Replace(string(runes)))
}
