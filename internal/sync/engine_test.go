package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/solarmail/solarsync/internal/analyzer"
	"github.com/solarmail/solarsync/internal/database"
	"github.com/solarmail/solarsync/pkg/models"
)

const testAccount = "user@example.com"

type fakeSource struct {
	msgs       []models.RawMessage
	connectErr error
	fetchErr   error
	connects   int
	closes     int
	sinces     []time.Time
}

func (s *fakeSource) Connect(ctx context.Context) error {
	s.connects++
	return s.connectErr
}

func (s *fakeSource) FetchSince(ctx context.Context, since time.Time) ([]models.RawMessage, error) {
	s.sinces = append(s.sinces, since)
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.msgs, nil
}

func (s *fakeSource) Close() error {
	s.closes++
	return nil
}

// flakyStore wraps a real store and injects failures for selected operations.
type flakyStore struct {
	Store
	metaErr   error
	upsertErr error
}

func (s *flakyStore) InsertEmailMeta(ctx context.Context, meta *models.EmailMeta) error {
	if s.metaErr != nil {
		return s.metaErr
	}
	return s.Store.InsertEmailMeta(ctx, meta)
}

func (s *flakyStore) UpsertSyncStatus(ctx context.Context, accountEmail string, watermark time.Time, stats models.SyncStats, success bool, errorMessage string) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	return s.Store.UpsertSyncStatus(ctx, accountEmail, watermark, stats, success, errorMessage)
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestEngine(store Store, source Source, start time.Time) *Engine {
	e := New(Deps{
		Store:    store,
		Source:   source,
		Analyzer: analyzer.NewHeuristic(),
		Account:  testAccount,
		SyncDays: 3,
		Enrich:   true,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	e.now = func() time.Time { return start }
	return e
}

func rawMsg(uid string, date time.Time) models.RawMessage {
	return models.RawMessage{
		UID:     uid,
		Sender:  "alice@example.com",
		Subject: "urgent: review the report",
		Date:    date,
		HasDate: true,
		Body:    "please take a look before the deadline",
	}
}

func TestFirstSyncUsesLookbackWindow(t *testing.T) {
	db := newTestDB(t)
	source := &fakeSource{}
	start := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	report, err := newTestEngine(db, source, start).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Success || report.Total != 0 {
		t.Errorf("report = %+v, want empty success", report)
	}

	want := start.AddDate(0, 0, -3)
	if len(source.sinces) != 1 || !source.sinces[0].Equal(want) {
		t.Errorf("fetched since %v, want %v", source.sinces, want)
	}

	// An empty cycle still advances the watermark to the cycle start
	got, ok, err := db.LastSyncDate(context.Background(), testAccount)
	if err != nil || !ok {
		t.Fatalf("LastSyncDate = (%v, %v, %v), want recorded", got, ok, err)
	}
	if !got.Equal(start) {
		t.Errorf("watermark = %v, want %v", got, start)
	}
}

func TestStatusRowOverridesLookbackDays(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	if err := db.InitSyncStatus(ctx, testAccount, 7); err != nil {
		t.Fatal(err)
	}

	source := &fakeSource{}
	start := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	if _, err := newTestEngine(db, source, start).Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := start.AddDate(0, 0, -7)
	if !source.sinces[0].Equal(want) {
		t.Errorf("fetched since %v, want %v", source.sinces[0], want)
	}
}

func TestSecondCycleCountsDuplicates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	firstStart := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	msg := rawMsg("1001", firstStart.Add(-time.Hour))

	source := &fakeSource{msgs: []models.RawMessage{msg}}
	report, err := newTestEngine(db, source, firstStart).Run(ctx)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if report.New != 1 || report.Duplicate != 0 {
		t.Fatalf("first report = %+v, want 1 new", report)
	}

	// The overlapping window re-fetches the same message
	secondStart := firstStart.Add(time.Hour)
	report, err = newTestEngine(db, source, secondStart).Run(ctx)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !report.Success || report.Total != 1 || report.New != 0 || report.Duplicate != 1 {
		t.Errorf("second report = %+v, want 1 duplicate", report)
	}

	wantSince := firstStart.Add(time.Second)
	if len(source.sinces) != 2 || !source.sinces[1].Equal(wantSince) {
		t.Errorf("second fetch since %v, want %v", source.sinces, wantSince)
	}
}

func TestConnectFailureKeepsWatermark(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	firstStart := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	if _, err := newTestEngine(db, &fakeSource{}, firstStart).Run(ctx); err != nil {
		t.Fatalf("seed Run: %v", err)
	}

	source := &fakeSource{connectErr: errors.New("connection refused")}
	secondStart := firstStart.Add(time.Hour)
	_, err := newTestEngine(db, source, secondStart).Run(ctx)
	if err == nil {
		t.Fatal("Run succeeded with failing connect")
	}
	if len(source.sinces) != 0 {
		t.Errorf("fetch ran despite connect failure")
	}

	got, ok, err := db.LastSyncDate(ctx, testAccount)
	if err != nil || !ok {
		t.Fatalf("LastSyncDate = (%v, %v, %v)", got, ok, err)
	}
	if !got.Equal(firstStart) {
		t.Errorf("watermark = %v, want unchanged %v", got, firstStart)
	}

	status, err := db.GetSyncStatus(ctx, testAccount)
	if err != nil {
		t.Fatal(err)
	}
	if status.LastSyncSuccess || !status.LastErrorMessage.Valid {
		t.Errorf("status = %+v, want recorded failure", status)
	}
}

func TestFetchFailureAdvancesWatermark(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	source := &fakeSource{fetchErr: errors.New("mailbox select failed")}
	start := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	_, err := newTestEngine(db, source, start).Run(ctx)
	if err == nil {
		t.Fatal("Run succeeded with failing fetch")
	}
	if source.closes != 1 {
		t.Errorf("source closed %d times, want 1", source.closes)
	}

	got, ok, err := db.LastSyncDate(ctx, testAccount)
	if err != nil || !ok {
		t.Fatalf("LastSyncDate = (%v, %v, %v), want recorded", got, ok, err)
	}
	if !got.Equal(start) {
		t.Errorf("watermark = %v, want cycle start %v", got, start)
	}
}

func TestTotalSyncedAccumulatesAcrossCycles(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	start := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	batch1 := []models.RawMessage{
		rawMsg("1", start.Add(-3*time.Hour)),
		rawMsg("2", start.Add(-2*time.Hour)),
		rawMsg("3", start.Add(-time.Hour)),
	}
	if _, err := newTestEngine(db, &fakeSource{msgs: batch1}, start).Run(ctx); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	// Second batch overlaps the first and brings two new messages
	batch2 := append(batch1,
		rawMsg("4", start.Add(time.Minute)),
		rawMsg("5", start.Add(2*time.Minute)),
	)
	report, err := newTestEngine(db, &fakeSource{msgs: batch2}, start.Add(time.Hour)).Run(ctx)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if report.New != 2 || report.Duplicate != 3 {
		t.Fatalf("second report = %+v, want 2 new 3 duplicate", report)
	}

	status, err := db.GetSyncStatus(ctx, testAccount)
	if err != nil {
		t.Fatal(err)
	}
	if status.TotalEmailsSynced != 5 {
		t.Errorf("total synced = %d, want 5", status.TotalEmailsSynced)
	}
	if status.LastBatchCount != 5 {
		t.Errorf("last batch = %d, want 5", status.LastBatchCount)
	}
}

func TestEnrichmentWritesMetadataOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	start := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	msg := rawMsg("1001", start.Add(-time.Hour))

	report, err := newTestEngine(db, &fakeSource{msgs: []models.RawMessage{msg}}, start).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Enriched != 1 {
		t.Fatalf("enriched = %d, want 1", report.Enriched)
	}

	email, err := db.GetEmailByUID(ctx, "1001")
	if err != nil {
		t.Fatal(err)
	}
	meta, err := db.GetEmailMeta(ctx, email.ID)
	if err != nil {
		t.Fatalf("GetEmailMeta: %v", err)
	}
	if meta.Priority != models.PriorityHigh {
		t.Errorf("priority = %q, want high for urgent subject", meta.Priority)
	}
	firstAnalyzedAt := meta.AnalyzedAt

	// A later cycle re-fetching the same message must not re-analyze it
	report, err = newTestEngine(db, &fakeSource{msgs: []models.RawMessage{msg}}, start.Add(time.Hour)).Run(ctx)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if report.Enriched != 0 {
		t.Errorf("second enriched = %d, want 0", report.Enriched)
	}
	meta, err = db.GetEmailMeta(ctx, email.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !meta.AnalyzedAt.Equal(firstAnalyzedAt) {
		t.Errorf("analyzed_at changed from %v to %v", firstAnalyzedAt, meta.AnalyzedAt)
	}
}

func TestMetadataWriteFailureDoesNotFailCycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	start := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	store := &flakyStore{Store: db, metaErr: errors.New("disk full")}
	source := &fakeSource{msgs: []models.RawMessage{rawMsg("1001", start.Add(-time.Hour))}}

	report, err := newTestEngine(store, source, start).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Success || report.New != 1 || report.Enriched != 0 {
		t.Errorf("report = %+v, want success with 0 enriched", report)
	}

	// The message stays eligible for a later enrichment pass
	email, err := db.GetEmailByUID(ctx, "1001")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.GetEmailMeta(ctx, email.ID); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("GetEmailMeta error = %v, want ErrNotFound", err)
	}
}

func TestStatusRecordFailureFailsCycle(t *testing.T) {
	db := newTestDB(t)
	store := &flakyStore{Store: db, upsertErr: errors.New("database locked")}
	start := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	report, err := newTestEngine(store, &fakeSource{}, start).Run(context.Background())
	if err == nil {
		t.Fatal("Run succeeded with failing status upsert")
	}
	if report.Success {
		t.Errorf("report.Success = true, want false")
	}
}

func TestDisabledAccountSkipsCycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	if err := db.InitSyncStatus(ctx, testAccount, 3); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecContext(ctx,
		`UPDATE sync_status SET sync_enabled = false WHERE account_email = ?`, testAccount); err != nil {
		t.Fatal(err)
	}

	source := &fakeSource{}
	start := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	_, err := newTestEngine(db, source, start).Run(ctx)
	if !errors.Is(err, ErrSyncDisabled) {
		t.Fatalf("Run error = %v, want ErrSyncDisabled", err)
	}
	if source.connects != 0 {
		t.Errorf("source connected %d times for disabled account", source.connects)
	}

	// No attempt is recorded
	status, err := db.GetSyncStatus(ctx, testAccount)
	if err != nil {
		t.Fatal(err)
	}
	if status.LastBatchCount != 0 || status.LastErrorMessage.Valid {
		t.Errorf("status = %+v, want untouched row", status)
	}
}

func TestNormalizeMessageDefaults(t *testing.T) {
	now := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	email := normalizeMessage(models.RawMessage{UID: "1"}, now)
	if email.Sender != "Unknown" {
		t.Errorf("sender = %q, want Unknown", email.Sender)
	}
	if email.Subject != "(No Subject)" {
		t.Errorf("subject = %q, want (No Subject)", email.Subject)
	}
	if !email.Date.Equal(now) {
		t.Errorf("date = %v, want cycle start", email.Date)
	}

	real := time.Date(2026, 8, 19, 8, 30, 0, 0, time.UTC)
	email = normalizeMessage(models.RawMessage{UID: "2", Sender: " bob@x.io ", Subject: " hi ", Date: real, HasDate: true}, now)
	if email.Sender != "bob@x.io" || email.Subject != "hi" || !email.Date.Equal(real) {
		t.Errorf("normalized = %+v, want trimmed fields and real date", email)
	}
}

func TestMakePreview(t *testing.T) {
	if got := makePreview("line1\nline2\r\nline3"); got != "line1 line2 line3" {
		t.Errorf("preview = %q", got)
	}
	if got := makePreview(strings.Repeat("a", 250)); len([]rune(got)) != previewLimit {
		t.Errorf("preview length = %d, want %d", len([]rune(got)), previewLimit)
	}
	if got := makePreview("  padded  \n"); got != "padded" {
		t.Errorf("preview = %q, want trimmed", got)
	}
}
