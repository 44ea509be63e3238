package audit

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/finchsec/authd/internal/auth"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "audit-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schemaSQL := `
		CREATE TABLE audit_logs (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			user_id TEXT,
			family_id TEXT,
			source TEXT NOT NULL DEFAULT 'api',
			details TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
	`
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("applying test schema: %v", err)
	}
	return db
}

func TestRepository_CreateAndList(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	entry := &AuditLog{
		Action:   "login",
		UserID:   "user-1",
		FamilyID: "family-1",
		Details:  map[string]any{"device": "laptop"},
	}
	if err := repo.Create(ctx, entry); err != nil {
		t.Fatalf("creating entry: %v", err)
	}
	if entry.ID == "" {
		t.Error("expected generated id")
	}

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("expected 1 entry, got %d", result.Total)
	}
	got := result.Logs[0]
	if got.Action != "login" {
		t.Errorf("expected action login, got %s", got.Action)
	}
	if got.Details["device"] != "laptop" {
		t.Errorf("expected details to round-trip, got %v", got.Details)
	}
	if got.Source != "auth" && got.Source != "api" {
		t.Errorf("unexpected source %q", got.Source)
	}
}

func TestRepository_ListFilters(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	entries := []*AuditLog{
		{Action: "login", UserID: "user-1", FamilyID: "fam-1"},
		{Action: "refresh", UserID: "user-1", FamilyID: "fam-1"},
		{Action: "login", UserID: "user-2", FamilyID: "fam-2"},
	}
	for _, e := range entries {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("creating entry: %v", err)
		}
	}

	byAction, err := repo.List(ctx, Filter{Action: "login"})
	if err != nil {
		t.Fatalf("listing by action: %v", err)
	}
	if byAction.Total != 2 {
		t.Errorf("expected 2 login entries, got %d", byAction.Total)
	}

	byUser, err := repo.List(ctx, Filter{UserID: "user-1"})
	if err != nil {
		t.Fatalf("listing by user: %v", err)
	}
	if byUser.Total != 2 {
		t.Errorf("expected 2 entries for user-1, got %d", byUser.Total)
	}

	byFamily, err := repo.List(ctx, Filter{FamilyID: "fam-2"})
	if err != nil {
		t.Fatalf("listing by family: %v", err)
	}
	if byFamily.Total != 1 {
		t.Errorf("expected 1 entry for fam-2, got %d", byFamily.Total)
	}

	combined, err := repo.List(ctx, Filter{Action: "login", UserID: "user-1"})
	if err != nil {
		t.Fatalf("listing combined: %v", err)
	}
	if combined.Total != 1 {
		t.Errorf("expected 1 combined match, got %d", combined.Total)
	}
}

func TestRepository_ListPagination(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := repo.Create(ctx, &AuditLog{Action: "refresh"}); err != nil {
			t.Fatalf("creating entry: %v", err)
		}
	}

	page, err := repo.List(ctx, Filter{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("listing page: %v", err)
	}
	if page.Total != 5 {
		t.Errorf("expected total 5, got %d", page.Total)
	}
	if len(page.Logs) != 1 {
		t.Errorf("expected 1 entry on last page, got %d", len(page.Logs))
	}

	empty, err := repo.List(ctx, Filter{Offset: 100})
	if err != nil {
		t.Fatalf("listing beyond end: %v", err)
	}
	if len(empty.Logs) != 0 {
		t.Errorf("expected empty page, got %d entries", len(empty.Logs))
	}
	if empty.Logs == nil {
		t.Error("expected empty slice, not nil")
	}
}

func TestSink_Emit(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository(db)
	sink := NewSink(repo, nil)
	ctx := context.Background()

	sink.Emit(ctx, auth.Event{
		Action:   auth.EventReuseDetected,
		UserID:   "user-1",
		FamilyID: "fam-1",
		At:       time.Now(),
	})

	result, err := repo.List(ctx, Filter{Action: auth.EventReuseDetected})
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("expected the event in the audit trail, got %d entries", result.Total)
	}
	if result.Logs[0].Source != "auth" {
		t.Errorf("expected source auth, got %s", result.Logs[0].Source)
	}
}
