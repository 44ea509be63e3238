package auth

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const testSecret = "test-secret-0123456789abcdef0123456789abcdef"

// testDB creates a temporary SQLite database with the authd schema applied.
// The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	// Use a temp file so WAL mode works (in-memory doesn't support it)
	f, err := os.CreateTemp("", "authd-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schemaSQL := `
		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'user',
			is_active INTEGER NOT NULL DEFAULT 1,
			email_verified INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE TABLE refresh_tokens (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			family_id TEXT NOT NULL,
			token_hash TEXT NOT NULL UNIQUE,
			device_info TEXT,
			expires_at TEXT NOT NULL,
			consumed INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		) STRICT;

		CREATE INDEX idx_refresh_tokens_user ON refresh_tokens(user_id);
		CREATE INDEX idx_refresh_tokens_family ON refresh_tokens(family_id);

		CREATE TABLE revocations (
			id TEXT PRIMARY KEY,
			family_id TEXT,
			subject_id TEXT,
			revoked_at TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			CHECK (family_id IS NOT NULL OR subject_id IS NOT NULL)
		) STRICT;

		CREATE INDEX idx_revocations_family ON revocations(family_id);
		CREATE INDEX idx_revocations_subject ON revocations(subject_id);

		CREATE TABLE one_shot_tokens (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			purpose TEXT NOT NULL,
			token_hash TEXT NOT NULL UNIQUE,
			expires_at TEXT NOT NULL,
			consumed INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		) STRICT;
	`
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("applying test schema: %v", err)
	}

	return db
}

// seedTestUser inserts a test user with password "test-password".
func seedTestUser(t *testing.T, db *sql.DB, email string, role Role) *User {
	t.Helper()

	hash, err := HashPassword("test-password")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	now := time.Now()
	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	repo := NewSQLiteUserRepository(db)
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("creating test user %s: %v", email, err)
	}
	return user
}

// fakeClock is a settable Clock for expiry tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// captureNotifier records the raw tokens handed to it instead of sending
// mail, so tests can redeem them.
type captureNotifier struct {
	mu          sync.Mutex
	resetToken  string
	verifyToken string
}

func (n *captureNotifier) SendPasswordReset(_ context.Context, _, token string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resetToken = token
	return nil
}

func (n *captureNotifier) SendEmailVerification(_ context.Context, _, token string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verifyToken = token
	return nil
}

func (n *captureNotifier) lastReset() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.resetToken
}

func (n *captureNotifier) lastVerify() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.verifyToken
}

// recordSink collects emitted events for assertion.
type recordSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordSink) Emit(_ context.Context, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordSink) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Action
	}
	return out
}

func (s *recordSink) find(action string) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.Action == action {
			return ev, true
		}
	}
	return Event{}, false
}

func (s *recordSink) has(action string) bool {
	for _, a := range s.actions() {
		if a == action {
			return true
		}
	}
	return false
}

// testService wires a Service over the test database with a fake clock.
type testService struct {
	svc      *Service
	clock    *fakeClock
	notifier *captureNotifier
	events   *recordSink
	tokens   *SQLiteTokenRepository
	oneShots *SQLiteOneShotRepository
	users    *SQLiteUserRepository
	revs     *SQLiteRevocationRepository
	codec    *Codec
	issuer   *Issuer
	verifier *Verifier
}

func newTestService(t *testing.T, db *sql.DB) *testService {
	t.Helper()

	clock := newFakeClock(time.Now())
	codec := NewCodec(testSecret, clock)
	issuer := NewIssuer(codec, clock, IssuerConfig{
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		ResetTTL:   30 * time.Minute,
		VerifyTTL:  24 * time.Hour,
	})

	users := NewSQLiteUserRepository(db)
	tokens := NewSQLiteTokenRepository(db)
	oneShots := NewSQLiteOneShotRepository(db)
	revs := NewSQLiteRevocationRepository(db)
	verifier := NewVerifier(codec, revs)
	notifier := &captureNotifier{}
	events := &recordSink{}

	svc := NewService(ServiceDeps{
		Users:       users,
		Tokens:      tokens,
		OneShots:    oneShots,
		Revocations: revs,
		Issuer:      issuer,
		Verifier:    verifier,
		Codec:       codec,
		Clock:       clock,
		Notifier:    notifier,
		Events:      events,
	})

	return &testService{
		svc:      svc,
		clock:    clock,
		notifier: notifier,
		events:   events,
		tokens:   tokens,
		oneShots: oneShots,
		users:    users,
		revs:     revs,
		codec:    codec,
		issuer:   issuer,
		verifier: verifier,
	}
}
