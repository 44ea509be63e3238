package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func makeRefreshToken(userID, familyID string, expiresIn time.Duration) *RefreshToken {
	now := time.Now()
	return &RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		FamilyID:  familyID,
		TokenHash: HashToken(uuid.NewString()),
		ExpiresAt: now.Add(expiresIn),
		CreatedAt: now,
	}
}

func TestTokenRepository_CreateAndGet(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "ledger@example.com", RoleUser)
	repo := NewSQLiteTokenRepository(db)

	token := makeRefreshToken(user.ID, "family-1", time.Hour)
	token.DeviceInfo = "cli v1.2"
	if err := repo.Create(context.Background(), token); err != nil {
		t.Fatalf("creating token: %v", err)
	}

	got, err := repo.GetByID(context.Background(), token.ID)
	if err != nil {
		t.Fatalf("getting token: %v", err)
	}
	if got.UserID != user.ID {
		t.Errorf("expected user %s, got %s", user.ID, got.UserID)
	}
	if got.FamilyID != "family-1" {
		t.Errorf("expected family family-1, got %s", got.FamilyID)
	}
	if got.TokenHash != token.TokenHash {
		t.Error("token hash mismatch")
	}
	if got.DeviceInfo != "cli v1.2" {
		t.Errorf("expected device info to round-trip, got %q", got.DeviceInfo)
	}
	if got.Consumed {
		t.Error("new token should not be consumed")
	}
}

func TestTokenRepository_GetMissing(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteTokenRepository(db)

	if _, err := repo.GetByID(context.Background(), "no-such-token"); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestTokenRepository_Rotate(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "rotate@example.com", RoleUser)
	repo := NewSQLiteTokenRepository(db)

	old := makeRefreshToken(user.ID, "family-1", time.Hour)
	if err := repo.Create(context.Background(), old); err != nil {
		t.Fatalf("creating token: %v", err)
	}

	successor := makeRefreshToken(user.ID, "family-1", time.Hour)
	if err := repo.Rotate(context.Background(), old.ID, successor); err != nil {
		t.Fatalf("rotating: %v", err)
	}

	gotOld, err := repo.GetByID(context.Background(), old.ID)
	if err != nil {
		t.Fatalf("getting old token: %v", err)
	}
	if !gotOld.Consumed {
		t.Error("rotated token should be consumed")
	}

	gotNew, err := repo.GetByID(context.Background(), successor.ID)
	if err != nil {
		t.Fatalf("getting successor: %v", err)
	}
	if gotNew.Consumed {
		t.Error("successor should not be consumed")
	}
	if gotNew.FamilyID != old.FamilyID {
		t.Error("successor should stay in the same family")
	}
}

func TestTokenRepository_RotateTwiceFails(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "replay@example.com", RoleUser)
	repo := NewSQLiteTokenRepository(db)

	old := makeRefreshToken(user.ID, "family-1", time.Hour)
	if err := repo.Create(context.Background(), old); err != nil {
		t.Fatalf("creating token: %v", err)
	}

	first := makeRefreshToken(user.ID, "family-1", time.Hour)
	if err := repo.Rotate(context.Background(), old.ID, first); err != nil {
		t.Fatalf("first rotation: %v", err)
	}

	second := makeRefreshToken(user.ID, "family-1", time.Hour)
	if err := repo.Rotate(context.Background(), old.ID, second); !errors.Is(err, ErrTokenReuse) {
		t.Fatalf("expected ErrTokenReuse, got %v", err)
	}

	// The failed rotation must not have stored its successor
	if _, err := repo.GetByID(context.Background(), second.ID); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("expected second successor to be rolled back, got %v", err)
	}
}

func TestTokenRepository_ConsumeFamily(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "family@example.com", RoleUser)
	repo := NewSQLiteTokenRepository(db)

	inFamily := makeRefreshToken(user.ID, "family-1", time.Hour)
	other := makeRefreshToken(user.ID, "family-2", time.Hour)
	for _, tok := range []*RefreshToken{inFamily, other} {
		if err := repo.Create(context.Background(), tok); err != nil {
			t.Fatalf("creating token: %v", err)
		}
	}

	if err := repo.ConsumeFamily(context.Background(), "family-1"); err != nil {
		t.Fatalf("consuming family: %v", err)
	}

	got, _ := repo.GetByID(context.Background(), inFamily.ID)
	if !got.Consumed {
		t.Error("family member should be consumed")
	}
	got, _ = repo.GetByID(context.Background(), other.ID)
	if got.Consumed {
		t.Error("other family should be untouched")
	}
}

func TestTokenRepository_ConsumeAllForUser(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "all@example.com", RoleUser)
	other := seedTestUser(t, db, "other@example.com", RoleUser)
	repo := NewSQLiteTokenRepository(db)

	t1 := makeRefreshToken(user.ID, "family-1", time.Hour)
	t2 := makeRefreshToken(user.ID, "family-2", time.Hour)
	t3 := makeRefreshToken(other.ID, "family-3", time.Hour)
	for _, tok := range []*RefreshToken{t1, t2, t3} {
		if err := repo.Create(context.Background(), tok); err != nil {
			t.Fatalf("creating token: %v", err)
		}
	}

	families, err := repo.ConsumeAllForUser(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("consuming all: %v", err)
	}
	if len(families) != 2 {
		t.Fatalf("expected 2 families, got %d: %v", len(families), families)
	}

	got, _ := repo.GetByID(context.Background(), t3.ID)
	if got.Consumed {
		t.Error("other user's token should be untouched")
	}
}

func TestTokenRepository_ListActiveByUser(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "list@example.com", RoleUser)
	repo := NewSQLiteTokenRepository(db)

	active := makeRefreshToken(user.ID, "family-1", time.Hour)
	expired := makeRefreshToken(user.ID, "family-2", -time.Hour)
	consumed := makeRefreshToken(user.ID, "family-3", time.Hour)
	consumed.Consumed = true
	for _, tok := range []*RefreshToken{active, expired, consumed} {
		if err := repo.Create(context.Background(), tok); err != nil {
			t.Fatalf("creating token: %v", err)
		}
	}

	got, err := repo.ListActiveByUser(context.Background(), user.ID, time.Now())
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 active token, got %d", len(got))
	}
	if got[0].ID != active.ID {
		t.Errorf("expected %s, got %s", active.ID, got[0].ID)
	}
}

func TestTokenRepository_DeleteExpired(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "sweep@example.com", RoleUser)
	repo := NewSQLiteTokenRepository(db)

	live := makeRefreshToken(user.ID, "family-1", time.Hour)
	dead := makeRefreshToken(user.ID, "family-2", -time.Hour)
	for _, tok := range []*RefreshToken{live, dead} {
		if err := repo.Create(context.Background(), tok); err != nil {
			t.Fatalf("creating token: %v", err)
		}
	}

	n, err := repo.DeleteExpired(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("deleting expired: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deletion, got %d", n)
	}
	if _, err := repo.GetByID(context.Background(), live.ID); err != nil {
		t.Errorf("live token should survive the sweep: %v", err)
	}
}

func TestTokenRepository_CascadeOnUserDelete(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "cascade@example.com", RoleUser)
	repo := NewSQLiteTokenRepository(db)

	token := makeRefreshToken(user.ID, "family-1", time.Hour)
	if err := repo.Create(context.Background(), token); err != nil {
		t.Fatalf("creating token: %v", err)
	}

	if _, err := db.Exec(`DELETE FROM users WHERE id = ?`, user.ID); err != nil {
		t.Fatalf("deleting user: %v", err)
	}

	if _, err := repo.GetByID(context.Background(), token.ID); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("expected cascade delete, got %v", err)
	}
}
