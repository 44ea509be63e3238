package auth

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func makeOneShot(userID string, purpose TokenKind, expiresIn time.Duration) *OneShotToken {
	now := time.Now()
	return &OneShotToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		Purpose:   purpose,
		TokenHash: HashToken(uuid.NewString()),
		ExpiresAt: now.Add(expiresIn),
		CreatedAt: now,
	}
}

func TestOneShotRepository_CreateAndGet(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "oneshot@example.com", RoleUser)
	repo := NewSQLiteOneShotRepository(db)

	token := makeOneShot(user.ID, TokenKindReset, 30*time.Minute)
	if err := repo.Create(context.Background(), token); err != nil {
		t.Fatalf("creating token: %v", err)
	}

	got, err := repo.GetByID(context.Background(), token.ID)
	if err != nil {
		t.Fatalf("getting token: %v", err)
	}
	if got.Purpose != TokenKindReset {
		t.Errorf("expected purpose reset, got %s", got.Purpose)
	}
	if got.Consumed {
		t.Error("new token should not be consumed")
	}

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestOneShotRepository_Redeem(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "redeem@example.com", RoleUser)
	repo := NewSQLiteOneShotRepository(db)
	users := NewSQLiteUserRepository(db)

	token := makeOneShot(user.ID, TokenKindReset, 30*time.Minute)
	if err := repo.Create(context.Background(), token); err != nil {
		t.Fatalf("creating token: %v", err)
	}

	newHash, err := HashPassword("brand-new-password")
	if err != nil {
		t.Fatalf("hashing: %v", err)
	}
	err = repo.Redeem(context.Background(), token.ID, func(tx *sql.Tx) error {
		return users.UpdatePasswordTx(context.Background(), tx, user.ID, newHash)
	})
	if err != nil {
		t.Fatalf("redeeming: %v", err)
	}

	got, err := repo.GetByID(context.Background(), token.ID)
	if err != nil {
		t.Fatalf("getting token: %v", err)
	}
	if !got.Consumed {
		t.Error("redeemed token should be consumed")
	}

	updated, err := users.GetByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("getting user: %v", err)
	}
	if updated.PasswordHash != newHash {
		t.Error("password change should commit with the redemption")
	}
}

func TestOneShotRepository_RedeemTwiceFails(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "twice@example.com", RoleUser)
	repo := NewSQLiteOneShotRepository(db)

	token := makeOneShot(user.ID, TokenKindVerify, time.Hour)
	if err := repo.Create(context.Background(), token); err != nil {
		t.Fatalf("creating token: %v", err)
	}

	if err := repo.Redeem(context.Background(), token.ID, nil); err != nil {
		t.Fatalf("first redemption: %v", err)
	}
	if err := repo.Redeem(context.Background(), token.ID, nil); !errors.Is(err, ErrAlreadyConsumed) {
		t.Errorf("expected ErrAlreadyConsumed, got %v", err)
	}
}

func TestOneShotRepository_RedeemRollsBackOnApplyError(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "rollback@example.com", RoleUser)
	repo := NewSQLiteOneShotRepository(db)

	token := makeOneShot(user.ID, TokenKindReset, time.Hour)
	if err := repo.Create(context.Background(), token); err != nil {
		t.Fatalf("creating token: %v", err)
	}

	applyErr := errors.New("apply failed")
	err := repo.Redeem(context.Background(), token.ID, func(*sql.Tx) error {
		return applyErr
	})
	if !errors.Is(err, applyErr) {
		t.Fatalf("expected apply error to surface, got %v", err)
	}

	// The token burn rolled back with the failed action
	got, err := repo.GetByID(context.Background(), token.ID)
	if err != nil {
		t.Fatalf("getting token: %v", err)
	}
	if got.Consumed {
		t.Error("failed redemption must leave the token unconsumed")
	}
}

func TestOneShotRepository_DeleteExpired(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "oldshots@example.com", RoleUser)
	repo := NewSQLiteOneShotRepository(db)

	live := makeOneShot(user.ID, TokenKindReset, time.Hour)
	dead := makeOneShot(user.ID, TokenKindVerify, -time.Hour)
	for _, tok := range []*OneShotToken{live, dead} {
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
}
