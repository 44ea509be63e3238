package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// OneShotRepository persists single-use tokens for password resets and
// email verification.
type OneShotRepository interface {
	Create(ctx context.Context, token *OneShotToken) error

	// GetByID returns a one-shot token by id. Returns ErrTokenNotFound
	// if no record exists.
	GetByID(ctx context.Context, id string) (*OneShotToken, error)

	// Redeem consumes the token and runs apply inside the same
	// transaction, so the token burn and the action it authorizes
	// commit or roll back together. An already consumed token fails
	// with ErrAlreadyConsumed.
	Redeem(ctx context.Context, id string, apply func(tx *sql.Tx) error) error

	// DeleteExpired removes tokens that expired before the cutoff and
	// returns the number removed.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// SQLiteOneShotRepository implements OneShotRepository on SQLite.
type SQLiteOneShotRepository struct {
	db *sql.DB
}

// NewSQLiteOneShotRepository creates a one-shot token repository.
func NewSQLiteOneShotRepository(db *sql.DB) *SQLiteOneShotRepository {
	return &SQLiteOneShotRepository{db: db}
}

func (r *SQLiteOneShotRepository) Create(ctx context.Context, token *OneShotToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO one_shot_tokens (id, user_id, purpose, token_hash, expires_at, consumed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		token.ID,
		token.UserID,
		string(token.Purpose),
		token.TokenHash,
		formatTime(token.ExpiresAt),
		boolToInt(token.Consumed),
		formatTime(token.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("creating one-shot token: %w", err)
	}
	return nil
}

func (r *SQLiteOneShotRepository) GetByID(ctx context.Context, id string) (*OneShotToken, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, purpose, token_hash, expires_at, consumed, created_at
		FROM one_shot_tokens WHERE id = ?`, id)

	token, err := scanOneShotToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting one-shot token: %w", err)
	}
	return token, nil
}

func (r *SQLiteOneShotRepository) Redeem(ctx context.Context, id string, apply func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning redemption: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE one_shot_tokens SET consumed = 1 WHERE id = ? AND consumed = 0`, id)
	if err != nil {
		return fmt.Errorf("consuming one-shot token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("consuming one-shot token: %w", err)
	}
	if n == 0 {
		return ErrAlreadyConsumed
	}

	if apply != nil {
		if err := apply(tx); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing redemption: %w", err)
	}
	return nil
}

func (r *SQLiteOneShotRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM one_shot_tokens WHERE expires_at < ?`,
		formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("deleting expired one-shot tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleting expired one-shot tokens: %w", err)
	}
	return n, nil
}

func scanOneShotToken(row scanner) (*OneShotToken, error) {
	var (
		token     OneShotToken
		purpose   string
		expiresAt string
		consumed  int
		createdAt string
	)
	err := row.Scan(
		&token.ID,
		&token.UserID,
		&purpose,
		&token.TokenHash,
		&expiresAt,
		&consumed,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	token.Purpose = TokenKind(purpose)
	token.Consumed = consumed != 0
	if token.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}
	if token.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &token, nil
}
