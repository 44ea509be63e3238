package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// TokenRepository persists refresh tokens and enforces the single-use
// rotation contract.
type TokenRepository interface {
	// Create stores a new refresh token record.
	Create(ctx context.Context, token *RefreshToken) error

	// GetByID returns a refresh token by its id (the token's jti).
	// Returns ErrTokenNotFound if no record exists.
	GetByID(ctx context.Context, id string) (*RefreshToken, error)

	// Rotate consumes the token identified by oldID and stores its
	// successor in a single transaction. If the old token was already
	// consumed the rotation fails with ErrTokenReuse and no successor
	// is written.
	Rotate(ctx context.Context, oldID string, successor *RefreshToken) error

	// ConsumeFamily marks every unconsumed token in a family as consumed.
	ConsumeFamily(ctx context.Context, familyID string) error

	// ConsumeAllForUser marks every unconsumed token belonging to a user
	// as consumed and returns the affected family ids.
	ConsumeAllForUser(ctx context.Context, userID string) ([]string, error)

	// ListActiveByUser returns the user's unconsumed tokens that have not
	// expired as of now, newest first. Each active token corresponds to
	// one live session.
	ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*RefreshToken, error)

	// DeleteExpired removes tokens that expired before the cutoff and
	// returns the number removed.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// SQLiteTokenRepository implements TokenRepository on SQLite.
type SQLiteTokenRepository struct {
	db *sql.DB
}

// NewSQLiteTokenRepository creates a refresh token repository.
func NewSQLiteTokenRepository(db *sql.DB) *SQLiteTokenRepository {
	return &SQLiteTokenRepository{db: db}
}

func (r *SQLiteTokenRepository) Create(ctx context.Context, token *RefreshToken) error {
	if err := insertRefreshToken(ctx, r.db, token); err != nil {
		return fmt.Errorf("creating refresh token: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRefreshToken(ctx context.Context, ex execer, token *RefreshToken) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, user_id, family_id, token_hash, device_info, expires_at, consumed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		token.ID,
		token.UserID,
		token.FamilyID,
		token.TokenHash,
		nullString(token.DeviceInfo),
		formatTime(token.ExpiresAt),
		boolToInt(token.Consumed),
		formatTime(token.CreatedAt),
	)
	return err
}

func (r *SQLiteTokenRepository) GetByID(ctx context.Context, id string) (*RefreshToken, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, family_id, token_hash, device_info, expires_at, consumed, created_at
		FROM refresh_tokens WHERE id = ?`, id)

	token, err := scanRefreshToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting refresh token: %w", err)
	}
	return token, nil
}

// Rotate is the heart of refresh rotation. The conditional UPDATE only
// succeeds if the old token is still unconsumed; a second redemption of the
// same token affects zero rows and surfaces as ErrTokenReuse, leaving the
// transaction rolled back.
func (r *SQLiteTokenRepository) Rotate(ctx context.Context, oldID string, successor *RefreshToken) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning rotation: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE refresh_tokens SET consumed = 1 WHERE id = ? AND consumed = 0`, oldID)
	if err != nil {
		return fmt.Errorf("consuming refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("consuming refresh token: %w", err)
	}
	if n == 0 {
		return ErrTokenReuse
	}

	if err := insertRefreshToken(ctx, tx, successor); err != nil {
		return fmt.Errorf("storing successor token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing rotation: %w", err)
	}
	return nil
}

func (r *SQLiteTokenRepository) ConsumeFamily(ctx context.Context, familyID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET consumed = 1 WHERE family_id = ? AND consumed = 0`, familyID)
	if err != nil {
		return fmt.Errorf("consuming token family: %w", err)
	}
	return nil
}

func (r *SQLiteTokenRepository) ConsumeAllForUser(ctx context.Context, userID string) ([]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning consume-all: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT DISTINCT family_id FROM refresh_tokens WHERE user_id = ? AND consumed = 0`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing token families: %w", err)
	}
	var families []string
	for rows.Next() {
		var fid string
		if err := rows.Scan(&fid); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning family id: %w", err)
		}
		families = append(families, fid)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing token families: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE refresh_tokens SET consumed = 1 WHERE user_id = ? AND consumed = 0`, userID)
	if err != nil {
		return nil, fmt.Errorf("consuming user tokens: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing consume-all: %w", err)
	}
	return families, nil
}

func (r *SQLiteTokenRepository) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*RefreshToken, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, family_id, token_hash, device_info, expires_at, consumed, created_at
		FROM refresh_tokens
		WHERE user_id = ? AND consumed = 0 AND expires_at > ?
		ORDER BY created_at DESC`,
		userID, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("listing active tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*RefreshToken
	for rows.Next() {
		token, err := scanRefreshToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning refresh token: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing active tokens: %w", err)
	}
	return tokens, nil
}

func (r *SQLiteTokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < ?`,
		formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("deleting expired tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleting expired tokens: %w", err)
	}
	return n, nil
}

func scanRefreshToken(row scanner) (*RefreshToken, error) {
	var (
		token      RefreshToken
		deviceInfo sql.NullString
		expiresAt  string
		consumed   int
		createdAt  string
	)
	err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.FamilyID,
		&token.TokenHash,
		&deviceInfo,
		&expiresAt,
		&consumed,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	token.DeviceInfo = deviceInfo.String
	token.Consumed = consumed != 0
	if token.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}
	if token.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &token, nil
}
