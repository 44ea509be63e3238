package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RevocationRepository records families and subjects whose outstanding
// tokens must no longer verify.
//
// Revocation is additive only: entries accumulate until Prune removes the
// ones too old to matter. A family entry kills every token of that family;
// a subject entry kills every token of that subject issued at or before the
// revocation instant, so tokens issued by a later login verify again.
type RevocationRepository interface {
	RevokeFamily(ctx context.Context, familyID string, revokedAt time.Time) error
	RevokeSubject(ctx context.Context, subjectID string, revokedAt time.Time) error

	// IsRevoked reports whether a token with the given family, subject
	// and issue time is covered by any revocation entry.
	IsRevoked(ctx context.Context, familyID, subjectID string, issuedAt time.Time) (bool, error)

	// Prune removes entries recorded before the cutoff and returns the
	// number removed. Safe once the cutoff predates every live token.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// SQLiteRevocationRepository implements RevocationRepository on SQLite.
type SQLiteRevocationRepository struct {
	db *sql.DB
}

// NewSQLiteRevocationRepository creates a revocation repository.
func NewSQLiteRevocationRepository(db *sql.DB) *SQLiteRevocationRepository {
	return &SQLiteRevocationRepository{db: db}
}

func (r *SQLiteRevocationRepository) RevokeFamily(ctx context.Context, familyID string, revokedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO revocations (id, family_id, subject_id, revoked_at)
		VALUES (?, ?, NULL, ?)`,
		uuid.NewString(), familyID, formatTime(revokedAt))
	if err != nil {
		return fmt.Errorf("revoking family: %w", err)
	}
	return nil
}

func (r *SQLiteRevocationRepository) RevokeSubject(ctx context.Context, subjectID string, revokedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO revocations (id, family_id, subject_id, revoked_at)
		VALUES (?, NULL, ?, ?)`,
		uuid.NewString(), subjectID, formatTime(revokedAt))
	if err != nil {
		return fmt.Errorf("revoking subject: %w", err)
	}
	return nil
}

// IsRevoked checks family revocations by exact match and subject
// revocations by revoked_at >= issuedAt. Timestamps are stored fixed-width
// so the comparison happens in SQL as plain string ordering.
func (r *SQLiteRevocationRepository) IsRevoked(ctx context.Context, familyID, subjectID string, issuedAt time.Time) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM revocations
		WHERE (family_id = ?)
		   OR (subject_id = ? AND revoked_at >= ?)`,
		familyID, subjectID, formatTime(issuedAt)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking revocation: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRevocationRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM revocations WHERE revoked_at < ?`,
		formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("pruning revocations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning revocations: %w", err)
	}
	return n, nil
}
