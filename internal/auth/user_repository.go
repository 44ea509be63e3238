package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// UserRepository persists user accounts.
type UserRepository interface {
	// Create stores a new user. Returns ErrEmailExists if the email is
	// already registered.
	Create(ctx context.Context, user *User) error

	// GetByID returns a user by id. Returns ErrUserNotFound if no user
	// exists.
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByEmail returns a user by email. Returns ErrUserNotFound if no
	// user exists. Lookup is case-insensitive.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// List returns all users ordered by creation time.
	List(ctx context.Context) ([]*User, error)

	// UpdatePassword replaces a user's password hash.
	UpdatePassword(ctx context.Context, id, passwordHash string) error

	// UpdatePasswordTx is UpdatePassword inside an existing transaction,
	// for use from OneShotRepository.Redeem.
	UpdatePasswordTx(ctx context.Context, tx *sql.Tx, id, passwordHash string) error

	// MarkEmailVerifiedTx flags a user's email as verified inside an
	// existing transaction.
	MarkEmailVerifiedTx(ctx context.Context, tx *sql.Tx, id string) error

	// SetActive enables or disables an account.
	SetActive(ctx context.Context, id string, active bool) error

	// Delete removes a user. Refresh tokens cascade.
	Delete(ctx context.Context, id string) error
}

// SQLiteUserRepository implements UserRepository on SQLite.
type SQLiteUserRepository struct {
	db *sql.DB
}

// NewSQLiteUserRepository creates a user repository.
func NewSQLiteUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

const userColumns = `id, email, display_name, password_hash, role, is_active, email_verified, created_at, updated_at`

func (r *SQLiteUserRepository) Create(ctx context.Context, user *User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		strings.ToLower(user.Email),
		user.DisplayName,
		user.PasswordHash,
		string(user.Role),
		boolToInt(user.IsActive),
		boolToInt(user.EmailVerified),
		formatTime(user.CreatedAt),
		formatTime(user.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return getUser(row)
}

func (r *SQLiteUserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, strings.ToLower(email))
	return getUser(row)
}

func getUser(row scanner) (*User, error) {
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return user, nil
}

func (r *SQLiteUserRepository) List(ctx context.Context) ([]*User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

func (r *SQLiteUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.updatePassword(ctx, r.db, id, passwordHash)
}

func (r *SQLiteUserRepository) UpdatePasswordTx(ctx context.Context, tx *sql.Tx, id, passwordHash string) error {
	return r.updatePassword(ctx, tx, id, passwordHash)
}

func (r *SQLiteUserRepository) updatePassword(ctx context.Context, ex execer, id, passwordHash string) error {
	res, err := ex.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	return requireRow(res, ErrUserNotFound)
}

func (r *SQLiteUserRepository) MarkEmailVerifiedTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE users SET email_verified = 1, updated_at = ? WHERE id = ?`,
		formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("marking email verified: %w", err)
	}
	return requireRow(res, ErrUserNotFound)
}

func (r *SQLiteUserRepository) SetActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`,
		boolToInt(active), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("setting user active: %w", err)
	}
	return requireRow(res, ErrUserNotFound)
}

func (r *SQLiteUserRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return requireRow(res, ErrUserNotFound)
}

func scanUser(row scanner) (*User, error) {
	var (
		user          User
		role          string
		isActive      int
		emailVerified int
		createdAt     string
		updatedAt     string
	)
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.PasswordHash,
		&role,
		&isActive,
		&emailVerified,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Role = Role(role)
	user.IsActive = isActive != 0
	user.EmailVerified = emailVerified != 0
	if user.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if user.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &user, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// sqlTimeFormat is RFC 3339 with fixed-width nanoseconds. The fixed width
// keeps lexicographic order equal to chronological order, which the SQL
// comparisons on expires_at and revoked_at rely on.
const sqlTimeFormat = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(sqlTimeFormat)
}

// parseTime accepts both RFC3339 and RFC3339Nano timestamps.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}
