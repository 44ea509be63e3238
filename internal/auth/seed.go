package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SeedAdmin ensures an admin account exists on first boot. If the email
// is already registered the call is a no-op, so it is safe to run on
// every start.
func SeedAdmin(ctx context.Context, users UserRepository, email, password string) (*User, error) {
	if !IsValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	existing, err := users.GetByEmail(ctx, email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing seed password: %w", err)
	}

	now := time.Now()
	admin := &User{
		ID:            uuid.NewString(),
		Email:         email,
		DisplayName:   "Administrator",
		PasswordHash:  hash,
		Role:          RoleAdmin,
		IsActive:      true,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := users.Create(ctx, admin); err != nil {
		if errors.Is(err, ErrEmailExists) {
			// Lost a race with another instance; fetch the winner.
			return users.GetByEmail(ctx, email)
		}
		return nil, err
	}
	return admin, nil
}
