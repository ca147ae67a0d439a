// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/samber/oops"
)

// MaxEmailLength is the longest address accepted (RFC 5321 path limit).
const MaxEmailLength = 254

// User is an activated account.
type User struct {
	ID            UserID
	Email         string
	EmailVerified bool
	Name          string
	IconURL       string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UserCredential is the long-term password credential of a user.
// PasswordHash is nil for accounts that only sign in through OAuth.
type UserCredential struct {
	UserID         UserID
	PasswordHash   *string
	FailedAttempts int
	LockedUntil    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasPassword reports whether the account can sign in with a password.
func (c *UserCredential) HasPassword() bool {
	return c != nil && c.PasswordHash != nil && *c.PasswordHash != ""
}

// IsLockedAt reports whether the credential is locked out at t.
func (c *UserCredential) IsLockedAt(t time.Time) bool {
	return IsLockedOut(c.LockedUntil, t)
}

// WithFailure returns a copy with one more failed attempt recorded.
func (c UserCredential) WithFailure(now time.Time) UserCredential {
	c.FailedAttempts++
	c.LockedUntil = ComputeLockoutTime(c.FailedAttempts, now)
	c.UpdatedAt = now
	return c
}

// WithSuccess returns a copy with the failure counter and lockout cleared.
func (c UserCredential) WithSuccess(now time.Time) UserCredential {
	c.FailedAttempts = 0
	c.LockedUntil = nil
	c.UpdatedAt = now
	return c
}

// OAuthAccount binds a provider identity to a user.
type OAuthAccount struct {
	ID             OAuthAccountID
	UserID         UserID
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks that email is a single bare address.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code(CodeEmailInvalid).Errorf("email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return oops.Code(CodeEmailInvalid).
			With("max", MaxEmailLength).
			Errorf("email must be at most %d characters", MaxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return oops.Code(CodeEmailInvalid).Errorf("email address is not valid")
	}
	return nil
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a user together with its credential and, optionally,
	// its first OAuth account, atomically. Returns an error wrapping
	// ErrDuplicate if the email or the OAuth identity is already taken.
	Create(ctx context.Context, user *User, cred *UserCredential, account *OAuthAccount) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id UserID) (*User, error)

	// GetByEmail retrieves a user by normalized email.
	// Returns ErrNotFound if no user has the given email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// MarkEmailVerified sets the user's email and flags it verified.
	// Returns an error wrapping ErrDuplicate if another user owns email.
	MarkEmailVerified(ctx context.Context, id UserID, email string) error
}

// CredentialRepository manages password credentials.
type CredentialRepository interface {
	// GetByUser retrieves the credential of a user.
	GetByUser(ctx context.Context, userID UserID) (*UserCredential, error)

	// Update stores the failure counter and lockout state.
	Update(ctx context.Context, cred *UserCredential) error

	// UpdatePassword replaces the password hash and clears any lockout.
	UpdatePassword(ctx context.Context, userID UserID, passwordHash string) error
}

// OAuthAccountRepository manages provider account links.
type OAuthAccountRepository interface {
	// Create stores a new link. Returns an error wrapping ErrDuplicate if
	// the provider identity is already linked.
	Create(ctx context.Context, account *OAuthAccount) error

	// GetByProviderUser retrieves the link for a provider identity.
	GetByProviderUser(ctx context.Context, provider, providerUserID string) (*OAuthAccount, error)

	// GetByUser lists the links of a user.
	GetByUser(ctx context.Context, userID UserID) ([]*OAuthAccount, error)
}
