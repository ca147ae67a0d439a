// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"time"

	"github.com/samber/oops"
)

// PasswordResetSession is a pending password reset for a user.
type PasswordResetSession struct {
	ID         PasswordResetSessionID
	UserID     UserID
	Email      string
	SecretHash string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// NewPasswordResetSession creates a validated PasswordResetSession.
func NewPasswordResetSession(id PasswordResetSessionID, userID UserID, email, secretHash string, createdAt, expiresAt time.Time) (*PasswordResetSession, error) {
	if err := validateSessionFields(id.IsZero(), secretHash, createdAt, expiresAt); err != nil {
		return nil, err
	}
	if userID.IsZero() {
		return nil, oops.Code("RESET_INVALID_USER").Errorf("user ID cannot be zero")
	}
	return &PasswordResetSession{
		ID:         id,
		UserID:     userID,
		Email:      email,
		SecretHash: secretHash,
		ExpiresAt:  expiresAt,
		CreatedAt:  createdAt,
	}, nil
}

// IsExpiredAt reports whether the reset is expired at t.
func (r *PasswordResetSession) IsExpiredAt(t time.Time) bool {
	return !t.Before(r.ExpiresAt)
}

func (r *PasswordResetSession) secretDigest() string { return r.SecretHash }
func (r *PasswordResetSession) expiry() time.Time { return r.ExpiresAt }

// PasswordResetSessionRepository manages password reset persistence.
type PasswordResetSessionRepository interface {
	// Create stores a new reset session. Returns an error wrapping
	// ErrDuplicate if the ID is taken.
	Create(ctx context.Context, reset *PasswordResetSession) error

	// GetByID retrieves a reset session by its ID.
	GetByID(ctx context.Context, id PasswordResetSessionID) (*PasswordResetSession, error)

	// Delete removes a reset session and reports whether it existed.
	Delete(ctx context.Context, id PasswordResetSessionID) (bool, error)

	// DeleteByUser removes all reset sessions of a user.
	DeleteByUser(ctx context.Context, userID UserID) (int64, error)

	// DeleteExpired removes reset sessions expired at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
