// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"time"
)

// SignupSession is a pending registration that is not yet backed by a User.
type SignupSession struct {
	ID            SignupSessionID
	Email         string
	EmailVerified bool
	Code          string
	SecretHash    string
	ExpiresAt     time.Time
	CreatedAt     time.Time
}

// NewSignupSession creates a validated, unverified SignupSession.
func NewSignupSession(id SignupSessionID, email, code, secretHash string, createdAt, expiresAt time.Time) (*SignupSession, error) {
	if err := validateSessionFields(id.IsZero(), secretHash, createdAt, expiresAt); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	return &SignupSession{
		ID:         id,
		Email:      email,
		Code:       code,
		SecretHash: secretHash,
		ExpiresAt:  expiresAt,
		CreatedAt:  createdAt,
	}, nil
}

// IsExpiredAt reports whether the session is expired at t.
func (s *SignupSession) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

func (s *SignupSession) secretDigest() string { return s.SecretHash }
func (s *SignupSession) expiry() time.Time { return s.ExpiresAt }

// SignupSessionRepository manages signup session persistence.
type SignupSessionRepository interface {
	// Create stores a new signup session. Returns an error wrapping
	// ErrDuplicate if the ID is taken.
	Create(ctx context.Context, session *SignupSession) error

	// GetByID retrieves a signup session by its ID.
	GetByID(ctx context.Context, id SignupSessionID) (*SignupSession, error)

	// MarkEmailVerified flips EmailVerified to true if the session is still
	// unverified and its code equals code. Reports whether the row changed.
	MarkEmailVerified(ctx context.Context, id SignupSessionID, code string) (bool, error)

	// UpdateCode replaces the code of an unverified session and reports
	// whether the row changed.
	UpdateCode(ctx context.Context, id SignupSessionID, code string) (bool, error)

	// Delete removes a signup session and reports whether it existed.
	Delete(ctx context.Context, id SignupSessionID) (bool, error)

	// DeleteByEmail removes all signup sessions for an email.
	DeleteByEmail(ctx context.Context, email string) (int64, error)

	// DeleteExpired removes sessions expired at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
