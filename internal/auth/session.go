// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"time"

	"github.com/samber/oops"
)

// LoginSession is an authenticated session of a user.
type LoginSession struct {
	ID         LoginSessionID
	UserID     UserID
	SecretHash string
	// Fresh is true only on the session returned by the sign-in that
	// created it. The first validation clears it.
	Fresh     bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// NewLoginSession creates a validated, fresh LoginSession.
func NewLoginSession(id LoginSessionID, userID UserID, secretHash string, createdAt, expiresAt time.Time) (*LoginSession, error) {
	if err := validateSessionFields(id.IsZero(), secretHash, createdAt, expiresAt); err != nil {
		return nil, err
	}
	if userID.IsZero() {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be zero")
	}
	return &LoginSession{
		ID:         id,
		UserID:     userID,
		SecretHash: secretHash,
		Fresh:      true,
		ExpiresAt:  expiresAt,
		CreatedAt:  createdAt,
	}, nil
}

// IsExpiredAt reports whether the session is expired at t. A session is
// invalid from the instant of ExpiresAt onwards.
func (s *LoginSession) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

func (s *LoginSession) secretDigest() string { return s.SecretHash }
func (s *LoginSession) expiry() time.Time { return s.ExpiresAt }

// validateSessionFields checks the fields every session kind shares.
func validateSessionFields(zeroID bool, secretHash string, createdAt, expiresAt time.Time) error {
	if zeroID {
		return oops.Code("SESSION_INVALID_ID").Errorf("session ID cannot be zero")
	}
	if secretHash == "" {
		return oops.Code("SESSION_INVALID_HASH").Errorf("secret hash cannot be empty")
	}
	if expiresAt.IsZero() {
		return oops.Code("SESSION_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}
	if !expiresAt.After(createdAt) {
		return oops.Code("SESSION_INVALID_EXPIRY").Errorf("expiry must be after creation")
	}
	return nil
}

// LoginSessionRepository manages login session persistence.
type LoginSessionRepository interface {
	// Create stores a new session. Returns an error wrapping ErrDuplicate
	// if the ID is taken.
	Create(ctx context.Context, session *LoginSession) error

	// GetByID retrieves a session by its ID.
	GetByID(ctx context.Context, id LoginSessionID) (*LoginSession, error)

	// GetByUser retrieves all sessions of a user, newest first.
	GetByUser(ctx context.Context, userID UserID) ([]*LoginSession, error)

	// Renew moves the expiry of a session and clears its Fresh flag.
	Renew(ctx context.Context, id LoginSessionID, expiresAt time.Time) error

	// ClearFresh clears the Fresh flag of a session. A missing session is
	// not an error.
	ClearFresh(ctx context.Context, id LoginSessionID) error

	// Delete removes a session by ID and reports whether it existed.
	Delete(ctx context.Context, id LoginSessionID) (bool, error)

	// DeleteByUser removes all sessions of a user.
	DeleteByUser(ctx context.Context, userID UserID) (int64, error)

	// DeleteExpired removes sessions expired at or before now and returns
	// the count of deleted records.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
