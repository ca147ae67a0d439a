// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"time"

	"github.com/samber/oops"
)

// AccountAssociationSession is the challenge a user must answer before an
// OAuth identity is linked to their existing account.
type AccountAssociationSession struct {
	ID             AssociationSessionID
	UserID         UserID
	Provider       string
	ProviderUserID string
	SecretHash     string
	ExpiresAt      time.Time
	CreatedAt      time.Time
}

// NewAccountAssociationSession creates a validated AccountAssociationSession.
func NewAccountAssociationSession(
	id AssociationSessionID,
	userID UserID,
	provider, providerUserID, secretHash string,
	createdAt, expiresAt time.Time,
) (*AccountAssociationSession, error) {
	if err := validateSessionFields(id.IsZero(), secretHash, createdAt, expiresAt); err != nil {
		return nil, err
	}
	if userID.IsZero() {
		return nil, oops.Code("ASSOCIATION_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if provider == "" || providerUserID == "" {
		return nil, oops.Code("ASSOCIATION_INVALID_ACCOUNT").Errorf("provider identity cannot be empty")
	}
	return &AccountAssociationSession{
		ID:             id,
		UserID:         userID,
		Provider:       provider,
		ProviderUserID: providerUserID,
		SecretHash:     secretHash,
		ExpiresAt:      expiresAt,
		CreatedAt:      createdAt,
	}, nil
}

// IsExpiredAt reports whether the challenge is expired at t.
func (a *AccountAssociationSession) IsExpiredAt(t time.Time) bool {
	return !t.Before(a.ExpiresAt)
}

func (a *AccountAssociationSession) secretDigest() string { return a.SecretHash }
func (a *AccountAssociationSession) expiry() time.Time { return a.ExpiresAt }

// AssociationSessionRepository manages association challenge persistence.
type AssociationSessionRepository interface {
	// Create stores a new challenge. Returns an error wrapping ErrDuplicate
	// if the ID is taken.
	Create(ctx context.Context, session *AccountAssociationSession) error

	// GetByID retrieves a challenge by its ID.
	GetByID(ctx context.Context, id AssociationSessionID) (*AccountAssociationSession, error)

	// Delete removes a challenge and reports whether it existed.
	Delete(ctx context.Context, id AssociationSessionID) (bool, error)

	// DeleteByUser removes all challenges of a user.
	DeleteByUser(ctx context.Context, userID UserID) (int64, error)

	// DeleteExpired removes challenges expired at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
