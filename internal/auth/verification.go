// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"time"

	"github.com/samber/oops"
)

// Verification code configuration.
const (
	VerificationCodeLength = 6
	VerificationCodeExpiry = 15 * time.Minute
)

// EmailVerificationCode is the single active code proving that a user
// controls Email.
type EmailVerificationCode struct {
	ID        VerificationCodeID
	UserID    UserID
	Email     string
	Code      string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// NewEmailVerificationCode creates a validated EmailVerificationCode.
func NewEmailVerificationCode(id VerificationCodeID, userID UserID, email, code string, createdAt, expiresAt time.Time) (*EmailVerificationCode, error) {
	if id.IsZero() {
		return nil, oops.Code("VERIFICATION_INVALID_ID").Errorf("code ID cannot be zero")
	}
	if userID.IsZero() {
		return nil, oops.Code("VERIFICATION_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if code == "" {
		return nil, oops.Code("VERIFICATION_INVALID_CODE").Errorf("code cannot be empty")
	}
	if !expiresAt.After(createdAt) {
		return nil, oops.Code("VERIFICATION_INVALID_EXPIRY").Errorf("expiry must be after creation")
	}
	return &EmailVerificationCode{
		ID:        id,
		UserID:    userID,
		Email:     email,
		Code:      code,
		ExpiresAt: expiresAt,
		CreatedAt: createdAt,
	}, nil
}

// IsExpiredAt reports whether the code is expired at t.
func (c *EmailVerificationCode) IsExpiredAt(t time.Time) bool {
	return !t.Before(c.ExpiresAt)
}

// VerificationCodeRepository manages email verification codes. Each user
// has at most one active code.
type VerificationCodeRepository interface {
	// Replace stores code as the only code of its user, discarding any
	// previous one.
	Replace(ctx context.Context, code *EmailVerificationCode) error

	// Restore stores code only if its user has no code, and reports whether
	// it was stored. It puts back a consumed code without overwriting one
	// issued in the meantime.
	Restore(ctx context.Context, code *EmailVerificationCode) (bool, error)

	// GetByUser retrieves the active code of a user.
	GetByUser(ctx context.Context, userID UserID) (*EmailVerificationCode, error)

	// Consume atomically deletes and returns the user's code if it equals
	// code and is unexpired at now. Returns ErrNotFound otherwise, so of two
	// concurrent calls at most one succeeds.
	Consume(ctx context.Context, userID UserID, code string, now time.Time) (*EmailVerificationCode, error)

	// DeleteByUser removes the code of a user.
	DeleteByUser(ctx context.Context, userID UserID) error

	// DeleteExpired removes codes expired at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
