// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

// PasswordResetSessionRepository implements auth.PasswordResetSessionRepository using PostgreSQL.
type PasswordResetSessionRepository struct {
	db DB
}

// NewPasswordResetSessionRepository creates a new PasswordResetSessionRepository.
func NewPasswordResetSessionRepository(db DB) *PasswordResetSessionRepository {
	return &PasswordResetSessionRepository{db: db}
}

// Create stores a new reset session.
func (r *PasswordResetSessionRepository) Create(ctx context.Context, reset *auth.PasswordResetSession) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO password_reset_sessions (id, user_id, email, secret_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		reset.ID.String(),
		reset.UserID.String(),
		reset.Email,
		reset.SecretHash,
		reset.ExpiresAt,
		reset.CreatedAt,
	)
	if err != nil {
		return wrapInsert(err, "RESET_CREATE_FAILED", "password_reset_sessions")
	}
	return nil
}

// GetByID retrieves a reset session by its ID.
func (r *PasswordResetSessionRepository) GetByID(ctx context.Context, id auth.PasswordResetSessionID) (*auth.PasswordResetSession, error) {
	var (
		reset     auth.PasswordResetSession
		userIDStr string
		expiresAt time.Time
		createdAt time.Time
	)
	err := r.db.QueryRow(ctx, `
		SELECT user_id, email, secret_hash, expires_at, created_at
		FROM password_reset_sessions
		WHERE id = $1
	`, id.String()).Scan(&userIDStr, &reset.Email, &reset.SecretHash, &expiresAt, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("RESET_NOT_FOUND").With("reset_id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("RESET_GET_FAILED").
			With("operation", "get reset session").
			With("reset_id", id.String()).
			Wrap(err)
	}
	userID, err := parseID[auth.UserID](userIDStr, "user_id")
	if err != nil {
		return nil, oops.Code("RESET_GET_FAILED").Wrap(err)
	}
	reset.ID = id
	reset.UserID = userID
	reset.ExpiresAt = utc(expiresAt)
	reset.CreatedAt = utc(createdAt)
	return &reset, nil
}

// Delete removes a reset session and reports whether it existed.
func (r *PasswordResetSessionRepository) Delete(ctx context.Context, id auth.PasswordResetSessionID) (bool, error) {
	n, err := execCount(ctx, r.db, "RESET_DELETE_FAILED", "delete reset session",
		`DELETE FROM password_reset_sessions WHERE id = $1`, id.String())
	return n > 0, err
}

// DeleteByUser removes all reset sessions of a user.
func (r *PasswordResetSessionRepository) DeleteByUser(ctx context.Context, userID auth.UserID) (int64, error) {
	return execCount(ctx, r.db, "RESET_DELETE_FAILED", "delete reset sessions by user",
		`DELETE FROM password_reset_sessions WHERE user_id = $1`, userID.String())
}

// DeleteExpired removes reset sessions expired at or before now.
func (r *PasswordResetSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return execCount(ctx, r.db, "RESET_DELETE_EXPIRED_FAILED", "delete expired reset sessions",
		`DELETE FROM password_reset_sessions WHERE expires_at <= $1`, now)
}

var _ auth.PasswordResetSessionRepository = (*PasswordResetSessionRepository)(nil)
