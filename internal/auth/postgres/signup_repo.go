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

// SignupSessionRepository implements auth.SignupSessionRepository using PostgreSQL.
type SignupSessionRepository struct {
	db DB
}

// NewSignupSessionRepository creates a new SignupSessionRepository.
func NewSignupSessionRepository(db DB) *SignupSessionRepository {
	return &SignupSessionRepository{db: db}
}

// Create stores a new signup session.
func (r *SignupSessionRepository) Create(ctx context.Context, session *auth.SignupSession) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO signup_sessions (id, email, email_verified, code, secret_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		session.ID.String(),
		session.Email,
		session.EmailVerified,
		session.Code,
		session.SecretHash,
		session.ExpiresAt,
		session.CreatedAt,
	)
	if err != nil {
		return wrapInsert(err, "SIGNUP_CREATE_FAILED", "signup_sessions")
	}
	return nil
}

// GetByID retrieves a signup session by its ID.
func (r *SignupSessionRepository) GetByID(ctx context.Context, id auth.SignupSessionID) (*auth.SignupSession, error) {
	var (
		session   auth.SignupSession
		expiresAt time.Time
		createdAt time.Time
	)
	err := r.db.QueryRow(ctx, `
		SELECT email, email_verified, code, secret_hash, expires_at, created_at
		FROM signup_sessions
		WHERE id = $1
	`, id.String()).Scan(&session.Email, &session.EmailVerified, &session.Code, &session.SecretHash, &expiresAt, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SIGNUP_NOT_FOUND").With("signup_id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SIGNUP_GET_FAILED").
			With("operation", "get signup session").
			With("signup_id", id.String()).
			Wrap(err)
	}
	session.ID = id
	session.ExpiresAt = utc(expiresAt)
	session.CreatedAt = utc(createdAt)
	return &session, nil
}

// MarkEmailVerified flips email_verified if the session is unverified and
// its code matches. Concurrent callers race on the row lock, so at most one
// sees a changed row.
func (r *SignupSessionRepository) MarkEmailVerified(ctx context.Context, id auth.SignupSessionID, code string) (bool, error) {
	n, err := execCount(ctx, r.db, "SIGNUP_UPDATE_FAILED", "mark signup email verified", `
		UPDATE signup_sessions SET email_verified = TRUE
		WHERE id = $1 AND code = $2 AND NOT email_verified
	`, id.String(), code)
	return n > 0, err
}

// UpdateCode replaces the code of an unverified session.
func (r *SignupSessionRepository) UpdateCode(ctx context.Context, id auth.SignupSessionID, code string) (bool, error) {
	n, err := execCount(ctx, r.db, "SIGNUP_UPDATE_FAILED", "update signup code", `
		UPDATE signup_sessions SET code = $2
		WHERE id = $1 AND NOT email_verified
	`, id.String(), code)
	return n > 0, err
}

// Delete removes a signup session and reports whether it existed.
func (r *SignupSessionRepository) Delete(ctx context.Context, id auth.SignupSessionID) (bool, error) {
	n, err := execCount(ctx, r.db, "SIGNUP_DELETE_FAILED", "delete signup session",
		`DELETE FROM signup_sessions WHERE id = $1`, id.String())
	return n > 0, err
}

// DeleteByEmail removes all signup sessions for an email.
func (r *SignupSessionRepository) DeleteByEmail(ctx context.Context, email string) (int64, error) {
	return execCount(ctx, r.db, "SIGNUP_DELETE_FAILED", "delete signup sessions by email",
		`DELETE FROM signup_sessions WHERE email = $1`, email)
}

// DeleteExpired removes sessions expired at or before now.
func (r *SignupSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return execCount(ctx, r.db, "SIGNUP_DELETE_EXPIRED_FAILED", "delete expired signup sessions",
		`DELETE FROM signup_sessions WHERE expires_at <= $1`, now)
}

var _ auth.SignupSessionRepository = (*SignupSessionRepository)(nil)
