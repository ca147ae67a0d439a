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

const loginSessionColumns = `id, user_id, secret_hash, fresh, expires_at, created_at`

// LoginSessionRepository implements auth.LoginSessionRepository using PostgreSQL.
type LoginSessionRepository struct {
	db DB
}

// NewLoginSessionRepository creates a new LoginSessionRepository.
func NewLoginSessionRepository(db DB) *LoginSessionRepository {
	return &LoginSessionRepository{db: db}
}

// Create stores a new login session.
func (r *LoginSessionRepository) Create(ctx context.Context, session *auth.LoginSession) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO login_sessions (id, user_id, secret_hash, fresh, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		session.ID.String(),
		session.UserID.String(),
		session.SecretHash,
		session.Fresh,
		session.ExpiresAt,
		session.CreatedAt,
	)
	if err != nil {
		return wrapInsert(err, "SESSION_CREATE_FAILED", "login_sessions")
	}
	return nil
}

// GetByID retrieves a session by its ID.
func (r *LoginSessionRepository) GetByID(ctx context.Context, id auth.LoginSessionID) (*auth.LoginSession, error) {
	row := r.db.QueryRow(ctx, `SELECT `+loginSessionColumns+` FROM login_sessions WHERE id = $1`, id.String())
	session, err := scanLoginSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").With("session_id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").
			With("operation", "get session by id").
			With("session_id", id.String()).
			Wrap(err)
	}
	return session, nil
}

// GetByUser retrieves all sessions of a user, newest first.
func (r *LoginSessionRepository) GetByUser(ctx context.Context, userID auth.UserID) ([]*auth.LoginSession, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+loginSessionColumns+`
		FROM login_sessions
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID.String())
	if err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").
			With("operation", "list sessions by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var sessions []*auth.LoginSession
	for rows.Next() {
		session, err := scanLoginSession(rows)
		if err != nil {
			return nil, oops.Code("SESSION_SCAN_FAILED").With("operation", "scan session row").Wrap(err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("SESSION_ROWS_ERROR").With("operation", "iterate session rows").Wrap(err)
	}
	return sessions, nil
}

// Renew moves the expiry of a session and clears its Fresh flag.
func (r *LoginSessionRepository) Renew(ctx context.Context, id auth.LoginSessionID, expiresAt time.Time) error {
	n, err := execCount(ctx, r.db, "SESSION_RENEW_FAILED", "renew session", `
		UPDATE login_sessions SET expires_at = $2, fresh = FALSE
		WHERE id = $1
	`, id.String(), expiresAt)
	if err != nil {
		return err
	}
	if n == 0 {
		return oops.Code("SESSION_NOT_FOUND").With("session_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// ClearFresh clears the Fresh flag of a session.
func (r *LoginSessionRepository) ClearFresh(ctx context.Context, id auth.LoginSessionID) error {
	_, err := execCount(ctx, r.db, "SESSION_UPDATE_FAILED", "clear fresh flag", `
		UPDATE login_sessions SET fresh = FALSE
		WHERE id = $1 AND fresh
	`, id.String())
	return err
}

// Delete removes a session by ID and reports whether it existed.
func (r *LoginSessionRepository) Delete(ctx context.Context, id auth.LoginSessionID) (bool, error) {
	n, err := execCount(ctx, r.db, "SESSION_DELETE_FAILED", "delete session",
		`DELETE FROM login_sessions WHERE id = $1`, id.String())
	return n > 0, err
}

// DeleteByUser removes all sessions of a user.
func (r *LoginSessionRepository) DeleteByUser(ctx context.Context, userID auth.UserID) (int64, error) {
	return execCount(ctx, r.db, "SESSION_DELETE_FAILED", "delete sessions by user",
		`DELETE FROM login_sessions WHERE user_id = $1`, userID.String())
}

// DeleteExpired removes sessions expired at or before now.
func (r *LoginSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return execCount(ctx, r.db, "SESSION_DELETE_EXPIRED_FAILED", "delete expired sessions",
		`DELETE FROM login_sessions WHERE expires_at <= $1`, now)
}

func scanLoginSession(row rowScanner) (*auth.LoginSession, error) {
	var (
		session   auth.LoginSession
		idStr     string
		userIDStr string
		expiresAt time.Time
		createdAt time.Time
	)
	if err := row.Scan(&idStr, &userIDStr, &session.SecretHash, &session.Fresh, &expiresAt, &createdAt); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with operation context
	}
	id, err := parseID[auth.LoginSessionID](idStr, "session_id")
	if err != nil {
		return nil, err
	}
	userID, err := parseID[auth.UserID](userIDStr, "user_id")
	if err != nil {
		return nil, err
	}
	session.ID = id
	session.UserID = userID
	session.ExpiresAt = utc(expiresAt)
	session.CreatedAt = utc(createdAt)
	return &session, nil
}

var _ auth.LoginSessionRepository = (*LoginSessionRepository)(nil)
