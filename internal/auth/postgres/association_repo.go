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

// AssociationSessionRepository implements auth.AssociationSessionRepository using PostgreSQL.
type AssociationSessionRepository struct {
	db DB
}

// NewAssociationSessionRepository creates a new AssociationSessionRepository.
func NewAssociationSessionRepository(db DB) *AssociationSessionRepository {
	return &AssociationSessionRepository{db: db}
}

// Create stores a new association challenge.
func (r *AssociationSessionRepository) Create(ctx context.Context, session *auth.AccountAssociationSession) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO account_association_sessions (id, user_id, provider, provider_user_id, secret_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		session.ID.String(),
		session.UserID.String(),
		session.Provider,
		session.ProviderUserID,
		session.SecretHash,
		session.ExpiresAt,
		session.CreatedAt,
	)
	if err != nil {
		return wrapInsert(err, "ASSOCIATION_CREATE_FAILED", "account_association_sessions")
	}
	return nil
}

// GetByID retrieves a challenge by its ID.
func (r *AssociationSessionRepository) GetByID(ctx context.Context, id auth.AssociationSessionID) (*auth.AccountAssociationSession, error) {
	var (
		session   auth.AccountAssociationSession
		userIDStr string
		expiresAt time.Time
		createdAt time.Time
	)
	err := r.db.QueryRow(ctx, `
		SELECT user_id, provider, provider_user_id, secret_hash, expires_at, created_at
		FROM account_association_sessions
		WHERE id = $1
	`, id.String()).Scan(&userIDStr, &session.Provider, &session.ProviderUserID, &session.SecretHash, &expiresAt, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ASSOCIATION_NOT_FOUND").With("association_id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ASSOCIATION_GET_FAILED").
			With("operation", "get association session").
			With("association_id", id.String()).
			Wrap(err)
	}
	userID, err := parseID[auth.UserID](userIDStr, "user_id")
	if err != nil {
		return nil, oops.Code("ASSOCIATION_GET_FAILED").Wrap(err)
	}
	session.ID = id
	session.UserID = userID
	session.ExpiresAt = utc(expiresAt)
	session.CreatedAt = utc(createdAt)
	return &session, nil
}

// Delete removes a challenge and reports whether it existed.
func (r *AssociationSessionRepository) Delete(ctx context.Context, id auth.AssociationSessionID) (bool, error) {
	n, err := execCount(ctx, r.db, "ASSOCIATION_DELETE_FAILED", "delete association session",
		`DELETE FROM account_association_sessions WHERE id = $1`, id.String())
	return n > 0, err
}

// DeleteByUser removes all challenges of a user.
func (r *AssociationSessionRepository) DeleteByUser(ctx context.Context, userID auth.UserID) (int64, error) {
	return execCount(ctx, r.db, "ASSOCIATION_DELETE_FAILED", "delete association sessions by user",
		`DELETE FROM account_association_sessions WHERE user_id = $1`, userID.String())
}

// DeleteExpired removes challenges expired at or before now.
func (r *AssociationSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return execCount(ctx, r.db, "ASSOCIATION_DELETE_EXPIRED_FAILED", "delete expired association sessions",
		`DELETE FROM account_association_sessions WHERE expires_at <= $1`, now)
}

var _ auth.AssociationSessionRepository = (*AssociationSessionRepository)(nil)
