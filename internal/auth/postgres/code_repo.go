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

// VerificationCodeRepository implements auth.VerificationCodeRepository
// using PostgreSQL. A user holds at most one code; user_id is the key.
type VerificationCodeRepository struct {
	db DB
}

// NewVerificationCodeRepository creates a new VerificationCodeRepository.
func NewVerificationCodeRepository(db DB) *VerificationCodeRepository {
	return &VerificationCodeRepository{db: db}
}

// Replace stores code as the only code of its user.
func (r *VerificationCodeRepository) Replace(ctx context.Context, code *auth.EmailVerificationCode) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO email_verification_codes (user_id, id, email, code, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE
		SET id = EXCLUDED.id, email = EXCLUDED.email, code = EXCLUDED.code,
			expires_at = EXCLUDED.expires_at, created_at = EXCLUDED.created_at
	`,
		code.UserID.String(),
		code.ID.String(),
		code.Email,
		code.Code,
		code.ExpiresAt,
		code.CreatedAt,
	)
	if err != nil {
		return wrapInsert(err, "VERIFICATION_CODE_SAVE_FAILED", "email_verification_codes")
	}
	return nil
}

// Restore stores code if its user has no code.
func (r *VerificationCodeRepository) Restore(ctx context.Context, code *auth.EmailVerificationCode) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO email_verification_codes (user_id, id, email, code, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO NOTHING
	`,
		code.UserID.String(),
		code.ID.String(),
		code.Email,
		code.Code,
		code.ExpiresAt,
		code.CreatedAt,
	)
	if err != nil {
		return false, wrapInsert(err, "VERIFICATION_CODE_SAVE_FAILED", "email_verification_codes")
	}
	return tag.RowsAffected() > 0, nil
}

// GetByUser retrieves the active code of a user.
func (r *VerificationCodeRepository) GetByUser(ctx context.Context, userID auth.UserID) (*auth.EmailVerificationCode, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, email, code, expires_at, created_at
		FROM email_verification_codes
		WHERE user_id = $1
	`, userID.String())
	code, err := scanCode(row, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("VERIFICATION_CODE_NOT_FOUND").With("user_id", userID.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("VERIFICATION_CODE_GET_FAILED").
			With("operation", "get verification code").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return code, nil
}

// Consume deletes and returns the user's code in one statement, so at most
// one of several concurrent callers gets the row back.
func (r *VerificationCodeRepository) Consume(ctx context.Context, userID auth.UserID, code string, now time.Time) (*auth.EmailVerificationCode, error) {
	row := r.db.QueryRow(ctx, `
		DELETE FROM email_verification_codes
		WHERE user_id = $1 AND code = $2 AND expires_at > $3
		RETURNING id, email, code, expires_at, created_at
	`, userID.String(), code, now)
	consumed, err := scanCode(row, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("VERIFICATION_CODE_NOT_FOUND").With("user_id", userID.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("VERIFICATION_CODE_CONSUME_FAILED").
			With("operation", "consume verification code").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return consumed, nil
}

// DeleteByUser removes the code of a user.
func (r *VerificationCodeRepository) DeleteByUser(ctx context.Context, userID auth.UserID) error {
	_, err := execCount(ctx, r.db, "VERIFICATION_CODE_DELETE_FAILED", "delete verification code",
		`DELETE FROM email_verification_codes WHERE user_id = $1`, userID.String())
	return err
}

// DeleteExpired removes codes expired at or before now.
func (r *VerificationCodeRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return execCount(ctx, r.db, "VERIFICATION_CODE_DELETE_EXPIRED_FAILED", "delete expired verification codes",
		`DELETE FROM email_verification_codes WHERE expires_at <= $1`, now)
}

func scanCode(row rowScanner, userID auth.UserID) (*auth.EmailVerificationCode, error) {
	var (
		code      auth.EmailVerificationCode
		idStr     string
		expiresAt time.Time
		createdAt time.Time
	)
	if err := row.Scan(&idStr, &code.Email, &code.Code, &expiresAt, &createdAt); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with operation context
	}
	id, err := parseID[auth.VerificationCodeID](idStr, "code_id")
	if err != nil {
		return nil, err
	}
	code.ID = id
	code.UserID = userID
	code.ExpiresAt = utc(expiresAt)
	code.CreatedAt = utc(createdAt)
	return &code, nil
}

var _ auth.VerificationCodeRepository = (*VerificationCodeRepository)(nil)
