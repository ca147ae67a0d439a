// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres implements the auth repositories on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

// DB is the subset of *pgxpool.Pool the repositories use.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// execer is satisfied by both DB and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// Store groups the PostgreSQL repositories over one pool.
type Store struct {
	db DB
}

// New creates a Store backed by db.
func New(db DB) *Store {
	return &Store{db: db}
}

// Deps returns auth.Deps with every repository set. Callers fill in the
// hashers, random source, and email sender.
func (s *Store) Deps() auth.Deps {
	return auth.Deps{
		Users:               NewUserRepository(s.db),
		Credentials:         NewCredentialRepository(s.db),
		OAuthAccounts:       NewOAuthAccountRepository(s.db),
		LoginSessions:       NewLoginSessionRepository(s.db),
		SignupSessions:      NewSignupSessionRepository(s.db),
		ResetSessions:       NewPasswordResetSessionRepository(s.db),
		AssociationSessions: NewAssociationSessionRepository(s.db),
		Codes:               NewVerificationCodeRepository(s.db),
	}
}

// isUniqueViolation reports whether err is a unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// constraintName returns the violated constraint, if any.
func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

// wrapInsert maps unique violations to auth.ErrDuplicate and wraps anything
// else with code.
func wrapInsert(err error, code, table string) error {
	if isUniqueViolation(err) {
		return oops.Code(code).
			With("table", table).
			With("constraint", constraintName(err)).
			Wrapf(auth.ErrDuplicate, "insert %s", table)
	}
	return oops.Code(code).With("operation", "insert "+table).Wrap(err)
}

// parseID parses a stored ULID column into a typed ID.
func parseID[T ~[16]byte](s, field string) (T, error) {
	id, err := auth.ParseID[T](s)
	if err != nil {
		return id, oops.With("operation", "parse "+field).Wrap(err)
	}
	return id, nil
}

// utc normalizes a scanned timestamp.
func utc(t time.Time) time.Time { return t.UTC() }

// execCount runs a statement and returns the affected row count.
func execCount(ctx context.Context, db DB, code, operation, sql string, args ...any) (int64, error) {
	result, err := db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, oops.Code(code).With("operation", operation).Wrap(err)
	}
	return result.RowsAffected(), nil
}
