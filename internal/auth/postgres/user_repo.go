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

const userColumns = `id, email, email_verified, name, icon_url, created_at, updated_at`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	db DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts the user, its credential, and the optional first OAuth
// account in one transaction.
func (r *UserRepository) Create(ctx context.Context, user *auth.User, cred *auth.UserCredential, account *auth.OAuthAccount) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").With("operation", "begin transaction").Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.Exec(ctx, `
		INSERT INTO users (id, email, email_verified, name, icon_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		user.ID.String(),
		user.Email,
		user.EmailVerified,
		user.Name,
		user.IconURL,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return wrapInsert(err, "USER_CREATE_FAILED", "users")
	}

	if cred != nil {
		_, err = tx.Exec(ctx, `
			INSERT INTO user_credentials (user_id, password_hash, failed_attempts, locked_until, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`,
			user.ID.String(),
			cred.PasswordHash,
			cred.FailedAttempts,
			cred.LockedUntil,
			cred.CreatedAt,
			cred.UpdatedAt,
		)
		if err != nil {
			return wrapInsert(err, "USER_CREATE_FAILED", "user_credentials")
		}
	}

	if account != nil {
		if err := insertOAuthAccount(ctx, tx, account); err != nil {
			return wrapInsert(err, "USER_CREATE_FAILED", "oauth_accounts")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("USER_CREATE_FAILED").With("operation", "commit transaction").Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id auth.UserID) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id.String())
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user by id").
			With("user_id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// GetByEmail retrieves a user by normalized email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").With("operation", "get user by email").Wrap(err)
	}
	return user, nil
}

// MarkEmailVerified sets the user's email and flags it verified.
func (r *UserRepository) MarkEmailVerified(ctx context.Context, id auth.UserID, email string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE users SET email = $2, email_verified = TRUE, updated_at = $3
		WHERE id = $1
	`, id.String(), email, time.Now().UTC())
	if isUniqueViolation(err) {
		return oops.Code("USER_UPDATE_FAILED").
			With("user_id", id.String()).
			Wrapf(auth.ErrDuplicate, "email taken")
	}
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "mark email verified").
			With("user_id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		user      auth.User
		idStr     string
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&idStr, &user.Email, &user.EmailVerified, &user.Name, &user.IconURL, &createdAt, &updatedAt); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with operation context
	}
	id, err := parseID[auth.UserID](idStr, "user_id")
	if err != nil {
		return nil, err
	}
	user.ID = id
	user.CreatedAt = utc(createdAt)
	user.UpdatedAt = utc(updatedAt)
	return &user, nil
}

// CredentialRepository implements auth.CredentialRepository using PostgreSQL.
type CredentialRepository struct {
	db DB
}

// NewCredentialRepository creates a new CredentialRepository.
func NewCredentialRepository(db DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// GetByUser retrieves the credential of a user.
func (r *CredentialRepository) GetByUser(ctx context.Context, userID auth.UserID) (*auth.UserCredential, error) {
	var (
		cred      auth.UserCredential
		createdAt time.Time
		updatedAt time.Time
	)
	err := r.db.QueryRow(ctx, `
		SELECT password_hash, failed_attempts, locked_until, created_at, updated_at
		FROM user_credentials
		WHERE user_id = $1
	`, userID.String()).Scan(&cred.PasswordHash, &cred.FailedAttempts, &cred.LockedUntil, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("CREDENTIAL_NOT_FOUND").With("user_id", userID.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("CREDENTIAL_GET_FAILED").
			With("operation", "get credential").
			With("user_id", userID.String()).
			Wrap(err)
	}
	cred.UserID = userID
	cred.CreatedAt = utc(createdAt)
	cred.UpdatedAt = utc(updatedAt)
	return &cred, nil
}

// Update stores the failure counter and lockout state.
func (r *CredentialRepository) Update(ctx context.Context, cred *auth.UserCredential) error {
	result, err := r.db.Exec(ctx, `
		UPDATE user_credentials SET failed_attempts = $2, locked_until = $3, updated_at = $4
		WHERE user_id = $1
	`, cred.UserID.String(), cred.FailedAttempts, cred.LockedUntil, cred.UpdatedAt)
	if err != nil {
		return oops.Code("CREDENTIAL_UPDATE_FAILED").
			With("operation", "update credential").
			With("user_id", cred.UserID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("CREDENTIAL_NOT_FOUND").With("user_id", cred.UserID.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// UpdatePassword replaces the password hash and clears any lockout.
func (r *CredentialRepository) UpdatePassword(ctx context.Context, userID auth.UserID, passwordHash string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE user_credentials
		SET password_hash = $2, failed_attempts = 0, locked_until = NULL, updated_at = $3
		WHERE user_id = $1
	`, userID.String(), passwordHash, time.Now().UTC())
	if err != nil {
		return oops.Code("CREDENTIAL_UPDATE_FAILED").
			With("operation", "update password").
			With("user_id", userID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("CREDENTIAL_NOT_FOUND").With("user_id", userID.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// OAuthAccountRepository implements auth.OAuthAccountRepository using PostgreSQL.
type OAuthAccountRepository struct {
	db DB
}

// NewOAuthAccountRepository creates a new OAuthAccountRepository.
func NewOAuthAccountRepository(db DB) *OAuthAccountRepository {
	return &OAuthAccountRepository{db: db}
}

func insertOAuthAccount(ctx context.Context, db execer, account *auth.OAuthAccount) error {
	_, err := db.Exec(ctx, `
		INSERT INTO oauth_accounts (id, user_id, provider, provider_user_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		account.ID.String(),
		account.UserID.String(),
		account.Provider,
		account.ProviderUserID,
		account.CreatedAt,
	)
	return err //nolint:wrapcheck // callers wrap with operation context
}

// Create stores a new provider link.
func (r *OAuthAccountRepository) Create(ctx context.Context, account *auth.OAuthAccount) error {
	if err := insertOAuthAccount(ctx, r.db, account); err != nil {
		return wrapInsert(err, "OAUTH_ACCOUNT_CREATE_FAILED", "oauth_accounts")
	}
	return nil
}

// GetByProviderUser retrieves the link for a provider identity.
func (r *OAuthAccountRepository) GetByProviderUser(ctx context.Context, provider, providerUserID string) (*auth.OAuthAccount, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, user_id, provider, provider_user_id, created_at
		FROM oauth_accounts
		WHERE provider = $1 AND provider_user_id = $2
	`, provider, providerUserID)
	account, err := scanOAuthAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("OAUTH_ACCOUNT_NOT_FOUND").With("provider", provider).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("OAUTH_ACCOUNT_GET_FAILED").
			With("operation", "get oauth account").
			With("provider", provider).
			Wrap(err)
	}
	return account, nil
}

// GetByUser lists the links of a user, oldest first.
func (r *OAuthAccountRepository) GetByUser(ctx context.Context, userID auth.UserID) ([]*auth.OAuthAccount, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, provider, provider_user_id, created_at
		FROM oauth_accounts
		WHERE user_id = $1
		ORDER BY created_at
	`, userID.String())
	if err != nil {
		return nil, oops.Code("OAUTH_ACCOUNT_LIST_FAILED").
			With("operation", "list oauth accounts").
			With("user_id", userID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var accounts []*auth.OAuthAccount
	for rows.Next() {
		account, err := scanOAuthAccount(rows)
		if err != nil {
			return nil, oops.Code("OAUTH_ACCOUNT_SCAN_FAILED").With("operation", "scan oauth account row").Wrap(err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("OAUTH_ACCOUNT_ROWS_ERROR").With("operation", "iterate oauth account rows").Wrap(err)
	}
	return accounts, nil
}

func scanOAuthAccount(row rowScanner) (*auth.OAuthAccount, error) {
	var (
		account   auth.OAuthAccount
		idStr     string
		userIDStr string
		createdAt time.Time
	)
	if err := row.Scan(&idStr, &userIDStr, &account.Provider, &account.ProviderUserID, &createdAt); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with operation context
	}
	id, err := parseID[auth.OAuthAccountID](idStr, "oauth_account_id")
	if err != nil {
		return nil, err
	}
	userID, err := parseID[auth.UserID](userIDStr, "user_id")
	if err != nil {
		return nil, err
	}
	account.ID = id
	account.UserID = userID
	account.CreatedAt = utc(createdAt)
	return &account, nil
}

// Compile-time interface checks.
var (
	_ auth.UserRepository         = (*UserRepository)(nil)
	_ auth.CredentialRepository   = (*CredentialRepository)(nil)
	_ auth.OAuthAccountRepository = (*OAuthAccountRepository)(nil)
)
