// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/internal/auth"
)

var (
	testNow    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	testUserID = auth.UserID(ulid.MustParse("01HZZZZZZZZZZZZZZZZZZZZZZ1"))
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		mock.Close()
	})
	return mock
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: constraint}
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unique violation", uniqueViolation("users_email_key"), true},
		{"wrapped unique violation", fmt.Errorf("insert: %w", uniqueViolation("x")), true},
		{"other pg error", &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation}, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUniqueViolation(tt.err))
		})
	}
}

func TestStore_Deps(t *testing.T) {
	mock := newMock(t)
	deps := New(mock).Deps()

	assert.NotNil(t, deps.Users)
	assert.NotNil(t, deps.Credentials)
	assert.NotNil(t, deps.OAuthAccounts)
	assert.NotNil(t, deps.LoginSessions)
	assert.NotNil(t, deps.SignupSessions)
	assert.NotNil(t, deps.ResetSessions)
	assert.NotNil(t, deps.AssociationSessions)
	assert.NotNil(t, deps.Codes)
	assert.Nil(t, deps.Email)
}

func TestUserRepository_Create(t *testing.T) {
	hash := "$argon2id$hash"
	user := &auth.User{ID: testUserID, Email: "ada@example.com", CreatedAt: testNow, UpdatedAt: testNow}
	cred := &auth.UserCredential{UserID: testUserID, PasswordHash: &hash, CreatedAt: testNow, UpdatedAt: testNow}
	account := &auth.OAuthAccount{
		ID:             auth.OAuthAccountID(ulid.MustParse("01HZZZZZZZZZZZZZZZZZZZZZZ2")),
		UserID:         testUserID,
		Provider:       "github",
		ProviderUserID: "42",
		CreatedAt:      testNow,
	}

	tests := []struct {
		name      string
		account   *auth.OAuthAccount
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
	}{
		{
			name: "inserts user and credential in one transaction",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectExec(`INSERT INTO users`).
					WithArgs(testUserID.String(), "ada@example.com", false, "", "", testNow, testNow).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
				mock.ExpectExec(`INSERT INTO user_credentials`).
					WithArgs(testUserID.String(), &hash, 0, pgxmock.AnyArg(), testNow, testNow).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
				mock.ExpectCommit()
			},
		},
		{
			name:    "inserts the first oauth account",
			account: account,
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectExec(`INSERT INTO users`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
				mock.ExpectExec(`INSERT INTO user_credentials`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
				mock.ExpectExec(`INSERT INTO oauth_accounts`).
					WithArgs(account.ID.String(), testUserID.String(), "github", "42", testNow).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "duplicate email rolls back",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectExec(`INSERT INTO users`).WillReturnError(uniqueViolation("users_email_key"))
				mock.ExpectRollback()
			},
			wantErr: auth.ErrDuplicate,
		},
		{
			name:    "linked identity rolls back",
			account: account,
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectExec(`INSERT INTO users`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
				mock.ExpectExec(`INSERT INTO user_credentials`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
				mock.ExpectExec(`INSERT INTO oauth_accounts`).WillReturnError(uniqueViolation("oauth_accounts_provider_key"))
				mock.ExpectRollback()
			},
			wantErr: auth.ErrDuplicate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			tt.setupMock(mock)

			err := NewUserRepository(mock).Create(context.Background(), user, cred, tt.account)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestUserRepository_Create_BeginFails(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	err := NewUserRepository(mock).Create(context.Background(), &auth.User{ID: testUserID}, nil, nil)
	require.Error(t, err)
	assert.Equal(t, "USER_CREATE_FAILED", auth.ErrorCode(err))
}

func TestUserRepository_GetByID(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SELECT id, email, email_verified`).
			WithArgs(testUserID.String()).
			WillReturnRows(pgxmock.NewRows([]string{"id", "email", "email_verified", "name", "icon_url", "created_at", "updated_at"}).
				AddRow(testUserID.String(), "ada@example.com", true, "Ada", "", testNow, testNow))

		user, err := NewUserRepository(mock).GetByID(context.Background(), testUserID)
		require.NoError(t, err)
		assert.Equal(t, testUserID, user.ID)
		assert.Equal(t, "ada@example.com", user.Email)
		assert.True(t, user.EmailVerified)
		assert.Equal(t, "Ada", user.Name)
		assert.Equal(t, testNow, user.CreatedAt)
	})

	t.Run("not found", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SELECT id, email, email_verified`).
			WithArgs(testUserID.String()).
			WillReturnError(pgx.ErrNoRows)

		_, err := NewUserRepository(mock).GetByID(context.Background(), testUserID)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("corrupt id", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SELECT id, email, email_verified`).
			WillReturnRows(pgxmock.NewRows([]string{"id", "email", "email_verified", "name", "icon_url", "created_at", "updated_at"}).
				AddRow("not-a-ulid", "ada@example.com", true, "", "", testNow, testNow))

		_, err := NewUserRepository(mock).GetByID(context.Background(), testUserID)
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestUserRepository_MarkEmailVerified(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
	}{
		{
			name: "updates row",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`UPDATE users SET email`).
					WithArgs(testUserID.String(), "new@example.com", pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("UPDATE", 1))
			},
		},
		{
			name: "missing user",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`UPDATE users SET email`).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
			},
			wantErr: auth.ErrNotFound,
		},
		{
			name: "email owned by another user",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`UPDATE users SET email`).WillReturnError(uniqueViolation("users_email_key"))
			},
			wantErr: auth.ErrDuplicate,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			tt.setupMock(mock)

			err := NewUserRepository(mock).MarkEmailVerified(context.Background(), testUserID, "new@example.com")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestCredentialRepository_GetByUser(t *testing.T) {
	mock := newMock(t)
	hash := "$argon2id$hash"
	mock.ExpectQuery(`SELECT password_hash, failed_attempts, locked_until`).
		WithArgs(testUserID.String()).
		WillReturnRows(pgxmock.NewRows([]string{"password_hash", "failed_attempts", "locked_until", "created_at", "updated_at"}).
			AddRow(&hash, 3, nil, testNow, testNow))

	cred, err := NewCredentialRepository(mock).GetByUser(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Equal(t, testUserID, cred.UserID)
	require.NotNil(t, cred.PasswordHash)
	assert.Equal(t, hash, *cred.PasswordHash)
	assert.Equal(t, 3, cred.FailedAttempts)
	assert.Nil(t, cred.LockedUntil)
}

func TestCredentialRepository_UpdatePassword_NotFound(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`UPDATE user_credentials`).
		WithArgs(testUserID.String(), "new-hash", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := NewCredentialRepository(mock).UpdatePassword(context.Background(), testUserID, "new-hash")
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestOAuthAccountRepository_Create_Duplicate(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`INSERT INTO oauth_accounts`).WillReturnError(uniqueViolation("oauth_accounts_provider_key"))

	err := NewOAuthAccountRepository(mock).Create(context.Background(), &auth.OAuthAccount{UserID: testUserID})
	assert.ErrorIs(t, err, auth.ErrDuplicate)
	assert.Equal(t, "OAUTH_ACCOUNT_CREATE_FAILED", auth.ErrorCode(err))
}

func TestOAuthAccountRepository_GetByUser(t *testing.T) {
	mock := newMock(t)
	accountID := auth.OAuthAccountID(ulid.MustParse("01HZZZZZZZZZZZZZZZZZZZZZZ3"))
	mock.ExpectQuery(`SELECT id, user_id, provider, provider_user_id`).
		WithArgs(testUserID.String()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "provider", "provider_user_id", "created_at"}).
			AddRow(accountID.String(), testUserID.String(), "github", "42", testNow))

	accounts, err := NewOAuthAccountRepository(mock).GetByUser(context.Background(), testUserID)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, accountID, accounts[0].ID)
	assert.Equal(t, "github", accounts[0].Provider)
}

func TestLoginSessionRepository(t *testing.T) {
	sessionID := auth.LoginSessionID(ulid.MustParse("01HZZZZZZZZZZZZZZZZZZZZZZ4"))
	columns := []string{"id", "user_id", "secret_hash", "fresh", "expires_at", "created_at"}

	t.Run("create duplicate id", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`INSERT INTO login_sessions`).WillReturnError(uniqueViolation("login_sessions_pkey"))

		err := NewLoginSessionRepository(mock).Create(context.Background(), &auth.LoginSession{ID: sessionID, UserID: testUserID})
		assert.ErrorIs(t, err, auth.ErrDuplicate)
	})

	t.Run("get by id", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SELECT id, user_id, secret_hash, fresh`).
			WithArgs(sessionID.String()).
			WillReturnRows(pgxmock.NewRows(columns).
				AddRow(sessionID.String(), testUserID.String(), "digest", true, testNow.Add(time.Hour), testNow))

		session, err := NewLoginSessionRepository(mock).GetByID(context.Background(), sessionID)
		require.NoError(t, err)
		assert.Equal(t, sessionID, session.ID)
		assert.Equal(t, testUserID, session.UserID)
		assert.True(t, session.Fresh)
		assert.Equal(t, testNow.Add(time.Hour), session.ExpiresAt)
	})

	t.Run("get by user", func(t *testing.T) {
		mock := newMock(t)
		other := auth.LoginSessionID(ulid.MustParse("01HZZZZZZZZZZZZZZZZZZZZZZ5"))
		mock.ExpectQuery(`SELECT id, user_id, secret_hash, fresh`).
			WithArgs(testUserID.String()).
			WillReturnRows(pgxmock.NewRows(columns).
				AddRow(other.String(), testUserID.String(), "b", false, testNow.Add(2*time.Hour), testNow.Add(time.Minute)).
				AddRow(sessionID.String(), testUserID.String(), "a", true, testNow.Add(time.Hour), testNow))

		sessions, err := NewLoginSessionRepository(mock).GetByUser(context.Background(), testUserID)
		require.NoError(t, err)
		require.Len(t, sessions, 2)
		assert.Equal(t, other, sessions[0].ID)
		assert.Equal(t, sessionID, sessions[1].ID)
	})

	t.Run("renew missing session", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE login_sessions SET expires_at`).
			WithArgs(sessionID.String(), testNow).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := NewLoginSessionRepository(mock).Renew(context.Background(), sessionID, testNow)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("clear fresh", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE login_sessions SET fresh = FALSE\s+WHERE id = \$1 AND fresh`).
			WithArgs(sessionID.String()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		require.NoError(t, NewLoginSessionRepository(mock).ClearFresh(context.Background(), sessionID))
	})

	t.Run("delete reports existence", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`DELETE FROM login_sessions WHERE id`).
			WithArgs(sessionID.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectExec(`DELETE FROM login_sessions WHERE id`).
			WithArgs(sessionID.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		repo := NewLoginSessionRepository(mock)
		deleted, err := repo.Delete(context.Background(), sessionID)
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = repo.Delete(context.Background(), sessionID)
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("delete expired", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`DELETE FROM login_sessions WHERE expires_at`).
			WithArgs(testNow).
			WillReturnResult(pgxmock.NewResult("DELETE", 4))

		n, err := NewLoginSessionRepository(mock).DeleteExpired(context.Background(), testNow)
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)
	})

	t.Run("delete expired error", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`DELETE FROM login_sessions WHERE expires_at`).WillReturnError(errors.New("connection reset"))

		_, err := NewLoginSessionRepository(mock).DeleteExpired(context.Background(), testNow)
		require.Error(t, err)
		assert.Equal(t, "SESSION_DELETE_EXPIRED_FAILED", auth.ErrorCode(err))
	})
}

func TestSignupSessionRepository_ConditionalUpdates(t *testing.T) {
	signupID := auth.SignupSessionID(ulid.MustParse("01HZZZZZZZZZZZZZZZZZZZZZZ6"))

	t.Run("mark verified only once", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE signup_sessions SET email_verified`).
			WithArgs(signupID.String(), "123456").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(`UPDATE signup_sessions SET email_verified`).
			WithArgs(signupID.String(), "123456").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		repo := NewSignupSessionRepository(mock)
		changed, err := repo.MarkEmailVerified(context.Background(), signupID, "123456")
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = repo.MarkEmailVerified(context.Background(), signupID, "123456")
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("update code", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE signup_sessions SET code`).
			WithArgs(signupID.String(), "654321").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		changed, err := NewSignupSessionRepository(mock).UpdateCode(context.Background(), signupID, "654321")
		require.NoError(t, err)
		assert.True(t, changed)
	})
}

func TestPasswordResetSessionRepository_GetByID_NotFound(t *testing.T) {
	mock := newMock(t)
	resetID := auth.PasswordResetSessionID(ulid.MustParse("01HZZZZZZZZZZZZZZZZZZZZZZ7"))
	mock.ExpectQuery(`SELECT user_id, email, secret_hash`).
		WithArgs(resetID.String()).
		WillReturnError(pgx.ErrNoRows)

	_, err := NewPasswordResetSessionRepository(mock).GetByID(context.Background(), resetID)
	assert.ErrorIs(t, err, auth.ErrNotFound)
	assert.Equal(t, "RESET_NOT_FOUND", auth.ErrorCode(err))
}

func TestAssociationSessionRepository_GetByID(t *testing.T) {
	mock := newMock(t)
	assocID := auth.AssociationSessionID(ulid.MustParse("01HZZZZZZZZZZZZZZZZZZZZZZ8"))
	mock.ExpectQuery(`SELECT user_id, provider, provider_user_id`).
		WithArgs(assocID.String()).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "provider", "provider_user_id", "secret_hash", "expires_at", "created_at"}).
			AddRow(testUserID.String(), "github", "42", "digest", testNow.Add(10*time.Minute), testNow))

	session, err := NewAssociationSessionRepository(mock).GetByID(context.Background(), assocID)
	require.NoError(t, err)
	assert.Equal(t, assocID, session.ID)
	assert.Equal(t, testUserID, session.UserID)
	assert.Equal(t, "42", session.ProviderUserID)
}

func TestVerificationCodeRepository_Consume(t *testing.T) {
	codeID := auth.VerificationCodeID(ulid.MustParse("01HZZZZZZZZZZZZZZZZZZZZZZ9"))
	columns := []string{"id", "email", "code", "expires_at", "created_at"}

	t.Run("returns the deleted row", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`DELETE FROM email_verification_codes`).
			WithArgs(testUserID.String(), "123456", testNow).
			WillReturnRows(pgxmock.NewRows(columns).
				AddRow(codeID.String(), "ada@example.com", "123456", testNow.Add(time.Minute), testNow))

		code, err := NewVerificationCodeRepository(mock).Consume(context.Background(), testUserID, "123456", testNow)
		require.NoError(t, err)
		assert.Equal(t, codeID, code.ID)
		assert.Equal(t, testUserID, code.UserID)
		assert.Equal(t, "ada@example.com", code.Email)
	})

	t.Run("no matching row", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`DELETE FROM email_verification_codes`).
			WithArgs(testUserID.String(), "000000", testNow).
			WillReturnError(pgx.ErrNoRows)

		_, err := NewVerificationCodeRepository(mock).Consume(context.Background(), testUserID, "000000", testNow)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestVerificationCodeRepository_Replace(t *testing.T) {
	mock := newMock(t)
	codeID := auth.VerificationCodeID(ulid.MustParse("01HZZZZZZZZZZZZZZZZZZZZZZA"))
	mock.ExpectExec(`INSERT INTO email_verification_codes`).
		WithArgs(testUserID.String(), codeID.String(), "ada@example.com", "123456", testNow.Add(time.Minute), testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := NewVerificationCodeRepository(mock).Replace(context.Background(), &auth.EmailVerificationCode{
		ID:        codeID,
		UserID:    testUserID,
		Email:     "ada@example.com",
		Code:      "123456",
		ExpiresAt: testNow.Add(time.Minute),
		CreatedAt: testNow,
	})
	require.NoError(t, err)
}

func TestVerificationCodeRepository_Restore(t *testing.T) {
	codeID := auth.VerificationCodeID(ulid.MustParse("01HZZZZZZZZZZZZZZZZZZZZZZB"))
	code := &auth.EmailVerificationCode{
		ID:        codeID,
		UserID:    testUserID,
		Email:     "ada@example.com",
		Code:      "123456",
		ExpiresAt: testNow.Add(time.Minute),
		CreatedAt: testNow,
	}

	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"user has no code", 1, true},
		{"newer code kept", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			mock.ExpectExec(`ON CONFLICT \(user_id\) DO NOTHING`).
				WithArgs(testUserID.String(), codeID.String(), "ada@example.com", "123456", testNow.Add(time.Minute), testNow).
				WillReturnResult(pgxmock.NewResult("INSERT", tt.affected))

			stored, err := NewVerificationCodeRepository(mock).Restore(context.Background(), code)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stored)
		})
	}
}
