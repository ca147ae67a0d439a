// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// dummyPasswordHash is verified when the user doesn't exist so that a failed
// login costs one argon2id computation either way.
// It is not a real credential and never matches any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// IssuedSession is a newly created login session and its token. The token
// is returned exactly once.
type IssuedSession struct {
	Session *LoginSession
	Token   string
}

// SessionService handles login sessions.
type SessionService struct {
	base
	users       UserRepository
	credentials CredentialRepository
	sessions    LoginSessionRepository
	passwords   PasswordHasher
}

// NewSessionService creates a new SessionService.
func NewSessionService(d Deps, cfg Config) (*SessionService, error) {
	if err := checkDeps(
		dependency{"users repository", d.Users},
		dependency{"credentials repository", d.Credentials},
		dependency{"login sessions repository", d.LoginSessions},
		dependency{"password hasher", d.Passwords},
	); err != nil {
		return nil, err
	}
	b, err := newBase(d, cfg)
	if err != nil {
		return nil, err
	}
	return &SessionService{
		base:        b,
		users:       d.Users,
		credentials: d.Credentials,
		sessions:    d.LoginSessions,
		passwords:   d.Passwords,
	}, nil
}

// Login authenticates email and password and creates a fresh session.
// Unknown emails, password-less accounts and wrong passwords all fail with
// INVALID_CREDENTIALS after the same amount of hashing work.
func (s *SessionService) Login(ctx context.Context, email, password string) (*IssuedSession, error) {
	issued, err := s.login(ctx, NormalizeEmail(email), password)
	s.record("login", err)
	return issued, err
}

func (s *SessionService) login(ctx context.Context, email, password string) (*IssuedSession, error) {
	var cred *UserCredential

	user, err := s.users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrNotFound):
		// Unknown email; fall through to the dummy hash.
	case err != nil:
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	default:
		cred, err = s.credentials.GetByUser(ctx, user.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get credential").
				With("user_id", user.ID.String()).
				Wrap(err)
		}
	}

	targetHash := dummyPasswordHash
	if cred.HasPassword() {
		targetHash = *cred.PasswordHash
	}

	// Always verify, even against the dummy hash.
	valid, verifyErr := s.passwords.Verify(password, targetHash)
	if verifyErr != nil {
		if !cred.HasPassword() {
			return nil, invalidCredentials()
		}
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(verifyErr)
	}

	now := s.now()
	if !cred.HasPassword() || !valid {
		if cred.HasPassword() {
			failed := cred.WithFailure(now)
			if err := s.credentials.Update(ctx, &failed); err != nil {
				s.logger.WarnContext(ctx, "failed to record login failure",
					"user_id", user.ID.String(),
					"error", err)
			}
		}
		return nil, invalidCredentials()
	}

	// Lockout is checked after verification so its timing matches a failure.
	if cred.IsLockedAt(now) {
		return nil, oops.Code(CodeAccountLocked).
			With("locked_until", cred.LockedUntil).
			Errorf("account is temporarily locked")
	}

	if cred.FailedAttempts > 0 || cred.LockedUntil != nil {
		cleared := cred.WithSuccess(now)
		if err := s.credentials.Update(ctx, &cleared); err != nil {
			s.logger.WarnContext(ctx, "failed to reset login failures",
				"user_id", user.ID.String(),
				"error", err)
		}
	}

	if s.passwords.NeedsUpgrade(targetHash) {
		if upgraded, hashErr := s.passwords.Hash(password); hashErr == nil {
			if err := s.credentials.UpdatePassword(ctx, user.ID, upgraded); err != nil {
				s.logger.WarnContext(ctx, "failed to upgrade password hash",
					"user_id", user.ID.String(),
					"error", err)
			}
		}
	}

	return s.CreateSession(ctx, user.ID)
}

func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf("invalid email or password")
}

// CreateSession creates a fresh session for an already authenticated user.
func (s *SessionService) CreateSession(ctx context.Context, userID UserID) (*IssuedSession, error) {
	now := s.now()
	var session *LoginSession
	token, err := s.issue(ctx, "login_session", now, func(ctx context.Context, c credential) error {
		var err error
		session, err = NewLoginSession(LoginSessionID(c.id), userID, c.hash, now, now.Add(s.cfg.LoginSessionTTL))
		if err != nil {
			return err
		}
		return s.sessions.Create(ctx, session)
	})
	if err != nil {
		if HasCode(err, CodeDuplicateID) {
			return nil, err
		}
		return nil, oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "persist session").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return &IssuedSession{Session: session, Token: token}, nil
}

// ValidateSession validates a session token and returns the session. A
// validated session is never Fresh; sessions inside the renewal window also
// get a new expiry.
func (s *SessionService) ValidateSession(ctx context.Context, token string) (*LoginSession, error) {
	session, err := s.validateSession(ctx, token)
	s.record("validate_session", err)
	return session, err
}

func (s *SessionService) validateSession(ctx context.Context, token string) (*LoginSession, error) {
	session, err := lookup(ctx, &s.base, "login_session", token,
		func(ctx context.Context, id ulid.ULID) (*LoginSession, error) {
			return s.sessions.GetByID(ctx, LoginSessionID(id))
		},
		func(ctx context.Context, id ulid.ULID) (bool, error) {
			return s.sessions.Delete(ctx, LoginSessionID(id))
		})
	if err != nil {
		return nil, err
	}

	validated := *session
	validated.Fresh = false

	now := s.now()
	if s.cfg.LoginRenewWindow > 0 && session.ExpiresAt.Sub(now) < s.cfg.LoginRenewWindow {
		expiresAt := now.Add(s.cfg.LoginSessionTTL)
		if err := s.sessions.Renew(ctx, session.ID, expiresAt); err != nil {
			s.logger.WarnContext(ctx, "failed to renew session",
				"session_id", session.ID.String(),
				"error", err)
			return &validated, nil
		}
		validated.ExpiresAt = expiresAt
		return &validated, nil
	}

	if session.Fresh {
		if err := s.sessions.ClearFresh(ctx, session.ID); err != nil {
			s.logger.WarnContext(ctx, "failed to clear fresh flag",
				"session_id", session.ID.String(),
				"error", err)
		}
	}
	return &validated, nil
}

// Logout deletes the session behind token. Logging out twice is not an error.
func (s *SessionService) Logout(ctx context.Context, token string) error {
	parts, err := DecodeToken(token)
	if err != nil {
		return err
	}
	if _, err := s.sessions.Delete(ctx, LoginSessionID(parts.ID)); err != nil {
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "delete session").
			With("session_id", parts.ID.String()).
			Wrap(err)
	}
	return nil
}

// LogoutAll deletes every session of a user and returns how many existed.
func (s *SessionService) LogoutAll(ctx context.Context, userID UserID) (int64, error) {
	n, err := s.sessions.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "delete sessions by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return n, nil
}

// ListSessions returns the unexpired sessions of a user.
func (s *SessionService) ListSessions(ctx context.Context, userID UserID) ([]*LoginSession, error) {
	all, err := s.sessions.GetByUser(ctx, userID)
	if err != nil {
		return nil, oops.Code("AUTH_LIST_SESSIONS_FAILED").
			With("user_id", userID.String()).
			Wrap(err)
	}
	now := s.now()
	active := make([]*LoginSession, 0, len(all))
	for _, session := range all {
		if !session.IsExpiredAt(now) {
			active = append(active, session)
		}
	}
	return active, nil
}
