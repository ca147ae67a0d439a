// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SignupRequest is the pending registration handed back to the client.
type SignupRequest struct {
	Session *SignupSession
	Token   string
}

// SignupResult is the account created by a completed signup and its first
// login session.
type SignupResult struct {
	User    *User
	Session *IssuedSession
}

// SignupService drives registration: NONE -> PENDING -> EMAIL_VERIFIED -> COMPLETED.
type SignupService struct {
	base
	users     UserRepository
	signups   SignupSessionRepository
	passwords PasswordHasher
	email     EmailSender
	sessions  *SessionService
}

// NewSignupService creates a new SignupService. sessions issues the login
// session of a completed signup.
func NewSignupService(d Deps, cfg Config, sessions *SessionService) (*SignupService, error) {
	if err := checkDeps(
		dependency{"users repository", d.Users},
		dependency{"signup sessions repository", d.SignupSessions},
		dependency{"password hasher", d.Passwords},
		dependency{"email sender", d.Email},
	); err != nil {
		return nil, err
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_DEPENDENCY_MISSING").
			With("dependency", "session service").
			Errorf("session service is required")
	}
	b, err := newBase(d, cfg)
	if err != nil {
		return nil, err
	}
	return &SignupService{
		base:      b,
		users:     d.Users,
		signups:   d.SignupSessions,
		passwords: d.Passwords,
		email:     d.Email,
		sessions:  sessions,
	}, nil
}

// RequestSignup starts a registration for email and mails it a code.
// Pending registrations for the same email are replaced, so only the newest
// code can be confirmed.
func (s *SignupService) RequestSignup(ctx context.Context, email string) (*SignupRequest, error) {
	req, err := s.requestSignup(ctx, NormalizeEmail(email))
	s.record("signup_request", err)
	return req, err
}

func (s *SignupService) requestSignup(ctx context.Context, email string) (*SignupRequest, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}

	_, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, oops.Code(CodeEmailAlreadyUsed).Errorf("email is already registered")
	case !errors.Is(err, ErrNotFound):
		return nil, oops.Code("SIGNUP_REQUEST_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	if _, err := s.signups.DeleteByEmail(ctx, email); err != nil {
		return nil, oops.Code("SIGNUP_REQUEST_FAILED").
			With("operation", "delete previous signups").
			Wrap(err)
	}

	code, err := s.random.String(VerificationCodeLength, Digits)
	if err != nil {
		return nil, oops.Code("SIGNUP_REQUEST_FAILED").
			With("operation", "generate code").
			Wrap(err)
	}

	now := s.now()
	var session *SignupSession
	token, err := s.issue(ctx, "signup_session", now, func(ctx context.Context, c credential) error {
		var err error
		session, err = NewSignupSession(SignupSessionID(c.id), email, code, c.hash, now, now.Add(s.cfg.SignupSessionTTL))
		if err != nil {
			return err
		}
		return s.signups.Create(ctx, session)
	})
	if err != nil {
		if HasCode(err, CodeDuplicateID) {
			return nil, err
		}
		return nil, oops.Code("SIGNUP_REQUEST_FAILED").
			With("operation", "create signup session").
			Wrap(err)
	}

	if err := s.email.SendVerificationCode(ctx, email, code); err != nil {
		if _, delErr := s.signups.Delete(ctx, session.ID); delErr != nil {
			s.logger.WarnContext(ctx, "failed to remove undelivered signup",
				"session_id", session.ID.String(),
				"error", delErr)
		}
		return nil, oops.Code("SIGNUP_EMAIL_FAILED").
			With("operation", "send verification code").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "signup requested", "session_id", session.ID.String())
	return &SignupRequest{Session: session, Token: token}, nil
}

// lookupSignup validates a signup token and maps rejections to the signup
// failure codes.
func (s *SignupService) lookupSignup(ctx context.Context, token string) (*SignupSession, error) {
	session, err := lookup(ctx, &s.base, "signup_session", token,
		func(ctx context.Context, id ulid.ULID) (*SignupSession, error) {
			return s.signups.GetByID(ctx, SignupSessionID(id))
		},
		func(ctx context.Context, id ulid.ULID) (bool, error) {
			return s.signups.Delete(ctx, SignupSessionID(id))
		})
	if err == nil {
		return session, nil
	}
	switch {
	case HasCode(err, CodeNotFoundOrExpired) && rejectionReason(err) == reasonExpired:
		return nil, oops.Code(CodeSignupSessionExpired).Errorf("signup session has expired")
	case HasCode(err, CodeInvalidToken), HasCode(err, CodeNotFoundOrExpired), HasCode(err, CodeSecretMismatch):
		return nil, oops.Code(CodeSignupSessionInvalid).Errorf("signup session is invalid")
	}
	return nil, err
}

// VerifySignupEmail confirms the emailed code of a pending signup.
// A wrong code leaves the session unverified; a second successful
// confirmation reports ALREADY_VERIFIED.
func (s *SignupService) VerifySignupEmail(ctx context.Context, token, code string) error {
	err := s.verifySignupEmail(ctx, token, code)
	s.record("signup_verify", err)
	return err
}

func (s *SignupService) verifySignupEmail(ctx context.Context, token, code string) error {
	session, err := s.lookupSignup(ctx, token)
	if err != nil {
		return err
	}
	if session.EmailVerified {
		return oops.Code(CodeAlreadyVerified).Errorf("email is already verified")
	}
	if !codesEqual(code, session.Code) {
		return oops.Code(CodeInvalidVerificationCode).Errorf("verification code is invalid")
	}

	changed, err := s.signups.MarkEmailVerified(ctx, session.ID, session.Code)
	if err != nil {
		return oops.Code("SIGNUP_VERIFY_FAILED").
			With("operation", "mark email verified").
			With("session_id", session.ID.String()).
			Wrap(err)
	}
	if changed {
		return nil
	}

	// Lost a race with another confirmation or a resend.
	current, err := s.signups.GetByID(ctx, session.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeSignupSessionInvalid).Errorf("signup session is invalid")
		}
		return oops.Code("SIGNUP_VERIFY_FAILED").
			With("operation", "reload signup session").
			Wrap(err)
	}
	if current.EmailVerified {
		return oops.Code(CodeAlreadyVerified).Errorf("email is already verified")
	}
	return oops.Code(CodeInvalidVerificationCode).Errorf("verification code is invalid")
}

// ResendSignupCode mails a new code for a pending signup. The previous code
// stops working.
func (s *SignupService) ResendSignupCode(ctx context.Context, token string) error {
	err := s.resendSignupCode(ctx, token)
	s.record("signup_resend", err)
	return err
}

func (s *SignupService) resendSignupCode(ctx context.Context, token string) error {
	session, err := s.lookupSignup(ctx, token)
	if err != nil {
		return err
	}
	if session.EmailVerified {
		return oops.Code(CodeAlreadyVerified).Errorf("email is already verified")
	}

	code, err := s.random.String(VerificationCodeLength, Digits)
	if err != nil {
		return oops.Code("SIGNUP_RESEND_FAILED").With("operation", "generate code").Wrap(err)
	}
	changed, err := s.signups.UpdateCode(ctx, session.ID, code)
	if err != nil {
		return oops.Code("SIGNUP_RESEND_FAILED").
			With("operation", "update code").
			With("session_id", session.ID.String()).
			Wrap(err)
	}
	if !changed {
		return oops.Code(CodeAlreadyVerified).Errorf("email is already verified")
	}

	if err := s.email.SendVerificationCode(ctx, session.Email, code); err != nil {
		return oops.Code("SIGNUP_EMAIL_FAILED").
			With("operation", "send verification code").
			Wrap(err)
	}
	return nil
}

// CompleteSignup turns a verified signup into a User with a password
// credential and signs the user in.
func (s *SignupService) CompleteSignup(ctx context.Context, token, password, name string) (*SignupResult, error) {
	res, err := s.completeSignup(ctx, token, password, name)
	s.record("signup_complete", err)
	return res, err
}

func (s *SignupService) completeSignup(ctx context.Context, token, password, name string) (*SignupResult, error) {
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	session, err := s.lookupSignup(ctx, token)
	if err != nil {
		return nil, err
	}
	if !session.EmailVerified {
		return nil, oops.Code(CodeEmailNotVerified).Errorf("email has not been verified")
	}

	passwordHash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, oops.Code("SIGNUP_COMPLETE_FAILED").With("operation", "hash password").Wrap(err)
	}

	// Consume first so two completions cannot both create an account.
	deleted, err := s.signups.Delete(ctx, session.ID)
	if err != nil {
		return nil, oops.Code("SIGNUP_COMPLETE_FAILED").
			With("operation", "consume signup session").
			With("session_id", session.ID.String()).
			Wrap(err)
	}
	if !deleted {
		return nil, oops.Code(CodeAlreadyConsumed).Errorf("signup was already completed")
	}

	now := s.now()
	id, err := s.random.NewID(now)
	if err != nil {
		return nil, oops.Code("SIGNUP_COMPLETE_FAILED").With("operation", "generate user id").Wrap(err)
	}
	user := &User{
		ID:            UserID(id),
		Email:         session.Email,
		EmailVerified: true,
		Name:          name,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	cred := &UserCredential{
		UserID:       user.ID,
		PasswordHash: &passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user, cred, nil); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, oops.Code(CodeEmailAlreadyUsed).Errorf("email is already registered")
		}
		s.restore(ctx, "signup_session", session.ID.String(), func(ctx context.Context) error {
			return s.signups.Create(ctx, session)
		})
		return nil, oops.Code("SIGNUP_COMPLETE_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	issued, err := s.sessions.CreateSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "signup completed", "user_id", user.ID.String())
	return &SignupResult{User: user, Session: issued}, nil
}

// codesEqual compares verification codes in constant time.
func codesEqual(presented, stored string) bool {
	return stored != "" && subtle.ConstantTimeCompare([]byte(presented), []byte(stored)) == 1
}
