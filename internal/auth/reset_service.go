// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// PasswordResetService handles password reset operations.
type PasswordResetService struct {
	base
	users       UserRepository
	credentials CredentialRepository
	resets      PasswordResetSessionRepository
	sessions    LoginSessionRepository
	passwords   PasswordHasher
	email       EmailSender
}

// NewPasswordResetService creates a new PasswordResetService.
func NewPasswordResetService(d Deps, cfg Config) (*PasswordResetService, error) {
	if err := checkDeps(
		dependency{"users repository", d.Users},
		dependency{"credentials repository", d.Credentials},
		dependency{"reset sessions repository", d.ResetSessions},
		dependency{"login sessions repository", d.LoginSessions},
		dependency{"password hasher", d.Passwords},
		dependency{"email sender", d.Email},
	); err != nil {
		return nil, err
	}
	b, err := newBase(d, cfg)
	if err != nil {
		return nil, err
	}
	return &PasswordResetService{
		base:        b,
		users:       d.Users,
		credentials: d.Credentials,
		resets:      d.ResetSessions,
		sessions:    d.LoginSessions,
		passwords:   d.Passwords,
		email:       d.Email,
	}, nil
}

// RequestPasswordReset mails a reset token to email if it belongs to a user.
// The result is the same whether or not the email is registered.
func (s *PasswordResetService) RequestPasswordReset(ctx context.Context, email string) error {
	err := s.requestPasswordReset(ctx, NormalizeEmail(email))
	s.record("reset_request", err)
	return err
}

func (s *PasswordResetService) requestPasswordReset(ctx context.Context, email string) error {
	if err := ValidateEmail(email); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.DebugContext(ctx, "password reset requested for unknown email", "reason", "user_not_found")
			return nil
		}
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	now := s.now()
	token, err := s.issue(ctx, "password_reset", now, func(ctx context.Context, c credential) error {
		reset, err := NewPasswordResetSession(PasswordResetSessionID(c.id), user.ID, user.Email, c.hash, now, now.Add(s.cfg.PasswordResetTTL))
		if err != nil {
			return err
		}
		return s.resets.Create(ctx, reset)
	})
	if err != nil {
		if HasCode(err, CodeDuplicateID) {
			return err
		}
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "create reset session").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	if err := s.email.SendPasswordReset(ctx, user.Email, token); err != nil {
		return oops.Code("RESET_EMAIL_FAILED").
			With("operation", "send password reset").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return nil
}

// ValidateToken validates a reset token without consuming it.
func (s *PasswordResetService) ValidateToken(ctx context.Context, token string) (*PasswordResetSession, error) {
	return lookup(ctx, &s.base, "password_reset", token,
		func(ctx context.Context, id ulid.ULID) (*PasswordResetSession, error) {
			return s.resets.GetByID(ctx, PasswordResetSessionID(id))
		},
		func(ctx context.Context, id ulid.ULID) (bool, error) {
			return s.resets.Delete(ctx, PasswordResetSessionID(id))
		})
}

// ConfirmPasswordReset sets a new password using a valid reset token. Every login
// session of the user is revoked.
func (s *PasswordResetService) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	err := s.confirmPasswordReset(ctx, token, newPassword)
	s.record("reset_confirm", err)
	return err
}

func (s *PasswordResetService) confirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	reset, err := s.ValidateToken(ctx, token)
	if err != nil {
		return err
	}

	hashedPassword, err := s.passwords.Hash(newPassword)
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	deleted, err := s.resets.Delete(ctx, reset.ID)
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "consume reset session").
			With("reset_id", reset.ID.String()).
			Wrap(err)
	}
	if !deleted {
		return oops.Code(CodeAlreadyConsumed).Errorf("reset token was already used")
	}

	if err := s.credentials.UpdatePassword(ctx, reset.UserID, hashedPassword); err != nil {
		s.restore(ctx, "password_reset", reset.ID.String(), func(ctx context.Context) error {
			return s.resets.Create(ctx, reset)
		})
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "update password").
			With("user_id", reset.UserID.String()).
			Wrap(err)
	}

	revoked, err := s.sessions.DeleteByUser(ctx, reset.UserID)
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "revoke login sessions").
			With("user_id", reset.UserID.String()).
			Wrap(err)
	}

	// Other outstanding reset links are cleanup; the password is already changed.
	if _, err := s.resets.DeleteByUser(ctx, reset.UserID); err != nil {
		s.logger.WarnContext(ctx, "failed to delete remaining reset sessions",
			"user_id", reset.UserID.String(),
			"error", err)
	}

	s.logger.InfoContext(ctx, "password reset",
		"user_id", reset.UserID.String(),
		"revoked_sessions", revoked)
	return nil
}
