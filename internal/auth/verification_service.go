// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"

	"github.com/samber/oops"
)

// EmailVerificationService issues and consumes verification codes for
// existing users, including confirmation of a changed address.
type EmailVerificationService struct {
	base
	users UserRepository
	codes VerificationCodeRepository
	email EmailSender
}

// NewEmailVerificationService creates a new EmailVerificationService.
func NewEmailVerificationService(d Deps, cfg Config) (*EmailVerificationService, error) {
	if err := checkDeps(
		dependency{"users repository", d.Users},
		dependency{"verification codes repository", d.Codes},
		dependency{"email sender", d.Email},
	); err != nil {
		return nil, err
	}
	b, err := newBase(d, cfg)
	if err != nil {
		return nil, err
	}
	return &EmailVerificationService{
		base:  b,
		users: d.Users,
		codes: d.Codes,
		email: d.Email,
	}, nil
}

// RequestEmailVerification mails a new code for email to the user. Any earlier code of
// the user stops working.
func (s *EmailVerificationService) RequestEmailVerification(ctx context.Context, userID UserID, email string) (*EmailVerificationCode, error) {
	code, err := s.requestEmailVerification(ctx, userID, NormalizeEmail(email))
	s.record("verification_request", err)
	return code, err
}

func (s *EmailVerificationService) requestEmailVerification(ctx context.Context, userID UserID, email string) (*EmailVerificationCode, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}

	// Refuse addresses owned by someone else before mailing them.
	owner, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil && owner.ID != userID:
		return nil, oops.Code(CodeEmailAlreadyUsed).Errorf("email is already registered")
	case err != nil && !errors.Is(err, ErrNotFound):
		return nil, oops.Code("VERIFICATION_REQUEST_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	value, err := s.random.String(VerificationCodeLength, Digits)
	if err != nil {
		return nil, oops.Code("VERIFICATION_REQUEST_FAILED").With("operation", "generate code").Wrap(err)
	}
	now := s.now()
	id, err := s.random.NewID(now)
	if err != nil {
		return nil, oops.Code("VERIFICATION_REQUEST_FAILED").With("operation", "generate id").Wrap(err)
	}
	code, err := NewEmailVerificationCode(VerificationCodeID(id), userID, email, value, now, now.Add(s.cfg.VerificationCodeTTL))
	if err != nil {
		return nil, err
	}

	if err := s.codes.Replace(ctx, code); err != nil {
		return nil, oops.Code("VERIFICATION_REQUEST_FAILED").
			With("operation", "store code").
			With("user_id", userID.String()).
			Wrap(err)
	}

	if err := s.email.SendVerificationCode(ctx, email, value); err != nil {
		return nil, oops.Code("VERIFICATION_EMAIL_FAILED").
			With("operation", "send verification code").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return code, nil
}

// ConfirmEmailVerification consumes the user's code and marks the code's address as the
// user's verified email. A code works once; a replay, a wrong code and an
// expired code all fail with INVALID_VERIFICATION_CODE.
func (s *EmailVerificationService) ConfirmEmailVerification(ctx context.Context, userID UserID, code string) (*EmailVerificationCode, error) {
	consumed, err := s.confirmEmailVerification(ctx, userID, code)
	s.record("verification_confirm", err)
	return consumed, err
}

func (s *EmailVerificationService) confirmEmailVerification(ctx context.Context, userID UserID, code string) (*EmailVerificationCode, error) {
	if code == "" {
		return nil, oops.Code(CodeInvalidVerificationCode).Errorf("verification code is invalid")
	}

	consumed, err := s.codes.Consume(ctx, userID, code, s.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeInvalidVerificationCode).Errorf("verification code is invalid")
		}
		return nil, oops.Code("VERIFICATION_CONFIRM_FAILED").
			With("operation", "consume code").
			With("user_id", userID.String()).
			Wrap(err)
	}

	if err := s.users.MarkEmailVerified(ctx, userID, consumed.Email); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, oops.Code(CodeEmailAlreadyUsed).Errorf("email is already registered")
		}
		s.restore(ctx, "verification_code", consumed.ID.String(), func(ctx context.Context) error {
			_, err := s.codes.Restore(ctx, consumed)
			return err
		})
		return nil, oops.Code("VERIFICATION_CONFIRM_FAILED").
			With("operation", "mark email verified").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return consumed, nil
}
