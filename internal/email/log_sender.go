// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package email provides EmailSender implementations.
package email

import (
	"context"
	"log/slog"
	"strings"

	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

// LogSender writes credential emails to a logger instead of delivering them.
// It is meant for development and tests; secrets appear in the log.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender. A nil logger uses slog.Default().
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger.With("component", "email")}
}

// SendVerificationCode logs a verification code for to.
func (s *LogSender) SendVerificationCode(ctx context.Context, to, code string) error {
	if err := checkRecipient(to); err != nil {
		return oops.With("kind", "verification_code").Wrap(err)
	}
	s.logger.InfoContext(ctx, "verification code email", "to", to, "code", code)
	return nil
}

// SendPasswordReset logs a password reset token for to.
func (s *LogSender) SendPasswordReset(ctx context.Context, to, token string) error {
	if err := checkRecipient(to); err != nil {
		return oops.With("kind", "password_reset").Wrap(err)
	}
	s.logger.InfoContext(ctx, "password reset email", "to", to, "token", token)
	return nil
}

func checkRecipient(to string) error {
	if strings.TrimSpace(to) == "" {
		return oops.Code("EMAIL_RECIPIENT_MISSING").Errorf("recipient address is empty")
	}
	return nil
}

var _ auth.EmailSender = (*LogSender)(nil)
