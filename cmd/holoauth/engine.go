// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"log/slog"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/config"
	"github.com/holomush/holoauth/internal/email"
)

// engine is the full set of credential services wired to one store.
type engine struct {
	sessions     *auth.SessionService
	signup       *auth.SignupService
	reset        *auth.PasswordResetService
	verification *auth.EmailVerificationService
	oauth        *auth.OAuthService
}

// newEngine fills in the collaborators repositories do not provide and
// builds every service. metrics may be nil.
func newEngine(cfg *config.Config, d auth.Deps, providers []auth.OAuthProvider, logger *slog.Logger, metrics auth.FlowRecorder) (*engine, error) {
	random := auth.NewRandom()
	secrets, err := auth.NewSecretHasher([]byte(cfg.Secrets.SessionKey), random)
	if err != nil {
		return nil, err
	}
	d.Random = random
	d.Secrets = secrets
	d.Passwords = auth.NewArgon2idHasher()
	d.Email = email.NewLogSender(logger)
	d.Logger = logger
	if metrics != nil {
		d.Metrics = metrics
	}

	lifetimes := cfg.Auth.Lifetimes()
	e := &engine{}
	if e.sessions, err = auth.NewSessionService(d, lifetimes); err != nil {
		return nil, err
	}
	if e.signup, err = auth.NewSignupService(d, lifetimes, e.sessions); err != nil {
		return nil, err
	}
	if e.reset, err = auth.NewPasswordResetService(d, lifetimes); err != nil {
		return nil, err
	}
	if e.verification, err = auth.NewEmailVerificationService(d, lifetimes); err != nil {
		return nil, err
	}
	if e.oauth, err = auth.NewOAuthService(d, lifetimes, e.sessions, []byte(cfg.Secrets.OAuthStateKey), providers...); err != nil {
		return nil, err
	}
	return e, nil
}
