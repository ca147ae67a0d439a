// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"time"
)

// EmailSender delivers credential emails. Implementations own transport.
type EmailSender interface {
	// SendVerificationCode delivers a verification code to an address.
	SendVerificationCode(ctx context.Context, to, code string) error

	// SendPasswordReset delivers a password reset token to an address.
	SendPasswordReset(ctx context.Context, to, token string) error
}

// OAuthTokens is the result of a provider code exchange.
type OAuthTokens struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// OAuthAccountInfo is the identity a provider reports for an access token.
type OAuthAccountInfo struct {
	ID            string
	Email         string
	Name          string
	IconURL       string
	EmailVerified bool
}

// OAuthProvider is the gateway to one OAuth 2.0 provider.
type OAuthProvider interface {
	// Name identifies the provider, e.g. "github".
	Name() string

	// AuthURL builds the authorization URL for state and PKCE verifier.
	AuthURL(state, codeVerifier string) string

	// Exchange trades an authorization code for tokens.
	Exchange(ctx context.Context, code, codeVerifier string) (*OAuthTokens, error)

	// AccountInfo fetches the identity behind an access token. It returns
	// nil when the provider reports no usable identity.
	AccountInfo(ctx context.Context, accessToken string) (*OAuthAccountInfo, error)

	// Revoke invalidates a provider token.
	Revoke(ctx context.Context, token string) error
}
