// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package oauth implements auth.OAuthProvider for standard OAuth 2.0 and
// OpenID Connect providers on top of golang.org/x/oauth2.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"
	"golang.org/x/oauth2"

	"github.com/holomush/holoauth/internal/auth"
)

// maxUserInfoBytes bounds the userinfo response body.
const maxUserInfoBytes = 1 << 20

// Claims maps userinfo response fields to account info. Empty fields use
// the OpenID Connect names.
type Claims struct {
	ID            string `koanf:"id"`
	Email         string `koanf:"email"`
	EmailVerified string `koanf:"email_verified"`
	Name          string `koanf:"name"`
	Picture       string `koanf:"picture"`
}

func (c Claims) withDefaults() Claims {
	def := func(v, d string) string {
		if v == "" {
			return d
		}
		return v
	}
	return Claims{
		ID:            def(c.ID, "sub"),
		Email:         def(c.Email, "email"),
		EmailVerified: def(c.EmailVerified, "email_verified"),
		Name:          def(c.Name, "name"),
		Picture:       def(c.Picture, "picture"),
	}
}

// Config describes one provider.
type Config struct {
	Name         string   `koanf:"name"`
	ClientID     string   `koanf:"client_id"`
	ClientSecret string   `koanf:"client_secret"`
	AuthURL      string   `koanf:"auth_url"`
	TokenURL     string   `koanf:"token_url"`
	UserInfoURL  string   `koanf:"userinfo_url"`
	RevokeURL    string   `koanf:"revoke_url"`
	RedirectURL  string   `koanf:"redirect_url"`
	Scopes       []string `koanf:"scopes"`
	Claims       Claims   `koanf:"claims"`
}

// Validate reports the first missing setting.
func (c Config) Validate() error {
	required := []struct{ key, value string }{
		{"name", c.Name},
		{"client_id", c.ClientID},
		{"auth_url", c.AuthURL},
		{"token_url", c.TokenURL},
		{"userinfo_url", c.UserInfoURL},
		{"redirect_url", c.RedirectURL},
	}
	for _, r := range required {
		if r.value == "" {
			return oops.Code("OAUTH_PROVIDER_CONFIG_INVALID").
				With("provider", c.Name).
				With("field", r.key).
				Errorf("oauth provider %s is required", r.key)
		}
	}
	return nil
}

// Provider is an auth.OAuthProvider backed by an oauth2.Config.
type Provider struct {
	name        string
	oauth       *oauth2.Config
	userInfoURL string
	revokeURL   string
	claims      Claims
	client      *http.Client
}

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient sets the client used for every provider request.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		if client != nil {
			p.client = client
		}
	}
}

// NewProvider creates a Provider from cfg.
func NewProvider(cfg Config, opts ...Option) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Provider{
		name: cfg.Name,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
			RedirectURL: cfg.RedirectURL,
			Scopes:      cfg.Scopes,
		},
		userInfoURL: cfg.UserInfoURL,
		revokeURL:   cfg.RevokeURL,
		claims:      cfg.Claims.withDefaults(),
		client:      &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.name }

// AuthURL builds the authorization URL with an S256 PKCE challenge.
func (p *Provider) AuthURL(state, codeVerifier string) string {
	return p.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(codeVerifier))
}

// Exchange trades an authorization code for tokens.
func (p *Provider) Exchange(ctx context.Context, code, codeVerifier string) (*auth.OAuthTokens, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	token, err := p.oauth.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, oops.Code("OAUTH_TOKEN_EXCHANGE_FAILED").With("provider", p.name).Wrap(err)
	}
	return &auth.OAuthTokens{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}, nil
}

// AccountInfo fetches the userinfo document. A document without an ID
// yields nil.
func (p *Provider) AccountInfo(ctx context.Context, accessToken string) (*auth.OAuthAccountInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, oops.Code("OAUTH_USERINFO_FAILED").With("provider", p.name).Wrap(err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, oops.Code("OAUTH_USERINFO_FAILED").With("provider", p.name).Wrap(err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode != http.StatusOK {
		return nil, oops.Code("OAUTH_USERINFO_FAILED").
			With("provider", p.name).
			With("status", resp.StatusCode).
			Errorf("userinfo returned %s", resp.Status)
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, maxUserInfoBytes))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, oops.Code("OAUTH_USERINFO_FAILED").
			With("provider", p.name).
			With("operation", "decode userinfo").
			Wrap(err)
	}

	id := claimString(doc, p.claims.ID)
	if id == "" {
		return nil, nil
	}
	return &auth.OAuthAccountInfo{
		ID:            id,
		Email:         claimString(doc, p.claims.Email),
		Name:          claimString(doc, p.claims.Name),
		IconURL:       claimString(doc, p.claims.Picture),
		EmailVerified: claimBool(doc, p.claims.EmailVerified),
	}, nil
}

// Revoke posts token to the RFC 7009 revocation endpoint. Providers
// without one are skipped.
func (p *Provider) Revoke(ctx context.Context, token string) error {
	if p.revokeURL == "" {
		return nil
	}
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return oops.Code("OAUTH_REVOKE_FAILED").With("provider", p.name).Wrap(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(url.QueryEscape(p.oauth.ClientID), url.QueryEscape(p.oauth.ClientSecret))

	resp, err := p.client.Do(req)
	if err != nil {
		return oops.Code("OAUTH_REVOKE_FAILED").With("provider", p.name).Wrap(err)
	}
	defer resp.Body.Close() //nolint:errcheck // body unused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxUserInfoBytes))

	if resp.StatusCode != http.StatusOK {
		return oops.Code("OAUTH_REVOKE_FAILED").
			With("provider", p.name).
			With("status", resp.StatusCode).
			Errorf("revocation returned %s", resp.Status)
	}
	return nil
}

func claimString(doc map[string]any, key string) string {
	switch v := doc[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func claimBool(doc map[string]any, key string) bool {
	switch v := doc[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}

var _ auth.OAuthProvider = (*Provider)(nil)

// NewProviders builds one Provider per config, in order.
func NewProviders(cfgs []Config, opts ...Option) ([]auth.OAuthProvider, error) {
	providers := make([]auth.OAuthProvider, 0, len(cfgs))
	for _, cfg := range cfgs {
		p, err := NewProvider(cfg, opts...)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, nil
}
