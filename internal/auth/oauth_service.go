// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Lengths of the values generated for an authorization request.
const (
	OAuthStateLength        = 32
	OAuthCodeVerifierLength = 64
)

// pkceAlphabet holds the unreserved characters allowed in a PKCE verifier.
const pkceAlphabet = "-._~"

// oauthStateIssuer is the iss claim of state cookies.
const oauthStateIssuer = "holoauth"

// OAuthRequest is a started authorization request. Cookie must be stored by
// the client until the provider redirects back.
type OAuthRequest struct {
	Provider     string
	AuthURL      string
	State        string
	CodeVerifier string
	Cookie       string
	ExpiresAt    time.Time
}

// OAuthOutcome tells which way a completed callback went.
type OAuthOutcome int

// OAuth callback outcomes.
const (
	// OAuthSignedIn means the identity was already linked.
	OAuthSignedIn OAuthOutcome = iota + 1
	// OAuthSignedUp means a new OAuth-only user was created.
	OAuthSignedUp
	// OAuthAssociationRequired means the identity's email belongs to an
	// existing user who must confirm the link.
	OAuthAssociationRequired
)

// String returns a lowercase name for logs and metrics.
func (o OAuthOutcome) String() string {
	switch o {
	case OAuthSignedIn:
		return "signed_in"
	case OAuthSignedUp:
		return "signed_up"
	case OAuthAssociationRequired:
		return "association_required"
	default:
		return "unknown"
	}
}

// OAuthResult is the result of CompleteOAuth. Session is set for
// OAuthSignedIn and OAuthSignedUp, Association for OAuthAssociationRequired.
type OAuthResult struct {
	Outcome     OAuthOutcome
	UserID      UserID
	Session     *IssuedSession
	Association *AssociationChallenge
}

// AssociationChallenge is a pending account link and its token.
type AssociationChallenge struct {
	Session *AccountAssociationSession
	Token   string
}

// oauthStateClaims is the payload of the signed state cookie.
type oauthStateClaims struct {
	Provider     string `json:"prv"`
	State        string `json:"st"`
	CodeVerifier string `json:"cv"`
	jwt.RegisteredClaims
}

// OAuthService runs the OAuth authorization code flow and the account
// association challenge.
type OAuthService struct {
	base
	users        UserRepository
	accounts     OAuthAccountRepository
	associations AssociationSessionRepository
	sessions     *SessionService
	providers    map[string]OAuthProvider
	stateKey     []byte
}

// NewOAuthService creates a new OAuthService. stateKey signs state cookies
// and must be at least MinSecretKeyBytes long.
func NewOAuthService(d Deps, cfg Config, sessions *SessionService, stateKey []byte, providers ...OAuthProvider) (*OAuthService, error) {
	if err := checkDeps(
		dependency{"users repository", d.Users},
		dependency{"oauth accounts repository", d.OAuthAccounts},
		dependency{"association sessions repository", d.AssociationSessions},
	); err != nil {
		return nil, err
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_DEPENDENCY_MISSING").
			With("dependency", "session service").
			Errorf("session service is required")
	}
	if len(stateKey) < MinSecretKeyBytes {
		return nil, oops.Code("OAUTH_STATE_KEY_INVALID").
			With("min_bytes", MinSecretKeyBytes).
			Errorf("state key must be at least %d bytes", MinSecretKeyBytes)
	}
	b, err := newBase(d, cfg)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]OAuthProvider, len(providers))
	for _, p := range providers {
		if p == nil || p.Name() == "" {
			return nil, oops.Code("OAUTH_PROVIDER_INVALID").Errorf("provider must have a name")
		}
		if _, dup := byName[p.Name()]; dup {
			return nil, oops.Code("OAUTH_PROVIDER_INVALID").
				With("provider", p.Name()).
				Errorf("provider %q registered twice", p.Name())
		}
		byName[p.Name()] = p
	}

	return &OAuthService{
		base:         b,
		users:        d.Users,
		accounts:     d.OAuthAccounts,
		associations: d.AssociationSessions,
		sessions:     sessions,
		providers:    byName,
		stateKey:     append([]byte(nil), stateKey...),
	}, nil
}

func (s *OAuthService) provider(name string) (OAuthProvider, error) {
	p, ok := s.providers[name]
	if !ok {
		return nil, oops.Code(CodeOAuthProviderUnknown).
			With("provider", name).
			Errorf("unknown oauth provider %q", name)
	}
	return p, nil
}

// BeginOAuth starts an authorization request with a new state and PKCE
// verifier. Nothing is stored server side.
func (s *OAuthService) BeginOAuth(provider string) (*OAuthRequest, error) {
	p, err := s.provider(provider)
	if err != nil {
		return nil, err
	}

	state, err := s.random.String(OAuthStateLength, Lowercase, Uppercase, Digits)
	if err != nil {
		return nil, oops.Code("OAUTH_BEGIN_FAILED").With("operation", "generate state").Wrap(err)
	}
	verifier, err := s.random.String(OAuthCodeVerifierLength, Lowercase, Uppercase, Digits, pkceAlphabet)
	if err != nil {
		return nil, oops.Code("OAUTH_BEGIN_FAILED").With("operation", "generate code verifier").Wrap(err)
	}

	now := s.now()
	expiresAt := now.Add(s.cfg.OAuthStateTTL)
	claims := oauthStateClaims{
		Provider:     provider,
		State:        state,
		CodeVerifier: verifier,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    oauthStateIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	cookie, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.stateKey)
	if err != nil {
		return nil, oops.Code("OAUTH_BEGIN_FAILED").With("operation", "sign state").Wrap(err)
	}

	return &OAuthRequest{
		Provider:     provider,
		AuthURL:      p.AuthURL(state, verifier),
		State:        state,
		CodeVerifier: verifier,
		Cookie:       cookie,
		ExpiresAt:    expiresAt,
	}, nil
}

// VerifyOAuthState checks a callback's state against the signed cookie and
// returns the PKCE verifier. Any signature, expiry, provider or state
// mismatch fails with OAUTH_STATE_INVALID.
func (s *OAuthService) VerifyOAuthState(cookie, provider, state string) (string, error) {
	var claims oauthStateClaims
	_, err := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(oauthStateIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	).ParseWithClaims(cookie, &claims, func(*jwt.Token) (any, error) {
		return s.stateKey, nil
	})
	if err != nil {
		return "", oops.Code(CodeOAuthStateInvalid).
			With("reason", err.Error()).
			Errorf("oauth state is invalid")
	}
	if claims.Provider != provider || state == "" ||
		subtle.ConstantTimeCompare([]byte(claims.State), []byte(state)) != 1 {
		return "", oops.Code(CodeOAuthStateInvalid).
			With("reason", "mismatch").
			Errorf("oauth state is invalid")
	}
	return claims.CodeVerifier, nil
}

// CompleteOAuth finishes the callback of provider. It verifies the state,
// exchanges the code, and then signs in a linked identity, starts an
// association challenge when the email belongs to an existing user, or
// creates an OAuth-only user.
func (s *OAuthService) CompleteOAuth(ctx context.Context, provider, cookie, state, code string) (*OAuthResult, error) {
	result, err := s.completeOAuth(ctx, provider, cookie, state, code)
	s.record("oauth_callback", err)
	if err == nil {
		s.logger.InfoContext(ctx, "oauth callback completed",
			"provider", provider,
			"outcome", result.Outcome.String(),
			"user_id", result.UserID.String())
	}
	return result, err
}

func (s *OAuthService) completeOAuth(ctx context.Context, provider, cookie, state, code string) (*OAuthResult, error) {
	p, err := s.provider(provider)
	if err != nil {
		return nil, err
	}
	verifier, err := s.VerifyOAuthState(cookie, provider, state)
	if err != nil {
		return nil, err
	}

	info, err := s.fetchAccountInfo(ctx, p, code, verifier)
	if err != nil {
		return nil, err
	}

	link, err := s.accounts.GetByProviderUser(ctx, provider, info.ID)
	switch {
	case err == nil:
		issued, err := s.sessions.CreateSession(ctx, link.UserID)
		if err != nil {
			return nil, err
		}
		return &OAuthResult{Outcome: OAuthSignedIn, UserID: link.UserID, Session: issued}, nil
	case !errors.Is(err, ErrNotFound):
		return nil, oops.Code("OAUTH_CALLBACK_FAILED").
			With("operation", "get oauth account").
			With("provider", provider).
			Wrap(err)
	}

	user, err := s.users.GetByEmail(ctx, info.Email)
	switch {
	case err == nil:
		challenge, err := s.StartAssociation(ctx, user.ID, provider, info.ID)
		if err != nil {
			return nil, err
		}
		return &OAuthResult{Outcome: OAuthAssociationRequired, UserID: user.ID, Association: challenge}, nil
	case !errors.Is(err, ErrNotFound):
		return nil, oops.Code("OAUTH_CALLBACK_FAILED").
			With("operation", "get user by email").
			With("provider", provider).
			Wrap(err)
	}

	return s.signUp(ctx, provider, info)
}

// fetchAccountInfo exchanges the code and reads the provider identity. The
// provider token is revoked afterwards; it is never stored.
func (s *OAuthService) fetchAccountInfo(ctx context.Context, p OAuthProvider, code, verifier string) (*OAuthAccountInfo, error) {
	if code == "" {
		return nil, oops.Code(CodeOAuthStateInvalid).With("reason", "missing code").Errorf("oauth state is invalid")
	}
	tokens, err := p.Exchange(ctx, code, verifier)
	if err != nil {
		return nil, oops.Code("OAUTH_EXCHANGE_FAILED").
			With("operation", "exchange code").
			With("provider", p.Name()).
			Wrap(err)
	}
	if tokens == nil || tokens.AccessToken == "" {
		return nil, oops.Code("OAUTH_EXCHANGE_FAILED").
			With("provider", p.Name()).
			Errorf("provider returned no access token")
	}
	defer func() {
		if err := p.Revoke(ctx, tokens.AccessToken); err != nil {
			s.logger.WarnContext(ctx, "failed to revoke provider token",
				"provider", p.Name(),
				"error", err)
		}
	}()

	info, err := p.AccountInfo(ctx, tokens.AccessToken)
	if err != nil {
		return nil, oops.Code("OAUTH_EXCHANGE_FAILED").
			With("operation", "get account info").
			With("provider", p.Name()).
			Wrap(err)
	}
	return checkAccountInfo(info)
}

// checkAccountInfo rejects provider responses without a usable identity and
// returns a normalized copy.
func checkAccountInfo(info *OAuthAccountInfo) (*OAuthAccountInfo, error) {
	if info == nil {
		return nil, oops.Code(CodeOAuthAccountInfoInvalid).Errorf("provider returned no account")
	}
	if info.ID == "" {
		return nil, oops.Code(CodeOAuthAccountInfoInvalid).Errorf("provider account has no id")
	}
	checked := *info
	checked.Email = NormalizeEmail(info.Email)
	if err := ValidateEmail(checked.Email); err != nil {
		return nil, oops.Code(CodeOAuthAccountInfoInvalid).Errorf("provider account has no valid email")
	}
	return &checked, nil
}

func (s *OAuthService) signUp(ctx context.Context, provider string, info *OAuthAccountInfo) (*OAuthResult, error) {
	now := s.now()
	userID, err := s.random.NewID(now)
	if err != nil {
		return nil, oops.Code("OAUTH_SIGNUP_FAILED").With("operation", "generate user id").Wrap(err)
	}
	accountID, err := s.random.NewID(now)
	if err != nil {
		return nil, oops.Code("OAUTH_SIGNUP_FAILED").With("operation", "generate account id").Wrap(err)
	}

	user := &User{
		ID:            UserID(userID),
		Email:         info.Email,
		EmailVerified: info.EmailVerified,
		Name:          info.Name,
		IconURL:       info.IconURL,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	cred := &UserCredential{UserID: user.ID, CreatedAt: now, UpdatedAt: now}
	account := &OAuthAccount{
		ID:             OAuthAccountID(accountID),
		UserID:         user.ID,
		Provider:       provider,
		ProviderUserID: info.ID,
		CreatedAt:      now,
	}
	if err := s.users.Create(ctx, user, cred, account); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, oops.Code(CodeEmailAlreadyUsed).Errorf("email is already registered")
		}
		return nil, oops.Code("OAUTH_SIGNUP_FAILED").
			With("operation", "create user").
			With("provider", provider).
			Wrap(err)
	}

	issued, err := s.sessions.CreateSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &OAuthResult{Outcome: OAuthSignedUp, UserID: user.ID, Session: issued}, nil
}

// StartAssociation creates the challenge userID must confirm before the
// provider identity is linked to the account.
func (s *OAuthService) StartAssociation(ctx context.Context, userID UserID, provider, providerUserID string) (*AssociationChallenge, error) {
	now := s.now()
	var session *AccountAssociationSession
	token, err := s.issue(ctx, "association_session", now, func(ctx context.Context, c credential) error {
		var err error
		session, err = NewAccountAssociationSession(AssociationSessionID(c.id), userID, provider, providerUserID,
			c.hash, now, now.Add(s.cfg.AssociationTTL))
		if err != nil {
			return err
		}
		return s.associations.Create(ctx, session)
	})
	if err != nil {
		if HasCode(err, CodeDuplicateID) {
			return nil, err
		}
		return nil, oops.Code("ASSOCIATION_CREATE_FAILED").
			With("operation", "persist association session").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return &AssociationChallenge{Session: session, Token: token}, nil
}

// ConfirmAssociation consumes the challenge behind token on behalf of the
// authenticated userID and links the provider identity. A challenge issued
// to another user is reported as not found.
func (s *OAuthService) ConfirmAssociation(ctx context.Context, token string, userID UserID) (*OAuthAccount, error) {
	account, err := s.confirmAssociation(ctx, token, userID)
	s.record("association_confirm", err)
	return account, err
}

func (s *OAuthService) confirmAssociation(ctx context.Context, token string, userID UserID) (*OAuthAccount, error) {
	session, err := lookup(ctx, &s.base, "association_session", token,
		func(ctx context.Context, id ulid.ULID) (*AccountAssociationSession, error) {
			return s.associations.GetByID(ctx, AssociationSessionID(id))
		},
		func(ctx context.Context, id ulid.ULID) (bool, error) {
			return s.associations.Delete(ctx, AssociationSessionID(id))
		})
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, oops.Code(CodeNotFoundOrExpired).
			With("kind", "association_session").
			With("reason", "user_mismatch").
			Errorf("session not found or expired")
	}

	deleted, err := s.associations.Delete(ctx, session.ID)
	if err != nil {
		return nil, oops.Code("ASSOCIATION_CONFIRM_FAILED").
			With("operation", "consume association session").
			With("session_id", session.ID.String()).
			Wrap(err)
	}
	if !deleted {
		return nil, oops.Code(CodeAlreadyConsumed).Errorf("association was already confirmed")
	}

	now := s.now()
	id, err := s.random.NewID(now)
	if err != nil {
		return nil, oops.Code("ASSOCIATION_CONFIRM_FAILED").With("operation", "generate account id").Wrap(err)
	}
	account := &OAuthAccount{
		ID:             OAuthAccountID(id),
		UserID:         userID,
		Provider:       session.Provider,
		ProviderUserID: session.ProviderUserID,
		CreatedAt:      now,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, oops.Code(CodeOAuthAccountAlreadyLinked).
				With("provider", session.Provider).
				Errorf("provider account is already linked")
		}
		s.restore(ctx, "association_session", session.ID.String(), func(ctx context.Context) error {
			return s.associations.Create(ctx, session)
		})
		return nil, oops.Code("ASSOCIATION_CONFIRM_FAILED").
			With("operation", "create oauth account").
			With("user_id", userID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "oauth account linked",
		"user_id", userID.String(),
		"provider", session.Provider)
	return account, nil
}
