// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory provides in-process implementations of the auth
// repositories for tests and single-node development.
package memory

import (
	"sync"

	"github.com/holomush/holoauth/internal/auth"
)

type providerKey struct {
	provider       string
	providerUserID string
}

// Store holds every auth record in maps guarded by one mutex. Single-use
// transitions run under the lock, so they are atomic.
type Store struct {
	mu sync.Mutex

	users    map[auth.UserID]*auth.User
	emails   map[string]auth.UserID
	creds    map[auth.UserID]*auth.UserCredential
	accounts map[auth.OAuthAccountID]*auth.OAuthAccount
	links    map[providerKey]auth.OAuthAccountID

	logins       map[auth.LoginSessionID]*auth.LoginSession
	signups      map[auth.SignupSessionID]*auth.SignupSession
	resets       map[auth.PasswordResetSessionID]*auth.PasswordResetSession
	associations map[auth.AssociationSessionID]*auth.AccountAssociationSession
	codes        map[auth.UserID]*auth.EmailVerificationCode
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:        make(map[auth.UserID]*auth.User),
		emails:       make(map[string]auth.UserID),
		creds:        make(map[auth.UserID]*auth.UserCredential),
		accounts:     make(map[auth.OAuthAccountID]*auth.OAuthAccount),
		links:        make(map[providerKey]auth.OAuthAccountID),
		logins:       make(map[auth.LoginSessionID]*auth.LoginSession),
		signups:      make(map[auth.SignupSessionID]*auth.SignupSession),
		resets:       make(map[auth.PasswordResetSessionID]*auth.PasswordResetSession),
		associations: make(map[auth.AssociationSessionID]*auth.AccountAssociationSession),
		codes:        make(map[auth.UserID]*auth.EmailVerificationCode),
	}
}

// Repository views of the store.
type (
	UserRepo                 struct{ s *Store }
	CredentialRepo           struct{ s *Store }
	OAuthAccountRepo         struct{ s *Store }
	LoginSessionRepo         struct{ s *Store }
	SignupSessionRepo        struct{ s *Store }
	PasswordResetSessionRepo struct{ s *Store }
	AssociationSessionRepo   struct{ s *Store }
	VerificationCodeRepo     struct{ s *Store }
)

// Interface checks.
var (
	_ auth.UserRepository                 = UserRepo{}
	_ auth.CredentialRepository           = CredentialRepo{}
	_ auth.OAuthAccountRepository         = OAuthAccountRepo{}
	_ auth.LoginSessionRepository         = LoginSessionRepo{}
	_ auth.SignupSessionRepository        = SignupSessionRepo{}
	_ auth.PasswordResetSessionRepository = PasswordResetSessionRepo{}
	_ auth.AssociationSessionRepository   = AssociationSessionRepo{}
	_ auth.VerificationCodeRepository     = VerificationCodeRepo{}
)

// Users returns the user repository.
func (s *Store) Users() UserRepo { return UserRepo{s} }

// Credentials returns the credential repository.
func (s *Store) Credentials() CredentialRepo { return CredentialRepo{s} }

// OAuthAccounts returns the OAuth account repository.
func (s *Store) OAuthAccounts() OAuthAccountRepo { return OAuthAccountRepo{s} }

// LoginSessions returns the login session repository.
func (s *Store) LoginSessions() LoginSessionRepo { return LoginSessionRepo{s} }

// SignupSessions returns the signup session repository.
func (s *Store) SignupSessions() SignupSessionRepo { return SignupSessionRepo{s} }

// ResetSessions returns the password reset session repository.
func (s *Store) ResetSessions() PasswordResetSessionRepo { return PasswordResetSessionRepo{s} }

// AssociationSessions returns the association session repository.
func (s *Store) AssociationSessions() AssociationSessionRepo { return AssociationSessionRepo{s} }

// Codes returns the verification code repository.
func (s *Store) Codes() VerificationCodeRepo { return VerificationCodeRepo{s} }

// Deps returns auth.Deps with every repository field pointing at s.
func (s *Store) Deps() auth.Deps {
	return auth.Deps{
		Users:               s.Users(),
		Credentials:         s.Credentials(),
		OAuthAccounts:       s.OAuthAccounts(),
		LoginSessions:       s.LoginSessions(),
		SignupSessions:      s.SignupSessions(),
		ResetSessions:       s.ResetSessions(),
		AssociationSessions: s.AssociationSessions(),
		Codes:               s.Codes(),
	}
}

// clone returns a shallow copy of v so callers never share stored records.
func clone[T any](v *T) *T {
	c := *v
	return &c
}
