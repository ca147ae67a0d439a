// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package memory

import (
	"context"
	"sort"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

// Create stores a user with its credential and optional first OAuth account.
func (r UserRepo) Create(_ context.Context, user *auth.User, cred *auth.UserCredential, account *auth.OAuthAccount) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return oops.With("user_id", user.ID.String()).Wrapf(auth.ErrDuplicate, "user id taken")
	}
	if _, ok := s.emails[user.Email]; ok {
		return oops.With("email", user.Email).Wrapf(auth.ErrDuplicate, "email taken")
	}
	if account != nil {
		if _, ok := s.links[providerKey{account.Provider, account.ProviderUserID}]; ok {
			return oops.With("provider", account.Provider).Wrapf(auth.ErrDuplicate, "oauth account taken")
		}
		if _, ok := s.accounts[account.ID]; ok {
			return oops.With("account_id", account.ID.String()).Wrapf(auth.ErrDuplicate, "oauth account id taken")
		}
	}

	s.users[user.ID] = clone(user)
	s.emails[user.Email] = user.ID
	if cred != nil {
		c := clone(cred)
		c.UserID = user.ID
		s.creds[user.ID] = c
	}
	if account != nil {
		s.putAccount(account)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r UserRepo) GetByID(_ context.Context, id auth.UserID) (*auth.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, oops.With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return clone(u), nil
}

// GetByEmail retrieves a user by normalized email.
func (r UserRepo) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	id, ok := r.s.emails[email]
	if !ok {
		return nil, oops.Wrap(auth.ErrNotFound)
	}
	return clone(r.s.users[id]), nil
}

// MarkEmailVerified sets the user's email and flags it verified.
func (r UserRepo) MarkEmailVerified(_ context.Context, id auth.UserID, email string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return oops.With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	if owner, taken := s.emails[email]; taken && owner != id {
		return oops.With("email", email).Wrapf(auth.ErrDuplicate, "email taken")
	}

	updated := clone(u)
	delete(s.emails, u.Email)
	updated.Email = email
	updated.EmailVerified = true
	updated.UpdatedAt = time.Now().UTC()
	s.users[id] = updated
	s.emails[email] = id
	return nil
}

// GetByUser retrieves the credential of a user.
func (r CredentialRepo) GetByUser(_ context.Context, userID auth.UserID) (*auth.UserCredential, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.creds[userID]
	if !ok {
		return nil, oops.With("user_id", userID.String()).Wrap(auth.ErrNotFound)
	}
	return clone(c), nil
}

// Update stores the failure counter and lockout state.
func (r CredentialRepo) Update(_ context.Context, cred *auth.UserCredential) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.creds[cred.UserID]
	if !ok {
		return oops.With("user_id", cred.UserID.String()).Wrap(auth.ErrNotFound)
	}
	updated := clone(c)
	updated.FailedAttempts = cred.FailedAttempts
	updated.LockedUntil = cred.LockedUntil
	updated.UpdatedAt = cred.UpdatedAt
	r.s.creds[cred.UserID] = updated
	return nil
}

// UpdatePassword replaces the password hash and clears any lockout.
func (r CredentialRepo) UpdatePassword(_ context.Context, userID auth.UserID, passwordHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.creds[userID]
	if !ok {
		return oops.With("user_id", userID.String()).Wrap(auth.ErrNotFound)
	}
	updated := clone(c)
	updated.PasswordHash = &passwordHash
	updated.FailedAttempts = 0
	updated.LockedUntil = nil
	updated.UpdatedAt = time.Now().UTC()
	r.s.creds[userID] = updated
	return nil
}

// Create stores a new provider link.
func (r OAuthAccountRepo) Create(_ context.Context, account *auth.OAuthAccount) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.links[providerKey{account.Provider, account.ProviderUserID}]; ok {
		return oops.With("provider", account.Provider).Wrapf(auth.ErrDuplicate, "oauth account taken")
	}
	if _, ok := s.accounts[account.ID]; ok {
		return oops.With("account_id", account.ID.String()).Wrapf(auth.ErrDuplicate, "oauth account id taken")
	}
	if _, ok := s.users[account.UserID]; !ok {
		return oops.With("user_id", account.UserID.String()).Wrap(auth.ErrNotFound)
	}
	s.putAccount(account)
	return nil
}

// putAccount stores account. Callers hold s.mu.
func (s *Store) putAccount(account *auth.OAuthAccount) {
	s.accounts[account.ID] = clone(account)
	s.links[providerKey{account.Provider, account.ProviderUserID}] = account.ID
}

// GetByProviderUser retrieves the link for a provider identity.
func (r OAuthAccountRepo) GetByProviderUser(_ context.Context, provider, providerUserID string) (*auth.OAuthAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	id, ok := r.s.links[providerKey{provider, providerUserID}]
	if !ok {
		return nil, oops.With("provider", provider).Wrap(auth.ErrNotFound)
	}
	return clone(r.s.accounts[id]), nil
}

// GetByUser lists the links of a user, oldest first.
func (r OAuthAccountRepo) GetByUser(_ context.Context, userID auth.UserID) ([]*auth.OAuthAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*auth.OAuthAccount
	for _, a := range r.s.accounts {
		if a.UserID == userID {
			out = append(out, clone(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.ULID().Compare(out[j].ID.ULID()) < 0
	})
	return out, nil
}
