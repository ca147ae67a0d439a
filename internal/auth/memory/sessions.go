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

// create inserts v under id unless the id is taken.
func create[K comparable, V any](m map[K]*V, id K, v *V) error {
	if _, ok := m[id]; ok {
		return oops.Wrapf(auth.ErrDuplicate, "session id taken")
	}
	m[id] = clone(v)
	return nil
}

func get[K comparable, V any](m map[K]*V, id K) (*V, error) {
	v, ok := m[id]
	if !ok {
		return nil, oops.Wrap(auth.ErrNotFound)
	}
	return clone(v), nil
}

func remove[K comparable, V any](m map[K]*V, id K) bool {
	_, ok := m[id]
	delete(m, id)
	return ok
}

// removeWhere deletes every entry matching pred and returns the count.
func removeWhere[K comparable, V any](m map[K]*V, pred func(*V) bool) int64 {
	var n int64
	for id, v := range m {
		if pred(v) {
			delete(m, id)
			n++
		}
	}
	return n
}

// Create stores a new login session.
func (r LoginSessionRepo) Create(_ context.Context, session *auth.LoginSession) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return create(r.s.logins, session.ID, session)
}

// GetByID retrieves a login session.
func (r LoginSessionRepo) GetByID(_ context.Context, id auth.LoginSessionID) (*auth.LoginSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return get(r.s.logins, id)
}

// GetByUser lists the sessions of a user, newest first.
func (r LoginSessionRepo) GetByUser(_ context.Context, userID auth.UserID) ([]*auth.LoginSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*auth.LoginSession
	for _, session := range r.s.logins {
		if session.UserID == userID {
			out = append(out, clone(session))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Renew moves the expiry of a session and clears Fresh.
func (r LoginSessionRepo) Renew(_ context.Context, id auth.LoginSessionID, expiresAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	session, ok := r.s.logins[id]
	if !ok {
		return oops.With("session_id", id.String()).Wrap(auth.ErrNotFound)
	}
	renewed := clone(session)
	renewed.ExpiresAt = expiresAt
	renewed.Fresh = false
	r.s.logins[id] = renewed
	return nil
}

// ClearFresh clears the Fresh flag of a session.
func (r LoginSessionRepo) ClearFresh(_ context.Context, id auth.LoginSessionID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	session, ok := r.s.logins[id]
	if !ok || !session.Fresh {
		return nil
	}
	stale := clone(session)
	stale.Fresh = false
	r.s.logins[id] = stale
	return nil
}

// Delete removes a session and reports whether it existed.
func (r LoginSessionRepo) Delete(_ context.Context, id auth.LoginSessionID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return remove(r.s.logins, id), nil
}

// DeleteByUser removes all sessions of a user.
func (r LoginSessionRepo) DeleteByUser(_ context.Context, userID auth.UserID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return removeWhere(r.s.logins, func(v *auth.LoginSession) bool { return v.UserID == userID }), nil
}

// DeleteExpired removes sessions expired at or before now.
func (r LoginSessionRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return removeWhere(r.s.logins, func(v *auth.LoginSession) bool { return v.IsExpiredAt(now) }), nil
}

// Create stores a new signup session.
func (r SignupSessionRepo) Create(_ context.Context, session *auth.SignupSession) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return create(r.s.signups, session.ID, session)
}

// GetByID retrieves a signup session.
func (r SignupSessionRepo) GetByID(_ context.Context, id auth.SignupSessionID) (*auth.SignupSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return get(r.s.signups, id)
}

// MarkEmailVerified flags the session verified if it is unverified and its
// code still equals code.
func (r SignupSessionRepo) MarkEmailVerified(_ context.Context, id auth.SignupSessionID, code string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	session, ok := r.s.signups[id]
	if !ok || session.EmailVerified || session.Code != code {
		return false, nil
	}
	verified := clone(session)
	verified.EmailVerified = true
	r.s.signups[id] = verified
	return true, nil
}

// UpdateCode replaces the code of an unverified session.
func (r SignupSessionRepo) UpdateCode(_ context.Context, id auth.SignupSessionID, code string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	session, ok := r.s.signups[id]
	if !ok || session.EmailVerified {
		return false, nil
	}
	updated := clone(session)
	updated.Code = code
	r.s.signups[id] = updated
	return true, nil
}

// Delete removes a signup session and reports whether it existed.
func (r SignupSessionRepo) Delete(_ context.Context, id auth.SignupSessionID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return remove(r.s.signups, id), nil
}

// DeleteByEmail removes all signup sessions for an email.
func (r SignupSessionRepo) DeleteByEmail(_ context.Context, email string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return removeWhere(r.s.signups, func(v *auth.SignupSession) bool { return v.Email == email }), nil
}

// DeleteExpired removes signup sessions expired at or before now.
func (r SignupSessionRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return removeWhere(r.s.signups, func(v *auth.SignupSession) bool { return v.IsExpiredAt(now) }), nil
}

// Create stores a new reset session.
func (r PasswordResetSessionRepo) Create(_ context.Context, session *auth.PasswordResetSession) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return create(r.s.resets, session.ID, session)
}

// GetByID retrieves a reset session.
func (r PasswordResetSessionRepo) GetByID(_ context.Context, id auth.PasswordResetSessionID) (*auth.PasswordResetSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return get(r.s.resets, id)
}

// Delete removes a reset session and reports whether it existed.
func (r PasswordResetSessionRepo) Delete(_ context.Context, id auth.PasswordResetSessionID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return remove(r.s.resets, id), nil
}

// DeleteByUser removes all reset sessions of a user.
func (r PasswordResetSessionRepo) DeleteByUser(_ context.Context, userID auth.UserID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return removeWhere(r.s.resets, func(v *auth.PasswordResetSession) bool { return v.UserID == userID }), nil
}

// DeleteExpired removes reset sessions expired at or before now.
func (r PasswordResetSessionRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return removeWhere(r.s.resets, func(v *auth.PasswordResetSession) bool { return v.IsExpiredAt(now) }), nil
}

// Create stores a new association challenge.
func (r AssociationSessionRepo) Create(_ context.Context, session *auth.AccountAssociationSession) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return create(r.s.associations, session.ID, session)
}

// GetByID retrieves an association challenge.
func (r AssociationSessionRepo) GetByID(_ context.Context, id auth.AssociationSessionID) (*auth.AccountAssociationSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return get(r.s.associations, id)
}

// Delete removes a challenge and reports whether it existed.
func (r AssociationSessionRepo) Delete(_ context.Context, id auth.AssociationSessionID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return remove(r.s.associations, id), nil
}

// DeleteByUser removes all challenges of a user.
func (r AssociationSessionRepo) DeleteByUser(_ context.Context, userID auth.UserID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return removeWhere(r.s.associations, func(v *auth.AccountAssociationSession) bool { return v.UserID == userID }), nil
}

// DeleteExpired removes challenges expired at or before now.
func (r AssociationSessionRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return removeWhere(r.s.associations, func(v *auth.AccountAssociationSession) bool { return v.IsExpiredAt(now) }), nil
}
