// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package memory

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

// Replace stores code as the only code of its user.
func (r VerificationCodeRepo) Replace(_ context.Context, code *auth.EmailVerificationCode) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.codes[code.UserID] = clone(code)
	return nil
}

// Restore stores code if its user has no code.
func (r VerificationCodeRepo) Restore(_ context.Context, code *auth.EmailVerificationCode) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.codes[code.UserID]; ok {
		return false, nil
	}
	r.s.codes[code.UserID] = clone(code)
	return true, nil
}

// GetByUser retrieves the active code of a user.
func (r VerificationCodeRepo) GetByUser(_ context.Context, userID auth.UserID) (*auth.EmailVerificationCode, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return get(r.s.codes, userID)
}

// Consume deletes and returns the user's code if it matches and is unexpired.
func (r VerificationCodeRepo) Consume(_ context.Context, userID auth.UserID, code string, now time.Time) (*auth.EmailVerificationCode, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.codes[userID]
	if !ok || stored.IsExpiredAt(now) || subtle.ConstantTimeCompare([]byte(stored.Code), []byte(code)) != 1 {
		return nil, oops.With("user_id", userID.String()).Wrap(auth.ErrNotFound)
	}
	delete(r.s.codes, userID)
	return stored, nil
}

// DeleteByUser removes the code of a user.
func (r VerificationCodeRepo) DeleteByUser(_ context.Context, userID auth.UserID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.codes, userID)
	return nil
}

// DeleteExpired removes codes expired at or before now.
func (r VerificationCodeRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return removeWhere(r.s.codes, func(v *auth.EmailVerificationCode) bool { return v.IsExpiredAt(now) }), nil
}
