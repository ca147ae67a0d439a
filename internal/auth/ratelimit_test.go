// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/internal/auth"
)

func TestIsLockedOut(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("nil locked_until means not locked", func(t *testing.T) {
		assert.False(t, auth.IsLockedOut(nil, now))
	})

	t.Run("past locked_until means not locked", func(t *testing.T) {
		past := now.Add(-time.Hour)
		assert.False(t, auth.IsLockedOut(&past, now))
	})

	t.Run("locked_until equal to now means not locked", func(t *testing.T) {
		assert.False(t, auth.IsLockedOut(&now, now))
	})

	t.Run("future locked_until means locked", func(t *testing.T) {
		future := now.Add(time.Hour)
		assert.True(t, auth.IsLockedOut(&future, now))
	})
}

func TestComputeLockoutTime(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("below threshold returns nil", func(t *testing.T) {
		assert.Nil(t, auth.ComputeLockoutTime(auth.LockoutThreshold-1, now))
	})

	t.Run("at threshold locks for LockoutDuration", func(t *testing.T) {
		lockout := auth.ComputeLockoutTime(auth.LockoutThreshold, now)
		require.NotNil(t, lockout)
		assert.Equal(t, now.Add(auth.LockoutDuration), *lockout)
	})

	t.Run("above threshold still locks", func(t *testing.T) {
		assert.NotNil(t, auth.ComputeLockoutTime(auth.LockoutThreshold+3, now))
	})
}

func TestUserCredential_FailureAndSuccess(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cred := auth.UserCredential{FailedAttempts: auth.LockoutThreshold - 1}

	failed := cred.WithFailure(now)
	assert.Equal(t, auth.LockoutThreshold, failed.FailedAttempts)
	assert.True(t, failed.IsLockedAt(now))
	assert.Equal(t, auth.LockoutThreshold-1, cred.FailedAttempts, "original must be unchanged")

	cleared := failed.WithSuccess(now)
	assert.Zero(t, cleared.FailedAttempts)
	assert.Nil(t, cleared.LockedUntil)
	assert.False(t, cleared.IsLockedAt(now))
}
