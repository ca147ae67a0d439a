// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"time"
)

// Login lockout configuration.
const (
	// LockoutDuration is the time a credential is locked after too many failures.
	LockoutDuration = 15 * time.Minute

	// LockoutThreshold is the number of failures that triggers a lockout.
	LockoutThreshold = 7
)

// IsLockedOut returns true if lockedUntil is after now.
func IsLockedOut(lockedUntil *time.Time, now time.Time) bool {
	return lockedUntil != nil && lockedUntil.After(now)
}

// ComputeLockoutTime returns the lockout timestamp for the given failure count.
// Returns nil if failures < LockoutThreshold.
func ComputeLockoutTime(failures int, now time.Time) *time.Time {
	if failures < LockoutThreshold {
		return nil
	}
	lockout := now.Add(LockoutDuration)
	return &lockout
}
