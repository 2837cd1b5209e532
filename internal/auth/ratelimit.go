// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"time"
)

// Sign-in lockout configuration.
const (
	// LockoutDuration is the time a user is locked out after too many failures.
	LockoutDuration = 15 * time.Minute

	// LockoutThreshold is the number of consecutive failures that triggers a lockout.
	LockoutThreshold = 7
)

// LockoutState describes a user's sign-in lockout at a point in time.
type LockoutState struct {
	// Locked indicates the account is temporarily locked.
	Locked bool

	// Remaining is the time until the lockout expires.
	Remaining time.Duration

	// Expired indicates a previous lockout has run out and its failure
	// count should be reset before counting new failures.
	Expired bool
}

// CheckLockout evaluates the lockout state of a user at now.
func CheckLockout(user *User, now time.Time) LockoutState {
	if user == nil || user.LockedUntil == nil {
		return LockoutState{}
	}
	if IsLockedOut(user.LockedUntil, now) {
		return LockoutState{Locked: true, Remaining: user.LockedUntil.Sub(now)}
	}
	return LockoutState{Expired: true}
}

// IsLockedOut returns true if the lockout time is after now.
func IsLockedOut(lockedUntil *time.Time, now time.Time) bool {
	return lockedUntil != nil && lockedUntil.After(now)
}
