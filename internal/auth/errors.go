// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateToken is returned by repositories when a generated token hash
// collides with an existing row. Callers regenerate and retry.
var ErrDuplicateToken = errors.New("duplicate token")

// Sentinel errors for the session and credential-change flows. They are
// always wrapped in an oops error carrying the matching Code* constant, so
// callers can use either errors.Is or the error code.
var (
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrTokenNotFound     = errors.New("token not found")
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenAlreadyUsed  = errors.New("token already used")
	ErrPurposeMismatch   = errors.New("token purpose mismatch")
	ErrPayloadMismatch   = errors.New("token payload mismatch")
	ErrEmailAlreadyInUse = errors.New("email already in use")
	ErrDeliveryFailed    = errors.New("delivery failed")
	ErrCommitFailed      = errors.New("commit failed")
	ErrSameEmail         = errors.New("new email matches current email")
	ErrAccountLocked     = errors.New("account temporarily locked")
	ErrDeliveryThrottled = errors.New("delivery throttled")
)

// Error codes attached to the sentinel errors above.
const (
	CodeUnauthenticated   = "AUTH_UNAUTHENTICATED"
	CodeTokenNotFound     = "TOKEN_NOT_FOUND"
	CodeTokenExpired      = "TOKEN_EXPIRED"
	CodeTokenAlreadyUsed  = "TOKEN_ALREADY_USED"
	CodePurposeMismatch   = "TOKEN_PURPOSE_MISMATCH"
	CodePayloadMismatch   = "TOKEN_PAYLOAD_MISMATCH"
	CodeEmailAlreadyInUse = "EMAIL_ALREADY_IN_USE"
	CodeDeliveryFailed    = "DELIVERY_FAILED"
	CodeCommitFailed      = "COMMIT_FAILED"
	CodeSameEmail         = "SAME_EMAIL_PROVIDED"
	CodeAccountLocked     = "AUTH_ACCOUNT_LOCKED"
	CodeDeliveryThrottled = "DELIVERY_THROTTLED"
)
