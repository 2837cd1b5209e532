// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package notify delivers credential-flow messages: SMTP for production,
// an in-memory outbox and a log sink for development, and a rate limiting
// wrapper for any of them.
package notify
