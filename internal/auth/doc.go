// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth implements sessions, identity resolution and token-gated
// credential changes for accountd.
//
// # Domain Types
//
// Domain types should be created using their constructors:
//   - NewUser - creates a User with a validated name and normalized email
//   - NewSession - creates a Session bound to a user and a token hash
//   - NewVerificationToken - creates a single-use token for one purpose
//
// Plaintext session and verification tokens are only ever returned to the
// caller; repositories store their SHA-256 hashes.
//
// # Services
//
//   - SessionManager - session creation, resolution and revocation
//   - IdentityResolver - maps a cookie or bearer credential to an Identity
//   - TokenStore - issue, peek and single-use consume of verification tokens
//   - CredentialWorkflow - email change and password set/reset flows
//   - Authenticator - email and password sign-in
//   - UserService - user creation
//
// Services are created with New* constructors that validate dependencies.
// Token-consuming mutations run inside a Transactor so the consumption and
// the user update commit or roll back together.
package auth
