// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth issues, verifies, and expires the short-lived credentials
// used by holoauth: login sessions, signup sessions, password reset sessions,
// account association challenges, and email verification codes.
//
// # Tokens
//
// Every session kind hands the client one opaque token built by EncodeToken
// from the record ID and a random secret. Only an HMAC of the secret is
// stored, so a leaked row cannot be replayed as a credential.
//
// # Domain Types
//
// Records are values. Services build them through their New* constructors
// and change them only through explicit repository operations (Renew,
// ClearFresh, MarkEmailVerified, UpdateCode), never by mutating a shared
// record.
//
// Single-use records are consumed before the change they authorize is
// written. When that write fails the record is restored, so the same token
// or code can be retried.
//
// # Services
//
// Service types drive the lifecycle of each credential:
//   - SessionService - login, validation, renewal, logout
//   - SignupService - signup request, email verification, account creation
//   - PasswordResetService - reset request and confirmation
//   - EmailVerificationService - verification codes for existing users
//   - OAuthService - authorization requests, callbacks, account association
//   - Sweeper - periodic removal of expired records
//
// Failures that callers are expected to handle carry one of the Code*
// constants as their oops code; use ErrorCode or HasCode to inspect them.
package auth
