// Package shopauth is the authentication and session-security core of a
// storefront: account registration, password login with lockout, rotating
// refresh tokens with reuse detection, CSRF tokens bound to sessions, new
// device detection and password reset.
//
// Engine methods are safe for concurrent use once [Builder.Build] returns.
//
// # Architecture boundaries
//
// shopauth is the public surface. It exposes [Engine], [Builder], [Config]
// and value types (TokenPair, SessionInfo, MetricsSnapshot, ...). Session
// encoding, rate limiting, reset tokens and audit dispatch live under
// internal/ or in their own packages and are never reached through the
// engine's API.
//
// # Failure behavior
//
// Redis holds sessions, rate windows, reset tokens and device history.
// Whenever a security check cannot reach it the operation fails with
// [ErrServiceUnavailable]; device classification is the one exception and
// degrades to "unchecked" instead.
//
// # Performance contract
//
// ValidateAccess is the hot path: it verifies the RS256 signature and claims
// with no Redis round-trip. ValidateSession adds one read. Login, Refresh and
// account operations pay one Argon2id computation at most, and unknown
// identifiers pay the same cost as wrong passwords.
package shopauth
