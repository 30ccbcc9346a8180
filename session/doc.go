// Package session provides Redis-backed session persistence and the compact
// binary session encoding used on the refresh hot path.
//
// # Binary encoding
//
// A session is stored as a fixed 54-byte header followed by length-prefixed
// strings. The header places the revoked flag, the refresh hash, the expiry,
// and the rotation generation at fixed offsets so the Lua scripts can update
// them without a full decode.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Session] model. It
// does not interpret access tokens or enforce rate limits or lockouts. Those
// belong to the engine.
//
// # What this package must NOT do
//
//   - Import shopauth, jwt, or middleware (no upward imports).
//   - Store plaintext refresh secrets in [Session] fields.
package session
