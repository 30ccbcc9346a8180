// Package refresh encodes and decodes opaque rotating refresh tokens.
//
// # Token format
//
// base64url (no padding) of 48 bytes: the 16-byte session ID followed by a
// 32-byte random secret. The session record stores only sha256(secret), the
// current head of the session's rotation chain.
//
// # What this package must NOT do
//
//   - Access Redis or any I/O.
//   - Implement rotation or replay logic (the engine and session store own it).
package refresh
