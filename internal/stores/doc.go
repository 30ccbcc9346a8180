// Package stores provides Redis-backed, short-lived record stores for
// security-sensitive flows. Today that is the password-reset token store.
//
// # Design
//
// Records are keyed by sha256(token), so raw tokens never reach Redis. Each
// user has at most one outstanding reset token: saving a new one deletes the
// previous record. Consume is a single Lua script (read + delete), so a token
// can be redeemed exactly once under concurrency.
//
// # What this package must NOT do
//
//   - Import shopauth or any sibling internal package except storecall.
//   - Log or expose plaintext secrets.
package stores
