// Package limiters provides the account lockout policy built on the credential
// store's failure counter.
//
// [Lockout] is nil-safe: a nil or zero-threshold lockout records nothing.
//
// # What this package must NOT do
//
//   - Import shopauth or any sibling internal package except internal/rate.
//   - Decide HTTP or error-kind consequences; the engine does that.
package limiters
