// Package rate provides the Redis-backed fixed-window counter used for every
// throttled action in shopauth.
//
// # Window semantics
//
// One Lua script performs INCR, sets PEXPIRE on the first hit of a window and
// reads PTTL, so concurrent callers for the same key never race on a
// read-modify-write. Keys are "rl:{action}:{identifier}".
//
// # What this package must NOT do
//
//   - Implement domain-specific policies (those live in the engine and internal/limiters).
//   - Be imported outside the shopauth module.
package rate
