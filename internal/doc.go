// Package internal contains helpers private to shopauth: random token
// generation and hashing.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - limiters: account lockout over the credential store
//   - logging: slog handler construction
//   - rate: Redis fixed-window counters
//   - security: configuration posture report
//   - storecall: per-call timeout and retry policy
//   - stores: password-reset token store
package internal
