// Package storecall applies the bounded-timeout and single-retry policy to every
// call the engine makes against a shared store (Redis or the credential store).
//
// # Policy
//
// Each attempt runs under its own deadline. A failure classified as transient is
// retried once after a fixed backoff. The caller's context always wins: once it is
// done no further attempt is made.
//
// # What this package must NOT do
//
//   - Decide fail-open or fail-closed outcomes (callers do that).
//   - Import shopauth or any store package.
package storecall
