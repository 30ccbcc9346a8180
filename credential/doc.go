// Package credential defines the credential record owned by the external user
// store, the [Repository] this core reads and writes it through, and the
// timing-equalized password [Verifier].
//
// # Invariants
//
//   - PasswordHash never leaves this package boundary in logs or public results.
//   - FailedAttemptCount is reset on every successful login.
//   - Unknown identifiers cost exactly one hash comparison, like known ones.
//
// Implementations live in [github.com/MrEthical07/shopauth/credential/sqlstore]
// (PostgreSQL via pgx, SQLite via modernc) and
// [github.com/MrEthical07/shopauth/credential/memstore] (tests, local runs).
package credential
