// Package password hashes and verifies passwords with Argon2id and enforces the
// password strength policy.
//
// # Output format
//
// Hashes are PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports hashes produced with weaker parameters so the
// caller can rehash after the next successful login.
//
// # Strength policy
//
// [Policy.Validate] checks every rule and returns all violations at once. It is
// pure and safe for concurrent use.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Log plaintext passwords or hashes.
package password
