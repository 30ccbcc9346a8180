// Package device classifies login fingerprints against a bounded per-user
// history kept in Redis. The fingerprint is an opaque value; only its sha256
// is stored. Classification never blocks a login: store failures report
// [StatusUnchecked].
package device
