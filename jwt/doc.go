// Package jwt issues and verifies RS256 access tokens.
//
// Access tokens carry the user id (uid), session id (sid), and the registered
// claims exp, iat, iss, aud, and jti. Verification is stateless: it checks the
// signature, algorithm, key id, issuer, audience, and expiry, and never
// consults the session store.
//
// Errors are reduced to three kinds: [ErrTokenExpired],
// [ErrTokenInvalidSignature], and [ErrTokenInvalid].
package jwt
