// Package middleware adapts shopauth.Engine to net/http. Every route is an
// explicit chain built with [Chain]; the usual order is
//
//	Recover -> RequestLog -> ClientIP -> RateLimit -> RequireSession -> CSRF -> handler
//
// # Guards
//
//   - [RequireAccess]: stateless access-token check, no Redis call.
//   - [RequireSession]: access token plus a session store lookup. It attaches
//     shopauth.SessionContext to the request context, which [CSRF] uses to
//     bind the double-submit token to the session.
//
// Tokens are read from the Authorization bearer header first and the access
// cookie second.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does not parse
// JWTs, touch Redis, or decide anything beyond pass or reject.
package middleware
