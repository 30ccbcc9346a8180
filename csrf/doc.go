// Package csrf implements double-submit cookie protection.
//
// A token is minted at login and stored with the session. [Guard.Issue] sets
// it twice: in an HttpOnly cookie the server compares against, and in a
// script-readable cookie the front end copies into the X-CSRF-Token header.
// [Guard.Validate] accepts a state-changing request only when header and
// HttpOnly cookie are byte-equal.
package csrf
