package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/csrf"
)

// CSRFRecorder receives rejected requests. *shopauth.Engine implements it.
type CSRFRecorder interface {
	RecordCSRFRejection(ctx context.Context, userID, sessionID string, cause error)
}

// CSRF enforces the double-submit token on state-changing requests. When
// [RequireSession] ran earlier in the chain the cookie must also equal the
// token stored in the session. Safe methods and the guard's allowlist pass.
func CSRF(guard *csrf.Guard, recorder CSRFRecorder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if guard == nil {
				next.ServeHTTP(w, r)
				return
			}

			sc, bound := shopauth.SessionFromContext(r.Context())
			var err error
			if bound {
				err = guard.ValidateBound(r, sc.CSRFToken)
			} else {
				err = guard.Validate(r)
			}
			if err == nil {
				next.ServeHTTP(w, r)
				return
			}

			if recorder != nil {
				userID, sessionID := sc.UserID, sc.SessionID
				if claims, ok := AccessClaimsFromContext(r.Context()); ok && !bound {
					userID, sessionID = claims.UserID, claims.SessionID
				}
				recorder.RecordCSRFRejection(r.Context(), userID, sessionID, err)
			}
			writeJSONError(w, csrfMessage(err), http.StatusForbidden)
		})
	}
}

// csrfMessage names the failed check so clients can tell an absent token
// from a stale one.
func csrfMessage(err error) string {
	if errors.Is(err, csrf.ErrCsrfTokenMissing) {
		return "csrf token missing"
	}
	return "csrf token mismatch"
}
