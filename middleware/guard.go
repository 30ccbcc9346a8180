package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/shopauth"
)

type accessClaimsContextKey struct{}

// AccessClaimsFromContext returns the claims attached by [RequireAccess] or
// [RequireSession].
func AccessClaimsFromContext(ctx context.Context) (*shopauth.AccessClaims, bool) {
	claims, ok := ctx.Value(accessClaimsContextKey{}).(*shopauth.AccessClaims)
	return claims, ok
}

// RequireAccess admits requests carrying a valid access token. Revoked
// sessions are not detected until the token expires.
func RequireAccess(engine *shopauth.Engine) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeJSONError(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := accessToken(r, engine.Config().Cookie.AccessName)
			if !ok {
				writeJSONError(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := engine.ValidateAccess(r.Context(), token)
			if err != nil {
				rejectToken(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), accessClaimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSession admits requests whose access token belongs to a live
// session and attaches the session identity with shopauth.WithSession.
func RequireSession(engine *shopauth.Engine) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeJSONError(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := accessToken(r, engine.Config().Cookie.AccessName)
			if !ok {
				writeJSONError(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			sc, err := engine.ValidateSession(r.Context(), token)
			if err != nil {
				rejectToken(w, err)
				return
			}

			ctx := shopauth.WithSession(r.Context(), sc)
			ctx = context.WithValue(ctx, accessClaimsContextKey{}, &shopauth.AccessClaims{
				UserID:    sc.UserID,
				SessionID: sc.SessionID,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func rejectToken(w http.ResponseWriter, err error) {
	if shopauth.KindOf(err) == shopauth.KindUnavailable {
		writeJSONError(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSONError(w, "unauthorized", http.StatusUnauthorized)
}

// accessToken prefers the Authorization bearer header and falls back to the
// access cookie.
func accessToken(r *http.Request, cookieName string) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		return bearerToken(header)
	}
	if cookieName == "" {
		return "", false
	}
	c, err := r.Cookie(cookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
