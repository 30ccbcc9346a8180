package httpapi

import (
	"net/http"
	"time"

	"github.com/MrEthical07/shopauth"
)

func (s *Server) setSessionCookies(w http.ResponseWriter, pair shopauth.TokenPair, csrfToken string, now time.Time) {
	http.SetCookie(w, s.cookie(s.config.Cookie.AccessName, pair.AccessToken, "/", pair.AccessExpiresAt.Sub(now)))
	http.SetCookie(w, s.cookie(s.config.Cookie.RefreshName, pair.RefreshToken, s.config.Cookie.RefreshPath, pair.RefreshExpiresAt.Sub(now)))
	s.guard.Issue(w, csrfToken, pair.RefreshExpiresAt.Sub(now))
}

func (s *Server) clearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, s.cookie(s.config.Cookie.AccessName, "", "/", -1))
	http.SetCookie(w, s.cookie(s.config.Cookie.RefreshName, "", s.config.Cookie.RefreshPath, -1))
	s.guard.Clear(w)
}

// cookie builds an HttpOnly, SameSite=Strict cookie. A negative ttl deletes it.
func (s *Server) cookie(name, value, path string, ttl time.Duration) *http.Cookie {
	maxAge := int(ttl / time.Second)
	if ttl < 0 {
		maxAge = -1
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.config.Cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

func (s *Server) refreshToken(r *http.Request) string {
	c, err := r.Cookie(s.config.Cookie.RefreshName)
	if err != nil {
		return ""
	}
	return c.Value
}
