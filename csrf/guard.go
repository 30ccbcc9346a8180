package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultCookieName         = "sa_csrf"
	DefaultReadableCookieName = "XSRF-TOKEN"
	DefaultHeaderName         = "X-CSRF-Token"

	tokenBytes = 32
)

var (
	// ErrCsrfTokenMissing is returned when the header or the cookie is absent.
	ErrCsrfTokenMissing = errors.New("csrf token missing")
	// ErrCsrfTokenMismatch is returned when header and cookie differ, or the
	// cookie does not match the token bound to the session.
	ErrCsrfTokenMismatch = errors.New("csrf token mismatch")
)

// Config configures a [Guard]. ExemptPaths is matched exactly against
// r.URL.Path; nothing is exempt unless listed.
type Config struct {
	CookieName         string
	ReadableCookieName string
	HeaderName         string
	Secure             bool
	ExemptPaths        []string
}

// Guard issues and validates double-submit tokens.
type Guard struct {
	cookieName   string
	readableName string
	headerName   string
	secure       bool
	exempt       map[string]struct{}
}

// NewGuard builds a Guard, filling unset names with the defaults.
func NewGuard(cfg Config) *Guard {
	g := &Guard{
		cookieName:   cfg.CookieName,
		readableName: cfg.ReadableCookieName,
		headerName:   cfg.HeaderName,
		secure:       cfg.Secure,
		exempt:       make(map[string]struct{}, len(cfg.ExemptPaths)),
	}
	if g.cookieName == "" {
		g.cookieName = DefaultCookieName
	}
	if g.readableName == "" {
		g.readableName = DefaultReadableCookieName
	}
	if g.headerName == "" {
		g.headerName = DefaultHeaderName
	}
	for _, p := range cfg.ExemptPaths {
		p = strings.TrimSpace(p)
		if p != "" {
			g.exempt[p] = struct{}{}
		}
	}
	return g
}

// NewToken returns 32 random bytes, base64url encoded without padding.
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HeaderName returns the request header the token is expected in.
func (g *Guard) HeaderName() string {
	return g.headerName
}

// Issue sets both CSRF cookies to token for maxAge.
func (g *Guard) Issue(w http.ResponseWriter, token string, maxAge time.Duration) {
	seconds := int(maxAge / time.Second)
	http.SetCookie(w, g.cookie(g.cookieName, token, seconds, true))
	http.SetCookie(w, g.cookie(g.readableName, token, seconds, false))
}

// Clear expires both CSRF cookies.
func (g *Guard) Clear(w http.ResponseWriter) {
	http.SetCookie(w, g.cookie(g.cookieName, "", -1, true))
	http.SetCookie(w, g.cookie(g.readableName, "", -1, false))
}

func (g *Guard) cookie(name, value string, maxAge int, httpOnly bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: httpOnly,
		Secure:   g.secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// Exempt reports whether r skips validation: safe methods and allowlisted paths.
func (g *Guard) Exempt(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	_, ok := g.exempt[r.URL.Path]
	return ok
}

// Validate checks the double-submit pair on r. Exempt requests pass.
func (g *Guard) Validate(r *http.Request) error {
	if g.Exempt(r) {
		return nil
	}
	_, err := g.pair(r)
	return err
}

// ValidateBound is Validate plus a check that the cookie equals the token
// recorded for the caller's session.
func (g *Guard) ValidateBound(r *http.Request, sessionToken string) error {
	if g.Exempt(r) {
		return nil
	}
	token, err := g.pair(r)
	if err != nil {
		return err
	}
	if sessionToken == "" || !equal(token, sessionToken) {
		return ErrCsrfTokenMismatch
	}
	return nil
}

func (g *Guard) pair(r *http.Request) (string, error) {
	header := r.Header.Get(g.headerName)
	c, err := r.Cookie(g.cookieName)
	if header == "" || err != nil || c.Value == "" {
		return "", ErrCsrfTokenMissing
	}
	if !equal(header, c.Value) {
		return "", ErrCsrfTokenMismatch
	}
	return c.Value, nil
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
