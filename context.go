package shopauth

import "context"

type clientIPContextKey struct{}
type sessionContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The engine uses it
// for per-IP rate limits and audit records. A missing IP is counted under
// the shared "unknown" bucket.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// ClientIPFromContext returns the IP set by WithClientIP, or "".
func ClientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func clientIPOrUnknown(ctx context.Context) string {
	if ip := ClientIPFromContext(ctx); ip != "" {
		return ip
	}
	return "unknown"
}

// SessionContext is the authenticated identity attached by the middleware.
type SessionContext struct {
	UserID    string
	SessionID string
	// CSRFToken is set only when the session record was loaded.
	CSRFToken string
}

// WithSession attaches an authenticated identity to ctx.
func WithSession(ctx context.Context, s SessionContext) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// SessionFromContext returns the identity attached by WithSession.
func SessionFromContext(ctx context.Context) (SessionContext, bool) {
	if ctx == nil {
		return SessionContext{}, false
	}
	s, ok := ctx.Value(sessionContextKey{}).(SessionContext)
	return s, ok
}
