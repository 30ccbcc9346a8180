package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/csrf"
	"github.com/MrEthical07/shopauth/middleware"
)

// DeviceHeader carries the client's opaque device fingerprint on login.
const DeviceHeader = "X-Device-Fingerprint"

// Options configures a [Server]. Zero values are usable.
type Options struct {
	Logger *slog.Logger
	// TrustForwardedFor reads the client IP from X-Forwarded-For. Enable it
	// only behind a proxy that overwrites the header.
	TrustForwardedFor bool
	// RateLimiter throttles every route per client IP before the engine's own
	// limits. Nil disables it.
	RateLimiter *middleware.RateLimiter
	// Metrics, when set, is mounted at GET /metrics.
	Metrics http.Handler
}

// Server routes HTTP requests to an engine.
type Server struct {
	engine  *shopauth.Engine
	config  shopauth.Config
	guard   *csrf.Guard
	logger  *slog.Logger
	opts    Options
	handler http.Handler
}

// New builds the route table. The engine must outlive the server.
func New(engine *shopauth.Engine, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	cfg := engine.Config()
	s := &Server{
		engine: engine,
		config: cfg,
		guard: csrf.NewGuard(csrf.Config{
			Secure:      cfg.Cookie.Secure,
			ExemptPaths: cfg.CSRF.ExemptPaths,
		}),
		logger: opts.Logger,
		opts:   opts,
	}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	public := func(h http.HandlerFunc) http.Handler {
		return middleware.Chain(h,
			middleware.Recover(s.logger),
			middleware.RequestLog(s.logger),
			middleware.ClientIP(s.opts.TrustForwardedFor),
			middleware.RateLimit(s.opts.RateLimiter, middleware.IPKey),
			middleware.CSRF(s.guard, s.engine),
		)
	}
	// Logout only needs the session id from the access token, so a repeated
	// logout of a revoked session still reaches the idempotent engine call.
	signedIn := func(h http.HandlerFunc) http.Handler {
		return middleware.Chain(h,
			middleware.Recover(s.logger),
			middleware.RequestLog(s.logger),
			middleware.ClientIP(s.opts.TrustForwardedFor),
			middleware.RateLimit(s.opts.RateLimiter, middleware.IPKey),
			middleware.RequireAccess(s.engine),
			middleware.CSRF(s.guard, s.engine),
		)
	}
	authenticated := func(h http.HandlerFunc) http.Handler {
		return middleware.Chain(h,
			middleware.Recover(s.logger),
			middleware.RequestLog(s.logger),
			middleware.ClientIP(s.opts.TrustForwardedFor),
			middleware.RateLimit(s.opts.RateLimiter, middleware.IPKey),
			middleware.RequireSession(s.engine),
			middleware.CSRF(s.guard, s.engine),
		)
	}

	mux.Handle("POST /auth/register", public(s.handleRegister))
	mux.Handle("POST /auth/login", public(s.handleLogin))
	mux.Handle("POST /auth/refresh", public(s.handleRefresh))
	mux.Handle("POST /auth/forgot-password", public(s.handleForgotPassword))
	mux.Handle("POST /auth/reset-password", public(s.handleResetPassword))

	mux.Handle("POST /auth/logout", signedIn(s.handleLogout))
	mux.Handle("POST /auth/logout-all", authenticated(s.handleLogoutAll))
	mux.Handle("POST /auth/change-password", authenticated(s.handleChangePassword))
	mux.Handle("GET /auth/sessions", authenticated(s.handleListSessions))

	mux.Handle("GET /healthz", middleware.Chain(http.HandlerFunc(s.handleHealth), middleware.Recover(s.logger)))
	if s.opts.Metrics != nil {
		mux.Handle("GET /metrics", s.opts.Metrics)
	}
	return mux
}
