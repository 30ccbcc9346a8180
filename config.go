package shopauth

import (
	"errors"
	"strings"
	"time"
)

// Config is the complete engine configuration. Build takes a copy; the engine
// never mutates it afterwards.
type Config struct {
	JWT           JWTConfig
	Session       SessionConfig
	RateLimit     RateLimitConfig
	Lockout       LockoutConfig
	Password      PasswordConfig
	PasswordReset PasswordResetConfig
	Device        DeviceConfig
	Store         StoreConfig
	Cookie        CookieConfig
	CSRF          CSRFConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
	Server        ServerConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures RS256 access tokens. PrivateKeyPEM wins over
// PrivateKeyFile; LoadConfig reads the file into PrivateKeyPEM.
type JWTConfig struct {
	AccessTTL      time.Duration
	Issuer         string
	Audience       string
	KeyID          string
	PrivateKeyPEM  []byte
	PrivateKeyFile string
	VerifyKeysPEM  map[string][]byte
	Leeway         time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures the session store. RefreshTTL is both the refresh
// token lifetime and the session record TTL.
type SessionConfig struct {
	RefreshTTL  time.Duration
	RedisPrefix string
}

/*
====================================
RATE LIMIT AND LOCKOUT
====================================
*/

// RatePolicy is one fixed-window budget. MaxAttempts <= 0 disables it.
type RatePolicy struct {
	MaxAttempts int
	Window      time.Duration
}

// RateLimitConfig holds the per-action budgets. Login applies to both the
// login:ip and login:account counters; Forgot likewise.
type RateLimitConfig struct {
	RedisPrefix string
	Login       RatePolicy
	Register    RatePolicy
	Refresh     RatePolicy
	Forgot      RatePolicy
	Reset       RatePolicy
}

// LockoutConfig is the cumulative failure lockout. Threshold <= 0 disables it.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds the argon2id cost profile and the strength policy.
type PasswordConfig struct {
	MinLength      int
	Memory         uint32 // in KiB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
	Blacklist      []string
}

// PasswordResetConfig configures forgot/reset tokens.
type PasswordResetConfig struct {
	TokenTTL    time.Duration
	RedisPrefix string
}

// DeviceConfig configures the fingerprint history.
type DeviceConfig struct {
	Enabled     bool
	HistorySize int
	HistoryTTL  time.Duration
	RedisPrefix string
}

// StoreConfig bounds every call to Redis and the credential store.
type StoreConfig struct {
	Timeout      time.Duration
	Retries      int
	RetryBackoff time.Duration
}

/*
====================================
TRANSPORT
====================================
*/

// CookieConfig names the token cookies. Secure may only be disabled for
// local development over plain HTTP.
type CookieConfig struct {
	Secure      bool
	AccessName  string
	RefreshName string
	RefreshPath string
}

// CSRFConfig lists the paths that skip CSRF validation. Nothing else is exempt.
type CSRFConfig struct {
	ExemptPaths []string
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// ServerConfig is read by cmd/shopauth only; the engine ignores it.
type ServerConfig struct {
	HTTPAddr        string
	RedisAddr       string
	DatabaseDialect string
	DatabaseDSN     string
	SentryDSN       string
	Environment     string
	AsyncResetMail  bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults. JWT.PrivateKeyPEM is left
// empty and must be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL: 15 * time.Minute,
			Issuer:    "shopauth",
			Audience:  "shop",
			KeyID:     "k1",
			Leeway:    30 * time.Second,
		},
		Session: SessionConfig{
			RefreshTTL:  7 * 24 * time.Hour,
			RedisPrefix: "as",
		},
		RateLimit: RateLimitConfig{
			RedisPrefix: "rl",
			Login:       RatePolicy{MaxAttempts: 5, Window: 15 * time.Minute},
			Register:    RatePolicy{MaxAttempts: 5, Window: time.Hour},
			Refresh:     RatePolicy{MaxAttempts: 30, Window: time.Minute},
			Forgot:      RatePolicy{MaxAttempts: 5, Window: time.Hour},
			Reset:       RatePolicy{MaxAttempts: 10, Window: time.Hour},
		},
		Lockout: LockoutConfig{
			Threshold: 10,
			Duration:  time.Hour,
		},
		Password: PasswordConfig{
			MinLength:      12,
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL:    15 * time.Minute,
			RedisPrefix: "pr",
		},
		Device: DeviceConfig{
			Enabled:     true,
			HistorySize: 10,
			HistoryTTL:  90 * 24 * time.Hour,
			RedisPrefix: "dh",
		},
		Store: StoreConfig{
			Timeout:      500 * time.Millisecond,
			Retries:      1,
			RetryBackoff: 50 * time.Millisecond,
		},
		Cookie: CookieConfig{
			Secure:      true,
			AccessName:  "sa_access",
			RefreshName: "sa_refresh",
			RefreshPath: "/auth",
		},
		CSRF: CSRFConfig{
			ExemptPaths: []string{
				"/auth/register",
				"/auth/login",
				"/auth/forgot-password",
				"/auth/reset-password",
			},
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			RedisAddr:       "localhost:6379",
			DatabaseDialect: "sqlite",
			DatabaseDSN:     "file:shopauth.db",
			Environment:     "development",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKeyPEM = cloneBytes(cfg.JWT.PrivateKeyPEM)
	if cfg.JWT.VerifyKeysPEM != nil {
		out.JWT.VerifyKeysPEM = make(map[string][]byte, len(cfg.JWT.VerifyKeysPEM))
		for kid, key := range cfg.JWT.VerifyKeysPEM {
			out.JWT.VerifyKeysPEM[kid] = cloneBytes(key)
		}
	}
	out.Password.Blacklist = append([]string(nil), cfg.Password.Blacklist...)
	out.CSRF.ExemptPaths = append([]string(nil), cfg.CSRF.ExemptPaths...)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate returns the first rule cfg breaks.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if len(c.JWT.PrivateKeyPEM) == 0 {
		return errors.New("JWT PrivateKeyPEM is required")
	}
	if strings.TrimSpace(c.JWT.KeyID) == "" {
		return errors.New("JWT KeyID is required")
	}
	if strings.TrimSpace(c.JWT.Issuer) == "" {
		return errors.New("JWT Issuer is required")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Session
	if c.Session.RefreshTTL <= 0 {
		return errors.New("Session RefreshTTL must be > 0")
	}
	if c.Session.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("Session RefreshTTL must exceed JWT AccessTTL")
	}

	// Rate limits
	for name, p := range map[string]RatePolicy{
		"Login":    c.RateLimit.Login,
		"Register": c.RateLimit.Register,
		"Refresh":  c.RateLimit.Refresh,
		"Forgot":   c.RateLimit.Forgot,
		"Reset":    c.RateLimit.Reset,
	} {
		if p.MaxAttempts > 0 && p.Window <= 0 {
			return errors.New("RateLimit " + name + " Window must be > 0 when MaxAttempts is set")
		}
	}

	// Lockout
	if c.Lockout.Threshold < 0 {
		return errors.New("Lockout Threshold must be >= 0")
	}
	if c.Lockout.Threshold > 0 && c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0 when Threshold is set")
	}

	// Password
	if c.Password.MinLength < 8 {
		return errors.New("Password MinLength must be >= 8")
	}
	if c.Password.MinLength > 128 {
		return errors.New("Password MinLength must be <= 128")
	}

	// Reset
	if c.PasswordReset.TokenTTL <= 0 {
		return errors.New("PasswordReset TokenTTL must be > 0")
	}
	if c.PasswordReset.TokenTTL > 24*time.Hour {
		return errors.New("PasswordReset TokenTTL must be <= 24h")
	}

	// Device
	if c.Device.Enabled && (c.Device.HistorySize <= 0 || c.Device.HistorySize > 100) {
		return errors.New("Device HistorySize must be between 1 and 100")
	}

	// Store
	if c.Store.Timeout <= 0 {
		return errors.New("Store Timeout must be > 0")
	}
	if c.Store.Retries < 0 || c.Store.Retries > 3 {
		return errors.New("Store Retries must be between 0 and 3")
	}
	if c.Store.RetryBackoff < 0 {
		return errors.New("Store RetryBackoff must be >= 0")
	}

	// Cookies
	if c.Cookie.AccessName == "" || c.Cookie.RefreshName == "" {
		return errors.New("Cookie names are required")
	}
	if !strings.HasPrefix(c.Cookie.RefreshPath, "/") {
		return errors.New("Cookie RefreshPath must start with /")
	}
	for _, p := range c.CSRF.ExemptPaths {
		if !strings.HasPrefix(p, "/") {
			return errors.New("CSRF ExemptPaths entries must be absolute paths")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
