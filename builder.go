package shopauth

import (
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/shopauth/credential"
	"github.com/MrEthical07/shopauth/device"
	internalaudit "github.com/MrEthical07/shopauth/internal/audit"
	"github.com/MrEthical07/shopauth/internal/limiters"
	"github.com/MrEthical07/shopauth/internal/rate"
	"github.com/MrEthical07/shopauth/internal/storecall"
	"github.com/MrEthical07/shopauth/internal/stores"
	"github.com/MrEthical07/shopauth/jwt"
	"github.com/MrEthical07/shopauth/password"
	"github.com/MrEthical07/shopauth/session"
	"github.com/redis/go-redis/v9"
)

// Builder collects dependencies and produces an immutable [Engine]. A Builder
// can be used for one Build only.
type Builder struct {
	config      Config
	redis       redis.UniversalClient
	credentials credential.Repository
	notifier    ResetNotifier
	auditSink   AuditSink
	logger      *slog.Logger
	now         func() time.Time

	built bool
}

// New starts a Builder from [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the shared store for counters, sessions, device history and
// reset tokens. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialRepository sets the credential store. Required.
func (b *Builder) WithCredentialRepository(repo credential.Repository) *Builder {
	b.credentials = repo
	return b
}

// WithResetNotifier sets the delivery channel for password reset tokens.
// Without one, ForgotPassword stores the token and logs a warning.
func (b *Builder) WithResetNotifier(n ResetNotifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink replaces the default sink, which writes events to the
// engine logger.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces time.Now for every time-dependent component.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.credentials == nil {
		return nil, errors.New("credential repository required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	storePolicy := storecall.Policy{
		Timeout: cfg.Store.Timeout,
		Retries: cfg.Store.Retries,
		Backoff: cfg.Store.RetryBackoff,
	}

	// -------- PASSWORDS --------
	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	repo := newResilientRepository(b.credentials, storePolicy)
	verifier, err := credential.NewVerifier(repo, hasher)
	if err != nil {
		return nil, err
	}

	lockout := limiters.NewLockout(repo, limiters.LockoutConfig{
		Threshold: cfg.Lockout.Threshold,
		Duration:  cfg.Lockout.Duration,
	})
	lockout.SetClock(now)

	// -------- TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		PrivateKeyPEM: cloneBytes(cfg.JWT.PrivateKeyPEM),
		VerifyKeysPEM: cfg.JWT.VerifyKeysPEM,
		KeyID:         cfg.JWT.KeyID,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}
	jm.SetClock(now)

	// -------- SHARED STORE --------
	sessions := session.NewStore(b.redis, cfg.Session.RedisPrefix)
	sessions.SetClock(now)

	var devices *device.Detector
	if cfg.Device.Enabled {
		devices = device.NewDetector(b.redis, device.Config{
			HistorySize: cfg.Device.HistorySize,
			HistoryTTL:  cfg.Device.HistoryTTL,
			Prefix:      cfg.Device.RedisPrefix,
			Policy:      storePolicy,
		}, logger)
	}

	sink := b.auditSink
	if sink == nil {
		sink = internalaudit.NewSlogSink(logger)
	}

	engine := &Engine{
		config:      cfg,
		credentials: repo,
		verifier:    verifier,
		hasher:      hasher,
		policy:      password.NewPolicy(cfg.Password.MinLength, cfg.Password.Blacklist...),
		lockout:     lockout,
		limiter:     rate.New(b.redis, cfg.RateLimit.RedisPrefix),
		sessions:    sessions,
		devices:     devices,
		resets:      stores.NewPasswordResetStore(b.redis, cfg.PasswordReset.RedisPrefix),
		jwtManager:  jm,
		notifier:    b.notifier,
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, sink),
		metrics:     NewMetrics(cfg.Metrics),
		logger:      logger,
		storePolicy: storePolicy,
		now:         now,
	}

	b.built = true
	return engine, nil
}
