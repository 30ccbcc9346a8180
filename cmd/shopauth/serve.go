package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/credential"
	"github.com/MrEthical07/shopauth/credential/memstore"
	"github.com/MrEthical07/shopauth/credential/sqlstore"
	"github.com/MrEthical07/shopauth/httpapi"
	"github.com/MrEthical07/shopauth/internal/audit"
	"github.com/MrEthical07/shopauth/jwt"
	"github.com/MrEthical07/shopauth/metrics/export/prometheus"
	"github.com/MrEthical07/shopauth/middleware"
	"github.com/MrEthical07/shopauth/notify/asynqnotify"
	"github.com/alicebob/miniredis/v2"
	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveOpts struct {
	dev             bool
	addr            string
	trustForwarded  bool
	ipRate          float64
	ipBurst         int
	shutdownTimeout time.Duration
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP auth API",
	Long: `serve starts the HTTP API and, when SHOPAUTH_ASYNC_RESET_MAIL is set, the
password reset mail worker.

--dev replaces Redis with an in-process miniredis, the SQL store with an
in-memory one, generates a throwaway signing key when none is configured and
allows cookies over plain HTTP. Never use it in production.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	f := serveCmd.Flags()
	f.BoolVar(&serveOpts.dev, "dev", false, "in-process redis, in-memory accounts, insecure cookies")
	f.StringVar(&serveOpts.addr, "addr", "", "listen address (overrides SHOPAUTH_HTTP_ADDR)")
	f.BoolVar(&serveOpts.trustForwarded, "trust-forwarded-for", false, "take the client IP from X-Forwarded-For")
	f.Float64Var(&serveOpts.ipRate, "ip-rate", 20, "per-IP requests per second before the engine limits apply; 0 disables")
	f.IntVar(&serveOpts.ipBurst, "ip-burst", 40, "per-IP burst")
	f.DurationVar(&serveOpts.shutdownTimeout, "shutdown-timeout", 10*time.Second, "graceful shutdown deadline")
	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr)

	if serveOpts.addr != "" {
		cfg.Server.HTTPAddr = serveOpts.addr
	}
	if serveOpts.dev {
		cfg.Cookie.Secure = false
		if len(cfg.JWT.PrivateKeyPEM) == 0 {
			key, err := jwt.GenerateKeyPEM(2048)
			if err != nil {
				return fmt.Errorf("generate dev key: %w", err)
			}
			cfg.JWT.PrivateKeyPEM = key
			logger.Warn("shopauth: using a generated signing key, tokens will not survive a restart")
		}
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// -------- SENTRY --------
	var sinks audit.MultiSink
	sinks = append(sinks, audit.NewSlogSink(logger))
	if cfg.Server.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Server.SentryDSN,
			Environment: cfg.Server.Environment,
		}); err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
		sinks = append(sinks, audit.NewSentrySink(sentry.CurrentHub()))
	}

	// -------- REDIS --------
	redisAddr := cfg.Server.RedisAddr
	if serveOpts.dev {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		redisAddr = mr.Addr()
		logger.Info("using miniredis", "addr", redisAddr)
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis %s: %w", redisAddr, err)
	}

	// -------- CREDENTIALS --------
	repo, closeRepo, err := openCredentials(ctx, cfg, serveOpts.dev)
	if err != nil {
		return err
	}
	defer closeRepo()

	builder := shopauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialRepository(repo).
		WithAuditSink(sinks).
		WithLogger(logger)

	// -------- RESET MAIL --------
	if cfg.Server.AsyncResetMail {
		redisOpt := asynq.RedisClientOpt{Addr: redisAddr}
		client := asynq.NewClient(redisOpt)
		defer func() { _ = client.Close() }()
		builder = builder.WithResetNotifier(asynqnotify.NewNotifier(client, asynqnotify.Options{}))

		worker := asynq.NewServer(redisOpt, asynq.Config{
			Concurrency: 4,
			Queues:      map[string]int{"auth": 1},
		})
		mux := asynq.NewServeMux()
		asynqnotify.NewHandler(logMailer(logger, serveOpts.dev), logger).Register(mux)
		if err := worker.Start(mux); err != nil {
			return fmt.Errorf("start reset mail worker: %w", err)
		}
		defer worker.Shutdown()
	} else if serveOpts.dev {
		mailer := logMailer(logger, true)
		builder = builder.WithResetNotifier(shopauth.ResetNotifierFunc(
			func(ctx context.Context, _, identifier, token string, expiresAt time.Time) error {
				return mailer.SendPasswordReset(ctx, identifier, token, expiresAt)
			}))
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	report := engine.SecurityReport()
	logger.Info("security posture",
		"access_ttl", report.AccessTTL,
		"refresh_ttl", report.RefreshTTL,
		"lockout", report.LockoutActive,
		"device_tracking", report.DeviceTrackingActive,
		"secure_cookies", report.SecureCookies,
	)
	for _, w := range report.Warnings {
		logger.Warn("shopauth: weak setting", "detail", w)
	}

	// -------- HTTP --------
	var limiter *middleware.RateLimiter
	if serveOpts.ipRate > 0 {
		limiter = middleware.NewRateLimiter(serveOpts.ipRate, serveOpts.ipBurst)
	}
	var metrics http.Handler
	if cfg.Metrics.Enabled {
		metrics = prometheus.NewPrometheusExporter(engine).Handler()
	}
	api := httpapi.New(engine, httpapi.Options{
		Logger:            logger,
		TrustForwardedFor: serveOpts.trustForwarded,
		RateLimiter:       limiter,
		Metrics:           metrics,
	})

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", srv.Addr, "env", cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serveOpts.shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openCredentials returns the in-memory store in dev mode and the migrated
// SQL store otherwise.
func openCredentials(ctx context.Context, cfg shopauth.Config, dev bool) (credential.Repository, func(), error) {
	if dev {
		return memstore.New(), func() {}, nil
	}

	dialect, err := sqlstore.ParseDialect(cfg.Server.DatabaseDialect)
	if err != nil {
		return nil, nil, err
	}
	store, err := sqlstore.Open(ctx, dialect, cfg.Server.DatabaseDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("migrate credential store: %w", err)
	}
	return store, func() { _ = store.Close() }, nil
}

// logMailer stands in for a mail provider. The token is only written in dev
// mode.
func logMailer(logger *slog.Logger, dev bool) asynqnotify.Mailer {
	return asynqnotify.MailerFunc(func(_ context.Context, identifier, token string, expiresAt time.Time) error {
		attrs := []any{"identifier", identifier, "expires_at", expiresAt}
		if dev {
			attrs = append(attrs, "token", token)
		}
		logger.Info("password reset mail", attrs...)
		return nil
	})
}
