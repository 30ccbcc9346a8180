package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/credential/memstore"
	"github.com/MrEthical07/shopauth/jwt"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	loadtestPassword = "Loadtest-Pass-42!"
	loadtestWrong    = "Loadtest-Wrong-42!"
)

var loadtestOpts struct {
	mode        string
	users       int
	concurrency int
	ops         int
	rps         float64
	redisAddr   string
}

var loadtestCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Measure engine latency against Redis",
	Long: `loadtest drives an in-process engine and prints per-phase latency percentiles.

Modes:
  session  seed sessions, then measure ValidateSession and Refresh
  timing   compare login latency for unknown accounts against wrong passwords

Without --redis-addr (or REDIS_ADDR) an in-process miniredis is used.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		o := loadtestOpts
		if o.users <= 0 || o.concurrency <= 0 || o.ops <= 0 {
			return errors.New("users, concurrency and ops must be > 0")
		}
		switch o.mode {
		case "session":
			return runSessionLoad(cmd.Context(), cmd.OutOrStdout())
		case "timing":
			return runTimingLoad(cmd.Context(), cmd.OutOrStdout())
		default:
			return fmt.Errorf("unknown mode %q", o.mode)
		}
	},
}

func init() {
	f := loadtestCmd.Flags()
	f.StringVar(&loadtestOpts.mode, "mode", "session", "session or timing")
	f.IntVar(&loadtestOpts.users, "users", 200, "accounts (and sessions) to seed")
	f.IntVar(&loadtestOpts.concurrency, "concurrency", 64, "concurrent workers")
	f.IntVar(&loadtestOpts.ops, "ops", 20000, "operations per phase")
	f.Float64Var(&loadtestOpts.rps, "rps", 0, "overall operations per second; 0 is unthrottled")
	f.StringVar(&loadtestOpts.redisAddr, "redis-addr", "", "redis address; falls back to REDIS_ADDR, then miniredis")
	rootCmd.AddCommand(loadtestCmd)
}

type sessionState struct {
	mu      sync.Mutex
	access  string
	refresh string
}

func runSessionLoad(ctx context.Context, out io.Writer) error {
	engine, cleanup, err := newLoadEngine(out, true)
	if err != nil {
		return err
	}
	defer cleanup()

	n := loadtestOpts.users
	fmt.Fprintf(out, "seeding %d sessions...\n", n)
	startSeed := time.Now()
	states := make([]sessionState, n)
	for i := range states {
		identifier := fmt.Sprintf("user-%d@loadtest.local", i)
		if _, err := engine.Register(ctx, shopauth.RegisterRequest{Identifier: identifier, Password: loadtestPassword}); err != nil {
			return fmt.Errorf("register %s: %w", identifier, err)
		}
		res, err := engine.Login(ctx, shopauth.LoginRequest{Identifier: identifier, Password: loadtestPassword})
		if err != nil {
			return fmt.Errorf("login %s: %w", identifier, err)
		}
		states[i].access = res.AccessToken
		states[i].refresh = res.RefreshToken
	}
	fmt.Fprintf(out, "seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validate, err := runPhase(ctx, func(ctx context.Context, r *rand.Rand) error {
		s := &states[r.Intn(len(states))]
		s.mu.Lock()
		access := s.access
		s.mu.Unlock()
		_, err := engine.ValidateSession(ctx, access)
		return err
	})
	if err != nil {
		return err
	}

	refresh, err := runPhase(ctx, func(ctx context.Context, r *rand.Rand) error {
		s := &states[r.Intn(len(states))]
		s.mu.Lock()
		defer s.mu.Unlock()
		res, err := engine.Refresh(ctx, s.refresh)
		if err != nil {
			return err
		}
		s.access = res.AccessToken
		s.refresh = res.RefreshToken
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "validate", validate)
	printStats(out, "refresh", refresh)
	return nil
}

// runTimingLoad uses the configured argon2id cost so the comparison reflects
// production hashing.
func runTimingLoad(ctx context.Context, out io.Writer) error {
	engine, cleanup, err := newLoadEngine(out, false)
	if err != nil {
		return err
	}
	defer cleanup()

	const known = "known@loadtest.local"
	if _, err := engine.Register(ctx, shopauth.RegisterRequest{Identifier: known, Password: loadtestPassword}); err != nil {
		return fmt.Errorf("register: %w", err)
	}

	var counter atomic.Uint64
	unknown, err := runPhase(ctx, func(ctx context.Context, _ *rand.Rand) error {
		identifier := fmt.Sprintf("missing-%d@loadtest.local", counter.Add(1))
		return expectInvalid(engine.Login(ctx, shopauth.LoginRequest{Identifier: identifier, Password: loadtestWrong}))
	})
	if err != nil {
		return err
	}
	wrong, err := runPhase(ctx, func(ctx context.Context, _ *rand.Rand) error {
		return expectInvalid(engine.Login(ctx, shopauth.LoginRequest{Identifier: known, Password: loadtestWrong}))
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "unknown-account", unknown)
	printStats(out, "wrong-password", wrong)
	fmt.Fprintf(out, "p50 ratio unknown/wrong = %.3f\n", ratio(unknown.p50, wrong.p50))
	return nil
}

func expectInvalid(_ *shopauth.LoginResult, err error) error {
	if errors.Is(err, shopauth.ErrInvalidCredentials) {
		return nil
	}
	if err == nil {
		return errors.New("login unexpectedly succeeded")
	}
	return err
}

// runPhase runs loadtestOpts.ops calls of op across the configured workers.
// op errors are counted as failures; only pacing errors abort the phase.
func runPhase(ctx context.Context, op func(context.Context, *rand.Rand) error) (phaseStats, error) {
	var (
		cursor    int64
		failures  int64
		mu        sync.Mutex
		ops       = loadtestOpts.ops
		latencies = make([]time.Duration, 0, ops)
		limiter   *rate.Limiter
	)
	if loadtestOpts.rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(loadtestOpts.rps), loadtestOpts.concurrency)
	}

	g, gctx := errgroup.WithContext(ctx)
	start := time.Now()
	for w := 0; w < loadtestOpts.concurrency; w++ {
		seed := time.Now().UnixNano() + int64(w)*7919
		g.Go(func() error {
			r := rand.New(rand.NewSource(seed))
			for {
				if atomic.AddInt64(&cursor, 1) > int64(ops) {
					return nil
				}
				if limiter != nil {
					if err := limiter.Wait(gctx); err != nil {
						return err
					}
				}
				t0 := time.Now()
				err := op(gctx, r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		})
	}
	if err := g.Wait(); err != nil {
		return phaseStats{}, err
	}
	return computeStats(time.Since(start), latencies, failures), nil
}

// newLoadEngine builds an engine with every rate limit and the lockout
// disabled so the measured path is the store and the hasher.
func newLoadEngine(out io.Writer, cheapHash bool) (*shopauth.Engine, func(), error) {
	addr := loadtestOpts.redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		closers = append(closers, mr.Close)
		addr = mr.Addr()
		fmt.Fprintf(out, "using miniredis at %s\n", addr)
	} else {
		fmt.Fprintf(out, "using redis at %s\n", addr)
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	closers = append(closers, func() { _ = rdb.Close() })

	key, err := jwt.GenerateKeyPEM(2048)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	cfg := shopauth.DefaultConfig()
	cfg.JWT.PrivateKeyPEM = key
	cfg.Session.RedisPrefix = "loadtest:sess"
	cfg.RateLimit.Login.MaxAttempts = 0
	cfg.RateLimit.Register.MaxAttempts = 0
	cfg.RateLimit.Refresh.MaxAttempts = 0
	cfg.Lockout.Threshold = 0
	cfg.Audit.Enabled = false
	cfg.Device.Enabled = false
	if cheapHash {
		cfg.Password.Memory = 8 * 1024
		cfg.Password.Time = 1
		cfg.Password.Parallelism = 1
	}

	engine, err := shopauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialRepository(memstore.New()).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, engine.Close)
	return engine, cleanup, nil
}
