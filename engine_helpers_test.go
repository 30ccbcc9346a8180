package shopauth

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/shopauth/credential"
	"github.com/MrEthical07/shopauth/credential/memstore"
	"github.com/MrEthical07/shopauth/internal/limiters"
	"github.com/MrEthical07/shopauth/jwt"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const (
	testIdentifier = "alice@example.com"
	testPassword   = "Correct-Horse-42!"
)

var (
	engineKeyOnce sync.Once
	engineKeyPEM  []byte
	engineKeyErr  error
)

func testPrivateKey(t testing.TB) []byte {
	t.Helper()
	engineKeyOnce.Do(func() {
		engineKeyPEM, engineKeyErr = jwt.GenerateKeyPEM(2048)
	})
	if engineKeyErr != nil {
		t.Fatalf("GenerateKeyPEM error: %v", engineKeyErr)
	}
	return engineKeyPEM
}

// testConfig is DefaultConfig with cheap hashing and generous limits, so
// tests opt in to the limit they exercise.
func testConfig(t testing.TB) Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKeyPEM = testPrivateKey(t)
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.RateLimit.Login.MaxAttempts = 1000
	cfg.RateLimit.Register.MaxAttempts = 1000
	cfg.RateLimit.Refresh.MaxAttempts = 1000
	cfg.RateLimit.Forgot.MaxAttempts = 1000
	cfg.RateLimit.Reset.MaxAttempts = 1000
	cfg.Lockout.Threshold = 3
	cfg.Lockout.Duration = time.Hour
	cfg.Store.Timeout = 200 * time.Millisecond
	cfg.Store.Retries = 0
	cfg.Audit.DropIfFull = false
	return cfg
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordedReset struct {
	userID     string
	identifier string
	token      string
}

type recordingNotifier struct {
	mu     sync.Mutex
	resets []recordedReset
}

func (n *recordingNotifier) NotifyPasswordReset(_ context.Context, userID, identifier, token string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets = append(n.resets, recordedReset{userID: userID, identifier: identifier, token: token})
	return nil
}

func (n *recordingNotifier) last(t *testing.T) recordedReset {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.resets) == 0 {
		t.Fatal("expected a reset notification")
	}
	return n.resets[len(n.resets)-1]
}

type testEnv struct {
	engine   *Engine
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	repo     *memstore.Store
	clock    *testClock
	notifier *recordingNotifier
	events   *ChannelSink
}

func newTestEnv(t *testing.T, mutate func(cfg *Config)) *testEnv {
	t.Helper()

	cfg := testConfig(t)
	if mutate != nil {
		mutate(&cfg)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := newTestClock()
	repo := memstore.New()
	repo.SetClock(clock.Now)
	notifier := &recordingNotifier{}
	events := NewChannelSink(4096)

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialRepository(repo).
		WithResetNotifier(notifier).
		WithAuditSink(events).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{
		engine:   engine,
		mr:       mr,
		rdb:      rdb,
		repo:     repo,
		clock:    clock,
		notifier: notifier,
		events:   events,
	}
}

func (env *testEnv) register(t *testing.T, identifier, password string) string {
	t.Helper()
	res, err := env.engine.Register(context.Background(), RegisterRequest{Identifier: identifier, Password: password})
	if err != nil {
		t.Fatalf("Register(%s) error: %v", identifier, err)
	}
	return res.UserID
}

func (env *testEnv) login(t *testing.T, identifier, password string) *LoginResult {
	t.Helper()
	res, err := env.engine.Login(context.Background(), LoginRequest{Identifier: identifier, Password: password})
	if err != nil {
		t.Fatalf("Login(%s) error: %v", identifier, err)
	}
	return res
}

// drainEvents closes the dispatcher and returns every delivered event type.
func (env *testEnv) drainEvents() []AuditEvent {
	env.engine.Close()
	var out []AuditEvent
	for {
		select {
		case ev := <-env.events.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func hasEvent(events []AuditEvent, eventType string) bool {
	for _, ev := range events {
		if ev.Type == eventType {
			return true
		}
	}
	return false
}

// countingHasher counts Verify calls so tests can assert the cost profile of
// a login path.
type countingHasher struct {
	inner    credential.Hasher
	verifies atomic.Int64
}

func (h *countingHasher) Hash(password string) (string, error) {
	return h.inner.Hash(password)
}

func (h *countingHasher) Verify(password, encoded string) (bool, error) {
	h.verifies.Add(1)
	return h.inner.Verify(password, encoded)
}

func (env *testEnv) countVerifies(t *testing.T) *countingHasher {
	t.Helper()
	counter := &countingHasher{inner: env.engine.hasher}
	verifier, err := credential.NewVerifier(env.engine.credentials, counter)
	if err != nil {
		t.Fatalf("NewVerifier error: %v", err)
	}
	env.engine.verifier = verifier
	return counter
}

// counterWriteRepo counts failure-counter writes and can inject a failure.
type counterWriteRepo struct {
	credential.Repository
	increments atomic.Int64
	fail       error
}

func (r *counterWriteRepo) IncrementFailedAttempts(ctx context.Context, userID string) (int, error) {
	r.increments.Add(1)
	if r.fail != nil {
		return 0, r.fail
	}
	return r.Repository.IncrementFailedAttempts(ctx, userID)
}

func (env *testEnv) countCounterWrites(t *testing.T) *counterWriteRepo {
	t.Helper()
	repo := &counterWriteRepo{Repository: env.engine.credentials}
	lockout := limiters.NewLockout(repo, limiters.LockoutConfig{
		Threshold: env.engine.config.Lockout.Threshold,
		Duration:  env.engine.config.Lockout.Duration,
	})
	lockout.SetClock(env.clock.Now)
	env.engine.lockout = lockout
	return repo
}
