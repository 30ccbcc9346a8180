package shopauth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRefreshRotatesToken(t *testing.T) {
	env := newTestEnv(t, nil)
	userID := env.register(t, testIdentifier, testPassword)
	login := env.login(t, testIdentifier, testPassword)
	ctx := context.Background()

	res, err := env.engine.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if res.RefreshToken == login.RefreshToken {
		t.Fatal("expected a new refresh token")
	}
	if res.SessionID != login.SessionID || res.UserID != userID {
		t.Fatalf("refresh must keep the session, got %+v", res)
	}
	if res.CSRFToken != login.CSRFToken {
		t.Fatal("refresh must re-issue the session's csrf token")
	}
	if _, err := env.engine.ValidateAccess(ctx, res.AccessToken); err != nil {
		t.Fatalf("rotated access token invalid: %v", err)
	}

	if _, err := env.engine.Refresh(ctx, res.RefreshToken); err != nil {
		t.Fatalf("second rotation error: %v", err)
	}
}

func TestRefreshReuseRevokesSession(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, testIdentifier, testPassword)
	login := env.login(t, testIdentifier, testPassword)
	ctx := context.Background()

	rotated, err := env.engine.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}

	if _, err := env.engine.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrTokenReuseDetected) {
		t.Fatalf("expected ErrTokenReuseDetected for replayed token, got %v", err)
	}
	if _, err := env.engine.Refresh(ctx, rotated.RefreshToken); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked after reuse, got %v", err)
	}
	if _, err := env.engine.ValidateSession(ctx, rotated.AccessToken); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected strict validation to see the revocation, got %v", err)
	}

	if env.engine.MetricsSnapshot().Counters[MetricRefreshReuseDetected] != 1 {
		t.Fatal("expected one reuse detection")
	}
	if !hasEvent(env.drainEvents(), AuditRefreshReuseDetected) {
		t.Fatal("expected refresh_reuse_detected audit event")
	}
}

func TestRefreshConcurrentCallersSingleWinner(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, testIdentifier, testPassword)
	login := env.login(t, testIdentifier, testPassword)

	const callers = 16
	var (
		wg       sync.WaitGroup
		start    = make(chan struct{})
		mu       sync.Mutex
		success  int
		reuse    int
		other    []error
		rotation string
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := env.engine.Refresh(context.Background(), login.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
				rotation = res.RefreshToken
			case errors.Is(err, ErrTokenReuseDetected):
				reuse++
			default:
				other = append(other, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if len(other) > 0 {
		t.Fatalf("unexpected errors: %v", other)
	}
	if success != 1 || reuse != callers-1 {
		t.Fatalf("expected 1 success and %d reuse detections, got %d and %d", callers-1, success, reuse)
	}

	// The losers revoked the session, so the winner's token is dead too.
	if _, err := env.engine.Refresh(context.Background(), rotation); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked for the winning token, got %v", err)
	}
}

func TestRefreshAfterLogout(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, testIdentifier, testPassword)
	login := env.login(t, testIdentifier, testPassword)
	ctx := context.Background()

	if err := env.engine.Logout(ctx, login.SessionID); err != nil {
		t.Fatalf("Logout error: %v", err)
	}
	if err := env.engine.Logout(ctx, login.SessionID); err != nil {
		t.Fatalf("second Logout must be a no-op, got %v", err)
	}

	if _, err := env.engine.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}

	// Access tokens stay valid until expiry; only strict validation notices.
	if _, err := env.engine.ValidateAccess(ctx, login.AccessToken); err != nil {
		t.Fatalf("ValidateAccess after logout: %v", err)
	}
	if _, err := env.engine.ValidateSession(ctx, login.AccessToken); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked from ValidateSession, got %v", err)
	}
}

func TestRefreshExpiredSession(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, testIdentifier, testPassword)
	login := env.login(t, testIdentifier, testPassword)

	env.clock.Advance(env.engine.Config().Session.RefreshTTL + time.Second)

	if _, err := env.engine.Refresh(context.Background(), login.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for expired session, got %v", err)
	}
}

func TestRefreshRejectsMalformedToken(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, token := range []string{"", "not-a-token", "AAAA", "c2hvcnQx"} {
		if _, err := env.engine.Refresh(context.Background(), token); !errors.Is(err, ErrRefreshInvalid) {
			t.Fatalf("Refresh(%q): expected ErrRefreshInvalid, got %v", token, err)
		}
	}
}

func TestRefreshUnknownSession(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, testIdentifier, testPassword)
	login := env.login(t, testIdentifier, testPassword)

	if err := env.rdb.FlushAll(context.Background()).Err(); err != nil {
		t.Fatalf("FlushAll error: %v", err)
	}
	if _, err := env.engine.Refresh(context.Background(), login.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestValidateAccessRejectsTamperedToken(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, testIdentifier, testPassword)
	login := env.login(t, testIdentifier, testPassword)

	tampered := login.AccessToken[:len(login.AccessToken)-4] + "AAAA"
	if _, err := env.engine.ValidateAccess(context.Background(), tampered); err == nil {
		t.Fatal("expected tampered token to fail")
	}
	if _, err := env.engine.ValidateAccess(context.Background(), login.RefreshToken); err == nil {
		t.Fatal("refresh token must not validate as an access token")
	}
}

func TestValidateAccessExpires(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, testIdentifier, testPassword)
	login := env.login(t, testIdentifier, testPassword)

	cfg := env.engine.Config()
	env.clock.Advance(cfg.JWT.AccessTTL + cfg.JWT.Leeway + time.Second)

	if _, err := env.engine.ValidateAccess(context.Background(), login.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestRefreshFailsClosedWhenRedisIsDown(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, testIdentifier, testPassword)
	login := env.login(t, testIdentifier, testPassword)
	env.mr.Close()

	if _, err := env.engine.Refresh(context.Background(), login.RefreshToken); !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
	if _, err := env.engine.ValidateSession(context.Background(), login.AccessToken); !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable from ValidateSession, got %v", err)
	}
}
