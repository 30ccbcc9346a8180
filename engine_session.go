package shopauth

import (
	"context"
	"errors"
	"fmt"

	internalaudit "github.com/MrEthical07/shopauth/internal/audit"
	"github.com/MrEthical07/shopauth/session"
)

// Logout revokes one session. It is idempotent: unknown, expired and already
// revoked sessions succeed. Outstanding access tokens of the session stay
// valid until they expire.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if sessionID == "" {
		return nil
	}

	var changed bool
	err := e.call(ctx, func(ctx context.Context) error {
		var err error
		changed, err = e.sessions.Revoke(ctx, sessionID)
		return err
	})
	if err != nil && !errors.Is(err, session.ErrSessionCorrupt) {
		return e.unavailable(ctx, "session revoke", err)
	}

	e.metricInc(MetricLogout)
	if changed {
		e.metricInc(MetricSessionRevoked)
	}
	var userID string
	if s, ok := SessionFromContext(ctx); ok && s.SessionID == sessionID {
		userID = s.UserID
	}
	e.emitAudit(ctx, internalaudit.Event{
		Type:      internalaudit.EventLogout,
		UserID:    userID,
		SessionID: sessionID,
		Success:   true,
		Metadata:  map[string]string{"revoked": fmt.Sprint(changed)},
	})
	return nil
}

// LogoutAll revokes every session of userID and returns how many were active.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	if userID == "" {
		return 0, &ValidationError{Field: "user_id", Violations: []Violation{{Rule: "required", Message: "user id is required"}}}
	}

	n, err := e.revokeAll(ctx, userID, "")
	if err != nil {
		return 0, err
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, internalaudit.Event{
		Type:     internalaudit.EventLogoutAll,
		UserID:   userID,
		Success:  true,
		Metadata: map[string]string{"revoked": fmt.Sprint(n)},
	})
	return n, nil
}

func (e *Engine) revokeAll(ctx context.Context, userID, except string) (int, error) {
	var n int
	err := e.call(ctx, func(ctx context.Context) error {
		var err error
		n, err = e.sessions.RevokeAll(ctx, userID, except)
		return err
	})
	if err != nil {
		return 0, e.unavailable(ctx, "session revoke all", err)
	}
	for i := 0; i < n; i++ {
		e.metricInc(MetricSessionRevoked)
	}
	return n, nil
}

// ListSessions returns the user's active sessions, newest first. The session
// attached to ctx by WithSession is marked Current.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	var active []*session.Session
	err := e.call(ctx, func(ctx context.Context) error {
		var err error
		active, err = e.sessions.ListActive(ctx, userID)
		return err
	})
	if err != nil {
		return nil, e.unavailable(ctx, "session list", err)
	}

	current, _ := SessionFromContext(ctx)
	out := make([]SessionInfo, 0, len(active))
	for _, s := range active {
		out = append(out, SessionInfo{
			SessionID: s.SessionID,
			CreatedAt: s.CreatedTime(),
			ExpiresAt: s.ExpiresTime(),
			Current:   s.SessionID == current.SessionID,
		})
	}
	return out, nil
}
