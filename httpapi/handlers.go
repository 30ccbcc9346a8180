package httpapi

import (
	"net/http"
	"time"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/middleware"
)

type credentialsRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type registerResponse struct {
	UserID     string    `json:"user_id"`
	Identifier string    `json:"identifier"`
	CreatedAt  time.Time `json:"created_at"`
}

type sessionResponse struct {
	UserID           string    `json:"user_id"`
	SessionID        string    `json:"session_id"`
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	CSRFToken        string    `json:"csrf_token"`
	NewDevice        bool      `json:"new_device,omitempty"`
	DeviceStatus     string    `json:"device_status,omitempty"`
}

type forgotPasswordRequest struct {
	Identifier string `json:"identifier"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type sessionInfo struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Current   bool      `json:"current"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	res, err := s.engine.Register(r.Context(), shopauth.RegisterRequest{
		Identifier: body.Identifier,
		Password:   body.Password,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		UserID:     res.UserID,
		Identifier: res.Identifier,
		CreatedAt:  res.CreatedAt,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	res, err := s.engine.Login(r.Context(), shopauth.LoginRequest{
		Identifier:        body.Identifier,
		Password:          body.Password,
		DeviceFingerprint: r.Header.Get(DeviceHeader),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.setSessionCookies(w, res.TokenPair, res.CSRFToken, time.Now())
	writeJSON(w, http.StatusOK, sessionResponse{
		UserID:           res.UserID,
		SessionID:        res.SessionID,
		AccessToken:      res.AccessToken,
		AccessExpiresAt:  res.AccessExpiresAt,
		RefreshExpiresAt: res.RefreshExpiresAt,
		CSRFToken:        res.CSRFToken,
		NewDevice:        res.NewDevice,
		DeviceStatus:     string(res.DeviceStatus),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token := s.refreshToken(r)
	if token == "" {
		writeMessage(w, http.StatusUnauthorized, "session expired")
		return
	}

	res, err := s.engine.Refresh(r.Context(), token)
	if err != nil {
		if shopauth.KindOf(err) != shopauth.KindUnavailable {
			s.clearSessionCookies(w)
		}
		s.writeError(w, r, err)
		return
	}

	s.setSessionCookies(w, res.TokenPair, res.CSRFToken, time.Now())
	writeJSON(w, http.StatusOK, sessionResponse{
		UserID:           res.UserID,
		SessionID:        res.SessionID,
		AccessToken:      res.AccessToken,
		AccessExpiresAt:  res.AccessExpiresAt,
		RefreshExpiresAt: res.RefreshExpiresAt,
		CSRFToken:        res.CSRFToken,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.AccessClaimsFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ctx := shopauth.WithSession(r.Context(), shopauth.SessionContext{UserID: claims.UserID, SessionID: claims.SessionID})
	if err := s.engine.Logout(ctx, claims.SessionID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.clearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	sc, _ := shopauth.SessionFromContext(r.Context())
	n, err := s.engine.LogoutAll(r.Context(), sc.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var body changePasswordRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	sc, _ := shopauth.SessionFromContext(r.Context())
	if err := s.engine.ChangePassword(r.Context(), sc.UserID, sc.SessionID, body.OldPassword, body.NewPassword); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sc, _ := shopauth.SessionFromContext(r.Context())
	sessions, err := s.engine.ListSessions(r.Context(), sc.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]sessionInfo, 0, len(sessions))
	for _, info := range sessions {
		out = append(out, sessionInfo{
			SessionID: info.SessionID,
			CreatedAt: info.CreatedAt,
			ExpiresAt: info.ExpiresAt,
			Current:   info.Current,
		})
	}
	writeJSON(w, http.StatusOK, map[string][]sessionInfo{"sessions": out})
}

// handleForgotPassword answers 202 for known and unknown accounts alike.
func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body forgotPasswordRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if err := s.engine.ForgotPassword(r.Context(), body.Identifier); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "if the account exists, a reset link has been sent"})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var body resetPasswordRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if err := s.engine.ResetPassword(r.Context(), body.Token, body.NewPassword); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.clearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Ping(r.Context()); err != nil {
		writeMessage(w, http.StatusServiceUnavailable, "redis unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
