package httpapi

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/MrEthical07/shopauth"
)

const maxJSONBodyBytes = 1 << 20

type errorBody struct {
	Error       string               `json:"error"`
	Code        int                  `json:"code"`
	Field       string               `json:"field,omitempty"`
	Violations  []shopauth.Violation `json:"violations,omitempty"`
	RetryAfter  int                  `json:"retry_after,omitempty"`
	LockedUntil *time.Time           `json:"locked_until,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message, Code: status})
}

// writeError maps an engine error onto a status code by its kind.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{}

	switch shopauth.KindOf(err) {
	case shopauth.KindValidation:
		body.Code, body.Error = http.StatusUnprocessableEntity, "validation failed"
		var verr *shopauth.ValidationError
		if errors.As(err, &verr) {
			body.Field = verr.Field
			body.Violations = verr.Violations
		}
	case shopauth.KindAuthentication:
		body.Code, body.Error = http.StatusUnauthorized, authMessage(err)
	case shopauth.KindAuthorization:
		body.Code, body.Error = http.StatusForbidden, "forbidden"
	case shopauth.KindRateLimit:
		body.Code, body.Error = http.StatusTooManyRequests, "too many requests"
		var rerr *shopauth.RateLimitError
		if errors.As(err, &rerr) {
			body.RetryAfter = int(math.Ceil(rerr.RetryAfter.Seconds()))
			if body.RetryAfter < 1 {
				body.RetryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(body.RetryAfter))
		}
	case shopauth.KindAccountLocked:
		body.Code, body.Error = http.StatusForbidden, "account locked"
		var lerr *shopauth.AccountLockedError
		if errors.As(err, &lerr) {
			until := lerr.LockedUntil.UTC()
			body.LockedUntil = &until
		}
	case shopauth.KindConflict:
		body.Code, body.Error = http.StatusConflict, "account already exists"
	case shopauth.KindTokenReuse:
		body.Code, body.Error = http.StatusUnauthorized, "refresh token reuse detected"
	case shopauth.KindUnavailable:
		body.Code, body.Error = http.StatusServiceUnavailable, "service unavailable"
	default:
		s.logger.ErrorContext(r.Context(), "shopauth: request failed", "path", r.URL.Path, "error", err)
		body.Code, body.Error = http.StatusInternalServerError, "internal server error"
	}

	if body.Code == http.StatusServiceUnavailable {
		s.logger.WarnContext(r.Context(), "shopauth: dependency unavailable", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, body.Code, body)
}

// authMessage keeps unknown-account and wrong-password answers identical.
func authMessage(err error) string {
	switch {
	case errors.Is(err, shopauth.ErrInvalidCredentials):
		return "invalid credentials"
	case errors.Is(err, shopauth.ErrResetTokenInvalid):
		return "invalid or expired reset token"
	case errors.Is(err, shopauth.ErrRefreshInvalid),
		errors.Is(err, shopauth.ErrSessionNotFound),
		errors.Is(err, shopauth.ErrSessionRevoked):
		return "session expired"
	default:
		return "unauthorized"
	}
}

// decodeJSON reads a bounded JSON body into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}
