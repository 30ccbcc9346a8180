package session

import "time"

// Session is one login's server-side state. RefreshHash is the sha256 of the
// current refresh secret; older secrets of the same chain are not retained.
type Session struct {
	SessionID         string
	UserID            string
	DeviceFingerprint string
	CSRFToken         string

	RefreshHash [32]byte
	Generation  uint32
	Revoked     bool

	// Unix milliseconds.
	CreatedAt int64
	ExpiresAt int64
}

// ExpiredAt reports whether the session has passed its expiry at now.
func (s *Session) ExpiredAt(now time.Time) bool {
	return s.ExpiresAt <= now.UnixMilli()
}

// Active reports whether the session is neither revoked nor expired.
func (s *Session) Active(now time.Time) bool {
	return !s.Revoked && !s.ExpiredAt(now)
}

// CreatedTime returns CreatedAt as a time.Time.
func (s *Session) CreatedTime() time.Time {
	return time.UnixMilli(s.CreatedAt)
}

// ExpiresTime returns ExpiresAt as a time.Time.
func (s *Session) ExpiresTime() time.Time {
	return time.UnixMilli(s.ExpiresAt)
}
