package jwt

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenExpired is returned for a correctly signed token past its exp.
	ErrTokenExpired = errors.New("access token expired")
	// ErrTokenInvalidSignature is returned when the signature, algorithm, or key id does not verify.
	ErrTokenInvalidSignature = errors.New("access token signature invalid")
	// ErrTokenInvalid is returned for malformed tokens and claim mismatches.
	ErrTokenInvalid = errors.New("access token invalid")
)

// Config holds access-token settings. PrivateKeyPEM signs; VerifyKeysPEM maps
// additional key ids to public keys accepted during rotation. The signing
// key's own public half is always accepted under KeyID.
type Config struct {
	AccessTTL     time.Duration
	PrivateKeyPEM []byte
	VerifyKeysPEM map[string][]byte
	KeyID         string
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
}

// AccessClaims are the claims carried by an access token.
type AccessClaims struct {
	UserID    string `json:"uid"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Manager signs and verifies access tokens. It is immutable after NewManager.
type Manager struct {
	config     Config
	signKey    *rsa.PrivateKey
	verifyKeys map[string]*rsa.PublicKey
	now        func() time.Time
}

// NewManager parses keys and validates cfg.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	if cfg.KeyID == "" {
		return nil, errors.New("key id is required")
	}

	signKey, err := parsePrivateKey(cfg.PrivateKeyPEM)
	if err != nil {
		return nil, err
	}

	verifyKeys := map[string]*rsa.PublicKey{cfg.KeyID: &signKey.PublicKey}
	for kid, pemBytes := range cfg.VerifyKeysPEM {
		kid = strings.TrimSpace(kid)
		if kid == "" {
			return nil, errors.New("verify key map contains empty kid")
		}
		if kid == cfg.KeyID {
			return nil, fmt.Errorf("verify key %q shadows the signing key", kid)
		}
		pub, err := parsePublicKey(pemBytes)
		if err != nil {
			return nil, fmt.Errorf("invalid verify key for kid %q: %w", kid, err)
		}
		verifyKeys[kid] = pub
	}

	return &Manager{
		config:     cfg,
		signKey:    signKey,
		verifyKeys: verifyKeys,
		now:        time.Now,
	}, nil
}

// TTL returns the configured access-token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.config.AccessTTL
}

// SetClock replaces the time source for issuing and validating tokens. It
// must be called before the manager is shared.
func (m *Manager) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// CreateAccess signs an access token for userID bound to sessionID.
func (m *Manager) CreateAccess(userID, sessionID string) (string, time.Time, error) {
	if userID == "" || sessionID == "" {
		return "", time.Time{}, errors.New("access token requires user and session id")
	}

	now := m.now()
	expiresAt := now.Add(m.config.AccessTTL)
	claims := AccessClaims{
		UserID:    userID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = m.config.KeyID

	signed, err := token.SignedString(m.signKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseAccess verifies tokenStr and returns its claims.
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	token, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, &AccessClaims{}, m.keyFunc)
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid || claims.UserID == "" || claims.SessionID == "" {
		return nil, ErrTokenInvalid
	}
	if claims.IssuedAt != nil && claims.IssuedAt.Time.After(m.now().Add(m.config.MaxFutureIAT)) {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

func (m *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("missing kid")
	}
	key, ok := m.verifyKeys[kid]
	if !ok {
		return nil, errors.New("unknown kid")
	}
	return key, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrTokenInvalidSignature, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
}
