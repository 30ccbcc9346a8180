package jwt

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var (
	keyOnce   sync.Once
	keyPEM    []byte
	otherPEM  []byte
	keyGenErr error
)

func testKeys(t testing.TB) ([]byte, []byte) {
	t.Helper()
	keyOnce.Do(func() {
		keyPEM, keyGenErr = GenerateKeyPEM(2048)
		if keyGenErr != nil {
			return
		}
		otherPEM, keyGenErr = GenerateKeyPEM(2048)
	})
	if keyGenErr != nil {
		t.Fatalf("GenerateKeyPEM error: %v", keyGenErr)
	}
	return keyPEM, otherPEM
}

func testConfig(t *testing.T) Config {
	t.Helper()
	priv, _ := testKeys(t)
	return Config{
		AccessTTL:     15 * time.Minute,
		PrivateKeyPEM: priv,
		KeyID:         "k1",
		Issuer:        "shopauth",
		Audience:      "shop",
		Leeway:        30 * time.Second,
	}
}

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	return m
}

func TestCreateAndParseAccess(t *testing.T) {
	m := newTestManager(t, testConfig(t))

	token, expiresAt, err := m.CreateAccess("user-1", "sid-1")
	if err != nil {
		t.Fatalf("CreateAccess error: %v", err)
	}
	if time.Until(expiresAt) > 15*time.Minute || time.Until(expiresAt) < 14*time.Minute {
		t.Fatalf("unexpected expiry %v", expiresAt)
	}

	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("ParseAccess error: %v", err)
	}
	if claims.UserID != "user-1" || claims.SessionID != "sid-1" || claims.Subject != "user-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ID == "" {
		t.Fatal("expected jti to be set")
	}
}

func TestParseAccessExpired(t *testing.T) {
	m := newTestManager(t, testConfig(t))

	issued := time.Now().Add(-time.Hour)
	m.now = func() time.Time { return issued }
	token, _, err := m.CreateAccess("user-1", "sid-1")
	if err != nil {
		t.Fatalf("CreateAccess error: %v", err)
	}
	m.now = time.Now

	if _, err := m.ParseAccess(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestParseAccessWithinLeeway(t *testing.T) {
	m := newTestManager(t, testConfig(t))

	issued := time.Now().Add(-15*time.Minute - 10*time.Second)
	m.now = func() time.Time { return issued }
	token, _, _ := m.CreateAccess("user-1", "sid-1")
	m.now = time.Now

	if _, err := m.ParseAccess(token); err != nil {
		t.Fatalf("expected token within leeway to parse, got %v", err)
	}
}

func TestParseAccessTamperedSignature(t *testing.T) {
	m := newTestManager(t, testConfig(t))
	token, _, _ := m.CreateAccess("user-1", "sid-1")

	parts := strings.Split(token, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	parts[2] = string(sig)

	if _, err := m.ParseAccess(strings.Join(parts, ".")); !errors.Is(err, ErrTokenInvalidSignature) {
		t.Fatalf("expected ErrTokenInvalidSignature, got %v", err)
	}
}

func TestParseAccessRejectsOtherKey(t *testing.T) {
	cfg := testConfig(t)
	m := newTestManager(t, cfg)

	_, other := testKeys(t)
	cfg.PrivateKeyPEM = other
	foreign := newTestManager(t, cfg)
	token, _, _ := foreign.CreateAccess("user-1", "sid-1")

	if _, err := m.ParseAccess(token); !errors.Is(err, ErrTokenInvalidSignature) {
		t.Fatalf("expected ErrTokenInvalidSignature, got %v", err)
	}
}

func TestParseAccessRejectsHS256(t *testing.T) {
	m := newTestManager(t, testConfig(t))

	claims := AccessClaims{
		UserID:    "user-1",
		SessionID: "sid-1",
		RegisteredClaims: gjwt.RegisteredClaims{
			Issuer:    "shopauth",
			Audience:  gjwt.ClaimStrings{"shop"},
			IssuedAt:  gjwt.NewNumericDate(time.Now()),
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims)
	token.Header["kid"] = "k1"
	signed, err := token.SignedString([]byte("attacker-secret"))
	if err != nil {
		t.Fatalf("SignedString error: %v", err)
	}

	if _, err := m.ParseAccess(signed); !errors.Is(err, ErrTokenInvalidSignature) {
		t.Fatalf("expected ErrTokenInvalidSignature, got %v", err)
	}
}

func TestParseAccessUnknownKid(t *testing.T) {
	m := newTestManager(t, testConfig(t))

	claims := AccessClaims{
		UserID:    "user-1",
		SessionID: "sid-1",
		RegisteredClaims: gjwt.RegisteredClaims{
			Issuer:    "shopauth",
			Audience:  gjwt.ClaimStrings{"shop"},
			IssuedAt:  gjwt.NewNumericDate(time.Now()),
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token := gjwt.NewWithClaims(gjwt.SigningMethodRS256, claims)
	token.Header["kid"] = "retired"
	signed, _ := token.SignedString(m.signKey)

	if _, err := m.ParseAccess(signed); !errors.Is(err, ErrTokenInvalidSignature) {
		t.Fatalf("expected ErrTokenInvalidSignature, got %v", err)
	}
}

func TestParseAccessWrongAudience(t *testing.T) {
	cfg := testConfig(t)
	m := newTestManager(t, cfg)

	cfg.Audience = "admin"
	other := newTestManager(t, cfg)
	token, _, _ := other.CreateAccess("user-1", "sid-1")

	if _, err := m.ParseAccess(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestParseAccessMalformed(t *testing.T) {
	m := newTestManager(t, testConfig(t))

	for _, tok := range []string{"", "abc", "a.b.c", "eyJhbGciOiJub25lIn0.e30."} {
		if _, err := m.ParseAccess(tok); err == nil {
			t.Fatalf("expected error for %q", tok)
		}
	}
}

func TestVerifyKeyRotation(t *testing.T) {
	priv, other := testKeys(t)

	oldCfg := testConfig(t)
	oldCfg.PrivateKeyPEM = other
	oldCfg.KeyID = "k0"
	oldManager := newTestManager(t, oldCfg)
	oldToken, _, _ := oldManager.CreateAccess("user-1", "sid-1")

	otherPub, err := PublicKeyPEM(other)
	if err != nil {
		t.Fatalf("PublicKeyPEM error: %v", err)
	}
	cfg := testConfig(t)
	cfg.PrivateKeyPEM = priv
	cfg.VerifyKeysPEM = map[string][]byte{"k0": otherPub}
	m := newTestManager(t, cfg)

	if _, err := m.ParseAccess(oldToken); err != nil {
		t.Fatalf("expected rotated key to verify, got %v", err)
	}
}

func TestNewManagerRejectsInvalidConfig(t *testing.T) {
	base := testConfig(t)

	cases := map[string]func(*Config){
		"zero ttl":      func(c *Config) { c.AccessTTL = 0 },
		"missing kid":   func(c *Config) { c.KeyID = " " },
		"bad key":       func(c *Config) { c.PrivateKeyPEM = []byte("nope") },
		"huge leeway":   func(c *Config) { c.Leeway = time.Hour },
		"shadowing kid": func(c *Config) { c.VerifyKeysPEM = map[string][]byte{"k1": base.PrivateKeyPEM} },
	}
	for name, mutate := range cases {
		cfg := base
		mutate(&cfg)
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("%s: expected NewManager error", name)
		}
	}
}

func TestGenerateKeyPEMRejectsSmallKeys(t *testing.T) {
	if _, err := GenerateKeyPEM(1024); err == nil {
		t.Fatal("expected 1024-bit key to be rejected")
	}
	if _, err := parsePublicKey(nil); err == nil {
		t.Fatal("expected empty public key to be rejected")
	}
}
