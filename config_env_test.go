package shopauth

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigFromEnvDefaults(t *testing.T) {
	cfg, err := ConfigFromEnv([]string{"PATH=/usr/bin", "HOME=/root"})
	if err != nil {
		t.Fatalf("ConfigFromEnv error: %v", err)
	}
	if cfg.JWT.AccessTTL != 15*time.Minute {
		t.Fatalf("expected default access TTL, got %v", cfg.JWT.AccessTTL)
	}
	if cfg.RateLimit.Login.MaxAttempts != 5 {
		t.Fatalf("expected default login attempts, got %d", cfg.RateLimit.Login.MaxAttempts)
	}
}

func TestConfigFromEnvOverrides(t *testing.T) {
	cfg, err := ConfigFromEnv([]string{
		"SHOPAUTH_ACCESS_TOKEN_TTL=5m",
		"SHOPAUTH_LOGIN_MAX_ATTEMPTS=3",
		"SHOPAUTH_ACCOUNT_LOCK_DURATION=30m",
		"SHOPAUTH_COOKIE_SECURE=false",
		"SHOPAUTH_CSRF_EXEMPT_PATHS=/auth/login, /auth/register",
	})
	if err != nil {
		t.Fatalf("ConfigFromEnv error: %v", err)
	}
	if cfg.JWT.AccessTTL != 5*time.Minute {
		t.Fatalf("expected 5m access TTL, got %v", cfg.JWT.AccessTTL)
	}
	if cfg.RateLimit.Login.MaxAttempts != 3 {
		t.Fatalf("expected 3 login attempts, got %d", cfg.RateLimit.Login.MaxAttempts)
	}
	if cfg.Lockout.Duration != 30*time.Minute {
		t.Fatalf("expected 30m lockout, got %v", cfg.Lockout.Duration)
	}
	if cfg.Cookie.Secure {
		t.Fatal("expected insecure cookies")
	}
	if len(cfg.CSRF.ExemptPaths) != 2 || cfg.CSRF.ExemptPaths[1] != "/auth/register" {
		t.Fatalf("unexpected exempt paths: %v", cfg.CSRF.ExemptPaths)
	}
}

func TestConfigFromEnvRejectsUnknownVariable(t *testing.T) {
	_, err := ConfigFromEnv([]string{"SHOPAUTH_LOGIN_MAX_ATTEMPT=3"})
	if err == nil || !strings.Contains(err.Error(), "SHOPAUTH_LOGIN_MAX_ATTEMPT") {
		t.Fatalf("expected unknown variable error, got %v", err)
	}
}

func TestConfigFromEnvRejectsBadValues(t *testing.T) {
	cases := []string{
		"SHOPAUTH_LOGIN_MAX_ATTEMPTS=five",
		"SHOPAUTH_LOGIN_WINDOW=15",
		"SHOPAUTH_COOKIE_SECURE=maybe",
	}
	for _, kv := range cases {
		if _, err := ConfigFromEnv([]string{kv}); err == nil {
			t.Fatalf("expected %s to be rejected", kv)
		}
	}
}

func TestConfigFileOverlayThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shopauth.toml")
	doc := `access_token_ttl = "10m"
login_max_attempts = 7
device_tracking = false
csrf_exempt_paths = ["/auth/login"]
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := ConfigFromEnv([]string{
		"SHOPAUTH_CONFIG_FILE=" + path,
		"SHOPAUTH_LOGIN_MAX_ATTEMPTS=9",
	})
	if err != nil {
		t.Fatalf("ConfigFromEnv error: %v", err)
	}
	if cfg.JWT.AccessTTL != 10*time.Minute {
		t.Fatalf("expected file access TTL, got %v", cfg.JWT.AccessTTL)
	}
	if cfg.RateLimit.Login.MaxAttempts != 9 {
		t.Fatalf("expected env to win over file, got %d", cfg.RateLimit.Login.MaxAttempts)
	}
	if cfg.Device.Enabled {
		t.Fatal("expected device tracking disabled by file")
	}
	if len(cfg.CSRF.ExemptPaths) != 1 {
		t.Fatalf("unexpected exempt paths: %v", cfg.CSRF.ExemptPaths)
	}
}

func TestConfigFileRejectsUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("acess_token_ttl = \"10m\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := ConfigFromEnv([]string{"SHOPAUTH_CONFIG_FILE=" + path}); err == nil {
		t.Fatal("expected unknown key error")
	}
}

func TestConfigFromEnvReadsPrivateKeyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.pem")
	if err := os.WriteFile(path, []byte("pem-bytes"), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	cfg, err := ConfigFromEnv([]string{"SHOPAUTH_JWT_PRIVATE_KEY_FILE=" + path})
	if err != nil {
		t.Fatalf("ConfigFromEnv error: %v", err)
	}
	if string(cfg.JWT.PrivateKeyPEM) != "pem-bytes" {
		t.Fatalf("expected key contents, got %q", cfg.JWT.PrivateKeyPEM)
	}
}

func TestLoadConfigIgnoresMissingEnvFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("expected missing env file to be ignored, got %v", err)
	}
}
