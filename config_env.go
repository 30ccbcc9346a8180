package shopauth

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// EnvPrefix is the prefix of every recognized environment variable.
const EnvPrefix = "SHOPAUTH_"

const configFileKey = EnvPrefix + "CONFIG_FILE"

type setter func(cfg *Config, value string) error

var envSetters = map[string]setter{
	"ACCESS_TOKEN_TTL":          durationField(func(c *Config) *time.Duration { return &c.JWT.AccessTTL }),
	"REFRESH_TOKEN_TTL":         durationField(func(c *Config) *time.Duration { return &c.Session.RefreshTTL }),
	"LOGIN_MAX_ATTEMPTS":        intField(func(c *Config) *int { return &c.RateLimit.Login.MaxAttempts }),
	"LOGIN_WINDOW":              durationField(func(c *Config) *time.Duration { return &c.RateLimit.Login.Window }),
	"REGISTER_MAX_ATTEMPTS":     intField(func(c *Config) *int { return &c.RateLimit.Register.MaxAttempts }),
	"REGISTER_WINDOW":           durationField(func(c *Config) *time.Duration { return &c.RateLimit.Register.Window }),
	"REFRESH_MAX_ATTEMPTS":      intField(func(c *Config) *int { return &c.RateLimit.Refresh.MaxAttempts }),
	"REFRESH_WINDOW":            durationField(func(c *Config) *time.Duration { return &c.RateLimit.Refresh.Window }),
	"FORGOT_MAX_ATTEMPTS":       intField(func(c *Config) *int { return &c.RateLimit.Forgot.MaxAttempts }),
	"FORGOT_WINDOW":             durationField(func(c *Config) *time.Duration { return &c.RateLimit.Forgot.Window }),
	"RESET_MAX_ATTEMPTS":        intField(func(c *Config) *int { return &c.RateLimit.Reset.MaxAttempts }),
	"RESET_WINDOW":              durationField(func(c *Config) *time.Duration { return &c.RateLimit.Reset.Window }),
	"ACCOUNT_LOCK_THRESHOLD":    intField(func(c *Config) *int { return &c.Lockout.Threshold }),
	"ACCOUNT_LOCK_DURATION":     durationField(func(c *Config) *time.Duration { return &c.Lockout.Duration }),
	"PASSWORD_MIN_LENGTH":       intField(func(c *Config) *int { return &c.Password.MinLength }),
	"PASSWORD_UPGRADE_ON_LOGIN": boolField(func(c *Config) *bool { return &c.Password.UpgradeOnLogin }),
	"JWT_ISSUER":                stringField(func(c *Config) *string { return &c.JWT.Issuer }),
	"JWT_AUDIENCE":              stringField(func(c *Config) *string { return &c.JWT.Audience }),
	"JWT_KEY_ID":                stringField(func(c *Config) *string { return &c.JWT.KeyID }),
	"JWT_PRIVATE_KEY_FILE":      stringField(func(c *Config) *string { return &c.JWT.PrivateKeyFile }),
	"JWT_LEEWAY":                durationField(func(c *Config) *time.Duration { return &c.JWT.Leeway }),
	"RESET_TOKEN_TTL":           durationField(func(c *Config) *time.Duration { return &c.PasswordReset.TokenTTL }),
	"DEVICE_TRACKING":           boolField(func(c *Config) *bool { return &c.Device.Enabled }),
	"DEVICE_HISTORY_SIZE":       intField(func(c *Config) *int { return &c.Device.HistorySize }),
	"STORE_TIMEOUT":             durationField(func(c *Config) *time.Duration { return &c.Store.Timeout }),
	"STORE_RETRY_BACKOFF":       durationField(func(c *Config) *time.Duration { return &c.Store.RetryBackoff }),
	"COOKIE_SECURE":             boolField(func(c *Config) *bool { return &c.Cookie.Secure }),
	"CSRF_EXEMPT_PATHS":         listField(func(c *Config) *[]string { return &c.CSRF.ExemptPaths }),
	"AUDIT_ENABLED":             boolField(func(c *Config) *bool { return &c.Audit.Enabled }),
	"METRICS_ENABLED":           boolField(func(c *Config) *bool { return &c.Metrics.Enabled }),
	"HTTP_ADDR":                 stringField(func(c *Config) *string { return &c.Server.HTTPAddr }),
	"REDIS_ADDR":                stringField(func(c *Config) *string { return &c.Server.RedisAddr }),
	"DATABASE_DIALECT":          stringField(func(c *Config) *string { return &c.Server.DatabaseDialect }),
	"DATABASE_DSN":              stringField(func(c *Config) *string { return &c.Server.DatabaseDSN }),
	"SENTRY_DSN":                stringField(func(c *Config) *string { return &c.Server.SentryDSN }),
	"ENVIRONMENT":               stringField(func(c *Config) *string { return &c.Server.Environment }),
	"ASYNC_RESET_MAIL":          boolField(func(c *Config) *bool { return &c.Server.AsyncResetMail }),
}

// LoadConfig builds a Config from defaults, then the optional TOML file named
// by SHOPAUTH_CONFIG_FILE, then SHOPAUTH_* environment variables. envFiles are
// loaded with godotenv first; missing files are skipped. Unknown SHOPAUTH_*
// variables, unknown file keys, and unparsable values are errors. The result
// is not validated; Build does that.
func LoadConfig(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return ConfigFromEnv(os.Environ())
}

// ConfigFromEnv is LoadConfig over an explicit KEY=VALUE list.
func ConfigFromEnv(environ []string) (Config, error) {
	env := make(map[string]string)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		env[key] = value
	}

	cfg := DefaultConfig()

	if path := strings.TrimSpace(env[configFileKey]); path != "" {
		if err := applyConfigFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	delete(env, configFileKey)

	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		set, ok := envSetters[strings.TrimPrefix(key, EnvPrefix)]
		if !ok {
			return Config{}, fmt.Errorf("unknown configuration variable %s", key)
		}
		if err := set(&cfg, strings.TrimSpace(env[key])); err != nil {
			return Config{}, fmt.Errorf("%s: %w", key, err)
		}
	}

	if len(cfg.JWT.PrivateKeyPEM) == 0 && cfg.JWT.PrivateKeyFile != "" {
		pem, err := os.ReadFile(cfg.JWT.PrivateKeyFile)
		if err != nil {
			return Config{}, fmt.Errorf("read JWT private key: %w", err)
		}
		cfg.JWT.PrivateKeyPEM = pem
	}

	return cfg, nil
}

// applyConfigFile reads a flat TOML document whose keys are the environment
// names without prefix, in lower case (access_token_ttl = "15m").
func applyConfigFile(cfg *Config, path string) error {
	raw := make(map[string]interface{})
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return fmt.Errorf("decode config file %s: %w", path, err)
	}

	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		name := strings.ToUpper(key)
		set, ok := envSetters[name]
		if !ok {
			return fmt.Errorf("config file %s: unknown key %q", path, key)
		}
		value, err := tomlScalar(raw[key])
		if err != nil {
			return fmt.Errorf("config file %s: %s: %w", path, key, err)
		}
		if err := set(cfg, value); err != nil {
			return fmt.Errorf("config file %s: %s: %w", path, key, err)
		}
	}
	return nil
}

func tomlScalar(v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case bool:
		return strconv.FormatBool(t), nil
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return "", errors.New("lists must contain strings")
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

func stringField(field func(*Config) *string) setter {
	return func(cfg *Config, value string) error {
		*field(cfg) = value
		return nil
	}
}

func intField(field func(*Config) *int) setter {
	return func(cfg *Config, value string) error {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer %q", value)
		}
		*field(cfg) = n
		return nil
	}
}

func boolField(field func(*Config) *bool) setter {
	return func(cfg *Config, value string) error {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", value)
		}
		*field(cfg) = b
		return nil
	}
}

func durationField(field func(*Config) *time.Duration) setter {
	return func(cfg *Config, value string) error {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q", value)
		}
		*field(cfg) = d
		return nil
	}
}

func listField(field func(*Config) *[]string) setter {
	return func(cfg *Config, value string) error {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*field(cfg) = out
		return nil
	}
}
