package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file, overridable with CONFIG_PATH.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                        string   `yaml:"port"`
	DatabaseURL                 string   `yaml:"databaseURL"`
	RedisAddr                   string   `yaml:"redisAddr"`
	RedisPassword               string   `yaml:"redisPassword"`
	LogLevel                    string   `yaml:"logLevel"`
	SessionTTL                  string   `yaml:"sessionTTL"`
	JWTPrivateKeyPath           string   `yaml:"jwtPrivateKeyPath"`
	JWTKeyID                    string   `yaml:"jwtKeyId"`
	JWTVerifyPublicKeys         string   `yaml:"jwtVerifyPublicKeys"`
	JWTIssuer                   string   `yaml:"jwtIssuer"`
	JWTAudience                 string   `yaml:"jwtAudience"`
	JWTLeeway                   string   `yaml:"jwtLeeway"`
	CORSOrigins                 []string `yaml:"corsOrigins"`
	TrustedProxies              []string `yaml:"trustedProxies"`
	MailStream                  string   `yaml:"mailStream"`
	ResetCodeTTL                string   `yaml:"resetCodeTTL"`
	SignupRateLimitPerMinute    int      `yaml:"signupRateLimitPerMinute"`
	LoginRateLimitPerMinute     int      `yaml:"loginRateLimitPerMinute"`
	ResetSendRateLimitPerHour   int      `yaml:"resetSendRateLimitPerHour"`
	ResetVerifyRateLimitPerHour int      `yaml:"resetVerifyRateLimitPerHour"`
}

// Load reads .env (if present), then config from path, then environment overrides.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	str := map[string]*string{
		"PORT":                   &cfg.Port,
		"DATABASE_URL":           &cfg.DatabaseURL,
		"REDIS_ADDR":             &cfg.RedisAddr,
		"REDIS_PASSWORD":         &cfg.RedisPassword,
		"LOG_LEVEL":              &cfg.LogLevel,
		"AUTH_SESSION_TTL":       &cfg.SessionTTL,
		"JWT_PRIVATE_KEY_PATH":   &cfg.JWTPrivateKeyPath,
		"JWT_KEY_ID":             &cfg.JWTKeyID,
		"JWT_VERIFY_PUBLIC_KEYS": &cfg.JWTVerifyPublicKeys,
		"JWT_ISSUER":             &cfg.JWTIssuer,
		"JWT_AUDIENCE":           &cfg.JWTAudience,
		"JWT_LEEWAY":             &cfg.JWTLeeway,
		"MAIL_STREAM":            &cfg.MailStream,
		"AUTH_RESET_CODE_TTL":    &cfg.ResetCodeTTL,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	ints := map[string]*int{
		"AUTH_SIGNUP_RATE_LIMIT_PER_MINUTE":     &cfg.SignupRateLimitPerMinute,
		"AUTH_LOGIN_RATE_LIMIT_PER_MINUTE":      &cfg.LoginRateLimitPerMinute,
		"AUTH_RESET_SEND_RATE_LIMIT_PER_HOUR":   &cfg.ResetSendRateLimitPerHour,
		"AUTH_RESET_VERIFY_RATE_LIMIT_PER_HOUR": &cfg.ResetVerifyRateLimitPerHour,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitList(v)
	}
	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = splitList(v)
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml)")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for sessions, rate limits and the mail queue")
	}
	if cfg.JWTPrivateKeyPath == "" {
		return errors.New("config: jwtPrivateKeyPath is required (set JWT_PRIVATE_KEY_PATH)")
	}
	if cfg.SignupRateLimitPerMinute < 0 || cfg.LoginRateLimitPerMinute < 0 ||
		cfg.ResetSendRateLimitPerHour < 0 || cfg.ResetVerifyRateLimitPerHour < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if _, err := ParseDuration("sessionTTL", cfg.SessionTTL); err != nil {
		return err
	}
	if _, err := ParseDuration("jwtLeeway", cfg.JWTLeeway); err != nil {
		return err
	}
	if _, err := ParseDuration("resetCodeTTL", cfg.ResetCodeTTL); err != nil {
		return err
	}
	if _, err := ParseVerifyPublicKeys(cfg.JWTVerifyPublicKeys); err != nil {
		return err
	}
	return nil
}

// ParseDuration parses an optional duration setting; empty means zero.
func ParseDuration(name, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s duration: %w", name, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("config: %s must not be negative", name)
	}
	return dur, nil
}

// ParseVerifyPublicKeys parses "kid=path,kid2=path2" into a map.
func ParseVerifyPublicKeys(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	out := make(map[string]string)
	for _, pair := range splitList(raw) {
		kid, path, ok := strings.Cut(pair, "=")
		kid = strings.TrimSpace(kid)
		path = strings.TrimSpace(path)
		if !ok || kid == "" || path == "" {
			return nil, fmt.Errorf("config: invalid jwtVerifyPublicKeys entry %q", pair)
		}
		out[kid] = path
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
