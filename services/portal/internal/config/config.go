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
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file, overridable with CONFIG_PATH.
const ConfigPath = "config.yaml"

// DefaultReminderSchedule runs the refill reminder job every morning.
const DefaultReminderSchedule = "0 8 * * *"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port             string   `yaml:"port"`
	DatabaseURL      string   `yaml:"databaseURL"`
	RedisAddr        string   `yaml:"redisAddr"`
	RedisPassword    string   `yaml:"redisPassword"`
	LogLevel         string   `yaml:"logLevel"`
	AuthJWKSURL      string   `yaml:"authJwksUrl"`
	JWTIssuer        string   `yaml:"jwtIssuer"`
	JWTAudience      string   `yaml:"jwtAudience"`
	JWTLeeway        string   `yaml:"jwtLeeway"`
	CORSOrigins      []string `yaml:"corsOrigins"`
	MinioEndpoint    string   `yaml:"minioEndpoint"`
	MinioAccessKey   string   `yaml:"minioAccessKey"`
	MinioSecretKey   string   `yaml:"minioSecretKey"`
	MinioUseSSL      bool     `yaml:"minioUseSSL"`
	PresignTTL       string   `yaml:"presignTTL"`
	MaxDocumentBytes int64    `yaml:"maxDocumentBytes"`
	MaxImageBytes    int64    `yaml:"maxImageBytes"`
	AMQPURL          string   `yaml:"amqpURL"`
	AMQPExchange     string   `yaml:"amqpExchange"`
	MailStream       string   `yaml:"mailStream"`
	ReminderSchedule string   `yaml:"reminderSchedule"`
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
	if cfg.ReminderSchedule == "" {
		cfg.ReminderSchedule = DefaultReminderSchedule
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	str := map[string]*string{
		"PORT":                     &cfg.Port,
		"DATABASE_URL":             &cfg.DatabaseURL,
		"REDIS_ADDR":               &cfg.RedisAddr,
		"REDIS_PASSWORD":           &cfg.RedisPassword,
		"LOG_LEVEL":                &cfg.LogLevel,
		"AUTH_JWKS_URL":            &cfg.AuthJWKSURL,
		"JWT_ISSUER":               &cfg.JWTIssuer,
		"JWT_AUDIENCE":             &cfg.JWTAudience,
		"JWT_LEEWAY":               &cfg.JWTLeeway,
		"MINIO_ENDPOINT":           &cfg.MinioEndpoint,
		"MINIO_ACCESS_KEY":         &cfg.MinioAccessKey,
		"MINIO_SECRET_KEY":         &cfg.MinioSecretKey,
		"PORTAL_PRESIGN_TTL":       &cfg.PresignTTL,
		"AMQP_URL":                 &cfg.AMQPURL,
		"AMQP_EXCHANGE":            &cfg.AMQPExchange,
		"MAIL_STREAM":              &cfg.MailStream,
		"PORTAL_REMINDER_SCHEDULE": &cfg.ReminderSchedule,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	sizes := map[string]*int64{
		"PORTAL_MAX_DOCUMENT_BYTES": &cfg.MaxDocumentBytes,
		"PORTAL_MAX_IMAGE_BYTES":    &cfg.MaxImageBytes,
	}
	for key, dst := range sizes {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				*dst = n
			}
		}
	}
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.MinioUseSSL = b
		}
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitList(v)
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
		return errors.New("config: redisAddr is required for the mail queue")
	}
	if strings.TrimSpace(cfg.AuthJWKSURL) == "" {
		return errors.New("config: authJwksUrl is required to verify access tokens")
	}
	if strings.TrimSpace(cfg.MinioEndpoint) == "" {
		return errors.New("config: minioEndpoint is required for uploads")
	}
	if cfg.MaxDocumentBytes < 0 || cfg.MaxImageBytes < 0 {
		return errors.New("config: upload limits must be >= 0")
	}
	if _, err := ParseDuration("jwtLeeway", cfg.JWTLeeway); err != nil {
		return err
	}
	if _, err := ParseDuration("presignTTL", cfg.PresignTTL); err != nil {
		return err
	}
	if _, err := cron.ParseStandard(cfg.ReminderSchedule); err != nil {
		return fmt.Errorf("config: invalid reminderSchedule: %w", err)
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
