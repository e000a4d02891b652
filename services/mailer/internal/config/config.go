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
	Port          string `yaml:"port"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	LogLevel      string `yaml:"logLevel"`
	MailStream    string `yaml:"mailStream"`
	MailGroup     string `yaml:"mailGroup"`
	Concurrency   int    `yaml:"concurrency"`
	MaxRetries    int    `yaml:"maxRetries"`
	RetryDelay    string `yaml:"retryDelay"`
	SendTimeout   string `yaml:"sendTimeout"`
	SMTPHost      string `yaml:"smtpHost"`
	SMTPPort      int    `yaml:"smtpPort"`
	SMTPUsername  string `yaml:"smtpUsername"`
	SMTPPassword  string `yaml:"smtpPassword"`
	SMTPFrom      string `yaml:"smtpFrom"`
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
	if cfg.MailStream == "" {
		cfg.MailStream = "healthconnect:mail"
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 2
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	str := map[string]*string{
		"PORT":                &cfg.Port,
		"REDIS_ADDR":          &cfg.RedisAddr,
		"REDIS_PASSWORD":      &cfg.RedisPassword,
		"LOG_LEVEL":           &cfg.LogLevel,
		"MAIL_STREAM":         &cfg.MailStream,
		"MAIL_GROUP":          &cfg.MailGroup,
		"MAILER_RETRY_DELAY":  &cfg.RetryDelay,
		"MAILER_SEND_TIMEOUT": &cfg.SendTimeout,
		"SMTP_HOST":           &cfg.SMTPHost,
		"SMTP_USERNAME":       &cfg.SMTPUsername,
		"SMTP_PASSWORD":       &cfg.SMTPPassword,
		"SMTP_FROM":           &cfg.SMTPFrom,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	ints := map[string]*int{
		"SMTP_PORT":          &cfg.SMTPPort,
		"MAILER_CONCURRENCY": &cfg.Concurrency,
		"MAILER_MAX_RETRIES": &cfg.MaxRetries,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for the mail queue")
	}
	if cfg.Concurrency < 1 {
		return errors.New("config: concurrency must be >= 1")
	}
	if cfg.MaxRetries < 0 {
		return errors.New("config: maxRetries must be >= 0")
	}
	if cfg.SMTPPort < 0 || cfg.SMTPPort > 65535 {
		return errors.New("config: smtpPort out of range")
	}
	if strings.TrimSpace(cfg.SMTPHost) != "" && strings.TrimSpace(cfg.SMTPFrom) == "" {
		return errors.New("config: smtpFrom is required when smtpHost is set")
	}
	if _, err := ParseDuration("retryDelay", cfg.RetryDelay); err != nil {
		return err
	}
	if _, err := ParseDuration("sendTimeout", cfg.SendTimeout); err != nil {
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
