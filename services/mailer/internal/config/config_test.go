package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsAndEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("MAILER_CONCURRENCY", "4")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_FROM", "no-reply@example.com")

	cfg, err := Load(writeConfig(t, "port: \"8083\"\nredisAddr: localhost:6379\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MailStream != "healthconnect:mail" {
		t.Fatalf("expected default stream, got %q", cfg.MailStream)
	}
	if cfg.Concurrency != 4 || cfg.SMTPHost != "smtp.example.com" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"missing port", "redisAddr: localhost:6379\n", "port is required"},
		{"missing redis", "port: \"8083\"\n", "redisAddr is required"},
		{"smtp without from", "port: \"8083\"\nredisAddr: r:6379\nsmtpHost: smtp.example.com\n", "smtpFrom is required"},
		{"bad retry delay", "port: \"8083\"\nredisAddr: r:6379\nretryDelay: soon\n", "invalid retryDelay"},
		{"negative concurrency", "port: \"8083\"\nredisAddr: r:6379\nconcurrency: -1\n", "concurrency must be"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			_, err := Load(writeConfig(t, tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
