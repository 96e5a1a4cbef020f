package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/traceline/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "traceline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, 993, cfg.IMAP.Port)
	assert.True(t, cfg.IMAP.TLS)
	assert.Equal(t, "INBOX", cfg.IMAP.Mailbox)
	assert.Equal(t, 60, cfg.Email.PollIntervalSeconds)
	assert.False(t, cfg.LLM.Enabled)
	assert.Equal(t, 60, cfg.Scheduler.SolveTimeoutSeconds)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
http:
  addr: ":9090"
email:
  poll_interval_seconds: 15
  recipient_allow:
    - "*@example.com"
`)

	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 15, cfg.Email.PollIntervalSeconds)
	assert.Equal(t, []string{"*@example.com"}, cfg.Email.RecipientAllow)
	// Untouched sections keep their defaults.
	assert.Equal(t, 993, cfg.IMAP.Port)
}

func TestLoadExpandsEnvReferences(t *testing.T) {
	t.Setenv("TEST_SMTP_SECRET", "hunter2")
	path := writeConfig(t, `
smtp:
  host: mail.example.com
  password: ${TEST_SMTP_SECRET}
`)

	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", cfg.SMTP.Password)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":7070")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("EMAIL_POLL_INTERVAL_SECONDS", "5")
	t.Setenv("LLM_ENABLED", "true")
	t.Setenv("LLM_STUDIO_URL", "http://llm:8000/v1")
	t.Setenv("LLM_MODEL_NAME", "llama3")
	path := writeConfig(t, `
http:
  addr: ":9090"
log:
  level: debug
`)

	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.HTTP.Addr)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 5, cfg.Email.PollIntervalSeconds)
	assert.True(t, cfg.LLM.Enabled)
	assert.Equal(t, "http://llm:8000/v1", cfg.LLM.URL)
	assert.Equal(t, "llama3", cfg.LLM.Model)
}

func TestValidateRejectsBadLevel(t *testing.T) {
	path := writeConfig(t, "log:\n  level: loud\n")
	_, err := config.LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
}

func TestValidateRejectsZeroPollInterval(t *testing.T) {
	path := writeConfig(t, "email:\n  poll_interval_seconds: 0\n")
	_, err := config.LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll_interval_seconds")
}

func TestValidateRequiresLLMURLWhenEnabled(t *testing.T) {
	path := writeConfig(t, "llm:\n  enabled: true\n  url: \"\"\n")
	_, err := config.LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.url")
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := config.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	lvl, err := config.ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)

	lvl, err = config.ParseLevel("Error")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelError, lvl)

	_, err = config.ParseLevel("loud")
	assert.Error(t, err)
}

func TestDurationHelpers(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Equal(t, "1m0s", cfg.Email.PollInterval().String())
	assert.Equal(t, "30s", cfg.LLM.Timeout().String())
	assert.Equal(t, "1m0s", cfg.Scheduler.SolveTimeout().String())
}
