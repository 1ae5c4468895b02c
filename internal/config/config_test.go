package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090
  host: "0.0.0.0"
  public_base_url: "https://connect.example.com"

database:
  url: "postgres://localhost/osaconnect"

dispatch:
  per_minute_limit: 30
  max_retries: 5
  retry_delay_seconds: 20

email:
  batch_size: 50
  batch_delay_ms: 250
  from_email: "noreply@example.com"

unsubscribe:
  secret: "s3cret"
  max_age_days: 14

queue:
  backend: "sqs"
  sqs_queue_url: "https://sqs.us-west-2.amazonaws.com/1/tasks"

log:
  level: "debug"
  redact_pii: false
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "https://connect.example.com", cfg.Server.PublicBaseURL)
	assert.Equal(t, "postgres://localhost/osaconnect", cfg.Database.URL)

	assert.Equal(t, 30, cfg.Dispatch.PerMinuteLimit)
	assert.Equal(t, 5, cfg.Dispatch.MaxRetries)
	assert.Equal(t, 20*time.Second, cfg.Dispatch.RetryDelay())

	assert.Equal(t, 50, cfg.Email.BatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Email.BatchDelay())
	assert.Equal(t, "noreply@example.com", cfg.Email.FromEmail)

	assert.Equal(t, 14*24*time.Hour, cfg.Unsubscribe.MaxAge())
	assert.Equal(t, "sqs", cfg.Queue.Backend)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Log.Redact())
}

func TestLoadDefaults(t *testing.T) {
	// Create a minimal config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 8081
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	// Verify defaults are applied
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 60, cfg.Dispatch.PerMinuteLimit)
	assert.Equal(t, 3, cfg.Dispatch.MaxRetries)
	assert.Equal(t, 15*time.Second, cfg.Dispatch.RetryDelay())
	assert.Equal(t, 10*time.Second, cfg.Dispatch.SendTimeout())
	assert.Equal(t, 100, cfg.Email.BatchSize)
	assert.Equal(t, time.Second, cfg.Email.BatchDelay())
	assert.Equal(t, 2, cfg.Email.MaxRetries)
	assert.Equal(t, 10*time.Second, cfg.Email.RetryDelay())
	assert.Equal(t, 7*24*time.Hour, cfg.Unsubscribe.MaxAge())
	assert.Equal(t, 15*time.Second, cfg.Credentials.RefreshTimeout())
	assert.Equal(t, "redis", cfg.Queue.Backend)
	assert.True(t, cfg.Log.Redact())
}

func TestLoadFromEnv(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
database:
  url: "postgres://file/db"
dispatch:
  per_minute_limit: 10
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("OUTBOUND_PER_MINUTE_LIMIT", "60")
	t.Setenv("UNSUBSCRIBE_SECRET", "env-secret")
	t.Setenv("FERNET_KEY", "primary-key")

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	// Environment variables should override file values
	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
	assert.Equal(t, 60, cfg.Dispatch.PerMinuteLimit)
	assert.Equal(t, "env-secret", cfg.Unsubscribe.Secret)
	assert.Equal(t, []string{"primary-key"}, cfg.Credentials.FernetKeys)
}

func TestLoadFromEnvMissingFile(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/db")

	cfg, err := LoadFromEnv(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}
