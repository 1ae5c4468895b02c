package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Queue       QueueConfig       `yaml:"queue"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	Email       EmailConfig       `yaml:"email"`
	Unsubscribe UnsubscribeConfig `yaml:"unsubscribe"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Providers   ProvidersConfig   `yaml:"providers"`
	AWS         AWSConfig         `yaml:"aws"`
	Media       MediaConfig       `yaml:"media"`
	Alerts      AlertsConfig      `yaml:"alerts"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Log         LogConfig         `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	PublicBaseURL  string   `yaml:"public_base_url"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	// Allow override via environment
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds Redis settings used by the queue and distributed locks
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// QueueConfig selects the task broker backend
type QueueConfig struct {
	Backend     string `yaml:"backend"` // "redis", "sqs" or "amqp"
	Name        string `yaml:"name"`
	SQSQueueURL string `yaml:"sqs_queue_url"`
	AMQPURL     string `yaml:"amqp_url"`
	Concurrency int    `yaml:"concurrency"`
}

// DispatchConfig holds single-message worker settings
type DispatchConfig struct {
	PerMinuteLimit    int `yaml:"per_minute_limit"`
	MaxRetries        int `yaml:"max_retries"`
	RetryDelaySeconds int `yaml:"retry_delay_seconds"`
	SendTimeoutSecs   int `yaml:"send_timeout_seconds"`
}

// RetryDelay returns the fixed retry delay as a duration
func (c DispatchConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// SendTimeout returns the provider call timeout as a duration
func (c DispatchConfig) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSecs) * time.Second
}

// EmailConfig holds batch email job settings
type EmailConfig struct {
	BatchSize         int    `yaml:"batch_size"`
	BatchDelayMillis  int    `yaml:"batch_delay_ms"`
	MaxRetries        int    `yaml:"max_retries"`
	RetryDelaySeconds int    `yaml:"retry_delay_seconds"`
	FromEmail         string `yaml:"from_email"`
	FromName          string `yaml:"from_name"`
	FooterText        string `yaml:"footer_text"`
	UnsubscribeMailto string `yaml:"unsubscribe_mailto"`
	SendGridBaseURL   string `yaml:"sendgrid_base_url"`
}

// BatchDelay returns the pause between batches as a duration
func (c EmailConfig) BatchDelay() time.Duration {
	return time.Duration(c.BatchDelayMillis) * time.Millisecond
}

// RetryDelay returns the job-level retry delay as a duration
func (c EmailConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// UnsubscribeConfig holds signed-token settings
type UnsubscribeConfig struct {
	Secret     string `yaml:"secret"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// MaxAge returns the token validity window
func (c UnsubscribeConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeDays) * 24 * time.Hour
}

// CredentialsConfig holds the integration secret keys
type CredentialsConfig struct {
	// FernetKeys are tried in order; the first one encrypts.
	FernetKeys         []string `yaml:"fernet_keys"`
	GoogleClientID     string   `yaml:"google_client_id"`
	GoogleClientSecret string   `yaml:"google_client_secret"`
	RefreshTimeoutSecs int      `yaml:"refresh_timeout_seconds"`
}

// RefreshTimeout returns the OAuth refresh timeout as a duration
func (c CredentialsConfig) RefreshTimeout() time.Duration {
	return time.Duration(c.RefreshTimeoutSecs) * time.Second
}

// ProvidersConfig holds provider endpoint overrides
type ProvidersConfig struct {
	TelegramAPIURL      string  `yaml:"telegram_api_url"`
	TelegramRatePerSec  float64 `yaml:"telegram_rate_per_sec"`
	InstagramGraphURL   string  `yaml:"instagram_graph_url"`
	InstagramRatePerSec float64 `yaml:"instagram_rate_per_sec"`
}

// AWSConfig holds shared AWS SDK settings
type AWSConfig struct {
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// MediaConfig holds media and attachment storage settings. An empty
// bucket stores files under LocalPath instead of S3.
type MediaConfig struct {
	Bucket         string `yaml:"bucket"`
	Prefix         string `yaml:"prefix"`
	LocalPath      string `yaml:"local_path"`
	PresignTTLMins int    `yaml:"presign_ttl_minutes"`
}

// PresignTTL returns the presigned URL lifetime
func (c MediaConfig) PresignTTL() time.Duration {
	return time.Duration(c.PresignTTLMins) * time.Minute
}

// AlertsConfig holds operator alert settings
type AlertsConfig struct {
	EmailTo   string `yaml:"email_to"`
	EmailFrom string `yaml:"email_from"`
}

// SchedulerConfig holds the due-message sweeper schedule
type SchedulerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Spec     string `yaml:"spec"`
	Timezone string `yaml:"timezone"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether PII redaction is enabled (default true).
func (c LogConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied, for binaries
// started without a config file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 50
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 10
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5
	}
	if cfg.Queue.Backend == "" {
		cfg.Queue.Backend = "redis"
	}
	if cfg.Queue.Name == "" {
		cfg.Queue.Name = "osaconnect:tasks"
	}
	if cfg.Queue.Concurrency == 0 {
		cfg.Queue.Concurrency = 4
	}
	if cfg.Dispatch.PerMinuteLimit == 0 {
		cfg.Dispatch.PerMinuteLimit = 60
	}
	if cfg.Dispatch.MaxRetries == 0 {
		cfg.Dispatch.MaxRetries = 3
	}
	if cfg.Dispatch.RetryDelaySeconds == 0 {
		cfg.Dispatch.RetryDelaySeconds = 15
	}
	if cfg.Dispatch.SendTimeoutSecs == 0 {
		cfg.Dispatch.SendTimeoutSecs = 10
	}
	if cfg.Email.BatchSize == 0 {
		cfg.Email.BatchSize = 100
	}
	if cfg.Email.BatchDelayMillis == 0 {
		cfg.Email.BatchDelayMillis = 1000
	}
	if cfg.Email.MaxRetries == 0 {
		cfg.Email.MaxRetries = 2
	}
	if cfg.Email.RetryDelaySeconds == 0 {
		cfg.Email.RetryDelaySeconds = 10
	}
	if cfg.Email.FooterText == "" {
		cfg.Email.FooterText = "You are receiving this email because you subscribed to our updates."
	}
	if cfg.Email.SendGridBaseURL == "" {
		cfg.Email.SendGridBaseURL = "https://api.sendgrid.com/v3"
	}
	if cfg.Unsubscribe.MaxAgeDays == 0 {
		cfg.Unsubscribe.MaxAgeDays = 7
	}
	if cfg.Credentials.RefreshTimeoutSecs == 0 {
		cfg.Credentials.RefreshTimeoutSecs = 15
	}
	if cfg.Providers.TelegramRatePerSec == 0 {
		cfg.Providers.TelegramRatePerSec = 25
	}
	if cfg.Providers.InstagramGraphURL == "" {
		cfg.Providers.InstagramGraphURL = "https://graph.facebook.com/v19.0"
	}
	if cfg.Providers.InstagramRatePerSec == 0 {
		cfg.Providers.InstagramRatePerSec = 10
	}
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = "us-west-2"
	}
	if cfg.Media.PresignTTLMins == 0 {
		cfg.Media.PresignTTLMins = 60
	}
	if cfg.Media.LocalPath == "" {
		cfg.Media.LocalPath = "./data/media"
	}
	if cfg.Scheduler.Spec == "" {
		cfg.Scheduler.Spec = "@every 30s"
	}
	if cfg.Scheduler.Timezone == "" {
		cfg.Scheduler.Timezone = "UTC"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
// A missing config file falls back to defaults.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		cfg = Default()
	}

	// Override with environment variables if present
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PUBLIC_BASE_URL"); v != "" {
		cfg.Server.PublicBaseURL = v
	}
	// Database override (critical for ECS deployment where config.yaml has local defaults)
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("QUEUE_BACKEND"); v != "" {
		cfg.Queue.Backend = v
	}
	if v := os.Getenv("SQS_QUEUE_URL"); v != "" {
		cfg.Queue.SQSQueueURL = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.Queue.AMQPURL = v
	}
	if v := os.Getenv("OUTBOUND_PER_MINUTE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Dispatch.PerMinuteLimit = n
		}
	}
	if v := os.Getenv("UNSUBSCRIBE_SECRET"); v != "" {
		cfg.Unsubscribe.Secret = v
	}
	if v := os.Getenv("UNSUBSCRIBE_MAILTO"); v != "" {
		cfg.Email.UnsubscribeMailto = v
	}
	if v := os.Getenv("EMAIL_FOOTER_TEXT"); v != "" {
		cfg.Email.FooterText = v
	}
	if v := os.Getenv("FERNET_KEY"); v != "" {
		cfg.Credentials.FernetKeys = append([]string{v}, cfg.Credentials.FernetKeys...)
	}
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		cfg.Credentials.GoogleClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		cfg.Credentials.GoogleClientSecret = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.AWS.Region = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		cfg.AWS.AccessKey = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		cfg.AWS.SecretKey = v
	}
	if v := os.Getenv("MEDIA_BUCKET"); v != "" {
		cfg.Media.Bucket = v
	}
	if v := os.Getenv("ALERTS_EMAIL_TO"); v != "" {
		cfg.Alerts.EmailTo = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	return cfg, nil
}
