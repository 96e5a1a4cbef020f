// Package config provides configuration loading and management for
// Traceline: YAML files with environment expansion, environment-variable
// overrides, validation, and a file watcher for log-level hot reload.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete Traceline configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
	Graph     GraphConfig     `yaml:"graph"`
	Signature SignatureConfig `yaml:"signature"`
	NATS      NATSConfig      `yaml:"nats"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	IMAP      IMAPConfig      `yaml:"imap"`
	Email     EmailConfig     `yaml:"email"`
	LLM       LLMConfig       `yaml:"llm"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Auth      AuthConfig      `yaml:"auth"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
}

// HTTPConfig configures the REST listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// GraphConfig configures the property-graph backend. An empty URL selects
// the in-memory executor.
type GraphConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// SignatureConfig configures the relational signature and audit store. An
// empty URL selects in-memory stores.
type SignatureConfig struct {
	DBURL string `yaml:"db_url"`
}

// NATSConfig configures the optional NATS connection for audit publishing
// and the email thread store.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// SMTPConfig configures outbound mail submission.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	// TLS selects implicit TLS; false means STARTTLS.
	TLS bool `yaml:"tls"`
}

// IMAPConfig configures the inbound poller's mailbox.
type IMAPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	TLS      bool   `yaml:"tls"`
	Mailbox  string `yaml:"mailbox"`
}

// EmailConfig configures addressing and the poll cadence.
type EmailConfig struct {
	From                string `yaml:"from"`
	ReplyTo             string `yaml:"reply_to"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	// RecipientAllow holds glob patterns; empty allows every address.
	RecipientAllow []string `yaml:"recipient_allow"`
}

// PollInterval returns the poll cadence as a duration.
func (e EmailConfig) PollInterval() time.Duration {
	return time.Duration(e.PollIntervalSeconds) * time.Second
}

// LLMConfig configures the reply-extraction fallback.
type LLMConfig struct {
	Enabled bool `yaml:"enabled"`
	// Provider selects the request adapter: ollama, openai, or anthropic.
	Provider       string `yaml:"provider"`
	URL            string `yaml:"url"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the LLM call bound as a duration.
func (l LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// SchedulerConfig bounds the solver.
type SchedulerConfig struct {
	SolveTimeoutSeconds int `yaml:"solve_timeout_seconds"`
}

// SolveTimeout returns the solver bound as a duration.
func (s SchedulerConfig) SolveTimeout() time.Duration {
	return time.Duration(s.SolveTimeoutSeconds) * time.Second
}

// AuthConfig holds the token-signing secret.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// DefaultConfig returns a Config with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Log:  LogConfig{Level: "info"},
		HTTP: HTTPConfig{Addr: ":8080"},
		SMTP: SMTPConfig{Port: 587},
		IMAP: IMAPConfig{Port: 993, TLS: true, Mailbox: "INBOX"},
		Email: EmailConfig{
			PollIntervalSeconds: 60,
		},
		LLM: LLMConfig{
			Provider:       "ollama",
			URL:            "http://localhost:11434/v1",
			Model:          "qwen2.5:14b",
			TimeoutSeconds: 30,
		},
		Scheduler: SchedulerConfig{SolveTimeoutSeconds: 60},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn, or error")
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.Email.PollIntervalSeconds < 1 {
		return fmt.Errorf("email.poll_interval_seconds must be at least 1")
	}
	if c.LLM.Enabled {
		switch c.LLM.Provider {
		case "ollama", "openai", "anthropic":
		default:
			return fmt.Errorf("llm.provider must be ollama, openai, or anthropic")
		}
		if c.LLM.URL == "" {
			return fmt.Errorf("llm.url is required when llm.enabled is set")
		}
		if c.LLM.Model == "" {
			return fmt.Errorf("llm.model is required when llm.enabled is set")
		}
	}
	if c.Scheduler.SolveTimeoutSeconds < 1 {
		return fmt.Errorf("scheduler.solve_timeout_seconds must be at least 1")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file. ${VAR} references
// are expanded from the environment before parsing, and explicit
// environment overrides are applied afterwards.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.Expand(string(data), os.Getenv)

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Load builds the configuration from defaults and environment variables
// only, for deployments without a config file.
func Load() (*Config, error) {
	config := DefaultConfig()
	config.applyEnv()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnv overrides fields from well-known environment variables. The
// environment wins over file values.
func (c *Config) applyEnv() {
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.HTTP.Addr, "HTTP_ADDR")
	setString(&c.Graph.URL, "GRAPH_DB_URL")
	setString(&c.Graph.Username, "GRAPH_DB_USER")
	setString(&c.Graph.Password, "GRAPH_DB_PASSWORD")
	setString(&c.Signature.DBURL, "SIGNATURE_DB_URL")
	setString(&c.NATS.URL, "NATS_URL")

	setString(&c.SMTP.Host, "SMTP_HOST")
	setInt(&c.SMTP.Port, "SMTP_PORT")
	setString(&c.SMTP.User, "SMTP_USER")
	setString(&c.SMTP.Password, "SMTP_PASSWORD")
	setBool(&c.SMTP.TLS, "SMTP_TLS")

	setString(&c.IMAP.Host, "IMAP_HOST")
	setInt(&c.IMAP.Port, "IMAP_PORT")
	setString(&c.IMAP.User, "IMAP_USER")
	setString(&c.IMAP.Password, "IMAP_PASSWORD")
	setBool(&c.IMAP.TLS, "IMAP_TLS")
	setString(&c.IMAP.Mailbox, "IMAP_MAILBOX")

	setString(&c.Email.From, "EMAIL_FROM")
	setString(&c.Email.ReplyTo, "EMAIL_REPLY_TO")
	setInt(&c.Email.PollIntervalSeconds, "EMAIL_POLL_INTERVAL_SECONDS")

	setBool(&c.LLM.Enabled, "LLM_ENABLED")
	setString(&c.LLM.Provider, "LLM_PROVIDER")
	setString(&c.LLM.URL, "LLM_STUDIO_URL")
	setString(&c.LLM.Model, "LLM_MODEL_NAME")

	setString(&c.Auth.JWTSecret, "JWT_SECRET")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
