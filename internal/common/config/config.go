package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig                    `mapstructure:"app"`
	Orchestrator  OrchestratorConfig           `mapstructure:"orchestrator"`
	Reasoning     ReasoningConfig              `mapstructure:"reasoning"`
	Tools         map[string]ToolServiceConfig `mapstructure:"tools"`
	Database      DatabaseConfig               `mapstructure:"database"`
	Audit         AuditConfig                  `mapstructure:"audit"`
	Notifications NotificationConfig           `mapstructure:"notifications"`
	Server        ServerConfig                 `mapstructure:"server"`
	Logging       LoggingConfig                `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// OrchestratorConfig holds the workflow control knobs.
type OrchestratorConfig struct {
	SLATimeout             int     `mapstructure:"sla_timeout"`   // milliseconds, whole-workflow deadline
	StageTimeout           int     `mapstructure:"stage_timeout"` // milliseconds, per stage invocation
	StageRetryDelay        int     `mapstructure:"stage_retry_delay"` // milliseconds
	MaxConcurrent          int     `mapstructure:"max_concurrent"`
	FastTrackMinConfidence float64 `mapstructure:"fast_track_min_confidence"`
	RiskMinConfidence      float64 `mapstructure:"risk_min_confidence"`
}

func (o OrchestratorConfig) SLA() time.Duration {
	return time.Duration(o.SLATimeout) * time.Millisecond
}

func (o OrchestratorConfig) StageDeadline() time.Duration {
	return time.Duration(o.StageTimeout) * time.Millisecond
}

func (o OrchestratorConfig) RetryDelay() time.Duration {
	return time.Duration(o.StageRetryDelay) * time.Millisecond
}

// ReasoningConfig holds settings for the remote reasoning capability.
type ReasoningConfig struct {
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Timeout     int     `mapstructure:"timeout"` // milliseconds
	MaxRetries  int     `mapstructure:"max_retries"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// ToolServiceConfig holds settings for one external tool service.
type ToolServiceConfig struct {
	Endpoint     string `mapstructure:"endpoint"`
	Timeout      int    `mapstructure:"timeout"`       // milliseconds, per invocation
	RetryBackoff int    `mapstructure:"retry_backoff"` // milliseconds, fixed backoff before the single connect retry
	MaxIdle      int    `mapstructure:"max_idle"`      // pooled connections
}

func (t ToolServiceConfig) InvokeTimeout() time.Duration {
	return time.Duration(t.Timeout) * time.Millisecond
}

func (t ToolServiceConfig) Backoff() time.Duration {
	return time.Duration(t.RetryBackoff) * time.Millisecond
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ElasticsearchConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

// AuditConfig holds settings for the audit trail.
type AuditConfig struct {
	StreamTTL    int `mapstructure:"stream_ttl"`     // seconds, retention of per-application event lists
	MaskedPrefix int `mapstructure:"masked_prefix"`  // identifier characters kept before the redaction marker
}

// NotificationConfig holds settings for decision notifications.
type NotificationConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
		OpsEmail  string `mapstructure:"ops_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled   bool   `mapstructure:"enabled"`
		OpsNumber string `mapstructure:"ops_number"`
	} `mapstructure:"sms"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

type ServerConfig struct {
	Address        string `mapstructure:"address"`
	MetricsAddress string `mapstructure:"metrics_address"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
