package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges the environment overlay
// (config.<env>.yaml) and environment variables, and validates the result.
func Load() (*Config, error) {
	// Best effort; system environment wins when no .env is present.
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = viper.MergeInConfig() // overlay is optional

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "loanflow-orchestrator"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}
	if cfg.Orchestrator.SLATimeout == 0 {
		cfg.Orchestrator.SLATimeout = 180_000
	}
	if cfg.Orchestrator.StageTimeout == 0 {
		cfg.Orchestrator.StageTimeout = 45_000
	}
	if cfg.Orchestrator.StageRetryDelay == 0 {
		cfg.Orchestrator.StageRetryDelay = 500
	}
	if cfg.Orchestrator.MaxConcurrent == 0 {
		cfg.Orchestrator.MaxConcurrent = 64
	}
	if cfg.Orchestrator.FastTrackMinConfidence == 0 {
		cfg.Orchestrator.FastTrackMinConfidence = 0.85
	}
	if cfg.Orchestrator.RiskMinConfidence == 0 {
		cfg.Orchestrator.RiskMinConfidence = 0.5
	}
	if cfg.Reasoning.Timeout == 0 {
		cfg.Reasoning.Timeout = 30_000
	}
	if cfg.Reasoning.MaxRetries == 0 {
		cfg.Reasoning.MaxRetries = 2
	}
	if cfg.Reasoning.MaxTokens == 0 {
		cfg.Reasoning.MaxTokens = 1024
	}
	for name, tool := range cfg.Tools {
		if tool.Timeout == 0 {
			tool.Timeout = 20_000
		}
		if tool.RetryBackoff == 0 {
			tool.RetryBackoff = 250
		}
		if tool.MaxIdle == 0 {
			tool.MaxIdle = 4
		}
		cfg.Tools[name] = tool
	}
	if cfg.Audit.StreamTTL == 0 {
		cfg.Audit.StreamTTL = 7 * 24 * 3600
	}
	if cfg.Audit.MaskedPrefix == 0 {
		cfg.Audit.MaskedPrefix = 8
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.MetricsAddress == "" {
		cfg.Server.MetricsAddress = ":9090"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Reasoning.BaseURL == "" {
		return fmt.Errorf("reasoning.base_url is required")
	}
	if cfg.Orchestrator.StageTimeout >= cfg.Orchestrator.SLATimeout {
		return fmt.Errorf("orchestrator.stage_timeout must be shorter than orchestrator.sla_timeout")
	}
	for name, tool := range cfg.Tools {
		if tool.Endpoint == "" {
			return fmt.Errorf("tools.%s.endpoint is required", name)
		}
	}
	return nil
}
