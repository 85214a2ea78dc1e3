package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/COG-GTM/fireflies-agent/internal/constants"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	bindEnvVariables()
	setDefaults()

	// A config file is optional: the required settings are all bindable
	// from the environment.
	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func bindEnvVariables() {
	// Secrets come from the environment in every deployment; the yaml
	// file only carries non-sensitive settings.
	viper.BindEnv("slack.bot_token", "SLACK_BOT_TOKEN")
	viper.BindEnv("slack.target_channel", "TARGET_CHANNEL_NAME")
	viper.BindEnv("slack.signing_secret", "SLACK_SIGNING_SECRET")
	viper.BindEnv("fireflies.api_key", "FIREFLIES_API_KEY")
	viper.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("server.port", "SERVER_PORT")
}

func setDefaults() {
	viper.SetDefault("server.port", 8000)
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "15s")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("fireflies.api_url", constants.DefaultFirefliesAPIURL)
	viper.SetDefault("fireflies.timeout", constants.DefaultHTTPTimeout)
	viper.SetDefault("anthropic.api_url", constants.DefaultAnthropicAPIURL)
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	viper.SetDefault("anthropic.max_tokens", 1024)
	viper.SetDefault("anthropic.timeout", "60s")
	viper.SetDefault("pipeline.retry.max_attempts", 3)
	viper.SetDefault("pipeline.retry.initial_interval", "1s")
	viper.SetDefault("pipeline.retry.max_interval", "30s")
	viper.SetDefault("pipeline.retry.multiplier", 2.0)
	viper.SetDefault("pipeline.stage_timeout", constants.DefaultStageTimeout)
	viper.SetDefault("pipeline.extraction_mode", constants.ExtractionModeHeuristic)
	viper.SetDefault("dedup.backend", constants.DedupBackendMemory)
	viper.SetDefault("dedup.ttl", constants.DefaultDedupTTL)
	viper.SetDefault("dedup.max_records", constants.DefaultMaxDedupRecords)
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("rate_limit.enabled", true)
	viper.SetDefault("rate_limit.rps", 10.0)
	viper.SetDefault("rate_limit.burst", 20)
	viper.SetDefault("circuit_breaker.enabled", true)
	viper.SetDefault("circuit_breaker.max_requests", 3)
	viper.SetDefault("circuit_breaker.interval", "60s")
	viper.SetDefault("circuit_breaker.timeout", "60s")
	viper.SetDefault("circuit_breaker.failure_ratio", 0.5)
	viper.SetDefault("circuit_breaker.min_requests", 3)
}
