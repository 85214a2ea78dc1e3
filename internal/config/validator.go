package config

import (
	"fmt"

	"github.com/COG-GTM/fireflies-agent/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateSlack(cfg.Slack); err != nil {
		errors = append(errors, err)
	}

	if err := validateFireflies(cfg.Fireflies); err != nil {
		errors = append(errors, err)
	}

	if err := validateAnthropic(cfg.Anthropic); err != nil {
		errors = append(errors, err)
	}

	if err := validatePipeline(cfg.Pipeline); err != nil {
		errors = append(errors, err)
	}

	if err := validateDedup(cfg.Dedup, cfg.Redis); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}
	return nil
}

func validateSlack(cfg SlackConfig) error {
	if cfg.BotToken == "" {
		return &ValidationError{
			Field:   "slack.bot_token",
			Message: "bot token is required (SLACK_BOT_TOKEN)",
		}
	}
	if cfg.TargetChannel == "" {
		return &ValidationError{
			Field:   "slack.target_channel",
			Message: "target channel name is required",
		}
	}
	return nil
}

func validateFireflies(cfg FirefliesConfig) error {
	if cfg.APIKey == "" {
		return &ValidationError{
			Field:   "fireflies.api_key",
			Message: "api key is required (FIREFLIES_API_KEY)",
		}
	}
	if cfg.Timeout <= 0 {
		return &ValidationError{
			Field:   "fireflies.timeout",
			Message: "timeout must be positive",
		}
	}
	return nil
}

func validateAnthropic(cfg AnthropicConfig) error {
	if cfg.APIKey == "" {
		return &ValidationError{
			Field:   "anthropic.api_key",
			Message: "api key is required (ANTHROPIC_API_KEY)",
		}
	}
	if cfg.MaxTokens <= 0 {
		return &ValidationError{
			Field:   "anthropic.max_tokens",
			Message: "max_tokens must be positive",
		}
	}
	return nil
}

func validatePipeline(cfg PipelineConfig) error {
	if cfg.Retry.MaxAttempts < 1 {
		return &ValidationError{
			Field:   "pipeline.retry.max_attempts",
			Message: "at least one attempt is required",
		}
	}
	if cfg.Retry.Multiplier < 1.0 {
		return &ValidationError{
			Field:   "pipeline.retry.multiplier",
			Message: "multiplier must be >= 1.0",
		}
	}
	if cfg.StageTimeout <= 0 {
		return &ValidationError{
			Field:   "pipeline.stage_timeout",
			Message: "stage timeout must be positive",
		}
	}

	switch cfg.ExtractionMode {
	case constants.ExtractionModeHeuristic, constants.ExtractionModeModel:
	default:
		return &ValidationError{
			Field:   "pipeline.extraction_mode",
			Message: fmt.Sprintf("must be %q or %q, got %q", constants.ExtractionModeHeuristic, constants.ExtractionModeModel, cfg.ExtractionMode),
		}
	}
	return nil
}

func validateDedup(cfg DedupConfig, redis RedisConfig) error {
	switch cfg.Backend {
	case constants.DedupBackendMemory:
	case constants.DedupBackendRedis:
		if redis.Host == "" {
			return &ValidationError{
				Field:   "redis.host",
				Message: "redis host is required when dedup.backend is redis",
			}
		}
	default:
		return &ValidationError{
			Field:   "dedup.backend",
			Message: fmt.Sprintf("must be %q or %q, got %q", constants.DedupBackendMemory, constants.DedupBackendRedis, cfg.Backend),
		}
	}

	if cfg.TTL <= 0 {
		return &ValidationError{
			Field:   "dedup.ttl",
			Message: "dedup window must be positive",
		}
	}
	return nil
}
