package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/harun/fablebot/pkg/speech"
)

var telegramTokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format.
// Keys for a custom base URL (a proxy) are only checked for presence.
func (v *Validator) ValidateAPIKey(key, provider, baseURL string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}
	if baseURL != "" {
		return nil
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateTelegramToken validates a Telegram bot token
func (v *Validator) ValidateTelegramToken(token string) error {
	if token == "" {
		return fmt.Errorf("telegram bot token cannot be empty")
	}

	// <bot_id>:<secret>
	if !telegramTokenPattern.MatchString(token) {
		return fmt.Errorf("invalid Telegram bot token format")
	}

	return nil
}

// ValidateProvider validates a generation backend name
func (v *Validator) ValidateProvider(provider string) error {
	return oneOf("AI provider", provider, "openai", "anthropic")
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	return oneOf("log level", level, "debug", "info", "warn", "error")
}

// ValidateStorageDriver validates the session storage driver
func (v *Validator) ValidateStorageDriver(driver string) error {
	if driver == "" {
		return nil
	}
	return oneOf("storage driver", driver, "jsonl", "sqlite")
}

// ValidateVoice validates a text-to-speech voice name
func (v *Validator) ValidateVoice(voice string) error {
	if voice == "" {
		return nil
	}
	return oneOf("voice", voice, speech.OpenAIVoices...)
}

// ValidateSchedule validates a cron expression or descriptor such as "@every 30m".
// Empty disables the job.
func (v *Validator) ValidateSchedule(spec string) error {
	if spec == "" {
		return nil
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if cfg.Telegram.BotToken != "" {
		if err := v.ValidateTelegramToken(cfg.Telegram.BotToken); err != nil {
			errors = append(errors, err)
		}
	}
	if cfg.Telegram.MaxVoiceMB < 0 {
		errors = append(errors, fmt.Errorf("telegram max_voice_mb must be >= 0"))
	}

	provider := cfg.AI.Provider
	if provider == "" {
		provider = "openai"
	}
	if err := v.ValidateProvider(provider); err != nil {
		errors = append(errors, err)
	} else if cfg.AI.APIKey != "" {
		if err := v.ValidateAPIKey(cfg.AI.APIKey, provider, cfg.AI.BaseURL); err != nil {
			errors = append(errors, err)
		}
	}
	if cfg.AI.Temperature < 0 || cfg.AI.Temperature > 2 {
		errors = append(errors, fmt.Errorf("ai temperature must be between 0 and 2, got %f", cfg.AI.Temperature))
	}
	if cfg.AI.MaxTokens < 0 {
		errors = append(errors, fmt.Errorf("ai max_tokens must be >= 0"))
	}

	for _, voice := range []string{cfg.Speech.NarratorVoice, cfg.Speech.DefaultVoice} {
		if err := v.ValidateVoice(voice); err != nil {
			errors = append(errors, err)
		}
	}

	if cfg.Reply.MaxParallel < 0 {
		errors = append(errors, fmt.Errorf("reply max_parallel must be >= 0"))
	}
	if cfg.Game.MaxDepth < 0 {
		errors = append(errors, fmt.Errorf("game max_depth must be >= 0"))
	}

	for _, pattern := range cfg.Moderation.BlockedPatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			errors = append(errors, fmt.Errorf("invalid moderation pattern %q: %w", pattern, err))
		}
	}

	if err := v.ValidateStorageDriver(cfg.Storage.Driver); err != nil {
		errors = append(errors, err)
	}

	for _, spec := range []string{cfg.Housekeeping.SweepSchedule, cfg.Housekeeping.ExpirySchedule} {
		if err := v.ValidateSchedule(spec); err != nil {
			errors = append(errors, err)
		}
	}

	if r := cfg.Observability.TraceSampleRatio; r < 0 || r > 1 {
		errors = append(errors, fmt.Errorf("observability trace_sample_ratio must be between 0 and 1, got %g", r))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}

func oneOf(what, value string, valid ...string) error {
	for _, candidate := range valid {
		if value == candidate {
			return nil
		}
	}
	return fmt.Errorf("invalid %s: %s (must be one of: %s)", what, value, strings.Join(valid, ", "))
}
