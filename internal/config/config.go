package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the main fablebot configuration
type Config struct {
	// Telegram
	Telegram TelegramConfig `json:"telegram" mapstructure:"telegram"`

	// Generation backend
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Speech backends
	Speech SpeechConfig `json:"speech" mapstructure:"speech"`

	// Reply delivery
	Reply ReplyConfig `json:"reply" mapstructure:"reply"`

	// Game loop
	Game GameConfig `json:"game" mapstructure:"game"`

	// Session storage
	Storage StorageConfig `json:"storage" mapstructure:"storage"`

	// Game-master prompt
	Prompt PromptConfig `json:"prompt" mapstructure:"prompt"`

	// Player input screening
	Moderation ModerationConfig `json:"moderation" mapstructure:"moderation"`

	// Scheduled maintenance
	Housekeeping HousekeepingConfig `json:"housekeeping" mapstructure:"housekeeping"`

	// Metrics, tracing and audit
	Observability ObservabilityConfig `json:"observability" mapstructure:"observability"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	BotToken string `json:"bot_token" mapstructure:"bot_token"`
	// Allowlist restricts the bot to these chat ids; empty allows every chat
	Allowlist   []int64 `json:"allowlist" mapstructure:"allowlist"`
	PollTimeout int     `json:"poll_timeout" mapstructure:"poll_timeout"` // seconds
	MaxVoiceMB  int     `json:"max_voice_mb" mapstructure:"max_voice_mb"`
}

// AIConfig holds generation backend configuration
type AIConfig struct {
	Provider    string  `json:"provider" mapstructure:"provider"` // openai, anthropic
	APIKey      string  `json:"api_key" mapstructure:"api_key"`
	BaseURL     string  `json:"base_url" mapstructure:"base_url"`
	Model       string  `json:"model" mapstructure:"model"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
}

// SpeechConfig holds speech-to-text and text-to-speech configuration.
// Empty credentials fall back to the AI section.
type SpeechConfig struct {
	APIKey          string `json:"api_key" mapstructure:"api_key"`
	BaseURL         string `json:"base_url" mapstructure:"base_url"`
	TranscribeModel string `json:"transcribe_model" mapstructure:"transcribe_model"`
	SpeechModel     string `json:"speech_model" mapstructure:"speech_model"`
	NarratorVoice   string `json:"narrator_voice" mapstructure:"narrator_voice"`
	DefaultVoice    string `json:"default_voice" mapstructure:"default_voice"`
}

// ReplyConfig holds reply delivery configuration
type ReplyConfig struct {
	TempDir      string        `json:"temp_dir" mapstructure:"temp_dir"`
	TextEnabled  bool          `json:"text_enabled" mapstructure:"text_enabled"`
	VoiceEnabled bool          `json:"voice_enabled" mapstructure:"voice_enabled"`
	MaxParallel  int           `json:"max_parallel" mapstructure:"max_parallel"`
	OrphanMaxAge time.Duration `json:"orphan_max_age" mapstructure:"orphan_max_age"`
}

// GameConfig holds game loop configuration
type GameConfig struct {
	MaxDepth        int    `json:"max_depth" mapstructure:"max_depth"`
	FallbackMessage string `json:"fallback_message" mapstructure:"fallback_message"`
	// DiceSeed makes rolls reproducible when non-zero
	DiceSeed uint64 `json:"dice_seed" mapstructure:"dice_seed"`
}

// StorageConfig holds session storage configuration
type StorageConfig struct {
	Driver string `json:"driver" mapstructure:"driver"` // jsonl, sqlite
	Dir    string `json:"dir" mapstructure:"dir"`
	Path   string `json:"path" mapstructure:"path"`
	// Retention deletes sessions idle for longer; 0 keeps them forever
	Retention time.Duration `json:"retention" mapstructure:"retention"`
}

// PromptConfig holds game-master prompt configuration
type PromptConfig struct {
	// File overrides the embedded prompt
	File  string `json:"file" mapstructure:"file"`
	Watch bool   `json:"watch" mapstructure:"watch"`
}

// ModerationConfig holds player input filtering configuration
type ModerationConfig struct {
	Enabled         bool     `json:"enabled" mapstructure:"enabled"`
	BlockedKeywords []string `json:"blocked_keywords" mapstructure:"blocked_keywords"`
	BlockedPatterns []string `json:"blocked_patterns" mapstructure:"blocked_patterns"`
	// Notice is sent instead of playing a blocked message
	Notice string `json:"notice" mapstructure:"notice"`
}

// HousekeepingConfig holds cron schedules for maintenance jobs
type HousekeepingConfig struct {
	SweepSchedule  string `json:"sweep_schedule" mapstructure:"sweep_schedule"`
	ExpirySchedule string `json:"expiry_schedule" mapstructure:"expiry_schedule"`
}

// ObservabilityConfig holds metrics, tracing and game journal configuration
type ObservabilityConfig struct {
	MetricsAddr string `json:"metrics_addr" mapstructure:"metrics_addr"`
	Tracing     bool   `json:"tracing" mapstructure:"tracing"`
	// TraceSampleRatio is the share of turns traced when tracing is on
	TraceSampleRatio float64 `json:"trace_sample_ratio" mapstructure:"trace_sample_ratio"`
	// Journal is the JSONL file game events are appended to
	Journal string `json:"journal" mapstructure:"journal"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string   `json:"level" mapstructure:"level"`
	File      string   `json:"file" mapstructure:"file"`
	MaxSize   int      `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int      `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool     `json:"compress" mapstructure:"compress"`
	Redaction bool     `json:"redaction" mapstructure:"redaction"`
	Redact    []string `json:"redact" mapstructure:"redact"`
	Pretty    bool     `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			PollTimeout: 60,
			MaxVoiceMB:  5,
		},
		AI: AIConfig{
			Provider:    "openai",
			MaxTokens:   1024,
			Temperature: 0.9,
		},
		Speech: SpeechConfig{
			TranscribeModel: "whisper-1",
			SpeechModel:     "tts-1",
			NarratorVoice:   "nova",
			DefaultVoice:    "shimmer",
		},
		Reply: ReplyConfig{
			TextEnabled:  true,
			VoiceEnabled: true,
			MaxParallel:  4,
			OrphanMaxAge: time.Hour,
		},
		Game: GameConfig{
			MaxDepth:        8,
			FallbackMessage: "The game master lost the thread for a moment. Please try again.",
		},
		Storage: StorageConfig{
			Driver: "jsonl",
		},
		Prompt: PromptConfig{
			Watch: true,
		},
		Moderation: ModerationConfig{
			Notice: "The game master will not play along with that. Try something else.",
		},
		Housekeeping: HousekeepingConfig{
			SweepSchedule:  "@every 30m",
			ExpirySchedule: "@daily",
		},
		Observability: ObservabilityConfig{
			TraceSampleRatio: 1,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
	}
}

// Secrets returns the configured credentials that must never reach a log
func (c *Config) Secrets() []string {
	var secrets []string
	for _, s := range []string{c.Telegram.BotToken, c.AI.APIKey, c.Speech.APIKey} {
		if s != "" {
			secrets = append(secrets, s)
		}
	}
	return secrets
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram bot token is required")
	}
	if c.Telegram.PollTimeout < 0 {
		return fmt.Errorf("telegram poll_timeout must be >= 0")
	}

	if c.AI.APIKey == "" {
		return fmt.Errorf("no AI credentials configured: ai.api_key is required")
	}
	switch c.AI.Provider {
	case "", "openai", "anthropic":
	default:
		return fmt.Errorf("invalid AI provider %s (must be: openai, anthropic)", c.AI.Provider)
	}

	if !c.Reply.TextEnabled && !c.Reply.VoiceEnabled {
		return fmt.Errorf("at least one of reply.text_enabled and reply.voice_enabled must be set")
	}
	if c.Reply.VoiceEnabled && c.speechAPIKey() == "" {
		return fmt.Errorf("voice replies need an OpenAI-compatible speech key (speech.api_key or ai.api_key)")
	}

	if c.Game.MaxDepth < 0 {
		return fmt.Errorf("game max_depth must be >= 0")
	}

	switch c.Storage.Driver {
	case "", "jsonl", "sqlite":
	default:
		return fmt.Errorf("invalid storage driver %s (must be: jsonl, sqlite)", c.Storage.Driver)
	}
	if c.Storage.Retention < 0 {
		return fmt.Errorf("storage retention must be >= 0")
	}

	return nil
}

// SpeechCredentials returns the key and base URL for the speech backends
func (c *Config) SpeechCredentials() (apiKey, baseURL string) {
	if c.Speech.APIKey != "" {
		return c.Speech.APIKey, c.Speech.BaseURL
	}
	if c.AI.Provider == "anthropic" {
		return "", c.Speech.BaseURL
	}
	baseURL = c.Speech.BaseURL
	if baseURL == "" {
		baseURL = c.AI.BaseURL
	}
	return c.AI.APIKey, baseURL
}

func (c *Config) speechAPIKey() string {
	key, _ := c.SpeechCredentials()
	return key
}
