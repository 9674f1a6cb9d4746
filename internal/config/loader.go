package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FABLEBOT_AI_API_KEY
const EnvPrefix = "FABLEBOT"

// envKeys are the config keys that can be set from the environment.
// The extra names are accepted as fallbacks for older deployments.
var envKeys = map[string][]string{
	"telegram.bot_token":         {"TELEGRAM_BOT_TOKEN"},
	"telegram.allowlist":         nil,
	"ai.provider":                nil,
	"ai.api_key":                 {"AI_API_TOKEN"},
	"ai.base_url":                {"AI_BASE_URL"},
	"ai.model":                   nil,
	"speech.api_key":             nil,
	"speech.base_url":            nil,
	"speech.narrator_voice":      nil,
	"reply.temp_dir":             nil,
	"reply.text_enabled":         nil,
	"reply.voice_enabled":        nil,
	"game.max_depth":             nil,
	"game.fallback_message":      nil,
	"storage.driver":             nil,
	"storage.retention":          nil,
	"prompt.file":                nil,
	"moderation.enabled":         nil,
	"observability.metrics_addr": nil,
	"observability.tracing":      nil,
	"logging.level":              nil,
	"data_dir":                   nil,
}

// Loader handles configuration loading
type Loader struct {
	configPath string
	envFiles   []string
}

// NewLoader creates a new config loader
func NewLoader(configPath string, envFiles ...string) *Loader {
	return &Loader{
		configPath: configPath,
		envFiles:   envFiles,
	}
}

// Load reads .env files, the optional config file and environment overrides
func (l *Loader) Load() (*Config, error) {
	if err := l.loadEnvFiles(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, fallbacks := range envKeys {
		names := append([]string{envName(key)}, fallbacks...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	configPath := l.GetConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyPathDefaults(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFiles loads .env files without overriding variables already set
func (l *Loader) loadEnvFiles() error {
	files := l.envFiles
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, file := range files {
		if _, err := os.Stat(file); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", file, err)
		}
	}
	return nil
}

func applyPathDefaults(cfg *Config) error {
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".fablebot")
	}

	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = filepath.Join(cfg.DataDir, "sessions")
	}
	if cfg.Reply.TempDir == "" {
		cfg.Reply.TempDir = filepath.Join(cfg.DataDir, "tmp")
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "fablebot.log")
	}
	if cfg.Observability.Journal == "" {
		cfg.Observability.Journal = filepath.Join(cfg.DataDir, "journal.jsonl")
	}
	return nil
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("telegram", cfg.Telegram)
	v.Set("ai", cfg.AI)
	v.Set("speech", cfg.Speech)
	v.Set("reply", cfg.Reply)
	v.Set("game", cfg.Game)
	v.Set("storage", cfg.Storage)
	v.Set("prompt", cfg.Prompt)
	v.Set("moderation", cfg.Moderation)
	v.Set("housekeeping", cfg.Housekeeping)
	v.Set("observability", cfg.Observability)
	v.Set("logging", cfg.Logging)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "fablebot.json"
	}
	return filepath.Join(home, ".fablebot", "fablebot.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
