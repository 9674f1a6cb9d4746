package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/config.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/config.json", loader.configPath)
	assert.Equal(t, "/path/to/config.json", loader.GetConfigPath())
}

func TestLoaderLoad(t *testing.T) {
	t.Run("load default config when file doesn't exist", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Setenv("FABLEBOT_DATA_DIR", tmpDir)

		cfg, err := NewLoader(filepath.Join(tmpDir, "nonexistent.json"), filepath.Join(tmpDir, "none.env")).Load()

		require.NoError(t, err)
		assert.Equal(t, "jsonl", cfg.Storage.Driver)
		assert.Equal(t, filepath.Join(tmpDir, "sessions"), cfg.Storage.Dir)
		assert.Equal(t, filepath.Join(tmpDir, "tmp"), cfg.Reply.TempDir)
		assert.Equal(t, filepath.Join(tmpDir, "fablebot.log"), cfg.Logging.File)
	})

	t.Run("load config from file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{
			"data_dir": "` + filepath.ToSlash(tmpDir) + `",
			"telegram": {"bot_token": "123:abc", "allowlist": [42]},
			"ai": {"provider": "anthropic", "api_key": "sk-ant-x"},
			"reply": {"voice_enabled": false, "orphan_max_age": "2h"},
			"game": {"max_depth": 4}
		}`
		require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0644))

		cfg, err := NewLoader(configPath, filepath.Join(tmpDir, "none.env")).Load()

		require.NoError(t, err)
		assert.Equal(t, "123:abc", cfg.Telegram.BotToken)
		assert.Equal(t, []int64{42}, cfg.Telegram.Allowlist)
		assert.Equal(t, "anthropic", cfg.AI.Provider)
		assert.False(t, cfg.Reply.VoiceEnabled)
		assert.True(t, cfg.Reply.TextEnabled)
		assert.Equal(t, 2*time.Hour, cfg.Reply.OrphanMaxAge)
		assert.Equal(t, 4, cfg.Game.MaxDepth)
		assert.Equal(t, "@daily", cfg.Housekeeping.ExpirySchedule)
	})

	t.Run("environment overrides", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Setenv("FABLEBOT_DATA_DIR", tmpDir)
		t.Setenv("FABLEBOT_AI_API_KEY", "sk-from-env")
		t.Setenv("FABLEBOT_REPLY_VOICE_ENABLED", "false")
		t.Setenv("FABLEBOT_GAME_MAX_DEPTH", "3")

		cfg, err := NewLoader(filepath.Join(tmpDir, "missing.json"), filepath.Join(tmpDir, "none.env")).Load()

		require.NoError(t, err)
		assert.Equal(t, "sk-from-env", cfg.AI.APIKey)
		assert.False(t, cfg.Reply.VoiceEnabled)
		assert.Equal(t, 3, cfg.Game.MaxDepth)
	})

	t.Run("legacy variable names", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Setenv("FABLEBOT_DATA_DIR", tmpDir)
		t.Setenv("TELEGRAM_BOT_TOKEN", "999:legacy")
		t.Setenv("AI_API_TOKEN", "sk-legacy")

		cfg, err := NewLoader(filepath.Join(tmpDir, "missing.json"), filepath.Join(tmpDir, "none.env")).Load()

		require.NoError(t, err)
		assert.Equal(t, "999:legacy", cfg.Telegram.BotToken)
		assert.Equal(t, "sk-legacy", cfg.AI.APIKey)
	})

	t.Run("dotenv file", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Setenv("FABLEBOT_DATA_DIR", tmpDir)
		// Registered so t.Setenv restores it after godotenv sets it
		t.Setenv("FABLEBOT_STORAGE_DRIVER", "")
		require.NoError(t, os.Unsetenv("FABLEBOT_STORAGE_DRIVER"))

		envFile := filepath.Join(tmpDir, ".env")
		require.NoError(t, os.WriteFile(envFile, []byte("FABLEBOT_STORAGE_DRIVER=sqlite\n"), 0644))

		cfg, err := NewLoader(filepath.Join(tmpDir, "missing.json"), envFile).Load()

		require.NoError(t, err)
		assert.Equal(t, "sqlite", cfg.Storage.Driver)
	})

	t.Run("invalid config file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")
		require.NoError(t, os.WriteFile(configPath, []byte("{not json"), 0644))

		_, err := NewLoader(configPath, filepath.Join(tmpDir, "none.env")).Load()
		assert.Error(t, err)
	})
}

func TestLoaderSave(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "fablebot.json")

	cfg := DefaultConfig()
	cfg.DataDir = tmpDir
	cfg.Telegram.BotToken = "123:abc"
	cfg.Game.MaxDepth = 5

	loader := NewLoader(configPath, filepath.Join(tmpDir, "none.env"))
	require.NoError(t, loader.Save(cfg))

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "123:abc", loaded.Telegram.BotToken)
	assert.Equal(t, 5, loaded.Game.MaxDepth)
	assert.Equal(t, time.Hour, loaded.Reply.OrphanMaxAge)
}
