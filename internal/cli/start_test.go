package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/fablebot/internal/config"
)

func TestStartCommand(t *testing.T) {
	t.Run("command exists", func(t *testing.T) {
		assert.True(t, hasCommand("start"), "start command should exist")
	})

	t.Run("help text", func(t *testing.T) {
		output, err := execute(t, "start", "--help")
		require.NoError(t, err)

		assert.Contains(t, output, "Start the fablebot daemon service")
	})

	t.Run("rejects incomplete config", func(t *testing.T) {
		path, _ := writeTestConfig(t)

		_, err := execute(t, "--config", path, "start")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})
}

func TestCheckConfig(t *testing.T) {
	valid := func() *config.Config {
		cfg := config.DefaultConfig()
		cfg.Telegram.BotToken = "123456789:ABCdefGHIjklMNOpqrSTUvwxYZ0123456789"
		cfg.AI.APIKey = "sk-test-key-0123456789"
		return cfg
	}

	require.NoError(t, checkConfig(valid()))

	missingToken := valid()
	missingToken.Telegram.BotToken = ""
	assert.Error(t, checkConfig(missingToken))

	badLevel := valid()
	badLevel.Logging.Level = "loud"
	assert.Error(t, checkConfig(badLevel))

	badSchedule := valid()
	badSchedule.Housekeeping.SweepSchedule = "sometimes"
	assert.Error(t, checkConfig(badSchedule))
}
