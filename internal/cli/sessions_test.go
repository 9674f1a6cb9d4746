package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/fablebot/pkg/session"
	"github.com/harun/fablebot/pkg/transcript"
)

func seedSession(t *testing.T, dataDir, key string, messages ...transcript.Message) {
	t.Helper()

	store, err := session.Open(session.Config{Dir: filepath.Join(dataDir, "sessions")})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(context.Background(), key, transcript.New(key, messages...)))
}

func TestSessionsCommands(t *testing.T) {
	t.Run("list empty", func(t *testing.T) {
		path, _ := writeTestConfig(t)

		output, err := execute(t, "--config", path, "sessions", "list")
		require.NoError(t, err)
		assert.Contains(t, output, "No sessions")
	})

	t.Run("list", func(t *testing.T) {
		path, dataDir := writeTestConfig(t)
		seedSession(t, dataDir, "42",
			transcript.Message{Role: transcript.RoleUser, Content: "I draw my sword"},
			transcript.Message{Role: transcript.RoleAssistant, Content: "[]"},
		)

		output, err := execute(t, "--config", path, "sessions", "list")
		require.NoError(t, err)
		assert.Contains(t, output, "SESSION")
		assert.Contains(t, output, "42")
	})

	t.Run("show", func(t *testing.T) {
		path, dataDir := writeTestConfig(t)
		seedSession(t, dataDir, "7", transcript.Message{Role: transcript.RoleUser, Content: "Look around"})

		output, err := execute(t, "--config", path, "sessions", "show", "7")
		require.NoError(t, err)
		assert.Contains(t, output, "[user] Look around")
	})

	t.Run("show unknown session", func(t *testing.T) {
		path, _ := writeTestConfig(t)

		output, err := execute(t, "--config", path, "sessions", "show", "99")
		require.NoError(t, err)
		assert.Contains(t, output, "Session 99 is empty")
	})

	t.Run("reset", func(t *testing.T) {
		path, dataDir := writeTestConfig(t)
		seedSession(t, dataDir, "5", transcript.Message{Role: transcript.RoleUser, Content: "hello"})

		output, err := execute(t, "--config", path, "sessions", "reset", "5")
		require.NoError(t, err)
		assert.Contains(t, output, "Session 5 reset")

		output, err = execute(t, "--config", path, "sessions", "list")
		require.NoError(t, err)
		assert.Contains(t, output, "No sessions")
	})

	t.Run("reset is journaled", func(t *testing.T) {
		path, dataDir := writeTestConfig(t)
		seedSession(t, dataDir, "5", transcript.Message{Role: transcript.RoleUser, Content: "hello"})

		_, err := execute(t, "--config", path, "sessions", "reset", "5")
		require.NoError(t, err)

		output, err := execute(t, "--config", path, "sessions", "journal", "5")
		require.NoError(t, err)
		assert.Contains(t, output, "ACTION")
		assert.Contains(t, output, "session_reset")
		assert.Contains(t, output, "ok")
	})

	t.Run("journal without entries", func(t *testing.T) {
		path, _ := writeTestConfig(t)

		output, err := execute(t, "--config", path, "sessions", "journal", "12")
		require.NoError(t, err)
		assert.Contains(t, output, "No journal entries for session 12")
	})

	t.Run("reset unknown session", func(t *testing.T) {
		path, _ := writeTestConfig(t)

		_, err := execute(t, "--config", path, "sessions", "reset", "404")
		require.Error(t, err)
	})
}
