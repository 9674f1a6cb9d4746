package prompt

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_DescribesProtocol(t *testing.T) {
	p := Default()

	assert.Contains(t, p, `"type": "text"`)
	assert.Contains(t, p, "START_NEW_GAME")
	assert.Contains(t, p, "ROLL_DICE")
	assert.NotContains(t, p, "\n")
}

func TestStatic(t *testing.T) {
	assert.Equal(t, "hello", Static("hello").Current())
}

func TestFileSource_LoadAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gm.md")
	require.NoError(t, os.WriteFile(path, []byte("first\n  prompt"), 0600))

	src, err := NewFileSource(path, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "first prompt", src.Current())

	require.NoError(t, os.WriteFile(path, []byte("second"), 0600))
	require.NoError(t, src.Reload())
	assert.Equal(t, "second", src.Current())

	// An empty file keeps the previous prompt
	require.NoError(t, os.WriteFile(path, []byte("  "), 0600))
	assert.Error(t, src.Reload())
	assert.Equal(t, "second", src.Current())
}

func TestFileSource_MissingFile(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "missing.md"), zerolog.Nop())
	assert.Error(t, err)
}

func TestFileSource_Watch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gm.md")
	require.NoError(t, os.WriteFile(path, []byte("before"), 0600))

	src, err := NewFileSource(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, src.Watch())
	defer src.Stop()

	require.NoError(t, os.WriteFile(path, []byte("after"), 0600))

	assert.Eventually(t, func() bool {
		return src.Current() == "after"
	}, 3*time.Second, 50*time.Millisecond)
}
