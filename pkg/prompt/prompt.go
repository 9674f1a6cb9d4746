// Package prompt supplies the game master system prompt, optionally hot-reloaded from disk.
package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

//go:embed default.md
var defaultPrompt string

// Default returns the built-in game master prompt
func Default() string {
	return compact(defaultPrompt)
}

// Source provides the current system prompt
type Source interface {
	Current() string
}

// Static is a fixed prompt
type Static string

// Current returns the prompt
func (s Static) Current() string {
	return string(s)
}

// compact folds the prompt into a single line the way it is sent to the backend
func compact(s string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(s), " "))
}

// FileSource serves a prompt file and reloads it when it changes on disk.
type FileSource struct {
	path     string
	logger   zerolog.Logger
	debounce time.Duration

	mu      sync.RWMutex
	current string

	watcher *fsnotify.Watcher
	timer   *time.Timer
	stopCh  chan struct{}
}

// NewFileSource loads the prompt at path
func NewFileSource(path string, logger zerolog.Logger) (*FileSource, error) {
	fs := &FileSource{
		path:     path,
		logger:   logger.With().Str("component", "prompt").Logger(),
		debounce: 250 * time.Millisecond,
		stopCh:   make(chan struct{}),
	}
	if err := fs.Reload(); err != nil {
		return nil, err
	}
	return fs, nil
}

// Current returns the last successfully loaded prompt
func (fs *FileSource) Current() string {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.current
}

// Reload re-reads the prompt file. An empty file keeps the previous prompt.
func (fs *FileSource) Reload() error {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		return fmt.Errorf("failed to read prompt file: %w", err)
	}

	text := compact(string(data))
	if text == "" {
		return fmt.Errorf("prompt file %s is empty", fs.path)
	}

	fs.mu.Lock()
	fs.current = text
	fs.mu.Unlock()

	fs.logger.Info().Str("path", fs.path).Int("chars", len(text)).Msg("Prompt loaded")
	return nil
}

// Watch starts reloading the prompt on file changes until Stop is called.
// The parent directory is watched so editors that replace the file are handled.
func (fs *FileSource) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(fs.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch prompt directory: %w", err)
	}
	fs.watcher = watcher

	go fs.run()
	return nil
}

// Stop stops watching
func (fs *FileSource) Stop() error {
	if fs.watcher == nil {
		return nil
	}
	close(fs.stopCh)
	return fs.watcher.Close()
}

func (fs *FileSource) run() {
	target := filepath.Clean(fs.path)
	for {
		select {
		case event, ok := <-fs.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				fs.logger.Debug().Str("op", event.Op.String()).Msg("Prompt file change detected")
				fs.scheduleReload()
			}

		case err, ok := <-fs.watcher.Errors:
			if !ok {
				return
			}
			fs.logger.Error().Err(err).Msg("Prompt watcher error")

		case <-fs.stopCh:
			return
		}
	}
}

func (fs *FileSource) scheduleReload() {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.timer != nil {
		fs.timer.Stop()
	}
	fs.timer = time.AfterFunc(fs.debounce, func() {
		if err := fs.Reload(); err != nil {
			fs.logger.Warn().Err(err).Msg("Prompt reload failed, keeping previous prompt")
		}
	})
}
