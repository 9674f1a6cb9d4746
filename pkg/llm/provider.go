package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harun/fablebot/internal/observability"
	"github.com/harun/fablebot/pkg/transcript"
)

// Generator produces the next assistant reply for a transcript
type Generator interface {
	Generate(ctx context.Context, messages []transcript.Message) (string, error)
}

// Provider is a concrete chat backend
type Provider interface {
	Generator

	// Name returns the provider name used in logs and metrics
	Name() string
}

// GenerationFailed wraps a backend failure or an empty reply
type GenerationFailed struct {
	Provider string
	Err      error
}

func (e *GenerationFailed) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("generation failed (%s)", e.Provider)
	}
	return fmt.Sprintf("generation failed (%s): %v", e.Provider, e.Err)
}

func (e *GenerationFailed) Unwrap() error {
	return e.Err
}

// ErrEmptyReply is wrapped by GenerationFailed when the backend answers with blank content
var ErrEmptyReply = errors.New("backend returned an empty reply")

// Options tune a provider call
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// splitSystem takes a leading system message as the instruction block.
// Later system messages, such as dice reports, stay in the turns at their position.
func splitSystem(messages []transcript.Message) (string, []transcript.Message) {
	if len(messages) == 0 || messages[0].Role != transcript.RoleSystem {
		return "", messages
	}
	return messages[0].Content, messages[1:]
}

// finish records the call and normalizes the result into a GenerationFailed on error
func finish(provider string, started time.Time, content string, err error) (string, error) {
	if err == nil && strings.TrimSpace(content) == "" {
		err = ErrEmptyReply
	}
	observability.RecordGeneration(provider, time.Since(started), err == nil)
	if err != nil {
		return "", &GenerationFailed{Provider: provider, Err: err}
	}
	return content, nil
}
