// Package speech provides speech-to-text and text-to-speech backends.
package speech

import (
	"context"
	"fmt"
)

// Transcriber turns a recorded voice note into text
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Synthesizer renders text in a voice and writes the audio to destPath
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID, destPath string) error
}

// TranscriptionFailed wraps a speech-to-text failure
type TranscriptionFailed struct {
	Err error
}

func (e *TranscriptionFailed) Error() string {
	return fmt.Sprintf("transcription failed: %v", e.Err)
}

func (e *TranscriptionFailed) Unwrap() error {
	return e.Err
}

// SynthesisFailed wraps a text-to-speech failure
type SynthesisFailed struct {
	VoiceID string
	Err     error
}

func (e *SynthesisFailed) Error() string {
	return fmt.Sprintf("synthesis failed for voice %q: %v", e.VoiceID, e.Err)
}

func (e *SynthesisFailed) Unwrap() error {
	return e.Err
}

// VoiceMap resolves phrase voice ids to backend voices.
type VoiceMap struct {
	// Aliases maps protocol voice ids (e.g. "narrator") to backend voices.
	Aliases map[string]string
	// Allowed lists the voices the backend accepts. Empty means anything goes.
	Allowed []string
	// Fallback is used for voices outside Allowed.
	Fallback string
}

// Resolve maps a phrase voice id onto a backend voice
func (m VoiceMap) Resolve(voiceID string) string {
	if alias, ok := m.Aliases[voiceID]; ok {
		voiceID = alias
	}
	if len(m.Allowed) == 0 {
		return voiceID
	}
	for _, v := range m.Allowed {
		if v == voiceID {
			return voiceID
		}
	}
	return m.Fallback
}
