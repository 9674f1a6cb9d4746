package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
)

// OpenAIVoices are the voices accepted by the OpenAI speech endpoint
var OpenAIVoices = []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"}

// OpenAIConfig configures the OpenAI speech clients
type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	SpeechModel     string
	TranscribeModel string
	NarratorVoice   string
	DefaultVoice    string
	Logger          zerolog.Logger
}

func (c OpenAIConfig) client() openai.Client {
	opts := []option.RequestOption{option.WithAPIKey(c.APIKey)}
	if c.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.BaseURL))
	}
	return openai.NewClient(opts...)
}

// OpenAITranscriber transcribes voice notes with Whisper
type OpenAITranscriber struct {
	client openai.Client
	model  string
	logger zerolog.Logger
}

// NewOpenAITranscriber creates a Whisper-backed transcriber
func NewOpenAITranscriber(cfg OpenAIConfig) *OpenAITranscriber {
	model := cfg.TranscribeModel
	if model == "" {
		model = string(openai.AudioModelWhisper1)
	}
	return &OpenAITranscriber{
		client: cfg.client(),
		model:  model,
		logger: cfg.Logger.With().Str("component", "speech.transcriber").Logger(),
	}
}

// Transcribe uploads the audio file and returns its text
func (t *OpenAITranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return "", &TranscriptionFailed{Err: fmt.Errorf("failed to open audio: %w", err)}
	}
	defer file.Close()

	res, err := t.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  file,
		Model: openai.AudioModel(t.model),
	})
	if err != nil {
		return "", &TranscriptionFailed{Err: err}
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		return "", &TranscriptionFailed{Err: errors.New("no transcription text")}
	}

	t.logger.Debug().
		Str("file", filepath.Base(audioPath)).
		Int("chars", len(text)).
		Msg("Voice note transcribed")

	return text, nil
}

// OpenAISynthesizer renders speech with the OpenAI TTS endpoint
type OpenAISynthesizer struct {
	client openai.Client
	model  string
	voices VoiceMap
	logger zerolog.Logger
}

// NewOpenAISynthesizer creates a TTS-backed synthesizer
func NewOpenAISynthesizer(cfg OpenAIConfig) *OpenAISynthesizer {
	model := cfg.SpeechModel
	if model == "" {
		model = string(openai.SpeechModelTTS1)
	}
	narrator := cfg.NarratorVoice
	if narrator == "" {
		narrator = "nova"
	}
	fallback := cfg.DefaultVoice
	if fallback == "" {
		fallback = "shimmer"
	}
	return &OpenAISynthesizer{
		client: cfg.client(),
		model:  model,
		voices: VoiceMap{
			Aliases:  map[string]string{"narrator": narrator},
			Allowed:  OpenAIVoices,
			Fallback: fallback,
		},
		logger: cfg.Logger.With().Str("component", "speech.synthesizer").Logger(),
	}
}

// Synthesize writes an opus-encoded voice note for text to destPath
func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text, voiceID, destPath string) error {
	voice := s.voices.Resolve(voiceID)

	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(s.model),
		Input:          text,
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatOpus,
	})
	if err != nil {
		return &SynthesisFailed{VoiceID: voiceID, Err: err}
	}
	defer resp.Body.Close()

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return &SynthesisFailed{VoiceID: voiceID, Err: fmt.Errorf("failed to create artifact: %w", err)}
	}

	written, err := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		return &SynthesisFailed{VoiceID: voiceID, Err: fmt.Errorf("failed to write artifact: %w", err)}
	}

	s.logger.Debug().
		Str("voice", voice).
		Str("file", filepath.Base(destPath)).
		Int64("bytes", written).
		Msg("Speech synthesized")

	return nil
}
