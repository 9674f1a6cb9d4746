package config

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a new configuration wizard reading answers from in
func NewWizard(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Run runs the interactive configuration wizard starting from base
func (w *Wizard) Run(base *Config) (*Config, error) {
	w.println("=== fablebot Configuration Wizard ===")
	w.println()

	cfg := base
	if cfg == nil {
		cfg = DefaultConfig()
	}
	validator := NewValidator()

	// Telegram
	for {
		token, err := w.ask("Telegram Bot Token", cfg.Telegram.BotToken)
		if err != nil {
			return nil, err
		}
		if err := validator.ValidateTelegramToken(token); err != nil {
			w.printf("Error: %v\n", err)
			continue
		}
		cfg.Telegram.BotToken = token
		break
	}
	w.println()

	// Generation backend
	for {
		provider, err := w.ask("AI provider (openai/anthropic)", cfg.AI.Provider)
		if err != nil {
			return nil, err
		}
		if err := validator.ValidateProvider(provider); err != nil {
			w.printf("Error: %v\n", err)
			continue
		}
		cfg.AI.Provider = provider
		break
	}

	baseURL, err := w.ask("AI base URL (empty for the provider's API)", cfg.AI.BaseURL)
	if err != nil {
		return nil, err
	}
	cfg.AI.BaseURL = baseURL

	for {
		key, err := w.ask("AI API key", cfg.AI.APIKey)
		if err != nil {
			return nil, err
		}
		if err := validator.ValidateAPIKey(key, cfg.AI.Provider, cfg.AI.BaseURL); err != nil {
			w.printf("Error: %v\n", err)
			continue
		}
		cfg.AI.APIKey = key
		break
	}
	w.println()

	// Replies
	voice, err := w.ask("Send voice replies? (y/n)", yesNo(cfg.Reply.VoiceEnabled))
	if err != nil {
		return nil, err
	}
	cfg.Reply.VoiceEnabled = strings.EqualFold(voice, "y")
	if cfg.Reply.VoiceEnabled && cfg.AI.Provider == "anthropic" && cfg.Speech.APIKey == "" {
		key, err := w.ask("OpenAI API key for speech", "")
		if err != nil {
			return nil, err
		}
		cfg.Speech.APIKey = key
	}
	w.println()

	// Log Level
	level, err := w.ask("Log level (debug/info/warn/error)", cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateLogLevel(level); err != nil {
		w.printf("Warning: %v, using default (info)\n", err)
		level = "info"
	}
	cfg.Logging.Level = level

	w.println()
	w.println("Configuration complete!")

	return cfg, nil
}

// ask prompts for a value; an empty answer keeps current
func (w *Wizard) ask(prompt, current string) (string, error) {
	if current != "" {
		w.printf("%s [%s]: ", prompt, current)
	} else {
		w.printf("%s: ", prompt)
	}
	line, err := w.readLine()
	if err != nil {
		return "", err
	}
	if line == "" {
		return current, nil
	}
	return line, nil
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (w *Wizard) println(args ...interface{}) {
	fmt.Fprintln(w.out, args...)
}

func (w *Wizard) printf(format string, args ...interface{}) {
	fmt.Fprintf(w.out, format, args...)
}

func yesNo(b bool) string {
	if b {
		return "y"
	}
	return "n"
}
