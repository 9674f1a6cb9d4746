package game

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/harun/fablebot/internal/observability"
	"github.com/harun/fablebot/internal/tracing"
	"github.com/harun/fablebot/pkg/commandqueue"
	"github.com/harun/fablebot/pkg/speech"
	"github.com/harun/fablebot/pkg/transcript"
)

const (
	eventText  = "text"
	eventVoice = "voice"
	eventStart = "start"
)

// HandleText appends the player's message and runs a turn chain
func (e *Engine) HandleText(ctx context.Context, in Inbound) (Result, error) {
	return e.enqueue(ctx, in.SessionID, in.MessageID, eventText, func(ctx context.Context, c *chain) error {
		return e.appendUser(ctx, c, in.Text)
	})
}

// HandleVoice transcribes the voice note and runs a turn chain on the transcription
func (e *Engine) HandleVoice(ctx context.Context, in InboundVoice) (Result, error) {
	return e.enqueue(ctx, in.SessionID, in.MessageID, eventVoice, func(ctx context.Context, c *chain) error {
		text, err := e.transcribe(ctx, in)
		if err != nil {
			return err
		}
		return e.appendUser(ctx, c, text)
	})
}

// HandleStart resets the session to the seed and lets the backend open the game
func (e *Engine) HandleStart(ctx context.Context, in Inbound) (Result, error) {
	return e.enqueue(ctx, in.SessionID, in.MessageID, eventStart, func(ctx context.Context, c *chain) error {
		return e.resetToSeed(ctx, c)
	})
}

// enqueue runs prepare and the turn chain on the session's lane
func (e *Engine) enqueue(ctx context.Context, sessionID string, messageID int, event string, prepare func(context.Context, *chain) error) (Result, error) {
	ctx = tracing.NewTurnContext(ctx, sessionID, messageID, event)

	value, err := e.queue.Enqueue(ctx, commandqueue.SessionLane(sessionID), func(ctx context.Context) (interface{}, error) {
		return e.turn(ctx, sessionID, messageID, event, prepare)
	}, &commandqueue.TaskOptions{
		RequestID: sessionID + ":" + strconv.Itoa(messageID),
	})

	result, _ := value.(Result)
	return result, err
}

func (e *Engine) turn(ctx context.Context, sessionID string, messageID int, event string, prepare func(context.Context, *chain) error) (Result, error) {
	logger := tracing.LoggerFromContext(ctx, e.logger)

	t, err := e.store.Load(ctx, sessionID)
	if err != nil {
		err = fmt.Errorf("failed to load transcript: %w", err)
		e.fail(ctx, sessionID, event, Result{FinalState: StateIdle}, err)
		return Result{FinalState: StateIdle}, err
	}

	c := &chain{
		sessionID: sessionID,
		messageID: messageID,
		t:         t,
		logger:    logger,
		state:     StateIdle,
	}

	if err := prepare(ctx, c); err != nil {
		c.result.FinalState = StateIdle
		e.fail(ctx, sessionID, event, c.result, err)
		return c.result, err
	}

	result, err := e.runChain(ctx, c)
	if err != nil {
		e.fail(ctx, sessionID, event, result, err)
		return result, err
	}

	observability.RecordTurn(event, outcome(nil), result.Depth)
	logger.Info().
		Int("depth", result.Depth).
		Int("dice", len(result.DiceRolled)).
		Int("resets", result.Resets).
		Msg("Turn finished")
	return result, nil
}

// fail logs the aborted turn and tells the player
func (e *Engine) fail(ctx context.Context, sessionID, event string, result Result, err error) {
	logger := tracing.LoggerFromContext(ctx, e.logger)
	observability.RecordTurn(event, outcome(err), result.Depth)
	logger.Error().Err(err).Int("depth", result.Depth).Msg("Turn aborted")

	if ctx.Err() != nil || e.fallback == "" {
		return
	}
	if sendErr := e.replier.SendFallback(ctx, sessionID, e.fallback); sendErr != nil {
		logger.Warn().Err(sendErr).Msg("Failed to send fallback message")
	}
}

func (e *Engine) appendUser(ctx context.Context, c *chain, text string) error {
	c.t.Append(transcript.Message{Role: transcript.RoleUser, Content: text})
	return e.save(ctx, c)
}

// transcribe downloads the voice note, transcribes it and always removes the download
func (e *Engine) transcribe(ctx context.Context, in InboundVoice) (string, error) {
	if e.transcriber == nil {
		return "", &speech.TranscriptionFailed{Err: errors.New("no transcriber configured")}
	}
	if in.Audio == nil {
		return "", &speech.TranscriptionFailed{Err: errors.New("voice message has no audio")}
	}

	path := filepath.Join(e.tempDir, fmt.Sprintf("%s_%d_voice.ogg", in.SessionID, in.MessageID))
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			e.logger.Warn().Err(err).Str("path", path).Msg("Failed to remove voice download")
		}
	}()

	if err := in.Audio.Download(ctx, path); err != nil {
		observability.RecordTranscription(false)
		return "", &speech.TranscriptionFailed{Err: fmt.Errorf("download voice note: %w", err)}
	}

	text, err := e.transcriber.Transcribe(ctx, path)
	if err == nil && strings.TrimSpace(text) == "" {
		err = &speech.TranscriptionFailed{Err: errors.New("empty transcription")}
	}
	observability.RecordTranscription(err == nil)
	if err != nil {
		var failed *speech.TranscriptionFailed
		if errors.As(err, &failed) {
			return "", err
		}
		return "", &speech.TranscriptionFailed{Err: err}
	}
	return strings.TrimSpace(text), nil
}
