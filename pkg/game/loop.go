package game

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/fablebot/internal/observability"
	"github.com/harun/fablebot/internal/tracing"
	"github.com/harun/fablebot/pkg/protocol"
	"github.com/harun/fablebot/pkg/reply"
	"github.com/harun/fablebot/pkg/transcript"
)

// State is a phase of the turn loop
type State string

const (
	StateIdle        State = "idle"
	StateGenerating  State = "generating"
	StateDispatching State = "dispatching"
	StateResolving   State = "resolving"
)

// Result summarizes one turn chain
type Result struct {
	FinalState State
	// Depth is the number of generations performed
	Depth      int
	DiceRolled []int
	Resets     int
}

// chain carries the state of one turn chain through the loop
type chain struct {
	sessionID string
	messageID int
	t         *transcript.Transcript
	logger    zerolog.Logger

	state   State
	phrases []protocol.Phrase
	pending int
	result  Result
}

// runChain drives the loop from Generating until Idle or an error.
// The transcript has already been prepared and saved by the caller.
func (e *Engine) runChain(ctx context.Context, c *chain) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "fablebot.game", "game.chain",
		attribute.String("session_key", c.sessionID),
	)
	defer span.End()

	c.state = StateGenerating
	for c.state != StateIdle {
		var err error
		switch c.state {
		case StateGenerating:
			err = e.generate(ctx, c)
		case StateDispatching:
			err = e.dispatch(ctx, c)
		case StateResolving:
			err = e.resolve(ctx, c)
		default:
			err = fmt.Errorf("unknown state %q", c.state)
		}
		if err != nil {
			c.result.FinalState = StateIdle
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return c.result, err
		}
	}

	span.SetAttributes(attribute.Int("depth", c.result.Depth))
	c.result.FinalState = StateIdle
	return c.result, nil
}

// generate asks the backend for the next reply, records it and delivers it
func (e *Engine) generate(ctx context.Context, c *chain) error {
	if c.result.Depth >= e.maxDepth {
		return fmt.Errorf("%w (%d generations)", ErrLoopBudgetExceeded, c.result.Depth)
	}
	c.result.Depth++

	ctx, span := tracing.StartSpan(ctx, "fablebot.game", "game.generate",
		attribute.Int("depth", c.result.Depth),
		attribute.Int("messages", c.t.Len()),
	)
	defer span.End()

	content, err := e.generator.Generate(ctx, c.t.Current())
	if err != nil {
		return err
	}

	c.t.Append(transcript.Message{Role: transcript.RoleAssistant, Content: content})
	if err := e.save(ctx, c); err != nil {
		return err
	}

	last, err := c.t.LastAssistantMessage()
	if err != nil {
		return err
	}
	phrases, err := protocol.Parse(last.Content)
	if err != nil {
		observability.RecordProtocolViolation()
		return err
	}
	if err := protocol.CheckExclusivity(phrases); err != nil {
		c.logger.Warn().Err(err).Msg("Backend mixed narration and actions, handling both")
	}
	c.phrases = phrases

	rendered := e.renderer.Render(protocol.Narrative(phrases))
	if !rendered.Empty() {
		if err := e.replier.Deliver(ctx, reply.Delivery{
			SessionID: c.sessionID,
			MessageID: c.messageID,
			Reply:     rendered,
		}); err != nil {
			return err
		}
	}

	c.state = StateDispatching
	return nil
}

// dispatch acts on the control actions of the last reply
func (e *Engine) dispatch(ctx context.Context, c *chain) error {
	if protocol.HasAction(c.phrases, protocol.ActionStartNewGame) {
		if err := e.resetToSeed(ctx, c); err != nil {
			return err
		}
		c.state = StateGenerating
		return nil
	}

	if n := protocol.CountAction(c.phrases, protocol.ActionRollDice); n > 0 {
		c.pending = n
		c.state = StateResolving
		return nil
	}

	c.state = StateIdle
	return nil
}

// resolve rolls the pending dice and reports them to the backend
func (e *Engine) resolve(ctx context.Context, c *chain) error {
	rolls := e.dice.Roll(c.pending)
	c.pending = 0
	c.result.DiceRolled = append(c.result.DiceRolled, rolls...)

	c.t.Append(transcript.Message{Role: transcript.RoleSystem, Content: DiceReport(rolls)})
	c.t.Append(transcript.Message{Role: transcript.RoleUser, Content: ContinuePrompt})
	if err := e.save(ctx, c); err != nil {
		return err
	}

	observability.RecordDiceRolled(len(rolls))
	observability.RecordJournal(ctx, observability.JournalRollDice, c.sessionID, observability.OutcomeOK, map[string]interface{}{"rolls": rolls})
	c.logger.Info().Ints("rolls", rolls).Msg("Dice rolled")

	c.state = StateGenerating
	return nil
}

func (e *Engine) resetToSeed(ctx context.Context, c *chain) error {
	c.t.Reset(e.seed)
	if err := e.save(ctx, c); err != nil {
		return err
	}
	c.result.Resets++

	observability.RecordGameReset()
	observability.RecordJournal(ctx, observability.JournalNewGame, c.sessionID, observability.OutcomeOK, nil)
	c.logger.Info().Msg("New game started")
	return nil
}

func (e *Engine) save(ctx context.Context, c *chain) error {
	if err := e.store.Save(ctx, c.sessionID, c.t); err != nil {
		return fmt.Errorf("failed to save transcript: %w", err)
	}
	return nil
}

// outcome labels a chain result for metrics
func outcome(err error) string {
	var violation *protocol.ProtocolViolation
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &violation):
		return "protocol_violation"
	case errors.Is(err, ErrLoopBudgetExceeded):
		return "loop_budget"
	default:
		return "error"
	}
}
