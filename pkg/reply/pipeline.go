package reply

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/harun/fablebot/internal/observability"
	"github.com/harun/fablebot/internal/tracing"
	"github.com/harun/fablebot/pkg/render"
	"github.com/harun/fablebot/pkg/speech"
)

// Sender is the outbound half of the chat transport
type Sender interface {
	SendText(ctx context.Context, sessionID, html string) error
	SendVoice(ctx context.Context, sessionID, artifactPath string) error
}

// Delivery is one rendered turn addressed to a session
type Delivery struct {
	SessionID string
	MessageID int
	Reply     render.RenderedReply
}

// Config configures a Pipeline
type Config struct {
	Synthesizer  speech.Synthesizer
	Sender       Sender
	TempDir      string
	TextEnabled  bool
	VoiceEnabled bool
	// Extension of synthesized artifacts, without the dot
	Extension string
	// MaxParallel bounds concurrent synthesis calls; 0 means unbounded
	MaxParallel int
	Logger      zerolog.Logger
}

// Pipeline sends text and voice replies
type Pipeline struct {
	synth        speech.Synthesizer
	sender       Sender
	tempDir      string
	textEnabled  bool
	voiceEnabled bool
	ext          string
	maxParallel  int
	logger       zerolog.Logger
}

// NewPipeline creates a reply pipeline
func NewPipeline(cfg Config) *Pipeline {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.Extension == "" {
		cfg.Extension = "ogg"
	}
	return &Pipeline{
		synth:        cfg.Synthesizer,
		sender:       cfg.Sender,
		tempDir:      cfg.TempDir,
		textEnabled:  cfg.TextEnabled,
		voiceEnabled: cfg.VoiceEnabled,
		ext:          cfg.Extension,
		maxParallel:  cfg.MaxParallel,
		logger:       cfg.Logger.With().Str("component", "reply").Logger(),
	}
}

// TextEnabled reports whether text replies are sent
func (p *Pipeline) TextEnabled() bool {
	return p.textEnabled
}

// ArtifactPath returns the temp file used for voice job index of a turn.
// Message ids are only unique within a chat, so the session is part of the name.
func (p *Pipeline) ArtifactPath(sessionID string, messageID, index int) string {
	return filepath.Join(p.tempDir, fmt.Sprintf("%s_%d_reply_%d.%s", sessionID, messageID, index, p.ext))
}

// Deliver sends the text block, then synthesizes and sends the voice notes in order
func (p *Pipeline) Deliver(ctx context.Context, d Delivery) error {
	ctx, span := tracing.StartSpan(ctx, "fablebot.reply", "reply.deliver")
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, p.logger)

	if p.textEnabled && d.Reply.Text != "" {
		err := p.sender.SendText(ctx, d.SessionID, d.Reply.Text)
		observability.RecordDelivery("text", err == nil)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to send text reply: %w", err)
		}
	}

	if !p.voiceEnabled || len(d.Reply.VoiceJobs) == 0 {
		return nil
	}

	artifacts := make([]*artifact, len(d.Reply.VoiceJobs))
	for i := range d.Reply.VoiceJobs {
		artifacts[i] = &artifact{path: p.ArtifactPath(d.SessionID, d.MessageID, i)}
	}
	defer func() {
		for _, a := range artifacts {
			if err := a.Release(); err != nil {
				logger.Warn().Err(err).Str("path", a.path).Msg("Failed to remove voice artifact")
			}
		}
	}()

	if err := p.synthesizeAll(ctx, d.Reply.VoiceJobs, artifacts); err != nil {
		span.RecordError(err)
		return err
	}

	for i, a := range artifacts {
		err := p.sender.SendVoice(ctx, d.SessionID, a.path)
		observability.RecordDelivery("voice", err == nil)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to send voice reply %d: %w", i, err)
		}
	}

	logger.Debug().Int("voiceNotes", len(artifacts)).Msg("Reply delivered")
	return nil
}

// SendFallback tells the player a turn failed, when text replies are enabled
func (p *Pipeline) SendFallback(ctx context.Context, sessionID, text string) error {
	if !p.textEnabled || text == "" {
		return nil
	}
	err := p.sender.SendText(ctx, sessionID, text)
	observability.RecordDelivery("fallback", err == nil)
	return err
}

func (p *Pipeline) synthesizeAll(ctx context.Context, jobs []render.VoiceJob, artifacts []*artifact) error {
	g, gctx := errgroup.WithContext(ctx)
	if p.maxParallel > 0 {
		g.SetLimit(p.maxParallel)
	}

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			started := time.Now()
			artifacts[i].Acquire()
			err := p.synth.Synthesize(gctx, job.Text, job.VoiceID, artifacts[i].path)
			observability.RecordSynthesis(time.Since(started), err == nil)
			if err != nil {
				var failed *speech.SynthesisFailed
				if errors.As(err, &failed) {
					return err
				}
				return &speech.SynthesisFailed{VoiceID: job.VoiceID, Err: err}
			}
			return nil
		})
	}

	return g.Wait()
}

// artifact is a temp file that may have been created by a synthesis call
type artifact struct {
	path     string
	acquired bool
}

// Acquire marks the artifact as possibly present on disk
func (a *artifact) Acquire() {
	a.acquired = true
}

// Release removes the file if it was acquired
func (a *artifact) Release() error {
	if !a.acquired {
		return nil
	}
	a.acquired = false
	if err := os.Remove(a.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
