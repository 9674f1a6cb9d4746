package daemon

import (
	"context"
	"fmt"
	"html"

	"github.com/rs/zerolog"

	"github.com/harun/fablebot/internal/observability"
	"github.com/harun/fablebot/internal/telegram"
	"github.com/harun/fablebot/pkg/game"
)

// Router turns Telegram callbacks into game turns
type Router struct {
	daemon *Daemon
	logger zerolog.Logger
}

// NewRouter creates a new message router
func NewRouter(d *Daemon) *Router {
	return &Router{
		daemon: d,
		logger: d.logger.Component("router"),
	}
}

// Bind attaches the router to the Telegram bot
func (r *Router) Bind() {
	d := r.daemon
	if d.telegramBot == nil {
		return
	}

	d.telegramHandler.SetOnMessage(r.RouteText)
	d.telegramMedia.SetOnVoice(r.RouteVoice)
	d.telegramCmd.Register("start", "Start a new adventure", r.RouteStart)

	d.telegramBot.SetMessageHandler(d.telegramHandler)
	d.telegramBot.SetVoiceHandler(d.telegramMedia)
	d.telegramBot.SetCommandHandler(d.telegramCmd)
}

// RouteText plays a typed message
func (r *Router) RouteText(ctx context.Context, mc telegram.MessageContext) error {
	if err := r.daemon.filter.CheckInput(mc.Text); err != nil {
		return r.reject(ctx, mc, err)
	}

	defer r.typing(ctx, mc.ChatID)()

	_, err := r.daemon.engine.HandleText(ctx, game.Inbound{
		SessionID: mc.SessionID(),
		MessageID: mc.MessageID,
		Text:      mc.Text,
	})
	return r.result(mc, "text", err)
}

// RouteVoice plays a voice note
func (r *Router) RouteVoice(ctx context.Context, vc telegram.VoiceContext) error {
	defer r.typing(ctx, vc.ChatID)()

	inbound := game.InboundVoice{
		SessionID: vc.SessionID(),
		MessageID: vc.MessageID,
	}
	// A nil *FileAudio must not become a non-nil interface
	if vc.Audio != nil {
		inbound.Audio = vc.Audio
	}

	_, err := r.daemon.engine.HandleVoice(ctx, inbound)
	return r.result(vc.MessageContext, "voice", err)
}

// RouteStart restarts the adventure
func (r *Router) RouteStart(ctx context.Context, cc telegram.CommandContext) error {
	defer r.typing(ctx, cc.ChatID)()

	_, err := r.daemon.engine.HandleStart(ctx, game.Inbound{
		SessionID: cc.SessionID(),
		MessageID: cc.MessageID,
	})
	return r.result(cc.MessageContext, "start", err)
}

// reject answers a blocked message with the moderation notice instead of a turn
func (r *Router) reject(ctx context.Context, mc telegram.MessageContext, reason error) error {
	sessionID := mc.SessionID()
	r.logger.Info().
		Str("session_key", sessionID).
		Int("message_id", mc.MessageID).
		Str("reason", reason.Error()).
		Msg("Player message blocked")
	observability.RecordJournal(ctx, observability.JournalInputBlocked, sessionID, observability.OutcomeRejected, map[string]interface{}{
		"message_id": mc.MessageID,
	})

	notice := r.daemon.config.Moderation.Notice
	if notice == "" {
		return nil
	}
	if err := r.daemon.sender.SendText(ctx, sessionID, html.EscapeString(notice)); err != nil {
		return fmt.Errorf("failed to send moderation notice: %w", err)
	}
	return nil
}

func (r *Router) typing(ctx context.Context, chatID int64) func() {
	if r.daemon.telegramPresence == nil {
		return func() {}
	}
	return r.daemon.telegramPresence.Keep(ctx, chatID)
}

// result logs the routing outcome; the engine has already told the user
func (r *Router) result(mc telegram.MessageContext, event string, err error) error {
	if err != nil {
		return fmt.Errorf("%s turn for session %s failed: %w", event, mc.SessionID(), err)
	}

	r.logger.Debug().
		Str("session_key", mc.SessionID()).
		Int("message_id", mc.MessageID).
		Str("event", event).
		Msg("Message routed")
	return nil
}

// logSender stands in for Telegram when no bot token is configured
type logSender struct {
	logger zerolog.Logger
}

func newLogSender(logger zerolog.Logger) *logSender {
	return &logSender{logger: logger}
}

func (s *logSender) SendText(ctx context.Context, sessionID, html string) error {
	s.logger.Info().
		Str("session_key", sessionID).
		Str("text", html).
		Msg("Text reply")
	return nil
}

func (s *logSender) SendVoice(ctx context.Context, sessionID, artifactPath string) error {
	s.logger.Info().
		Str("session_key", sessionID).
		Str("path", artifactPath).
		Msg("Voice reply")
	return nil
}
