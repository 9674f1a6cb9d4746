package telegram

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Handler implements text message handling for Telegram
type Handler struct {
	bot    *Bot
	logger zerolog.Logger

	// Callback for processing messages
	onMessage func(context.Context, MessageContext) error
}

// MessageContext contains message metadata
type MessageContext struct {
	ChatID    int64
	MessageID int
	UserID    int64
	Username  string
	Text      string
	Timestamp time.Time
	IsGroup   bool
	ReplyToID int
}

// SessionID returns the game session the message belongs to
func (m MessageContext) SessionID() string {
	return SessionID(m.ChatID)
}

// NewHandler creates a new message handler
func NewHandler(bot *Bot) *Handler {
	return &Handler{
		bot:    bot,
		logger: bot.logger.With().Str("module", "handler").Logger(),
	}
}

// HandleMessage processes incoming text messages
func (h *Handler) HandleMessage(ctx context.Context, update tgbotapi.Update) error {
	if update.Message == nil {
		return nil
	}

	mc := newMessageContext(update.Message)
	mc.Text = update.Message.Text

	h.logger.Debug().
		Int64("chat_id", mc.ChatID).
		Int64("user_id", mc.UserID).
		Str("username", mc.Username).
		Bool("is_group", mc.IsGroup).
		Msg("Message received")

	if h.onMessage != nil {
		return h.onMessage(ctx, mc)
	}

	return nil
}

// SetOnMessage sets the message callback
func (h *Handler) SetOnMessage(callback func(context.Context, MessageContext) error) {
	h.onMessage = callback
}

// SendResponse sends a plain text reply to a message
func (h *Handler) SendResponse(mc MessageContext, text string) error {
	return h.bot.SendMessageWithReply(mc.ChatID, text, mc.MessageID)
}

func newMessageContext(msg *tgbotapi.Message) MessageContext {
	mc := MessageContext{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		Timestamp: time.Unix(int64(msg.Date), 0),
		IsGroup:   msg.Chat.IsGroup() || msg.Chat.IsSuperGroup(),
	}
	if msg.From != nil {
		mc.UserID = msg.From.ID
		mc.Username = msg.From.UserName
	}
	if msg.ReplyToMessage != nil {
		mc.ReplyToID = msg.ReplyToMessage.MessageID
	}
	return mc
}
