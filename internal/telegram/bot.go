package telegram

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/harun/fablebot/internal/config"
	"github.com/harun/fablebot/internal/logger"
)

// Bot represents a Telegram bot instance
type Bot struct {
	api    *tgbotapi.BotAPI
	config *config.TelegramConfig
	logger zerolog.Logger

	allowed map[int64]struct{}

	// Handlers
	messageHandler MessageHandler
	commandHandler CommandHandler
	voiceHandler   VoiceHandler

	// State
	mu       sync.Mutex
	running  bool
	updates  tgbotapi.UpdatesChannel
	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

// MessageHandler handles incoming text messages
type MessageHandler interface {
	HandleMessage(ctx context.Context, update tgbotapi.Update) error
}

// CommandHandler handles bot commands
type CommandHandler interface {
	HandleCommand(ctx context.Context, update tgbotapi.Update) error
}

// VoiceHandler handles voice notes
type VoiceHandler interface {
	HandleVoice(ctx context.Context, update tgbotapi.Update) error
}

// New creates a new Telegram bot instance
func New(cfg *config.TelegramConfig, log *logger.Logger) (*Bot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("telegram config is required")
	}

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	bot := newBot(api, cfg, log.Component("telegram"))

	bot.logger.Info().
		Str("username", api.Self.UserName).
		Int64("id", api.Self.ID).
		Msg("Telegram bot authenticated")

	return bot, nil
}

func newBot(api *tgbotapi.BotAPI, cfg *config.TelegramConfig, log zerolog.Logger) *Bot {
	allowed := make(map[int64]struct{}, len(cfg.Allowlist))
	for _, id := range cfg.Allowlist {
		allowed[id] = struct{}{}
	}
	return &Bot{
		api:     api,
		config:  cfg,
		logger:  log,
		allowed: allowed,
	}
}

// Start begins long polling for updates
func (b *Bot) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return fmt.Errorf("bot is already running")
	}

	b.logger.Info().Msg("Starting Telegram bot")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.config.PollTimeout
	if u.Timeout <= 0 {
		u.Timeout = 60
	}

	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.updates = b.api.GetUpdatesChan(u)
	b.running = true

	go b.processUpdates(b.ctx, b.updates)

	b.logger.Info().Msg("Telegram bot started")

	return nil
}

// Stop stops polling, cancels in-flight handlers and waits for them
func (b *Bot) Stop() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return fmt.Errorf("bot is not running")
	}

	b.logger.Info().Msg("Stopping Telegram bot")

	b.running = false
	b.api.StopReceivingUpdates()
	b.cancel()
	b.mu.Unlock()

	b.inflight.Wait()

	b.logger.Info().Msg("Telegram bot stopped")

	return nil
}

// processUpdates hands each update to its own goroutine.
// Updates for one chat are serialized further down by the session lane.
func (b *Bot) processUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for update := range updates {
		if ctx.Err() != nil {
			return
		}

		b.inflight.Add(1)
		go func(update tgbotapi.Update) {
			defer b.inflight.Done()
			if err := b.handleUpdate(ctx, update); err != nil {
				b.logger.Error().
					Err(err).
					Int("update_id", update.UpdateID).
					Msg("Failed to handle update")
			}
		}(update)
	}
}

// handleUpdate routes an update to the appropriate handler
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return nil
	}

	if !b.isAllowed(msg.Chat.ID) {
		b.logger.Warn().
			Int64("chat_id", msg.Chat.ID).
			Msg("Ignoring message from chat outside the allowlist")
		return nil
	}

	switch {
	case msg.IsCommand():
		if b.commandHandler != nil {
			return b.commandHandler.HandleCommand(ctx, update)
		}
	case msg.Voice != nil:
		if b.voiceHandler != nil {
			return b.voiceHandler.HandleVoice(ctx, update)
		}
	case msg.Text != "":
		if b.messageHandler != nil {
			return b.messageHandler.HandleMessage(ctx, update)
		}
	default:
		b.logger.Debug().
			Int64("chat_id", msg.Chat.ID).
			Msg("Ignoring unsupported message type")
	}

	return nil
}

func (b *Bot) isAllowed(chatID int64) bool {
	if len(b.allowed) == 0 {
		return true
	}
	_, ok := b.allowed[chatID]
	return ok
}

// SendMessage sends a plain text message
func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)

	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	b.logger.Debug().
		Int64("chat_id", chatID).
		Msg("Message sent")

	return nil
}

// SendMessageWithReply sends a plain text message as a reply
func (b *Bot) SendMessageWithReply(chatID int64, text string, replyToMessageID int) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyToMessageID

	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	b.logger.Debug().
		Int64("chat_id", chatID).
		Int("reply_to", replyToMessageID).
		Msg("Reply sent")

	return nil
}

// SendText sends an HTML formatted message to a session's chat
func (b *Bot) SendText(ctx context.Context, sessionID, html string) error {
	chatID, err := ChatID(sessionID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, html)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	b.logger.Debug().
		Int64("chat_id", chatID).
		Int("length", len(html)).
		Msg("Text reply sent")

	return nil
}

// SendVoice uploads a voice note file to a session's chat
func (b *Bot) SendVoice(ctx context.Context, sessionID, artifactPath string) error {
	chatID, err := ChatID(sessionID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	voice := tgbotapi.NewVoice(chatID, tgbotapi.FilePath(artifactPath))
	if _, err := b.api.Send(voice); err != nil {
		return fmt.Errorf("failed to upload voice: %w", err)
	}

	b.logger.Debug().
		Int64("chat_id", chatID).
		Str("path", artifactPath).
		Msg("Voice reply sent")

	return nil
}

// SendTyping shows the typing indicator in a chat
func (b *Bot) SendTyping(chatID int64) error {
	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	if _, err := b.api.Request(action); err != nil {
		return fmt.Errorf("failed to send typing action: %w", err)
	}
	return nil
}

// GetBotInfo returns bot information
func (b *Bot) GetBotInfo() map[string]interface{} {
	return map[string]interface{}{
		"username":  b.api.Self.UserName,
		"id":        b.api.Self.ID,
		"firstName": b.api.Self.FirstName,
		"running":   b.IsRunning(),
	}
}

// SetMessageHandler sets the text message handler
func (b *Bot) SetMessageHandler(handler MessageHandler) {
	b.messageHandler = handler
}

// SetCommandHandler sets the command handler
func (b *Bot) SetCommandHandler(handler CommandHandler) {
	b.commandHandler = handler
}

// SetVoiceHandler sets the voice note handler
func (b *Bot) SetVoiceHandler(handler VoiceHandler) {
	b.voiceHandler = handler
}

// GetAPI returns the underlying bot API
func (b *Bot) GetAPI() *tgbotapi.BotAPI {
	return b.api
}

// IsRunning returns whether the bot is running
func (b *Bot) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// WaitForReady waits for the bot to be ready
func (b *Bot) WaitForReady(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if b.IsRunning() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("bot did not become ready within timeout")
}

// SessionID maps a chat onto its game session
func SessionID(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

// ChatID parses a session id back into a chat id
func ChatID(sessionID string) (int64, error) {
	id, err := strconv.ParseInt(sessionID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("session %q is not a telegram chat: %w", sessionID, err)
	}
	return id, nil
}

// ValidateToken validates a bot token by attempting to authenticate
func ValidateToken(token string) error {
	if token == "" {
		return fmt.Errorf("bot token is empty")
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return fmt.Errorf("invalid bot token: %w", err)
	}

	if api.Self.UserName == "" {
		return fmt.Errorf("failed to get bot info")
	}

	return nil
}
