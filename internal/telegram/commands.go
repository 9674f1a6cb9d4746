package telegram

import (
	"context"
	"fmt"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Commands is the bot's slash-command menu
type Commands struct {
	bot      *Bot
	logger   zerolog.Logger
	handlers map[string]command
}

type command struct {
	description string
	handler     CommandFunc
}

// CommandFunc handles one slash command
type CommandFunc func(context.Context, CommandContext) error

// CommandContext is a command message split into name and arguments
type CommandContext struct {
	MessageContext
	Command string
	Args    []string
	RawArgs string
}

// NewCommands creates a menu that answers /help from its own entries
func NewCommands(bot *Bot) *Commands {
	c := &Commands{
		bot:      bot,
		logger:   bot.logger.With().Str("module", "commands").Logger(),
		handlers: make(map[string]command),
	}
	c.Register("help", "List the commands", c.help)
	return c
}

// Register adds or replaces a command
func (c *Commands) Register(name, description string, handler CommandFunc) {
	c.handlers[name] = command{description: description, handler: handler}
	c.logger.Debug().Str("command", name).Msg("Command registered")
}

// BotCommands returns the menu in name order, as Telegram expects it
func (c *Commands) BotCommands() []tgbotapi.BotCommand {
	out := make([]tgbotapi.BotCommand, 0, len(c.handlers))
	for name, cmd := range c.handlers {
		out = append(out, tgbotapi.BotCommand{Command: name, Description: cmd.description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	return out
}

// Publish sends the menu to Telegram so clients can suggest it
func (c *Commands) Publish() error {
	menu := c.BotCommands()
	if _, err := c.bot.api.Request(tgbotapi.NewSetMyCommands(menu...)); err != nil {
		return fmt.Errorf("failed to set commands: %w", err)
	}

	c.logger.Info().Int("count", len(menu)).Msg("Bot commands published")
	return nil
}

// HandleCommand dispatches a command message. In group chats a command
// addressed to another bot (/start@otherbot) is ignored.
func (c *Commands) HandleCommand(ctx context.Context, update tgbotapi.Update) error {
	msg := update.Message
	if msg == nil || !msg.IsCommand() {
		return nil
	}

	if _, target, ok := strings.Cut(msg.CommandWithAt(), "@"); ok && !strings.EqualFold(target, c.bot.api.Self.UserName) {
		c.logger.Debug().
			Int64("chat_id", msg.Chat.ID).
			Str("target", target).
			Msg("Ignoring command for another bot")
		return nil
	}

	cc := CommandContext{
		MessageContext: newMessageContext(msg),
		Command:        msg.Command(),
		Args:           strings.Fields(msg.CommandArguments()),
		RawArgs:        msg.CommandArguments(),
	}
	cc.Text = msg.Text

	c.logger.Debug().
		Int64("chat_id", cc.ChatID).
		Str("command", cc.Command).
		Msg("Command received")

	cmd, ok := c.handlers[cc.Command]
	if !ok {
		return c.reply(cc, fmt.Sprintf("I don't know /%s. Send /help to see what I can do.", cc.Command))
	}
	return cmd.handler(ctx, cc)
}

func (c *Commands) help(_ context.Context, cc CommandContext) error {
	var b strings.Builder
	for _, cmd := range c.BotCommands() {
		fmt.Fprintf(&b, "/%s - %s\n", cmd.Command, cmd.Description)
	}
	b.WriteString("\nAnything else you write or say is your next move.")
	return c.reply(cc, b.String())
}

func (c *Commands) reply(cc CommandContext, text string) error {
	return c.bot.SendMessageWithReply(cc.ChatID, text, cc.MessageID)
}
