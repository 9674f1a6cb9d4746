package telegram

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Telegram shows a chat action for about five seconds
const defaultPresenceInterval = 4 * time.Second

// Presence keeps the typing indicator visible while a turn is worked on
type Presence struct {
	bot      *Bot
	logger   zerolog.Logger
	interval time.Duration
}

// NewPresence creates a presence keeper
func NewPresence(bot *Bot) *Presence {
	return &Presence{
		bot:      bot,
		logger:   bot.logger.With().Str("module", "presence").Logger(),
		interval: defaultPresenceInterval,
	}
}

// Keep sends the typing action now and then on every tick until stop is called
// or ctx is done. stop is idempotent.
func (p *Presence) Keep(ctx context.Context, chatID int64) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			if err := p.bot.SendTyping(chatID); err != nil {
				p.logger.Debug().Err(err).Int64("chat_id", chatID).Msg("Typing indicator failed")
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
