package telegram

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// UpdateHandler processes one inbound update.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u tgbotapi.Update)
}

// Poller long-polls a bot and hands updates to a handler. Updates of the
// same chat are handled in arrival order; different chats run in parallel
// across a fixed number of shards.
type Poller struct {
	API     BotAPI
	Bot     string
	Handler UpdateHandler
	Logger  zerolog.Logger

	Shards      int           // default 8
	PollTimeout int           // long-poll seconds, default 30
	Timeout     time.Duration // bound on one update, default 60s
}

// Run polls until ctx is done and waits for in-flight updates.
func (p *Poller) Run(ctx context.Context) error {
	shards := p.Shards
	if shards <= 0 {
		shards = 8
	}
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = p.PollTimeout
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30
	}

	queues := make([]chan tgbotapi.Update, shards)
	var wg sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan tgbotapi.Update, 16)
		wg.Add(1)
		go func(q <-chan tgbotapi.Update) {
			defer wg.Done()
			for u := range q {
				p.handle(ctx, u)
			}
		}(queues[i])
	}

	in := p.API.GetUpdatesChan(cfg)
	p.Logger.Info().Str("bot", p.Bot).Msg("polling for updates")

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case u, ok := <-in:
			if !ok {
				break loop
			}
			updates.WithLabelValues(p.Bot, updateKind(u)).Inc()
			q := queues[shardOf(chatOf(u), shards)]
			select {
			case q <- u:
			case <-ctx.Done():
				break loop
			}
		}
	}

	p.API.StopReceivingUpdates()
	for _, q := range queues {
		close(q)
	}
	wg.Wait()
	return nil
}

func (p *Poller) handle(ctx context.Context, u tgbotapi.Update) {
	if ctx.Err() != nil {
		return
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			p.Logger.Error().
				Str("bot", p.Bot).
				Int("update_id", u.UpdateID).
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("update handler panicked")
		}
	}()
	p.Handler.HandleUpdate(ctx, u)
}

func chatOf(u tgbotapi.Update) int64 {
	switch {
	case u.Message != nil && u.Message.Chat != nil:
		return u.Message.Chat.ID
	case u.CallbackQuery != nil && u.CallbackQuery.Message != nil && u.CallbackQuery.Message.Chat != nil:
		return u.CallbackQuery.Message.Chat.ID
	case u.CallbackQuery != nil && u.CallbackQuery.From != nil:
		return u.CallbackQuery.From.ID
	}
	return 0
}

func shardOf(chatID int64, n int) int {
	if chatID < 0 {
		chatID = -chatID
	}
	return int(chatID % int64(n))
}

func updateKind(u tgbotapi.Update) string {
	switch {
	case u.Message != nil && u.Message.IsCommand():
		return "command"
	case u.Message != nil:
		return "message"
	case u.CallbackQuery != nil:
		return "callback"
	}
	return "other"
}
