// Package telegram hosts the two chat front-ends of the support desk: the
// user bot that requesters talk to and the admin bot used by support staff.
// Both reach the store only through the HTTP API; outbound messages go
// through a rate-limited Sender that also serves as the notification
// Deliverer.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-support-desk/internal/notify"
	"github.com/tbourn/go-support-desk/internal/sysutil"
	"github.com/tbourn/go-support-desk/internal/utils"
)

// CallbackIssuePrefix prefixes the callback data of "open issue" buttons.
const CallbackIssuePrefix = "issue:"

// maxMessageRunes is Telegram's limit for one text message.
const maxMessageRunes = 4096

var sent = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "telegram_messages_sent_total",
	Help: "Outbound Telegram messages by bot and result.",
}, []string{"bot", "result"})

var updates = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "telegram_updates_total",
	Help: "Inbound Telegram updates by bot and kind.",
}, []string{"bot", "kind"})

func init() {
	prometheus.MustRegister(sent, updates)
}

// BotAPI is the subset of *tgbotapi.BotAPI used here.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Sender sends text messages through one bot, at most rps per second.
type Sender struct {
	api     BotAPI
	bot     string
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewSender wraps api. rps <= 0 disables pacing.
func NewSender(api BotAPI, bot string, rps float64, logger zerolog.Logger) *Sender {
	lim := rate.NewLimiter(rate.Inf, 1)
	if rps > 0 {
		lim = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &Sender{api: api, bot: bot, limiter: lim, logger: logger}
}

// Deliver implements notify.Deliverer. Notices with OpenIssue carry a
// "View Issue" button whose callback focuses the issue in the admin bot.
func (s *Sender) Deliver(ctx context.Context, chatID string, n notify.Notice) error {
	id, err := utils.ParseChatID(chatID)
	if err != nil {
		return fmt.Errorf("deliver to %q: %w", chatID, err)
	}
	msg := tgbotapi.NewMessage(id, clip(n.Text))
	if n.OpenIssue && n.IssueID != "" {
		msg.ReplyMarkup = issueKeyboard(IssueButton{Label: "View Issue", IssueID: n.IssueID})
	}
	return s.send(ctx, msg)
}

// Reply answers a chat message. markup may be nil.
func (s *Sender) Reply(ctx context.Context, chatID int64, replyTo int, text string, markup any) error {
	msg := tgbotapi.NewMessage(chatID, clip(text))
	msg.ReplyToMessageID = replyTo
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	return s.send(ctx, msg)
}

// Edit replaces the text of a message the bot sent earlier.
func (s *Sender) Edit(ctx context.Context, chatID int64, messageID int, text string) error {
	return s.send(ctx, tgbotapi.NewEditMessageText(chatID, messageID, clip(text)))
}

// AnswerCallback acknowledges a button press so the client stops spinning.
func (s *Sender) AnswerCallback(id string) {
	if _, err := s.api.Request(tgbotapi.NewCallback(id, "")); err != nil {
		s.logger.Debug().Err(err).Msg("callback answer failed")
	}
}

// send paces c and retries once when Telegram asks to back off.
func (s *Sender) send(ctx context.Context, c tgbotapi.Chattable) error {
	for attempt := 0; ; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			sent.WithLabelValues(s.bot, "canceled").Inc()
			return err
		}
		_, err := s.api.Send(c)
		if err == nil {
			sent.WithLabelValues(s.bot, "ok").Inc()
			return nil
		}

		var te *tgbotapi.Error
		if attempt == 0 && errors.As(err, &te) && te.RetryAfter > 0 {
			wait := time.Duration(te.RetryAfter) * time.Second
			s.logger.Warn().Dur("retry_after", wait).Msg("telegram flood control")
			select {
			case <-ctx.Done():
				sent.WithLabelValues(s.bot, "canceled").Inc()
				return errors.Join(err, ctx.Err())
			case <-time.After(wait):
			}
			continue
		}
		sent.WithLabelValues(s.bot, "error").Inc()
		return err
	}
}

// IssueButton is one row of an issue keyboard.
type IssueButton struct {
	Label   string
	IssueID string
}

func issueKeyboard(buttons ...IssueButton) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(b.Label, CallbackIssuePrefix+b.IssueID),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// clip keeps the tail of over-long texts, which is where the newest
// messages of a thread are.
func clip(s string) string {
	r := []rune(s)
	if len(r) <= maxMessageRunes {
		return s
	}
	const marker = "…\n"
	return marker + string(r[len(r)-(maxMessageRunes-len([]rune(marker))):])
}

// displayName picks the name a requester or admin is stored under: the
// @handle, else the full name, else prefix plus chat id.
func displayName(u *tgbotapi.User, fallbackPrefix string, chatID int64) string {
	var handle, full string
	if u != nil {
		if strings.TrimSpace(u.UserName) != "" {
			handle = "@" + u.UserName
		}
		full = strings.TrimSpace(u.FirstName + " " + u.LastName)
	}
	return sysutil.FirstNonEmpty(handle, full, fallbackPrefix+utils.FormatChatID(chatID))
}
