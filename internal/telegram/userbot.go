package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-support-desk/internal/apiclient"
	"github.com/tbourn/go-support-desk/internal/domain"
	"github.com/tbourn/go-support-desk/internal/utils"
)

// UserAPI is the part of the HTTP API the user bot calls.
type UserAPI interface {
	GetActiveIssue(ctx context.Context, chatID string) (*domain.Issue, error)
	CreateIssue(ctx context.Context, chatID, username string) (*domain.Issue, error)
	PostUserMessage(ctx context.Context, issueID, text, idemKey string) (*apiclient.MessageResult, error)
	Escalate(ctx context.Context, issueID string) (*domain.Issue, error)
	CloseIssue(ctx context.Context, issueID string) (*domain.Issue, error)
}

// Replier answers in a chat.
type Replier interface {
	Reply(ctx context.Context, chatID int64, replyTo int, text string, markup any) error
}

const (
	userWelcome = "Welcome to customer support! 👋\n\n" +
		"Just write your question and I'll answer right away.\n" +
		"Use /new to open a new support request.\n" +
		"Use /status to check your current request.\n" +
		"Use /manual to talk to a human.\n" +
		"Use /close to close your current request.\n" +
		"Use /help to see all commands."
	userHelp = "Available commands:\n\n" +
		"/start - Start the bot\n" +
		"/new - Open a new support request\n" +
		"/status - Check your current request\n" +
		"/manual - Talk to a human\n" +
		"/close - Close your current request\n" +
		"/help - Show this help"
	userNoIssue    = "You don't have an active support request.\nUse /new to open one."
	userTechnical  = "Sorry, something went wrong on our side. Please try again later."
	userEscalated  = "Your request has been passed to our support team.\nA human agent will reply here shortly."
	userNoAnswer   = "Sorry, I couldn't come up with an answer right now. Your message was saved; use /manual to reach a human."
	userClosedNote = "This request is closed. Use /new to open a new one."
)

// UserBot serves requesters. Plain text goes to the requester's active
// issue, opening one on first contact; the automatic reply, if any, is sent
// back. Admin replies arrive separately through the notification router.
type UserBot struct {
	API    UserAPI
	Out    Replier
	Logger zerolog.Logger
}

// HandleUpdate implements UpdateHandler.
func (b *UserBot) HandleUpdate(ctx context.Context, u tgbotapi.Update) {
	m := u.Message
	if m == nil || m.Chat == nil {
		return
	}
	if m.IsCommand() {
		switch m.Command() {
		case "start":
			b.reply(ctx, m, userWelcome)
		case "help":
			b.reply(ctx, m, userHelp)
		case "new":
			b.newIssue(ctx, m)
		case "status":
			b.status(ctx, m)
		case "manual":
			b.manual(ctx, m)
		case "close":
			b.close(ctx, m)
		default:
			b.reply(ctx, m, "Unknown command. Use /help to see all commands.")
		}
		return
	}
	if m.Text == "" {
		return
	}
	b.text(ctx, m)
}

func (b *UserBot) newIssue(ctx context.Context, m *tgbotapi.Message) {
	chatID := utils.FormatChatID(m.Chat.ID)
	is, err := b.API.GetActiveIssue(ctx, chatID)
	switch {
	case err == nil:
		b.reply(ctx, m, fmt.Sprintf("You already have an active support request (ID: %s).\nCurrent status: %s\n\nJust send your messages and I'll help you!",
			is.ID, statusLabel(is.Status)))
		return
	case !apiclient.IsNotFound(err):
		b.fail(ctx, m, "new", err)
		return
	}

	is, err = b.API.CreateIssue(ctx, chatID, displayName(m.From, "user_", m.Chat.ID))
	if err != nil {
		b.fail(ctx, m, "new", err)
		return
	}
	b.reply(ctx, m, fmt.Sprintf("Support request created (ID: %s).\n\nPlease describe your issue and I'll do my best to help.", is.ID))
}

func (b *UserBot) status(ctx context.Context, m *tgbotapi.Message) {
	is, ok := b.active(ctx, m, "status")
	if !ok {
		return
	}
	b.reply(ctx, m, fmt.Sprintf("Your support request (ID: %s)\nStatus: %s", is.ID, statusLabel(is.Status)))
}

func (b *UserBot) manual(ctx context.Context, m *tgbotapi.Message) {
	is, ok := b.active(ctx, m, "manual")
	if !ok {
		return
	}
	if _, err := b.API.Escalate(ctx, is.ID); err != nil {
		if apiclient.HasCode(err, apiclient.CodeAlreadyManual) {
			b.reply(ctx, m, "Your request is already with our support team.")
			return
		}
		b.fail(ctx, m, "manual", err)
		return
	}
	b.reply(ctx, m, userEscalated)
}

func (b *UserBot) close(ctx context.Context, m *tgbotapi.Message) {
	is, ok := b.active(ctx, m, "close")
	if !ok {
		return
	}
	if _, err := b.API.CloseIssue(ctx, is.ID); err != nil {
		b.fail(ctx, m, "close", err)
		return
	}
	b.reply(ctx, m, fmt.Sprintf("Your support request (ID: %s) has been closed.\nThank you for contacting support!", is.ID))
}

func (b *UserBot) text(ctx context.Context, m *tgbotapi.Message) {
	chatID := utils.FormatChatID(m.Chat.ID)
	is, err := b.API.GetActiveIssue(ctx, chatID)
	if apiclient.IsNotFound(err) {
		is, err = b.API.CreateIssue(ctx, chatID, displayName(m.From, "user_", m.Chat.ID))
	}
	if err != nil {
		b.fail(ctx, m, "message", err)
		return
	}

	key := fmt.Sprintf("tg-%d-%d", m.Chat.ID, m.MessageID)
	res, err := b.API.PostUserMessage(ctx, is.ID, m.Text, key)
	switch {
	case err == nil:
	case apiclient.HasCode(err, apiclient.CodeResponderFailed):
		b.Logger.Warn().Err(err).Str("issue_id", is.ID).Msg("no automatic reply")
		b.reply(ctx, m, userNoAnswer)
		return
	case apiclient.HasCode(err, apiclient.CodeIssueClosed):
		b.reply(ctx, m, userClosedNote)
		return
	default:
		b.fail(ctx, m, "message", err)
		return
	}
	if res.Reply != nil && res.Reply.Text != "" {
		b.reply(ctx, m, res.Reply.Text)
	}
}

// active loads the chat's issue, answering the requester when there is none.
func (b *UserBot) active(ctx context.Context, m *tgbotapi.Message, op string) (*domain.Issue, bool) {
	is, err := b.API.GetActiveIssue(ctx, utils.FormatChatID(m.Chat.ID))
	switch {
	case err == nil:
		return is, true
	case apiclient.IsNotFound(err):
		b.reply(ctx, m, userNoIssue)
	default:
		b.fail(ctx, m, op, err)
	}
	return nil, false
}

func (b *UserBot) fail(ctx context.Context, m *tgbotapi.Message, op string, err error) {
	b.Logger.Error().Err(err).Str("op", op).Int64("chat_id", m.Chat.ID).Msg("user bot request failed")
	b.reply(ctx, m, userTechnical)
}

func (b *UserBot) reply(ctx context.Context, m *tgbotapi.Message, text string) {
	if err := b.Out.Reply(ctx, m.Chat.ID, m.MessageID, text, nil); err != nil {
		b.Logger.Error().Err(err).Int64("chat_id", m.Chat.ID).Msg("reply failed")
	}
}

func statusLabel(s domain.IssueStatus) string {
	switch s {
	case domain.StatusOpen:
		return "Active (AI assistance)"
	case domain.StatusManual:
		return "Active (human assistance)"
	case domain.StatusClosed:
		return "Closed"
	}
	return string(s)
}
