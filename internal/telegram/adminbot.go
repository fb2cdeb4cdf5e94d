package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-support-desk/internal/apiclient"
	"github.com/tbourn/go-support-desk/internal/domain"
	"github.com/tbourn/go-support-desk/internal/session"
	"github.com/tbourn/go-support-desk/internal/utils"
)

// AdminAPI is the part of the HTTP API the admin bot calls.
type AdminAPI interface {
	RegisterAdmin(ctx context.Context, chatID, username string) (*domain.Admin, error)
	ListAdmins(ctx context.Context) ([]domain.Admin, error)
	ListManualIssues(ctx context.Context) ([]domain.Issue, error)
	GetIssue(ctx context.Context, id string) (*domain.Issue, error)
	ListMessages(ctx context.Context, issueID string) ([]domain.Message, error)
	PostAdminMessage(ctx context.Context, issueID, text string) (*domain.Message, error)
}

// AdminOut is what the admin bot needs from its Sender.
type AdminOut interface {
	Replier
	Edit(ctx context.Context, chatID int64, messageID int, text string) error
	AnswerCallback(id string)
}

const (
	adminWelcome = "Welcome to the support admin bot! 🛡️\n\n" +
		"Use /register to register yourself as an admin.\n" +
		"Use /issues to list issues waiting for a human.\n" +
		"Use /exit to leave the current issue conversation.\n" +
		"Use /help to see all commands."
	adminHelp = "Available commands:\n\n" +
		"/start - Start the bot\n" +
		"/register - Register yourself as an admin\n" +
		"/issues - List issues waiting for a human\n" +
		"/exit - Leave the current issue conversation\n" +
		"/help - Show this help"
	adminNotRegistered = "You are not registered as an admin.\nUse /register first."
	adminNotFocused    = "You are not currently in any issue conversation.\nUse /issues to list open issues."
	adminTechnical     = "Sorry, something went wrong on our side. Please try again later."
)

// AdminBot serves support staff. Pressing an issue button focuses that
// issue for the admin; while focused, plain text is posted as an Admin
// reply. Focus lives in Focus, which the notification router also reads.
type AdminBot struct {
	API    AdminAPI
	Out    AdminOut
	Focus  *session.FocusTable
	Logger zerolog.Logger

	// AdminCacheTTL bounds how long the allow-list is reused, default 30s.
	AdminCacheTTL time.Duration

	mu        sync.Mutex
	admins    map[string]struct{}
	fetchedAt time.Time
	now       func() time.Time
}

// HandleUpdate implements UpdateHandler.
func (b *AdminBot) HandleUpdate(ctx context.Context, u tgbotapi.Update) {
	if cq := u.CallbackQuery; cq != nil {
		b.callback(ctx, cq)
		return
	}
	m := u.Message
	if m == nil || m.Chat == nil {
		return
	}
	if m.IsCommand() {
		switch m.Command() {
		case "start":
			b.reply(ctx, m, adminWelcome, nil)
		case "help":
			b.reply(ctx, m, adminHelp, nil)
		case "register":
			b.register(ctx, m)
		case "issues":
			b.issues(ctx, m)
		case "exit":
			b.exit(ctx, m)
		default:
			b.reply(ctx, m, "Unknown command. Use /help to see all commands.", nil)
		}
		return
	}
	if m.Text == "" {
		return
	}
	b.text(ctx, m)
}

func (b *AdminBot) register(ctx context.Context, m *tgbotapi.Message) {
	chatID := utils.FormatChatID(m.Chat.ID)
	a, err := b.API.RegisterAdmin(ctx, chatID, displayName(m.From, "admin_", m.Chat.ID))
	switch {
	case err == nil:
		b.invalidate()
		b.reply(ctx, m, fmt.Sprintf("You have been registered as an admin (ID: %s).\n\nYou will now be notified about issues that need a human.", a.ID), nil)
	case apiclient.HasCode(err, apiclient.CodeAdminExists):
		b.reply(ctx, m, "You are already registered as an admin.\nUse /issues to list open issues.", nil)
	default:
		b.fail(ctx, m, "register", err)
	}
}

func (b *AdminBot) issues(ctx context.Context, m *tgbotapi.Message) {
	if !b.allowed(ctx, m) {
		return
	}
	list, err := b.API.ListManualIssues(ctx)
	if err != nil {
		b.fail(ctx, m, "issues", err)
		return
	}
	if len(list) == 0 {
		b.reply(ctx, m, "There are no issues waiting for a human at the moment.", nil)
		return
	}
	buttons := make([]IssueButton, 0, len(list))
	for _, is := range list {
		buttons = append(buttons, IssueButton{
			Label:   fmt.Sprintf("Issue #%s (%s)", is.ID, is.Username),
			IssueID: is.ID,
		})
	}
	b.reply(ctx, m, fmt.Sprintf("Found %d issues waiting for a human.\n\nSelect one to view and respond:", len(list)), issueKeyboard(buttons...))
}

func (b *AdminBot) exit(ctx context.Context, m *tgbotapi.Message) {
	issueID, ok := b.Focus.Clear(utils.FormatChatID(m.Chat.ID))
	if !ok {
		b.reply(ctx, m, adminNotFocused, nil)
		return
	}
	b.reply(ctx, m, fmt.Sprintf("You have left the conversation for Issue #%s.\nUse /issues to list open issues.", issueID), nil)
}

func (b *AdminBot) callback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	b.Out.AnswerCallback(cq.ID)
	if !strings.HasPrefix(cq.Data, CallbackIssuePrefix) || cq.Message == nil || cq.Message.Chat == nil {
		return
	}
	issueID := strings.TrimPrefix(cq.Data, CallbackIssuePrefix)
	m := cq.Message
	if !b.allowed(ctx, m) {
		return
	}

	is, err := b.API.GetIssue(ctx, issueID)
	if err != nil {
		b.editOrReply(ctx, m, b.lookupError(issueID, err))
		return
	}
	if is.Status == domain.StatusClosed {
		b.editOrReply(ctx, m, fmt.Sprintf("Issue #%s is closed.", issueID))
		return
	}
	msgs, err := b.API.ListMessages(ctx, issueID)
	if err != nil {
		b.editOrReply(ctx, m, b.lookupError(issueID, err))
		return
	}

	b.Focus.Focus(utils.FormatChatID(m.Chat.ID), issueID)
	b.editOrReply(ctx, m, ThreadText(*is, msgs))
}

func (b *AdminBot) text(ctx context.Context, m *tgbotapi.Message) {
	chatID := utils.FormatChatID(m.Chat.ID)
	issueID, ok := b.Focus.Active(chatID)
	if !ok {
		b.reply(ctx, m, adminNotFocused, nil)
		return
	}
	if !b.allowed(ctx, m) {
		b.Focus.Clear(chatID)
		return
	}

	_, err := b.API.PostAdminMessage(ctx, issueID, m.Text)
	switch {
	case err == nil:
	case apiclient.HasCode(err, apiclient.CodeIssueClosed), apiclient.IsNotFound(err):
		for _, admin := range b.Focus.ClearIssue(issueID) {
			b.Logger.Info().Str("issue_id", issueID).Str("admin", admin).Msg("focus dropped")
		}
		b.reply(ctx, m, fmt.Sprintf("Issue #%s is closed; your message was not sent.\nUse /issues to list open issues.", issueID), nil)
	default:
		b.fail(ctx, m, "reply", err)
	}
}

// ThreadText renders an issue thread for an admin.
func ThreadText(is domain.Issue, msgs []domain.Message) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Issue #%s\nUser: %s\nStatus: %s\n\nMessages:\n", is.ID, is.Username, is.Status)
	if len(msgs) == 0 {
		sb.WriteString("(none yet)\n")
	}
	for _, msg := range msgs {
		fmt.Fprintf(&sb, "\n[%s]\n%s\n", msg.Sender, msg.Text)
	}
	sb.WriteString("\nReply here to respond to the user.\nUse /exit to leave this conversation.")
	return sb.String()
}

func (b *AdminBot) lookupError(issueID string, err error) string {
	if apiclient.IsNotFound(err) {
		return fmt.Sprintf("Issue #%s no longer exists.", issueID)
	}
	b.Logger.Error().Err(err).Str("issue_id", issueID).Msg("issue lookup failed")
	return adminTechnical
}

// allowed checks the admin allow-list, answering non-admins.
func (b *AdminBot) allowed(ctx context.Context, m *tgbotapi.Message) bool {
	ok, err := b.isAdmin(ctx, utils.FormatChatID(m.Chat.ID))
	if err != nil {
		b.fail(ctx, m, "allow-list", err)
		return false
	}
	if !ok {
		b.reply(ctx, m, adminNotRegistered, nil)
	}
	return ok
}

func (b *AdminBot) isAdmin(ctx context.Context, chatID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock()
	ttl := b.AdminCacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if b.admins == nil || now.Sub(b.fetchedAt) >= ttl {
		list, err := b.API.ListAdmins(ctx)
		if err != nil {
			return false, err
		}
		b.admins = make(map[string]struct{}, len(list))
		for _, a := range list {
			b.admins[a.ChatID] = struct{}{}
		}
		b.fetchedAt = now
	}
	_, ok := b.admins[chatID]
	return ok, nil
}

func (b *AdminBot) invalidate() {
	b.mu.Lock()
	b.admins = nil
	b.mu.Unlock()
}

func (b *AdminBot) clock() time.Time {
	if b.now != nil {
		return b.now()
	}
	return time.Now()
}

func (b *AdminBot) editOrReply(ctx context.Context, m *tgbotapi.Message, text string) {
	if err := b.Out.Edit(ctx, m.Chat.ID, m.MessageID, text); err == nil {
		return
	}
	if err := b.Out.Reply(ctx, m.Chat.ID, 0, text, nil); err != nil {
		b.Logger.Error().Err(err).Int64("chat_id", m.Chat.ID).Msg("reply failed")
	}
}

func (b *AdminBot) fail(ctx context.Context, m *tgbotapi.Message, op string, err error) {
	b.Logger.Error().Err(err).Str("op", op).Int64("chat_id", m.Chat.ID).Msg("admin bot request failed")
	b.reply(ctx, m, adminTechnical, nil)
}

func (b *AdminBot) reply(ctx context.Context, m *tgbotapi.Message, text string, markup any) {
	if err := b.Out.Reply(ctx, m.Chat.ID, m.MessageID, text, markup); err != nil {
		b.Logger.Error().Err(err).Int64("chat_id", m.Chat.ID).Msg("reply failed")
	}
}
