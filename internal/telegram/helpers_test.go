package telegram

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

var quiet = zerolog.New(io.Discard)

// fakeBot records what a Sender or Poller pushes through the Bot API.
type fakeBot struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	sendErrs []error // consumed one per Send call
	updates  chan tgbotapi.Update
	stopped  bool
}

func newFakeBot() *fakeBot {
	return &fakeBot{updates: make(chan tgbotapi.Update, 64)}
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return tgbotapi.Message{}, err
		}
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeBot) StopReceivingUpdates() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *fakeBot) sentMessages() []tgbotapi.Chattable {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.Chattable(nil), f.sent...)
}

// outbox records replies, edits and callback answers made by a bot.
type outbox struct {
	mu       sync.Mutex
	replies  []reply
	edits    []reply
	answered []string
	editErr  error
}

type reply struct {
	chatID int64
	msgID  int
	text   string
	markup any
}

func (o *outbox) Reply(_ context.Context, chatID int64, replyTo int, text string, markup any) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.replies = append(o.replies, reply{chatID: chatID, msgID: replyTo, text: text, markup: markup})
	return nil
}

func (o *outbox) Edit(_ context.Context, chatID int64, messageID int, text string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.editErr != nil {
		return o.editErr
	}
	o.edits = append(o.edits, reply{chatID: chatID, msgID: messageID, text: text})
	return nil
}

func (o *outbox) AnswerCallback(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.answered = append(o.answered, id)
}

func (o *outbox) last() reply {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.replies) == 0 {
		return reply{}
	}
	return o.replies[len(o.replies)-1]
}

func (o *outbox) lastEdit() reply {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.edits) == 0 {
		return reply{}
	}
	return o.edits[len(o.edits)-1]
}

func textMsg(chatID int64, msgID int, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: msgID,
		Chat:      &tgbotapi.Chat{ID: chatID},
		From:      &tgbotapi.User{ID: chatID, UserName: "alice", FirstName: "Alice"},
		Text:      text,
	}}
}

func command(chatID int64, msgID int, cmd string) tgbotapi.Update {
	u := textMsg(chatID, msgID, "/"+cmd)
	u.Message.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd) + 1}}
	return u
}

func callback(chatID int64, msgID int, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      fmt.Sprintf("cb-%d", msgID),
		From:    &tgbotapi.User{ID: chatID},
		Message: &tgbotapi.Message{MessageID: msgID, Chat: &tgbotapi.Chat{ID: chatID}},
		Data:    data,
	}}
}

func contains(s, sub string) bool { return strings.Contains(s, sub) }
