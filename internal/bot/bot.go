// Package bot routes Telegram updates to the canned-response handlers.
//
// Commands are matched first, then regular messages by content type, then
// chat service messages. Failures to reply are logged against the user and
// never reach the poll loop.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/telegram"
)

// Sender is the subset of the Bot API the handlers reply through.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) (*telegram.Message, error)
	AnswerCallbackQuery(ctx context.Context, queryID, text string) error
}

// Bot dispatches updates. It implements telegram.Handler.
type Bot struct {
	api Sender
	log *slog.Logger

	onCommand  func(context.Context, *telegram.Message)
	onMessage  func(context.Context, *telegram.Message)
	onEdited   func(context.Context, *telegram.Message)
	onCallback func(context.Context, *telegram.CallbackQuery)
	onService  func(context.Context, *telegram.Message)
}

// New creates a Bot replying through api.
func New(api Sender, log *slog.Logger) *Bot {
	if log == nil {
		log = slog.Default()
	}
	b := &Bot{api: api, log: log}
	b.onCommand = logged(log, "command", b.handleCommand)
	b.onMessage = logged(log, "message", b.handleMessage)
	b.onEdited = logged(log, "edited_message", b.handleEdited)
	b.onCallback = logged(log, "callback_query", b.handleCallback)
	b.onService = logged(log, "service_message", b.handleService)
	return b
}

// logged wraps fn so every call is recorded with the handler name and how
// long it ran.
func logged[T any](log *slog.Logger, name string, fn func(context.Context, T)) func(context.Context, T) {
	return func(ctx context.Context, arg T) {
		start := time.Now()
		log.Debug("handler called", "handler", name)
		fn(ctx, arg)
		log.Debug("handler returned", "handler", name, "elapsed", time.Since(start))
	}
}

// HandleUpdate routes u to the matching handler.
func (b *Bot) HandleUpdate(ctx context.Context, u telegram.Update) {
	switch {
	case u.Message != nil:
		m := u.Message
		if _, ok := m.Command(); ok {
			b.onCommand(ctx, m)
			return
		}
		if serviceKinds[m.ContentType()] {
			b.onService(ctx, m)
			return
		}
		b.onMessage(ctx, m)
	case u.EditedMessage != nil:
		b.onEdited(ctx, u.EditedMessage)
	case u.CallbackQuery != nil:
		b.onCallback(ctx, u.CallbackQuery)
	default:
		b.log.Debug("update ignored", "update_id", u.UpdateID, "kind", u.Kind())
	}
}

// ///////////////////////////////////////////////
// Handlers
// ///////////////////////////////////////////////

func (b *Bot) handleCommand(ctx context.Context, m *telegram.Message) {
	cmd, _ := m.Command()
	b.log.Info("command received", "user", senderID(m), "command", "/"+cmd)

	var reply string
	switch cmd {
	case "start":
		reply = replyStart
	case "help":
		reply = replyHelp
	default:
		reply = replyUnknownCommand
	}
	b.send(ctx, m, reply)
}

func (b *Bot) handleMessage(ctx context.Context, m *telegram.Message) {
	kind := m.ContentType()
	b.log.Info("message received", "user", senderID(m), "content_type", kind)

	reply, ok := mediaReplies[kind]
	switch {
	case kind == "text":
		reply = fmt.Sprintf(replyTextFormat, m.Text)
	case !ok:
		reply = replyUnknownMessage
	}
	b.send(ctx, m, reply)
}

func (b *Bot) handleEdited(ctx context.Context, m *telegram.Message) {
	kind := m.ContentType()
	b.log.Info("message edited", "user", senderID(m), "content_type", kind)

	reply, ok := editedReplies[kind]
	switch {
	case kind == "text":
		reply = fmt.Sprintf(replyEditedTextFormat, m.Text)
	case !ok:
		reply = replyUnknownEdit
	}
	b.send(ctx, m, reply)
}

func (b *Bot) handleCallback(ctx context.Context, q *telegram.CallbackQuery) {
	b.log.Info("inline button pressed", "user", q.From.ID, "data", q.Data)

	reply, ok := callbackReplies[q.Data]
	if !ok {
		reply = replyUnknownAction
	}
	if err := b.api.AnswerCallbackQuery(ctx, q.ID, reply); err != nil {
		b.replyFailed("answer callback query", q.From.ID, err)
	}
}

func (b *Bot) handleService(ctx context.Context, m *telegram.Message) {
	switch kind := m.ContentType(); kind {
	case "new_chat_members":
		for _, member := range m.NewChatMembers {
			b.log.Info("member joined chat", "user", member.ID, "chat", m.Chat.ID)
			if _, err := b.api.SendMessage(ctx, m.Chat.ID, fmt.Sprintf(replyGreetFormat, member.FirstName)); err != nil {
				b.replyFailed("greet member", member.ID, err)
			}
		}
	case "left_chat_member":
		left := m.LeftChatMember
		b.log.Info("member left chat", "user", left.ID, "chat", m.Chat.ID)
		if _, err := b.api.SendMessage(ctx, m.Chat.ID, fmt.Sprintf(replyFarewellFormat, left.FirstName)); err != nil {
			b.replyFailed("announce leaving member", left.ID, err)
		}
	case "pinned_message":
		text := m.PinnedMessage.Text
		if text == "" {
			text = "(no text)"
		}
		b.log.Info("message pinned", "chat", m.Chat.ID, "text", text)
	default:
		b.log.Info("service message", "chat", m.Chat.ID, "content_type", kind)
	}
}

// ///////////////////////////////////////////////
// Helpers
// ///////////////////////////////////////////////

// send replies to the chat m came from, logging a failure against its sender.
func (b *Bot) send(ctx context.Context, m *telegram.Message, text string) {
	if _, err := b.api.SendMessage(ctx, m.Chat.ID, text); err != nil {
		b.replyFailed("send message", senderID(m), err)
	}
}

func (b *Bot) replyFailed(action string, user int64, err error) {
	if errors.Is(err, telegram.ErrStopped) || errors.Is(err, context.Canceled) {
		b.log.Debug("reply dropped on stop", "action", action, "user", user)
		return
	}
	b.log.Error("reply failed", "action", action, "user", user, "error", err)
}

// senderID returns the sending user's ID, or the chat ID for anonymous
// senders such as channels.
func senderID(m *telegram.Message) int64 {
	if m.From != nil {
		return m.From.ID
	}
	return m.Chat.ID
}
