package telegram

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ashureev/whisper-relay/internal/domain"
)

// Dispatcher consumes platform-neutral events.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev domain.Event) error
}

// ToEvent converts an update into an Event. It returns false for update
// kinds the relay does not handle.
func ToEvent(u tgbotapi.Update) (domain.Event, bool) {
	switch {
	case u.Message != nil:
		return messageEvent(u.Message)
	case u.InlineQuery != nil:
		q := u.InlineQuery
		if q.From == nil {
			return domain.Event{}, false
		}
		return domain.Event{
			Kind:       domain.EventQuery,
			Sender:     sender(q.From),
			ChatID:     q.From.ID,
			Text:       q.Query,
			CallbackID: q.ID,
		}, true
	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		if cq.From == nil {
			return domain.Event{}, false
		}
		ev := domain.Event{
			Kind:       domain.EventAction,
			Sender:     sender(cq.From),
			ChatID:     cq.From.ID,
			Text:       cq.Data,
			CallbackID: cq.ID,
		}
		// Buttons on inline results arrive without the message.
		if cq.Message != nil && cq.Message.Chat != nil {
			ev.ChatID = cq.Message.Chat.ID
			ev.MessageID = cq.Message.MessageID
		}
		return ev, true
	default:
		return domain.Event{}, false
	}
}

func messageEvent(m *tgbotapi.Message) (domain.Event, bool) {
	if m.From == nil || m.Chat == nil {
		return domain.Event{}, false
	}
	ev := domain.Event{
		Sender:    sender(m.From),
		ChatID:    m.Chat.ID,
		Text:      m.Text,
		MessageID: m.MessageID,
	}
	switch {
	case m.IsCommand():
		ev.Kind = domain.EventCommand
		ev.Command = m.Command()
		ev.Args = m.CommandArguments()
	case m.Text != "":
		ev.Kind = domain.EventText
	default:
		ev.Kind = domain.EventContent
	}
	return ev, true
}

func sender(u *tgbotapi.User) domain.Sender {
	return domain.Sender{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName}
}

func dispatchUpdate(ctx context.Context, d Dispatcher, u tgbotapi.Update) {
	ev, ok := ToEvent(u)
	if !ok {
		slog.Debug("Skipping unsupported update", "update_id", u.UpdateID)
		return
	}
	dispatchEvent(ctx, d, u.UpdateID, ev)
}

func dispatchEvent(ctx context.Context, d Dispatcher, updateID int, ev domain.Event) {
	if err := d.Dispatch(ctx, ev); err != nil {
		slog.Error("Failed to handle update", "update_id", updateID, "user_id", ev.Sender.ID, "kind", ev.Kind.String(), "error", err)
	}
}
