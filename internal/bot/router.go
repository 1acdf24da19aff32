// Package bot routes inbound platform events to the relay components.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/ashureev/whisper-relay/internal/conversation"
	"github.com/ashureev/whisper-relay/internal/directory"
	"github.com/ashureev/whisper-relay/internal/domain"
	"github.com/ashureev/whisper-relay/internal/identity"
	"github.com/ashureev/whisper-relay/internal/messenger"
	"github.com/ashureev/whisper-relay/internal/metrics"
	"github.com/ashureev/whisper-relay/internal/store"
)

const (
	// MenuText is the label of the persistent reply-keyboard shortcut.
	MenuText = "Menu"

	deliveryFailedText = "Не удалось отправить сообщение."
	nothingToSendText  = "Нечего отправлять"
	stalePreviewText   = "Это сообщение устарело"
)

// Route is one entry of the dispatch table. States and Match are optional;
// an empty States matches every state.
type Route struct {
	Name   string
	Kind   domain.EventKind
	States []domain.ConversationState
	Match  func(ev domain.IdentifiedEvent) bool
	Handle func(ctx context.Context, ev domain.IdentifiedEvent) error
}

func (rt Route) matches(ev domain.IdentifiedEvent, state domain.ConversationState) bool {
	if rt.Kind != ev.Kind {
		return false
	}
	if len(rt.States) > 0 && !slices.Contains(rt.States, state) {
		return false
	}
	return rt.Match == nil || rt.Match(ev)
}

// Router serializes events per sender, resolves identity once and hands
// each event to the first matching route.
type Router struct {
	machine   *conversation.Machine
	directory *directory.Directory
	admin     *Admin
	msgr      messenger.Messenger
	metrics   *metrics.Metrics

	routes []Route
	handle identity.Handler
}

// NewRouter wires the dispatch table.
func NewRouter(
	resolver *identity.Resolver,
	machine *conversation.Machine,
	dir *directory.Directory,
	repo store.Repository,
	msgr messenger.Messenger,
	m *metrics.Metrics,
) *Router {
	r := &Router{
		machine:   machine,
		directory: dir,
		admin:     NewAdmin(repo, machine, dir, msgr),
		msgr:      msgr,
		metrics:   m,
	}
	r.routes = r.table()
	r.handle = identity.Middleware(resolver)(r.route)
	return r
}

func (r *Router) table() []Route {
	awaitingMessage := []domain.ConversationState{domain.StateAwaitingMessage}
	return []Route{
		{Name: "start", Kind: domain.EventCommand, Match: command("start"), Handle: r.machine.Restart},
		{Name: "menu", Kind: domain.EventCommand, Match: command("menu"), Handle: r.showMenu},
		{Name: "menu_shortcut", Kind: domain.EventText, Match: textIs(MenuText), Handle: r.showMenu},
		{Name: "block", Kind: domain.EventCommand, Match: command(blockCommand), Handle: r.admin.Block},
		{Name: "unblock", Kind: domain.EventCommand, Match: command(unblockCommand), Handle: r.admin.Unblock},
		{Name: "directory", Kind: domain.EventQuery, Match: func(ev domain.IdentifiedEvent) bool { return directory.Matches(ev.Text) }, Handle: r.directory.Answer},
		{Name: "write", Kind: domain.EventAction, Match: func(ev domain.IdentifiedEvent) bool { return conversation.IsWrite(ev.Text) }, Handle: r.machine.Begin},
		{Name: "send", Kind: domain.EventAction, Match: textIs(conversation.PayloadSend), Handle: r.machine.Confirm},
		{Name: "cancel", Kind: domain.EventAction, Match: textIs(conversation.PayloadCancel), Handle: r.machine.Cancel},
		{Name: "compose", Kind: domain.EventText, States: awaitingMessage, Handle: r.machine.Compose},
		{Name: "compose_command", Kind: domain.EventCommand, States: awaitingMessage, Handle: r.composeCommand},
		{Name: "reject", Kind: domain.EventContent, States: awaitingMessage, Handle: r.machine.Reject},
	}
}

func command(name string) func(domain.IdentifiedEvent) bool {
	return func(ev domain.IdentifiedEvent) bool { return ev.Command == name }
}

func textIs(text string) func(domain.IdentifiedEvent) bool {
	return func(ev domain.IdentifiedEvent) bool { return ev.Text == text }
}

// Dispatch handles one inbound event. Events of the same sender never run
// concurrently.
func (r *Router) Dispatch(ctx context.Context, ev domain.Event) error {
	r.metrics.RecordEvent(ev.Kind.String())
	if ev.Sender.ID == 0 {
		r.metrics.RecordDropped("no_sender")
		return nil
	}

	unlock := r.machine.Sessions().LockOwner(ev.Sender.ID)
	defer unlock()

	return r.handle(ctx, ev)
}

func (r *Router) route(ctx context.Context, ev domain.IdentifiedEvent) error {
	state := r.machine.Sessions().State(ev.User.ID)
	for _, rt := range r.routes {
		if !rt.matches(ev, state) {
			continue
		}
		err := r.finish(ctx, rt, ev, rt.Handle(ctx, ev))
		if err != nil {
			return fmt.Errorf("route %s: %w", rt.Name, err)
		}
		return nil
	}

	r.metrics.RecordDropped("unmatched")
	slog.Debug("No route for event", "user_id", ev.User.ID, "kind", ev.Kind.String(), "state", state.String())
	r.ack(ctx, ev, "")
	return nil
}

// finish converts handler errors into user notices and acknowledges
// actions. Only errors the user cannot be told about are returned.
func (r *Router) finish(ctx context.Context, rt Route, ev domain.IdentifiedEvent, err error) error {
	switch {
	case err == nil:
		r.ack(ctx, ev, "")
		return nil

	case errors.Is(err, conversation.ErrIncompleteSession):
		slog.Info("Ignoring send without composed message", "user_id", ev.User.ID)
		r.ack(ctx, ev, nothingToSendText)
		return nil

	case errors.Is(err, conversation.ErrStalePreview):
		slog.Info("Ignoring send on a stale preview", "user_id", ev.User.ID)
		r.ack(ctx, ev, stalePreviewText)
		return nil

	case errors.Is(err, conversation.ErrMalformedPayload):
		slog.Warn("Malformed action payload", "user_id", ev.User.ID, "payload", ev.Text)
		r.ack(ctx, ev, "")
		return nil

	case errors.Is(err, conversation.ErrRecipientNotFound), errors.Is(err, conversation.ErrDeliveryFailed):
		slog.Error("Message relay failed", "user_id", ev.User.ID, "route", rt.Name, "error", err)
		r.machine.Reset(ev.User.ID)
		r.ack(ctx, ev, "")
		if _, sendErr := r.msgr.Send(ctx, messenger.Message{ChatID: replyChat(ev), Text: deliveryFailedText, MenuShortcut: true}); sendErr != nil {
			return fmt.Errorf("notify relay failure: %w", sendErr)
		}
		return nil

	default:
		r.ack(ctx, ev, "")
		return err
	}
}

func (r *Router) ack(ctx context.Context, ev domain.IdentifiedEvent, text string) {
	if ev.Kind != domain.EventAction || ev.CallbackID == "" {
		return
	}
	if err := r.msgr.AnswerAction(ctx, ev.CallbackID, text); err != nil {
		slog.Warn("Failed to acknowledge action", "user_id", ev.User.ID, "error", err)
	}
}

func (r *Router) showMenu(ctx context.Context, ev domain.IdentifiedEvent) error {
	return r.machine.ShowMenu(ctx, replyChat(ev))
}

// composeCommand treats an unknown command typed while a message is awaited
// as the message text itself.
func (r *Router) composeCommand(ctx context.Context, ev domain.IdentifiedEvent) error {
	ev.Kind = domain.EventText
	return r.machine.Compose(ctx, ev)
}

func replyChat(ev domain.IdentifiedEvent) int64 {
	if ev.ChatID != 0 {
		return ev.ChatID
	}
	return ev.User.ID
}
