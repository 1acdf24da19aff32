package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ashureev/whisper-relay/internal/domain"
	"github.com/ashureev/whisper-relay/internal/messenger"
	"github.com/ashureev/whisper-relay/internal/metrics"
)

// Action payloads understood by the machine.
const (
	PayloadWrite  = "write"
	PayloadSend   = "send"
	PayloadCancel = "cancel"

	// MenuQuery is opened by the main menu button.
	MenuQuery = "list"
)

const (
	menuText       = "Добро пожаловать"
	menuButtonText = "Выбрать получателя"
	promptText     = "Напишите сообщение:"
	rejectText     = "Вы можете отправлять только текст!"
	previewText    = "Вот как будет выглядеть ваше сообщение:"
	successFormat  = "Сообщение успешно отправлено %s!"
	cancelledText  = "Отменено"
	sendButtonText = "Отправить"
	cancelText     = "Отмена"
)

var (
	// ErrMalformedPayload is returned for a write action without a valid id.
	ErrMalformedPayload = errors.New("malformed action payload")
	// ErrUnexpectedState is returned when an event does not fit the session state.
	ErrUnexpectedState = errors.New("unexpected conversation state")
	// ErrIncompleteSession is returned when send arrives before a message
	// was composed, e.g. a duplicated button press.
	ErrIncompleteSession = errors.New("nothing composed to send")
	// ErrRecipientNotFound is returned when the recipient has no user record.
	ErrRecipientNotFound = errors.New("recipient not found")
	// ErrStalePreview is returned when send is pressed on a preview that
	// no longer belongs to the current session.
	ErrStalePreview = errors.New("send pressed on a stale preview")
	// ErrDeliveryFailed wraps relay failures.
	ErrDeliveryFailed = errors.New("delivery failed")
)

// UserLookup reads user records.
type UserLookup interface {
	GetUser(ctx context.Context, id int64) (*domain.User, error)
}

// Deliverer relays a verified message.
type Deliverer interface {
	Deliver(ctx context.Context, recipientID int64, text string) error
}

// Machine drives conversation sessions. Callers must hold the owner lock
// from Store.LockOwner while calling any method for that owner.
type Machine struct {
	sessions *Store
	msgr     messenger.Messenger
	users    UserLookup
	relay    Deliverer
	metrics  *metrics.Metrics
}

// NewMachine wires a Machine.
func NewMachine(sessions *Store, msgr messenger.Messenger, users UserLookup, relay Deliverer, m *metrics.Metrics) *Machine {
	return &Machine{sessions: sessions, msgr: msgr, users: users, relay: relay, metrics: m}
}

// Sessions returns the underlying session store.
func (m *Machine) Sessions() *Store {
	return m.sessions
}

var (
	cancelControls  = messenger.Row(messenger.Button{Text: cancelText, Payload: PayloadCancel})
	confirmControls = messenger.Row(
		messenger.Button{Text: sendButtonText, Payload: PayloadSend},
		messenger.Button{Text: cancelText, Payload: PayloadCancel},
	)
	menuControls = messenger.Row(messenger.Button{Text: menuButtonText, SwitchQuery: MenuQuery})
)

// ParseWrite extracts the recipient id from a "write <id>" payload.
func ParseWrite(payload string) (int64, error) {
	fields := strings.Fields(payload)
	if len(fields) != 2 || fields[0] != PayloadWrite {
		return 0, fmt.Errorf("%w: %q", ErrMalformedPayload, payload)
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedPayload, payload)
	}
	return id, nil
}

// IsWrite reports whether payload starts a compose flow.
func IsWrite(payload string) bool {
	return payload == PayloadWrite || strings.HasPrefix(payload, PayloadWrite+" ")
}

func replyChat(ev domain.IdentifiedEvent) int64 {
	if ev.ChatID != 0 {
		return ev.ChatID
	}
	return ev.User.ID
}

// ShowMenu sends the main menu to chatID.
func (m *Machine) ShowMenu(ctx context.Context, chatID int64) error {
	if _, err := m.msgr.Send(ctx, messenger.Message{ChatID: chatID, Text: menuText, Controls: menuControls}); err != nil {
		return fmt.Errorf("send menu: %w", err)
	}
	return nil
}

// Restart drops any session of the sender and shows the main menu.
func (m *Machine) Restart(ctx context.Context, ev domain.IdentifiedEvent) error {
	if m.sessions.Clear(ev.User.ID) {
		m.metrics.RecordTransition(domain.StateIdle.String())
	}
	return m.ShowMenu(ctx, replyChat(ev))
}

// Begin handles "write <id>": it prompts for the message and addresses a
// new session to the recipient, replacing any session in progress.
func (m *Machine) Begin(ctx context.Context, ev domain.IdentifiedEvent) error {
	recipientID, err := ParseWrite(ev.Text)
	if err != nil {
		return err
	}

	chatID := replyChat(ev)
	if prev := m.sessions.Get(ev.User.ID); prev.PreviewMessageID != 0 {
		m.clearControls(ctx, chatID, prev.PreviewMessageID)
	}
	if _, err := m.msgr.Send(ctx, messenger.Message{ChatID: chatID, Text: promptText, Controls: cancelControls}); err != nil {
		return fmt.Errorf("send compose prompt: %w", err)
	}

	m.sessions.Put(domain.NewComposeSession(ev.User.ID, recipientID))
	m.metrics.RecordTransition(domain.StateAwaitingMessage.String())
	slog.Debug("Compose started", "owner_id", ev.User.ID, "recipient_id", recipientID)
	return nil
}

// Reject answers non-text content while a message is awaited. The
// session is left unchanged.
func (m *Machine) Reject(ctx context.Context, ev domain.IdentifiedEvent) error {
	if state := m.sessions.State(ev.User.ID); state != domain.StateAwaitingMessage {
		return fmt.Errorf("%w: reject in %s", ErrUnexpectedState, state)
	}
	if _, err := m.msgr.Send(ctx, messenger.Message{ChatID: replyChat(ev), Text: rejectText, Controls: cancelControls}); err != nil {
		return fmt.Errorf("send rejection: %w", err)
	}
	return nil
}

// Compose stores the verified text and asks for confirmation.
func (m *Machine) Compose(ctx context.Context, ev domain.IdentifiedEvent) error {
	sess := m.sessions.Get(ev.User.ID)
	if sess.State != domain.StateAwaitingMessage {
		return fmt.Errorf("%w: compose in %s", ErrUnexpectedState, sess.State)
	}
	next, err := sess.WithText(ev.Text)
	if err != nil {
		return fmt.Errorf("compose: %w", err)
	}

	chatID := replyChat(ev)
	if _, err := m.msgr.Send(ctx, messenger.Message{ChatID: chatID, Text: previewText}); err != nil {
		return fmt.Errorf("send preview header: %w", err)
	}
	previewID, err := m.msgr.Send(ctx, messenger.Message{ChatID: chatID, Text: next.PendingText, Controls: confirmControls})
	if err != nil {
		return fmt.Errorf("send preview: %w", err)
	}
	next.PreviewMessageID = previewID

	m.sessions.Put(next)
	m.metrics.RecordTransition(domain.StateAwaitingConfirmation.String())
	return nil
}

// Confirm relays the pending text to the recipient and resets the session.
// It returns ErrIncompleteSession without side effects when no message is
// ready, so repeated presses never deliver twice.
func (m *Machine) Confirm(ctx context.Context, ev domain.IdentifiedEvent) error {
	sess := m.sessions.Get(ev.User.ID)
	if !sess.ReadyToSend() {
		return fmt.Errorf("%w (state %s)", ErrIncompleteSession, sess.State)
	}

	chatID := replyChat(ev)
	if ev.MessageID != 0 && sess.PreviewMessageID != 0 && ev.MessageID != sess.PreviewMessageID {
		m.clearControls(ctx, chatID, ev.MessageID)
		return fmt.Errorf("%w: message %d, current %d", ErrStalePreview, ev.MessageID, sess.PreviewMessageID)
	}
	m.clearControls(ctx, chatID, ev.MessageID)

	recipient, err := m.users.GetUser(ctx, sess.RecipientID)
	if err != nil {
		return fmt.Errorf("look up recipient %d: %w", sess.RecipientID, err)
	}
	if recipient == nil {
		return fmt.Errorf("%w: %d", ErrRecipientNotFound, sess.RecipientID)
	}

	if err := m.relay.Deliver(ctx, recipient.ID, sess.PendingText); err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	m.sessions.Clear(ev.User.ID)
	m.metrics.RecordTransition(domain.StateIdle.String())

	notice := messenger.Message{
		ChatID:       chatID,
		Text:         fmt.Sprintf(successFormat, recipient.DisplayName()),
		MenuShortcut: true,
	}
	if _, err := m.msgr.Send(ctx, notice); err != nil {
		return fmt.Errorf("send success notice: %w", err)
	}
	return nil
}

// Cancel aborts the sender's session and shows the main menu. Without a
// session it does nothing, so repeated presses only get acknowledged.
func (m *Machine) Cancel(ctx context.Context, ev domain.IdentifiedEvent) error {
	if m.sessions.State(ev.User.ID) == domain.StateIdle {
		return nil
	}

	chatID := replyChat(ev)
	if _, err := m.msgr.Send(ctx, messenger.Message{ChatID: chatID, Text: cancelledText, MenuShortcut: true}); err != nil {
		return fmt.Errorf("send cancel notice: %w", err)
	}
	m.clearControls(ctx, chatID, ev.MessageID)

	if m.sessions.Clear(ev.User.ID) {
		m.metrics.RecordTransition(domain.StateIdle.String())
	}
	return m.ShowMenu(ctx, chatID)
}

// Reset drops the owner's session without any output.
func (m *Machine) Reset(ownerID int64) {
	if m.sessions.Clear(ownerID) {
		m.metrics.RecordTransition(domain.StateIdle.String())
	}
}

func (m *Machine) clearControls(ctx context.Context, chatID int64, messageID int) {
	if messageID == 0 {
		return
	}
	if err := m.msgr.ClearControls(ctx, chatID, messageID); err != nil {
		slog.Warn("Failed to clear controls", "chat_id", chatID, "message_id", messageID, "error", err)
	}
}
