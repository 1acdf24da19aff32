package domain

import (
	"errors"
	"time"
)

// ConversationState is the position of a sender in the compose flow.
type ConversationState int

const (
	// StateIdle is the initial state and the state after send or cancel.
	StateIdle ConversationState = iota
	// StateAwaitingMessage waits for the text to relay.
	StateAwaitingMessage
	// StateAwaitingConfirmation waits for the sender to confirm or cancel.
	StateAwaitingConfirmation
)

func (s ConversationState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingMessage:
		return "awaiting_message"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	default:
		return "unknown"
	}
}

// VerificationSuffix is appended verbatim to every composed message.
const VerificationSuffix = "\n\nпроверено"

// ErrNoRecipient is returned when text is attached before a recipient.
var ErrNoRecipient = errors.New("session has no recipient")

// ConversationSession holds an in-progress compose flow for one sender.
type ConversationSession struct {
	OwnerID     int64
	State       ConversationState
	RecipientID int64
	PendingText string
	// PreviewMessageID is the message carrying the send control, 0 until
	// a preview was shown.
	PreviewMessageID int
	UpdatedAt        time.Time
}

// NewComposeSession starts a session addressed to recipientID.
func NewComposeSession(ownerID, recipientID int64) ConversationSession {
	return ConversationSession{
		OwnerID:     ownerID,
		State:       StateAwaitingMessage,
		RecipientID: recipientID,
		UpdatedAt:   time.Now(),
	}
}

// WithText returns a copy of the session holding the verified text.
func (s ConversationSession) WithText(text string) (ConversationSession, error) {
	if s.RecipientID == 0 {
		return s, ErrNoRecipient
	}
	s.PendingText = text + VerificationSuffix
	s.PreviewMessageID = 0
	s.State = StateAwaitingConfirmation
	s.UpdatedAt = time.Now()
	return s, nil
}

// ReadyToSend returns true if the session may be delivered.
func (s ConversationSession) ReadyToSend() bool {
	return s.State == StateAwaitingConfirmation && s.RecipientID != 0 && s.PendingText != ""
}
