// Package messengertest provides an in-memory Messenger for tests.
package messengertest

import (
	"context"
	"sync"

	"github.com/ashureev/whisper-relay/internal/messenger"
)

// Cleared records a ClearControls call.
type Cleared struct {
	ChatID    int64
	MessageID int
}

// Ack records an AnswerAction call.
type Ack struct {
	ActionID string
	Text     string
}

// Recorder captures every outbound call. Error fields, when set, are
// returned by the matching method.
type Recorder struct {
	mu      sync.Mutex
	nextID  int
	Sent    []messenger.Message
	Cleared []Cleared
	Answers []messenger.QueryAnswer
	Acks    []Ack

	Images     map[int64]string
	SendErr    error
	ImageErr   error
	FailChatID int64 // Send fails with SendErr only for this chat when non-zero
}

// New returns an empty Recorder.
func New() *Recorder {
	return &Recorder{Images: make(map[int64]string)}
}

// Send records msg.
func (r *Recorder) Send(_ context.Context, msg messenger.Message) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SendErr != nil && (r.FailChatID == 0 || r.FailChatID == msg.ChatID) {
		return 0, r.SendErr
	}
	r.nextID++
	r.Sent = append(r.Sent, msg)
	return r.nextID, nil
}

// ClearControls records the cleared message.
func (r *Recorder) ClearControls(_ context.Context, chatID int64, messageID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Cleared = append(r.Cleared, Cleared{ChatID: chatID, MessageID: messageID})
	return nil
}

// AnswerQuery records answer.
func (r *Recorder) AnswerQuery(_ context.Context, answer messenger.QueryAnswer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Answers = append(r.Answers, answer)
	return nil
}

// AnswerAction records the acknowledgement.
func (r *Recorder) AnswerAction(_ context.Context, actionID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Acks = append(r.Acks, Ack{ActionID: actionID, Text: text})
	return nil
}

// ProfileImage returns the configured image for userID.
func (r *Recorder) ProfileImage(_ context.Context, userID int64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ImageErr != nil {
		return "", r.ImageErr
	}
	return r.Images[userID], nil
}

// SentTo returns the messages posted to chatID.
func (r *Recorder) SentTo(chatID int64) []messenger.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []messenger.Message
	for _, m := range r.Sent {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

// Outputs returns the total number of calls that emit something to a user.
func (r *Recorder) Outputs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Sent) + len(r.Cleared) + len(r.Answers) + len(r.Acks)
}

// Reset forgets all recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Sent = nil
	r.Cleared = nil
	r.Answers = nil
	r.Acks = nil
}

var _ messenger.Messenger = (*Recorder)(nil)
