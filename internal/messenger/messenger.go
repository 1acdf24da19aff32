// Package messenger defines the outbound side of the chat platform
// consumed by the relay core.
package messenger

import "context"

// Button is an inline control attached to a message or query result.
// Exactly one of Payload and SwitchQuery is set.
type Button struct {
	Text string
	// Payload is returned in the action event when pressed.
	Payload string
	// SwitchQuery opens a recipient-selection query in the current chat.
	SwitchQuery string
}

// Keyboard is a grid of inline buttons.
type Keyboard [][]Button

// Row builds a single-row keyboard.
func Row(buttons ...Button) Keyboard {
	return Keyboard{buttons}
}

// Message is an outbound chat message.
type Message struct {
	ChatID   int64
	Text     string
	Controls Keyboard
	// MenuShortcut attaches the persistent "Menu" reply keyboard.
	MenuShortcut bool
}

// QueryResult is one selectable entry in a recipient-selection answer.
type QueryResult struct {
	ID          string
	Title       string
	MessageText string
	ThumbURL    string
	Controls    Keyboard
}

// QueryAnswer carries the results for a recipient-selection query.
type QueryAnswer struct {
	QueryID   string
	Results   []QueryResult
	CacheTime int // seconds
	Personal  bool
}

// Messenger sends bot output through the chat platform.
type Messenger interface {
	// Send posts a message and returns its platform message id.
	Send(ctx context.Context, msg Message) (int, error)

	// ClearControls removes inline controls from a previously sent message.
	ClearControls(ctx context.Context, chatID int64, messageID int) error

	// AnswerQuery replies to a recipient-selection query.
	AnswerQuery(ctx context.Context, answer QueryAnswer) error

	// AnswerAction acknowledges a button press, optionally with a notice.
	AnswerAction(ctx context.Context, actionID, text string) error

	// ProfileImage returns a reference to the user's first profile photo,
	// or "" when there is none.
	ProfileImage(ctx context.Context, userID int64) (string, error)
}
