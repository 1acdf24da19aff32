package domain

// EventKind classifies inbound platform events.
type EventKind int

const (
	// EventCommand is a slash command such as /start.
	EventCommand EventKind = iota
	// EventText is a plain text message.
	EventText
	// EventContent is any non-text message (photo, sticker, voice...).
	EventContent
	// EventQuery is an inline recipient-selection query.
	EventQuery
	// EventAction is a button press carrying a payload.
	EventAction
)

func (k EventKind) String() string {
	switch k {
	case EventCommand:
		return "command"
	case EventText:
		return "text"
	case EventContent:
		return "content"
	case EventQuery:
		return "query"
	case EventAction:
		return "action"
	default:
		return "unknown"
	}
}

// Sender is the platform metadata of whoever originated an event.
type Sender struct {
	ID        int64
	FirstName string
	LastName  string
}

// Event is a platform-neutral inbound event.
//
// Text holds the message text, the query string or the action payload
// depending on Kind. Command and Args are set for EventCommand only.
// CallbackID identifies the query or action to answer. MessageID is the
// prompt a button was attached to.
type Event struct {
	Kind       EventKind
	Sender     Sender
	ChatID     int64
	Text       string
	Command    string
	Args       string
	CallbackID string
	MessageID  int
}

// IdentifiedEvent is an event whose sender has been resolved to a User.
type IdentifiedEvent struct {
	Event
	User *User
}
