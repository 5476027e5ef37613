package mailbox

import "github.com/Iron-Ham/cto/internal/event"

// NewMessageSentEvent creates an event.MessageSentEvent from a Message.
func NewMessageSentEvent(msg Message) event.MessageSentEvent {
	return event.NewMessageSentEvent(msg.TeamID, msg.ID, msg.From, msg.To, string(msg.Type), msg.Body)
}
