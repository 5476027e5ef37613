package mailbox

// Store persists team messages, one record per message id.
// ListMessages returns an empty slice for a team with no messages.
type Store interface {
	ListMessages(teamID string) ([]Message, error)
	SaveMessage(msg Message) error
}
