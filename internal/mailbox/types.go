package mailbox

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// MessageType identifies the kind of team message.
type MessageType string

const (
	// MessageInfo shares progress or findings with teammates.
	MessageInfo MessageType = "info"

	// MessageQuestion asks a teammate for input.
	MessageQuestion MessageType = "question"

	// MessageDecision announces a decision the team should follow.
	MessageDecision MessageType = "decision"

	// MessageBlocked reports that the sender cannot proceed.
	MessageBlocked MessageType = "blocked"
)

// Broadcast is the recipient value for messages intended for every member.
const Broadcast = "@*"

// Message is a single team message. Messages are immutable once sent except
// for ReadBy.
type Message struct {
	ID        string      `json:"id"`
	TeamID    string      `json:"team_id"`
	From      string      `json:"from"`
	To        string      `json:"to"`
	Body      string      `json:"message"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	ReadBy    []string    `json:"read_by"`
}

// IsBroadcast returns true if the message is addressed to every member.
func (m Message) IsBroadcast() bool {
	return m.To == Broadcast
}

// Involves reports whether role sent the message or is one of its recipients.
func (m Message) Involves(role string) bool {
	return m.IsBroadcast() || m.To == role || m.From == role
}

// ReadByRole reports whether role has marked the message read.
func (m Message) ReadByRole(role string) bool {
	return slices.Contains(m.ReadBy, role)
}

// Seq returns the numeric part of the message id, or 0 if it has none.
func (m Message) Seq() int {
	n, err := strconv.Atoi(strings.TrimPrefix(m.ID, idPrefix))
	if err != nil {
		return 0
	}
	return n
}

const idPrefix = "msg-"

// FormatID renders the team-scoped message id for sequence n.
func FormatID(n int) string {
	return fmt.Sprintf("%s%03d", idPrefix, n)
}

var validMessageTypes = map[MessageType]bool{
	MessageInfo:     true,
	MessageQuestion: true,
	MessageDecision: true,
	MessageBlocked:  true,
}

// ValidateMessageType returns true if the given type is a known message type.
func ValidateMessageType(t MessageType) bool {
	return validMessageTypes[t]
}

// NormalizeRecipient maps the shorthand forms "*" and "@role" used in agent
// reports to stored recipient values.
func NormalizeRecipient(to string) string {
	to = strings.TrimSpace(to)
	switch to {
	case "*", Broadcast, "all", "@all":
		return Broadcast
	}
	return strings.TrimPrefix(to, "@")
}
