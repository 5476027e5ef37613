package mailbox

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/cto/internal/errors"
	"github.com/Iron-Ham/cto/internal/event"
	"github.com/Iron-Ham/cto/internal/logging"
)

// ErrInvalidType is returned by Send for an unknown message type.
var ErrInvalidType = errors.New("invalid message type")

// Mailbox is the per-team message log. Ids are allocated as the count of
// existing messages plus one, so the log must stay append-only.
type Mailbox struct {
	store  Store
	bus    *event.Bus
	logger *logging.Logger
	now    func() time.Time

	// mu serializes id allocation and read-set updates within the process.
	mu sync.Mutex
}

// NewMailbox creates a Mailbox backed by store.
func NewMailbox(store Store, opts ...Option) *Mailbox {
	m := &Mailbox{
		store:  store,
		logger: logging.NopLogger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Send appends a message from one role to another (or Broadcast) and
// returns it with its assigned id.
func (m *Mailbox) Send(teamID, from, to, body string, msgType MessageType) (Message, error) {
	if teamID == "" {
		return Message{}, fmt.Errorf("mailbox: team id is required")
	}
	if from == "" {
		return Message{}, fmt.Errorf("mailbox: message From field is required")
	}
	if to == "" {
		return Message{}, fmt.Errorf("mailbox: message To field is required")
	}
	if msgType == "" {
		msgType = MessageInfo
	}
	if !ValidateMessageType(msgType) {
		return Message{}, fmt.Errorf("%w: %q", ErrInvalidType, msgType)
	}

	m.mu.Lock()
	existing, err := m.store.ListMessages(teamID)
	if err != nil {
		m.mu.Unlock()
		return Message{}, fmt.Errorf("mailbox: list messages: %w", err)
	}
	msg := Message{
		ID:        FormatID(len(existing) + 1),
		TeamID:    teamID,
		From:      from,
		To:        to,
		Body:      body,
		Type:      msgType,
		Timestamp: m.now(),
		ReadBy:    []string{},
	}
	err = m.store.SaveMessage(msg)
	m.mu.Unlock()
	if err != nil {
		return Message{}, fmt.Errorf("mailbox: save message: %w", err)
	}

	m.logger.WithTeam(teamID).Debug("message sent", "id", msg.ID, "from", from, "to", to, "type", msgType)
	if m.bus != nil {
		m.bus.Publish(NewMessageSentEvent(msg))
	}
	return msg, nil
}

// Get returns the team's messages in id order. When forRole is set only
// messages to that role, broadcasts and messages from that role are
// returned; unreadOnly further drops those forRole has already read.
func (m *Mailbox) Get(teamID, forRole string, unreadOnly bool) ([]Message, error) {
	all, err := m.store.ListMessages(teamID)
	if err != nil {
		return nil, fmt.Errorf("mailbox: list messages: %w", err)
	}
	sortMessages(all)

	if forRole == "" {
		return all, nil
	}
	out := make([]Message, 0, len(all))
	for _, msg := range all {
		if !msg.Involves(forRole) {
			continue
		}
		if unreadOnly && msg.ReadByRole(forRole) {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// MarkRead adds role to the read-set of the given messages, or of every
// message in the team when no ids are given. It returns the number of
// messages that changed; marking twice is a no-op.
func (m *Mailbox) MarkRead(teamID, role string, ids ...string) (int, error) {
	if role == "" {
		return 0, fmt.Errorf("mailbox: role is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.store.ListMessages(teamID)
	if err != nil {
		return 0, fmt.Errorf("mailbox: list messages: %w", err)
	}

	changed := 0
	for _, msg := range all {
		if len(ids) > 0 && !slices.Contains(ids, msg.ID) {
			continue
		}
		if msg.ReadByRole(role) {
			continue
		}
		msg.ReadBy = append(slices.Clone(msg.ReadBy), role)
		if err := m.store.SaveMessage(msg); err != nil {
			return changed, fmt.Errorf("mailbox: save message %s: %w", msg.ID, err)
		}
		changed++
	}
	return changed, nil
}

// Recent returns at most n of the messages involving role, newest last.
func (m *Mailbox) Recent(teamID, role string, n int) ([]Message, error) {
	msgs, err := m.Get(teamID, role, false)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs, nil
}

// Directive is a message an agent asked to send in its report.
type Directive struct {
	To   string
	Body string
}

// SendDirectives posts each directive from role as an info message,
// normalizing "@*" and "*" to Broadcast. It stops at the first failure.
func (m *Mailbox) SendDirectives(teamID, from string, directives []Directive) ([]Message, error) {
	var sent []Message
	for _, d := range directives {
		body := strings.TrimSpace(d.Body)
		if body == "" {
			continue
		}
		msg, err := m.Send(teamID, from, NormalizeRecipient(d.To), body, MessageInfo)
		if err != nil {
			return sent, err
		}
		sent = append(sent, msg)
	}
	return sent, nil
}
