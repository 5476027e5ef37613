package mailbox

import (
	"time"

	"github.com/Iron-Ham/cto/internal/event"
	"github.com/Iron-Ham/cto/internal/logging"
)

// Option configures a Mailbox.
type Option func(*Mailbox)

// WithBus attaches an event bus to the Mailbox. When set, a
// MessageSentEvent is published after every successful Send.
func WithBus(bus *event.Bus) Option {
	return func(m *Mailbox) {
		m.bus = bus
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Mailbox) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides the message timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Mailbox) {
		m.now = now
	}
}
