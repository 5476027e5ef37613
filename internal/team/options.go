package team

import (
	"time"

	"github.com/Iron-Ham/cto/internal/contextprop"
	"github.com/Iron-Ham/cto/internal/event"
	"github.com/Iron-Ham/cto/internal/logging"
)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithBus publishes team lifecycle events on bus.
func WithBus(bus *event.Bus) ManagerOption {
	return func(m *Manager) {
		m.bus = bus
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// WithSharedContext initializes a shared context record for every new team.
func WithSharedContext(p *contextprop.Propagator) ManagerOption {
	return func(m *Manager) {
		m.shared = p
	}
}

// WithTemplates replaces the built-in template registry.
func WithTemplates(r *Registry) ManagerOption {
	return func(m *Manager) {
		if r != nil {
			m.templates = r
		}
	}
}
