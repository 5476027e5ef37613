package coordination

import (
	"time"

	"github.com/Iron-Ham/cto/internal/logging"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMaxParallel bounds how many members run at once in parallel phases.
// Values below one are ignored.
func WithMaxParallel(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxParallel = n
		}
	}
}

// WithMemberTimeout bounds a single member's agent invocation.
func WithMemberTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.memberTimeout = d
		}
	}
}

// WithModels overrides the model chosen for a role (role -> model).
func WithModels(models map[string]string) Option {
	return func(c *Coordinator) { c.models = models }
}

// WithProjectContext sets the function that supplies the project part of
// every member prompt: root, structure, decisions and related tickets.
func WithProjectContext(fn ContextFunc) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.project = fn
		}
	}
}

// WithRecentMessages sets how many of a member's messages its prompt shows.
func WithRecentMessages(n int) Option {
	return func(c *Coordinator) { c.recentMessages = n }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}
