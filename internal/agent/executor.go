// Package agent runs worker agents and knows their roles.
//
// An Executor turns a prompt into the agent's textual output. The CLI
// executor shells out to the agent binary, the API executor calls the
// Messages API directly. Both report failures as *errors.AgentError so
// callers can record a uniform reason on the ticket.
package agent

import (
	"context"
	"time"
)

// DefaultTimeout bounds one invocation when the request sets none.
const DefaultTimeout = 600 * time.Second

// Request is a single agent invocation.
type Request struct {
	Prompt  string
	Model   string
	Timeout time.Duration
	// Dir is the working directory for CLI agents; empty means the
	// current directory.
	Dir string
}

func (r Request) timeout() time.Duration {
	if r.Timeout <= 0 {
		return DefaultTimeout
	}
	return r.Timeout
}

// Executor invokes an agent and returns its output.
type Executor interface {
	Invoke(ctx context.Context, req Request) (string, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, req Request) (string, error)

// Invoke calls f.
func (f ExecutorFunc) Invoke(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
