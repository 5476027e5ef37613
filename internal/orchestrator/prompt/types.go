// Package prompt builds the prompts cto hands to agents: ticket delegation,
// code review, project planning and one-shot Meeseeks tasks.
package prompt

import (
	"errors"

	"github.com/Iron-Ham/cto/internal/agent"
	"github.com/Iron-Ham/cto/internal/contextprop"
	"github.com/Iron-Ham/cto/internal/mailbox"
	"github.com/Iron-Ham/cto/internal/store"
	"github.com/Iron-Ham/cto/internal/team"
	"github.com/Iron-Ham/cto/internal/ticket"
)

// Builder turns a Context into a prompt.
type Builder interface {
	Build(ctx *Context) (string, error)
}

// Kind identifies the prompt being built.
type Kind string

const (
	KindDelegate Kind = "delegate"
	KindReview   Kind = "review"
	KindPlanning Kind = "planning"
	KindMeeseeks Kind = "meeseeks"
)

// Context carries everything a builder may need. Builders validate the
// fields their kind requires and ignore the rest.
type Context struct {
	Kind Kind

	// Root is the project root the agent works in.
	Root string

	// Ticket and Role drive delegate and review prompts.
	Ticket *ticket.Ticket
	Role   agent.Role

	// Structure is the rendered project tree, see Tree.
	Structure string

	// Decisions are the project's architecture decision records.
	Decisions []store.Decision

	// Related holds the ticket's dependencies and parent.
	Related []*ticket.Ticket

	// Team is set when the ticket is worked by a team.
	Team *TeamContext

	// Objective is the project description for planning prompts.
	Objective string

	// Task and Files describe a Meeseeks job.
	Task  string
	Files []string
}

// TeamContext is the team state shown to one member.
type TeamContext struct {
	Team   *team.Team
	Shared *contextprop.SharedContext
	// Messages are the member's recent messages, oldest first.
	Messages []mailbox.Message
}

var (
	ErrNilContext     = errors.New("prompt context is nil")
	ErrInvalidKind    = errors.New("invalid prompt kind")
	ErrMissingTicket  = errors.New("ticket is required")
	ErrEmptyObjective = errors.New("objective is required")
	ErrEmptyTask      = errors.New("task is required")
)

// New returns the builder for kind.
func New(kind Kind) (Builder, error) {
	switch kind {
	case KindDelegate:
		return NewDelegateBuilder(), nil
	case KindReview:
		return NewReviewBuilder(), nil
	case KindPlanning:
		return NewPlanningBuilder(), nil
	case KindMeeseeks:
		return NewMeeseeksBuilder(), nil
	}
	return nil, ErrInvalidKind
}
