// Package orchestrator drives tickets through worker agents.
//
// The Orchestrator owns the scheduling loop: it picks the most urgent ready
// ticket, delegates it to a single agent or to a team, reviews finished work
// and rolls epic status up from children. It also turns a project
// description into a ticket plan and runs one-shot Meeseeks tasks.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/Iron-Ham/cto/internal/agent"
	"github.com/Iron-Ham/cto/internal/config"
	"github.com/Iron-Ham/cto/internal/contextprop"
	"github.com/Iron-Ham/cto/internal/coordination"
	"github.com/Iron-Ham/cto/internal/errors"
	"github.com/Iron-Ham/cto/internal/event"
	"github.com/Iron-Ham/cto/internal/logging"
	"github.com/Iron-Ham/cto/internal/mailbox"
	"github.com/Iron-Ham/cto/internal/orchestrator/prompt"
	"github.com/Iron-Ham/cto/internal/progress"
	"github.com/Iron-Ham/cto/internal/report"
	"github.com/Iron-Ham/cto/internal/store"
	"github.com/Iron-Ham/cto/internal/team"
	"github.com/Iron-Ham/cto/internal/ticket"
)

// Deps holds the services the orchestrator works through.
type Deps struct {
	// Root is the project root agents work in.
	Root     string
	Store    *store.Store
	Tickets  *ticket.Service
	Teams    *team.Manager
	Mailbox  *mailbox.Mailbox
	Shared   *contextprop.Propagator
	Executor agent.Executor
	Progress *progress.Log
	Bus      *event.Bus
}

// Orchestrator schedules and delegates tickets.
type Orchestrator struct {
	root     string
	cfg      *config.Config
	store    *store.Store
	tickets  *ticket.Service
	teams    *team.Manager
	exec     agent.Executor
	progress *progress.Log
	bus      *event.Bus
	coord    *coordination.Coordinator
	runner   teamRunner
	policy   ReviewPolicy
	logger   *logging.Logger
	now      func() time.Time

	// waitInterval is the pause between sprint iterations that can only
	// wait on in-progress work.
	waitInterval time.Duration

	// structure renders the project tree for prompts.
	structure func(root string) string
}

// teamRunner runs a formed team to completion. A nil result with an error
// means the run never dispatched a member.
type teamRunner interface {
	Run(ctx context.Context, teamID string) (*coordination.Result, error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithReviewPolicy overrides the review policy taken from the config.
func WithReviewPolicy(p ReviewPolicy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithWaitInterval overrides sprint.wait_seconds.
func WithWaitInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.waitInterval = d
		}
	}
}

// WithStructure replaces the project tree renderer used in prompts.
func WithStructure(fn func(root string) string) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.structure = fn
		}
	}
}

// New creates an Orchestrator.
func New(cfg *config.Config, deps Deps, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	switch {
	case deps.Store == nil:
		return nil, errors.New("orchestrator: Store is required")
	case deps.Tickets == nil:
		return nil, errors.New("orchestrator: Tickets is required")
	case deps.Teams == nil:
		return nil, errors.New("orchestrator: Teams is required")
	case deps.Executor == nil:
		return nil, errors.New("orchestrator: Executor is required")
	case deps.Progress == nil:
		return nil, errors.New("orchestrator: Progress is required")
	}

	o := &Orchestrator{
		root:      deps.Root,
		cfg:       cfg,
		store:     deps.Store,
		tickets:   deps.Tickets,
		teams:     deps.Teams,
		exec:      deps.Executor,
		progress:  deps.Progress,
		bus:       deps.Bus,
		policy:    ReviewPolicy{AutoApprove: cfg.Review.AutoApprove, OnFailure: ReviewFailure(cfg.Review.OnFailure)},
		logger:    logging.NopLogger(),
		now:       time.Now,
		structure: prompt.Tree,

		waitInterval: cfg.Sprint.WaitInterval(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if deps.Mailbox != nil && deps.Shared != nil {
		coord, err := coordination.New(coordination.Config{
			Teams:    deps.Teams,
			Mailbox:  deps.Mailbox,
			Shared:   deps.Shared,
			Executor: deps.Executor,
			Tickets:  deps.Tickets,
		},
			coordination.WithMaxParallel(cfg.Team.MaxParallel),
			coordination.WithMemberTimeout(cfg.Team.MemberTimeout()),
			coordination.WithModels(cfg.Agent.Models),
			coordination.WithProjectContext(o.projectContext),
			coordination.WithLogger(o.logger),
		)
		if err != nil {
			return nil, err
		}
		o.coord = coord
		o.runner = coord
	}
	return o, nil
}

// Coordinator returns the team coordinator, nil when teams are unavailable.
func (o *Orchestrator) Coordinator() *coordination.Coordinator {
	return o.coord
}

// projectContext gathers the project part of a ticket prompt: root,
// structure, architecture decisions and related tickets.
func (o *Orchestrator) projectContext(t *ticket.Ticket) prompt.Context {
	decisions, err := o.store.Decisions()
	if err != nil {
		o.logger.Warn("failed to read decisions", "error", err)
	}
	return prompt.Context{
		Root:      o.root,
		Structure: o.structure(o.root),
		Decisions: decisions,
		Related:   o.related(t),
	}
}

// related loads the ticket's dependencies and parent, skipping ids that no
// longer resolve.
func (o *Orchestrator) related(t *ticket.Ticket) []*ticket.Ticket {
	ids := append([]string{}, t.Dependencies...)
	if t.Parent != "" {
		ids = append(ids, t.Parent)
	}
	var out []*ticket.Ticket
	for _, id := range ids {
		rt, err := o.tickets.Get(id)
		if err != nil {
			continue
		}
		out = append(out, rt)
	}
	return out
}

// record appends a progress entry, logging rather than failing on error.
func (o *Orchestrator) record(e progress.Entry) {
	if err := o.progress.Append(e); err != nil {
		o.logger.Warn("failed to write progress log", "error", err)
	}
}

func (o *Orchestrator) publish(e event.Event) {
	if o.bus != nil {
		o.bus.Publish(e)
	}
}

// rollupParent recomputes the status of t's epic, if it has one.
func (o *Orchestrator) rollupParent(t *ticket.Ticket) {
	if t == nil || t.Parent == "" {
		return
	}
	epic, changed, err := o.tickets.RollupEpic(t.Parent)
	if err != nil {
		o.logger.WithTicket(t.Parent).Warn("epic rollup failed", "error", err)
		return
	}
	if changed {
		o.logger.WithTicket(epic.ID).Info("epic status rolled up", "status", string(epic.Status))
	}
}

// modelFor returns the configured model for role.
func (o *Orchestrator) modelFor(r agent.Role) string {
	return agent.ModelFor(r, o.cfg.Agent.Models)
}

func truncate(s string, n int) string {
	return report.Truncate(s, n)
}

func atMention(role string) string {
	return fmt.Sprintf("@%s", role)
}
