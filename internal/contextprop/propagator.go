package contextprop

import (
	"fmt"
	"sync"
	"time"

	"github.com/Iron-Ham/cto/internal/errors"
	"github.com/Iron-Ham/cto/internal/event"
	"github.com/Iron-Ham/cto/internal/logging"
	"github.com/Iron-Ham/cto/internal/mailbox"
)

// Propagator records decisions, interfaces and notes in a team's shared
// context and announces them on the event bus. With a mailbox attached,
// ShareDecision also broadcasts the decision to the team.
type Propagator struct {
	mu     sync.Mutex
	store  Store
	mb     *mailbox.Mailbox
	bus    *event.Bus
	logger *logging.Logger
	now    func() time.Time
}

// Option configures a Propagator.
type Option func(*Propagator)

// WithMailbox enables ShareDecision broadcasts.
func WithMailbox(mb *mailbox.Mailbox) Option {
	return func(p *Propagator) { p.mb = mb }
}

// WithBus publishes decision and interface events on bus.
func WithBus(bus *event.Bus) Option {
	return func(p *Propagator) { p.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Propagator) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Propagator) { p.now = now }
}

// NewPropagator creates a Propagator backed by store.
func NewPropagator(store Store, opts ...Option) *Propagator {
	p := &Propagator{
		store:  store,
		logger: logging.NopLogger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Init writes an empty shared context for a new team.
func (p *Propagator) Init(teamID, parentTicket string) (*SharedContext, error) {
	ctx := New(teamID, parentTicket, p.now())
	if err := p.store.SaveContext(ctx); err != nil {
		return nil, fmt.Errorf("contextprop: init %s: %w", teamID, err)
	}
	return ctx, nil
}

// Get returns the team's shared context, or an empty one if none exists.
func (p *Propagator) Get(teamID string) (*SharedContext, error) {
	ctx, err := p.store.LoadContext(teamID)
	if errors.Is(err, errors.ErrTeamNotFound) {
		return New(teamID, "", p.now()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("contextprop: load %s: %w", teamID, err)
	}
	return ctx, nil
}

// update loads, mutates and saves the context under the lock.
func (p *Propagator) update(teamID string, fn func(ctx *SharedContext, now time.Time)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, err := p.Get(teamID)
	if err != nil {
		return err
	}
	now := p.now()
	fn(ctx, now)
	ctx.UpdatedAt = now
	if err := p.store.SaveContext(ctx); err != nil {
		return fmt.Errorf("contextprop: save %s: %w", teamID, err)
	}
	return nil
}

// RecordDecision appends a decision to the team's shared context.
func (p *Propagator) RecordDecision(teamID, decision, author string) error {
	err := p.update(teamID, func(ctx *SharedContext, now time.Time) {
		ctx.Decisions = append(ctx.Decisions, Decision{Decision: decision, Author: author, Timestamp: now})
	})
	if err != nil {
		return err
	}
	p.logger.WithTeam(teamID).Debug("decision recorded", "author", author)
	if p.bus != nil {
		p.bus.Publish(event.NewDecisionRecordedEvent(teamID, decision, author))
	}
	return nil
}

// ShareDecision records a decision and broadcasts it to the team as a
// decision message.
func (p *Propagator) ShareDecision(teamID, decision, author string) error {
	if err := p.RecordDecision(teamID, decision, author); err != nil {
		return err
	}
	if p.mb == nil {
		return nil
	}
	if _, err := p.mb.Send(teamID, author, mailbox.Broadcast, decision, mailbox.MessageDecision); err != nil {
		return fmt.Errorf("contextprop: share decision: %w", err)
	}
	return nil
}

// DefineInterface appends an interface declaration.
func (p *Propagator) DefineInterface(teamID string, iface map[string]any, author string) error {
	err := p.update(teamID, func(ctx *SharedContext, now time.Time) {
		ctx.Interfaces = append(ctx.Interfaces, Interface{Interface: iface, Author: author, Timestamp: now})
	})
	if err != nil {
		return err
	}
	if p.bus != nil {
		p.bus.Publish(event.NewInterfaceDefinedEvent(teamID, iface, author))
	}
	return nil
}

// AddNote appends a note.
func (p *Propagator) AddNote(teamID, note, author string) error {
	return p.update(teamID, func(ctx *SharedContext, now time.Time) {
		ctx.Notes = append(ctx.Notes, Note{Note: note, Author: author, Timestamp: now})
	})
}
