package ticket

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/cto/internal/errors"
	"github.com/Iron-Ham/cto/internal/event"
	"github.com/Iron-Ham/cto/internal/logging"
)

// Store persists ticket records. Implementations must return an error
// satisfying errors.Is(err, errors.ErrTicketNotFound) for unknown ids.
type Store interface {
	NextTicketNumber() (int, error)
	SaveTicket(t *Ticket) error
	LoadTicket(id string) (*Ticket, error)
	ListTickets() ([]*Ticket, error)
}

// Service applies ticket operations against a Store and publishes the
// resulting events. Reads return copies.
type Service struct {
	mu     sync.Mutex
	store  Store
	prefix string
	bus    *event.Bus
	logger *logging.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithBus publishes ticket events on bus.
func WithBus(bus *event.Bus) Option {
	return func(s *Service) { s.bus = bus }
}

// WithLogger sets the service logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service that allocates ids with prefix.
func NewService(store Store, prefix string, opts ...Option) *Service {
	s := &Service{
		store:  store,
		prefix: prefix,
		logger: logging.NopLogger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) publish(e event.Event) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}

// CreateParams describes a new ticket. Zero values take defaults:
// type task, priority medium, complexity M, team mode solo.
type CreateParams struct {
	Title              string
	Description        string
	Type               Type
	Priority           Priority
	Complexity         Complexity
	Parent             string
	Dependencies       []string
	AcceptanceCriteria []string
	TeamMode           TeamMode
	TeamTemplate       string
	Status             Status
}

func (p *CreateParams) normalize() error {
	if strings.TrimSpace(p.Title) == "" {
		return errors.NewValidationError("title is required").WithField("title")
	}
	if p.Type == "" {
		p.Type = TypeTask
	}
	if p.Priority == "" {
		p.Priority = PriorityMedium
	}
	if p.Complexity == "" {
		p.Complexity = ComplexityM
	}
	if p.Status == "" {
		p.Status = StatusBacklog
	}
	if p.TeamMode == "" {
		p.TeamMode = TeamModeSolo
		if p.TeamTemplate != "" {
			p.TeamMode = TeamModeCollaborative
		}
	}
	switch {
	case !p.Type.IsValid():
		return errors.NewValidationError("unknown ticket type").WithField("type").WithValue(string(p.Type))
	case !p.Priority.IsValid():
		return errors.NewValidationError("unknown priority").WithField("priority").WithValue(string(p.Priority))
	case !p.Complexity.IsValid():
		return errors.NewValidationError("unknown complexity").WithField("complexity").WithValue(string(p.Complexity))
	case !p.Status.IsValid():
		return errors.NewValidationError("unknown status").WithField("status").WithValue(string(p.Status))
	case p.TeamMode != TeamModeSolo && p.TeamMode != TeamModeCollaborative:
		return errors.NewValidationError("unknown team mode").WithField("team_mode").WithValue(string(p.TeamMode))
	}
	p.Dependencies = cleanList(p.Dependencies)
	p.AcceptanceCriteria = cleanList(p.AcceptanceCriteria)
	return nil
}

// Create allocates an id and stores a new ticket.
func (s *Service) Create(p CreateParams) (*Ticket, error) {
	if err := p.normalize(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.store.ListTickets()
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	if p.Parent != "" {
		if _, ok := Index(all)[p.Parent]; !ok {
			return nil, errors.NewNotFoundError("parent ticket", p.Parent).WithCause(errors.ErrTicketNotFound)
		}
	}

	n, err := s.store.NextTicketNumber()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate ticket id: %w", err)
	}

	now := s.now()
	t := &Ticket{
		ID:                 FormatID(s.prefix, n),
		Title:              strings.TrimSpace(p.Title),
		Description:        p.Description,
		Type:               p.Type,
		Status:             p.Status,
		Priority:           p.Priority,
		Parent:             p.Parent,
		Dependencies:       p.Dependencies,
		AcceptanceCriteria: p.AcceptanceCriteria,
		Complexity:         p.Complexity,
		TeamMode:           p.TeamMode,
		TeamTemplate:       p.TeamTemplate,
		CreatedAt:          now,
		UpdatedAt:          now,
		FilesTouched:       []string{},
	}
	if err := ValidateDependencies(t, all); err != nil {
		return nil, err
	}

	if err := s.store.SaveTicket(t); err != nil {
		return nil, fmt.Errorf("failed to save ticket: %w", err)
	}

	s.logger.WithTicket(t.ID).Info("ticket created", "type", t.Type, "priority", t.Priority)
	s.publish(event.NewTicketCreatedEvent(t.ID, t.Title, string(t.Type), string(t.Priority),
		string(t.Complexity), string(t.TeamMode), t.Parent))
	return t.Clone(), nil
}

// Get returns a copy of the ticket with id.
func (s *Service) Get(id string) (*Ticket, error) {
	t, err := s.store.LoadTicket(id)
	if err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

// Filter narrows List results. Empty fields match everything.
type Filter struct {
	Status Status
	Agent  string
	Type   Type
	Parent string
}

func (f Filter) matches(t *Ticket) bool {
	return (f.Status == "" || t.Status == f.Status) &&
		(f.Agent == "" || t.AssignedAgent == f.Agent) &&
		(f.Type == "" || t.Type == f.Type) &&
		(f.Parent == "" || t.Parent == f.Parent)
}

// List returns copies of the tickets matching f, ordered by id.
func (s *Service) List(f Filter) ([]*Ticket, error) {
	all, err := s.store.ListTickets()
	if err != nil {
		return nil, err
	}
	var out []*Ticket
	for _, t := range all {
		if f.matches(t) {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

// UpdateParams lists the fields to change; nil fields are left alone.
// Status set here bypasses the workflow guard.
type UpdateParams struct {
	Title              *string
	Description        *string
	Status             *Status
	Priority           *Priority
	Complexity         *Complexity
	AssignedAgent      *string
	Parent             *string
	Dependencies       []string
	AcceptanceCriteria []string
	TeamTemplate       *string
}

// Update applies p to the ticket and returns the updated copy and the
// names of the changed fields.
func (s *Service) Update(id string, p UpdateParams) (*Ticket, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.store.LoadTicket(id)
	if err != nil {
		return nil, nil, err
	}
	oldStatus := t.Status
	now := s.now()

	var changed []string
	if p.Title != nil {
		t.Title = *p.Title
		changed = append(changed, "title")
	}
	if p.Description != nil {
		t.Description = *p.Description
		changed = append(changed, "description")
	}
	if p.Priority != nil {
		if !p.Priority.IsValid() {
			return nil, nil, errors.NewValidationError("unknown priority").WithField("priority").WithValue(string(*p.Priority))
		}
		t.Priority = *p.Priority
		changed = append(changed, "priority")
	}
	if p.Complexity != nil {
		if !p.Complexity.IsValid() {
			return nil, nil, errors.NewValidationError("unknown complexity").WithField("complexity").WithValue(string(*p.Complexity))
		}
		t.Complexity = *p.Complexity
		changed = append(changed, "complexity")
	}
	if p.AssignedAgent != nil {
		t.AssignedAgent = *p.AssignedAgent
		changed = append(changed, "assigned_agent")
	}
	if p.Parent != nil {
		t.Parent = *p.Parent
		changed = append(changed, "parent")
	}
	if p.TeamTemplate != nil {
		t.TeamTemplate = *p.TeamTemplate
		if t.TeamTemplate != "" {
			t.TeamMode = TeamModeCollaborative
		}
		changed = append(changed, "team_template")
	}
	if p.AcceptanceCriteria != nil {
		t.AcceptanceCriteria = cleanList(p.AcceptanceCriteria)
		changed = append(changed, "criteria")
	}
	if p.Dependencies != nil {
		t.Dependencies = cleanList(p.Dependencies)
		all, err := s.store.ListTickets()
		if err != nil {
			return nil, nil, err
		}
		if err := ValidateDependencies(t, all); err != nil {
			return nil, nil, err
		}
		changed = append(changed, "dependencies")
	}
	if p.Status != nil {
		if !p.Status.IsValid() {
			return nil, nil, errors.NewValidationError("unknown status").WithField("status").WithValue(string(*p.Status))
		}
		ForceStatus(t, *p.Status, now)
		changed = append(changed, "status")
	}
	t.UpdatedAt = now

	if err := s.store.SaveTicket(t); err != nil {
		return nil, nil, fmt.Errorf("failed to save ticket: %w", err)
	}

	if oldStatus != t.Status {
		s.publish(event.NewTicketStatusChangedEvent(t.ID, t.Title, string(oldStatus), string(t.Status)))
	}
	if p.AssignedAgent != nil {
		s.publish(event.NewTicketAssignedEvent(t.ID, t.Title, t.AssignedAgent))
	}
	return t.Clone(), changed, nil
}

// mutate loads a ticket, applies fn and saves it, publishing a status event
// when the status changed.
func (s *Service) mutate(id string, fn func(t *Ticket, now time.Time) error) (*Ticket, Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.store.LoadTicket(id)
	if err != nil {
		return nil, "", err
	}
	old := t.Status
	now := s.now()
	if err := fn(t, now); err != nil {
		return nil, old, err
	}
	t.UpdatedAt = now
	if err := s.store.SaveTicket(t); err != nil {
		return nil, old, fmt.Errorf("failed to save ticket: %w", err)
	}
	if old != t.Status {
		s.publish(event.NewTicketStatusChangedEvent(t.ID, t.Title, string(old), string(t.Status)))
	}
	return t.Clone(), old, nil
}

// Assign hands the ticket to role and moves it to in_progress.
func (s *Service) Assign(id, role string) (*Ticket, error) {
	t, _, err := s.mutate(id, func(t *Ticket, now time.Time) error {
		if err := Transition(t, StatusInProgress, now); err != nil {
			return err
		}
		t.AssignedAgent = role
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(event.NewTicketAssignedEvent(t.ID, t.Title, role))
	return t, nil
}

// Reassign hands an in-progress ticket to a single agent, dropping any team
// it was given.
func (s *Service) Reassign(id, role string) (*Ticket, error) {
	t, _, err := s.mutate(id, func(t *Ticket, _ time.Time) error {
		if t.Status != StatusInProgress {
			return errors.NewTicketError("only in-progress tickets can be reassigned", errors.ErrInvalidTransition).
				WithTicketID(t.ID).WithStatus(string(t.Status))
		}
		t.AssignedAgent = role
		t.TeamID = ""
		t.TeamMode = TeamModeSolo
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(event.NewTicketAssignedEvent(t.ID, t.Title, role))
	return t, nil
}

// Result is the outcome of one agent run on a ticket.
type Result struct {
	ReportedStatus string
	Output         string
	Files          []string
	Notes          string
}

// RecordResult stores an agent's work on an in-progress ticket and moves it
// to in_review, or to blocked when the agent reported itself blocked.
func (s *Service) RecordResult(id string, r Result) (*Ticket, error) {
	t, _, err := s.mutate(id, func(t *Ticket, now time.Time) error {
		if err := Transition(t, StatusFromReport(r.ReportedStatus), now); err != nil {
			return err
		}
		t.SetAgentOutput(r.Output)
		t.FilesTouched = mergeFiles(t.FilesTouched, r.Files)
		if r.Notes != "" {
			t.ReviewNotes = r.Notes
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if t.Status == StatusBlocked {
		s.publish(event.NewTicketBlockedEvent(t.ID, t.Title, t.ReviewNotes, t.AssignedAgent))
	}
	return t, nil
}

// Fail records an executor failure: the ticket is blocked and the reason is
// kept in the review notes.
func (s *Service) Fail(id string, cause error) (*Ticket, error) {
	note := FailureNote(cause)
	t, _, err := s.mutate(id, func(t *Ticket, now time.Time) error {
		if err := Transition(t, StatusBlocked, now); err != nil {
			return err
		}
		t.ReviewNotes = note
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(event.NewTicketBlockedEvent(t.ID, t.Title, note, t.AssignedAgent))
	return t, nil
}

// Approve moves an in_review (or testing) ticket to done.
func (s *Service) Approve(id string) (*Ticket, error) {
	t, _, err := s.mutate(id, func(t *Ticket, now time.Time) error {
		return Transition(t, StatusDone, now)
	})
	if err != nil {
		return nil, err
	}
	s.publish(event.NewTicketCompletedEvent(t.ID, t.Title, string(t.Type), t.AssignedAgent, t.FilesTouched))
	return t, nil
}

// Reject sends a reviewed ticket back to todo with the reviewer's notes.
func (s *Service) Reject(id, notes string) (*Ticket, error) {
	t, _, err := s.mutate(id, func(t *Ticket, now time.Time) error {
		if err := Transition(t, StatusTodo, now); err != nil {
			return err
		}
		if notes != "" {
			t.ReviewNotes = notes
		}
		return nil
	})
	return t, err
}

// Close marks a ticket done regardless of its status, optionally storing output.
func (s *Service) Close(id, output string) (*Ticket, error) {
	t, _, err := s.mutate(id, func(t *Ticket, now time.Time) error {
		ForceStatus(t, StatusDone, now)
		if output != "" {
			t.SetAgentOutput(output)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(event.NewTicketCompletedEvent(t.ID, t.Title, string(t.Type), t.AssignedAgent, t.FilesTouched))
	return t, nil
}

// Block marks a ticket blocked regardless of its status.
func (s *Service) Block(id, reason string) (*Ticket, error) {
	t, _, err := s.mutate(id, func(t *Ticket, now time.Time) error {
		ForceStatus(t, StatusBlocked, now)
		t.ReviewNotes = BlockedNote(reason)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(event.NewTicketBlockedEvent(t.ID, t.Title, reason, t.AssignedAgent))
	return t, nil
}

// SetTeam links a team to the ticket.
func (s *Service) SetTeam(id, teamID string) (*Ticket, error) {
	t, _, err := s.mutate(id, func(t *Ticket, now time.Time) error {
		t.TeamID = teamID
		t.TeamMode = TeamModeCollaborative
		return nil
	})
	return t, err
}

// RollupEpic recomputes the status of epic id from its children. It returns
// the epic and whether its status changed.
func (s *Service) RollupEpic(id string) (*Ticket, bool, error) {
	all, err := s.store.ListTickets()
	if err != nil {
		return nil, false, err
	}
	status, ok := RollupStatus(Children(id, all))
	if !ok {
		t, err := s.Get(id)
		return t, false, err
	}

	t, old, err := s.mutate(id, func(t *Ticket, now time.Time) error {
		if t.Status != status {
			ForceStatus(t, status, now)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	changed := old != t.Status
	if changed && t.Status == StatusDone {
		s.publish(event.NewTicketCompletedEvent(t.ID, t.Title, string(t.Type), t.AssignedAgent, t.FilesTouched))
	}
	return t, changed, nil
}

// cleanList trims entries and drops empty ones. It never returns nil.
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// SplitList splits a delimited CLI value such as "A, B" into clean entries.
func SplitList(value, sep string) []string {
	if value == "" {
		return []string{}
	}
	return cleanList(strings.Split(value, sep))
}

func mergeFiles(existing, added []string) []string {
	seen := make(map[string]bool, len(existing)+len(added))
	out := make([]string, 0, len(existing)+len(added))
	for _, f := range append(append([]string{}, existing...), added...) {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}
