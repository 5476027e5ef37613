package team

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Iron-Ham/cto/internal/contextprop"
	"github.com/Iron-Ham/cto/internal/event"
	"github.com/Iron-Ham/cto/internal/logging"
)

// Manager forms teams and serializes every change to a team record.
// Member updates and file reservations both go through Mutate so that
// concurrent members never overwrite each other's changes.
type Manager struct {
	mu        sync.Mutex
	store     Store
	templates *Registry
	shared    *contextprop.Propagator
	bus       *event.Bus
	logger    *logging.Logger
	now       func() time.Time
}

// NewManager creates a Manager backed by store.
func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:     store,
		templates: NewRegistry(),
		logger:    logging.NopLogger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Templates returns the manager's template registry.
func (m *Manager) Templates() *Registry {
	return m.templates
}

// Create forms a team for parentTicket from a named template.
func (m *Manager) Create(parentTicket, templateName string) (*Team, error) {
	tmpl, err := m.templates.Get(templateName)
	if err != nil {
		return nil, err
	}
	return m.create(parentTicket, tmpl)
}

// CreateCustom forms a parallel team from an explicit role list.
func (m *Manager) CreateCustom(parentTicket string, roles []string) (*Team, error) {
	tmpl, err := Custom(roles)
	if err != nil {
		return nil, err
	}
	return m.create(parentTicket, tmpl)
}

func (m *Manager) create(parentTicket string, tmpl Template) (*Team, error) {
	m.mu.Lock()
	n, err := m.store.NextTeamNumber()
	if err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("allocate team id: %w", err)
	}

	t := &Team{
		ID:            FormatID(n),
		ParentTicket:  parentTicket,
		Template:      tmpl.Name,
		Status:        StatusPending,
		Coordination:  Coordination{Mode: tmpl.Mode, Lead: tmpl.Lead},
		CreatedAt:     m.now(),
		FilesReserved: map[string][]string{},
	}
	for i, rs := range tmpl.Roles {
		t.Members = append(t.Members, Member{
			Role:       rs.Role,
			Focus:      rs.Focus,
			Assignment: Assignment(parentTicket, i),
			Status:     MemberPending,
		})
	}
	err = m.store.SaveTeam(t)
	m.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("save team: %w", err)
	}

	if m.shared != nil {
		if _, err := m.shared.Init(t.ID, parentTicket); err != nil {
			return nil, fmt.Errorf("init shared context: %w", err)
		}
	}

	m.logger.Info("team created",
		"team_id", t.ID,
		"parent_ticket", parentTicket,
		"template", tmpl.Name,
		"mode", string(tmpl.Mode),
		"members", len(t.Members),
	)
	if m.bus != nil {
		members := make([]event.TeamMemberInfo, len(t.Members))
		for i, mem := range t.Members {
			members[i] = event.TeamMemberInfo{Role: mem.Role, Focus: mem.Focus}
		}
		m.bus.Publish(event.NewTeamCreatedEvent(t.ID, parentTicket, tmpl.Name,
			string(tmpl.Mode), tmpl.Lead, members))
	}
	return t.Clone(), nil
}

// Get loads a team.
func (m *Manager) Get(id string) (*Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.LoadTeam(id)
}

// List returns every team ordered by id.
func (m *Manager) List() ([]*Team, error) {
	m.mu.Lock()
	teams, err := m.store.ListTeams()
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].ID < teams[j].ID })
	return teams, nil
}

// ForTicket returns the most recently formed team for a ticket, if any.
func (m *Manager) ForTicket(ticketID string) (*Team, bool, error) {
	teams, err := m.List()
	if err != nil {
		return nil, false, err
	}
	for i := len(teams) - 1; i >= 0; i-- {
		if teams[i].ParentTicket == ticketID {
			return teams[i], true, nil
		}
	}
	return nil, false, nil
}

// Mutate applies fn to the stored team and saves the result. Nothing is
// saved when fn returns an error. The returned team is a copy.
func (m *Manager) Mutate(id string, fn func(t *Team) error) (*Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.store.LoadTeam(id)
	if err != nil {
		return nil, err
	}
	if t.FilesReserved == nil {
		t.FilesReserved = map[string][]string{}
	}
	if err := fn(t); err != nil {
		return nil, err
	}
	if err := m.store.SaveTeam(t); err != nil {
		return nil, fmt.Errorf("save team: %w", err)
	}
	return t.Clone(), nil
}

// UpdateMember changes a member's status and recomputes the team status,
// publishing an event for each status that actually changed.
func (m *Manager) UpdateMember(id, role string, status MemberStatus, summary string) (*Team, error) {
	var oldMember MemberStatus
	var oldTeam Status
	t, err := m.Mutate(id, func(t *Team) error {
		var err error
		oldMember, oldTeam, err = SetMemberStatus(t, role, status, summary, m.now())
		return err
	})
	if err != nil {
		return nil, err
	}

	m.logger.Debug("member status updated",
		"team_id", id,
		"role", role,
		"old_status", string(oldMember),
		"new_status", string(status),
		"team_status", string(t.Status),
	)
	if m.bus != nil {
		if oldMember != status {
			mem, _ := t.Member(role)
			m.bus.Publish(event.NewMemberStatusChangedEvent(id, role, string(oldMember), string(status), mem.OutputSummary))
		}
		if oldTeam != t.Status {
			m.bus.Publish(event.NewTeamStatusChangedEvent(id, t.ParentTicket, string(oldTeam), string(t.Status)))
		}
	}
	return t, nil
}
