package team

import (
	"fmt"
	"slices"
	"time"

	"github.com/Iron-Ham/cto/internal/errors"
)

// Mode is how a team's members are scheduled.
type Mode string

const (
	// ModeSequential runs the lead, then every other member one at a time.
	ModeSequential Mode = "sequential"
	// ModeParallel runs every member at once.
	ModeParallel Mode = "parallel"
	// ModeMixed runs the lead alone, then everyone else in parallel.
	ModeMixed Mode = "mixed"
)

// IsValid reports whether m is a known mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeSequential, ModeParallel, ModeMixed:
		return true
	}
	return false
}

// MemberStatus is a member's progress on its assignment.
type MemberStatus string

const (
	MemberPending   MemberStatus = "pending"
	MemberWorking   MemberStatus = "working"
	MemberCompleted MemberStatus = "completed"
	MemberBlocked   MemberStatus = "blocked"
)

// IsValid reports whether s is a known member status.
func (s MemberStatus) IsValid() bool {
	switch s {
	case MemberPending, MemberWorking, MemberCompleted, MemberBlocked:
		return true
	}
	return false
}

// IsTerminal reports whether the member has finished, successfully or not.
func (s MemberStatus) IsTerminal() bool {
	return s == MemberCompleted || s == MemberBlocked
}

// Status is the aggregate state of a team.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusBlocked   Status = "blocked"
)

// Coordination holds the scheduling parameters of a team.
type Coordination struct {
	Mode Mode   `json:"mode"`
	Lead string `json:"lead"`
}

// Member is one role working on a slice of the parent ticket.
type Member struct {
	Role          string       `json:"role"`
	Focus         string       `json:"focus"`
	Assignment    string       `json:"assignment"`
	Status        MemberStatus `json:"status"`
	StartedAt     *time.Time   `json:"started_at"`
	CompletedAt   *time.Time   `json:"completed_at"`
	OutputSummary string       `json:"output_summary"`
}

// Team is a group of agents working one ticket together.
type Team struct {
	ID            string              `json:"id"`
	ParentTicket  string              `json:"parent_ticket"`
	Template      string              `json:"template"`
	Status        Status              `json:"status"`
	Members       []Member            `json:"members"`
	Coordination  Coordination        `json:"coordination"`
	CreatedAt     time.Time           `json:"created_at"`
	StartedAt     *time.Time          `json:"started_at"`
	CompletedAt   *time.Time          `json:"completed_at"`
	FilesReserved map[string][]string `json:"files_reserved"`
}

// Member returns the member playing role.
func (t *Team) Member(role string) (*Member, bool) {
	for i := range t.Members {
		if t.Members[i].Role == role {
			return &t.Members[i], true
		}
	}
	return nil, false
}

// Roles returns member roles in template order.
func (t *Team) Roles() []string {
	roles := make([]string, len(t.Members))
	for i, m := range t.Members {
		roles[i] = m.Role
	}
	return roles
}

// Lead returns the lead member, if the lead is on the team.
func (t *Team) Lead() (*Member, bool) {
	return t.Member(t.Coordination.Lead)
}

// Others returns every member except the lead, in template order.
func (t *Team) Others() []Member {
	var out []Member
	for _, m := range t.Members {
		if m.Role != t.Coordination.Lead {
			out = append(out, m)
		}
	}
	return out
}

// Blocked returns members that ended blocked.
func (t *Team) Blocked() []Member {
	var out []Member
	for _, m := range t.Members {
		if m.Status == MemberBlocked {
			out = append(out, m)
		}
	}
	return out
}

// Clone returns a deep copy of the team.
func (t *Team) Clone() *Team {
	c := *t
	c.Members = make([]Member, len(t.Members))
	for i, m := range t.Members {
		c.Members[i] = m
		c.Members[i].StartedAt = cloneTime(m.StartedAt)
		c.Members[i].CompletedAt = cloneTime(m.CompletedAt)
	}
	c.StartedAt = cloneTime(t.StartedAt)
	c.CompletedAt = cloneTime(t.CompletedAt)
	c.FilesReserved = make(map[string][]string, len(t.FilesReserved))
	for role, paths := range t.FilesReserved {
		c.FilesReserved[role] = slices.Clone(paths)
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// FormatID renders a team id such as TEAM-003.
func FormatID(n int) string {
	return fmt.Sprintf("TEAM-%03d", n)
}

// Assignment returns the sub-assignment id of the i-th member: TICKET-A,
// TICKET-B, and so on.
func Assignment(ticketID string, i int) string {
	return fmt.Sprintf("%s-%c", ticketID, 'A'+rune(i%26))
}

// Aggregate derives the team status from its members: completed when every
// member completed, blocked when any is blocked, active when any is
// working, and current otherwise.
func Aggregate(members []Member, current Status) Status {
	if len(members) == 0 {
		return current
	}
	allDone, anyBlocked, anyWorking := true, false, false
	for _, m := range members {
		switch m.Status {
		case MemberBlocked:
			anyBlocked = true
		case MemberWorking:
			anyWorking = true
		}
		if m.Status != MemberCompleted {
			allDone = false
		}
	}
	switch {
	case allDone:
		return StatusCompleted
	case anyBlocked:
		return StatusBlocked
	case anyWorking:
		return StatusActive
	default:
		return current
	}
}

// SetMemberStatus applies a member status change and recomputes the team
// status, stamping start and completion times the first time they apply.
// It returns the previous member and team statuses.
func SetMemberStatus(t *Team, role string, status MemberStatus, summary string, now time.Time) (MemberStatus, Status, error) {
	m, ok := t.Member(role)
	if !ok {
		return "", "", errors.NewTeamError("no such member", errors.ErrMemberNotFound).
			WithTeamID(t.ID).WithRole(role)
	}
	if !status.IsValid() {
		return "", "", errors.NewValidationError("unknown member status").
			WithField("status").WithValue(string(status))
	}
	oldMember, oldTeam := m.Status, t.Status

	m.Status = status
	if summary != "" {
		m.OutputSummary = summary
	}
	switch status {
	case MemberWorking:
		if m.StartedAt == nil {
			m.StartedAt = &now
		}
	case MemberCompleted, MemberBlocked:
		if m.CompletedAt == nil {
			m.CompletedAt = &now
		}
	}

	t.Status = Aggregate(t.Members, t.Status)
	switch t.Status {
	case StatusActive:
		if t.StartedAt == nil {
			t.StartedAt = &now
		}
	case StatusCompleted:
		if t.CompletedAt == nil {
			t.CompletedAt = &now
		}
	}
	return oldMember, oldTeam, nil
}
