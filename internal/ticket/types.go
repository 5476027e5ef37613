package ticket

import (
	"fmt"
	"slices"
	"time"
)

// Status is a ticket's position in the workflow.
type Status string

const (
	StatusBacklog    Status = "backlog"
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusInReview   Status = "in_review"
	StatusTesting    Status = "testing"
	StatusDone       Status = "done"
	StatusBlocked    Status = "blocked"
)

// Statuses lists every status in board order.
var Statuses = []Status{
	StatusBacklog, StatusTodo, StatusInProgress, StatusInReview,
	StatusTesting, StatusDone, StatusBlocked,
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	return slices.Contains(Statuses, s)
}

// IsActionable reports whether a ticket in this status may be picked up.
func (s Status) IsActionable() bool {
	return s == StatusBacklog || s == StatusTodo
}

// SatisfiesDependency reports whether a dependency in this status counts
// as met. Work handed off for review or testing unblocks dependents.
func (s Status) SatisfiesDependency() bool {
	return s == StatusDone || s == StatusInReview || s == StatusTesting
}

// IsInFlight reports whether work on the ticket is under way.
func (s Status) IsInFlight() bool {
	return s == StatusInProgress || s == StatusInReview || s == StatusTesting
}

// Type classifies the kind of work a ticket represents.
type Type string

const (
	TypeFeature  Type = "feature"
	TypeBug      Type = "bug"
	TypeTask     Type = "task"
	TypeSpike    Type = "spike"
	TypeEpic     Type = "epic"
	TypeSecurity Type = "security"
)

// Types lists every ticket type.
var Types = []Type{TypeFeature, TypeBug, TypeTask, TypeSpike, TypeEpic, TypeSecurity}

// IsValid reports whether t is a known type.
func (t Type) IsValid() bool {
	return slices.Contains(Types, t)
}

// Priority orders ready work.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Priorities lists priorities from most to least urgent.
var Priorities = []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}

// Rank returns the sort key for p; lower is more urgent. Unknown
// priorities sort after low.
func (p Priority) Rank() int {
	if i := slices.Index(Priorities, p); i >= 0 {
		return i
	}
	return len(Priorities)
}

// IsValid reports whether p is a known priority.
func (p Priority) IsValid() bool {
	return slices.Contains(Priorities, p)
}

// Complexity is the estimated size of a ticket.
type Complexity string

const (
	ComplexityXS Complexity = "XS"
	ComplexityS  Complexity = "S"
	ComplexityM  Complexity = "M"
	ComplexityL  Complexity = "L"
	ComplexityXL Complexity = "XL"
)

// Complexities lists the size scale from smallest to largest.
var Complexities = []Complexity{ComplexityXS, ComplexityS, ComplexityM, ComplexityL, ComplexityXL}

// IsValid reports whether c is a known complexity.
func (c Complexity) IsValid() bool {
	return slices.Contains(Complexities, c)
}

// TeamMode says whether a ticket is worked by one agent or a team.
type TeamMode string

const (
	TeamModeSolo          TeamMode = "solo"
	TeamModeCollaborative TeamMode = "collaborative"
)

// MaxAgentOutput bounds the agent output stored on a ticket.
const MaxAgentOutput = 2000

// Ticket is a unit of work.
type Ticket struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	Type               Type       `json:"type"`
	Status             Status     `json:"status"`
	Priority           Priority   `json:"priority"`
	AssignedAgent      string     `json:"assigned_agent,omitempty"`
	Parent             string     `json:"parent_ticket,omitempty"`
	Dependencies       []string   `json:"dependencies"`
	AcceptanceCriteria []string   `json:"acceptance_criteria"`
	Complexity         Complexity `json:"estimated_complexity"`
	TeamMode           TeamMode   `json:"team_mode"`
	TeamTemplate       string     `json:"team_template,omitempty"`
	TeamID             string     `json:"team_id,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	AgentOutput        string     `json:"agent_output,omitempty"`
	ReviewNotes        string     `json:"review_notes,omitempty"`
	FilesTouched       []string   `json:"files_touched"`
}

// IsEpic reports whether the ticket groups other tickets.
func (t *Ticket) IsEpic() bool {
	return t.Type == TypeEpic
}

// WantsTeam reports whether the ticket explicitly asks for a team.
func (t *Ticket) WantsTeam() bool {
	return t.TeamMode == TeamModeCollaborative || t.TeamTemplate != ""
}

// SetAgentOutput stores output, keeping at most MaxAgentOutput bytes.
func (t *Ticket) SetAgentOutput(output string) {
	if len(output) > MaxAgentOutput {
		output = output[:MaxAgentOutput]
	}
	t.AgentOutput = output
}

// Clone returns a deep copy of the ticket.
func (t *Ticket) Clone() *Ticket {
	c := *t
	c.Dependencies = slices.Clone(t.Dependencies)
	c.AcceptanceCriteria = slices.Clone(t.AcceptanceCriteria)
	c.FilesTouched = slices.Clone(t.FilesTouched)
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}

// FormatID renders a ticket id such as CTO-007.
func FormatID(prefix string, n int) string {
	return fmt.Sprintf("%s-%03d", prefix, n)
}

// Index returns tickets keyed by id.
func Index(all []*Ticket) map[string]*Ticket {
	byID := make(map[string]*Ticket, len(all))
	for _, t := range all {
		byID[t.ID] = t
	}
	return byID
}
