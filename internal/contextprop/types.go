package contextprop

import "time"

// Decision is a team decision recorded by a member.
type Decision struct {
	Decision  string    `json:"decision"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

// Interface is an interface declaration (API shape, schema, contract)
// recorded by a member.
type Interface struct {
	Interface map[string]any `json:"interface"`
	Author    string         `json:"author"`
	Timestamp time.Time      `json:"timestamp"`
}

// Note is free-form shared context.
type Note struct {
	Note      string    `json:"note"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

// SharedContext is the append-only knowledge a team accumulates while it
// works a ticket. One record exists per team.
type SharedContext struct {
	TeamID       string      `json:"team_id"`
	ParentTicket string      `json:"parent_ticket,omitempty"`
	Decisions    []Decision  `json:"decisions"`
	Interfaces   []Interface `json:"interfaces"`
	Notes        []Note      `json:"notes"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// New returns an empty shared context for a team.
func New(teamID, parentTicket string, now time.Time) *SharedContext {
	return &SharedContext{
		TeamID:       teamID,
		ParentTicket: parentTicket,
		Decisions:    []Decision{},
		Interfaces:   []Interface{},
		Notes:        []Note{},
		UpdatedAt:    now,
	}
}

// Store persists shared context records. LoadContext returns an error
// satisfying errors.Is(err, errors.ErrTeamNotFound) when the team has none.
type Store interface {
	LoadContext(teamID string) (*SharedContext, error)
	SaveContext(ctx *SharedContext) error
}
