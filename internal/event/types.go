package event

import (
	"time"
	"unicode/utf8"
)

// Event is the interface that all events must implement.
// It provides a common way to identify and timestamp events.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "ticket.created", "team.message.sent")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Actor identifies who caused an event. Role is an agent role, or one of
// ActorCoordinator / ActorMeeseeks; TeamID is set for team members.
type Actor struct {
	Role   string
	TeamID string
}

// Well-known actor roles.
const (
	ActorCoordinator = "rick"
	ActorMeeseeks    = "meeseeks"
)

// Coordinator is the actor for events raised by the scheduling loop and CLI.
func Coordinator() Actor { return Actor{Role: ActorCoordinator} }

// Payload is implemented by events that are forwarded to external hooks.
type Payload interface {
	Event
	// Actor returns who caused the event.
	Actor() Actor
	// Data returns the JSON-serializable event body.
	Data() map[string]any
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
	actor     Actor
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }
func (e baseEvent) Actor() Actor         { return e.actor }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string, actor Actor) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
		actor:     actor,
	}
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// -----------------------------------------------------------------------------
// Ticket Events
// -----------------------------------------------------------------------------

// TicketCreatedEvent is emitted when a ticket record is created.
type TicketCreatedEvent struct {
	baseEvent
	TicketID   string
	Title      string
	Type       string
	Priority   string
	Complexity string
	TeamMode   string
	Parent     string
}

// NewTicketCreatedEvent creates a TicketCreatedEvent.
func NewTicketCreatedEvent(ticketID, title, ticketType, priority, complexity, teamMode, parent string) TicketCreatedEvent {
	return TicketCreatedEvent{
		baseEvent:  newBaseEvent("ticket.created", Coordinator()),
		TicketID:   ticketID,
		Title:      title,
		Type:       ticketType,
		Priority:   priority,
		Complexity: complexity,
		TeamMode:   teamMode,
		Parent:     parent,
	}
}

// Data returns the hook payload body.
func (e TicketCreatedEvent) Data() map[string]any {
	return map[string]any{
		"ticket_id":     e.TicketID,
		"title":         e.Title,
		"type":          e.Type,
		"priority":      e.Priority,
		"complexity":    e.Complexity,
		"team_mode":     e.TeamMode,
		"parent_ticket": e.Parent,
	}
}

// TicketStatusChangedEvent is emitted when a ticket moves between statuses.
type TicketStatusChangedEvent struct {
	baseEvent
	TicketID  string
	Title     string
	OldStatus string
	NewStatus string
}

// NewTicketStatusChangedEvent creates a TicketStatusChangedEvent.
func NewTicketStatusChangedEvent(ticketID, title, oldStatus, newStatus string) TicketStatusChangedEvent {
	return TicketStatusChangedEvent{
		baseEvent: newBaseEvent("ticket.status.changed", Coordinator()),
		TicketID:  ticketID,
		Title:     title,
		OldStatus: oldStatus,
		NewStatus: newStatus,
	}
}

// Data returns the hook payload body.
func (e TicketStatusChangedEvent) Data() map[string]any {
	return map[string]any{
		"ticket_id":  e.TicketID,
		"title":      e.Title,
		"old_status": e.OldStatus,
		"new_status": e.NewStatus,
	}
}

// TicketAssignedEvent is emitted when a ticket is handed to an agent role.
type TicketAssignedEvent struct {
	baseEvent
	TicketID      string
	Title         string
	AssignedAgent string
}

// NewTicketAssignedEvent creates a TicketAssignedEvent.
func NewTicketAssignedEvent(ticketID, title, agent string) TicketAssignedEvent {
	return TicketAssignedEvent{
		baseEvent:     newBaseEvent("ticket.assigned", Coordinator()),
		TicketID:      ticketID,
		Title:         title,
		AssignedAgent: agent,
	}
}

// Data returns the hook payload body.
func (e TicketAssignedEvent) Data() map[string]any {
	return map[string]any{
		"ticket_id":      e.TicketID,
		"title":          e.Title,
		"assigned_agent": e.AssignedAgent,
	}
}

// TicketCompletedEvent is emitted when a ticket reaches done.
type TicketCompletedEvent struct {
	baseEvent
	TicketID      string
	Title         string
	Type          string
	AssignedAgent string
	FilesTouched  []string
}

// NewTicketCompletedEvent creates a TicketCompletedEvent.
func NewTicketCompletedEvent(ticketID, title, ticketType, agent string, files []string) TicketCompletedEvent {
	return TicketCompletedEvent{
		baseEvent:     newBaseEvent("ticket.completed", Coordinator()),
		TicketID:      ticketID,
		Title:         title,
		Type:          ticketType,
		AssignedAgent: agent,
		FilesTouched:  files,
	}
}

// Data returns the hook payload body.
func (e TicketCompletedEvent) Data() map[string]any {
	files := e.FilesTouched
	if files == nil {
		files = []string{}
	}
	return map[string]any{
		"ticket_id":      e.TicketID,
		"title":          e.Title,
		"type":           e.Type,
		"assigned_agent": e.AssignedAgent,
		"files_touched":  files,
	}
}

// TicketBlockedEvent is emitted when a ticket becomes blocked.
type TicketBlockedEvent struct {
	baseEvent
	TicketID      string
	Title         string
	Reason        string
	AssignedAgent string
}

// NewTicketBlockedEvent creates a TicketBlockedEvent.
func NewTicketBlockedEvent(ticketID, title, reason, agent string) TicketBlockedEvent {
	return TicketBlockedEvent{
		baseEvent:     newBaseEvent("ticket.blocked", Coordinator()),
		TicketID:      ticketID,
		Title:         title,
		Reason:        reason,
		AssignedAgent: agent,
	}
}

// Data returns the hook payload body.
func (e TicketBlockedEvent) Data() map[string]any {
	return map[string]any{
		"ticket_id":      e.TicketID,
		"title":          e.Title,
		"reason":         truncate(e.Reason, 200),
		"assigned_agent": e.AssignedAgent,
	}
}

// -----------------------------------------------------------------------------
// Team Events
// -----------------------------------------------------------------------------

// TeamMemberInfo describes one member in a TeamCreatedEvent.
type TeamMemberInfo struct {
	Role  string
	Focus string
}

// TeamCreatedEvent is emitted when a team is formed for a ticket.
type TeamCreatedEvent struct {
	baseEvent
	TeamID       string
	ParentTicket string
	Template     string
	Members      []TeamMemberInfo
	Mode         string
	Lead         string
}

// NewTeamCreatedEvent creates a TeamCreatedEvent.
func NewTeamCreatedEvent(teamID, parentTicket, template, mode, lead string, members []TeamMemberInfo) TeamCreatedEvent {
	return TeamCreatedEvent{
		baseEvent:    newBaseEvent("team.created", Actor{Role: ActorCoordinator, TeamID: teamID}),
		TeamID:       teamID,
		ParentTicket: parentTicket,
		Template:     template,
		Members:      members,
		Mode:         mode,
		Lead:         lead,
	}
}

// Data returns the hook payload body.
func (e TeamCreatedEvent) Data() map[string]any {
	members := make([]map[string]any, 0, len(e.Members))
	for _, m := range e.Members {
		members = append(members, map[string]any{"role": m.Role, "focus": m.Focus})
	}
	return map[string]any{
		"team_id":           e.TeamID,
		"parent_ticket":     e.ParentTicket,
		"template":          e.Template,
		"members":           members,
		"coordination_mode": e.Mode,
		"lead":              e.Lead,
	}
}

// MemberStatusChangedEvent is emitted when a team member changes status.
type MemberStatusChangedEvent struct {
	baseEvent
	TeamID        string
	Role          string
	OldStatus     string
	NewStatus     string
	OutputSummary string
}

// NewMemberStatusChangedEvent creates a MemberStatusChangedEvent.
func NewMemberStatusChangedEvent(teamID, role, oldStatus, newStatus, summary string) MemberStatusChangedEvent {
	return MemberStatusChangedEvent{
		baseEvent:     newBaseEvent("team.member.status.changed", Actor{Role: role, TeamID: teamID}),
		TeamID:        teamID,
		Role:          role,
		OldStatus:     oldStatus,
		NewStatus:     newStatus,
		OutputSummary: summary,
	}
}

// Data returns the hook payload body.
func (e MemberStatusChangedEvent) Data() map[string]any {
	var summary any
	if e.OutputSummary != "" {
		summary = truncate(e.OutputSummary, 100)
	}
	return map[string]any{
		"team_id":        e.TeamID,
		"role":           e.Role,
		"old_status":     e.OldStatus,
		"new_status":     e.NewStatus,
		"output_summary": summary,
	}
}

// TeamStatusChangedEvent is emitted when a team's aggregate status changes.
type TeamStatusChangedEvent struct {
	baseEvent
	TeamID       string
	ParentTicket string
	OldStatus    string
	NewStatus    string
}

// NewTeamStatusChangedEvent creates a TeamStatusChangedEvent.
func NewTeamStatusChangedEvent(teamID, parentTicket, oldStatus, newStatus string) TeamStatusChangedEvent {
	return TeamStatusChangedEvent{
		baseEvent:    newBaseEvent("team.team.status.changed", Actor{Role: ActorCoordinator, TeamID: teamID}),
		TeamID:       teamID,
		ParentTicket: parentTicket,
		OldStatus:    oldStatus,
		NewStatus:    newStatus,
	}
}

// Data returns the hook payload body.
func (e TeamStatusChangedEvent) Data() map[string]any {
	return map[string]any{
		"team_id":       e.TeamID,
		"old_status":    e.OldStatus,
		"new_status":    e.NewStatus,
		"parent_ticket": e.ParentTicket,
	}
}

// DecisionRecordedEvent is emitted when a decision is added to shared context.
type DecisionRecordedEvent struct {
	baseEvent
	TeamID   string
	Decision string
	Author   string
}

// NewDecisionRecordedEvent creates a DecisionRecordedEvent.
func NewDecisionRecordedEvent(teamID, decision, author string) DecisionRecordedEvent {
	return DecisionRecordedEvent{
		baseEvent: newBaseEvent("team.decision.recorded", Actor{Role: author, TeamID: teamID}),
		TeamID:    teamID,
		Decision:  decision,
		Author:    author,
	}
}

// Data returns the hook payload body.
func (e DecisionRecordedEvent) Data() map[string]any {
	return map[string]any{
		"team_id":  e.TeamID,
		"decision": truncate(e.Decision, 200),
		"author":   e.Author,
	}
}

// InterfaceDefinedEvent is emitted when an interface contract is shared.
type InterfaceDefinedEvent struct {
	baseEvent
	TeamID    string
	Interface map[string]any
	Author    string
}

// NewInterfaceDefinedEvent creates an InterfaceDefinedEvent.
func NewInterfaceDefinedEvent(teamID string, iface map[string]any, author string) InterfaceDefinedEvent {
	return InterfaceDefinedEvent{
		baseEvent: newBaseEvent("team.interface.defined", Actor{Role: author, TeamID: teamID}),
		TeamID:    teamID,
		Interface: iface,
		Author:    author,
	}
}

// Data returns the hook payload body.
func (e InterfaceDefinedEvent) Data() map[string]any {
	return map[string]any{
		"team_id":   e.TeamID,
		"interface": e.Interface,
		"author":    e.Author,
	}
}

// MessageSentEvent is emitted when a team message is posted.
type MessageSentEvent struct {
	baseEvent
	TeamID      string
	MessageID   string
	From        string
	To          string
	MessageType string
	Body        string
}

// NewMessageSentEvent creates a MessageSentEvent.
func NewMessageSentEvent(teamID, messageID, from, to, messageType, body string) MessageSentEvent {
	return MessageSentEvent{
		baseEvent:   newBaseEvent("team.message.sent", Actor{Role: from, TeamID: teamID}),
		TeamID:      teamID,
		MessageID:   messageID,
		From:        from,
		To:          to,
		MessageType: messageType,
		Body:        body,
	}
}

// Data returns the hook payload body.
func (e MessageSentEvent) Data() map[string]any {
	return map[string]any{
		"team_id":      e.TeamID,
		"message_id":   e.MessageID,
		"from":         e.From,
		"to":           e.To,
		"message_type": e.MessageType,
		"message":      truncate(e.Body, 200),
	}
}

// -----------------------------------------------------------------------------
// Meeseeks Events
// -----------------------------------------------------------------------------

// MeeseeksEvent covers the lifecycle of a one-shot agent. Action is one of
// summoned, failed, escalated or completed.
type MeeseeksEvent struct {
	baseEvent
	Action      string
	Task        string
	TargetFiles []string
	Model       string
	Status      string
	Files       []string
	Description string
	Complexity  string
	Err         string
}

// NewMeeseeksEvent creates a MeeseeksEvent for the given action.
func NewMeeseeksEvent(action, task string, targetFiles []string) MeeseeksEvent {
	return MeeseeksEvent{
		baseEvent:   newBaseEvent("meeseeks."+action, Actor{Role: ActorMeeseeks}),
		Action:      action,
		Task:        task,
		TargetFiles: targetFiles,
	}
}

// Data returns the hook payload body.
func (e MeeseeksEvent) Data() map[string]any {
	targets := e.TargetFiles
	if targets == nil {
		targets = []string{}
	}
	data := map[string]any{"task": truncate(e.Task, 200)}
	switch e.Action {
	case "summoned":
		data["target_files"] = targets
		data["model"] = e.Model
	case "failed":
		data["error"] = truncate(e.Err, 200)
		data["target_files"] = targets
	case "escalated":
		data["reason"] = "Task too complex for a Meeseeks"
		data["target_files"] = targets
	case "completed":
		files := e.Files
		if files == nil {
			files = []string{}
		}
		data["status"] = e.Status
		data["files_changed"] = files
		data["description"] = truncate(e.Description, 200)
		data["complexity"] = e.Complexity
	}
	return data
}

// -----------------------------------------------------------------------------
// Sprint Events
// -----------------------------------------------------------------------------

// SprintEvent marks the start or end of a scheduling run.
type SprintEvent struct {
	baseEvent
	Status     string // started, completed or failed
	Iterations int
	Reason     string
}

// NewSprintStartedEvent creates a sprint.started event.
func NewSprintStartedEvent() SprintEvent {
	return SprintEvent{
		baseEvent: newBaseEvent("sprint.started", Coordinator()),
		Status:    "started",
	}
}

// NewSprintCompletedEvent creates a sprint.completed event. A non-empty
// failure marks the run as failed.
func NewSprintCompletedEvent(iterations int, reason, failure string) SprintEvent {
	e := SprintEvent{
		baseEvent:  newBaseEvent("sprint.completed", Coordinator()),
		Status:     "completed",
		Iterations: iterations,
		Reason:     reason,
	}
	if failure != "" {
		e.Status = "failed"
		e.Reason = truncate(failure, 200)
	}
	return e
}

// Data returns the hook payload body.
func (e SprintEvent) Data() map[string]any {
	data := map[string]any{"status": e.Status}
	if e.EventType() == "sprint.completed" {
		data["iterations"] = e.Iterations
		data["reason"] = e.Reason
	}
	return data
}
