// Package event provides the in-process pub-sub bus that decouples the
// ticket, team and agent components of cto from the things that observe
// them (the hook emitter, the progress log, console output).
//
// # Main Types
//
//   - [Event]: Interface that all events implement, providing EventType() and Timestamp()
//   - [Payload]: Events that carry an [Actor] and a JSON body for external hooks
//   - [Bus]: Synchronous pub-sub dispatcher, safe for concurrent use
//
// # Event Types
//
// Event types follow the pattern "category.action". The hook emitter
// forwards them with a "cto." prefix:
//   - ticket.created, ticket.status.changed, ticket.assigned, ticket.completed, ticket.blocked
//   - team.created, team.member.status.changed, team.team.status.changed
//   - team.decision.recorded, team.interface.defined, team.message.sent
//   - meeseeks.summoned, meeseeks.failed, meeseeks.escalated, meeseeks.completed
//   - sprint.started, sprint.completed
//
// # Basic Usage
//
//	bus := event.NewBus()
//	bus.Subscribe("ticket.blocked", func(e event.Event) {
//	    blocked := e.(event.TicketBlockedEvent)
//	    fmt.Println(blocked.TicketID, blocked.Reason)
//	})
//	bus.Publish(event.NewTicketBlockedEvent("CTO-004", "Auth API", "agent failed", "backend"))
//
// Handlers run synchronously on the publishing goroutine. A panicking handler
// is recovered and logged; other handlers still run.
package event
