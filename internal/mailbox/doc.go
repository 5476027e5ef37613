// Package mailbox provides the per-team message bus used by team members to
// talk to each other while a team works a ticket.
//
// Messages are stored one record per message under the team:
//
//	.cto/teams/messages/{teamID}/msg-001.json
//
// Ids are team scoped and allocated as the number of existing messages plus
// one, so the log is append-only: nothing in cto deletes a message.
//
// # Main Types
//
//   - [Message]: sender role, recipient role or [Broadcast], body, type and read-set
//   - [MessageType]: info, question, decision or blocked
//   - [Store]: persistence boundary, implemented by internal/store
//   - [Mailbox]: Send, Get and MarkRead on top of a Store
//
// # Addressing
//
// A message is visible to a role when it is addressed to that role, is a
// broadcast ("@*"), or was sent by that role. Get with unreadOnly drops the
// messages whose read-set already contains the role.
//
// # Basic Usage
//
//	mb := mailbox.NewMailbox(st, mailbox.WithBus(bus))
//
//	msg, err := mb.Send("TEAM-001", "architect", mailbox.Broadcast,
//	    "API contract is in docs/api.md", mailbox.MessageDecision)
//
//	unread, err := mb.Get("TEAM-001", "backend", true)
//	_, err = mb.MarkRead("TEAM-001", "backend")
//
// # Thread Safety
//
// [Mailbox] serializes id allocation and read-set updates with an internal
// mutex. Concurrent writers in other processes are not coordinated.
package mailbox
