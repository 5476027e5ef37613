// Package store persists cto records under the project's .cto directory.
//
// Records are JSON documents grouped into collections (tickets, teams,
// messages, shared context). A [Backend] stores the raw documents and hands
// out monotonically increasing counters; [Store] layers the typed record
// operations every domain package needs on top of it and satisfies their
// Store interfaces.
//
// Two backends exist. [FileBackend] keeps one file per record, written with
// write-then-rename, and guards the counter file with flock(2) so separate
// cto processes never hand out the same id:
//
//	.cto/tickets/CTO-001.json
//	.cto/teams/active/TEAM-001.json
//	.cto/teams/messages/TEAM-001/msg-001.json
//	.cto/teams/context/TEAM-001-shared.json
//	.cto/state.json
//
// [SQLiteBackend] keeps the same documents in a single database file and is
// selected with storage.backend: sqlite.
//
// Architecture decision records under .cto/decisions are always plain
// markdown files regardless of backend.
package store
