// Package contextprop maintains a team's shared context: the decisions,
// interface declarations and notes members record while they work.
//
// Shared context is append-only. Each team has one record,
// .cto/teams/context/{teamID}-shared.json, created with the team.
// [FormatForPrompt] renders the recent entries for inclusion in member
// prompts, and the [Propagator] publishes team.decision.recorded and
// team.interface.defined events as entries are added.
package contextprop
