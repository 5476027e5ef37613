// Package hooks delivers cto lifecycle events to an external webhook.
//
// Delivery is fire-and-forget. [Emitter.Emit] puts the event on a bounded
// queue and returns at once; a fixed pool of workers POSTs each event as
//
//	{"agentId": "cto:team:TEAM-001:backend", "eventType": "cto.ticket.completed",
//	 "timestamp": "2026-01-02T03:04:05Z", "data": {...}}
//
// A full queue drops the event. Every delivery outcome feeds a [Breaker];
// after repeated failures the breaker opens and events are skipped until
// the cooldown passes, so an unreachable endpoint costs nothing but the
// first few timeouts. Delivery errors never reach the caller.
//
// [Attach] forwards every event published on an [event.Bus].
package hooks
