package hooks

import (
	"strings"
	"time"

	"github.com/Iron-Ham/cto/internal/event"
)

// EventPrefix namespaces forwarded event types.
const EventPrefix = "cto."

// AgentID returns the hierarchical agent id for an actor:
//
//	cto:rick                       the coordinator
//	cto:meeseeks:<YYYYmmddHHMMSS>  a one-shot agent
//	cto:team:<team>:<role>         a team member
//	cto:morty:<role>               a solo agent
func AgentID(role, teamID string, at time.Time) string {
	switch {
	case role == "" || role == event.ActorCoordinator:
		return "cto:rick"
	case strings.HasPrefix(role, event.ActorMeeseeks):
		return "cto:meeseeks:" + at.UTC().Format("20060102150405")
	case teamID != "":
		return "cto:team:" + teamID + ":" + role
	default:
		return "cto:morty:" + role
	}
}

// Attach forwards every payload-carrying event published on bus to em as
// cto.<event type>. It returns the subscription id for bus.Unsubscribe.
func Attach(bus *event.Bus, em *Emitter) string {
	return bus.SubscribeAll(func(e event.Event) {
		p, ok := e.(event.Payload)
		if !ok {
			return
		}
		actor := p.Actor()
		em.Emit(EventPrefix+e.EventType(), AgentID(actor.Role, actor.TeamID, e.Timestamp()), p.Data())
	})
}
