package ticket

import (
	"slices"
	"sort"
)

// dependenciesMet reports whether every dependency of t resolves to a ticket
// whose status satisfies dependents. Unknown ids are unmet.
func dependenciesMet(t *Ticket, byID map[string]*Ticket) bool {
	for _, depID := range t.Dependencies {
		dep, ok := byID[depID]
		if !ok || !dep.Status.SatisfiesDependency() {
			return false
		}
	}
	return true
}

// Ready returns the tickets that can be started now: actionable status,
// not an epic, all dependencies met. The result is stably ordered by
// priority (critical first); equal priorities keep input order.
func Ready(all []*Ticket) []*Ticket {
	byID := Index(all)

	var ready []*Ticket
	for _, t := range all {
		if !t.Status.IsActionable() || t.IsEpic() {
			continue
		}
		if dependenciesMet(t, byID) {
			ready = append(ready, t)
		}
	}

	sort.SliceStable(ready, func(i, j int) bool {
		return ready[i].Priority.Rank() < ready[j].Priority.Rank()
	})
	return ready
}

// Next returns the highest-priority ready ticket, or nil.
func Next(all []*Ticket) *Ticket {
	ready := Ready(all)
	if len(ready) == 0 {
		return nil
	}
	return ready[0]
}

// UnmetDependencies lists the dependency ids of t that are not yet satisfied.
func UnmetDependencies(t *Ticket, all []*Ticket) []string {
	byID := Index(all)
	var unmet []string
	for _, depID := range t.Dependencies {
		dep, ok := byID[depID]
		if !ok || !dep.Status.SatisfiesDependency() {
			unmet = append(unmet, depID)
		}
	}
	return unmet
}

// Outcome is the scheduler's verdict on a ticket set.
type Outcome int

const (
	// OutcomeReady means at least one ticket can be started.
	OutcomeReady Outcome = iota
	// OutcomeReview means nothing is ready but tickets await review.
	OutcomeReview
	// OutcomeWait means nothing is ready but work is still in progress.
	OutcomeWait
	// OutcomeDeadlock means nothing is ready, tickets are blocked and
	// nothing is in progress to unblock them.
	OutcomeDeadlock
	// OutcomeIdle means nothing is ready, blocked or in progress.
	OutcomeIdle
	// OutcomeComplete means every non-epic ticket is done.
	OutcomeComplete
)

// String returns a lowercase name for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeReady:
		return "ready"
	case OutcomeReview:
		return "review"
	case OutcomeWait:
		return "wait"
	case OutcomeDeadlock:
		return "deadlock"
	case OutcomeIdle:
		return "idle"
	case OutcomeComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Terminal reports whether a scheduling loop should stop on this outcome.
func (o Outcome) Terminal() bool {
	return o == OutcomeDeadlock || o == OutcomeIdle || o == OutcomeComplete
}

// Assessment is the result of Assess.
type Assessment struct {
	Outcome    Outcome
	Ready      []*Ticket
	InReview   []*Ticket
	InProgress []*Ticket
	Blocked    []*Ticket
	// Cycles lists dependency cycles among tickets that are not done.
	// Tickets on a cycle can never become ready.
	Cycles [][]string
}

// Assess classifies a ticket set for the scheduling loop. The checks run in
// order: complete, ready, review, then the deadlock/wait/idle split.
func Assess(all []*Ticket) Assessment {
	var a Assessment

	nonEpic := 0
	done := 0
	for _, t := range all {
		switch t.Status {
		case StatusInReview:
			a.InReview = append(a.InReview, t)
		case StatusInProgress:
			a.InProgress = append(a.InProgress, t)
		case StatusBlocked:
			a.Blocked = append(a.Blocked, t)
		}
		if t.IsEpic() {
			continue
		}
		nonEpic++
		if t.Status == StatusDone {
			done++
		}
	}

	if nonEpic > 0 && done == nonEpic {
		a.Outcome = OutcomeComplete
		return a
	}

	a.Ready = Ready(all)
	if len(a.Ready) > 0 {
		a.Outcome = OutcomeReady
		return a
	}
	if len(a.InReview) > 0 {
		a.Outcome = OutcomeReview
		return a
	}

	a.Cycles = openCycles(all)

	switch {
	case len(a.Blocked) > 0 && len(a.InProgress) == 0:
		a.Outcome = OutcomeDeadlock
	case len(a.InProgress) > 0:
		a.Outcome = OutcomeWait
	case len(a.Cycles) > 0:
		// Actionable tickets stuck behind a cycle will never start.
		a.Outcome = OutcomeDeadlock
	default:
		a.Outcome = OutcomeIdle
	}
	return a
}

// openCycles returns dependency cycles that include at least one ticket
// that is not done.
func openCycles(all []*Ticket) [][]string {
	byID := Index(all)
	var open [][]string
	for _, cycle := range DetectCycles(all) {
		if slices.ContainsFunc(cycle, func(id string) bool {
			t, ok := byID[id]
			return ok && t.Status != StatusDone
		}) {
			open = append(open, cycle)
		}
	}
	return open
}
