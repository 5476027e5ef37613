package ticket

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Iron-Ham/cto/internal/errors"
)

// transitions lists the guarded moves of the workflow. Work only moves
// forward, except that review can send it back to todo, and only work in
// progress can become blocked. Any other move is an operator edit made
// through ForceStatus.
var transitions = map[Status][]Status{
	StatusBacklog:    {StatusTodo, StatusInProgress},
	StatusTodo:       {StatusInProgress},
	StatusInProgress: {StatusInReview, StatusTesting, StatusBlocked},
	StatusInReview:   {StatusDone, StatusTesting, StatusTodo},
	StatusTesting:    {StatusDone},
	StatusBlocked:    nil,
	StatusDone:       nil,
}

// CanTransition reports whether the workflow allows from -> to.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// Transition moves t to status to, stamping UpdatedAt (and CompletedAt on
// done). It returns ErrInvalidTransition for moves the workflow forbids.
func Transition(t *Ticket, to Status, now time.Time) error {
	if !to.IsValid() {
		return errors.NewValidationError("unknown status").WithField("status").WithValue(string(to))
	}
	if t.Status == to {
		return nil
	}
	if !CanTransition(t.Status, to) {
		return errors.NewTicketError(fmt.Sprintf("cannot move to %s", to), errors.ErrInvalidTransition).
			WithTicketID(t.ID).WithStatus(string(t.Status))
	}
	ForceStatus(t, to, now)
	return nil
}

// ForceStatus sets the status without consulting the workflow. Operators use
// it to correct tickets by hand.
func ForceStatus(t *Ticket, to Status, now time.Time) {
	t.Status = to
	t.UpdatedAt = now
	if to == StatusDone {
		at := now
		t.CompletedAt = &at
	}
}

// Report statuses an agent may declare in its summary.
const (
	ReportCompleted        = "completed"
	ReportNeedsReview      = "needs_review"
	ReportBlocked          = "blocked"
	ReportRejected         = "rejected"
	ReportChangesRequested = "changes_requested"
)

// StatusFromReport maps the status an agent reported after working a
// ticket to the ticket's next status. Anything other than blocked goes to
// review.
func StatusFromReport(reported string) Status {
	if strings.EqualFold(strings.TrimSpace(reported), ReportBlocked) {
		return StatusBlocked
	}
	return StatusInReview
}

// ReviewRejects reports whether a reviewer's report status sends the ticket
// back to todo.
func ReviewRejects(reported string) bool {
	switch strings.ToLower(strings.TrimSpace(reported)) {
	case ReportBlocked, ReportRejected, ReportChangesRequested:
		return true
	}
	return false
}

// FailureNote formats the review note recorded when an agent fails.
func FailureNote(err error) string {
	return "AGENT FAILURE: " + err.Error()
}

// BlockedNote formats the review note recorded when a ticket is blocked by hand.
func BlockedNote(reason string) string {
	return "BLOCKED: " + reason
}
