package orchestrator

import (
	"context"
	"fmt"

	"github.com/Iron-Ham/cto/internal/agent"
	"github.com/Iron-Ham/cto/internal/errors"
	"github.com/Iron-Ham/cto/internal/orchestrator/prompt"
	"github.com/Iron-Ham/cto/internal/progress"
	"github.com/Iron-Ham/cto/internal/report"
	"github.com/Iron-Ham/cto/internal/ticket"
)

// ReviewFailure names what a failed review does to the ticket.
type ReviewFailure string

const (
	// ReviewFailureKeep leaves the ticket in review for the next review.
	ReviewFailureKeep ReviewFailure = "keep"
	// ReviewFailureApprove treats the failed review as approval.
	ReviewFailureApprove ReviewFailure = "approve"
	// ReviewFailureReject sends the ticket back to todo with the failure
	// recorded in its notes.
	ReviewFailureReject ReviewFailure = "reject"
)

// ReviewPolicy decides what happens to reviewed work.
type ReviewPolicy struct {
	// AutoApprove moves work the reviewer did not reject straight to done.
	// Without it such tickets stay in review for a human to approve.
	AutoApprove bool
	// OnFailure applies when the reviewer agent itself fails. The zero
	// value keeps the ticket in review.
	OnFailure ReviewFailure
}

// Verdict is the outcome of one review.
type Verdict string

const (
	VerdictApproved Verdict = "approved"
	VerdictRejected Verdict = "rejected"
	// VerdictPending means the ticket stays in review.
	VerdictPending Verdict = "pending"
)

// ReviewResult describes one review.
type ReviewResult struct {
	Ticket  *ticket.Ticket
	Verdict Verdict
	Report  report.Report
	// Err is the reviewer failure, if any. The policy's OnFailure decides
	// the verdict of a failed review.
	Err error
}

// Review has the reviewer look at an in_review ticket. A report status of
// blocked, rejected or changes_requested sends the ticket back to todo with
// the reviewer's notes; anything else is settled by the review policy.
func (o *Orchestrator) Review(ctx context.Context, id string) (*ReviewResult, error) {
	t, err := o.tickets.Get(id)
	if err != nil {
		return nil, err
	}
	if t.Status != ticket.StatusInReview {
		return nil, errors.NewTicketError("ticket is not in review", errors.ErrInvalidTransition).
			WithTicketID(id).WithStatus(string(t.Status))
	}
	logger := o.logger.WithTicket(id).WithRole(string(agent.RoleReviewer))

	pc := o.projectContext(t)
	pc.Kind = prompt.KindReview
	pc.Ticket = t
	pc.Role = agent.RoleReviewer
	text, err := prompt.NewReviewBuilder().Build(&pc)
	if err != nil {
		return nil, err
	}

	res := &ReviewResult{Ticket: t, Verdict: VerdictPending}
	output, err := o.exec.Invoke(ctx, agent.Request{
		Prompt:  text,
		Model:   o.modelFor(agent.RoleReviewer),
		Timeout: o.cfg.Agent.AgentTimeout(),
		Dir:     o.root,
	})
	if err != nil {
		logger.Warn("review failed", "error", err, "on_failure", string(o.policy.OnFailure))
		res.Err = err
		return o.settleFailedReview(res)
	}

	res.Report = report.Parse(output)
	switch {
	case ticket.ReviewRejects(res.Report.Status):
		res.Verdict = VerdictRejected
		res.Ticket, err = o.tickets.Reject(id, "REVIEW: "+res.Report.Description)
	case o.policy.AutoApprove:
		res.Verdict = VerdictApproved
		res.Ticket, err = o.tickets.Approve(id)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("review finished", "verdict", string(res.Verdict))
	o.recordReview(res)
	o.rollupParent(res.Ticket)
	return res, nil
}

// settleFailedReview applies the failure policy to a review whose agent
// failed.
func (o *Orchestrator) settleFailedReview(res *ReviewResult) (*ReviewResult, error) {
	id := res.Ticket.ID
	var err error
	switch o.policy.OnFailure {
	case ReviewFailureApprove:
		res.Verdict = VerdictApproved
		res.Ticket, err = o.tickets.Approve(id)
	case ReviewFailureReject:
		res.Verdict = VerdictRejected
		res.Ticket, err = o.tickets.Reject(id, ticket.FailureNote(res.Err))
	}
	if err != nil {
		return nil, err
	}
	o.recordReview(res)
	if res.Verdict != VerdictPending {
		o.rollupParent(res.Ticket)
	}
	return res, nil
}

func (o *Orchestrator) recordReview(res *ReviewResult) {
	msg := fmt.Sprintf("Review completed: %s -> %s", res.Ticket.Title, res.Ticket.Status)
	if res.Err != nil {
		msg = fmt.Sprintf("Review failed (%s): %s", res.Verdict, truncate(res.Err.Error(), 200))
	}
	o.record(progress.Entry{
		TicketID: res.Ticket.ID,
		Agent:    string(agent.RoleReviewer),
		Action:   progress.ActionReviewed,
		Message:  msg,
	})
}

// ReviewAll reviews in_review tickets in id order, at most limit of them
// when limit is positive. Tickets in skip are left alone.
func (o *Orchestrator) ReviewAll(ctx context.Context, limit int, skip map[string]bool) ([]*ReviewResult, error) {
	pending, err := o.tickets.List(ticket.Filter{Status: ticket.StatusInReview})
	if err != nil {
		return nil, err
	}
	var results []*ReviewResult
	for _, t := range pending {
		if skip[t.ID] {
			continue
		}
		if limit > 0 && len(results) >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("%w: %v", errors.ErrCanceled, err)
		}
		res, err := o.Review(ctx, t.ID)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// approve applies the review policy to a delegation that landed in review.
func (o *Orchestrator) approve(t *ticket.Ticket) (*ticket.Ticket, bool, error) {
	if !o.policy.AutoApprove || t.Status != ticket.StatusInReview {
		return t, false, nil
	}
	approved, err := o.tickets.Approve(t.ID)
	if err != nil {
		return nil, false, err
	}
	o.record(progress.Entry{
		TicketID:     t.ID,
		Action:       progress.ActionCompleted,
		Message:      "Approved: " + t.Title,
		FilesChanged: approved.FilesTouched,
	})
	o.rollupParent(approved)
	return approved, true, nil
}
