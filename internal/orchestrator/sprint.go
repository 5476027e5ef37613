package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/Iron-Ham/cto/internal/errors"
	"github.com/Iron-Ham/cto/internal/event"
	"github.com/Iron-Ham/cto/internal/progress"
	"github.com/Iron-Ham/cto/internal/ticket"
)

// Reasons a sprint stops.
const (
	ReasonComplete      = "complete"
	ReasonDeadlock      = "deadlock"
	ReasonIdle          = "idle"
	ReasonReviewPending = "review_pending"
	ReasonMaxIterations = "max_iterations"
	ReasonCanceled      = "canceled"
	ReasonError         = "error"
)

// StepResult describes one scheduling iteration.
type StepResult struct {
	Iteration  int
	Assessment ticket.Assessment
	// Delegation is set when the step delegated a ready ticket.
	Delegation *DelegateResult
	// Approved is true when the delegated ticket was approved right away.
	Approved bool
	// Reviews is set when the step reviewed tickets instead.
	Reviews []*ReviewResult
	// Stop is non-empty when the loop should end after this step.
	Stop string
}

// Step runs one scheduling iteration: delegate the most urgent ready ticket,
// or review waiting work, or report why nothing can move. Tickets in
// reviewed are not reviewed again.
func (o *Orchestrator) Step(ctx context.Context, reviewed map[string]bool) (*StepResult, error) {
	all, err := o.tickets.List(ticket.Filter{})
	if err != nil {
		return nil, err
	}
	res := &StepResult{Assessment: ticket.Assess(all)}
	a := res.Assessment

	switch a.Outcome {
	case ticket.OutcomeComplete:
		res.Stop = ReasonComplete
	case ticket.OutcomeDeadlock:
		res.Stop = ReasonDeadlock
	case ticket.OutcomeIdle:
		res.Stop = ReasonIdle
	case ticket.OutcomeWait:
		// In-progress work belongs to another run; Sprint pauses and
		// assesses again.

	case ticket.OutcomeReady:
		next := a.Ready[0]
		res.Delegation, err = o.Delegate(ctx, next.ID, DelegateOptions{})
		if err != nil {
			return res, err
		}
		res.Delegation.Ticket, res.Approved, err = o.approve(res.Delegation.Ticket)
		if err != nil {
			return res, err
		}

	case ticket.OutcomeReview:
		if reviewed == nil {
			reviewed = map[string]bool{}
		}
		res.Reviews, err = o.ReviewAll(ctx, o.cfg.Sprint.ReviewBatch, reviewed)
		for _, r := range res.Reviews {
			reviewed[r.Ticket.ID] = true
		}
		if err != nil {
			return res, err
		}
		if len(res.Reviews) == 0 {
			res.Stop = ReasonReviewPending
		}
	}
	return res, nil
}

// SprintResult summarizes a sprint.
type SprintResult struct {
	Iterations int
	Reason     string
	Done       int
	Total      int
	// Blocked lists blocked tickets when the sprint ended in deadlock.
	Blocked []*ticket.Ticket
	// Cycles lists dependency cycles that kept tickets from starting.
	Cycles [][]string
}

// Percent returns the share of tickets done, 0 to 100.
func (r *SprintResult) Percent() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Done) / float64(r.Total) * 100
}

// Sprint runs Step until the work is complete, stuck or maxIterations is
// reached. A non-positive maxIterations uses sprint.max_iterations.
// onStep, if set, is called after every step. A step that can only wait
// on in-progress work is followed by a pause of sprint.wait_seconds.
// Cancelling ctx stops the sprint between iterations or during a pause.
func (o *Orchestrator) Sprint(ctx context.Context, maxIterations int, onStep func(*StepResult)) (*SprintResult, error) {
	if maxIterations <= 0 {
		maxIterations = o.cfg.Sprint.MaxIterations
	}
	o.publish(event.NewSprintStartedEvent())
	o.record(progress.Entry{
		Action:  progress.ActionStarted,
		Message: fmt.Sprintf("Sprint started (max %d iterations)", maxIterations),
	})
	o.logger.Info("sprint started", "max_iterations", maxIterations)

	res := &SprintResult{Reason: ReasonMaxIterations}
	reviewed := map[string]bool{}
	var runErr error
	for res.Iterations < maxIterations {
		if err := ctx.Err(); err != nil {
			res.Reason = ReasonCanceled
			runErr = fmt.Errorf("%w: %v", errors.ErrCanceled, err)
			break
		}
		res.Iterations++
		step, err := o.Step(ctx, reviewed)
		if step != nil {
			step.Iteration = res.Iterations
			if onStep != nil {
				onStep(step)
			}
		}
		if err != nil {
			res.Reason = ReasonCanceled
			if !errors.Is(err, errors.ErrCanceled) {
				res.Reason = ReasonError
			}
			runErr = err
			break
		}
		if step.Stop != "" {
			res.Reason = step.Stop
			if step.Stop == ReasonDeadlock {
				res.Blocked = step.Assessment.Blocked
				res.Cycles = step.Assessment.Cycles
			}
			break
		}
		if step.Assessment.Outcome == ticket.OutcomeWait && res.Iterations < maxIterations {
			if err := o.pause(ctx); err != nil {
				res.Reason = ReasonCanceled
				runErr = err
				break
			}
		}
	}

	all, err := o.tickets.List(ticket.Filter{})
	if err == nil {
		res.Total = len(all)
		res.Done = progress.StatusCounts(all)[ticket.StatusDone]
	}

	failure := ""
	if runErr != nil {
		failure = runErr.Error()
	}
	o.publish(event.NewSprintCompletedEvent(res.Iterations, res.Reason, failure))
	o.record(progress.Entry{
		Action:  progress.ActionCompleted,
		Message: fmt.Sprintf("Sprint finished: %d/%d tickets done (%s)", res.Done, res.Total, res.Reason),
	})
	o.logger.Info("sprint finished",
		"iterations", res.Iterations,
		"reason", res.Reason,
		"done", res.Done,
		"total", res.Total,
	)
	return res, runErr
}

// pause waits out the wait interval unless ctx is cancelled first.
func (o *Orchestrator) pause(ctx context.Context) error {
	o.logger.Debug("waiting on in-progress work", "interval", o.waitInterval.String())
	timer := time.NewTimer(o.waitInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", errors.ErrCanceled, ctx.Err())
	case <-timer.C:
		return nil
	}
}
