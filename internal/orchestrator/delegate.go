package orchestrator

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Iron-Ham/cto/internal/agent"
	"github.com/Iron-Ham/cto/internal/coordination"
	"github.com/Iron-Ham/cto/internal/errors"
	"github.com/Iron-Ham/cto/internal/orchestrator/prompt"
	"github.com/Iron-Ham/cto/internal/progress"
	"github.com/Iron-Ham/cto/internal/report"
	"github.com/Iron-Ham/cto/internal/team"
	"github.com/Iron-Ham/cto/internal/ticket"
)

// Team selection for DelegateOptions.Team.
const (
	// TeamAuto forms a team when the ticket asks for one or is large enough.
	TeamAuto = ""
	// TeamNever always delegates to a single agent.
	TeamNever = "none"
)

// DelegateOptions tune a single delegation. Zero values pick defaults.
type DelegateOptions struct {
	// Role forces the agent role; empty selects one from the ticket.
	Role agent.Role
	// Model forces the model; empty uses the role's model.
	Model string
	// Timeout bounds the agent; zero uses agent.timeout_seconds.
	Timeout time.Duration
	// Team is TeamAuto, TeamNever or a template name to force a team.
	Team string
	// DryRun builds the prompt without assigning or invoking anything.
	DryRun bool
}

// DelegateResult describes one delegation.
type DelegateResult struct {
	Ticket *ticket.Ticket
	Role   agent.Role
	Model  string
	// Prompt is set for solo delegations.
	Prompt string
	Report report.Report
	// Team is set when the ticket was worked by a team.
	Team   *coordination.Result
	DryRun bool
	// Err is the agent failure that blocked the ticket, if any.
	Err error
}

// Blocked reports whether the delegation left the ticket blocked.
func (r *DelegateResult) Blocked() bool {
	return r.Ticket != nil && r.Ticket.Status == ticket.StatusBlocked
}

// Delegate hands ticket id to an agent or a team and records the outcome on
// the ticket. Agent failures block the ticket and are reported in the
// result; the returned error is reserved for failures to read or write
// state.
func (o *Orchestrator) Delegate(ctx context.Context, id string, opts DelegateOptions) (*DelegateResult, error) {
	t, err := o.tickets.Get(id)
	if err != nil {
		return nil, err
	}
	if !opts.DryRun && !t.Status.IsActionable() {
		return nil, errors.NewTicketError("ticket cannot be delegated", errors.ErrInvalidTransition).
			WithTicketID(id).WithStatus(string(t.Status))
	}

	role := opts.Role
	if role == "" {
		role = agent.SelectRole(string(t.Type), t.Title, t.Description)
	}
	model := opts.Model
	if model == "" {
		model = o.modelFor(role)
	}

	if tmpl, ok := o.teamTemplate(t, role, opts.Team); ok && !opts.DryRun {
		res, err := o.delegateTeam(ctx, t, tmpl)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, errTeamSetup) {
			return nil, err
		}
		o.logger.WithTicket(id).Warn("team setup failed, delegating solo", "template", tmpl, "error", err)
		if t, err = o.tickets.Get(id); err != nil {
			return nil, err
		}
	}
	return o.delegateSolo(ctx, t, role, model, opts)
}

// errTeamSetup marks failures to form or dispatch a team, which fall back
// to solo work.
var errTeamSetup = errors.New("team setup failed")

// teamTemplate decides whether t is worked by a team and with which
// template: an explicit request wins, then the ticket's own template, then
// the auto complexities.
func (o *Orchestrator) teamTemplate(t *ticket.Ticket, role agent.Role, requested string) (string, bool) {
	switch {
	case requested == TeamNever || o.runner == nil:
		return "", false
	case requested != TeamAuto:
		return requested, true
	case t.TeamTemplate != "":
		return t.TeamTemplate, true
	case t.IsEpic():
		return "", false
	case slices.Contains(o.cfg.Team.AutoComplexities, string(t.Complexity)):
		return team.ForRole(role), true
	}
	return "", false
}

func (o *Orchestrator) delegateSolo(ctx context.Context, t *ticket.Ticket, role agent.Role, model string, opts DelegateOptions) (*DelegateResult, error) {
	logger := o.logger.WithTicket(t.ID).WithRole(string(role))
	res := &DelegateResult{Ticket: t, Role: role, Model: model, DryRun: opts.DryRun}

	pc := o.projectContext(t)
	pc.Kind = prompt.KindDelegate
	pc.Ticket = t
	pc.Role = role
	text, err := prompt.NewDelegateBuilder().Build(&pc)
	if err != nil {
		return nil, err
	}
	res.Prompt = text
	if opts.DryRun {
		return res, nil
	}

	// A ticket left in progress by a team that never started is handed over
	// rather than assigned afresh.
	assign := o.tickets.Assign
	if t.Status == ticket.StatusInProgress {
		assign = o.tickets.Reassign
	}
	if _, err := assign(t.ID, string(role)); err != nil {
		return nil, err
	}
	o.record(progress.Entry{
		TicketID: t.ID,
		Agent:    string(role),
		Action:   progress.ActionStarted,
		Message:  fmt.Sprintf("Delegated to %s (model: %s)", atMention(string(role)), model),
	})
	logger.Info("delegating ticket", "model", model)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = o.cfg.Agent.AgentTimeout()
	}
	output, err := o.exec.Invoke(ctx, agent.Request{
		Prompt:  text,
		Model:   model,
		Timeout: timeout,
		Dir:     o.root,
	})
	if err != nil {
		logger.Warn("agent failed", "error", err)
		res.Err = err
		res.Ticket, err = o.tickets.Fail(t.ID, err)
		if err != nil {
			return nil, err
		}
		o.record(progress.Entry{
			TicketID: t.ID,
			Agent:    string(role),
			Action:   progress.ActionBlocked,
			Message:  "Agent failed: " + truncate(res.Err.Error(), 200),
		})
		o.rollupParent(res.Ticket)
		return res, nil
	}

	res.Report = report.Parse(output)
	res.Ticket, err = o.tickets.RecordResult(t.ID, ticket.Result{
		ReportedStatus: res.Report.Status,
		Output:         res.Report.Description,
		Files:          res.Report.FilesChanged,
	})
	if err != nil {
		return nil, err
	}

	action := progress.ActionCompleted
	if res.Blocked() {
		action = progress.ActionBlocked
	}
	o.record(progress.Entry{
		TicketID:     t.ID,
		Agent:        string(role),
		Action:       action,
		Message:      truncate(res.Report.Description, 200),
		FilesChanged: res.Report.FilesChanged,
	})
	logger.Info("delegation finished", "status", string(res.Ticket.Status), "files", len(res.Report.FilesChanged))
	o.rollupParent(res.Ticket)
	return res, nil
}

// delegateTeam forms a team for t and runs it. Failures before any member
// starts wrap errTeamSetup and leave the team blocked.
func (o *Orchestrator) delegateTeam(ctx context.Context, t *ticket.Ticket, template string) (*DelegateResult, error) {
	logger := o.logger.WithTicket(t.ID)

	tm, err := o.teams.Create(t.ID, template)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errTeamSetup, err)
	}
	if _, err := o.tickets.SetTeam(t.ID, tm.ID); err != nil {
		return nil, fmt.Errorf("%w: %v", errTeamSetup, err)
	}
	if _, err := o.tickets.Assign(t.ID, tm.Coordination.Lead); err != nil {
		return nil, err
	}
	o.record(progress.Entry{
		TicketID: t.ID,
		Agent:    tm.Coordination.Lead,
		Action:   progress.ActionStarted,
		Message:  fmt.Sprintf("Team %s (%s, %s) started", tm.ID, template, tm.Coordination.Mode),
	})
	logger.Info("delegating to team", "team_id", tm.ID, "template", template)

	run, runErr := o.runner.Run(ctx, tm.ID)
	if run == nil && runErr != nil && !errors.Is(runErr, errors.ErrCanceled) {
		if _, err := o.teams.Mutate(tm.ID, func(tm *team.Team) error {
			tm.Status = team.StatusBlocked
			return nil
		}); err != nil {
			logger.Warn("failed to block undispatched team", "team_id", tm.ID, "error", err)
		}
		return nil, fmt.Errorf("%w: %v", errTeamSetup, runErr)
	}
	res := &DelegateResult{Role: agent.Role(tm.Coordination.Lead), Team: run}

	if runErr != nil && !errors.Is(runErr, errors.ErrCanceled) {
		cur, err := o.tickets.Get(t.ID)
		if err != nil {
			return nil, err
		}
		if cur.Status == ticket.StatusInProgress {
			res.Err = runErr
			if _, err := o.tickets.Fail(t.ID, runErr); err != nil {
				return nil, err
			}
		}
	}

	res.Ticket, err = o.tickets.Get(t.ID)
	if err != nil {
		return nil, err
	}
	if runErr != nil && errors.Is(runErr, errors.ErrCanceled) {
		return res, runErr
	}

	action, msg := progress.ActionCompleted, fmt.Sprintf("Team %s completed", tm.ID)
	if res.Blocked() {
		action, msg = progress.ActionBlocked, fmt.Sprintf("Team %s blocked: %s", tm.ID, truncate(res.Ticket.ReviewNotes, 200))
	}
	var files []string
	if run != nil {
		files = run.Files()
	}
	o.record(progress.Entry{
		TicketID:     t.ID,
		Agent:        tm.Coordination.Lead,
		Action:       action,
		Message:      msg,
		FilesChanged: files,
	})
	o.rollupParent(res.Ticket)
	return res, nil
}
