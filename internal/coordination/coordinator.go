package coordination

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/cto/internal/agent"
	"github.com/Iron-Ham/cto/internal/contextprop"
	"github.com/Iron-Ham/cto/internal/errors"
	"github.com/Iron-Ham/cto/internal/logging"
	"github.com/Iron-Ham/cto/internal/mailbox"
	"github.com/Iron-Ham/cto/internal/orchestrator/prompt"
	"github.com/Iron-Ham/cto/internal/report"
	"github.com/Iron-Ham/cto/internal/team"
	"github.com/Iron-Ham/cto/internal/ticket"
)

const (
	// DefaultMaxParallel bounds parallel phases when no limit is configured.
	DefaultMaxParallel = 4
	// DefaultMemberTimeout bounds one member invocation.
	DefaultMemberTimeout = agent.DefaultTimeout
	// DefaultRecentMessages is how many messages a member prompt shows.
	DefaultRecentMessages = 10

	summaryLimit = 200
	failureLimit = 100
)

// Tickets is the part of the ticket service the coordinator needs.
type Tickets interface {
	Get(id string) (*ticket.Ticket, error)
	RecordResult(id string, r ticket.Result) (*ticket.Ticket, error)
}

// ContextFunc returns the project context shown to a member working on t.
// The coordinator fills in the kind, ticket, role and team.
type ContextFunc func(t *ticket.Ticket) prompt.Context

// Config holds the required dependencies of a Coordinator.
type Config struct {
	Teams    *team.Manager
	Mailbox  *mailbox.Mailbox
	Shared   *contextprop.Propagator
	Executor agent.Executor
	Tickets  Tickets
}

// Coordinator executes teams.
type Coordinator struct {
	teams    *team.Manager
	mb       *mailbox.Mailbox
	shared   *contextprop.Propagator
	exec     agent.Executor
	tickets  Tickets
	builder  *prompt.DelegateBuilder
	project  ContextFunc
	models   map[string]string
	logger   *logging.Logger

	maxParallel    int
	memberTimeout  time.Duration
	recentMessages int
}

// New creates a Coordinator.
func New(cfg Config, opts ...Option) (*Coordinator, error) {
	switch {
	case cfg.Teams == nil:
		return nil, errors.New("coordination: Teams is required")
	case cfg.Mailbox == nil:
		return nil, errors.New("coordination: Mailbox is required")
	case cfg.Shared == nil:
		return nil, errors.New("coordination: Shared is required")
	case cfg.Executor == nil:
		return nil, errors.New("coordination: Executor is required")
	case cfg.Tickets == nil:
		return nil, errors.New("coordination: Tickets is required")
	}

	c := &Coordinator{
		teams:          cfg.Teams,
		mb:             cfg.Mailbox,
		shared:         cfg.Shared,
		exec:           cfg.Executor,
		tickets:        cfg.Tickets,
		builder:        prompt.NewDelegateBuilder(),
		project:        func(*ticket.Ticket) prompt.Context { return prompt.Context{} },
		logger:         logging.NopLogger(),
		maxParallel:    DefaultMaxParallel,
		memberTimeout:  DefaultMemberTimeout,
		recentMessages: DefaultRecentMessages,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// MemberResult is the outcome of one member's run.
type MemberResult struct {
	Role    string
	Status  team.MemberStatus
	Summary string
	Files   []string
	Err     error
}

// Result is the outcome of a team run.
type Result struct {
	// Team is the team as stored after the run.
	Team *team.Team
	// Members holds the members that ran, in the order they finished.
	Members []MemberResult
	// Ticket is the parent ticket after roll-up, nil when it was not
	// in progress and so left alone.
	Ticket *ticket.Ticket
}

// Completed reports whether every member completed.
func (r *Result) Completed() bool {
	return r.Team != nil && r.Team.Status == team.StatusCompleted
}

// Files returns every file the members reported changing, without duplicates.
func (r *Result) Files() []string {
	seen := make(map[string]bool)
	var files []string
	for _, m := range r.Members {
		for _, f := range m.Files {
			if !seen[f] {
				seen[f] = true
				files = append(files, f)
			}
		}
	}
	return files
}

// run collects member results from concurrent goroutines.
type run struct {
	mu      sync.Mutex
	teamID  string
	parent  *ticket.Ticket
	members []MemberResult
}

func (r *run) add(m MemberResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members = append(r.members, m)
}

// Run executes the team's pending members by its coordination mode and rolls
// the team status up onto the parent ticket. Members already completed or
// blocked are not run again. Cancelling ctx stops further members from
// starting; members left unstarted stay pending.
func (c *Coordinator) Run(ctx context.Context, teamID string) (*Result, error) {
	t, err := c.teams.Get(teamID)
	if err != nil {
		return nil, err
	}
	parent, err := c.tickets.Get(t.ParentTicket)
	if err != nil {
		return nil, fmt.Errorf("load parent ticket: %w", err)
	}

	logger := c.logger.WithTeam(teamID)
	logger.Info("team run started",
		"parent_ticket", t.ParentTicket,
		"mode", string(t.Coordination.Mode),
		"lead", t.Coordination.Lead,
		"members", len(t.Members),
	)

	r := &run{teamID: teamID, parent: parent}
	switch t.Coordination.Mode {
	case team.ModeSequential:
		c.runSequential(ctx, r, t)
	case team.ModeMixed:
		c.runMixed(ctx, r, t)
	default:
		c.runParallel(ctx, r, pending(t.Members))
	}

	final, err := c.teams.Get(teamID)
	if err != nil {
		return nil, err
	}
	res := &Result{Team: final, Members: r.members}
	logger.Info("team run finished", "status", string(final.Status), "ran", len(r.members))

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("%w: %v", errors.ErrCanceled, err)
	}

	res.Ticket, err = c.rollup(res)
	if err != nil {
		return res, err
	}
	return res, nil
}

// pending returns the members that have not finished.
func pending(members []team.Member) []team.Member {
	var out []team.Member
	for _, m := range members {
		if !m.Status.IsTerminal() {
			out = append(out, m)
		}
	}
	return out
}

// ordered returns the lead first, then the other members in template order.
func ordered(t *team.Team) []team.Member {
	var out []team.Member
	if lead, ok := t.Lead(); ok {
		out = append(out, *lead)
	}
	return append(out, t.Others()...)
}

func (c *Coordinator) runSequential(ctx context.Context, r *run, t *team.Team) {
	for _, m := range ordered(t) {
		if m.Status == team.MemberCompleted {
			continue
		}
		if m.Status == team.MemberBlocked || ctx.Err() != nil {
			return
		}
		res := c.runMember(ctx, r, m.Role)
		if res.Status != team.MemberCompleted {
			c.logger.WithTeam(t.ID).Info("sequential run stopped", "role", m.Role, "status", string(res.Status))
			return
		}
	}
}

func (c *Coordinator) runMixed(ctx context.Context, r *run, t *team.Team) {
	lead, ok := t.Lead()
	if !ok {
		c.runParallel(ctx, r, pending(t.Members))
		return
	}
	status := lead.Status
	if !status.IsTerminal() {
		if ctx.Err() != nil {
			return
		}
		status = c.runMember(ctx, r, lead.Role).Status
	}
	if status != team.MemberCompleted {
		c.logger.WithTeam(t.ID).Info("lead did not complete, skipping the rest", "lead", lead.Role)
		return
	}
	c.runParallel(ctx, r, pending(t.Others()))
}

// runParallel runs members concurrently, at most maxParallel at a time. A
// failing member never cancels the others.
func (c *Coordinator) runParallel(ctx context.Context, r *run, members []team.Member) {
	if len(members) == 0 {
		return
	}
	p := pool.New().WithMaxGoroutines(min(len(members), c.maxParallel))
	for _, m := range members {
		p.Go(func() {
			if ctx.Err() != nil {
				return
			}
			c.runMember(ctx, r, m.Role)
		})
	}
	p.Wait()
}

// runMember executes one member and records its outcome on the team.
func (c *Coordinator) runMember(ctx context.Context, r *run, role string) MemberResult {
	logger := c.logger.WithTeam(r.teamID).WithRole(role)
	res := MemberResult{Role: role}
	defer func() { r.add(res) }()

	t, err := c.teams.UpdateMember(r.teamID, role, team.MemberWorking, "")
	if err != nil {
		res.Status, res.Err = team.MemberBlocked, err
		logger.Error("failed to start member", "error", err)
		return res
	}

	text, model, err := c.memberPrompt(r.parent, t, role)
	if err == nil {
		logger.Info("member started", "model", model)
		var output string
		output, err = c.exec.Invoke(ctx, agent.Request{
			Prompt:  text,
			Model:   model,
			Timeout: c.memberTimeout,
		})
		if err == nil {
			c.applyReport(r.teamID, role, output, &res)
		}
	}
	if err != nil {
		res.Status = team.MemberBlocked
		res.Summary = "FAILED: " + report.Truncate(err.Error(), failureLimit)
		res.Err = err
		logger.Warn("member failed", "error", err)
	}

	if _, uerr := c.teams.UpdateMember(r.teamID, role, res.Status, res.Summary); uerr != nil {
		logger.Error("failed to record member result", "error", uerr)
		if res.Err == nil {
			res.Err = uerr
		}
	}
	logger.Info("member finished", "status", string(res.Status))
	return res
}

// memberPrompt builds the delegation prompt for role and picks its model.
func (c *Coordinator) memberPrompt(parent *ticket.Ticket, t *team.Team, role string) (string, string, error) {
	r, err := agent.ParseRole(role)
	if err != nil {
		r = agent.RoleFullstack
	}

	shared, err := c.shared.Get(t.ID)
	if err != nil {
		return "", "", fmt.Errorf("load shared context: %w", err)
	}
	msgs, err := c.mb.Recent(t.ID, role, c.recentMessages)
	if err != nil {
		return "", "", fmt.Errorf("load messages: %w", err)
	}

	pc := c.project(parent)
	pc.Kind = prompt.KindDelegate
	pc.Ticket = parent
	pc.Role = r
	pc.Team = &prompt.TeamContext{Team: t, Shared: shared, Messages: msgs}
	text, err := c.builder.Build(&pc)
	if err != nil {
		return "", "", err
	}
	return text, agent.ModelFor(r, c.models), nil
}

// applyReport parses a member's output, posts its messages and decisions,
// and fills in the result.
func (c *Coordinator) applyReport(teamID, role, output string, res *MemberResult) {
	logger := c.logger.WithTeam(teamID).WithRole(role)
	rep := report.Parse(output)
	updates := report.ParseTeamUpdates(output)

	if len(updates.Messages) > 0 {
		directives := make([]mailbox.Directive, len(updates.Messages))
		for i, m := range updates.Messages {
			directives[i] = mailbox.Directive{To: m.To, Body: m.Body}
		}
		if _, err := c.mb.SendDirectives(teamID, role, directives); err != nil {
			logger.Warn("failed to post member messages", "error", err)
		}
	}
	for _, d := range updates.Decisions {
		if err := c.shared.RecordDecision(teamID, d, role); err != nil {
			logger.Warn("failed to record decision", "error", err)
		}
	}

	res.Status = team.MemberCompleted
	if updates.IsBlocked() || strings.EqualFold(rep.Status, report.StatusBlocked) {
		res.Status = team.MemberBlocked
	}
	res.Summary = report.Truncate(rep.Description, summaryLimit)
	res.Files = rep.FilesChanged
}

// rollup moves an in-progress parent ticket to review when the team
// completed, or to blocked with the blocked members' summaries when it is
// blocked. Any other ticket or team state is left alone.
func (c *Coordinator) rollup(res *Result) (*ticket.Ticket, error) {
	t := res.Team
	parent, err := c.tickets.Get(t.ParentTicket)
	if err != nil {
		return nil, err
	}
	if parent.Status != ticket.StatusInProgress {
		return nil, nil
	}

	var result ticket.Result
	switch t.Status {
	case team.StatusCompleted:
		result = ticket.Result{
			ReportedStatus: report.StatusCompleted,
			Output:         TeamOutput(t),
			Files:          res.Files(),
		}
	case team.StatusBlocked:
		result = ticket.Result{
			ReportedStatus: report.StatusBlocked,
			Output:         TeamOutput(t),
			Files:          res.Files(),
			Notes:          BlockedNotes(t),
		}
	default:
		return nil, nil
	}

	updated, err := c.tickets.RecordResult(parent.ID, result)
	if err != nil {
		return nil, fmt.Errorf("roll up team %s: %w", t.ID, err)
	}
	c.logger.WithTeam(t.ID).WithTicket(parent.ID).Info("team result rolled up",
		"team_status", string(t.Status), "ticket_status", string(updated.Status))
	return updated, nil
}

// TeamOutput joins the members' summaries, one "[role] summary" per line.
func TeamOutput(t *team.Team) string {
	var lines []string
	for _, m := range t.Members {
		if m.OutputSummary != "" {
			lines = append(lines, fmt.Sprintf("[%s] %s", m.Role, m.OutputSummary))
		}
	}
	return strings.Join(lines, "\n")
}

// BlockedNotes renders the review note for a blocked team.
func BlockedNotes(t *team.Team) string {
	blocked := t.Blocked()
	parts := make([]string, len(blocked))
	for i, m := range blocked {
		parts[i] = fmt.Sprintf("%s: %s", m.Role, m.OutputSummary)
	}
	return "TEAM BLOCKED: " + strings.Join(parts, "; ")
}
