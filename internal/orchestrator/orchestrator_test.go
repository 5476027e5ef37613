package orchestrator

import (
	"context"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/cto/internal/agent"
	"github.com/Iron-Ham/cto/internal/config"
	"github.com/Iron-Ham/cto/internal/contextprop"
	"github.com/Iron-Ham/cto/internal/coordination"
	"github.com/Iron-Ham/cto/internal/errors"
	"github.com/Iron-Ham/cto/internal/event"
	"github.com/Iron-Ham/cto/internal/mailbox"
	"github.com/Iron-Ham/cto/internal/progress"
	"github.com/Iron-Ham/cto/internal/team"
	"github.com/Iron-Ham/cto/internal/testutil"
	"github.com/Iron-Ham/cto/internal/ticket"
)

// fakeAgent records every request and answers through reply, or with a
// completed report when reply is nil.
type fakeAgent struct {
	mu       sync.Mutex
	requests []agent.Request
	reply    func(req agent.Request) (string, error)
}

func (a *fakeAgent) Invoke(_ context.Context, req agent.Request) (string, error) {
	a.mu.Lock()
	a.requests = append(a.requests, req)
	reply := a.reply
	a.mu.Unlock()
	if reply == nil {
		return testutil.AgentReport("completed", "implemented it", "main.go"), nil
	}
	return reply(req)
}

func (a *fakeAgent) calls() []agent.Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.requests)
}

func isReview(req agent.Request) bool {
	return strings.Contains(req.Prompt, "## Work Under Review")
}

type fixture struct {
	root     string
	tickets  *ticket.Service
	teams    *team.Manager
	progress *progress.Log
	bus      *event.Bus
	agent    *fakeAgent
	orch     *Orchestrator

	mu     sync.Mutex
	events []string
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	root := testutil.SetupProject(t)
	st := testutil.OpenStore(t, root)

	f := &fixture{
		root:     root,
		tickets:  ticket.NewService(st, "CTO"),
		progress: progress.NewLog(filepath.Join(st.Dir(), "logs")),
		bus:      event.NewBus(),
		agent:    &fakeAgent{},
	}
	mb := mailbox.NewMailbox(st)
	shared := contextprop.NewPropagator(st, contextprop.WithMailbox(mb))
	f.teams = team.NewManager(st, team.WithSharedContext(shared))
	f.bus.SubscribeAll(func(e event.Event) {
		f.mu.Lock()
		f.events = append(f.events, e.EventType())
		f.mu.Unlock()
	})

	tmpl := testutil.WriteFile(t, root, "templates.yaml", `templates:
  pair-team:
    coordination: sequential
    lead: backend
    roles:
      - role: backend
      - role: tester
`)
	if err := f.teams.Templates().LoadFile(tmpl); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	opts = append([]Option{WithStructure(func(string) string { return "main.go\n" })}, opts...)
	var err error
	f.orch, err = New(config.Default(), Deps{
		Root:     root,
		Store:    st,
		Tickets:  f.tickets,
		Teams:    f.teams,
		Mailbox:  mb,
		Shared:   shared,
		Executor: f.agent,
		Progress: f.progress,
		Bus:      f.bus,
	}, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return f
}

func (f *fixture) create(t *testing.T, p ticket.CreateParams) *ticket.Ticket {
	t.Helper()
	if p.Status == "" {
		p.Status = ticket.StatusTodo
	}
	tk, err := f.tickets.Create(p)
	if err != nil {
		t.Fatalf("Create(%q) error = %v", p.Title, err)
	}
	return tk
}

func (f *fixture) get(t *testing.T, id string) *ticket.Ticket {
	t.Helper()
	tk, err := f.tickets.Get(id)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", id, err)
	}
	return tk
}

func (f *fixture) actions(t *testing.T) []string {
	t.Helper()
	entries, err := f.progress.All()
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	var out []string
	for _, e := range entries {
		out = append(out, e.Action)
	}
	return out
}

func (f *fixture) published() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.events)
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(nil, Deps{})
	if err == nil {
		t.Fatal("New() with no deps should fail")
	}
}

func TestDelegate_Solo(t *testing.T) {
	f := newFixture(t)
	tk := f.create(t, ticket.CreateParams{
		Title:              "Add login endpoint",
		Description:        "POST /login returns a token",
		AcceptanceCriteria: []string{"returns 200"},
	})

	res, err := f.orch.Delegate(context.Background(), tk.ID, DelegateOptions{Role: agent.RoleBackend})
	if err != nil {
		t.Fatalf("Delegate() error = %v", err)
	}
	if res.Team != nil {
		t.Error("solo delegation should not form a team")
	}
	if res.Ticket.Status != ticket.StatusInReview {
		t.Errorf("status = %s, want in_review", res.Ticket.Status)
	}
	if res.Ticket.AssignedAgent != "backend" {
		t.Errorf("AssignedAgent = %q, want backend", res.Ticket.AssignedAgent)
	}
	if !slices.Equal(res.Ticket.FilesTouched, []string{"main.go"}) {
		t.Errorf("FilesTouched = %v, want [main.go]", res.Ticket.FilesTouched)
	}

	calls := f.agent.calls()
	if len(calls) != 1 {
		t.Fatalf("agent called %d times, want 1", len(calls))
	}
	req := calls[0]
	if req.Dir != f.root {
		t.Errorf("Dir = %q, want %q", req.Dir, f.root)
	}
	if req.Model != agent.ModelFor(agent.RoleBackend, nil) {
		t.Errorf("Model = %q, want backend default", req.Model)
	}
	if req.Timeout != config.Default().Agent.AgentTimeout() {
		t.Errorf("Timeout = %v, want configured agent timeout", req.Timeout)
	}
	for _, want := range []string{tk.ID, "Add login endpoint", "returns 200", "main.go"} {
		if !strings.Contains(req.Prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	if got := f.actions(t); !slices.Equal(got, []string{progress.ActionStarted, progress.ActionCompleted}) {
		t.Errorf("progress actions = %v", got)
	}
}

func TestDelegate_SelectsRoleFromTicket(t *testing.T) {
	f := newFixture(t)
	tk := f.create(t, ticket.CreateParams{Title: "Investigate caching", Type: ticket.TypeSpike})

	res, err := f.orch.Delegate(context.Background(), tk.ID, DelegateOptions{})
	if err != nil {
		t.Fatalf("Delegate() error = %v", err)
	}
	if res.Role != agent.RoleArchitect {
		t.Errorf("Role = %s, want architect", res.Role)
	}
	if res.Model != agent.ModelFor(agent.RoleArchitect, nil) {
		t.Errorf("Model = %s, want architect default", res.Model)
	}
}

func TestDelegate_DryRun(t *testing.T) {
	f := newFixture(t)
	tk := f.create(t, ticket.CreateParams{Title: "Add login endpoint", Complexity: ticket.ComplexityXL})

	res, err := f.orch.Delegate(context.Background(), tk.ID, DelegateOptions{DryRun: true})
	if err != nil {
		t.Fatalf("Delegate() error = %v", err)
	}
	if !res.DryRun || res.Prompt == "" {
		t.Errorf("dry run should return the prompt, got %+v", res)
	}
	if n := len(f.agent.calls()); n != 0 {
		t.Errorf("agent called %d times on dry run", n)
	}
	if got := f.get(t, tk.ID).Status; got != ticket.StatusTodo {
		t.Errorf("status = %s, want todo", got)
	}
	teams, _ := f.teams.List()
	if len(teams) != 0 {
		t.Errorf("dry run formed %d teams", len(teams))
	}
}

func TestDelegate_AgentFailureBlocksTicket(t *testing.T) {
	f := newFixture(t)
	f.agent.reply = func(agent.Request) (string, error) {
		return "", errors.NewAgentTimeoutError(600 * time.Second)
	}
	tk := f.create(t, ticket.CreateParams{Title: "Slow work"})

	res, err := f.orch.Delegate(context.Background(), tk.ID, DelegateOptions{Team: TeamNever})
	if err != nil {
		t.Fatalf("Delegate() error = %v", err)
	}
	if !errors.Is(res.Err, errors.ErrAgentTimeout) {
		t.Errorf("Err = %v, want ErrAgentTimeout", res.Err)
	}
	if !res.Blocked() {
		t.Fatalf("status = %s, want blocked", res.Ticket.Status)
	}
	want := "AGENT FAILURE: Agent timed out after 600s. Consider splitting the ticket."
	if res.Ticket.ReviewNotes != want {
		t.Errorf("ReviewNotes = %q, want %q", res.Ticket.ReviewNotes, want)
	}
	if got := f.actions(t); !slices.Equal(got, []string{progress.ActionStarted, progress.ActionBlocked}) {
		t.Errorf("progress actions = %v", got)
	}
}

func TestDelegate_ReportedBlocked(t *testing.T) {
	f := newFixture(t)
	f.agent.reply = func(agent.Request) (string, error) {
		return testutil.AgentReport("blocked", "needs credentials", "config.go"), nil
	}
	tk := f.create(t, ticket.CreateParams{Title: "Wire payments"})

	res, err := f.orch.Delegate(context.Background(), tk.ID, DelegateOptions{Team: TeamNever})
	if err != nil {
		t.Fatalf("Delegate() error = %v", err)
	}
	if !res.Blocked() {
		t.Errorf("status = %s, want blocked", res.Ticket.Status)
	}
	if res.Err != nil {
		t.Errorf("Err = %v, want nil for a reported block", res.Err)
	}
}

func TestDelegate_RejectsNonActionable(t *testing.T) {
	f := newFixture(t)
	tk := f.create(t, ticket.CreateParams{Title: "Finished", Status: ticket.StatusDone})

	_, err := f.orch.Delegate(context.Background(), tk.ID, DelegateOptions{})
	if !errors.Is(err, errors.ErrInvalidTransition) {
		t.Errorf("Delegate() error = %v, want ErrInvalidTransition", err)
	}
	if n := len(f.agent.calls()); n != 0 {
		t.Errorf("agent called %d times", n)
	}
}

func TestDelegate_UnknownTicket(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.Delegate(context.Background(), "CTO-999", DelegateOptions{})
	if !errors.Is(err, errors.ErrTicketNotFound) {
		t.Errorf("Delegate() error = %v, want ErrTicketNotFound", err)
	}
}

func TestDelegate_Team(t *testing.T) {
	f := newFixture(t)
	tk := f.create(t, ticket.CreateParams{Title: "Build the API"})

	res, err := f.orch.Delegate(context.Background(), tk.ID, DelegateOptions{Team: "pair-team"})
	if err != nil {
		t.Fatalf("Delegate() error = %v", err)
	}
	if res.Team == nil {
		t.Fatal("Team result is nil")
	}
	if !res.Team.Completed() {
		t.Error("team should have completed")
	}
	if res.Ticket.Status != ticket.StatusInReview {
		t.Errorf("status = %s, want in_review", res.Ticket.Status)
	}
	if res.Ticket.AssignedAgent != "backend" {
		t.Errorf("AssignedAgent = %q, want lead backend", res.Ticket.AssignedAgent)
	}
	if res.Ticket.TeamID == "" || res.Ticket.TeamID != res.Team.Team.ID {
		t.Errorf("TeamID = %q, want %q", res.Ticket.TeamID, res.Team.Team.ID)
	}
	if res.Ticket.TeamMode != ticket.TeamModeCollaborative {
		t.Errorf("TeamMode = %s, want collaborative", res.Ticket.TeamMode)
	}
	if n := len(f.agent.calls()); n != 2 {
		t.Errorf("agent called %d times, want one per member", n)
	}
	if got := f.actions(t); !slices.Equal(got, []string{progress.ActionStarted, progress.ActionCompleted}) {
		t.Errorf("progress actions = %v", got)
	}
}

// failingRunner never dispatches a member.
type failingRunner struct{ calls int }

func (r *failingRunner) Run(context.Context, string) (*coordination.Result, error) {
	r.calls++
	return nil, errors.New("load parent ticket: disk gone")
}

func TestDelegate_TeamDispatchFailureFallsBackToSolo(t *testing.T) {
	f := newFixture(t)
	runner := &failingRunner{}
	f.orch.runner = runner
	tk := f.create(t, ticket.CreateParams{Title: "Build the API"})

	res, err := f.orch.Delegate(context.Background(), tk.ID, DelegateOptions{Role: agent.RoleBackend, Team: "pair-team"})
	if err != nil {
		t.Fatalf("Delegate() error = %v", err)
	}
	if runner.calls != 1 {
		t.Errorf("team runs = %d, want 1", runner.calls)
	}
	if res.Team != nil {
		t.Error("fallback should report a solo delegation")
	}
	if res.Ticket.Status != ticket.StatusInReview {
		t.Errorf("status = %s, want in_review", res.Ticket.Status)
	}
	if res.Ticket.AssignedAgent != "backend" || res.Ticket.TeamID != "" || res.Ticket.TeamMode != ticket.TeamModeSolo {
		t.Errorf("ticket = %q/%q/%s, want solo backend", res.Ticket.AssignedAgent, res.Ticket.TeamID, res.Ticket.TeamMode)
	}
	if n := len(f.agent.calls()); n != 1 {
		t.Errorf("agent called %d times, want 1", n)
	}

	tm, ok, err := f.teams.ForTicket(tk.ID)
	if err != nil || !ok {
		t.Fatalf("ForTicket() = %v, %v", ok, err)
	}
	if tm.Status != team.StatusBlocked {
		t.Errorf("team status = %s, want blocked", tm.Status)
	}
}

func TestDelegate_TeamSelection(t *testing.T) {
	tests := []struct {
		name     string
		params   ticket.CreateParams
		opts     DelegateOptions
		wantTeam bool
	}{
		{
			name:     "large ticket forms a team",
			params:   ticket.CreateParams{Title: "Big change", Complexity: ticket.ComplexityXL},
			wantTeam: true,
		},
		{
			name:   "medium ticket stays solo",
			params: ticket.CreateParams{Title: "Small change", Complexity: ticket.ComplexityM},
		},
		{
			name:     "ticket template wins over complexity",
			params:   ticket.CreateParams{Title: "Paired change", Complexity: ticket.ComplexityS, TeamTemplate: "pair-team"},
			wantTeam: true,
		},
		{
			name:   "never overrides everything",
			params: ticket.CreateParams{Title: "Big change", Complexity: ticket.ComplexityXL, TeamTemplate: "pair-team"},
			opts:   DelegateOptions{Team: TeamNever},
		},
		{
			name:   "unknown template falls back to solo",
			params: ticket.CreateParams{Title: "Odd change"},
			opts:   DelegateOptions{Team: "no-such-team"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tk := f.create(t, tt.params)

			res, err := f.orch.Delegate(context.Background(), tk.ID, tt.opts)
			if err != nil {
				t.Fatalf("Delegate() error = %v", err)
			}
			if got := res.Team != nil; got != tt.wantTeam {
				t.Errorf("formed team = %v, want %v", got, tt.wantTeam)
			}
			if res.Ticket.Status != ticket.StatusInReview {
				t.Errorf("status = %s, want in_review", res.Ticket.Status)
			}
		})
	}
}

func TestDelegate_TeamBlocked(t *testing.T) {
	f := newFixture(t)
	f.agent.reply = func(req agent.Request) (string, error) {
		if strings.Contains(req.Prompt, "**Your Role**: tester") {
			return testutil.AgentReport("blocked", "no test database", "db_test.go"), nil
		}
		return testutil.AgentReport("completed", "endpoint done", "api.go"), nil
	}
	tk := f.create(t, ticket.CreateParams{Title: "Build the API"})

	res, err := f.orch.Delegate(context.Background(), tk.ID, DelegateOptions{Team: "pair-team"})
	if err != nil {
		t.Fatalf("Delegate() error = %v", err)
	}
	if !res.Blocked() {
		t.Fatalf("status = %s, want blocked", res.Ticket.Status)
	}
	if !strings.HasPrefix(res.Ticket.ReviewNotes, "TEAM BLOCKED: tester") {
		t.Errorf("ReviewNotes = %q", res.Ticket.ReviewNotes)
	}
	if got := f.actions(t); !slices.Equal(got, []string{progress.ActionStarted, progress.ActionBlocked}) {
		t.Errorf("progress actions = %v", got)
	}
}

func TestReview(t *testing.T) {
	tests := []struct {
		name        string
		policy      ReviewPolicy
		reply       func(agent.Request) (string, error)
		wantVerdict Verdict
		wantStatus  ticket.Status
		wantErr     bool
		wantNotes   string
	}{
		{
			name:        "approved with auto approve",
			policy:      ReviewPolicy{AutoApprove: true},
			wantVerdict: VerdictApproved,
			wantStatus:  ticket.StatusDone,
		},
		{
			name:        "left for a human without auto approve",
			policy:      ReviewPolicy{},
			wantVerdict: VerdictPending,
			wantStatus:  ticket.StatusInReview,
		},
		{
			name:   "changes requested",
			policy: ReviewPolicy{AutoApprove: true},
			reply: func(agent.Request) (string, error) {
				return testutil.AgentReport("changes_requested", "missing error handling", "api.go"), nil
			},
			wantVerdict: VerdictRejected,
			wantStatus:  ticket.StatusTodo,
			wantNotes:   "REVIEW: missing error handling",
		},
		{
			name:   "reviewer failure keeps the ticket in review",
			policy: ReviewPolicy{AutoApprove: true},
			reply: func(agent.Request) (string, error) {
				return "", errors.NewAgentExitError(1, "boom")
			},
			wantVerdict: VerdictPending,
			wantStatus:  ticket.StatusInReview,
			wantErr:     true,
		},
		{
			name:   "reviewer failure approves when the policy says so",
			policy: ReviewPolicy{OnFailure: ReviewFailureApprove},
			reply: func(agent.Request) (string, error) {
				return "", errors.NewAgentExitError(1, "boom")
			},
			wantVerdict: VerdictApproved,
			wantStatus:  ticket.StatusDone,
			wantErr:     true,
		},
		{
			name:   "reviewer failure rejects when the policy says so",
			policy: ReviewPolicy{AutoApprove: true, OnFailure: ReviewFailureReject},
			reply: func(agent.Request) (string, error) {
				return "", errors.NewAgentExitError(1, "boom")
			},
			wantVerdict: VerdictRejected,
			wantStatus:  ticket.StatusTodo,
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, WithReviewPolicy(tt.policy))
			tk := f.create(t, ticket.CreateParams{Title: "Add login endpoint"})
			if _, err := f.orch.Delegate(context.Background(), tk.ID, DelegateOptions{Team: TeamNever}); err != nil {
				t.Fatalf("Delegate() error = %v", err)
			}
			f.agent.reply = tt.reply

			res, err := f.orch.Review(context.Background(), tk.ID)
			if err != nil {
				t.Fatalf("Review() error = %v", err)
			}
			if res.Verdict != tt.wantVerdict {
				t.Errorf("Verdict = %s, want %s", res.Verdict, tt.wantVerdict)
			}
			if (res.Err != nil) != tt.wantErr {
				t.Errorf("Err = %v, wantErr %v", res.Err, tt.wantErr)
			}
			got := f.get(t, tk.ID)
			if got.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", got.Status, tt.wantStatus)
			}
			if tt.wantNotes != "" && got.ReviewNotes != tt.wantNotes {
				t.Errorf("ReviewNotes = %q, want %q", got.ReviewNotes, tt.wantNotes)
			}
			if tt.policy.OnFailure == ReviewFailureReject && !strings.HasPrefix(got.ReviewNotes, "AGENT FAILURE: ") {
				t.Errorf("ReviewNotes = %q, want the agent failure", got.ReviewNotes)
			}

			calls := f.agent.calls()
			last := calls[len(calls)-1]
			if !isReview(last) {
				t.Error("review did not use the review prompt")
			}
			if last.Model != agent.ModelFor(agent.RoleReviewer, nil) {
				t.Errorf("review model = %s, want reviewer default", last.Model)
			}
		})
	}
}

func TestReview_PolicyFromConfig(t *testing.T) {
	f := newFixture(t)
	want := ReviewPolicy{AutoApprove: true, OnFailure: ReviewFailureKeep}
	if f.orch.policy != want {
		t.Errorf("policy = %+v, want %+v", f.orch.policy, want)
	}
}

func TestReview_RequiresInReview(t *testing.T) {
	f := newFixture(t)
	tk := f.create(t, ticket.CreateParams{Title: "Not started"})

	_, err := f.orch.Review(context.Background(), tk.ID)
	if !errors.Is(err, errors.ErrInvalidTransition) {
		t.Errorf("Review() error = %v, want ErrInvalidTransition", err)
	}
}

func TestReviewAll_LimitAndSkip(t *testing.T) {
	f := newFixture(t, WithReviewPolicy(ReviewPolicy{AutoApprove: true}))
	var ids []string
	for _, title := range []string{"One", "Two", "Three"} {
		tk := f.create(t, ticket.CreateParams{Title: title})
		if _, err := f.orch.Delegate(context.Background(), tk.ID, DelegateOptions{Team: TeamNever}); err != nil {
			t.Fatalf("Delegate() error = %v", err)
		}
		ids = append(ids, tk.ID)
	}

	results, err := f.orch.ReviewAll(context.Background(), 1, map[string]bool{ids[0]: true})
	if err != nil {
		t.Fatalf("ReviewAll() error = %v", err)
	}
	if len(results) != 1 || results[0].Ticket.ID != ids[1] {
		t.Fatalf("reviewed %v, want only %s", results, ids[1])
	}
	if got := f.get(t, ids[0]).Status; got != ticket.StatusInReview {
		t.Errorf("skipped ticket status = %s, want in_review", got)
	}
	if got := f.get(t, ids[2]).Status; got != ticket.StatusInReview {
		t.Errorf("over-limit ticket status = %s, want in_review", got)
	}
}

func TestEpicRollup(t *testing.T) {
	f := newFixture(t, WithReviewPolicy(ReviewPolicy{AutoApprove: true}))
	epic := f.create(t, ticket.CreateParams{Title: "Auth", Type: ticket.TypeEpic, Status: ticket.StatusBacklog})
	child := f.create(t, ticket.CreateParams{Title: "Login endpoint", Parent: epic.ID})

	if _, err := f.orch.Delegate(context.Background(), child.ID, DelegateOptions{Team: TeamNever}); err != nil {
		t.Fatalf("Delegate() error = %v", err)
	}
	if got := f.get(t, epic.ID).Status; got != ticket.StatusInProgress {
		t.Errorf("epic status after delegation = %s, want in_progress", got)
	}

	if _, err := f.orch.Review(context.Background(), child.ID); err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	if got := f.get(t, epic.ID).Status; got != ticket.StatusDone {
		t.Errorf("epic status after approval = %s, want done", got)
	}
}

func TestSprint_Complete(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, ticket.CreateParams{Title: "Schema"})
	second := f.create(t, ticket.CreateParams{Title: "Handlers", Dependencies: []string{first.ID}})

	var steps []*StepResult
	res, err := f.orch.Sprint(context.Background(), 0, func(s *StepResult) { steps = append(steps, s) })
	if err != nil {
		t.Fatalf("Sprint() error = %v", err)
	}
	if res.Reason != ReasonComplete {
		t.Errorf("Reason = %s, want complete", res.Reason)
	}
	if res.Iterations != 3 {
		t.Errorf("Iterations = %d, want 3", res.Iterations)
	}
	if res.Done != 2 || res.Total != 2 || res.Percent() != 100 {
		t.Errorf("Done/Total = %d/%d (%.0f%%), want 2/2", res.Done, res.Total, res.Percent())
	}

	if len(steps) != 3 {
		t.Fatalf("onStep called %d times, want 3", len(steps))
	}
	if steps[0].Delegation.Ticket.ID != first.ID || !steps[0].Approved {
		t.Errorf("step 1 should delegate and approve %s", first.ID)
	}
	if steps[1].Delegation.Ticket.ID != second.ID {
		t.Errorf("step 2 delegated %s, want %s", steps[1].Delegation.Ticket.ID, second.ID)
	}
	if steps[2].Iteration != 3 || steps[2].Stop != ReasonComplete {
		t.Errorf("step 3 = %+v", steps[2])
	}

	events := f.published()
	if len(events) < 2 || events[0] != "sprint.started" || events[len(events)-1] != "sprint.completed" {
		t.Errorf("events = %v", events)
	}
}

func TestSprint_PicksHighestPriority(t *testing.T) {
	f := newFixture(t)
	f.create(t, ticket.CreateParams{Title: "Low", Priority: ticket.PriorityLow})
	urgent := f.create(t, ticket.CreateParams{Title: "Critical", Priority: ticket.PriorityCritical})

	step, err := f.orch.Step(context.Background(), nil)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if step.Delegation == nil || step.Delegation.Ticket.ID != urgent.ID {
		t.Errorf("Step() delegated %+v, want %s", step.Delegation, urgent.ID)
	}
}

func TestSprint_Deadlock(t *testing.T) {
	f := newFixture(t)
	f.agent.reply = func(agent.Request) (string, error) {
		return "", errors.NewAgentExitError(2, "crashed")
	}
	tk := f.create(t, ticket.CreateParams{Title: "Doomed"})

	res, err := f.orch.Sprint(context.Background(), 10, nil)
	if err != nil {
		t.Fatalf("Sprint() error = %v", err)
	}
	if res.Reason != ReasonDeadlock {
		t.Errorf("Reason = %s, want deadlock", res.Reason)
	}
	if res.Iterations != 2 {
		t.Errorf("Iterations = %d, want 2", res.Iterations)
	}
	if len(res.Blocked) != 1 || res.Blocked[0].ID != tk.ID {
		t.Errorf("Blocked = %v, want [%s]", res.Blocked, tk.ID)
	}
}

func TestSprint_ReviewPending(t *testing.T) {
	f := newFixture(t, WithReviewPolicy(ReviewPolicy{}))
	tk := f.create(t, ticket.CreateParams{Title: "Needs a human"})

	res, err := f.orch.Sprint(context.Background(), 10, nil)
	if err != nil {
		t.Fatalf("Sprint() error = %v", err)
	}
	if res.Reason != ReasonReviewPending {
		t.Errorf("Reason = %s, want review_pending", res.Reason)
	}
	if res.Iterations != 3 {
		t.Errorf("Iterations = %d, want 3", res.Iterations)
	}
	reviews := 0
	for _, req := range f.agent.calls() {
		if isReview(req) {
			reviews++
		}
	}
	if reviews != 1 {
		t.Errorf("reviews = %d, want 1", reviews)
	}
	if got := f.get(t, tk.ID).Status; got != ticket.StatusInReview {
		t.Errorf("status = %s, want in_review", got)
	}
}

func TestSprint_MaxIterations(t *testing.T) {
	f := newFixture(t)
	f.create(t, ticket.CreateParams{Title: "One"})
	f.create(t, ticket.CreateParams{Title: "Two"})

	res, err := f.orch.Sprint(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("Sprint() error = %v", err)
	}
	if res.Reason != ReasonMaxIterations || res.Iterations != 1 {
		t.Errorf("Reason/Iterations = %s/%d, want max_iterations/1", res.Reason, res.Iterations)
	}
	if res.Done != 1 {
		t.Errorf("Done = %d, want 1", res.Done)
	}
}

func TestSprint_WaitsOnInProgressWork(t *testing.T) {
	f := newFixture(t, WithWaitInterval(time.Millisecond))
	running := f.create(t, ticket.CreateParams{Title: "Schema"})
	if _, err := f.tickets.Assign(running.ID, "backend"); err != nil {
		t.Fatal(err)
	}
	waiting := f.create(t, ticket.CreateParams{Title: "Handlers", Dependencies: []string{running.ID}})

	var outcomes []ticket.Outcome
	res, err := f.orch.Sprint(context.Background(), 3, func(s *StepResult) {
		outcomes = append(outcomes, s.Assessment.Outcome)
	})
	if err != nil {
		t.Fatalf("Sprint() error = %v", err)
	}
	if res.Reason != ReasonMaxIterations || res.Iterations != 3 {
		t.Errorf("Reason/Iterations = %s/%d, want max_iterations/3", res.Reason, res.Iterations)
	}
	if !slices.Equal(outcomes, []ticket.Outcome{ticket.OutcomeWait, ticket.OutcomeWait, ticket.OutcomeWait}) {
		t.Errorf("outcomes = %v, want three waits", outcomes)
	}
	if n := len(f.agent.calls()); n != 0 {
		t.Errorf("agent called %d times, want 0", n)
	}
	if got := f.get(t, waiting.ID).Status; got != ticket.StatusTodo {
		t.Errorf("waiting ticket status = %s, want todo", got)
	}
}

func TestSprint_WaitPicksUpFinishedWork(t *testing.T) {
	f := newFixture(t, WithWaitInterval(time.Millisecond))
	running := f.create(t, ticket.CreateParams{Title: "Schema"})
	if _, err := f.tickets.Assign(running.ID, "backend"); err != nil {
		t.Fatal(err)
	}
	waiting := f.create(t, ticket.CreateParams{Title: "Handlers", Dependencies: []string{running.ID}})

	res, err := f.orch.Sprint(context.Background(), 10, func(s *StepResult) {
		// The other run finishes while this one waits.
		if s.Iteration == 1 {
			if _, err := f.tickets.RecordResult(running.ID, ticket.Result{ReportedStatus: "completed"}); err != nil {
				t.Errorf("RecordResult() error = %v", err)
			}
		}
	})
	if err != nil {
		t.Fatalf("Sprint() error = %v", err)
	}
	if res.Reason != ReasonComplete {
		t.Errorf("Reason = %s, want complete", res.Reason)
	}
	if got := f.get(t, waiting.ID).Status; got != ticket.StatusDone {
		t.Errorf("waiting ticket status = %s, want done", got)
	}
}

func TestSprint_CanceledWhileWaiting(t *testing.T) {
	f := newFixture(t, WithWaitInterval(time.Hour))
	running := f.create(t, ticket.CreateParams{Title: "Schema"})
	if _, err := f.tickets.Assign(running.ID, "backend"); err != nil {
		t.Fatal(err)
	}
	f.create(t, ticket.CreateParams{Title: "Handlers", Dependencies: []string{running.ID}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	res, err := f.orch.Sprint(ctx, 10, func(*StepResult) { cancel() })
	if !errors.Is(err, errors.ErrCanceled) {
		t.Errorf("Sprint() error = %v, want ErrCanceled", err)
	}
	if res.Reason != ReasonCanceled || res.Iterations != 1 {
		t.Errorf("Reason/Iterations = %s/%d, want canceled/1", res.Reason, res.Iterations)
	}
}

func TestSprint_Idle(t *testing.T) {
	f := newFixture(t)
	res, err := f.orch.Sprint(context.Background(), 5, nil)
	if err != nil {
		t.Fatalf("Sprint() error = %v", err)
	}
	if res.Reason != ReasonIdle {
		t.Errorf("Reason = %s, want idle", res.Reason)
	}
}

func TestSprint_Canceled(t *testing.T) {
	f := newFixture(t)
	f.create(t, ticket.CreateParams{Title: "Never started"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.orch.Sprint(ctx, 5, nil)
	if !errors.Is(err, errors.ErrCanceled) {
		t.Errorf("Sprint() error = %v, want ErrCanceled", err)
	}
	if res.Reason != ReasonCanceled || res.Iterations != 0 {
		t.Errorf("Reason/Iterations = %s/%d, want canceled/0", res.Reason, res.Iterations)
	}
	if n := len(f.agent.calls()); n != 0 {
		t.Errorf("agent called %d times", n)
	}
}

func TestExtractPlan(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    []string
		wantErr bool
	}{
		{
			name:   "array wrapped in prose",
			output: "Here is the plan:\n[{\"title\": \"A\"}, {\"title\": \"B\"}]\nGood luck.",
			want:   []string{"A", "B"},
		},
		{
			name:   "fenced block",
			output: "```json\n[\n  {\"title\": \"Only\", \"acceptance_criteria\": [\"works\"]}\n]\n```",
			want:   []string{"Only"},
		},
		{
			name:    "no array",
			output:  "I could not produce a plan.",
			wantErr: true,
		},
		{
			name:    "malformed json",
			output:  "[{\"title\": }]",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := ExtractPlan(tt.output)
			if tt.wantErr {
				if !errors.Is(err, ErrNoPlan) {
					t.Errorf("ExtractPlan() error = %v, want ErrNoPlan", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractPlan() error = %v", err)
			}
			var titles []string
			for _, it := range items {
				titles = append(titles, it.Title)
			}
			if !slices.Equal(titles, tt.want) {
				t.Errorf("titles = %v, want %v", titles, tt.want)
			}
		})
	}
}

func TestPlan(t *testing.T) {
	f := newFixture(t)
	f.agent.reply = func(agent.Request) (string, error) {
		return `Plan follows.
[
  {"title": "Auth", "type": "epic", "priority": "high", "complexity": "XL"},
  {"title": "Login endpoint", "description": "POST /login", "type": "feature",
   "priority": "urgent", "complexity": "s", "parent_index": 0,
   "acceptance_criteria": ["returns a token"]},
  {"title": "Login form", "type": "widget", "parent_index": 0,
   "dependency_indices": [1, 7, 1.5, "one"]}
]`, nil
	}

	res, err := f.orch.Plan(context.Background(), "Build user authentication", false)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if res.RequestID == "" {
		t.Error("RequestID is empty")
	}
	if len(res.Tickets) != 3 {
		t.Fatalf("created %d tickets, want 3", len(res.Tickets))
	}
	epic, endpoint, form := res.Tickets[0], res.Tickets[1], res.Tickets[2]

	if epic.Type != ticket.TypeEpic || epic.Status != ticket.StatusBacklog || epic.Priority != ticket.PriorityHigh {
		t.Errorf("epic = %s/%s/%s, want epic/backlog/high", epic.Type, epic.Status, epic.Priority)
	}
	if endpoint.Status != ticket.StatusTodo || endpoint.Parent != epic.ID {
		t.Errorf("endpoint status/parent = %s/%s", endpoint.Status, endpoint.Parent)
	}
	if endpoint.Priority != ticket.PriorityMedium {
		t.Errorf("unknown priority became %s, want medium", endpoint.Priority)
	}
	if endpoint.Complexity != ticket.ComplexityS {
		t.Errorf("Complexity = %s, want S", endpoint.Complexity)
	}
	if !slices.Equal(endpoint.AcceptanceCriteria, []string{"returns a token"}) {
		t.Errorf("AcceptanceCriteria = %v", endpoint.AcceptanceCriteria)
	}
	if form.Type != ticket.TypeTask {
		t.Errorf("unknown type became %s, want task", form.Type)
	}
	if !slices.Equal(form.Dependencies, []string{endpoint.ID}) {
		t.Errorf("Dependencies = %v, want [%s]", form.Dependencies, endpoint.ID)
	}

	req := f.agent.calls()[0]
	if req.Model != agent.ModelFor(agent.RoleArchitect, nil) {
		t.Errorf("planning model = %s, want architect default", req.Model)
	}
	if !strings.Contains(req.Prompt, "Build user authentication") {
		t.Error("planning prompt missing the description")
	}

	entries, _ := f.progress.All()
	if len(entries) != 1 || entries[0].Message != "Generated project plan with 3 tickets" {
		t.Errorf("progress = %+v", entries)
	}
}

func TestPlan_Unparseable(t *testing.T) {
	f := newFixture(t)
	f.agent.reply = func(agent.Request) (string, error) { return "no idea", nil }

	_, err := f.orch.Plan(context.Background(), "Build something", false)
	if !errors.Is(err, ErrNoPlan) {
		t.Errorf("Plan() error = %v, want ErrNoPlan", err)
	}
	all, _ := f.tickets.List(ticket.Filter{})
	if len(all) != 0 {
		t.Errorf("created %d tickets from an unparseable plan", len(all))
	}
}

func TestPlan_DryRun(t *testing.T) {
	f := newFixture(t)
	res, err := f.orch.Plan(context.Background(), "Build something", true)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if res.Prompt == "" {
		t.Error("dry run should return the prompt")
	}
	if n := len(f.agent.calls()); n != 0 {
		t.Errorf("agent called %d times on dry run", n)
	}
}

func (f *fixture) meeseeksLog(t *testing.T) string {
	t.Helper()
	return testutil.ReadFile(t, f.progress.Dir(), "meeseeks.log")
}

func TestMeeseeks(t *testing.T) {
	tests := []struct {
		name          string
		reply         func(agent.Request) (string, error)
		wantActions   []string
		wantEscalated bool
		wantErr       bool
	}{
		{
			name: "completed",
			reply: func(agent.Request) (string, error) {
				return testutil.MeeseeksReport("completed", "fixed the typo", "README.md"), nil
			},
			wantActions: []string{MeeseeksSummoned, MeeseeksCompleted},
		},
		{
			name: "escalated",
			reply: func(agent.Request) (string, error) {
				return "**EXISTENCE IS PAIN!** This task is too complex for a Meeseeks!", nil
			},
			wantActions:   []string{MeeseeksSummoned, MeeseeksEscalated},
			wantEscalated: true,
		},
		{
			name: "failed",
			reply: func(agent.Request) (string, error) {
				return "", errors.NewAgentExitError(1, "no such file")
			},
			wantActions: []string{MeeseeksSummoned, MeeseeksFailed},
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.agent.reply = tt.reply

			res, err := f.orch.Meeseeks(context.Background(), MeeseeksRequest{
				Task:  "Fix the typo in README",
				Files: []string{"README.md"},
			})
			if err != nil {
				t.Fatalf("Meeseeks() error = %v", err)
			}
			if res.Escalated() != tt.wantEscalated {
				t.Errorf("Escalated() = %v, want %v", res.Escalated(), tt.wantEscalated)
			}
			if (res.Err != nil) != tt.wantErr {
				t.Errorf("Err = %v, wantErr %v", res.Err, tt.wantErr)
			}

			log := f.meeseeksLog(t)
			for _, action := range tt.wantActions {
				if !strings.Contains(log, `"action":"`+action+`"`) {
					t.Errorf("meeseeks log missing %s:\n%s", action, log)
				}
			}
			var want []string
			for _, action := range tt.wantActions {
				want = append(want, "meeseeks."+action)
			}
			if got := f.published(); !slices.Equal(got, want) {
				t.Errorf("events = %v, want %v", got, want)
			}
		})
	}
}

func TestMeeseeks_Defaults(t *testing.T) {
	f := newFixture(t)
	res, err := f.orch.Meeseeks(context.Background(), MeeseeksRequest{Task: "Rename a variable"})
	if err != nil {
		t.Fatalf("Meeseeks() error = %v", err)
	}
	if res.Model != agent.ModelSonnet {
		t.Errorf("Model = %s, want sonnet", res.Model)
	}
	req := f.agent.calls()[0]
	if req.Timeout != 180*time.Second {
		t.Errorf("Timeout = %v, want 180s", req.Timeout)
	}
	if !strings.Contains(req.Prompt, "(any relevant files)") {
		t.Error("prompt should fall back to any relevant files")
	}
}

func TestMeeseeks_DryRunAndEmptyTask(t *testing.T) {
	f := newFixture(t)
	res, err := f.orch.Meeseeks(context.Background(), MeeseeksRequest{Task: "Fix it", DryRun: true})
	if err != nil {
		t.Fatalf("Meeseeks() error = %v", err)
	}
	if !res.DryRun || res.Prompt == "" {
		t.Errorf("dry run result = %+v", res)
	}
	if n := len(f.agent.calls()); n != 0 {
		t.Errorf("agent called %d times on dry run", n)
	}

	if _, err := f.orch.Meeseeks(context.Background(), MeeseeksRequest{Task: "  "}); err == nil {
		t.Error("empty task should fail")
	}
}
