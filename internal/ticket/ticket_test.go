package ticket

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/cto/internal/errors"
)

func tk(id string, status Status, priority Priority, deps ...string) *Ticket {
	return &Ticket{ID: id, Type: TypeTask, Status: status, Priority: priority, Dependencies: deps}
}

func ids(ts []*Ticket) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.ID)
	}
	return out
}

func TestReady(t *testing.T) {
	tests := []struct {
		name    string
		tickets []*Ticket
		want    []string
	}{
		{
			name: "orders by priority and keeps input order for ties",
			tickets: []*Ticket{
				tk("A", StatusTodo, PriorityLow),
				tk("B", StatusBacklog, PriorityCritical),
				tk("C", StatusTodo, PriorityMedium),
				tk("D", StatusTodo, PriorityCritical),
			},
			want: []string{"B", "D", "C", "A"},
		},
		{
			name: "dependency in review counts as met",
			tickets: []*Ticket{
				tk("A", StatusInReview, PriorityHigh),
				tk("B", StatusTesting, PriorityHigh),
				tk("C", StatusTodo, PriorityHigh, "A", "B"),
			},
			want: []string{"C"},
		},
		{
			name: "dependency in progress is unmet",
			tickets: []*Ticket{
				tk("A", StatusInProgress, PriorityHigh),
				tk("B", StatusTodo, PriorityHigh, "A"),
			},
			want: nil,
		},
		{
			name: "missing dependency is unmet",
			tickets: []*Ticket{
				tk("B", StatusTodo, PriorityHigh, "GHOST"),
			},
			want: nil,
		},
		{
			name: "epics and non-actionable statuses are excluded",
			tickets: []*Ticket{
				{ID: "E", Type: TypeEpic, Status: StatusTodo, Priority: PriorityCritical},
				tk("X", StatusBlocked, PriorityHigh),
				tk("Y", StatusDone, PriorityHigh),
				tk("Z", StatusTodo, PriorityLow),
			},
			want: []string{"Z"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(Ready(tt.tickets))
			if !slices.Equal(got, tt.want) && !(len(got) == 0 && len(tt.want) == 0) {
				t.Errorf("Ready() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAssess(t *testing.T) {
	tests := []struct {
		name    string
		tickets []*Ticket
		want    Outcome
	}{
		{
			name:    "ready work",
			tickets: []*Ticket{tk("A", StatusTodo, PriorityHigh)},
			want:    OutcomeReady,
		},
		{
			name: "deadlock when blocked and nothing in progress",
			tickets: []*Ticket{
				tk("A", StatusBlocked, PriorityHigh),
				tk("B", StatusTodo, PriorityHigh, "A"),
			},
			want: OutcomeDeadlock,
		},
		{
			name: "wait when work is in progress",
			tickets: []*Ticket{
				tk("A", StatusBlocked, PriorityHigh),
				tk("B", StatusInProgress, PriorityHigh),
				tk("C", StatusTodo, PriorityHigh, "B"),
			},
			want: OutcomeWait,
		},
		{
			name: "review before deadlock",
			tickets: []*Ticket{
				tk("A", StatusBlocked, PriorityHigh),
				tk("B", StatusInReview, PriorityHigh),
			},
			want: OutcomeReview,
		},
		{
			name: "complete when all non-epics are done",
			tickets: []*Ticket{
				{ID: "E", Type: TypeEpic, Status: StatusInProgress, Priority: PriorityHigh},
				tk("A", StatusDone, PriorityHigh),
			},
			want: OutcomeComplete,
		},
		{
			name:    "idle with nothing at all",
			tickets: nil,
			want:    OutcomeIdle,
		},
		{
			name: "cycle is a deadlock",
			tickets: []*Ticket{
				tk("A", StatusTodo, PriorityHigh, "B"),
				tk("B", StatusTodo, PriorityHigh, "A"),
			},
			want: OutcomeDeadlock,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Assess(tt.tickets)
			if a.Outcome != tt.want {
				t.Errorf("Assess().Outcome = %v, want %v", a.Outcome, tt.want)
			}
		})
	}
}

func TestOutcome_Terminal(t *testing.T) {
	for _, o := range []Outcome{OutcomeDeadlock, OutcomeIdle, OutcomeComplete} {
		if !o.Terminal() {
			t.Errorf("%v.Terminal() = false, want true", o)
		}
	}
	for _, o := range []Outcome{OutcomeReady, OutcomeReview, OutcomeWait} {
		if o.Terminal() {
			t.Errorf("%v.Terminal() = true, want false", o)
		}
	}
}

func TestTransition(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		from    Status
		to      Status
		wantErr bool
	}{
		{StatusTodo, StatusInProgress, false},
		{StatusBacklog, StatusInProgress, false},
		{StatusInProgress, StatusInReview, false},
		{StatusInProgress, StatusBlocked, false},
		{StatusInReview, StatusDone, false},
		{StatusInReview, StatusTodo, false},
		{StatusTesting, StatusDone, false},
		{StatusDone, StatusTodo, true},
		{StatusTodo, StatusDone, true},
		{StatusBlocked, StatusInReview, true},
		{StatusBlocked, StatusTodo, true},
		{StatusTodo, StatusBacklog, true},
		{StatusTodo, StatusBlocked, true},
		{StatusBacklog, StatusBlocked, true},
		{StatusTesting, StatusTodo, true},
		{StatusTesting, StatusInReview, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			tkt := tk("A", tt.from, PriorityHigh)
			err := Transition(tkt, tt.to, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Transition() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, errors.ErrInvalidTransition) {
					t.Errorf("error = %v, want ErrInvalidTransition", err)
				}
				if tkt.Status != tt.from {
					t.Errorf("Status = %v, want unchanged %v", tkt.Status, tt.from)
				}
				return
			}
			if tkt.Status != tt.to {
				t.Errorf("Status = %v, want %v", tkt.Status, tt.to)
			}
			if tt.to == StatusDone && (tkt.CompletedAt == nil || !tkt.CompletedAt.Equal(now)) {
				t.Errorf("CompletedAt = %v, want %v", tkt.CompletedAt, now)
			}
		})
	}
}

func TestTransitions_OnlyMoveForward(t *testing.T) {
	rank := map[Status]int{
		StatusBacklog:    0,
		StatusTodo:       1,
		StatusInProgress: 2,
		StatusInReview:   3,
		StatusTesting:    4,
		StatusDone:       5,
	}
	for _, from := range Statuses {
		if _, ok := transitions[from]; !ok {
			t.Errorf("no transitions entry for %s", from)
		}
	}
	for from, targets := range transitions {
		for _, to := range targets {
			name := string(from) + "->" + string(to)
			if to == StatusBlocked {
				if from != StatusInProgress {
					t.Errorf("%s: only in_progress may become blocked", name)
				}
				continue
			}
			if from == StatusBlocked {
				t.Errorf("%s: blocked tickets leave only through ForceStatus", name)
				continue
			}
			if from == StatusInReview && to == StatusTodo {
				continue
			}
			if rank[to] <= rank[from] {
				t.Errorf("%s moves backward", name)
			}
			if rank[from] < rank[StatusInProgress] && rank[to] > rank[StatusInProgress] {
				t.Errorf("%s skips in_progress", name)
			}
		}
	}
}

func TestStatusFromReport(t *testing.T) {
	tests := map[string]Status{
		"completed":    StatusInReview,
		"needs_review": StatusInReview,
		"partial":      StatusInReview,
		"":             StatusInReview,
		"blocked":      StatusBlocked,
		"BLOCKED":      StatusBlocked,
	}
	for in, want := range tests {
		if got := StatusFromReport(in); got != want {
			t.Errorf("StatusFromReport(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestReviewRejects(t *testing.T) {
	for _, s := range []string{"rejected", "changes_requested", "blocked"} {
		if !ReviewRejects(s) {
			t.Errorf("ReviewRejects(%q) = false, want true", s)
		}
	}
	for _, s := range []string{"completed", "approved", ""} {
		if ReviewRejects(s) {
			t.Errorf("ReviewRejects(%q) = true, want false", s)
		}
	}
}

func TestRollupStatus(t *testing.T) {
	tests := []struct {
		name   string
		kids   []Status
		want   Status
		wantOK bool
	}{
		{"no children", nil, "", false},
		{"all done", []Status{StatusDone, StatusDone}, StatusDone, true},
		{"one in review", []Status{StatusDone, StatusInReview}, StatusInProgress, true},
		{"one testing", []Status{StatusTodo, StatusTesting}, StatusInProgress, true},
		{"untouched", []Status{StatusTodo, StatusBacklog}, "", false},
		{"blocked and done", []Status{StatusBlocked, StatusDone}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var kids []*Ticket
			for i, s := range tt.kids {
				kids = append(kids, tk(string(rune('A'+i)), s, PriorityHigh))
			}
			got, ok := RollupStatus(kids)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("RollupStatus() = (%v, %v), want (%v, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestDetectCycles(t *testing.T) {
	tickets := []*Ticket{
		tk("A", StatusTodo, PriorityHigh, "B"),
		tk("B", StatusTodo, PriorityHigh, "C"),
		tk("C", StatusTodo, PriorityHigh, "A"),
		tk("D", StatusTodo, PriorityHigh, "D"),
		tk("E", StatusTodo, PriorityHigh, "A", "GHOST"),
	}

	cycles := DetectCycles(tickets)
	if len(cycles) != 2 {
		t.Fatalf("DetectCycles() = %v, want 2 cycles", cycles)
	}
	if !slices.Equal(cycles[0], []string{"A", "B", "C"}) {
		t.Errorf("cycles[0] = %v, want [A B C]", cycles[0])
	}
	if !slices.Equal(cycles[1], []string{"D"}) {
		t.Errorf("cycles[1] = %v, want [D]", cycles[1])
	}

	if got := DetectCycles([]*Ticket{tk("A", StatusTodo, PriorityHigh), tk("B", StatusTodo, PriorityHigh, "A")}); len(got) != 0 {
		t.Errorf("DetectCycles() on a DAG = %v, want none", got)
	}
}

func TestValidateDependencies(t *testing.T) {
	existing := []*Ticket{
		tk("A", StatusTodo, PriorityHigh, "B"),
		tk("B", StatusTodo, PriorityHigh),
	}

	if err := ValidateDependencies(tk("C", StatusTodo, PriorityHigh, "A"), existing); err != nil {
		t.Errorf("ValidateDependencies() acyclic = %v, want nil", err)
	}

	err := ValidateDependencies(tk("B", StatusTodo, PriorityHigh, "A"), existing)
	if !errors.Is(err, errors.ErrDependencyCycle) {
		t.Fatalf("ValidateDependencies() = %v, want ErrDependencyCycle", err)
	}
	if want := "B -> A -> B"; !strings.Contains(err.Error(), want) {
		t.Errorf("error %q should mention %q", err.Error(), want)
	}

	if err := ValidateDependencies(tk("C", StatusTodo, PriorityHigh, "C"), existing); !errors.Is(err, errors.ErrDependencyCycle) {
		t.Errorf("self dependency error = %v, want ErrDependencyCycle", err)
	}
}

func TestFormatID(t *testing.T) {
	if got := FormatID("CTO", 7); got != "CTO-007" {
		t.Errorf("FormatID() = %q, want CTO-007", got)
	}
	if got := FormatID("WEB", 1234); got != "WEB-1234" {
		t.Errorf("FormatID() = %q, want WEB-1234", got)
	}
}

func TestSetAgentOutput_Truncates(t *testing.T) {
	tkt := &Ticket{}
	long := make([]byte, 3000)
	for i := range long {
		long[i] = 'x'
	}
	tkt.SetAgentOutput(string(long))
	if len(tkt.AgentOutput) != MaxAgentOutput {
		t.Errorf("len(AgentOutput) = %d, want %d", len(tkt.AgentOutput), MaxAgentOutput)
	}
}
