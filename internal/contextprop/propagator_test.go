package contextprop

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/cto/internal/errors"
	"github.com/Iron-Ham/cto/internal/event"
	"github.com/Iron-Ham/cto/internal/mailbox"
)

type memStore struct {
	mu   sync.Mutex
	ctxs map[string]*SharedContext
	msgs []mailbox.Message
}

func newMemStore() *memStore {
	return &memStore{ctxs: make(map[string]*SharedContext)}
}

func (s *memStore) LoadContext(teamID string) (*SharedContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, ok := s.ctxs[teamID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrTeamNotFound, teamID)
	}
	cp := *ctx
	return &cp, nil
}

func (s *memStore) SaveContext(ctx *SharedContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ctx
	s.ctxs[ctx.TeamID] = &cp
	return nil
}

func (s *memStore) ListMessages(teamID string) ([]mailbox.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []mailbox.Message
	for _, m := range s.msgs {
		if m.TeamID == teamID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) SaveMessage(msg mailbox.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.msgs {
		if m.TeamID == msg.TeamID && m.ID == msg.ID {
			s.msgs[i] = msg
			return nil
		}
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

var testNow = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestPropagator(t *testing.T) (*Propagator, *memStore, *event.Bus) {
	t.Helper()
	st := newMemStore()
	bus := event.NewBus()
	mb := mailbox.NewMailbox(st)
	p := NewPropagator(st, WithBus(bus), WithMailbox(mb), WithClock(func() time.Time { return testNow }))
	return p, st, bus
}

func TestPropagator_GetMissingReturnsEmpty(t *testing.T) {
	p, _, _ := newTestPropagator(t)

	ctx, err := p.Get("TEAM-009")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ctx.TeamID != "TEAM-009" || len(ctx.Decisions) != 0 || ctx.Decisions == nil {
		t.Errorf("Get() = %+v, want empty context", ctx)
	}
}

func TestPropagator_RecordDecision(t *testing.T) {
	p, _, bus := newTestPropagator(t)
	if _, err := p.Init("TEAM-001", "CTO-004"); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	var events []event.DecisionRecordedEvent
	bus.Subscribe("team.decision.recorded", func(e event.Event) {
		events = append(events, e.(event.DecisionRecordedEvent))
	})

	if err := p.RecordDecision("TEAM-001", "Use PostgreSQL", "architect"); err != nil {
		t.Fatalf("RecordDecision() error = %v", err)
	}
	if err := p.RecordDecision("TEAM-001", "JWT for sessions", "security"); err != nil {
		t.Fatalf("RecordDecision() error = %v", err)
	}

	ctx, _ := p.Get("TEAM-001")
	if len(ctx.Decisions) != 2 {
		t.Fatalf("Decisions = %d, want 2", len(ctx.Decisions))
	}
	if ctx.Decisions[0].Decision != "Use PostgreSQL" || ctx.Decisions[1].Author != "security" {
		t.Errorf("Decisions = %+v", ctx.Decisions)
	}
	if ctx.ParentTicket != "CTO-004" {
		t.Errorf("ParentTicket = %q, want CTO-004", ctx.ParentTicket)
	}
	if len(events) != 2 {
		t.Errorf("events = %d, want 2", len(events))
	}
}

func TestPropagator_ShareDecisionBroadcasts(t *testing.T) {
	p, st, _ := newTestPropagator(t)

	if err := p.ShareDecision("TEAM-001", "REST, not gRPC", "architect"); err != nil {
		t.Fatalf("ShareDecision() error = %v", err)
	}

	msgs, _ := st.ListMessages("TEAM-001")
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	if msgs[0].To != mailbox.Broadcast || msgs[0].Type != mailbox.MessageDecision {
		t.Errorf("message = %+v", msgs[0])
	}
}

func TestPropagator_InterfacesAndNotes(t *testing.T) {
	p, _, bus := newTestPropagator(t)

	var ifaceEvents int
	bus.Subscribe("team.interface.defined", func(event.Event) { ifaceEvents++ })

	if err := p.DefineInterface("TEAM-001", map[string]any{"endpoint": "POST /login"}, "backend"); err != nil {
		t.Fatalf("DefineInterface() error = %v", err)
	}
	if err := p.AddNote("TEAM-001", "staging is flaky", "devops"); err != nil {
		t.Fatalf("AddNote() error = %v", err)
	}

	ctx, _ := p.Get("TEAM-001")
	if len(ctx.Interfaces) != 1 || len(ctx.Notes) != 1 {
		t.Errorf("Interfaces = %d, Notes = %d, want 1 and 1", len(ctx.Interfaces), len(ctx.Notes))
	}
	if !ctx.UpdatedAt.Equal(testNow) {
		t.Errorf("UpdatedAt = %v, want %v", ctx.UpdatedAt, testNow)
	}
	if ifaceEvents != 1 {
		t.Errorf("interface events = %d, want 1", ifaceEvents)
	}
}

func TestFormatForPrompt(t *testing.T) {
	if got := FormatForPrompt(New("TEAM-001", "", testNow)); got != "" {
		t.Errorf("FormatForPrompt(empty) = %q, want empty", got)
	}

	ctx := New("TEAM-001", "", testNow)
	for i := 1; i <= 7; i++ {
		ctx.Decisions = append(ctx.Decisions, Decision{Decision: fmt.Sprintf("d%d", i), Author: "architect"})
	}
	ctx.Interfaces = append(ctx.Interfaces, Interface{
		Interface: map[string]any{"schema": strings.Repeat("x", 200)},
		Author:    "backend",
	})

	got := FormatForPrompt(ctx)
	if strings.Contains(got, "d2") || !strings.Contains(got, "d3") || !strings.Contains(got, "d7") {
		t.Errorf("FormatForPrompt() should keep the last 5 decisions:\n%s", got)
	}
	if !strings.Contains(got, "**Defined Interfaces**:") {
		t.Errorf("FormatForPrompt() missing interfaces section:\n%s", got)
	}
	for _, line := range strings.Split(got, "\n") {
		if strings.HasPrefix(line, "  - [backend]: ") && len(line) > len("  - [backend]: ")+100 {
			t.Errorf("interface line not truncated: %d chars", len(line))
		}
	}
}
