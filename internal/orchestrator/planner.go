package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/Iron-Ham/cto/internal/agent"
	"github.com/Iron-Ham/cto/internal/errors"
	"github.com/Iron-Ham/cto/internal/orchestrator/prompt"
	"github.com/Iron-Ham/cto/internal/progress"
	"github.com/Iron-Ham/cto/internal/ticket"
)

// ErrNoPlan is returned when the planning output holds no JSON array of
// tickets.
var ErrNoPlan = errors.New("planning output contains no ticket array")

// PlanItem is one ticket in a generated plan. Parent and dependency
// references are indices into the plan.
type PlanItem struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Type               string   `json:"type"`
	Priority           string   `json:"priority"`
	Complexity         string   `json:"complexity"`
	ParentIndex        any      `json:"parent_index"`
	DependencyIndices  []any    `json:"dependency_indices"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
}

var planArray = regexp.MustCompile(`(?s)\[.*\]`)

// ExtractPlan finds the JSON array in an agent's planning output.
func ExtractPlan(output string) ([]PlanItem, error) {
	raw := planArray.FindString(output)
	if raw == "" {
		return nil, ErrNoPlan
	}
	var items []PlanItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPlan, err)
	}
	return items, nil
}

// index converts a JSON index to an int when it is a whole number in
// [0, limit).
func index(v any, limit int) (int, bool) {
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	i := int(f)
	return i, i >= 0 && i < limit
}

// params normalizes a plan item into ticket parameters. Unknown enum values
// fall back to task, medium and M. Parent and dependencies may only point
// at tickets created earlier in the plan.
func (item PlanItem) params(i int, created []string) ticket.CreateParams {
	p := ticket.CreateParams{
		Title:              strings.TrimSpace(item.Title),
		Description:        item.Description,
		Type:               ticket.Type(strings.ToLower(item.Type)),
		Priority:           ticket.Priority(strings.ToLower(item.Priority)),
		Complexity:         ticket.Complexity(strings.ToUpper(item.Complexity)),
		AcceptanceCriteria: item.AcceptanceCriteria,
		Status:             ticket.StatusTodo,
	}
	if p.Title == "" {
		p.Title = fmt.Sprintf("Ticket %d", i)
	}
	if !p.Type.IsValid() {
		p.Type = ticket.TypeTask
	}
	if !p.Priority.IsValid() {
		p.Priority = ticket.PriorityMedium
	}
	if !p.Complexity.IsValid() {
		p.Complexity = ticket.ComplexityM
	}
	if p.Type == ticket.TypeEpic {
		p.Status = ticket.StatusBacklog
	}
	if pi, ok := index(item.ParentIndex, len(created)); ok {
		p.Parent = created[pi]
	}
	for _, d := range item.DependencyIndices {
		if di, ok := index(d, len(created)); ok {
			p.Dependencies = append(p.Dependencies, created[di])
		}
	}
	return p
}

// PlanResult describes a generated plan.
type PlanResult struct {
	RequestID string
	Prompt    string
	Tickets   []*ticket.Ticket
}

// Plan asks the architect to break description into tickets and creates
// them. Non-epic tickets start in todo, epics in backlog. With dryRun only
// the prompt is built.
func (o *Orchestrator) Plan(ctx context.Context, description string, dryRun bool) (*PlanResult, error) {
	res := &PlanResult{RequestID: uuid.NewString()}
	logger := o.logger.With("request_id", res.RequestID)

	text, err := prompt.NewPlanningBuilder().Build(&prompt.Context{
		Kind:      prompt.KindPlanning,
		Objective: description,
		Root:      o.root,
	})
	if err != nil {
		return nil, err
	}
	res.Prompt = text
	if dryRun {
		return res, nil
	}

	model := o.modelFor(agent.RoleArchitect)
	logger.Info("generating plan", "model", model)
	output, err := o.exec.Invoke(ctx, agent.Request{
		Prompt:  text,
		Model:   model,
		Timeout: o.cfg.Agent.AgentTimeout(),
		Dir:     o.root,
	})
	if err != nil {
		return nil, fmt.Errorf("generate plan: %w", err)
	}

	items, err := ExtractPlan(output)
	if err != nil {
		logger.Warn("unparseable plan", "output", truncate(output, 2000))
		return nil, err
	}

	created := make([]string, 0, len(items))
	for i, item := range items {
		t, err := o.tickets.Create(item.params(i, created))
		if err != nil {
			return res, fmt.Errorf("create plan ticket %d: %w", i, err)
		}
		created = append(created, t.ID)
		res.Tickets = append(res.Tickets, t)
	}

	o.record(progress.Entry{
		Action:  progress.ActionDecision,
		Message: fmt.Sprintf("Generated project plan with %d tickets", len(res.Tickets)),
	})
	logger.Info("plan created", "tickets", len(res.Tickets))
	return res, nil
}
