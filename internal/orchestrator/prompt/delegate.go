package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Iron-Ham/cto/internal/contextprop"
	"github.com/Iron-Ham/cto/internal/mailbox"
	"github.com/Iron-Ham/cto/internal/report"
	"github.com/Iron-Ham/cto/internal/ticket"
)

// relatedOutputLimit bounds the agent output quoted for each related ticket.
const relatedOutputLimit = 200

// DelegateBuilder builds the prompt that sends a ticket to a role.
type DelegateBuilder struct{}

// NewDelegateBuilder creates a new DelegateBuilder.
func NewDelegateBuilder() *DelegateBuilder {
	return &DelegateBuilder{}
}

// Build generates the delegation prompt.
func (b *DelegateBuilder) Build(ctx *Context) (string, error) {
	if err := validateTicket(ctx, KindDelegate); err != nil {
		return "", err
	}

	var sb strings.Builder
	writeMission(&sb, ctx)
	if ctx.Team != nil {
		sb.WriteString("\n## Team Collaboration\n\n")
		sb.WriteString(TeamSection(ctx.Team, string(ctx.Role)))
		sb.WriteString("\n")
	}
	writeExecutionRules(&sb)
	writeReportFormat(&sb, "completed|needs_review|blocked")
	return sb.String(), nil
}

func validateTicket(ctx *Context, kind Kind) error {
	if ctx == nil {
		return ErrNilContext
	}
	if ctx.Kind != kind {
		return fmt.Errorf("%w: expected %s, got %s", ErrInvalidKind, kind, ctx.Kind)
	}
	if ctx.Ticket == nil {
		return ErrMissingTicket
	}
	if ctx.Ticket.ID == "" {
		return fmt.Errorf("%w: ticket ID is required", ErrMissingTicket)
	}
	return nil
}

// writeMission writes the persona, ticket and project context shared by the
// delegate and review prompts.
func writeMission(sb *strings.Builder, ctx *Context) {
	t := ctx.Ticket
	sb.WriteString(ctx.Role.Persona())
	sb.WriteString("\n\n## Your Mission\n\n")
	fmt.Fprintf(sb, "**Ticket %s**: %s\n\n", t.ID, t.Title)

	sb.WriteString("### Description\n")
	if strings.TrimSpace(t.Description) == "" {
		sb.WriteString("(no description)\n\n")
	} else {
		sb.WriteString(t.Description)
		sb.WriteString("\n\n")
	}

	sb.WriteString("### Acceptance Criteria\n")
	if len(t.AcceptanceCriteria) == 0 {
		sb.WriteString("(none specified)\n\n")
	} else {
		for _, c := range t.AcceptanceCriteria {
			fmt.Fprintf(sb, "- %s\n", c)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("### Project Context\n")
	fmt.Fprintf(sb, "- Project root: %s\n", ctx.Root)
	sb.WriteString("- Project structure:\n")
	sb.WriteString(ctx.Structure)
	sb.WriteString("\n\n")

	sb.WriteString("### Architecture Decisions\n")
	if len(ctx.Decisions) == 0 {
		sb.WriteString("(No ADRs yet)\n\n")
	} else {
		adrs := make([]string, len(ctx.Decisions))
		for i, d := range ctx.Decisions {
			adrs[i] = fmt.Sprintf("### %s\n%s", d.Name, d.Content)
		}
		sb.WriteString(strings.Join(adrs, "\n\n"))
		sb.WriteString("\n\n")
	}

	sb.WriteString("### Related Tickets\n")
	sb.WriteString(formatRelated(ctx.Related))
	sb.WriteString("\n")
}

func formatRelated(related []*ticket.Ticket) string {
	if len(related) == 0 {
		return "(none)"
	}
	sorted := make([]*ticket.Ticket, len(related))
	copy(sorted, related)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	lines := make([]string, 0, len(sorted))
	for _, t := range sorted {
		output := t.AgentOutput
		if output == "" {
			output = "(no output yet)"
		}
		lines = append(lines, fmt.Sprintf("- %s [%s]: %s\n  Output: %s",
			t.ID, t.Status, t.Title, report.Truncate(output, relatedOutputLimit)))
	}
	return strings.Join(lines, "\n")
}

// TeamSection renders the team block of a member's prompt: composition,
// shared decisions and interfaces, recent messages, file reservations and
// the Team Updates format.
func TeamSection(tc *TeamContext, role string) string {
	t := tc.Team
	var sections []string

	sections = append(sections, fmt.Sprintf(`### Team Collaboration: %s

You are part of a team working on ticket %s.
Coordination mode: %s
Team lead: %s

**Your Role**: %s`, t.ID, t.ParentTicket, t.Coordination.Mode, t.Coordination.Lead, role))

	members := make([]string, len(t.Members))
	for i, m := range t.Members {
		you := ""
		if m.Role == role {
			you = " (YOU)"
		}
		focus := ""
		if m.Focus != "" {
			focus = " - " + m.Focus
		}
		members[i] = fmt.Sprintf("  - @%s%s: %s%s", m.Role, you, m.Status, focus)
	}
	sections = append(sections, "**Team Members**:\n"+strings.Join(members, "\n"))

	if shared := contextprop.FormatForPrompt(tc.Shared); shared != "" {
		sections = append(sections, shared)
	}
	if msgs := mailbox.FormatForPrompt(tc.Messages); msgs != "" {
		sections = append(sections, msgs)
	}

	if mine := t.FilesReserved[role]; len(mine) > 0 {
		sections = append(sections, "**Your Reserved Files** (safe to modify):\n  - "+strings.Join(mine, "\n  - "))
	}
	var others []string
	for _, other := range sortedKeys(t.FilesReserved) {
		if other == role || len(t.FilesReserved[other]) == 0 {
			continue
		}
		others = append(others, fmt.Sprintf("  - @%s: %s", other, strings.Join(t.FilesReserved[other], ", ")))
	}
	if len(others) > 0 {
		sections = append(sections, "**Files Reserved by Others** (DO NOT MODIFY):\n"+strings.Join(others, "\n"))
	}

	sections = append(sections, teamCommunication)
	return strings.Join(sections, "\n\n")
}

const teamCommunication = "### Team Communication\n\n" +
	"To communicate with your team, include a section in your output:\n\n" +
	"```\n" +
	"### Team Updates\n" +
	"**Messages to team**:\n" +
	"- @backend: [your message here]\n" +
	"- @*: [broadcast to all team members]\n\n" +
	"**Decisions made**:\n" +
	"- [decision description]\n\n" +
	"**Blocked on**:\n" +
	"- Waiting for @architect to [reason]\n" +
	"```\n\n" +
	"Leave **Blocked on** out when nothing blocks you."

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeExecutionRules(sb *strings.Builder) {
	sb.WriteString("\n### IMPORTANT\n")
	sb.WriteString("- Execute ALL tasks directly. Do NOT ask for permission or confirmation.\n")
	sb.WriteString("- Create and modify files as needed. Do NOT just describe what should be done.\n")
	sb.WriteString("- Run commands directly. Do NOT suggest commands for someone else to run.\n")
}

func writeReportFormat(sb *strings.Builder, statuses string) {
	sb.WriteString("\n### Report Back\n")
	sb.WriteString("End your work with a summary in EXACTLY this format:\n\n")
	sb.WriteString("### Samenvatting\n")
	fmt.Fprintf(sb, "**Status**: %s\n", statuses)
	sb.WriteString("**Bestanden gewijzigd**: [list of file paths, one per line]\n")
	sb.WriteString("**Beschrijving**: [what you did]\n")
	sb.WriteString("**Open vragen**: [any open questions, or \"none\"]\n")
}
