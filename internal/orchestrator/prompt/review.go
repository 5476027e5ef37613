package prompt

import (
	"fmt"
	"strings"
)

// ReviewBuilder builds the prompt for reviewing a ticket's completed work.
type ReviewBuilder struct{}

// NewReviewBuilder creates a new ReviewBuilder.
func NewReviewBuilder() *ReviewBuilder {
	return &ReviewBuilder{}
}

// Build generates the review prompt. It is the delegation prompt for the
// reviewer with the work under review added and a verdict-oriented report.
func (b *ReviewBuilder) Build(ctx *Context) (string, error) {
	if err := validateTicket(ctx, KindReview); err != nil {
		return "", err
	}

	var sb strings.Builder
	writeMission(&sb, ctx)

	t := ctx.Ticket
	sb.WriteString("\n## Work Under Review\n\n")
	if t.AssignedAgent != "" {
		fmt.Fprintf(&sb, "Implemented by: @%s\n\n", t.AssignedAgent)
	}
	sb.WriteString("### Files Touched\n")
	if len(t.FilesTouched) == 0 {
		sb.WriteString("(none recorded)\n")
	}
	for _, f := range t.FilesTouched {
		fmt.Fprintf(&sb, "- %s\n", f)
	}
	sb.WriteString("\n### Agent Report\n")
	if t.AgentOutput == "" {
		sb.WriteString("(no output recorded)\n")
	} else {
		sb.WriteString(t.AgentOutput)
		sb.WriteString("\n")
	}
	if t.ReviewNotes != "" {
		sb.WriteString("\n### Previous Review Notes\n")
		sb.WriteString(t.ReviewNotes)
		sb.WriteString("\n")
	}

	sb.WriteString("\n### Review Instructions\n")
	sb.WriteString("- Check the work against every acceptance criterion.\n")
	sb.WriteString("- Fix small issues directly and list the files you changed.\n")
	sb.WriteString("- Use **Status**: completed to approve the work.\n")
	sb.WriteString("- Use **Status**: changes_requested (or rejected) to send it back, and put what must change in **Beschrijving**.\n")

	writeExecutionRules(&sb)
	writeReportFormat(&sb, "completed|changes_requested|rejected")
	return sb.String(), nil
}
