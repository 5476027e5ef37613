package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"github.com/Iron-Ham/cto/internal/ticket"
)

// Board and status styles.
var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)
	mutedStyle = lipgloss.NewStyle().Faint(true)

	statusColors = map[ticket.Status]lipgloss.Color{
		ticket.StatusBacklog:    lipgloss.Color("245"),
		ticket.StatusTodo:       lipgloss.Color("39"),
		ticket.StatusInProgress: lipgloss.Color("214"),
		ticket.StatusInReview:   lipgloss.Color("141"),
		ticket.StatusTesting:    lipgloss.Color("81"),
		ticket.StatusDone:       lipgloss.Color("42"),
		ticket.StatusBlocked:    lipgloss.Color("196"),
	}
)

// Console line colors.
var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	failColor = color.New(color.FgRed, color.Bold)
	infoColor = color.New(color.FgCyan)
)

// boardComments is the one-line caption under each board column.
var boardComments = map[ticket.Status]string{
	ticket.StatusBacklog:    "The pile of stuff nobody wants to deal with",
	ticket.StatusTodo:       "Things the Mortys still haven't started",
	ticket.StatusInProgress: "Someone's actually doing something for once",
	ticket.StatusInReview:   "Let's see how badly they screwed this up",
	ticket.StatusTesting:    "Poking it with a stick to see if it breaks",
	ticket.StatusDone:       "Miracles do happen",
	ticket.StatusBlocked:    "Stuck",
}

// statusLabel renders a status as "IN PROGRESS".
func statusLabel(s ticket.Status) string {
	return strings.ToUpper(strings.ReplaceAll(string(s), "_", " "))
}

func statusStyle(s ticket.Status) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(statusColors[s]).Bold(true)
}

// agentLabel renders an assigned agent as @role, or "-" when unassigned.
func agentLabel(a string) string {
	if a == "" {
		return "-"
	}
	return "@" + a
}

// renderBoard groups tickets by status in board order.
func renderBoard(tickets []*ticket.Ticket) string {
	byStatus := make(map[ticket.Status][]*ticket.Ticket)
	for _, t := range tickets {
		byStatus[t.Status] = append(byStatus[t.Status], t)
	}

	sections := make([]string, 0, len(ticket.Statuses))
	for _, s := range ticket.Statuses {
		items := byStatus[s]
		var sb strings.Builder
		sb.WriteString(statusStyle(s).Render(fmt.Sprintf("%s (%d)", statusLabel(s), len(items))))
		sb.WriteString("\n")
		sb.WriteString(mutedStyle.Render(boardComments[s]))
		if len(items) == 0 {
			sb.WriteString("\n  (empty)")
		}
		for _, t := range items {
			fmt.Fprintf(&sb, "\n  %s [%s] %s %s", t.ID, t.Priority, agentLabel(t.AssignedAgent), t.Title)
		}
		sections = append(sections, sectionStyle.Render(sb.String()))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// printTicketLine writes one list row.
func printTicketLine(w io.Writer, t *ticket.Ticket) {
	fmt.Fprintf(w, "%-10s %-12s %-9s %-3s %-12s %s\n",
		t.ID, t.Status, t.Priority, t.Complexity, agentLabel(t.AssignedAgent), t.Title)
}
