package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/cto/internal/progress"
	"github.com/Iron-Ham/cto/internal/team"
	"github.com/Iron-Ham/cto/internal/ticket"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a project dashboard",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	all, err := a.tickets.List(ticket.Filter{})
	if err != nil {
		return err
	}
	teams, err := a.teams.List()
	if err != nil {
		return err
	}
	last, hasLast, err := a.progress.Last()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render("cto "+a.root))
	fmt.Fprintf(out, "Prefix %s  Storage %s\n\n", a.cfg.Project.TicketPrefix, a.cfg.Storage.Backend)

	counts := progress.StatusCounts(all)
	var cells []string
	for _, s := range ticket.Statuses {
		cells = append(cells, statusStyle(s).Render(fmt.Sprintf("%s %d", statusLabel(s), counts[s])))
	}
	fmt.Fprintln(out, strings.Join(cells, "  "))
	if n := len(all); n > 0 {
		fmt.Fprintf(out, "%d/%d done (%.0f%%)\n", counts[ticket.StatusDone], n,
			float64(counts[ticket.StatusDone])/float64(n)*100)
	}

	assessment := ticket.Assess(all)
	fmt.Fprintf(out, "\nScheduler: %s\n", assessment.Outcome)
	if len(assessment.Ready) > 0 {
		next := assessment.Ready[0]
		fmt.Fprintf(out, "Next: %s [%s] %s\n", next.ID, next.Priority, next.Title)
	}
	for _, t := range assessment.Blocked {
		fmt.Fprintf(out, "Blocked: %s %s\n", t.ID, mutedStyle.Render(truncateLine(t.ReviewNotes, 80)))
	}
	for _, cycle := range assessment.Cycles {
		fmt.Fprintf(out, "Cycle: %s\n", strings.Join(cycle, " -> "))
	}

	var active []*team.Team
	for _, tm := range teams {
		if tm.Status == team.StatusActive || tm.Status == team.StatusPending {
			active = append(active, tm)
		}
	}
	if len(active) > 0 {
		fmt.Fprintln(out, "\nTeams:")
		for _, tm := range active {
			fmt.Fprintf(out, "  %s %s %s (%s)\n", tm.ID, tm.ParentTicket, tm.Status, strings.Join(tm.Roles(), ","))
		}
	}

	if hasLast {
		fmt.Fprintln(out, "\nLast activity:")
		printEntry(out, last)
	}
	return nil
}
