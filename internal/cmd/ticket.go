package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/cto/internal/progress"
	"github.com/Iron-Ham/cto/internal/ticket"
)

var ticketCmd = &cobra.Command{
	Use:   "ticket",
	Short: "Manage tickets",
}

var ticketCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a ticket",
	Args:  cobra.NoArgs,
	RunE:  runTicketCreate,
}

var ticketListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tickets",
	Args:  cobra.NoArgs,
	RunE:  runTicketList,
}

var ticketShowCmd = &cobra.Command{
	Use:   "show <ticket-id>",
	Short: "Show a ticket in full",
	Args:  cobra.ExactArgs(1),
	RunE:  runTicketShow,
}

var ticketUpdateCmd = &cobra.Command{
	Use:   "update <ticket-id>",
	Short: "Update ticket fields",
	Long: `Update ticket fields. Only the flags given are changed.
Setting --status moves the ticket directly, without the workflow checks
the scheduler applies.`,
	Args: cobra.ExactArgs(1),
	RunE: runTicketUpdate,
}

var ticketCloseCmd = &cobra.Command{
	Use:   "close <ticket-id>",
	Short: "Mark a ticket done",
	Args:  cobra.ExactArgs(1),
	RunE:  runTicketClose,
}

var ticketBlockCmd = &cobra.Command{
	Use:   "block <ticket-id>",
	Short: "Mark a ticket blocked",
	Args:  cobra.ExactArgs(1),
	RunE:  runTicketBlock,
}

var ticketBoardCmd = &cobra.Command{
	Use:   "board",
	Short: "Show tickets grouped by status",
	Args:  cobra.NoArgs,
	RunE:  runTicketBoard,
}

var ticketNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Show the next ticket the scheduler would pick",
	Args:  cobra.NoArgs,
	RunE:  runTicketNext,
}

var ticketBreakdownCmd = &cobra.Command{
	Use:   "breakdown <epic-id>",
	Short: "Show an epic and its child tickets",
	Args:  cobra.ExactArgs(1),
	RunE:  runTicketBreakdown,
}

var (
	// create and update
	ticketTitle        string
	ticketType         string
	ticketPriority     string
	ticketDescription  string
	ticketParent       string
	ticketDepends      string
	ticketCriteria     string
	ticketComplexity   string
	ticketTeamTemplate string

	// update
	updateTitle        string
	updateDescription  string
	updateStatus       string
	updatePriority     string
	updateComplexity   string
	updateAgent        string
	updateParent       string
	updateDepends      string
	updateCriteria     string
	updateTeamTemplate string

	// list
	listStatus string
	listAgent  string
	listType   string
	listParent string

	closeOutput string
	blockReason string
)

func init() {
	f := ticketCreateCmd.Flags()
	f.StringVar(&ticketTitle, "title", "", "ticket title (required)")
	f.StringVar(&ticketType, "type", "task", "feature, bug, task, spike, epic or security")
	f.StringVar(&ticketPriority, "priority", "medium", "critical, high, medium or low")
	f.StringVar(&ticketDescription, "description", "", "ticket description")
	f.StringVar(&ticketParent, "parent", "", "parent epic id")
	f.StringVar(&ticketDepends, "depends", "", "comma-separated ticket ids this depends on")
	f.StringVar(&ticketCriteria, "criteria", "", "pipe-separated acceptance criteria")
	f.StringVar(&ticketComplexity, "complexity", "M", "XS, S, M, L or XL")
	f.StringVar(&ticketTeamTemplate, "team-template", "", "work the ticket with this team template")
	_ = ticketCreateCmd.MarkFlagRequired("title")

	f = ticketUpdateCmd.Flags()
	f.StringVar(&updateTitle, "title", "", "new title")
	f.StringVar(&updateDescription, "description", "", "new description")
	f.StringVar(&updateStatus, "status", "", "new status")
	f.StringVar(&updatePriority, "priority", "", "new priority")
	f.StringVar(&updateComplexity, "complexity", "", "new complexity")
	f.StringVar(&updateAgent, "agent", "", "assigned agent role")
	f.StringVar(&updateParent, "parent", "", "parent epic id")
	f.StringVar(&updateDepends, "depends", "", "comma-separated ticket ids (replaces the list)")
	f.StringVar(&updateCriteria, "criteria", "", "pipe-separated acceptance criteria (replaces the list)")
	f.StringVar(&updateTeamTemplate, "team-template", "", "team template")

	f = ticketListCmd.Flags()
	f.StringVar(&listStatus, "status", "", "filter by status")
	f.StringVar(&listAgent, "agent", "", "filter by assigned agent")
	f.StringVar(&listType, "type", "", "filter by type")
	f.StringVar(&listParent, "parent", "", "filter by parent epic")

	ticketCloseCmd.Flags().StringVar(&closeOutput, "output", "", "completion notes")
	ticketBlockCmd.Flags().StringVar(&blockReason, "reason", "", "why the ticket is blocked")

	ticketCmd.AddCommand(ticketCreateCmd, ticketListCmd, ticketShowCmd, ticketUpdateCmd,
		ticketCloseCmd, ticketBlockCmd, ticketBoardCmd, ticketNextCmd, ticketBreakdownCmd)
	rootCmd.AddCommand(ticketCmd)
}

func runTicketCreate(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	t, err := a.tickets.Create(ticket.CreateParams{
		Title:              ticketTitle,
		Description:        ticketDescription,
		Type:               ticket.Type(strings.ToLower(ticketType)),
		Priority:           ticket.Priority(strings.ToLower(ticketPriority)),
		Complexity:         ticket.Complexity(strings.ToUpper(ticketComplexity)),
		Parent:             ticketParent,
		Dependencies:       ticket.SplitList(ticketDepends, ","),
		AcceptanceCriteria: ticket.SplitList(ticketCriteria, "|"),
		TeamTemplate:       ticketTeamTemplate,
	})
	if err != nil {
		return err
	}
	a.record(progress.Entry{
		TicketID: t.ID,
		Action:   progress.ActionCreated,
		Message:  "Created ticket: " + t.Title,
	})

	okColor.Fprintf(cmd.OutOrStdout(), "Created %s: %s\n", t.ID, t.Title)
	return nil
}

func runTicketList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	tickets, err := a.tickets.List(ticket.Filter{
		Status: ticket.Status(listStatus),
		Agent:  listAgent,
		Type:   ticket.Type(listType),
		Parent: listParent,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(tickets) == 0 {
		fmt.Fprintln(out, "No tickets found.")
		return nil
	}
	for _, t := range tickets {
		printTicketLine(out, t)
	}
	return nil
}

func runTicketShow(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	t, err := a.tickets.Get(args[0])
	if err != nil {
		return err
	}
	printTicket(cmd.OutOrStdout(), t)
	return nil
}

func printTicket(w io.Writer, t *ticket.Ticket) {
	fmt.Fprintln(w, titleStyle.Render(t.ID+": "+t.Title))
	fmt.Fprintf(w, "Status:     %s\n", statusStyle(t.Status).Render(string(t.Status)))
	fmt.Fprintf(w, "Type:       %s\n", t.Type)
	fmt.Fprintf(w, "Priority:   %s\n", t.Priority)
	fmt.Fprintf(w, "Complexity: %s\n", t.Complexity)
	fmt.Fprintf(w, "Agent:      %s\n", agentLabel(t.AssignedAgent))
	if t.Parent != "" {
		fmt.Fprintf(w, "Parent:     %s\n", t.Parent)
	}
	if len(t.Dependencies) > 0 {
		fmt.Fprintf(w, "Depends on: %s\n", strings.Join(t.Dependencies, ", "))
	}
	if t.TeamTemplate != "" || t.TeamID != "" {
		fmt.Fprintf(w, "Team:       %s %s\n", t.TeamTemplate, t.TeamID)
	}
	if t.Description != "" {
		fmt.Fprintf(w, "\n%s\n", t.Description)
	}
	if len(t.AcceptanceCriteria) > 0 {
		fmt.Fprintln(w, "\nAcceptance criteria:")
		for _, c := range t.AcceptanceCriteria {
			fmt.Fprintf(w, "  - %s\n", c)
		}
	}
	if len(t.FilesTouched) > 0 {
		fmt.Fprintln(w, "\nFiles touched:")
		for _, f := range t.FilesTouched {
			fmt.Fprintf(w, "  %s\n", f)
		}
	}
	if t.ReviewNotes != "" {
		fmt.Fprintf(w, "\nNotes:\n%s\n", t.ReviewNotes)
	}
	if t.AgentOutput != "" {
		fmt.Fprintf(w, "\nAgent output:\n%s\n", mutedStyle.Render(t.AgentOutput))
	}
}

func runTicketUpdate(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	var p ticket.UpdateParams
	if flags.Changed("title") {
		p.Title = &updateTitle
	}
	if flags.Changed("description") {
		p.Description = &updateDescription
	}
	if flags.Changed("status") {
		s := ticket.Status(strings.ToLower(updateStatus))
		p.Status = &s
	}
	if flags.Changed("priority") {
		pr := ticket.Priority(strings.ToLower(updatePriority))
		p.Priority = &pr
	}
	if flags.Changed("complexity") {
		c := ticket.Complexity(strings.ToUpper(updateComplexity))
		p.Complexity = &c
	}
	if flags.Changed("agent") {
		p.AssignedAgent = &updateAgent
	}
	if flags.Changed("parent") {
		p.Parent = &updateParent
	}
	if flags.Changed("depends") {
		p.Dependencies = ticket.SplitList(updateDepends, ",")
		if p.Dependencies == nil {
			p.Dependencies = []string{}
		}
	}
	if flags.Changed("criteria") {
		p.AcceptanceCriteria = ticket.SplitList(updateCriteria, "|")
		if p.AcceptanceCriteria == nil {
			p.AcceptanceCriteria = []string{}
		}
	}
	if flags.Changed("team-template") {
		p.TeamTemplate = &updateTeamTemplate
	}

	out := cmd.OutOrStdout()
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	t, changed, err := a.tickets.Update(args[0], p)
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		fmt.Fprintf(out, "Nothing to update for %s\n", t.ID)
		return nil
	}
	a.record(progress.Entry{
		TicketID: t.ID,
		Action:   progress.ActionNote,
		Message:  "Updated " + strings.Join(changed, ", "),
	})
	okColor.Fprintf(out, "Updated %s: %s\n", t.ID, strings.Join(changed, ", "))
	return nil
}

func runTicketClose(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	t, err := a.tickets.Close(args[0], closeOutput)
	if err != nil {
		return err
	}
	a.record(progress.Entry{
		TicketID: t.ID,
		Action:   progress.ActionCompleted,
		Message:  "Closed: " + t.Title,
	})
	if t.Parent != "" {
		if _, _, err := a.tickets.RollupEpic(t.Parent); err != nil {
			a.logger.Warn("epic rollup failed", "epic", t.Parent, "error", err)
		}
	}
	okColor.Fprintf(cmd.OutOrStdout(), "Closed %s\n", t.ID)
	return nil
}

func runTicketBlock(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	t, err := a.tickets.Block(args[0], blockReason)
	if err != nil {
		return err
	}
	a.record(progress.Entry{
		TicketID: t.ID,
		Action:   progress.ActionBlocked,
		Message:  "Blocked: " + blockReason,
	})
	warnColor.Fprintf(cmd.OutOrStdout(), "Blocked %s\n", t.ID)
	return nil
}

func runTicketBoard(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	tickets, err := a.tickets.List(ticket.Filter{})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderBoard(tickets))
	return nil
}

func runTicketNext(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	all, err := a.tickets.List(ticket.Filter{})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	next := ticket.Next(all)
	if next == nil {
		assessment := ticket.Assess(all)
		fmt.Fprintf(out, "No ticket is ready (%s).\n", assessment.Outcome)
		return nil
	}
	printTicketLine(out, next)
	return nil
}

func runTicketBreakdown(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	epic, err := a.tickets.Get(args[0])
	if err != nil {
		return err
	}
	all, err := a.tickets.List(ticket.Filter{})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%s: %s [%s]", epic.ID, epic.Title, epic.Status)))
	children := ticket.Children(epic.ID, all)
	if len(children) == 0 {
		fmt.Fprintln(out, "  (no child tickets)")
		return nil
	}
	done := 0
	for _, c := range children {
		if c.Status == ticket.StatusDone {
			done++
		}
		line := fmt.Sprintf("  %s %-12s %s", c.ID, c.Status, c.Title)
		if unmet := ticket.UnmetDependencies(c, all); len(unmet) > 0 && c.Status.IsActionable() {
			line += mutedStyle.Render(" (waiting on " + strings.Join(unmet, ", ") + ")")
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "\n%d/%d done\n", done, len(children))
	return nil
}
