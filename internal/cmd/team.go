package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/cto/internal/contextprop"
	"github.com/Iron-Ham/cto/internal/filelock"
	"github.com/Iron-Ham/cto/internal/mailbox"
	"github.com/Iron-Ham/cto/internal/progress"
	"github.com/Iron-Ham/cto/internal/team"
)

var teamCmd = &cobra.Command{
	Use:   "team",
	Short: "Manage agent teams",
	Long: `Teams are groups of agents working one ticket together. Members talk
through a team mailbox, share decisions and interfaces, and reserve the
files they intend to change.`,
}

var teamCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Form a team for a ticket",
	Args:  cobra.NoArgs,
	RunE:  runTeamCreate,
}

var teamListCmd = &cobra.Command{
	Use:   "list",
	Short: "List teams",
	Args:  cobra.NoArgs,
	RunE:  runTeamList,
}

var teamStatusCmd = &cobra.Command{
	Use:   "status <team-id>",
	Short: "Show a team's members, reservations and shared context",
	Args:  cobra.ExactArgs(1),
	RunE:  runTeamStatus,
}

var teamTemplatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List team templates",
	Args:  cobra.NoArgs,
	RunE:  runTeamTemplates,
}

var teamSendCmd = &cobra.Command{
	Use:   "send <team-id>",
	Short: "Send a message to a team member or the whole team",
	Args:  cobra.ExactArgs(1),
	RunE:  runTeamSend,
}

var teamMessagesCmd = &cobra.Command{
	Use:   "messages <team-id>",
	Short: "Show team messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runTeamMessages,
}

var teamContextCmd = &cobra.Command{
	Use:   "context <team-id>",
	Short: "Show or add to a team's shared context",
	Args:  cobra.ExactArgs(1),
	RunE:  runTeamContext,
}

var teamReserveCmd = &cobra.Command{
	Use:   "reserve <team-id> <role> <path>...",
	Short: "Reserve files for a team member",
	Args:  cobra.MinimumNArgs(3),
	RunE:  runTeamReserve,
}

var teamReleaseCmd = &cobra.Command{
	Use:   "release <team-id> <role>",
	Short: "Release a member's file reservations",
	Args:  cobra.ExactArgs(2),
	RunE:  runTeamRelease,
}

var teamRunCmd = &cobra.Command{
	Use:   "run <team-id>",
	Short: "Run a team's pending members",
	Args:  cobra.ExactArgs(1),
	RunE:  runTeamRun,
}

var (
	teamTicket   string
	teamTemplate string
	teamRoles    string
	teamStatus   string

	sendFrom    string
	sendTo      string
	sendMessage string
	sendType    string

	messagesRole   string
	messagesUnread bool
	messagesMark   bool

	contextDecision string
	contextNote     string
	contextAuthor   string
)

func init() {
	f := teamCreateCmd.Flags()
	f.StringVar(&teamTicket, "ticket", "", "ticket the team works (required)")
	f.StringVar(&teamTemplate, "template", "", "team template name")
	f.StringVar(&teamRoles, "roles", "", "comma-separated roles for a custom parallel team")
	_ = teamCreateCmd.MarkFlagRequired("ticket")

	teamListCmd.Flags().StringVar(&teamStatus, "status", "", "filter by team status")

	f = teamSendCmd.Flags()
	f.StringVar(&sendFrom, "from-role", "rick", "sender role")
	f.StringVar(&sendTo, "to", mailbox.Broadcast, "recipient role, or @* for everyone")
	f.StringVar(&sendMessage, "message", "", "message body (required)")
	f.StringVar(&sendType, "type", string(mailbox.MessageInfo), "info, question, decision or blocked")
	_ = teamSendCmd.MarkFlagRequired("message")

	f = teamMessagesCmd.Flags()
	f.StringVar(&messagesRole, "role", "", "only messages to or from this role")
	f.BoolVar(&messagesUnread, "unread", false, "only messages the role has not read")
	f.BoolVar(&messagesMark, "mark-read", false, "mark the shown messages read for --role")

	f = teamContextCmd.Flags()
	f.StringVar(&contextDecision, "add-decision", "", "record a decision")
	f.StringVar(&contextNote, "add-note", "", "add a note")
	f.StringVar(&contextAuthor, "author", "rick", "who is adding to the context")

	teamCmd.AddCommand(teamCreateCmd, teamListCmd, teamStatusCmd, teamTemplatesCmd,
		teamSendCmd, teamMessagesCmd, teamContextCmd, teamReserveCmd, teamReleaseCmd, teamRunCmd)
	rootCmd.AddCommand(teamCmd)
}

func runTeamCreate(cmd *cobra.Command, args []string) error {
	if (teamTemplate == "") == (teamRoles == "") {
		return fmt.Errorf("give exactly one of --template or --roles")
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	if _, err := a.tickets.Get(teamTicket); err != nil {
		return err
	}
	var tm *team.Team
	if teamTemplate != "" {
		tm, err = a.teams.Create(teamTicket, teamTemplate)
	} else {
		tm, err = a.teams.CreateCustom(teamTicket, strings.Split(teamRoles, ","))
	}
	if err != nil {
		return err
	}
	if _, err := a.tickets.SetTeam(teamTicket, tm.ID); err != nil {
		return err
	}
	a.record(progress.Entry{
		TicketID: teamTicket,
		Action:   progress.ActionNote,
		Message:  fmt.Sprintf("Team %s formed from %s", tm.ID, tm.Template),
	})

	out := cmd.OutOrStdout()
	okColor.Fprintf(out, "Created %s for %s (%s, %s)\n", tm.ID, teamTicket, tm.Template, tm.Coordination.Mode)
	printMembers(out, tm)
	return nil
}

func printMembers(w io.Writer, tm *team.Team) {
	for _, m := range tm.Members {
		marker := " "
		if m.Role == tm.Coordination.Lead {
			marker = "*"
		}
		fmt.Fprintf(w, "  %s %-10s %-10s %-12s %s\n", marker, m.Role, m.Status, m.Assignment, m.Focus)
		if m.OutputSummary != "" {
			fmt.Fprintf(w, "      %s\n", mutedStyle.Render(m.OutputSummary))
		}
	}
}

func runTeamList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	teams, err := a.teams.List()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	n := 0
	for _, tm := range teams {
		if teamStatus != "" && string(tm.Status) != teamStatus {
			continue
		}
		n++
		fmt.Fprintf(out, "%-9s %-10s %-9s %-15s %s\n",
			tm.ID, tm.ParentTicket, tm.Status, tm.Template, strings.Join(tm.Roles(), ","))
	}
	if n == 0 {
		fmt.Fprintln(out, "No teams found.")
	}
	return nil
}

func runTeamStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	tm, err := a.teams.Get(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%s: %s [%s]", tm.ID, tm.ParentTicket, tm.Status)))
	fmt.Fprintf(out, "Template: %s  Mode: %s  Lead: %s\n\n", tm.Template, tm.Coordination.Mode, tm.Coordination.Lead)
	printMembers(out, tm)

	if len(tm.FilesReserved) > 0 {
		fmt.Fprintln(out, "\nFile reservations:")
		roles := make([]string, 0, len(tm.FilesReserved))
		for role := range tm.FilesReserved {
			roles = append(roles, role)
		}
		sort.Strings(roles)
		for _, role := range roles {
			fmt.Fprintf(out, "  @%s: %s\n", role, strings.Join(tm.FilesReserved[role], ", "))
		}
	}

	shared, err := a.shared.Get(tm.ID)
	if err != nil {
		return err
	}
	if text := contextprop.FormatForPrompt(shared); text != "" {
		fmt.Fprintf(out, "\n%s\n", text)
	}
	return nil
}

func runTeamTemplates(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	for _, tmpl := range a.teams.Templates().List() {
		fmt.Fprintf(out, "%s (%s, lead %s)\n", titleStyle.Render(tmpl.Name), tmpl.Mode, tmpl.Lead)
		if tmpl.Description != "" {
			fmt.Fprintf(out, "  %s\n", tmpl.Description)
		}
		for _, r := range tmpl.Roles {
			fmt.Fprintf(out, "  - %-10s %s\n", r.Role, r.Focus)
		}
	}
	return nil
}

func runTeamSend(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	if _, err := a.teams.Get(args[0]); err != nil {
		return err
	}
	msg, err := a.mailbox.Send(args[0], sendFrom, sendTo, sendMessage, mailbox.MessageType(sendType))
	if err != nil {
		return err
	}
	okColor.Fprintf(cmd.OutOrStdout(), "Sent %s to %s\n", msg.ID, msg.To)
	return nil
}

func runTeamMessages(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	msgs, err := a.mailbox.Get(args[0], messagesRole, messagesUnread)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(msgs) == 0 {
		fmt.Fprintln(out, "No messages.")
		return nil
	}
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
		fmt.Fprintf(out, "%s %s @%s -> %s [%s] %s\n",
			m.ID, m.Timestamp.Local().Format("15:04:05"), m.From, m.To, m.Type, m.Body)
	}
	if messagesMark && messagesRole != "" {
		if _, err := a.mailbox.MarkRead(args[0], messagesRole, ids...); err != nil {
			return err
		}
	}
	return nil
}

func runTeamContext(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	teamID := args[0]
	if _, err := a.teams.Get(teamID); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if contextDecision != "" {
		if err := a.shared.ShareDecision(teamID, contextDecision, contextAuthor); err != nil {
			return err
		}
		okColor.Fprintln(out, "Decision recorded")
	}
	if contextNote != "" {
		if err := a.shared.AddNote(teamID, contextNote, contextAuthor); err != nil {
			return err
		}
		okColor.Fprintln(out, "Note added")
	}
	if contextDecision != "" || contextNote != "" {
		return nil
	}

	shared, err := a.shared.Get(teamID)
	if err != nil {
		return err
	}
	text := contextprop.FormatForPrompt(shared)
	if text == "" {
		text = "No shared context yet."
	}
	fmt.Fprintln(out, text)
	return nil
}

func runTeamReserve(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	conflicts, err := a.files.Reserve(args[0], args[1], args[2:])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(conflicts) > 0 {
		failColor.Fprintln(out, "Reservation refused:")
		fmt.Fprintln(out, filelock.FormatConflicts(conflicts))
		return fmt.Errorf("%d file(s) already reserved", len(conflicts))
	}
	okColor.Fprintf(out, "Reserved %d file(s) for @%s\n", len(args)-2, args[1])
	return nil
}

func runTeamRelease(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.files.Release(args[0], args[1]); err != nil {
		return err
	}
	okColor.Fprintf(cmd.OutOrStdout(), "Released reservations of @%s\n", args[1])
	return nil
}

func runTeamRun(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	tm, err := a.teams.Get(args[0])
	if err != nil {
		return err
	}
	orch, err := a.orchestrator()
	if err != nil {
		return err
	}
	parent, err := a.tickets.Get(tm.ParentTicket)
	if err != nil {
		return err
	}
	// The result only rolls up onto a ticket that is in progress.
	if parent.Status.IsActionable() {
		if _, err := a.tickets.Assign(parent.ID, tm.Coordination.Lead); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	infoColor.Fprintf(out, "Running %s (%s)...\n", tm.ID, tm.Coordination.Mode)
	res, err := orch.Coordinator().Run(cmd.Context(), tm.ID)
	if res != nil && res.Team != nil {
		printMembers(out, res.Team)
		switch {
		case res.Completed():
			okColor.Fprintf(out, "%s completed\n", tm.ID)
		case res.Team.Status == team.StatusBlocked:
			failColor.Fprintf(out, "%s blocked\n", tm.ID)
		}
	}
	return err
}
