package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/cto/internal/agent"
	"github.com/Iron-Ham/cto/internal/orchestrator"
	"github.com/Iron-Ham/cto/internal/report"
	"github.com/Iron-Ham/cto/internal/ticket"
)

var delegateCmd = &cobra.Command{
	Use:   "delegate <ticket-id>",
	Short: "Hand a ticket to an agent or a team",
	Long: `Hand a ticket to an agent or a team and record the outcome.
The role is picked from the ticket unless --agent is given. Large tickets
and tickets with a team template are worked by a team; use --team none to
force a single agent or --team <template> to force a team.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelegate,
}

var sprintCmd = &cobra.Command{
	Use:   "sprint",
	Short: "Work the board until it is done or stuck",
	Args:  cobra.NoArgs,
	RunE:  runSprint,
}

var stepCmd = &cobra.Command{
	Use:   "step",
	Short: "Run a single scheduling iteration",
	Args:  cobra.NoArgs,
	RunE:  runStep,
}

var reviewCmd = &cobra.Command{
	Use:   "review [ticket-id]",
	Short: "Review tickets waiting in review",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReview,
}

var planCmd = &cobra.Command{
	Use:   "plan <description>",
	Short: "Have the architect break a project into tickets",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPlan,
}

var meeseeksCmd = &cobra.Command{
	Use:   "meeseeks <task>",
	Short: "Summon a one-shot agent for a small task",
	Long: `Summon a one-shot agent for a small task that does not need a ticket.
The agent refuses tasks that are too big for it; split those into tickets.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMeeseeks,
}

var (
	delegateAgent   string
	delegateModel   string
	delegateDryRun  bool
	delegateTimeout int
	delegateTeam    string

	sprintMaxIterations int

	planDryRun bool

	meeseeksFiles   string
	meeseeksModel   string
	meeseeksDryRun  bool
	meeseeksTimeout int
)

func init() {
	f := delegateCmd.Flags()
	f.StringVar(&delegateAgent, "agent", "", "force the agent role")
	f.StringVar(&delegateModel, "model", "", "force the model")
	f.BoolVar(&delegateDryRun, "dry-run", false, "print the prompt without running the agent")
	f.IntVar(&delegateTimeout, "timeout", 0, "agent timeout in seconds (default agent.timeout_seconds)")
	f.StringVar(&delegateTeam, "team", "", "team template to use, or \"none\" for a single agent")

	sprintCmd.Flags().IntVar(&sprintMaxIterations, "max-iterations", 0, "iteration limit (default sprint.max_iterations)")

	planCmd.Flags().BoolVar(&planDryRun, "dry-run", false, "print the planning prompt without running the agent")

	f = meeseeksCmd.Flags()
	f.StringVar(&meeseeksFiles, "files", "", "comma-separated files the task concerns")
	f.StringVar(&meeseeksModel, "model", "", "model (default sonnet)")
	f.BoolVar(&meeseeksDryRun, "dry-run", false, "print the prompt without running the agent")
	f.IntVar(&meeseeksTimeout, "timeout", 0, "timeout in seconds (default agent.meeseeks_timeout_seconds)")

	rootCmd.AddCommand(delegateCmd, sprintCmd, stepCmd, reviewCmd, planCmd, meeseeksCmd)
}

func runDelegate(cmd *cobra.Command, args []string) error {
	opts := orchestrator.DelegateOptions{
		Model:   delegateModel,
		Timeout: time.Duration(delegateTimeout) * time.Second,
		Team:    delegateTeam,
		DryRun:  delegateDryRun,
	}
	if delegateAgent != "" {
		role, err := agent.ParseRole(delegateAgent)
		if err != nil {
			return err
		}
		opts.Role = role
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()
	orch, err := a.orchestrator()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !delegateDryRun {
		infoColor.Fprintf(out, "Delegating %s...\n", args[0])
	}
	res, err := orch.Delegate(cmd.Context(), args[0], opts)
	if err != nil {
		return err
	}
	if res.DryRun {
		fmt.Fprintf(out, "Role: %s  Model: %s\n\n%s\n", res.Role, res.Model, res.Prompt)
		return nil
	}
	printDelegation(out, res)
	return nil
}

func printDelegation(w io.Writer, res *orchestrator.DelegateResult) {
	t := res.Ticket
	switch {
	case res.Err != nil:
		failColor.Fprintf(w, "%s failed: %v\n", t.ID, res.Err)
	case res.Blocked():
		warnColor.Fprintf(w, "%s blocked (%s)\n", t.ID, agentLabel(string(res.Role)))
	default:
		okColor.Fprintf(w, "%s -> %s (%s)\n", t.ID, t.Status, agentLabel(string(res.Role)))
	}
	if res.Team != nil && res.Team.Team != nil {
		printMembers(w, res.Team.Team)
	} else if res.Report.Description != "" {
		fmt.Fprintf(w, "  %s\n", truncateLine(res.Report.Description, 200))
	}
	if len(res.Report.FilesChanged) > 0 {
		fmt.Fprintf(w, "  files: %s\n", strings.Join(res.Report.FilesChanged, ", "))
	}
	if res.Blocked() && t.ReviewNotes != "" {
		fmt.Fprintf(w, "  %s\n", truncateLine(t.ReviewNotes, 200))
	}
}

func truncateLine(s string, n int) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "\n", " ")
	if len(s) <= n {
		return s
	}
	return report.Truncate(s, n) + "..."
}

func runSprint(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()
	orch, err := a.orchestrator()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	res, err := orch.Sprint(cmd.Context(), sprintMaxIterations, func(step *orchestrator.StepResult) {
		printStep(out, step)
	})
	if res != nil {
		printSprint(out, res)
	}
	return err
}

func printStep(w io.Writer, step *orchestrator.StepResult) {
	prefix := fmt.Sprintf("[%d] ", step.Iteration)
	switch {
	case step.Delegation != nil:
		fmt.Fprint(w, prefix)
		printDelegation(w, step.Delegation)
		if step.Approved {
			okColor.Fprintf(w, "    approved\n")
		}
	case len(step.Reviews) > 0:
		for _, r := range step.Reviews {
			fmt.Fprint(w, prefix)
			printReview(w, r)
		}
	case step.Stop != "":
		infoColor.Fprintf(w, "%s%s\n", prefix, step.Stop)
	case step.Assessment.Outcome == ticket.OutcomeWait:
		ids := make([]string, len(step.Assessment.InProgress))
		for i, t := range step.Assessment.InProgress {
			ids[i] = t.ID
		}
		infoColor.Fprintf(w, "%swaiting on %s\n", prefix, strings.Join(ids, ", "))
	}
}

func printSprint(w io.Writer, res *orchestrator.SprintResult) {
	fmt.Fprintln(w)
	c := okColor
	switch res.Reason {
	case orchestrator.ReasonComplete:
	case orchestrator.ReasonDeadlock, orchestrator.ReasonError:
		c = failColor
	default:
		c = warnColor
	}
	c.Fprintf(w, "Sprint finished: %s after %d iteration(s)\n", res.Reason, res.Iterations)
	fmt.Fprintf(w, "%d/%d tickets done (%.0f%%)\n", res.Done, res.Total, res.Percent())
	if len(res.Blocked) > 0 {
		fmt.Fprintln(w, "Blocked:")
		for _, t := range res.Blocked {
			fmt.Fprintf(w, "  %s %s\n", t.ID, truncateLine(t.ReviewNotes, 120))
		}
	}
	for _, cycle := range res.Cycles {
		fmt.Fprintf(w, "Dependency cycle: %s\n", strings.Join(cycle, " -> "))
	}
}

func runStep(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()
	orch, err := a.orchestrator()
	if err != nil {
		return err
	}

	step, err := orch.Step(cmd.Context(), nil)
	if step != nil {
		step.Iteration = 1
		out := cmd.OutOrStdout()
		printStep(out, step)
		if step.Delegation == nil && len(step.Reviews) == 0 && step.Stop == "" && step.Assessment.Outcome != ticket.OutcomeWait {
			fmt.Fprintf(out, "Nothing to do (%s)\n", step.Assessment.Outcome)
		}
	}
	return err
}

func runReview(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()
	orch, err := a.orchestrator()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		r, err := orch.Review(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printReview(out, r)
		return nil
	}

	results, err := orch.ReviewAll(cmd.Context(), 0, nil)
	for _, r := range results {
		printReview(out, r)
	}
	if err == nil && len(results) == 0 {
		fmt.Fprintln(out, "Nothing is waiting for review.")
	}
	return err
}

func printReview(w io.Writer, r *orchestrator.ReviewResult) {
	id := r.Ticket.ID
	switch {
	case r.Err != nil:
		failColor.Fprintf(w, "%s review failed: %v\n", id, r.Err)
	case r.Verdict == orchestrator.VerdictApproved:
		okColor.Fprintf(w, "%s approved\n", id)
	case r.Verdict == orchestrator.VerdictRejected:
		warnColor.Fprintf(w, "%s sent back: %s\n", id, truncateLine(r.Report.Description, 160))
	default:
		infoColor.Fprintf(w, "%s stays in review\n", id)
	}
}

func runPlan(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()
	orch, err := a.orchestrator()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	res, err := orch.Plan(cmd.Context(), strings.Join(args, " "), planDryRun)
	if err != nil {
		return err
	}
	if planDryRun {
		fmt.Fprintln(out, res.Prompt)
		return nil
	}
	okColor.Fprintf(out, "Created %d ticket(s)\n", len(res.Tickets))
	for _, t := range res.Tickets {
		printTicketLine(out, t)
	}
	return nil
}

func runMeeseeks(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()
	orch, err := a.orchestrator()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	res, err := orch.Meeseeks(cmd.Context(), orchestrator.MeeseeksRequest{
		Task:    strings.Join(args, " "),
		Files:   ticket.SplitList(meeseeksFiles, ","),
		Model:   meeseeksModel,
		Timeout: time.Duration(meeseeksTimeout) * time.Second,
		DryRun:  meeseeksDryRun,
	})
	if err != nil {
		return err
	}
	if res.DryRun {
		fmt.Fprintln(out, res.Prompt)
		return nil
	}

	switch {
	case res.Err != nil:
		failColor.Fprintf(out, "Meeseeks failed: %v\n", res.Err)
		return res.Err
	case res.Escalated():
		warnColor.Fprintln(out, "Existence is pain! This task is too complex for a Meeseeks.")
		fmt.Fprintln(out, "Create a ticket and delegate it instead.")
		return nil
	}
	okColor.Fprintf(out, "Meeseeks done (%s): %s\n", res.Report.Status, truncateLine(res.Report.Description, 200))
	if len(res.Report.FilesChanged) > 0 {
		fmt.Fprintf(out, "  files: %s\n", strings.Join(res.Report.FilesChanged, ", "))
	}
	return nil
}
