package cmd

import (
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/cto/internal/progress"
	"github.com/Iron-Ham/cto/internal/ticket"
)

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Read and write the progress log",
}

var progressLogCmd = &cobra.Command{
	Use:   "log <message>",
	Short: "Append an entry to the progress log",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runProgressLog,
}

var progressSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize today's progress",
	Args:  cobra.NoArgs,
	RunE:  runProgressSummary,
}

var progressTimelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Show every log entry grouped by day",
	Args:  cobra.NoArgs,
	RunE:  runProgressTimeline,
}

var progressReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write a markdown progress report",
	Args:  cobra.NoArgs,
	RunE:  runProgressReport,
}

var (
	logTicket string
	logAgent  string
	logAction string
	logFiles  string

	summaryFull bool
)

func init() {
	f := progressLogCmd.Flags()
	f.StringVar(&logTicket, "ticket", "", "ticket the entry is about")
	f.StringVar(&logAgent, "agent", progress.DefaultAgent, "who did the work")
	f.StringVar(&logAction, "action", progress.ActionNote, "one of "+strings.Join(progress.Actions, ", "))
	f.StringVar(&logFiles, "files", "", "comma-separated files changed")

	progressSummaryCmd.Flags().BoolVar(&summaryFull, "full", false, "summarize the whole log instead of today")

	progressCmd.AddCommand(progressLogCmd, progressSummaryCmd, progressTimelineCmd, progressReportCmd)
	rootCmd.AddCommand(progressCmd)
}

func runProgressLog(cmd *cobra.Command, args []string) error {
	if !slices.Contains(progress.Actions, logAction) {
		return fmt.Errorf("unknown action %q (want one of %s)", logAction, strings.Join(progress.Actions, ", "))
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	if logTicket != "" {
		if _, err := a.tickets.Get(logTicket); err != nil {
			return err
		}
	}
	if err := a.progress.Append(progress.Entry{
		TicketID:     logTicket,
		Agent:        logAgent,
		Action:       logAction,
		Message:      strings.Join(args, " "),
		FilesChanged: ticket.SplitList(logFiles, ","),
	}); err != nil {
		return err
	}
	okColor.Fprintln(cmd.OutOrStdout(), "Logged")
	return nil
}

func runProgressSummary(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	entries, err := a.progress.Today()
	if summaryFull {
		entries, err = a.progress.All()
	}
	if err != nil {
		return err
	}
	tickets, err := a.tickets.List(ticket.Filter{})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	s := progress.Summarize(entries, tickets)
	fmt.Fprintln(out, titleStyle.Render("Progress"))
	fmt.Fprintf(out, "%d/%d tickets done (%.0f%%)\n", s.Done, s.Tickets, s.Percent())
	for _, st := range ticket.Statuses {
		if n := s.StatusCounts[st]; n > 0 {
			fmt.Fprintf(out, "  %-12s %d\n", st, n)
		}
	}

	fmt.Fprintf(out, "\n%d log entries\n", s.Entries)
	printCounts(out, "By action", s.ActionCounts)
	printCounts(out, "By agent", s.AgentCounts)

	if len(s.Recent) > 0 {
		fmt.Fprintln(out, "\nRecent:")
		for _, e := range s.Recent {
			printEntry(out, e)
		}
	}
	return nil
}

func printCounts(w io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-12s %d\n", k, counts[k])
	}
}

func printEntry(w io.Writer, e progress.Entry) {
	fmt.Fprintf(w, "  %s %-10s %-10s @%-10s %s\n",
		e.Timestamp.Local().Format("15:04"), progress.TicketLabel(e), e.Action, e.Agent, e.Message)
}

func runProgressTimeline(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	entries, err := a.progress.All()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	days := progress.Timeline(entries)
	if len(days) == 0 {
		fmt.Fprintln(out, "The progress log is empty.")
		return nil
	}
	for _, d := range days {
		fmt.Fprintln(out, titleStyle.Render(d.Date))
		for _, e := range d.Entries {
			printEntry(out, e)
		}
	}
	return nil
}

func runProgressReport(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	entries, err := a.progress.All()
	if err != nil {
		return err
	}
	tickets, err := a.tickets.List(ticket.Filter{})
	if err != nil {
		return err
	}
	path, err := a.progress.SaveReport(progress.Report(entries, tickets, time.Now()))
	if err != nil {
		return err
	}
	okColor.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", path)
	return nil
}
