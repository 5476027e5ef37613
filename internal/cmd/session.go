package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/cto/internal/session"
	"github.com/Iron-Ham/cto/internal/ticket"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Remember where you left off",
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session record",
	Args:  cobra.NoArgs,
	RunE:  runSessionStatus,
}

var sessionLogCmd = &cobra.Command{
	Use:   "log <summary>",
	Short: "Record what this session did",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSessionLog,
}

var sessionResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Show where the last session stopped",
	Args:  cobra.NoArgs,
	RunE:  runSessionResume,
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Reset the session record (the progress log is kept)",
	Args:  cobra.NoArgs,
	RunE:  runSessionClear,
}

var (
	sessionFocus     string
	sessionMarker    string
	sessionDecisions string
	sessionRecent    int
)

func init() {
	f := sessionLogCmd.Flags()
	f.StringVar(&sessionFocus, "focus", "", "what the next session should pick up")
	f.StringVar(&sessionMarker, "marker", "", "a context point worth remembering")
	f.StringVar(&sessionDecisions, "decisions", "", "semicolon-separated decisions to log")

	sessionResumeCmd.Flags().IntVar(&sessionRecent, "recent", 10, "progress entries to show")

	sessionCmd.AddCommand(sessionStatusCmd, sessionLogCmd, sessionResumeCmd, sessionClearCmd)
	rootCmd.AddCommand(sessionCmd)
}

func runSessionStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	st, err := a.session.State()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if st.LastInteraction == nil {
		fmt.Fprintln(out, "No session recorded yet.")
		return nil
	}
	printSessionState(out, st)
	return nil
}

func runSessionLog(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	st, err := a.session.Record(session.Update{
		Summary:   strings.Join(args, " "),
		Focus:     sessionFocus,
		Marker:    sessionMarker,
		Decisions: ticket.SplitList(sessionDecisions, ";"),
	})
	if err != nil {
		return err
	}
	okColor.Fprintf(cmd.OutOrStdout(), "Session %d recorded\n", st.Count)
	return nil
}

func runSessionResume(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	r, err := a.session.Resume(sessionRecent)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if r.Empty() {
		fmt.Fprintln(out, "Nothing to resume. Start with 'cto session log'.")
		return nil
	}
	if r.State.LastInteraction != nil {
		printSessionState(out, r.State)
	}
	if len(r.Markers) > 0 {
		fmt.Fprintln(out, "\nContext:")
		for _, m := range r.Markers {
			fmt.Fprintf(out, "  - %s\n", m.Text)
		}
	}
	if len(r.Recent) > 0 {
		fmt.Fprintln(out, "\nRecent:")
		for _, e := range r.Recent {
			printEntry(out, e)
		}
	}
	return nil
}

func runSessionClear(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.session.Clear(); err != nil {
		return err
	}
	okColor.Fprintln(cmd.OutOrStdout(), "Session cleared")
	return nil
}

func printSessionState(w io.Writer, st *session.State) {
	fmt.Fprintln(w, titleStyle.Render("Session"))
	fmt.Fprintf(w, "Last interaction: %s\n", st.LastInteraction.Local().Format(time.DateTime))
	fmt.Fprintf(w, "Sessions:         %d\n", st.Count)
	if st.Focus != "" {
		fmt.Fprintf(w, "Focus:            %s\n", st.Focus)
	}
}
