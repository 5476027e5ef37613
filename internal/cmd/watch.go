package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/cto/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow ticket changes as they happen",
	Long: `Follow ticket changes as they happen, including those made by a sprint
running in another terminal. Press Ctrl+C to stop. Needs the file storage
backend.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	if a.cfg.Storage.Backend != "file" {
		return fmt.Errorf("watch needs the file storage backend, not %q", a.cfg.Storage.Backend)
	}

	w, err := watch.New(filepath.Join(a.store.Dir(), "tickets"), a.store, watch.WithLogger(a.logger))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var mu sync.Mutex
	w.SetChangeCallback(func(c watch.Change) {
		mu.Lock()
		defer mu.Unlock()
		printChange(out, c)
	})
	w.Start()
	defer w.Stop()

	infoColor.Fprintln(out, "Watching tickets (Ctrl+C to stop)...")
	<-cmd.Context().Done()
	return nil
}

func printChange(w io.Writer, c watch.Change) {
	switch c.Kind {
	case watch.KindCreated:
		okColor.Fprintf(w, "+ %s %s [%s]\n", c.TicketID, c.Ticket.Title, c.Ticket.Status)
	case watch.KindRemoved:
		failColor.Fprintf(w, "- %s removed\n", c.TicketID)
	default:
		if c.StatusChanged() {
			fmt.Fprintf(w, "~ %s %s -> %s %s\n", c.TicketID,
				c.Previous, statusStyle(c.Ticket.Status).Render(string(c.Ticket.Status)), agentLabel(c.Ticket.AssignedAgent))
			return
		}
		fmt.Fprintf(w, "~ %s updated\n", c.TicketID)
	}
}
