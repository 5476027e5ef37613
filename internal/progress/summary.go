package progress

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Iron-Ham/cto/internal/report"
	"github.com/Iron-Ham/cto/internal/ticket"
)

const (
	summaryRecent = 10
	reportRecent  = 20
)

// Summary aggregates log entries and the ticket board.
type Summary struct {
	Entries      int
	Tickets      int
	Done         int
	StatusCounts map[ticket.Status]int
	ActionCounts map[string]int
	AgentCounts  map[string]int
	Recent       []Entry
}

// Percent returns the share of tickets that are done, 0 to 100.
func (s Summary) Percent() float64 {
	if s.Tickets == 0 {
		return 0
	}
	return float64(s.Done) / float64(s.Tickets) * 100
}

// StatusCounts counts tickets by status.
func StatusCounts(tickets []*ticket.Ticket) map[ticket.Status]int {
	counts := make(map[ticket.Status]int)
	for _, t := range tickets {
		counts[t.Status]++
	}
	return counts
}

// Summarize builds a Summary; Recent holds the last ten entries.
func Summarize(entries []Entry, tickets []*ticket.Ticket) Summary {
	s := Summary{
		Entries:      len(entries),
		Tickets:      len(tickets),
		StatusCounts: StatusCounts(tickets),
		ActionCounts: make(map[string]int),
		AgentCounts:  make(map[string]int),
		Recent:       tail(entries, summaryRecent),
	}
	s.Done = s.StatusCounts[ticket.StatusDone]
	for _, e := range entries {
		s.ActionCounts[orUnknown(e.Action)]++
		s.AgentCounts[orUnknown(e.Agent)]++
	}
	return s
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func tail(entries []Entry, n int) []Entry {
	if len(entries) > n {
		return entries[len(entries)-n:]
	}
	return entries
}

// Day groups a timeline's entries by UTC date.
type Day struct {
	Date    string
	Entries []Entry
}

// Timeline groups entries by day, keeping their order.
func Timeline(entries []Entry) []Day {
	var days []Day
	for _, e := range entries {
		date := e.Timestamp.UTC().Format(dateLayout)
		if len(days) == 0 || days[len(days)-1].Date != date {
			days = append(days, Day{Date: date})
		}
		days[len(days)-1].Entries = append(days[len(days)-1].Entries, e)
	}
	return days
}

// TicketLabel renders an entry's ticket id, or a dash when it has none.
func TicketLabel(e Entry) string {
	if e.TicketID == "" {
		return "-"
	}
	return e.TicketID
}

// Truncate shortens s to at most n bytes without splitting a rune.
func Truncate(s string, n int) string {
	return report.Truncate(s, n)
}

// Report renders the markdown progress report.
func Report(entries []Entry, tickets []*ticket.Ticket, now time.Time) string {
	s := Summarize(entries, tickets)

	var sb strings.Builder
	sb.WriteString("# Project Progress Report\n\n")
	fmt.Fprintf(&sb, "**Generated**: %s UTC\n\n", now.UTC().Format(time.DateTime))

	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	fmt.Fprintf(&sb, "| Total tickets | %d |\n", s.Tickets)
	fmt.Fprintf(&sb, "| Completed | %d (%.0f%%) |\n", s.Done, s.Percent())
	fmt.Fprintf(&sb, "| In progress | %d |\n", s.StatusCounts[ticket.StatusInProgress])
	fmt.Fprintf(&sb, "| Blocked | %d |\n", s.StatusCounts[ticket.StatusBlocked])
	fmt.Fprintf(&sb, "| Log entries | %d |\n\n", s.Entries)

	sb.WriteString("## Ticket Board\n\n")
	for _, status := range ticket.Statuses {
		var items []*ticket.Ticket
		for _, t := range tickets {
			if t.Status == status {
				items = append(items, t)
			}
		}
		fmt.Fprintf(&sb, "### %s (%d)\n", strings.ToUpper(strings.ReplaceAll(string(status), "_", " ")), len(items))
		if len(items) == 0 {
			sb.WriteString("- (none)\n")
		}
		for _, t := range items {
			line := fmt.Sprintf("- **%s** %s", t.ID, t.Title)
			if t.AssignedAgent != "" {
				line += " @" + t.AssignedAgent
			}
			sb.WriteString(line + "\n")
		}
		sb.WriteString("\n")
	}

	var blocked []*ticket.Ticket
	for _, t := range tickets {
		if t.Status == ticket.StatusBlocked {
			blocked = append(blocked, t)
		}
	}
	if len(blocked) > 0 {
		sb.WriteString("## Blocked Items\n\n")
		for _, t := range blocked {
			note := t.ReviewNotes
			if note == "" {
				note = "No reason given"
			}
			fmt.Fprintf(&sb, "- **%s** %s: %s\n", t.ID, t.Title, note)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Recent Activity\n\n")
	sb.WriteString("| Time | Action | Ticket | Agent | Message |\n")
	sb.WriteString("|------|--------|--------|-------|---------|\n")
	for _, e := range tail(entries, reportRecent) {
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s |\n",
			e.Timestamp.UTC().Format(time.DateTime), e.Action, TicketLabel(e), orUnknown(e.Agent), Truncate(e.Message, 50))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// SaveReport writes a report to report-<YYYYmmdd-HHMMSS>.md in the log
// directory and returns its path.
func (l *Log) SaveReport(text string) (string, error) {
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return "", fmt.Errorf("create log directory: %w", err)
	}
	path := filepath.Join(l.dir, "report-"+l.now().UTC().Format("20060102-150405")+".md")
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
