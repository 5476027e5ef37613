package mailbox

import (
	"fmt"
	"strings"
	"time"

	"github.com/Iron-Ham/cto/internal/report"
)

// promptBodyLimit bounds each message body shown in a prompt.
const promptBodyLimit = 80

var typeMarkers = map[MessageType]string{
	MessageInfo:     "[info]",
	MessageQuestion: "[question]",
	MessageDecision: "[decision]",
	MessageBlocked:  "[blocked]",
}

// FormatForPrompt renders messages as the "Recent Messages" block of a
// team member's prompt, one line per message with the body truncated.
//
// Returns an empty string if there are no messages.
func FormatForPrompt(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("**Recent Messages**:")
	for _, msg := range messages {
		marker, ok := typeMarkers[msg.Type]
		if !ok {
			marker = "[" + string(msg.Type) + "]"
		}
		to := msg.To
		if !msg.IsBroadcast() {
			to = "@" + to
		}
		b.WriteString(fmt.Sprintf("\n  - %s @%s -> %s: %s", marker, msg.From, to, truncate(msg.Body, promptBodyLimit)))
	}
	return b.String()
}

// FilterOptions controls which messages are kept by Filter.
type FilterOptions struct {
	Types       []MessageType // Only include these types (empty = all)
	Since       time.Time     // Only messages after this time (zero = all)
	From        string        // Only messages from this sender (empty = all)
	MaxMessages int           // Maximum messages to include (0 = unlimited)
}

// Filter applies opts to messages. Filters are applied in order: type,
// since, from, then max messages (keeping the most recent).
func Filter(messages []Message, opts FilterOptions) []Message {
	var result []Message

	typeSet := make(map[MessageType]bool, len(opts.Types))
	for _, t := range opts.Types {
		typeSet[t] = true
	}

	for _, msg := range messages {
		if len(typeSet) > 0 && !typeSet[msg.Type] {
			continue
		}
		if !opts.Since.IsZero() && !msg.Timestamp.After(opts.Since) {
			continue
		}
		if opts.From != "" && msg.From != opts.From {
			continue
		}
		result = append(result, msg)
	}

	if opts.MaxMessages > 0 && len(result) > opts.MaxMessages {
		result = result[len(result)-opts.MaxMessages:]
	}

	return result
}

func truncate(s string, n int) string {
	return report.Truncate(s, n)
}
