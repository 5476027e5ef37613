package contextprop

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	promptDecisions    = 5
	promptInterfaces   = 3
	promptInterfaceLen = 100
)

// FormatForPrompt renders the most recent decisions and interfaces for a
// member prompt. Returns an empty string if there is nothing to show.
func FormatForPrompt(ctx *SharedContext) string {
	if ctx == nil {
		return ""
	}

	var sections []string
	if len(ctx.Decisions) > 0 {
		var b strings.Builder
		b.WriteString("**Team Decisions**:")
		for _, d := range lastN(ctx.Decisions, promptDecisions) {
			b.WriteString(fmt.Sprintf("\n  - [%s]: %s", d.Author, d.Decision))
		}
		sections = append(sections, b.String())
	}
	if len(ctx.Interfaces) > 0 {
		var b strings.Builder
		b.WriteString("**Defined Interfaces**:")
		for _, i := range lastN(ctx.Interfaces, promptInterfaces) {
			data, err := json.Marshal(i.Interface)
			if err != nil {
				data = []byte(fmt.Sprint(i.Interface))
			}
			s := string(data)
			if len(s) > promptInterfaceLen {
				s = s[:promptInterfaceLen]
			}
			b.WriteString(fmt.Sprintf("\n  - [%s]: %s", i.Author, s))
		}
		sections = append(sections, b.String())
	}
	return strings.Join(sections, "\n\n")
}

func lastN[T any](items []T, n int) []T {
	if len(items) > n {
		return items[len(items)-n:]
	}
	return items
}
