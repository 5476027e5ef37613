package prompt

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/cto/internal/report"
)

// MeeseeksBuilder builds the prompt for a one-shot Meeseeks task.
type MeeseeksBuilder struct{}

// NewMeeseeksBuilder creates a new MeeseeksBuilder.
func NewMeeseeksBuilder() *MeeseeksBuilder {
	return &MeeseeksBuilder{}
}

// Build generates the Meeseeks prompt.
func (b *MeeseeksBuilder) Build(ctx *Context) (string, error) {
	if ctx == nil {
		return "", ErrNilContext
	}
	if ctx.Kind != KindMeeseeks {
		return "", fmt.Errorf("%w: expected %s, got %s", ErrInvalidKind, KindMeeseeks, ctx.Kind)
	}
	if strings.TrimSpace(ctx.Task) == "" {
		return "", ErrEmptyTask
	}

	files := "(any relevant files)"
	if len(ctx.Files) > 0 {
		files = "- " + strings.Join(ctx.Files, "\n- ")
	}
	return fmt.Sprintf(MeeseeksPromptTemplate, ctx.Task, files, ctx.Root, report.EscalationMarker), nil
}

// MeeseeksPromptTemplate takes the task, target files, working directory and
// escalation marker.
const MeeseeksPromptTemplate = `I'm Mr. Meeseeks, look at me! I exist for ONE purpose: to complete this task and then disappear.

## My ONE Task
%s

## Target Files
%s

## Project Context
- Working directory: %s

## Meeseeks Rules
1. Complete THIS SINGLE TASK and nothing else
2. Actually modify the files, talking about it does not count
3. Be fast
4. Follow existing code conventions
5. If this task is too complex (requires architecture, multiple features, or deep planning):
   STOP IMMEDIATELY and output:
   **%s!** This task is too complex for a Meeseeks! Assign it to a Morty!
6. No tests, no docs, no extras, just the ONE thing
7. Execute all tasks DIRECTLY, don't ask for permission
8. End with the summary below

## Report Back
End your work with EXACTLY this format:

### Meeseeks Report
**Status**: completed|too_complex
**Bestanden gewijzigd**: [list of file paths]
**Beschrijving**: [what I did, keep it short]
**Complexiteit**: simple|medium|too_complex
`
