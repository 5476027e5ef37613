package report

import (
	"regexp"
	"strings"
)

// Meeseeks complexity ratings.
const (
	ComplexitySimple     = "simple"
	ComplexityMedium     = "medium"
	ComplexityTooComplex = "too_complex"
)

// EscalationMarker is what a one-shot agent prints when it refuses a task.
const EscalationMarker = "EXISTENCE IS PAIN"

const meeseeksTail = 300

// MeeseeksReport is the parsed result of a one-shot agent run.
type MeeseeksReport struct {
	Status       string
	FilesChanged []string
	Description  string
	Complexity   string
	// Escalated is true when the agent declared the task too complex.
	Escalated bool
}

var (
	meeseeksSection = regexp.MustCompile(`(?is)###\s*Meeseeks Report\s*\n(.*)`)
	complexityRe    = regexp.MustCompile(`\*\*Complexiteit\*\*:\s*(\w+)`)
)

// ParseMeeseeks extracts the "### Meeseeks Report" block. The escalation
// marker anywhere in the output wins over any report.
func ParseMeeseeks(output string) MeeseeksReport {
	r := MeeseeksReport{
		Status:       StatusCompleted,
		FilesChanged: []string{},
		Complexity:   ComplexitySimple,
	}

	if strings.Contains(strings.ToUpper(output), EscalationMarker) {
		r.Status = StatusTooComplex
		r.Complexity = ComplexityTooComplex
		r.Escalated = true
		r.Description = "Task too complex for a Meeseeks. A full agent needs to take it."
		return r
	}

	m := meeseeksSection.FindStringSubmatch(output)
	if m == nil {
		r.Description = Tail(output, meeseeksTail)
		return r
	}
	body := m[1]

	if sm := statusRe.FindStringSubmatch(body); sm != nil {
		r.Status = strings.ToLower(sm[1])
	}
	if raw, ok := firstMatch(body, filesNL); ok {
		r.FilesChanged = ParseFileList(raw)
	}
	if desc, ok := firstMatch(body, descNL); ok {
		r.Description = strings.TrimSpace(desc)
	}
	if cm := complexityRe.FindStringSubmatch(body); cm != nil {
		r.Complexity = strings.ToLower(cm[1])
	}
	return r
}
