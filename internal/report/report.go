// Package report parses the structured summaries agents append to their
// output.
//
// Agents are asked to end with a "### Samenvatting" block (Dutch tags, the
// house format) but English tags are accepted too. Parsing never fails:
// output without a summary yields a completed report whose description is
// the tail of the output.
package report

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Statuses an agent may report.
const (
	StatusCompleted   = "completed"
	StatusNeedsReview = "needs_review"
	StatusBlocked     = "blocked"
	StatusTooComplex  = "too_complex"
)

// fallbackTail is how much trailing output becomes the description when no
// summary section is present.
const fallbackTail = 500

// Report is the parsed summary of one agent run.
type Report struct {
	Status        string
	FilesChanged  []string
	Description   string
	OpenQuestions string
	// Structured is false when no summary section was found.
	Structured bool
}

// HasOpenQuestions reports whether the agent left questions other than "none".
func (r Report) HasOpenQuestions() bool {
	q := strings.TrimSpace(r.OpenQuestions)
	return q != "" && !strings.EqualFold(q, "none")
}

var (
	summaryNL = regexp.MustCompile(`(?is)###\s*Samenvatting\s*\n(.*)`)
	summaryEN = regexp.MustCompile(`(?is)###\s*Summary\s*\n(.*)`)
	statusRe  = regexp.MustCompile(`\*\*Status\*\*:\s*(\w+)`)

	filesNL = field("Bestanden gewijzigd", false)
	filesEN = field("Files changed", true)
	descNL  = field("Beschrijving", false)
	descEN  = field("Description", true)
	openNL  = field("Open vragen", false)
	openEN  = field("Open questions", true)
)

// field matches "**tag**: value" where the value runs to the next bold tag
// on a new line or the end of the text.
func field(tag string, foldCase bool) *regexp.Regexp {
	flags := "(?s)"
	if foldCase {
		flags = "(?is)"
	}
	return regexp.MustCompile(flags + `\*\*` + regexp.QuoteMeta(tag) + `\*\*:\s*(.*?)(?:\n\*\*|\z)`)
}

// firstMatch returns the first capture of the first pattern that matches.
func firstMatch(s string, patterns ...*regexp.Regexp) (string, bool) {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(s); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// Parse extracts the summary from agent output.
func Parse(output string) Report {
	r := Report{Status: StatusCompleted, FilesChanged: []string{}}

	summary, ok := firstMatch(output, summaryNL, summaryEN)
	if !ok {
		r.Description = Tail(output, fallbackTail)
		return r
	}
	r.Structured = true

	if m := statusRe.FindStringSubmatch(summary); m != nil {
		r.Status = strings.ToLower(m[1])
	}
	if raw, ok := firstMatch(summary, filesNL, filesEN); ok {
		r.FilesChanged = ParseFileList(raw)
	}
	if desc, ok := firstMatch(summary, descNL, descEN); ok {
		r.Description = strings.TrimSpace(desc)
	}
	if q, ok := firstMatch(summary, openNL, openEN); ok {
		r.OpenQuestions = strings.TrimSpace(q)
	}
	return r
}

// ParseFileList turns a bulleted list of paths into clean paths. Lines that
// look like placeholders ("[list of files]") or contain neither "/" nor "."
// are skipped.
func ParseFileList(raw string) []string {
	files := []string{}
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "- ")
		line = strings.TrimSpace(strings.Trim(line, "`"))
		if line == "" || strings.HasPrefix(line, "[") {
			continue
		}
		if strings.Contains(line, "/") || strings.Contains(line, ".") {
			files = append(files, line)
		}
	}
	return files
}

// Tail returns the trimmed last n bytes of s, shortened as needed so it
// starts on a rune boundary.
func Tail(s string, n int) string {
	if n < 0 {
		n = 0
	}
	if len(s) > n {
		i := len(s) - n
		for i < len(s) && !utf8.RuneStart(s[i]) {
			i++
		}
		s = s[i:]
	}
	return strings.TrimSpace(s)
}

// Truncate returns at most the first n bytes of s without splitting a
// rune.
func Truncate(s string, n int) string {
	if n < 0 {
		n = 0
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
