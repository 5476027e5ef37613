package report

import (
	"regexp"
	"strings"
)

// Message is a note one team member addressed to another (or to everyone).
type Message struct {
	To   string
	Body string
}

// TeamUpdates is what a team member asked to share with the team.
type TeamUpdates struct {
	Messages  []Message
	Decisions []string
	BlockedOn []string
}

// IsBlocked reports whether the member declared it is waiting on someone.
func (u TeamUpdates) IsBlocked() bool {
	return len(u.BlockedOn) > 0
}

var (
	teamSection  = regexp.MustCompile(`(?is)###\s*Team Updates\s*\n(.*?)(?:\n###|\z)`)
	messagesList = regexp.MustCompile(`(?s)\*\*Messages to team\*\*:\s*\n(.*?)(?:\n\*\*|\z)`)
	decisionList = regexp.MustCompile(`(?s)\*\*Decisions made\*\*:\s*\n(.*?)(?:\n\*\*|\z)`)
	blockedList  = regexp.MustCompile(`(?s)\*\*Blocked on\*\*:\s*\n(.*?)(?:\n\*\*|\z)`)
	mentionLine  = regexp.MustCompile(`^@(\S+):\s*(.+)`)
)

// bulletLines splits a list block into non-empty lines with bullets removed.
func bulletLines(block string) []string {
	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(block), "\n") {
		line = strings.TrimLeft(strings.TrimSpace(line), "- ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// ParseTeamUpdates extracts the "### Team Updates" section. Output without
// the section yields empty updates.
func ParseTeamUpdates(output string) TeamUpdates {
	var u TeamUpdates
	m := teamSection.FindStringSubmatch(output)
	if m == nil {
		return u
	}
	section := m[1]

	if mm := messagesList.FindStringSubmatch(section); mm != nil {
		for _, line := range bulletLines(mm[1]) {
			if parts := mentionLine.FindStringSubmatch(line); parts != nil {
				u.Messages = append(u.Messages, Message{To: parts[1], Body: strings.TrimSpace(parts[2])})
			}
		}
	}
	if mm := decisionList.FindStringSubmatch(section); mm != nil {
		u.Decisions = bulletLines(mm[1])
	}
	if mm := blockedList.FindStringSubmatch(section); mm != nil {
		u.BlockedOn = bulletLines(mm[1])
	}
	return u
}
