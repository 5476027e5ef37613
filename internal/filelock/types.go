package filelock

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/cto/internal/logging"
	"github.com/Iron-Ham/cto/internal/mailbox"
	"github.com/Iron-Ham/cto/internal/team"
)

// Conflict is a requested path already held by another role.
type Conflict struct {
	Path string
	Role string
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s already reserved by %s", c.Path, c.Role)
}

// FormatConflicts renders conflicts one per line.
func FormatConflicts(conflicts []Conflict) string {
	lines := make([]string, len(conflicts))
	for i, c := range conflicts {
		lines[i] = c.String()
	}
	return strings.Join(lines, "\n")
}

// Teams is the part of team.Manager the registry needs. All writes go
// through Mutate so reservations and member updates never interleave.
type Teams interface {
	Get(id string) (*team.Team, error)
	Mutate(id string, fn func(t *team.Team) error) (*team.Team, error)
}

// Option configures a Registry.
type Option func(*Registry)

// WithMailbox announces successful reservations to the team.
func WithMailbox(mb *mailbox.Mailbox) Option {
	return func(r *Registry) {
		r.mb = mb
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}
