package filelock

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/Iron-Ham/cto/internal/errors"
	"github.com/Iron-Ham/cto/internal/logging"
	"github.com/Iron-Ham/cto/internal/mailbox"
	"github.com/Iron-Ham/cto/internal/team"
)

// Registry manages advisory file reservations inside a team. A path is held
// by at most one role at a time; the data lives on the team record.
type Registry struct {
	teams  Teams
	mb     *mailbox.Mailbox
	logger *logging.Logger
}

// NewRegistry creates a Registry over the given teams.
func NewRegistry(teams Teams, opts ...Option) *Registry {
	r := &Registry{
		teams:  teams,
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// normalize trims, drops empties and dedupes paths, keeping request order.
func normalize(paths []string) []string {
	var out []string
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p != "" && !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}

// Reserve gives role the requested paths. If any path is held by another
// role nothing is reserved and every conflict is returned. Paths the role
// already holds are kept once.
func (r *Registry) Reserve(teamID, role string, paths []string) ([]Conflict, error) {
	paths = normalize(paths)
	if role == "" {
		return nil, errors.NewValidationError("role is required").WithField("role")
	}
	if len(paths) == 0 {
		return nil, nil
	}

	var conflicts []Conflict
	_, err := r.teams.Mutate(teamID, func(t *team.Team) error {
		conflicts = findConflicts(t.FilesReserved, role, paths)
		if len(conflicts) > 0 {
			return errors.ErrReservationConflict
		}
		held := append(t.FilesReserved[role], paths...)
		sort.Strings(held)
		t.FilesReserved[role] = slices.Compact(held)
		return nil
	})
	if len(conflicts) > 0 {
		r.logger.Info("reservation refused",
			"team_id", teamID, "role", role, "conflicts", len(conflicts))
		return conflicts, nil
	}
	if err != nil {
		return nil, err
	}

	r.logger.Debug("files reserved", "team_id", teamID, "role", role, "paths", paths)
	r.announce(teamID, role, "reserved "+strings.Join(paths, ", "))
	return nil, nil
}

// findConflicts lists requested paths held by roles other than role, in
// request order.
func findConflicts(reserved map[string][]string, role string, paths []string) []Conflict {
	owners := make([]string, 0, len(reserved))
	for other := range reserved {
		if other != role {
			owners = append(owners, other)
		}
	}
	sort.Strings(owners)

	var conflicts []Conflict
	for _, p := range paths {
		for _, other := range owners {
			if slices.Contains(reserved[other], p) {
				conflicts = append(conflicts, Conflict{Path: p, Role: other})
			}
		}
	}
	return conflicts
}

// Release drops every reservation held by role. Releasing a role that holds
// nothing is a no-op.
func (r *Registry) Release(teamID, role string) error {
	released := false
	_, err := r.teams.Mutate(teamID, func(t *team.Team) error {
		if _, ok := t.FilesReserved[role]; ok {
			delete(t.FilesReserved, role)
			released = true
		}
		return nil
	})
	if err != nil {
		return err
	}
	if released {
		r.logger.Debug("files released", "team_id", teamID, "role", role)
		r.announce(teamID, role, "released all file reservations")
	}
	return nil
}

// Reservations returns a copy of the team's reservations by role.
func (r *Registry) Reservations(teamID string) (map[string][]string, error) {
	t, err := r.teams.Get(teamID)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(t.FilesReserved))
	for role, paths := range t.FilesReserved {
		out[role] = slices.Clone(paths)
	}
	return out, nil
}

// Owner returns the role holding path, if any.
func (r *Registry) Owner(teamID, path string) (string, bool, error) {
	t, err := r.teams.Get(teamID)
	if err != nil {
		return "", false, err
	}
	for role, paths := range t.FilesReserved {
		if slices.Contains(paths, path) {
			return role, true, nil
		}
	}
	return "", false, nil
}

func (r *Registry) announce(teamID, role, body string) {
	if r.mb == nil {
		return
	}
	if _, err := r.mb.Send(teamID, role, mailbox.Broadcast, body, mailbox.MessageInfo); err != nil {
		r.logger.Warn("failed to announce reservation change",
			"team_id", teamID, "role", role, "error", fmt.Sprint(err))
	}
}
