package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Iron-Ham/cto/internal/config"
	"github.com/Iron-Ham/cto/internal/contextprop"
	"github.com/Iron-Ham/cto/internal/errors"
	"github.com/Iron-Ham/cto/internal/mailbox"
	"github.com/Iron-Ham/cto/internal/session"
	"github.com/Iron-Ham/cto/internal/team"
	"github.com/Iron-Ham/cto/internal/ticket"
)

// Store is the typed record store for one project. It implements the Store
// interfaces of the ticket, team, mailbox, contextprop and session packages.
type Store struct {
	dir     string
	backend Backend
}

// New wraps a backend. dir is the .cto directory, used for files that live
// outside the backend (decisions).
func New(dir string, backend Backend) *Store {
	return &Store{dir: dir, backend: backend}
}

// Open opens the store for the project rooted at root.
func Open(root string, cfg config.StorageConfig) (*Store, error) {
	dir := filepath.Join(root, config.ProjectDirName)
	backend, err := NewBackend(dir, cfg)
	if err != nil {
		return nil, err
	}
	return New(dir, backend), nil
}

// Dir returns the .cto directory.
func (s *Store) Dir() string {
	return s.dir
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) get(c Collection, scope, id string, v any, notFound error) error {
	data, err := s.backend.Get(c, scope, id)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s %s: %w", c, id, err)
	}
	return nil
}

func (s *Store) put(c Collection, scope, id string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", c, id, err)
	}
	return s.backend.Put(c, scope, id, data)
}

// list decodes every record of a scope.
func list[T any](s *Store, c Collection, scope string) ([]T, error) {
	docs, err := s.backend.List(c, scope)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for _, data := range docs {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", c, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// NextTicketNumber allocates a ticket number.
func (s *Store) NextTicketNumber() (int, error) {
	return s.backend.Next(TicketCounter)
}

// SaveTicket writes a ticket record.
func (s *Store) SaveTicket(t *ticket.Ticket) error {
	return s.put(Tickets, "", t.ID, t)
}

// LoadTicket reads a ticket record.
func (s *Store) LoadTicket(id string) (*ticket.Ticket, error) {
	var t ticket.Ticket
	if err := s.get(Tickets, "", id, &t, errors.ErrTicketNotFound); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTickets reads every ticket record.
func (s *Store) ListTickets() ([]*ticket.Ticket, error) {
	return list[*ticket.Ticket](s, Tickets, "")
}

// NextTeamNumber allocates a team number.
func (s *Store) NextTeamNumber() (int, error) {
	return s.backend.Next(TeamCounter)
}

// SaveTeam writes a team record.
func (s *Store) SaveTeam(t *team.Team) error {
	return s.put(Teams, "", t.ID, t)
}

// LoadTeam reads a team record.
func (s *Store) LoadTeam(id string) (*team.Team, error) {
	var t team.Team
	if err := s.get(Teams, "", id, &t, errors.ErrTeamNotFound); err != nil {
		return nil, err
	}
	if t.FilesReserved == nil {
		t.FilesReserved = make(map[string][]string)
	}
	return &t, nil
}

// ListTeams reads every team record.
func (s *Store) ListTeams() ([]*team.Team, error) {
	teams, err := list[*team.Team](s, Teams, "")
	if err != nil {
		return nil, err
	}
	for _, t := range teams {
		if t.FilesReserved == nil {
			t.FilesReserved = make(map[string][]string)
		}
	}
	return teams, nil
}

// ListMessages reads a team's messages ordered by sequence number.
func (s *Store) ListMessages(teamID string) ([]mailbox.Message, error) {
	msgs, err := list[mailbox.Message](s, Messages, teamID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Seq() < msgs[j].Seq() })
	return msgs, nil
}

// SaveMessage writes a message, replacing any previous version.
func (s *Store) SaveMessage(msg mailbox.Message) error {
	return s.put(Messages, msg.TeamID, msg.ID, msg)
}

// LoadContext reads a team's shared context.
func (s *Store) LoadContext(teamID string) (*contextprop.SharedContext, error) {
	var ctx contextprop.SharedContext
	if err := s.get(Contexts, "", teamID, &ctx, errors.ErrTeamNotFound); err != nil {
		return nil, err
	}
	return &ctx, nil
}

// SaveContext writes a team's shared context.
func (s *Store) SaveContext(ctx *contextprop.SharedContext) error {
	return s.put(Contexts, "", ctx.TeamID, ctx)
}

// sessionID names the single session record.
const sessionID = "state"

// LoadSession reads the session record, or a zero one when none is saved.
func (s *Store) LoadSession() (*session.State, error) {
	var st session.State
	err := s.get(Sessions, "", sessionID, &st, ErrNotFound)
	if errors.Is(err, ErrNotFound) {
		return &session.State{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// SaveSession writes the session record.
func (s *Store) SaveSession(st *session.State) error {
	return s.put(Sessions, "", sessionID, st)
}

// Decision is an architecture decision record.
type Decision struct {
	Name    string
	Content string
}

// DecisionsDir returns the directory holding decision records.
func (s *Store) DecisionsDir() string {
	return filepath.Join(s.dir, "decisions")
}

// Decisions reads every markdown decision record, ordered by file name. A
// missing directory yields none.
func (s *Store) Decisions() ([]Decision, error) {
	dir := s.DecisionsDir()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read decisions: %w", err)
	}

	var out []Decision
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read decision %s: %w", e.Name(), err)
		}
		out = append(out, Decision{
			Name:    strings.TrimSuffix(e.Name(), ".md"),
			Content: string(data),
		})
	}
	return out, nil
}
