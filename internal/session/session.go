// Package session remembers where the operator left off in a project.
//
// A small state record (last interaction, current focus, context markers)
// lives in the project store; the narrative of each session is appended to
// the progress log as notes and decisions. Resume combines the two into a
// "where were we" view.
package session

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/cto/internal/errors"
	"github.com/Iron-Ham/cto/internal/logging"
	"github.com/Iron-Ham/cto/internal/progress"
)

const (
	// MaxMarkers bounds the context markers kept in the state record.
	MaxMarkers = 20
	// ResumeMarkers is how many markers Resume shows.
	ResumeMarkers = 5
	// Agent is the progress log author of session entries.
	Agent = "session"
)

// Marker is a context point worth remembering across sessions.
type Marker struct {
	Text string    `json:"marker"`
	At   time.Time `json:"timestamp"`
}

// State is the persisted session record.
type State struct {
	LastInteraction *time.Time `json:"last_interaction"`
	Focus           string     `json:"current_focus"`
	Markers         []Marker   `json:"context_markers"`
	Count           int        `json:"conversation_count"`
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	c := *s
	if s.LastInteraction != nil {
		at := *s.LastInteraction
		c.LastInteraction = &at
	}
	c.Markers = slices.Clone(s.Markers)
	return &c
}

// RecentMarkers returns the last n markers, oldest first.
func (s *State) RecentMarkers(n int) []Marker {
	if n <= 0 || len(s.Markers) <= n {
		return s.Markers
	}
	return s.Markers[len(s.Markers)-n:]
}

// Store persists the state record. LoadSession returns a zero State when
// none has been saved.
type Store interface {
	LoadSession() (*State, error)
	SaveSession(s *State) error
}

// Update describes one session log entry.
type Update struct {
	Summary   string
	Focus     string
	Marker    string
	Decisions []string
}

// Tracker records and recalls session state.
type Tracker struct {
	store  Store
	log    *progress.Log
	logger *logging.Logger
	now    func() time.Time
	mu     sync.Mutex
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a Tracker over store, writing narrative entries to log.
func NewTracker(store Store, log *progress.Log, opts ...Option) *Tracker {
	t := &Tracker{
		store:  store,
		log:    log,
		logger: logging.NopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// State returns the current state record.
func (t *Tracker) State() (*State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.LoadSession()
}

// Record stamps the session, updates focus and markers, and appends the
// summary and any decisions to the progress log.
func (t *Tracker) Record(u Update) (*State, error) {
	summary := strings.TrimSpace(u.Summary)
	if summary == "" {
		return nil, errors.NewValidationError("session summary is required").WithField("summary")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.store.LoadSession()
	if err != nil {
		return nil, err
	}
	now := t.now().UTC()
	s.LastInteraction = &now
	s.Count++
	if focus := strings.TrimSpace(u.Focus); focus != "" {
		s.Focus = focus
	}
	if marker := strings.TrimSpace(u.Marker); marker != "" {
		s.Markers = append(s.Markers, Marker{Text: marker, At: now})
		if len(s.Markers) > MaxMarkers {
			s.Markers = slices.Clone(s.Markers[len(s.Markers)-MaxMarkers:])
		}
	}
	if err := t.store.SaveSession(s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	msg := summary
	if s.Focus != "" {
		msg = fmt.Sprintf("%s (focus: %s)", summary, s.Focus)
	}
	if err := t.log.Append(progress.Entry{Timestamp: now, Agent: Agent, Action: progress.ActionNote, Message: msg}); err != nil {
		return nil, err
	}
	for _, d := range u.Decisions {
		if d = strings.TrimSpace(d); d == "" {
			continue
		}
		if err := t.log.Append(progress.Entry{Timestamp: now, Agent: Agent, Action: progress.ActionDecision, Message: d}); err != nil {
			return nil, err
		}
	}
	t.logger.Debug("session recorded", "count", s.Count, "focus", s.Focus)
	return s.Clone(), nil
}

// Resume is the "where were we" view of a project.
type Resume struct {
	State   *State
	Markers []Marker
	// Recent holds the latest progress entries, oldest first.
	Recent []progress.Entry
}

// Empty reports whether there is nothing to resume from.
func (r *Resume) Empty() bool {
	return r.State.LastInteraction == nil && len(r.Recent) == 0
}

// Resume gathers the state record and the last n progress entries.
func (t *Tracker) Resume(n int) (*Resume, error) {
	s, err := t.State()
	if err != nil {
		return nil, err
	}
	all, err := t.log.All()
	if err != nil {
		return nil, err
	}
	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return &Resume{State: s, Markers: s.RecentMarkers(ResumeMarkers), Recent: all}, nil
}

// Clear resets the state record. The progress log keeps its history.
func (t *Tracker) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.store.SaveSession(&State{}); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	t.logger.Info("session cleared")
	return nil
}
