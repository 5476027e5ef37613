// Package watch reports ticket changes made on disk by any process, so a
// terminal can follow a sprint running elsewhere.
package watch

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/cto/internal/errors"
	"github.com/Iron-Ham/cto/internal/logging"
	"github.com/Iron-Ham/cto/internal/ticket"
)

// DefaultDebounce collapses the bursts of events one atomic write produces.
const DefaultDebounce = 50 * time.Millisecond

const ticketSuffix = ".json"

// Kind classifies a Change.
type Kind string

const (
	KindCreated Kind = "created"
	KindUpdated Kind = "updated"
	KindRemoved Kind = "removed"
)

// Change is one observed ticket change.
type Change struct {
	Kind     Kind
	TicketID string
	// Ticket is the current record, nil when removed.
	Ticket *ticket.Ticket
	// Previous is the status before the change, empty when created.
	Previous ticket.Status
}

// StatusChanged reports whether the change moved the ticket to a new status.
func (c Change) StatusChanged() bool {
	return c.Ticket != nil && c.Previous != "" && c.Previous != c.Ticket.Status
}

// Loader reads tickets by id.
type Loader interface {
	LoadTicket(id string) (*ticket.Ticket, error)
	ListTickets() ([]*ticket.Ticket, error)
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long the watcher waits for events to settle.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// Watcher follows the ticket directory of a file-backed store.
type Watcher struct {
	fs       *fsnotify.Watcher
	dir      string
	loader   Loader
	debounce time.Duration
	logger   *logging.Logger

	mu       sync.Mutex
	known    map[string]ticket.Status
	onChange func(Change)

	started  atomic.Bool
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a Watcher on dir, the directory holding <ID>.json ticket
// files. The current tickets are the baseline; only later changes are
// reported.
func New(dir string, loader Loader, opts ...Option) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrap(err, "ticket directory")
	}
	if !info.IsDir() {
		return nil, errors.New("ticket path is not a directory: " + dir)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, err
	}

	w := &Watcher{
		fs:       fw,
		dir:      dir,
		loader:   loader,
		debounce: DefaultDebounce,
		logger:   logging.NopLogger(),
		known:    make(map[string]ticket.Status),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	all, err := loader.ListTickets()
	if err != nil {
		_ = fw.Close()
		return nil, err
	}
	for _, t := range all {
		w.known[t.ID] = t.Status
	}
	return w, nil
}

// SetChangeCallback sets the function called for every change, from the
// watcher goroutine.
func (w *Watcher) SetChangeCallback(cb func(Change)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = cb
}

// Start begins watching.
func (w *Watcher) Start() {
	if w.started.CompareAndSwap(false, true) {
		go w.loop()
	}
}

// Stop stops the watcher and waits for it to exit. It is safe to call more
// than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.fs.Close()
	})
	if w.started.Load() {
		<-w.done
	}
}

// ticketID maps a file name to a ticket id, skipping temp files.
func ticketID(path string) (string, bool) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, ticketSuffix) || strings.HasPrefix(base, ".") {
		return "", false
	}
	return strings.TrimSuffix(base, ticketSuffix), true
}

func (w *Watcher) loop() {
	defer close(w.done)

	timer := time.NewTimer(0)
	<-timer.C

	pending := make(map[string]struct{})
	for {
		select {
		case <-w.stopCh:
			timer.Stop()
			return

		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			id, ok := ticketID(ev.Name)
			if !ok {
				continue
			}
			pending[id] = struct{}{}
			timer.Reset(w.debounce)

		case <-timer.C:
			ids := make([]string, 0, len(pending))
			for id := range pending {
				ids = append(ids, id)
			}
			pending = make(map[string]struct{})
			sort.Strings(ids)
			for _, id := range ids {
				w.check(id)
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("ticket watcher error", "error", err)
		}
	}
}

// check reloads one ticket and reports it if it changed.
func (w *Watcher) check(id string) {
	t, err := w.loader.LoadTicket(id)

	w.mu.Lock()
	prev, seen := w.known[id]
	var change *Change
	switch {
	case errors.Is(err, errors.ErrTicketNotFound):
		if seen {
			delete(w.known, id)
			change = &Change{Kind: KindRemoved, TicketID: id, Previous: prev}
		}
	case err != nil:
		w.logger.Warn("failed to reload ticket", "ticket_id", id, "error", err)
	case !seen:
		w.known[id] = t.Status
		change = &Change{Kind: KindCreated, TicketID: id, Ticket: t}
	default:
		w.known[id] = t.Status
		change = &Change{Kind: KindUpdated, TicketID: id, Ticket: t, Previous: prev}
	}
	cb := w.onChange
	w.mu.Unlock()

	if change != nil && cb != nil {
		cb(*change)
	}
}
