package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Iron-Ham/cto/internal/config"
	"github.com/Iron-Ham/cto/internal/store"
	"github.com/Iron-Ham/cto/internal/ticket"
)

func setup(t *testing.T) (*store.Store, *ticket.Service, string) {
	t.Helper()
	st, err := store.Open(t.TempDir(), config.StorageConfig{Backend: "file"})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	dir := filepath.Join(st.Dir(), "tickets")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	return st, ticket.NewService(st, "CTO"), dir
}

func waitFor(t *testing.T, ch <-chan Change, match func(Change) bool) Change {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-ch:
			if match(c) {
				return c
			}
		case <-deadline:
			t.Fatal("timed out waiting for change")
			return Change{}
		}
	}
}

func TestTicketID(t *testing.T) {
	tests := []struct {
		path   string
		want   string
		wantOK bool
	}{
		{"/x/tickets/CTO-001.json", "CTO-001", true},
		{"/x/tickets/CTO-001.json.123456.tmp", "", false},
		{"/x/tickets/.hidden.json", "", false},
		{"/x/tickets/notes.txt", "", false},
	}
	for _, tt := range tests {
		got, ok := ticketID(tt.path)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ticketID(%q) = %q, %v, want %q, %v", tt.path, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestWatcher_ReportsChanges(t *testing.T) {
	st, svc, dir := setup(t)
	existing, err := svc.Create(ticket.CreateParams{Title: "Existing", Status: ticket.StatusTodo})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	w, err := New(dir, st, WithDebounce(10*time.Millisecond))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	changes := make(chan Change, 16)
	w.SetChangeCallback(func(c Change) { changes <- c })
	w.Start()
	defer w.Stop()

	created, err := svc.Create(ticket.CreateParams{Title: "Fresh"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	c := waitFor(t, changes, func(c Change) bool { return c.TicketID == created.ID })
	if c.Kind != KindCreated || c.Ticket.Title != "Fresh" {
		t.Errorf("change = %+v, want created Fresh", c)
	}

	if _, err := svc.Assign(existing.ID, "backend"); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	c = waitFor(t, changes, func(c Change) bool { return c.TicketID == existing.ID })
	if c.Kind != KindUpdated || !c.StatusChanged() {
		t.Errorf("change = %+v, want a status update", c)
	}
	if c.Previous != ticket.StatusTodo || c.Ticket.Status != ticket.StatusInProgress {
		t.Errorf("status %s -> %s, want todo -> in_progress", c.Previous, c.Ticket.Status)
	}

	if err := os.Remove(filepath.Join(dir, existing.ID+".json")); err != nil {
		t.Fatal(err)
	}
	c = waitFor(t, changes, func(c Change) bool { return c.Kind == KindRemoved })
	if c.TicketID != existing.ID || c.Previous != ticket.StatusInProgress {
		t.Errorf("removed change = %+v", c)
	}
}

func TestWatcher_MissingDir(t *testing.T) {
	st, _, _ := setup(t)
	if _, err := New(filepath.Join(t.TempDir(), "nope"), st); err == nil {
		t.Error("New() on a missing directory should fail")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	st, _, dir := setup(t)
	w, err := New(dir, st)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	w.Start()
	w.Stop()
	w.Stop()
}
