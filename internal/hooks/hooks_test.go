package hooks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Iron-Ham/cto/internal/config"
	"github.com/Iron-Ham/cto/internal/errors"
	"github.com/Iron-Ham/cto/internal/event"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestBreaker_Transitions(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := NewBreaker(3, 30*time.Second, WithBreakerClock(clock.Now))

	for i := range 2 {
		b.RecordFailure()
		if got := b.State(); got != StateClosed {
			t.Fatalf("after %d failures State() = %v, want closed", i+1, got)
		}
	}
	b.RecordFailure()
	if got := b.State(); got != StateOpen {
		t.Fatalf("after 3 failures State() = %v, want open", got)
	}
	if b.Allow() {
		t.Error("Allow() = true while open before cooldown")
	}

	clock.Advance(29 * time.Second)
	if b.Allow() {
		t.Error("Allow() = true at 29s")
	}

	clock.Advance(time.Second)
	if !b.Allow() {
		t.Fatal("Allow() = false after cooldown")
	}
	if got := b.State(); got != StateHalfOpen {
		t.Errorf("State() = %v, want half_open", got)
	}
	if b.Allow() {
		t.Error("second Allow() in half_open = true, want a single trial")
	}

	b.RecordFailure()
	if got := b.State(); got != StateOpen {
		t.Errorf("failed trial State() = %v, want open", got)
	}

	clock.Advance(30 * time.Second)
	_ = b.Allow()
	b.RecordSuccess()
	if got := b.State(); got != StateClosed || b.Failures() != 0 {
		t.Errorf("after success State() = %v failures = %d, want closed 0", got, b.Failures())
	}
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b := NewBreaker(3, time.Minute)
	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	if got := b.State(); got != StateClosed {
		t.Errorf("State() = %v, want closed: failures must be consecutive", got)
	}

	b.RecordFailure()
	b.Reset()
	if b.State() != StateClosed || b.Failures() != 0 || !b.Allow() {
		t.Error("Reset() did not restore the closed state")
	}
}

func TestNewBreaker_Defaults(t *testing.T) {
	b := NewBreaker(0, 0)
	if b.threshold != DefaultFailureThreshold || b.cooldown != DefaultCooldown {
		t.Errorf("defaults = %d, %v", b.threshold, b.cooldown)
	}
}

func TestAgentID(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	tests := []struct {
		role, team, want string
	}{
		{"rick", "", "cto:rick"},
		{"", "", "cto:rick"},
		{"meeseeks", "", "cto:meeseeks:20260304050607"},
		{"backend", "TEAM-001", "cto:team:TEAM-001:backend"},
		{"backend", "", "cto:morty:backend"},
	}
	for _, tt := range tests {
		if got := AgentID(tt.role, tt.team, at); got != tt.want {
			t.Errorf("AgentID(%q, %q) = %q, want %q", tt.role, tt.team, got, tt.want)
		}
	}
}

type recorder struct {
	mu       sync.Mutex
	payloads []Payload
	ids      []string
	status   int
}

func (r *recorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var p Payload
	_ = json.NewDecoder(req.Body).Decode(&p)
	r.mu.Lock()
	r.payloads = append(r.payloads, p)
	r.ids = append(r.ids, req.Header.Get("X-Event-ID"))
	status := r.status
	r.mu.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
}

func testConfig(endpoint string) config.EventsConfig {
	return config.EventsConfig{
		Enabled:          true,
		Endpoint:         endpoint,
		Timeout:          5,
		Workers:          2,
		QueueSize:        16,
		FailureThreshold: 3,
		CooldownSeconds:  30,
	}
}

func closeEmitter(t *testing.T, em *Emitter) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := em.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestEmitter_Delivers(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	em := NewEmitter(testConfig(srv.URL), WithClock(func() time.Time { return at }))
	if !em.Emit("cto.ticket.created", "cto:rick", map[string]any{"ticket_id": "CTO-001"}) {
		t.Fatal("Emit() = false, want queued")
	}
	em.Emit("cto.ticket.completed", "cto:morty:backend", nil)
	closeEmitter(t, em)

	if got := em.Stats(); got.Sent != 2 || got.Failed != 0 {
		t.Errorf("Stats() = %+v, want 2 sent", got)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.payloads) != 2 {
		t.Fatalf("received %d payloads, want 2", len(rec.payloads))
	}
	for i, p := range rec.payloads {
		if p.Timestamp != "2026-01-02T03:04:05Z" {
			t.Errorf("timestamp = %q", p.Timestamp)
		}
		if rec.ids[i] == "" {
			t.Error("missing X-Event-ID header")
		}
		if p.EventType == "cto.ticket.created" && (p.AgentID != "cto:rick" || p.Data["ticket_id"] != "CTO-001") {
			t.Errorf("payload = %+v", p)
		}
	}
	if rec.ids[0] == rec.ids[1] {
		t.Error("X-Event-ID reused across deliveries")
	}
}

func TestEmitter_FailuresOpenBreaker(t *testing.T) {
	rec := &recorder{status: http.StatusInternalServerError}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Workers = 1
	em := NewEmitter(cfg)
	for range 3 {
		em.Emit("cto.test", "cto:rick", nil)
	}

	deadline := time.Now().Add(5 * time.Second)
	for em.Breaker().State() != StateOpen && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := em.Breaker().State(); got != StateOpen {
		t.Fatalf("breaker = %v, want open after 3 non-200 responses", got)
	}

	if em.Emit("cto.test", "cto:rick", nil) {
		t.Error("Emit() with open breaker = true, want skipped")
	}
	closeEmitter(t, em)
	if got := em.Stats(); got.Failed != 3 || got.Skipped != 1 {
		t.Errorf("Stats() = %+v, want 3 failed 1 skipped", got)
	}
}

// stallingServer holds the first n requests until the client gives up and
// answers the rest with 200.
func stallingServer(t *testing.T, n int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) <= n {
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func TestEmitter_RetriesTimeoutOnce(t *testing.T) {
	tests := []struct {
		name       string
		stalls     int32
		wantSent   int64
		wantFailed int64
	}{
		{"second attempt succeeds", 1, 1, 0},
		{"both attempts time out", 2, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, requests := stallingServer(t, tt.stalls)
			em := NewEmitter(testConfig(srv.URL), WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
			em.Emit("cto.test", "cto:rick", nil)
			closeEmitter(t, em)

			if got := requests.Load(); got != 2 {
				t.Errorf("requests = %d, want 2", got)
			}
			if got := em.Stats(); got.Sent != tt.wantSent || got.Failed != tt.wantFailed {
				t.Errorf("Stats() = %+v, want %d sent %d failed", got, tt.wantSent, tt.wantFailed)
			}
		})
	}
}

func TestEmitter_DeliverClassifiesErrors(t *testing.T) {
	srv, _ := stallingServer(t, 1)
	em := NewEmitter(testConfig(srv.URL), WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	defer closeEmitter(t, em)

	err := em.deliver(Payload{EventType: "cto.test"})
	if !errors.Is(err, errors.ErrTimeout) || !errors.IsRetryable(err) {
		t.Errorf("deliver() on a stalled server = %v, want a retryable timeout", err)
	}

	closed := httptest.NewServer(http.NotFoundHandler())
	url := closed.URL
	closed.Close()
	em.endpoint = url
	err = em.deliver(Payload{EventType: "cto.test"})
	if err == nil || errors.IsRetryable(err) {
		t.Errorf("deliver() to a closed port = %v, want a non-retryable error", err)
	}
}

func TestEmitter_UnreachableNeverBlocks(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	em := NewEmitter(testConfig(url))
	start := time.Now()
	for range 10 {
		em.Emit("cto.test", "cto:rick", nil)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Emit() blocked for %v", elapsed)
	}
	closeEmitter(t, em)
	if got := em.Stats(); got.Sent != 0 {
		t.Errorf("Stats().Sent = %d, want 0", got.Sent)
	}
}

func TestEmitter_DropsWhenFull(t *testing.T) {
	arrived := make(chan struct{}, 4)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		arrived <- struct{}{}
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Workers = 1
	cfg.QueueSize = 1
	em := NewEmitter(cfg)

	em.Emit("cto.one", "cto:rick", nil)
	<-arrived // the worker is now busy with the first event
	if !em.Emit("cto.two", "cto:rick", nil) {
		t.Error("second Emit() = false, want queued")
	}
	if em.Emit("cto.three", "cto:rick", nil) {
		t.Error("third Emit() = true, want dropped")
	}
	close(release)
	closeEmitter(t, em)

	if got := em.Stats(); got.Dropped != 1 || got.Sent != 2 {
		t.Errorf("Stats() = %+v, want 2 sent 1 dropped", got)
	}
}

func TestEmitter_Disabled(t *testing.T) {
	em := NewEmitter(config.EventsConfig{Enabled: false})
	if em.Emit("cto.test", "cto:rick", nil) {
		t.Error("disabled Emit() = true")
	}
	if err := em.Close(context.Background()); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestEmitter_EmitAfterClose(t *testing.T) {
	em := NewEmitter(testConfig("http://127.0.0.1:1"))
	closeEmitter(t, em)
	if em.Emit("cto.test", "cto:rick", nil) {
		t.Error("Emit() after Close = true")
	}
	closeEmitter(t, em)
}

func TestAttach(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	bus := event.NewBus()
	em := NewEmitter(testConfig(srv.URL))
	Attach(bus, em)

	bus.Publish(event.NewTicketCreatedEvent("CTO-001", "Login", "task", "high", "M", "solo", ""))
	bus.Publish(event.NewMemberStatusChangedEvent("TEAM-001", "backend", "pending", "working", ""))
	closeEmitter(t, em)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	got := map[string]string{}
	for _, p := range rec.payloads {
		got[p.EventType] = p.AgentID
	}
	if got["cto.ticket.created"] != "cto:rick" {
		t.Errorf("ticket.created agent = %q, want cto:rick", got["cto.ticket.created"])
	}
	if got["cto.team.member.status.changed"] != "cto:team:TEAM-001:backend" {
		t.Errorf("forwarded events = %v", got)
	}
}
