package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/cto/internal/config"
	"github.com/Iron-Ham/cto/internal/errors"
	"github.com/Iron-Ham/cto/internal/logging"
)

const (
	DefaultEndpoint  = "http://localhost:3067/hooks/agent-event"
	DefaultTimeout   = 2 * time.Second
	DefaultWorkers   = 2
	DefaultQueueSize = 256

	// deliveryAttempts bounds the tries per event. Only timeouts are retried.
	deliveryAttempts = 2
)

// Payload is the JSON body POSTed for each event.
type Payload struct {
	AgentID   string         `json:"agentId"`
	EventType string         `json:"eventType"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Stats counts emitter outcomes.
type Stats struct {
	Sent    int64 // delivered with HTTP 200
	Failed  int64 // delivery attempted and failed
	Dropped int64 // queue full
	Skipped int64 // refused by the open breaker
}

// Emitter delivers events to a webhook on a fixed worker pool.
type Emitter struct {
	enabled  bool
	endpoint string
	timeout  time.Duration
	verbose  bool
	client   *http.Client
	breaker  *Breaker
	logger   *logging.Logger
	now      func() time.Time

	queue chan Payload
	wg    conc.WaitGroup

	mu     sync.RWMutex // guards closed against sends on queue
	closed bool

	sent, failed, dropped, skipped atomic.Int64
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Emitter) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Emitter) {
		e.client = c
	}
}

// WithBreaker replaces the circuit breaker.
func WithBreaker(b *Breaker) Option {
	return func(e *Emitter) {
		e.breaker = b
	}
}

// WithClock sets the time source for payload timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Emitter) {
		e.now = now
	}
}

// NewEmitter creates an emitter from cfg and starts its workers. A disabled
// emitter starts nothing and drops every event silently.
func NewEmitter(cfg config.EventsConfig, opts ...Option) *Emitter {
	e := &Emitter{
		enabled:  cfg.Enabled,
		endpoint: cfg.Endpoint,
		timeout:  cfg.DeliveryTimeout(),
		verbose:  cfg.Verbose,
		client:   &http.Client{},
		logger:   logging.NopLogger(),
		now:      time.Now,
	}
	if e.endpoint == "" {
		e.endpoint = DefaultEndpoint
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.breaker == nil {
		e.breaker = NewBreaker(cfg.FailureThreshold, cfg.Cooldown())
	}
	if !e.enabled {
		return e
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	e.queue = make(chan Payload, size)
	for range workers {
		e.wg.Go(e.work)
	}
	return e
}

// Enabled reports whether the emitter delivers events.
func (e *Emitter) Enabled() bool {
	return e.enabled
}

// Breaker returns the emitter's circuit breaker.
func (e *Emitter) Breaker() *Breaker {
	return e.breaker
}

// Stats returns a snapshot of the outcome counters.
func (e *Emitter) Stats() Stats {
	return Stats{
		Sent:    e.sent.Load(),
		Failed:  e.failed.Load(),
		Dropped: e.dropped.Load(),
		Skipped: e.skipped.Load(),
	}
}

// Emit queues an event for delivery and reports whether it was queued. It
// never blocks.
func (e *Emitter) Emit(eventType, agentID string, data map[string]any) bool {
	if !e.enabled {
		return false
	}
	if data == nil {
		data = map[string]any{}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return false
	}

	if !e.breaker.Allow() {
		e.skipped.Add(1)
		if e.verbose {
			e.logger.Info("circuit breaker open, skipping event", "event_type", eventType)
		}
		return false
	}

	p := Payload{
		AgentID:   agentID,
		EventType: eventType,
		Timestamp: e.now().UTC().Format(time.RFC3339Nano),
		Data:      data,
	}
	select {
	case e.queue <- p:
		return true
	default:
		e.dropped.Add(1)
		e.logger.Debug("event queue full, dropping event", "event_type", eventType)
		return false
	}
}

func (e *Emitter) work() {
	for p := range e.queue {
		if err := e.send(p); err != nil {
			e.failed.Add(1)
			e.breaker.RecordFailure()
			if e.verbose {
				e.logger.Info("event failed", "event_type", p.EventType, "error", err.Error())
			} else {
				e.logger.Debug("event failed", "event_type", p.EventType, "error", err.Error())
			}
			continue
		}
		e.sent.Add(1)
		e.breaker.RecordSuccess()
		if e.verbose {
			e.logger.Info("event sent", "event_type", p.EventType, "agent_id", p.AgentID)
		}
	}
}

// send delivers p, trying again once when the first attempt times out.
func (e *Emitter) send(p Payload) error {
	var err error
	for attempt := 1; attempt <= deliveryAttempts; attempt++ {
		if err = e.deliver(p); err == nil || !errors.IsRetryable(err) {
			return err
		}
		e.logger.Debug("event delivery timed out", "event_type", p.EventType, "attempt", attempt)
	}
	return err
}

func (e *Emitter) deliver(p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-ID", uuid.NewString())

	resp, err := e.client.Do(req)
	if err != nil {
		var netErr net.Error
		if ctx.Err() != nil || (errors.As(err, &netErr) && netErr.Timeout()) {
			return errors.NewTimeoutError("delivering "+p.EventType, e.timeout).WithCause(err)
		}
		return errors.Wrapf(err, "post %s", p.EventType)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

// Close stops accepting events, lets the workers drain the queue and waits
// for them until ctx is done.
func (e *Emitter) Close(ctx context.Context) error {
	if !e.enabled {
		return nil
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
