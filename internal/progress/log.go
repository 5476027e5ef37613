package progress

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Actions recorded in the log.
const (
	ActionCreated   = "created"
	ActionStarted   = "started"
	ActionCompleted = "completed"
	ActionReviewed  = "reviewed"
	ActionBlocked   = "blocked"
	ActionDecision  = "decision"
	ActionNote      = "note"
)

// Actions lists every valid action.
var Actions = []string{
	ActionCreated, ActionStarted, ActionCompleted, ActionReviewed,
	ActionBlocked, ActionDecision, ActionNote,
}

// DefaultAgent is recorded when an entry names no agent.
const DefaultAgent = "rick"

const (
	logSuffix       = ".jsonl"
	dateLayout      = "2006-01-02"
	meeseeksLogName = "meeseeks.log"
)

// Entry is one line of the progress log.
type Entry struct {
	Timestamp    time.Time `json:"timestamp"`
	TicketID     string    `json:"ticket_id,omitempty"`
	Agent        string    `json:"agent"`
	Action       string    `json:"action"`
	Message      string    `json:"message"`
	FilesChanged []string  `json:"files_changed"`
}

// Log appends to and reads the daily progress files in a directory.
type Log struct {
	dir string
	now func() time.Time
	mu  sync.Mutex
}

// Option configures a Log.
type Option func(*Log)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// NewLog creates a Log over dir, normally .cto/logs.
func NewLog(dir string, opts ...Option) *Log {
	l := &Log{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dir returns the log directory.
func (l *Log) Dir() string {
	return l.dir
}

func (l *Log) fileFor(day time.Time) string {
	return filepath.Join(l.dir, day.UTC().Format(dateLayout)+logSuffix)
}

// Append writes e to today's file, filling in the timestamp, agent and
// action when they are empty.
func (l *Log) Append(e Entry) error {
	now := l.now()
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	e.Timestamp = e.Timestamp.UTC()
	if e.Agent == "" {
		e.Agent = DefaultAgent
	}
	if e.Action == "" {
		e.Action = ActionNote
	}
	if e.FilesChanged == nil {
		e.FilesChanged = []string{}
	}

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal progress entry: %w", err)
	}
	return l.appendLine(l.fileFor(now), line)
}

func (l *Log) appendLine(path string, line []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open progress log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write progress log: %w", err)
	}
	return nil
}

// Today returns today's entries in file order.
func (l *Log) Today() ([]Entry, error) {
	return readFile(l.fileFor(l.now()))
}

// All returns every entry, oldest day first.
func (l *Log) All() ([]Entry, error) {
	matches, err := filepath.Glob(filepath.Join(l.dir, "*"+logSuffix))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	var all []Entry
	for _, path := range matches {
		entries, err := readFile(path)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	return all, nil
}

// Last returns the most recent entry, or false if the log is empty.
func (l *Log) Last() (Entry, bool, error) {
	all, err := l.All()
	if err != nil || len(all) == 0 {
		return Entry{}, false, err
	}
	return all[len(all)-1], true, nil
}

// readFile parses a JSONL file. Blank and malformed lines are skipped; a
// missing file has no entries.
func readFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open progress log: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read progress log: %w", err)
	}
	return entries, nil
}

// MeeseeksEntry is one line of the Meeseeks log.
type MeeseeksEntry struct {
	Action       string   `json:"action"`
	Task         string   `json:"task"`
	TargetFiles  []string `json:"target_files,omitempty"`
	Model        string   `json:"model,omitempty"`
	Status       string   `json:"status,omitempty"`
	FilesChanged []string `json:"files_changed,omitempty"`
	Complexity   string   `json:"complexity,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// AppendMeeseeks writes e to meeseeks.log as "[YYYY-mm-dd HH:MM:SS] {json}".
func (l *Log) AppendMeeseeks(e MeeseeksEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal meeseeks entry: %w", err)
	}
	line := fmt.Sprintf("[%s] %s", l.now().UTC().Format(time.DateTime), data)
	return l.appendLine(filepath.Join(l.dir, meeseeksLogName), []byte(line))
}
