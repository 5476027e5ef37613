package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const stateFileName = "state.json"

type layout struct {
	dir    string
	suffix string
}

var fileLayouts = map[Collection]layout{
	Tickets:  {dir: "tickets", suffix: ".json"},
	Teams:    {dir: filepath.Join("teams", "active"), suffix: ".json"},
	Messages: {dir: filepath.Join("teams", "messages"), suffix: ".json"},
	Contexts: {dir: filepath.Join("teams", "context"), suffix: "-shared.json"},
	Sessions: {dir: "session", suffix: ".json"},
}

// FileBackend stores one JSON file per record under the .cto directory.
type FileBackend struct {
	dir string
	mu  sync.Mutex // serializes counter updates within the process
}

// NewFileBackend creates a FileBackend rooted at dir, creating it if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

// Dir returns the directory the backend writes to.
func (b *FileBackend) Dir() string {
	return b.dir
}

func (b *FileBackend) collectionDir(c Collection, scope string) (string, layout, error) {
	l, ok := fileLayouts[c]
	if !ok {
		return "", l, fmt.Errorf("unknown collection %q", c)
	}
	dir := filepath.Join(b.dir, l.dir)
	if scope != "" {
		if err := checkName(scope); err != nil {
			return "", l, err
		}
		dir = filepath.Join(dir, scope)
	}
	return dir, l, nil
}

func (b *FileBackend) path(c Collection, scope, id string) (string, error) {
	if err := checkName(id); err != nil {
		return "", err
	}
	dir, l, err := b.collectionDir(c, scope)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, id+l.suffix), nil
}

// checkName rejects ids that would escape the collection directory.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid record id %q", name)
	}
	return nil
}

// Get reads one record.
func (b *FileBackend) Get(c Collection, scope, id string) ([]byte, error) {
	p, err := b.path(c, scope, id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return data, nil
}

// Put writes one record atomically.
func (b *FileBackend) Put(c Collection, scope, id string, data []byte) error {
	p, err := b.path(c, scope, id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	return writeAtomic(p, data)
}

// List reads every record in the scope, ordered by file name.
func (b *FileBackend) List(c Collection, scope string) ([][]byte, error) {
	dir, l, err := b.collectionDir(c, scope)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), l.suffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([][]byte, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		out = append(out, data)
	}
	return out, nil
}

// Next allocates the next value of a counter kept in state.json. The file is
// flocked for the duration so concurrent cto processes never share an id.
func (b *FileBackend) Next(name Counter) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var n int
	err := withStateLock(b.dir, func() error {
		target := filepath.Join(b.dir, stateFileName)
		state := map[string]int{}
		data, err := os.ReadFile(target)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return fmt.Errorf("read state file: %w", err)
		default:
			if err := json.Unmarshal(data, &state); err != nil {
				return fmt.Errorf("unmarshal state: %w", err)
			}
		}

		n = state[string(name)]
		if n < 1 {
			n = 1
		}
		state[string(name)] = n + 1

		data, err = json.MarshalIndent(state, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal state: %w", err)
		}
		return writeAtomic(target, data)
	})
	if err != nil {
		return 0, fmt.Errorf("allocate %s: %w", name, err)
	}
	return n, nil
}

// Close is a no-op for the file backend.
func (b *FileBackend) Close() error {
	return nil
}

// writeAtomic writes data next to target and renames it into place. Each
// write gets its own temp file so concurrent writers never share one.
func writeAtomic(target string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	_ = f.Chmod(0644)
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
