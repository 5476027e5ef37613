// Package testutil provides testing utilities for cto tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/cto/internal/config"
	"github.com/Iron-Ham/cto/internal/store"
)

// ProjectDirs are the directories an initialized project has under .cto.
var ProjectDirs = []string{
	"tickets",
	filepath.Join("teams", "active"),
	filepath.Join("teams", "messages"),
	filepath.Join("teams", "context"),
	"decisions",
	"logs",
}

// SetupProject creates a temporary project root with an empty .cto
// directory. The directory is removed when the test completes.
func SetupProject(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	for _, dir := range ProjectDirs {
		if err := os.MkdirAll(filepath.Join(root, config.ProjectDirName, dir), 0755); err != nil {
			t.Fatalf("failed to create %s: %v", dir, err)
		}
	}
	return root
}

// SetupProjectWithContent creates a project and writes files into it.
// The files map contains paths relative to the root to file contents.
func SetupProjectWithContent(t *testing.T, files map[string]string) string {
	t.Helper()

	root := SetupProject(t)
	for path, content := range files {
		WriteFile(t, root, path, content)
	}
	return root
}

// WriteFile writes content to root/path, creating parent directories.
func WriteFile(t *testing.T, root, path, content string) string {
	t.Helper()

	full := filepath.Join(root, path)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}
	return full
}

// OpenStore opens the file-backed store of a project root and closes it
// when the test completes.
func OpenStore(t *testing.T, root string) *store.Store {
	t.Helper()

	st, err := store.Open(root, config.StorageConfig{Backend: "file"})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// AgentReport renders the summary section a worker agent ends its output
// with.
func AgentReport(status, description string, files ...string) string {
	return fmt.Sprintf("working...\n\n### Samenvatting\n**Status**: %s\n**Bestanden gewijzigd**:\n- %s\n**Beschrijving**: %s\n**Open vragen**: none\n",
		status, strings.Join(files, "\n- "), description)
}

// MeeseeksReport renders the report a one-shot agent ends its output with.
func MeeseeksReport(status, description string, files ...string) string {
	return fmt.Sprintf("### Meeseeks Report\n**Status**: %s\n**Bestanden gewijzigd**:\n- %s\n**Beschrijving**: %s\n**Complexiteit**: simple\n",
		status, strings.Join(files, "\n- "), description)
}

// FixedClock returns a clock that always reports at.
func FixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

// ReadFile returns the contents of root/path, failing the test when it
// cannot be read.
func ReadFile(t *testing.T, root, path string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(root, path))
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}
