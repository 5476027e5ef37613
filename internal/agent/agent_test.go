package agent

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Iron-Ham/cto/internal/config"
	"github.com/Iron-Ham/cto/internal/errors"
)

func TestSelectRole(t *testing.T) {
	tests := []struct {
		name        string
		ticketType  string
		title       string
		description string
		want        Role
	}{
		{"epic goes to architect", "epic", "Build the frontend", "", RoleArchitect},
		{"spike goes to architect", "spike", "Investigate docker", "", RoleArchitect},
		{"frontend keywords", "feature", "Responsive layout for the dashboard", "css tweaks", RoleFrontend},
		{"backend keywords", "feature", "Add endpoint", "database migration and query", RoleBackend},
		{"security keywords", "bug", "Fix XSS", "csrf and injection in auth", RoleSecurity},
		{"devops keywords", "task", "Deploy pipeline", "kubernetes and terraform", RoleDevOps},
		{"tester keywords", "task", "Regression coverage", "", RoleTester},
		{"no keywords", "task", "Rename things", "tidy up", RoleFullstack},
		{"tie prefers earlier role", "task", "schema", "docker", RoleArchitect},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SelectRole(tt.ticketType, tt.title, tt.description); got != tt.want {
				t.Errorf("SelectRole() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"backend", RoleBackend, false},
		{"backend-morty", RoleBackend, false},
		{"@Architect", RoleArchitect, false},
		{" unity ", RoleUnity, false},
		{"janitor", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseRole(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRole(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRole(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRoleModels(t *testing.T) {
	for _, r := range AllRoles {
		want := ModelSonnet
		if r == RoleArchitect || r == RoleSecurity || r == RoleUnity {
			want = ModelOpus
		}
		if got := r.Model(); got != want {
			t.Errorf("%s.Model() = %q, want %q", r, got, want)
		}
		if r.Persona() == "" {
			t.Errorf("%s.Persona() is empty", r)
		}
	}

	overrides := map[string]string{"backend": ModelHaiku}
	if got := ModelFor(RoleBackend, overrides); got != ModelHaiku {
		t.Errorf("ModelFor(backend) = %q, want %q", got, ModelHaiku)
	}
	if got := ModelFor(RoleArchitect, overrides); got != ModelOpus {
		t.Errorf("ModelFor(architect) = %q, want %q", got, ModelOpus)
	}
}

// writeScript creates an executable shell script standing in for the agent CLI.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-agent")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestCLIExecutor_Args(t *testing.T) {
	e := NewCLIExecutor(config.AgentConfig{SkipPermissions: true}, nil)
	got := strings.Join(e.Args(Request{Prompt: "do it", Model: "opus"}), " ")
	want := "-p --dangerously-skip-permissions --model opus do it"
	if got != want {
		t.Errorf("Args() = %q, want %q", got, want)
	}
	if got := e.CommandLine("sonnet"); got != "claude -p --dangerously-skip-permissions --model sonnet '<prompt>'" {
		t.Errorf("CommandLine() = %q", got)
	}
}

func TestCLIExecutor_Invoke(t *testing.T) {
	script := writeScript(t, `echo "args: $*"`)
	e := NewCLIExecutor(config.AgentConfig{Command: script}, nil)

	out, err := e.Invoke(context.Background(), Request{Prompt: "hello", Model: "sonnet", Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if strings.TrimSpace(out) != "args: -p --model sonnet hello" {
		t.Errorf("Invoke() = %q", out)
	}
}

func TestCLIExecutor_ExitError(t *testing.T) {
	script := writeScript(t, "echo 'rate limited' >&2\nexit 3")
	e := NewCLIExecutor(config.AgentConfig{Command: script}, nil)

	_, err := e.Invoke(context.Background(), Request{Prompt: "x", Timeout: 10 * time.Second})
	var agentErr *errors.AgentError
	if !errors.As(err, &agentErr) {
		t.Fatalf("Invoke() error = %v, want *AgentError", err)
	}
	if agentErr.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", agentErr.ExitCode)
	}
	if got, want := err.Error(), "Agent process exited with code 3: rate limited"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, errors.ErrAgentFailed) {
		t.Error("errors.Is(err, ErrAgentFailed) = false, want true")
	}
}

func TestCLIExecutor_Timeout(t *testing.T) {
	script := writeScript(t, "exec sleep 5")
	e := NewCLIExecutor(config.AgentConfig{Command: script}, nil)

	_, err := e.Invoke(context.Background(), Request{Prompt: "x", Timeout: 100 * time.Millisecond})
	if !errors.Is(err, errors.ErrAgentTimeout) {
		t.Fatalf("Invoke() error = %v, want ErrAgentTimeout", err)
	}
	if !strings.Contains(err.Error(), "Consider splitting the ticket") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestCLIExecutor_MissingBinary(t *testing.T) {
	e := NewCLIExecutor(config.AgentConfig{Command: filepath.Join(t.TempDir(), "nope")}, nil)
	_, err := e.Invoke(context.Background(), Request{Prompt: "x"})
	if !errors.Is(err, errors.ErrAgentUnavailable) {
		t.Errorf("Invoke() error = %v, want ErrAgentUnavailable", err)
	}
}

func newTestAPIExecutor(t *testing.T, handler http.HandlerFunc) *APIExecutor {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	e, err := NewAPIExecutor(config.AgentConfig{APIKey: "test-key"}, nil,
		option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	if err != nil {
		t.Fatalf("NewAPIExecutor() error = %v", err)
	}
	return e
}

func TestAPIExecutor_Invoke(t *testing.T) {
	var gotModel string
	e := newTestAPIExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "test-key" {
			t.Errorf("X-Api-Key = %q", r.Header.Get("X-Api-Key"))
		}
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), string(apiModels[ModelOpus])) {
			gotModel = ModelOpus
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg_1","type":"message","role":"assistant","model":"m",
			"content":[{"type":"text","text":"### Samenvatting\n"},{"type":"text","text":"**Status**: completed"}],
			"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":5}}`)
	})

	out, err := e.Invoke(context.Background(), Request{Prompt: "plan", Model: ModelOpus, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if out != "### Samenvatting\n**Status**: completed" {
		t.Errorf("Invoke() = %q", out)
	}
	if gotModel != ModelOpus {
		t.Errorf("request did not carry the opus model id")
	}
}

func TestAPIExecutor_Error(t *testing.T) {
	e := newTestAPIExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`)
	})

	_, err := e.Invoke(context.Background(), Request{Prompt: "plan"})
	if !errors.Is(err, errors.ErrAgentFailed) {
		t.Errorf("Invoke() error = %v, want ErrAgentFailed", err)
	}
}

func TestAPIExecutor_ResolveModel(t *testing.T) {
	e := &APIExecutor{}
	if got := e.ResolveModel("sonnet"); got != apiModels[ModelSonnet] {
		t.Errorf("ResolveModel(sonnet) = %q", got)
	}
	if got := e.ResolveModel("claude-custom"); got != "claude-custom" {
		t.Errorf("ResolveModel(custom) = %q", got)
	}
	e.bedrock = true
	if got := e.ResolveModel("haiku"); got != "us.anthropic.claude-haiku-4-5-20251001-v1:0" {
		t.Errorf("ResolveModel(haiku) on bedrock = %q", got)
	}
}

func TestNewExecutor(t *testing.T) {
	ex, err := NewExecutor(config.AgentConfig{Backend: "cli"}, nil)
	if err != nil {
		t.Fatalf("NewExecutor(cli) error = %v", err)
	}
	if _, ok := ex.(*CLIExecutor); !ok {
		t.Errorf("NewExecutor(cli) = %T, want *CLIExecutor", ex)
	}
	if _, err := NewExecutor(config.AgentConfig{Backend: "carrier-pigeon"}, nil); err == nil {
		t.Error("NewExecutor(unknown) error = nil, want error")
	}
}
