package agent

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/Iron-Ham/cto/internal/config"
	"github.com/Iron-Ham/cto/internal/errors"
	"github.com/Iron-Ham/cto/internal/logging"
)

const waitDelay = 5 * time.Second

// CLIExecutor runs the agent CLI in print mode, one process per request.
type CLIExecutor struct {
	command         string
	skipPermissions bool
	logger          *logging.Logger
}

// NewCLIExecutor creates a CLI executor from the agent config.
func NewCLIExecutor(cfg config.AgentConfig, logger *logging.Logger) *CLIExecutor {
	command := cfg.Command
	if command == "" {
		command = "claude"
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &CLIExecutor{
		command:         command,
		skipPermissions: cfg.SkipPermissions,
		logger:          logger,
	}
}

// Args returns the argument list for req, without the command itself.
func (e *CLIExecutor) Args(req Request) []string {
	args := []string{"-p"}
	if e.skipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	return append(args, req.Prompt)
}

// CommandLine renders the command for display, with the prompt elided.
func (e *CLIExecutor) CommandLine(model string) string {
	args := e.Args(Request{Model: model, Prompt: "'<prompt>'"})
	return e.command + " " + strings.Join(args, " ")
}

// Invoke runs the CLI and returns its stdout. A non-zero exit yields an
// AgentError carrying the exit code and a stderr excerpt; running past the
// request timeout yields a timeout AgentError.
func (e *CLIExecutor) Invoke(ctx context.Context, req Request) (string, error) {
	timeout := req.timeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.command, e.Args(req)...)
	cmd.Dir = req.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Grandchildren may keep the pipes open after the agent is killed.
	cmd.WaitDelay = waitDelay

	e.logger.Debug("invoking agent", "command", e.command, "model", req.Model, "timeout", timeout.String())
	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		e.logger.Warn("agent timed out", "timeout", timeout.String())
		return "", errors.NewAgentTimeoutError(timeout)
	}
	if ctx.Err() != nil {
		return "", errors.NewAgentError("agent invocation canceled", errors.ErrCanceled)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		e.logger.Warn("agent exited with error", "exit_code", exitErr.ExitCode())
		return "", errors.NewAgentExitError(exitErr.ExitCode(), stderr.String())
	}
	return "", errors.NewAgentError(fmt.Sprintf("failed to start %s", e.command), errors.Join(errors.ErrAgentUnavailable, err))
}
