package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/cto/internal/agent"
	"github.com/Iron-Ham/cto/internal/config"
	"github.com/Iron-Ham/cto/internal/contextprop"
	"github.com/Iron-Ham/cto/internal/event"
	"github.com/Iron-Ham/cto/internal/filelock"
	"github.com/Iron-Ham/cto/internal/hooks"
	"github.com/Iron-Ham/cto/internal/logging"
	"github.com/Iron-Ham/cto/internal/mailbox"
	"github.com/Iron-Ham/cto/internal/orchestrator"
	"github.com/Iron-Ham/cto/internal/progress"
	"github.com/Iron-Ham/cto/internal/session"
	"github.com/Iron-Ham/cto/internal/store"
	"github.com/Iron-Ham/cto/internal/team"
	"github.com/Iron-Ham/cto/internal/ticket"
)

// newExecutor builds the agent executor. Tests replace it.
var newExecutor = agent.NewExecutor

// app is the set of services one command works with.
type app struct {
	root     string
	cfg      *config.Config
	logger   *logging.Logger
	store    *store.Store
	bus      *event.Bus
	emitter  *hooks.Emitter
	tickets  *ticket.Service
	teams    *team.Manager
	mailbox  *mailbox.Mailbox
	shared   *contextprop.Propagator
	files    *filelock.Registry
	progress *progress.Log
	session  *session.Tracker

	orch *orchestrator.Orchestrator
}

// openApp finds the project above the working directory, merges its
// config over the user config and wires the services.
func openApp() (*app, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	root, err := config.FindProjectRoot(cwd)
	if err != nil {
		return nil, err
	}

	if path := config.ProjectConfigFile(root); fileExists(path) {
		viper.SetConfigFile(path)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	a := &app{root: root, cfg: cfg, logger: logging.NopLogger()}
	dir := filepath.Join(root, config.ProjectDirName)
	if cfg.Logging.Enabled {
		l, err := logging.NewLogger(filepath.Join(dir, "logs"), cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
		a.logger = l
	}

	a.store, err = store.Open(root, cfg.Storage)
	if err != nil {
		_ = a.logger.Close()
		return nil, err
	}

	a.bus = event.NewBus(event.WithLogger(a.logger))
	a.emitter = hooks.NewEmitter(cfg.Events, hooks.WithLogger(a.logger))
	hooks.Attach(a.bus, a.emitter)

	a.tickets = ticket.NewService(a.store, cfg.Project.TicketPrefix,
		ticket.WithBus(a.bus), ticket.WithLogger(a.logger))
	a.mailbox = mailbox.NewMailbox(a.store, mailbox.WithBus(a.bus), mailbox.WithLogger(a.logger))
	a.shared = contextprop.NewPropagator(a.store,
		contextprop.WithMailbox(a.mailbox), contextprop.WithBus(a.bus), contextprop.WithLogger(a.logger))
	a.teams = team.NewManager(a.store,
		team.WithBus(a.bus), team.WithLogger(a.logger), team.WithSharedContext(a.shared))
	a.files = filelock.NewRegistry(a.teams, filelock.WithMailbox(a.mailbox), filelock.WithLogger(a.logger))
	a.progress = progress.NewLog(filepath.Join(dir, "logs"))
	a.session = session.NewTracker(a.store, a.progress, session.WithLogger(a.logger))

	if name := cfg.Team.TemplatesFile; name != "" {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, name)
		}
		if fileExists(path) {
			if err := a.teams.Templates().LoadFile(path); err != nil {
				a.close()
				return nil, err
			}
		}
	}
	return a, nil
}

// orchestrator builds the orchestrator on first use, so commands that never
// run an agent do not need a working executor.
func (a *app) orchestrator() (*orchestrator.Orchestrator, error) {
	if a.orch != nil {
		return a.orch, nil
	}
	exec, err := newExecutor(a.cfg.Agent, a.logger)
	if err != nil {
		return nil, err
	}
	a.orch, err = orchestrator.New(a.cfg, orchestrator.Deps{
		Root:     a.root,
		Store:    a.store,
		Tickets:  a.tickets,
		Teams:    a.teams,
		Mailbox:  a.mailbox,
		Shared:   a.shared,
		Executor: exec,
		Progress: a.progress,
		Bus:      a.bus,
	}, orchestrator.WithLogger(a.logger))
	return a.orch, err
}

// record appends a progress entry, warning on failure.
func (a *app) record(e progress.Entry) {
	if err := a.progress.Append(e); err != nil {
		a.logger.Warn("failed to write progress log", "error", err)
	}
}

// close flushes pending events and releases the store.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.emitter.Close(ctx); err != nil {
		a.logger.Warn("event emitter did not drain", "error", err)
	}
	_ = a.store.Close()
	_ = a.logger.Close()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
