package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/cto/internal/errors"
)

// ProjectDirName is the per-repository state directory.
const ProjectDirName = ".cto"

// Config represents the complete cto configuration
type Config struct {
	Project ProjectConfig `mapstructure:"project"`
	Sprint  SprintConfig  `mapstructure:"sprint"`
	Review  ReviewConfig  `mapstructure:"review"`
	Agent   AgentConfig   `mapstructure:"agent"`
	Team    TeamConfig    `mapstructure:"team"`
	Events  EventsConfig  `mapstructure:"events"`
	Storage StorageConfig `mapstructure:"storage"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ProjectConfig holds per-project identity settings
type ProjectConfig struct {
	// TicketPrefix is prepended to ticket numbers (PREFIX-001)
	TicketPrefix string `mapstructure:"ticket_prefix"`
}

// SprintConfig controls the scheduling loop
type SprintConfig struct {
	// MaxIterations bounds a single sprint run
	MaxIterations int `mapstructure:"max_iterations"`
	// ReviewBatch is how many in_review tickets are reviewed per idle iteration
	ReviewBatch int `mapstructure:"review_batch"`
	// WaitSeconds is the pause between iterations while tickets are still
	// in progress elsewhere
	WaitSeconds int `mapstructure:"wait_seconds"`
}

// ReviewConfig controls ticket approval
type ReviewConfig struct {
	// AutoApprove approves a reviewed ticket whose status the reviewer left unchanged
	AutoApprove bool `mapstructure:"auto_approve"`
	// OnFailure is what a failed review does to the ticket: keep it in
	// review, approve it, or reject it back to todo
	OnFailure string `mapstructure:"on_failure"`
}

// AgentConfig controls how worker agents are invoked
type AgentConfig struct {
	// Backend selects the executor: "cli" runs Command, "api" calls the Messages API
	Backend string `mapstructure:"backend"`
	// Command is the agent CLI binary
	Command string `mapstructure:"command"`
	// SkipPermissions passes --dangerously-skip-permissions to the CLI
	SkipPermissions bool `mapstructure:"skip_permissions"`
	// TimeoutSeconds bounds one delegation
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	// MeeseeksTimeoutSeconds bounds one meeseeks invocation
	MeeseeksTimeoutSeconds int `mapstructure:"meeseeks_timeout_seconds"`
	// Models overrides the model chosen for a role (role -> model)
	Models map[string]string `mapstructure:"models"`
	// APIKey is used by the api backend; falls back to ANTHROPIC_API_KEY
	APIKey string `mapstructure:"api_key"`
	// Bedrock routes the api backend through AWS Bedrock instead of the
	// Anthropic API, using the default AWS credential chain
	Bedrock    bool   `mapstructure:"bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// TeamConfig controls team formation and execution
type TeamConfig struct {
	// MaxParallel bounds concurrently running members in parallel phases
	MaxParallel int `mapstructure:"max_parallel"`
	// MemberTimeoutSeconds bounds a single member's agent invocation
	MemberTimeoutSeconds int `mapstructure:"member_timeout_seconds"`
	// AutoComplexities lists ticket complexities that get a team automatically
	AutoComplexities []string `mapstructure:"auto_complexities"`
	// TemplatesFile is an optional YAML file with extra team templates,
	// relative to the .cto directory
	TemplatesFile string `mapstructure:"templates_file"`
}

// EventsConfig controls delivery of lifecycle events to the hook endpoint.
// The enabled/endpoint/timeout/verbose keys also honor RORO_* env vars.
type EventsConfig struct {
	Enabled  bool    `mapstructure:"enabled"`
	Endpoint string  `mapstructure:"endpoint"`
	Timeout  float64 `mapstructure:"timeout"` // seconds
	Verbose  bool    `mapstructure:"verbose"`
	// Workers is the number of delivery goroutines
	Workers int `mapstructure:"workers"`
	// QueueSize bounds pending events; further events are dropped
	QueueSize int `mapstructure:"queue_size"`
	// FailureThreshold consecutive failures open the circuit breaker
	FailureThreshold int `mapstructure:"failure_threshold"`
	// CooldownSeconds is how long the breaker stays open
	CooldownSeconds float64 `mapstructure:"cooldown_seconds"`
}

// StorageConfig selects the record store backend
type StorageConfig struct {
	// Backend is "file" (one JSON file per record) or "sqlite"
	Backend string `mapstructure:"backend"`
	// SQLitePath is relative to the .cto directory
	SQLitePath string `mapstructure:"sqlite_path"`
}

// LoggingConfig controls debug logging
type LoggingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Level   string `mapstructure:"level"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Project: ProjectConfig{
			TicketPrefix: "CTO",
		},
		Sprint: SprintConfig{
			MaxIterations: 50,
			ReviewBatch:   3,
			WaitSeconds:   10,
		},
		Review: ReviewConfig{
			AutoApprove: true,
			OnFailure:   "keep",
		},
		Agent: AgentConfig{
			Backend:                "cli",
			Command:                "claude",
			SkipPermissions:        true,
			TimeoutSeconds:         600,
			MeeseeksTimeoutSeconds: 180,
			Models:                 map[string]string{},
		},
		Team: TeamConfig{
			MaxParallel:          4,
			MemberTimeoutSeconds: 600,
			AutoComplexities:     []string{"L", "XL"},
			TemplatesFile:        "templates.yaml",
		},
		Events: EventsConfig{
			Enabled:          true,
			Endpoint:         "http://localhost:3067/hooks/agent-event",
			Timeout:          2.0,
			Workers:          2,
			QueueSize:        256,
			FailureThreshold: 3,
			CooldownSeconds:  30,
		},
		Storage: StorageConfig{
			Backend:    "file",
			SQLitePath: "cto.db",
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
		},
	}
}

// WaitInterval returns the pause between iterations spent waiting
func (c *SprintConfig) WaitInterval() time.Duration {
	return time.Duration(c.WaitSeconds) * time.Second
}

// AgentTimeout returns the delegation timeout as a time.Duration
func (c *AgentConfig) AgentTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MeeseeksTimeout returns the meeseeks timeout as a time.Duration
func (c *AgentConfig) MeeseeksTimeout() time.Duration {
	return time.Duration(c.MeeseeksTimeoutSeconds) * time.Second
}

// MemberTimeout returns the per-member timeout as a time.Duration
func (c *TeamConfig) MemberTimeout() time.Duration {
	return time.Duration(c.MemberTimeoutSeconds) * time.Second
}

// DeliveryTimeout returns the per-event HTTP timeout
func (c *EventsConfig) DeliveryTimeout() time.Duration {
	return time.Duration(c.Timeout * float64(time.Second))
}

// Cooldown returns the breaker cooldown
func (c *EventsConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds * float64(time.Second))
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("project.ticket_prefix", defaults.Project.TicketPrefix)

	viper.SetDefault("sprint.max_iterations", defaults.Sprint.MaxIterations)
	viper.SetDefault("sprint.review_batch", defaults.Sprint.ReviewBatch)
	viper.SetDefault("sprint.wait_seconds", defaults.Sprint.WaitSeconds)

	viper.SetDefault("review.auto_approve", defaults.Review.AutoApprove)
	viper.SetDefault("review.on_failure", defaults.Review.OnFailure)

	viper.SetDefault("agent.backend", defaults.Agent.Backend)
	viper.SetDefault("agent.command", defaults.Agent.Command)
	viper.SetDefault("agent.skip_permissions", defaults.Agent.SkipPermissions)
	viper.SetDefault("agent.timeout_seconds", defaults.Agent.TimeoutSeconds)
	viper.SetDefault("agent.meeseeks_timeout_seconds", defaults.Agent.MeeseeksTimeoutSeconds)
	viper.SetDefault("agent.models", defaults.Agent.Models)
	viper.SetDefault("agent.api_key", defaults.Agent.APIKey)
	viper.SetDefault("agent.bedrock", defaults.Agent.Bedrock)
	viper.SetDefault("agent.aws_region", defaults.Agent.AWSRegion)
	viper.SetDefault("agent.aws_profile", defaults.Agent.AWSProfile)

	viper.SetDefault("team.max_parallel", defaults.Team.MaxParallel)
	viper.SetDefault("team.member_timeout_seconds", defaults.Team.MemberTimeoutSeconds)
	viper.SetDefault("team.auto_complexities", defaults.Team.AutoComplexities)
	viper.SetDefault("team.templates_file", defaults.Team.TemplatesFile)

	viper.SetDefault("events.enabled", defaults.Events.Enabled)
	viper.SetDefault("events.endpoint", defaults.Events.Endpoint)
	viper.SetDefault("events.timeout", defaults.Events.Timeout)
	viper.SetDefault("events.verbose", defaults.Events.Verbose)
	viper.SetDefault("events.workers", defaults.Events.Workers)
	viper.SetDefault("events.queue_size", defaults.Events.QueueSize)
	viper.SetDefault("events.failure_threshold", defaults.Events.FailureThreshold)
	viper.SetDefault("events.cooldown_seconds", defaults.Events.CooldownSeconds)

	viper.SetDefault("storage.backend", defaults.Storage.Backend)
	viper.SetDefault("storage.sqlite_path", defaults.Storage.SQLitePath)

	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
}

// BindLegacyEnv binds the event emitter keys to the historical RORO_* env
// names in addition to the CTO_* names AutomaticEnv already resolves.
func BindLegacyEnv() {
	_ = viper.BindEnv("events.enabled", "CTO_EVENTS_ENABLED", "RORO_ENABLED")
	_ = viper.BindEnv("events.endpoint", "CTO_EVENTS_ENDPOINT", "RORO_ENDPOINT")
	_ = viper.BindEnv("events.timeout", "CTO_EVENTS_TIMEOUT", "RORO_TIMEOUT")
	_ = viper.BindEnv("events.verbose", "CTO_EVENTS_VERBOSE", "RORO_VERBOSE")
	_ = viper.BindEnv("agent.api_key", "CTO_AGENT_API_KEY", "ANTHROPIC_API_KEY")
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "cto")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cto-config"
	}
	return filepath.Join(home, ".config", "cto")
}

// ConfigFile returns the path to the user config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ProjectConfigFile returns the path of the project config inside root.
func ProjectConfigFile(root string) string {
	return filepath.Join(root, ProjectDirName, "config.yaml")
}

// FindProjectRoot walks up from start until it finds a directory containing
// .cto/. The error wraps errors.ErrNotInitialized when no project exists
// above start.
func FindProjectRoot(start string) (string, error) {
	current, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", start, err)
	}
	for {
		info, err := os.Stat(filepath.Join(current, ProjectDirName))
		if err == nil && info.IsDir() {
			return current, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", fmt.Errorf("%w: no %s directory found above %s", errors.ErrNotInitialized, ProjectDirName, start)
		}
		current = parent
	}
}
