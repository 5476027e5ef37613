package config

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "sprint.max_iterations")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ticketPrefixRegex: uppercase letters and digits, starting with a letter
var ticketPrefixRegex = regexp.MustCompile(`^[A-Z][A-Z0-9]*$`)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidAgentBackends returns the list of valid agent backends
func ValidAgentBackends() []string {
	return []string{"cli", "api"}
}

// ValidStorageBackends returns the list of valid record store backends
func ValidStorageBackends() []string {
	return []string{"file", "sqlite"}
}

// ValidComplexities returns the ticket complexity scale
func ValidComplexities() []string {
	return []string{"XS", "S", "M", "L", "XL"}
}

// ValidReviewFailureActions returns what a failed review may do to a ticket
func ValidReviewFailureActions() []string {
	return []string{"keep", "approve", "reject"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateProject()...)
	errors = append(errors, c.validateSprint()...)
	errors = append(errors, c.validateReview()...)
	errors = append(errors, c.validateAgent()...)
	errors = append(errors, c.validateTeam()...)
	errors = append(errors, c.validateEvents()...)
	errors = append(errors, c.validateStorage()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateProject() []ValidationError {
	if !ticketPrefixRegex.MatchString(c.Project.TicketPrefix) {
		return []ValidationError{{
			Field:   "project.ticket_prefix",
			Value:   c.Project.TicketPrefix,
			Message: "must be uppercase letters and digits, starting with a letter",
		}}
	}
	return nil
}

func (c *Config) validateSprint() []ValidationError {
	var errors []ValidationError

	if c.Sprint.MaxIterations < 1 {
		errors = append(errors, ValidationError{
			Field:   "sprint.max_iterations",
			Value:   c.Sprint.MaxIterations,
			Message: "must be at least 1",
		})
	}
	if c.Sprint.ReviewBatch < 1 {
		errors = append(errors, ValidationError{
			Field:   "sprint.review_batch",
			Value:   c.Sprint.ReviewBatch,
			Message: "must be at least 1",
		})
	}
	if c.Sprint.WaitSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "sprint.wait_seconds",
			Value:   c.Sprint.WaitSeconds,
			Message: "must not be negative",
		})
	}

	return errors
}

func (c *Config) validateAgent() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidAgentBackends(), c.Agent.Backend) {
		errors = append(errors, ValidationError{
			Field:   "agent.backend",
			Value:   c.Agent.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidAgentBackends(), ", ")),
		})
	}
	if c.Agent.Backend == "cli" && strings.TrimSpace(c.Agent.Command) == "" {
		errors = append(errors, ValidationError{
			Field:   "agent.command",
			Value:   c.Agent.Command,
			Message: "must not be empty when agent.backend is cli",
		})
	}
	if c.Agent.TimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "agent.timeout_seconds",
			Value:   c.Agent.TimeoutSeconds,
			Message: "must be positive",
		})
	}
	if c.Agent.MeeseeksTimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "agent.meeseeks_timeout_seconds",
			Value:   c.Agent.MeeseeksTimeoutSeconds,
			Message: "must be positive",
		})
	}

	return errors
}

func (c *Config) validateTeam() []ValidationError {
	var errors []ValidationError

	const maxParallelLimit = 32
	if c.Team.MaxParallel < 1 || c.Team.MaxParallel > maxParallelLimit {
		errors = append(errors, ValidationError{
			Field:   "team.max_parallel",
			Value:   c.Team.MaxParallel,
			Message: fmt.Sprintf("must be between 1 and %d", maxParallelLimit),
		})
	}
	if c.Team.MemberTimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "team.member_timeout_seconds",
			Value:   c.Team.MemberTimeoutSeconds,
			Message: "must be positive",
		})
	}
	for i, cx := range c.Team.AutoComplexities {
		if !slices.Contains(ValidComplexities(), cx) {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("team.auto_complexities[%d]", i),
				Value:   cx,
				Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidComplexities(), ", ")),
			})
		}
	}

	return errors
}

func (c *Config) validateEvents() []ValidationError {
	var errors []ValidationError

	if !c.Events.Enabled {
		return nil
	}

	if u, err := url.Parse(c.Events.Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "events.endpoint",
			Value:   c.Events.Endpoint,
			Message: "must be an http(s) URL",
		})
	}
	if c.Events.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "events.timeout",
			Value:   c.Events.Timeout,
			Message: "must be positive",
		})
	}
	if c.Events.Workers < 1 {
		errors = append(errors, ValidationError{
			Field:   "events.workers",
			Value:   c.Events.Workers,
			Message: "must be at least 1",
		})
	}
	if c.Events.QueueSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "events.queue_size",
			Value:   c.Events.QueueSize,
			Message: "must be at least 1",
		})
	}
	if c.Events.FailureThreshold < 1 {
		errors = append(errors, ValidationError{
			Field:   "events.failure_threshold",
			Value:   c.Events.FailureThreshold,
			Message: "must be at least 1",
		})
	}
	if c.Events.CooldownSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "events.cooldown_seconds",
			Value:   c.Events.CooldownSeconds,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateReview() []ValidationError {
	if !slices.Contains(ValidReviewFailureActions(), c.Review.OnFailure) {
		return []ValidationError{{
			Field:   "review.on_failure",
			Value:   c.Review.OnFailure,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidReviewFailureActions(), ", ")),
		}}
	}
	return nil
}

func (c *Config) validateStorage() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidStorageBackends(), c.Storage.Backend) {
		errors = append(errors, ValidationError{
			Field:   "storage.backend",
			Value:   c.Storage.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidStorageBackends(), ", ")),
		})
	}
	if c.Storage.Backend == "sqlite" && c.Storage.SQLitePath == "" {
		errors = append(errors, ValidationError{
			Field:   "storage.sqlite_path",
			Value:   c.Storage.SQLitePath,
			Message: "must not be empty when storage.backend is sqlite",
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		return []ValidationError{{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		}}
	}
	return nil
}
