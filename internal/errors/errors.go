// Package errors provides centralized error definitions and error handling utilities
// for the cto codebase. It defines domain-specific errors, semantic error types,
// error constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
// The package provides two categories of errors:
//
// Domain-specific errors represent errors from specific subsystems:
//   - TicketError: errors related to ticket records and their state machine
//   - TeamError: errors related to teams, members and coordination
//   - AgentError: failures of an external agent invocation (exit code, timeout)
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input or state
//   - TimeoutError: operation timed out, retryable
//
// # Usage
//
// Creating errors:
//
//	// Domain-specific error
//	err := errors.NewTicketError("cannot assign", errors.ErrInvalidTransition).WithTicketID("CTO-004")
//
//	// Semantic error
//	err := errors.NewNotFoundError("ticket", "CTO-001")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrTicketNotFound) { ... }
//
//	var agentErr *errors.AgentError
//	if errors.As(err, &agentErr) { ... }
//
// # Error Classification
//
// Errors can be classified by severity and behavior:
//   - Retryable: transient errors that may succeed on retry (webhook delivery)
//   - UserFacing: errors safe to display to users (vs internal errors)
//   - Severity: Debug, Info, Warning, Error, Critical (the CLI exit status)
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Ticket-related sentinel errors
var (
	// ErrTicketNotFound indicates that a ticket could not be found.
	ErrTicketNotFound = New("ticket not found")
	// ErrInvalidTransition indicates a ticket status change the state machine forbids.
	ErrInvalidTransition = New("invalid status transition")
	// ErrDependencyCycle indicates a circular dependency between tickets.
	ErrDependencyCycle = New("dependency cycle detected")
	// ErrNotInitialized indicates that no .cto project directory was found.
	ErrNotInitialized = New("project not initialized")
)

// Team-related sentinel errors
var (
	// ErrTeamNotFound indicates that a team could not be found.
	ErrTeamNotFound = New("team not found")
	// ErrUnknownTemplate indicates that a team template name is not registered.
	ErrUnknownTemplate = New("unknown team template")
	// ErrMemberNotFound indicates that a role is not a member of the team.
	ErrMemberNotFound = New("team member not found")
	// ErrReservationConflict indicates that files are reserved by another role.
	ErrReservationConflict = New("file reservation conflict")
)

// Agent-related sentinel errors
var (
	// ErrAgentFailed indicates that an agent process exited unsuccessfully.
	ErrAgentFailed = New("agent failed")
	// ErrAgentTimeout indicates that an agent process exceeded its timeout.
	ErrAgentTimeout = New("agent timed out")
	// ErrAgentUnavailable indicates that the agent command could not be started.
	ErrAgentUnavailable = New("agent unavailable")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// CTOError is the base interface for all cto errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type CTOError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

func prefixed(kind string, parts []string, message string, cause error) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, message, cause)
	}
	return fmt.Sprintf("%s: %s", prefix, message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// TicketError represents errors related to ticket records.
//
// Example:
//
//	err := errors.NewTicketError("cannot approve", errors.ErrInvalidTransition)
//	err = err.WithTicketID("CTO-003").WithStatus("todo")
//	fmt.Println(err) // "ticket error [ticket=CTO-003, status=todo]: cannot approve: invalid status transition"
type TicketError struct {
	baseError
	TicketID string
	Status   string
}

// NewTicketError creates a new TicketError.
func NewTicketError(message string, cause error) *TicketError {
	return &TicketError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
	}
}

// WithTicketID adds a ticket ID to the error context.
func (e *TicketError) WithTicketID(id string) *TicketError {
	e.TicketID = id
	return e
}

// WithStatus adds the ticket's current status to the error context.
func (e *TicketError) WithStatus(status string) *TicketError {
	e.Status = status
	return e
}

// WithSeverity sets the error severity.
func (e *TicketError) WithSeverity(s Severity) *TicketError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *TicketError) Error() string {
	var parts []string
	if e.TicketID != "" {
		parts = append(parts, fmt.Sprintf("ticket=%s", e.TicketID))
	}
	if e.Status != "" {
		parts = append(parts, fmt.Sprintf("status=%s", e.Status))
	}
	return prefixed("ticket error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *TicketError) Is(target error) bool {
	if _, ok := target.(*TicketError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// TeamError represents errors related to teams and their members.
//
// Example:
//
//	err := errors.NewTeamError("reserve failed", errors.ErrReservationConflict)
//	err = err.WithTeamID("TEAM-001").WithRole("backend")
type TeamError struct {
	baseError
	TeamID string
	Role   string
}

// NewTeamError creates a new TeamError.
func NewTeamError(message string, cause error) *TeamError {
	return &TeamError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
	}
}

// WithTeamID adds a team ID to the error context.
func (e *TeamError) WithTeamID(id string) *TeamError {
	e.TeamID = id
	return e
}

// WithRole adds a member role to the error context.
func (e *TeamError) WithRole(role string) *TeamError {
	e.Role = role
	return e
}

// Error returns the formatted error message.
func (e *TeamError) Error() string {
	var parts []string
	if e.TeamID != "" {
		parts = append(parts, fmt.Sprintf("team=%s", e.TeamID))
	}
	if e.Role != "" {
		parts = append(parts, fmt.Sprintf("role=%s", e.Role))
	}
	return prefixed("team error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *TeamError) Is(target error) bool {
	if _, ok := target.(*TeamError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// AgentError represents a failed agent invocation. Its message is recorded
// verbatim in ticket review notes and member summaries, so Error() renders
// the operator-facing sentence rather than the bracketed prefix format.
//
// Example:
//
//	err := errors.NewAgentExitError(2, "boom")
//	fmt.Println(err) // "Agent process exited with code 2: boom"
type AgentError struct {
	baseError
	Role     string
	ExitCode int
	Stderr   string
	Timeout  time.Duration
}

// maxStderr bounds the stderr excerpt carried by an AgentError.
const maxStderr = 500

// NewAgentExitError creates an AgentError for a non-zero process exit.
// The stderr excerpt is truncated to 500 characters.
func NewAgentExitError(code int, stderr string) *AgentError {
	excerpt := strings.TrimSpace(stderr)
	if len(excerpt) > maxStderr {
		excerpt = excerpt[:maxStderr]
	}
	if excerpt == "" {
		excerpt = "(no stderr)"
	}
	return &AgentError{
		baseError: baseError{
			message:    fmt.Sprintf("Agent process exited with code %d: %s", code, excerpt),
			cause:      ErrAgentFailed,
			severity:   SeverityError,
			userFacing: true,
		},
		ExitCode: code,
		Stderr:   excerpt,
	}
}

// NewAgentTimeoutError creates an AgentError for an invocation that ran
// past its deadline.
func NewAgentTimeoutError(timeout time.Duration) *AgentError {
	return &AgentError{
		baseError: baseError{
			message: fmt.Sprintf("Agent timed out after %ds. Consider splitting the ticket.",
				int(timeout.Seconds())),
			cause:      ErrAgentTimeout,
			severity:   SeverityWarning,
			userFacing: true,
		},
		ExitCode: -1,
		Timeout:  timeout,
	}
}

// NewAgentError creates an AgentError with a free-form message, used when
// the agent could not be started or the backend returned an error.
func NewAgentError(message string, cause error) *AgentError {
	return &AgentError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
		ExitCode: -1,
	}
}

// WithRole adds the agent role to the error context.
func (e *AgentError) WithRole(role string) *AgentError {
	e.Role = role
	return e
}

// Error returns the agent failure message.
func (e *AgentError) Error() string {
	if e.cause != nil && !errors.Is(e.cause, ErrAgentFailed) && !errors.Is(e.cause, ErrAgentTimeout) {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Is checks if this error matches the target.
func (e *AgentError) Is(target error) bool {
	if _, ok := target.(*AgentError); ok {
		return true
	}
	if e.Timeout > 0 && errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("ticket", "CTO-001")
//	fmt.Println(err) // "ticket 'CTO-001' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("unknown priority").WithField("priority").WithValue("urgent")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return prefixed("validation error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("delivering event", 2*time.Second)
//	fmt.Println(err) // "timeout error: delivering event (timeout: 2s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var ctoErr CTOError
	if As(err, &ctoErr) {
		return ctoErr.IsRetryable()
	}

	return Is(err, ErrTimeout)
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var ctoErr CTOError
	if As(err, &ctoErr) {
		return ctoErr.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement CTOError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var ctoErr CTOError
	if As(err, &ctoErr) {
		return ctoErr.Severity()
	}
	return SeverityError
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
