package models

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by lookups for ids that do not exist.
var ErrNotFound = errors.New("not found")

// ValidationError rejects a request before it changes any state.
type ValidationError struct {
	Op     string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// Invalid builds a ValidationError with a formatted reason.
func Invalid(op, format string, args ...any) error {
	return &ValidationError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// ResolutionError reports that a bound target or staged item vanished
// between task creation and execution.
type ResolutionError struct {
	TaskID string
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("task %s: %s", e.TaskID, e.Reason)
}

// ConfigurationError reports a malformed daemon rule or unknown action.
type ConfigurationError struct {
	Daemon string
	Rule   int
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("daemon %s rule %d: %s", e.Daemon, e.Rule, e.Reason)
}

// PermissionError reports a scripting call the agent is not allowed to make.
type PermissionError struct {
	Agent      string
	Permission string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("agent %q lacks permission %s", e.Agent, e.Permission)
}
