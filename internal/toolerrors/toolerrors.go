// Package toolerrors defines the tool-failure taxonomy of spec.md §7: a
// wrappable error type plus the sentinel strings the dispatcher and runner
// use to communicate specific outcomes back to the model.
package toolerrors

import (
	"errors"
	"fmt"
)

// ToolError is a tool-execution failure that may wrap a cause, mirroring
// the teacher's own recursive error-chain shape.
type ToolError struct {
	Message string
	Cause   error
}

// New constructs a ToolError with no cause.
func New(message string) *ToolError {
	return &ToolError{Message: message}
}

// Newf constructs a ToolError with a formatted message.
func Newf(format string, args ...any) *ToolError {
	return &ToolError{Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs a ToolError carrying cause, supporting errors.Is/As
// across the chain via Unwrap.
func Wrap(message string, cause error) *ToolError {
	return &ToolError{Message: message, Cause: cause}
}

func (e *ToolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Cause.Error())
	}
	return e.Message
}

func (e *ToolError) Unwrap() error { return e.Cause }

// Terminate is the distinguished sentinel the child-only task_finish tool
// raises after recording its summary (spec.md §4.8, §7 item 6). The runner
// catches it exactly once per tool-call step.
var Terminate = errors.New("task_finish: terminate")

// Rejected formats the sentinel string a gated tool must return when the
// user declines approval (spec.md §4.6).
func Rejected(operation string) string {
	return fmt.Sprintf("User rejected the %s", operation)
}

// UnknownTool formats the dispatcher's not-found error (spec.md §4.6).
func UnknownTool(name string) string {
	return fmt.Sprintf("Unknown tool '%s'", name)
}

// NotAvailableForSubAgents formats the dispatcher's wrong-set error when a
// root-only tool is invoked by a child (spec.md §4.6).
func NotAvailableForSubAgents(name string) string {
	return fmt.Sprintf("Tool '%s' is not available for sub-agents", name)
}

// OnlyAvailableForSubAgents formats the dispatcher's wrong-set error when a
// child-only tool is invoked by a root agent (spec.md §4.6).
func OnlyAvailableForSubAgents(name string) string {
	return fmt.Sprintf("Tool '%s' is only available for sub-agents", name)
}

// AccessDenied formats the access-control error string returned to the
// model when a tool's target falls outside allowedPaths (spec.md §7 item 5).
func AccessDenied(target string) string {
	return fmt.Sprintf("Access denied: %q is outside the agent's allowed paths", target)
}
