package sched

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a tool call failed to produce a successful result.
type ErrorKind string

const (
	// KindUnknownTool indicates the requested tool name is not registered.
	KindUnknownTool ErrorKind = "unknown_tool"

	// KindHookBlocked indicates a before-tool hook denied the call.
	KindHookBlocked ErrorKind = "hook_blocked"

	// KindPolicyDenied indicates the approval authority denied the call.
	KindPolicyDenied ErrorKind = "policy_denied"

	// KindExecution indicates the tool capability raised an error.
	KindExecution ErrorKind = "execution_error"

	// KindCancelled indicates the batch token fired before or during execution.
	KindCancelled ErrorKind = "cancelled"

	// KindInternal indicates a fault in the scheduler itself.
	// Never silently swallowed.
	KindInternal ErrorKind = "internal_scheduler_fault"
)

// Sentinel errors for errors.Is checks against CallError kinds.
var (
	ErrUnknownTool  = errors.New("unknown tool")
	ErrHookBlocked  = errors.New("blocked by hook")
	ErrPolicyDenied = errors.New("denied by policy")
	ErrExecution    = errors.New("execution error")
	ErrCancelled    = errors.New("cancelled")
	ErrInternal     = errors.New("internal scheduler fault")

	// ErrInstanceClosed is returned when scheduling on a disposed instance.
	ErrInstanceClosed = errors.New("scheduler instance closed")
)

// sentinelFor maps each kind to its sentinel.
func sentinelFor(kind ErrorKind) error {
	switch kind {
	case KindUnknownTool:
		return ErrUnknownTool
	case KindHookBlocked:
		return ErrHookBlocked
	case KindPolicyDenied:
		return ErrPolicyDenied
	case KindExecution:
		return ErrExecution
	case KindCancelled:
		return ErrCancelled
	case KindInternal:
		return ErrInternal
	}
	return nil
}

// CallError is the terminal error attached to a failed or cancelled call.
// Message carries the block/deny reason verbatim.
type CallError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *CallError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

// Is reports whether target matches this error's kind sentinel.
func (e *CallError) Is(target error) bool {
	return target == sentinelFor(e.Kind)
}

// Unwrap returns the underlying cause, if any.
func (e *CallError) Unwrap() error {
	return e.Cause
}

// NewCallError creates a CallError of the given kind.
func NewCallError(kind ErrorKind, message string) *CallError {
	return &CallError{Kind: kind, Message: message}
}

// WrapCallError creates a CallError wrapping an underlying cause.
func WrapCallError(kind ErrorKind, message string, cause error) *CallError {
	return &CallError{Kind: kind, Message: message, Cause: cause}
}
