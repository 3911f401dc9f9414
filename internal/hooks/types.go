// Package hooks provides the hook system for the steward runtime.
// Hooks intercept tool-call and session lifecycle points: they can block a
// tool call, rewrite its arguments, or annotate its result.
package hooks

import (
	"context"
	"time"
)

// HookType represents the type of hook event.
type HookType string

// Hook type constants.
const (
	// Tool call lifecycle
	HookBeforeToolCall HookType = "before_tool_call"
	HookAfterToolCall  HookType = "after_tool_call"

	// Session lifecycle
	HookSessionCreate HookType = "session_create"
	HookSessionEnd    HookType = "session_end"

	// Runtime lifecycle
	HookStartup  HookType = "startup"
	HookShutdown HookType = "shutdown"
)

// AllHookTypes returns all supported hook types.
func AllHookTypes() []HookType {
	return []HookType{
		HookBeforeToolCall,
		HookAfterToolCall,
		HookSessionCreate,
		HookSessionEnd,
		HookStartup,
		HookShutdown,
	}
}

// IsValidHookType checks if the given type is a valid hook type.
func IsValidHookType(t HookType) bool {
	for _, ht := range AllHookTypes() {
		if ht == t {
			return true
		}
	}
	return false
}

// HandlerFunc is the function signature for hook handlers.
type HandlerFunc func(ctx context.Context, hookCtx *Context) (*Result, error)

// Handler represents a registered hook handler.
type Handler struct {
	ID          string      `json:"id"`
	Priority    int         `json:"priority"`              // Higher = earlier execution, default 0
	Source      string      `json:"source"`                // "builtin" | config source
	Handler     HandlerFunc `json:"-"`                     // The actual handler function
	Description string      `json:"description,omitempty"` // Human-readable description
	Enabled     bool        `json:"enabled"`               // Whether the handler is enabled
	ScriptPath  string      `json:"script_path,omitempty"` // Path to external script handler
}

// Context represents the context passed to hook handlers.
// Handlers receive copies of mutable payloads, never live scheduler state.
type Context struct {
	Type      HookType  `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// Optional context (populated based on HookType)
	Session  *SessionContext  `json:"session,omitempty"`
	ToolCall *ToolCallContext `json:"tool_call,omitempty"`

	// Custom data passing between handlers
	Data map[string]any `json:"data,omitempty"`
}

// SessionContext contains session-related context.
type SessionContext struct {
	ID        string         `json:"id"`
	AgentID   string         `json:"agent_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ToolCallContext contains tool call-related context.
type ToolCallContext struct {
	ID       string         `json:"id"`
	ToolName string         `json:"tool_name"`
	Params   map[string]any `json:"params"`
	Result   any            `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`
	Duration time.Duration  `json:"duration,omitempty"`
}

// Result represents the result returned by a hook handler.
type Result struct {
	Continue bool           `json:"continue"`       // Whether to continue executing subsequent handlers
	Modified bool           `json:"modified"`       // Whether the context was modified
	Data     map[string]any `json:"data,omitempty"` // Modified data
	Error    error          `json:"-"`              // Error information (not serialized)
}

// Well-known Data keys consumed by the tool-call mediation layer.
const (
	// DataKeyAction routes a before_tool_call decision: "allow", "block", "ask".
	DataKeyAction = "tool_call_action"
	// DataKeyReason carries a human-readable block/ask reason.
	DataKeyReason = "reason"
	// DataKeyParams carries rewritten tool parameters (map[string]any).
	DataKeyParams = "params"
	// DataKeySystemMessage carries an after_tool_call annotation message.
	DataKeySystemMessage = "system_message"
	// DataKeySuppressOutput asks the display layer to hide tool output.
	DataKeySuppressOutput = "suppress_output"
)

// ContinueResult creates a result that allows the chain to continue.
func ContinueResult() *Result {
	return &Result{Continue: true}
}

// StopResult creates a result that stops the chain execution.
func StopResult() *Result {
	return &Result{Continue: false}
}

// ModifiedResult creates a result with modified data that allows continuation.
func ModifiedResult(data map[string]any) *Result {
	return &Result{
		Continue: true,
		Modified: true,
		Data:     data,
	}
}

// ErrorResult creates a result with an error that stops the chain.
func ErrorResult(err error) *Result {
	return &Result{
		Continue: false,
		Error:    err,
	}
}

// NewContext creates a new hook context with the given type.
func NewContext(hookType HookType) *Context {
	return &Context{
		Type:      hookType,
		Timestamp: time.Now(),
		Data:      make(map[string]any),
	}
}

// WithSession adds session context to the hook context.
func (c *Context) WithSession(session *SessionContext) *Context {
	c.Session = session
	return c
}

// WithToolCall adds tool call context to the hook context.
func (c *Context) WithToolCall(toolCall *ToolCallContext) *Context {
	c.ToolCall = toolCall
	return c
}

// SetData sets a custom data value in the context.
func (c *Context) SetData(key string, value any) {
	if c.Data == nil {
		c.Data = make(map[string]any)
	}
	c.Data[key] = value
}

// GetData retrieves a custom data value from the context.
func (c *Context) GetData(key string) (any, bool) {
	if c.Data == nil {
		return nil, false
	}
	v, ok := c.Data[key]
	return v, ok
}
