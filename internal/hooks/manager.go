package hooks

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Manager manages hook registration and execution.
type Manager struct {
	registry *Registry
	executor *Executor
}

// NewManager creates a new hook manager.
func NewManager() *Manager {
	return &Manager{
		registry: NewRegistry(),
		executor: NewExecutor(),
	}
}

// ManagerOption configures the manager.
type ManagerOption func(*Manager)

// WithRegistry sets a custom registry.
func WithRegistry(r *Registry) ManagerOption {
	return func(m *Manager) {
		m.registry = r
	}
}

// WithExecutor sets a custom executor.
func WithExecutor(e *Executor) ManagerOption {
	return func(m *Manager) {
		m.executor = e
	}
}

// NewManagerWithOptions creates a new hook manager with options.
func NewManagerWithOptions(opts ...ManagerOption) *Manager {
	m := NewManager()
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register registers a handler for the given hook type.
func (m *Manager) Register(hookType HookType, handler *Handler) error {
	return m.registry.Register(hookType, handler)
}

// Unregister removes a handler from the given hook type.
func (m *Manager) Unregister(hookType HookType, handlerID string) error {
	return m.registry.Unregister(hookType, handlerID)
}

// SetJSRuntime wires the JavaScript runtime used for script handlers.
func (m *Manager) SetJSRuntime(js JSExecutor) {
	m.executor.SetJSRuntime(js)
}

// Trigger triggers a hook and returns the merged chain result.
func (m *Manager) Trigger(ctx context.Context, hookCtx *Context) (*Result, error) {
	if hookCtx == nil {
		return nil, ErrHookTypeInvalid
	}

	if !IsValidHookType(hookCtx.Type) {
		return nil, ErrHookTypeInvalid
	}

	handlers := m.registry.GetHandlers(hookCtx.Type)
	if len(handlers) == 0 {
		return ContinueResult(), nil
	}

	log.Debug().
		Str("hook_type", string(hookCtx.Type)).
		Int("handler_count", len(handlers)).
		Msg("triggering hook")

	return m.executor.Execute(ctx, handlers, hookCtx), nil
}

// TriggerSessionCreate triggers a session_create hook.
func (m *Manager) TriggerSessionCreate(ctx context.Context, sessionID, agentID string, createdAt time.Time) (*Result, error) {
	hookCtx := NewContext(HookSessionCreate)
	hookCtx.Session = &SessionContext{
		ID:        sessionID,
		AgentID:   agentID,
		CreatedAt: createdAt,
	}
	return m.Trigger(ctx, hookCtx)
}

// TriggerSessionEnd triggers a session_end hook.
func (m *Manager) TriggerSessionEnd(ctx context.Context, sessionID string) (*Result, error) {
	hookCtx := NewContext(HookSessionEnd)
	hookCtx.Session = &SessionContext{ID: sessionID}
	return m.Trigger(ctx, hookCtx)
}

// TriggerStartup triggers a startup hook.
func (m *Manager) TriggerStartup(ctx context.Context) (*Result, error) {
	return m.Trigger(ctx, NewContext(HookStartup))
}

// TriggerShutdown triggers a shutdown hook.
func (m *Manager) TriggerShutdown(ctx context.Context) (*Result, error) {
	return m.Trigger(ctx, NewContext(HookShutdown))
}

// ListHandlers returns all handlers for the given hook type.
func (m *Manager) ListHandlers(hookType HookType) []*Handler {
	return m.registry.GetHandlers(hookType)
}

// AllHandlers returns all registered handlers grouped by hook type.
func (m *Manager) AllHandlers() map[HookType][]*Handler {
	return m.registry.GetAllHandlers()
}

// HasHandlers returns true if there are any handlers for the given hook type.
func (m *Manager) HasHandlers(hookType HookType) bool {
	return m.registry.HasHandlers(hookType)
}

// Clear removes all registered handlers.
func (m *Manager) Clear() {
	m.registry.Clear()
}

// Close releases resources.
func (m *Manager) Close() error {
	m.registry.Clear()
	return nil
}
