package hooks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMediateBeforeToolCall_NoHandlers(t *testing.T) {
	m := NewManager()

	params := map[string]any{"command": "ls"}
	decision := m.MediateBeforeToolCall(context.Background(), "call-1", "shell", params)
	assert.Equal(t, ActionAllow, decision.Action)
	assert.Equal(t, params, decision.Params)
}

func TestMediateBeforeToolCall_Block(t *testing.T) {
	m := NewManager()

	require.NoError(t, m.Register(HookBeforeToolCall, &Handler{
		ID:      "blocker",
		Enabled: true,
		Handler: func(ctx context.Context, hookCtx *Context) (*Result, error) {
			r := StopResult()
			r.Data = map[string]any{DataKeyReason: "destructive command"}
			return r, nil
		},
	}))

	decision := m.MediateBeforeToolCall(context.Background(), "call-1", "shell", map[string]any{"command": "rm -rf /"})
	assert.Equal(t, ActionBlock, decision.Action)
	assert.Equal(t, "destructive command", decision.Reason)
}

func TestMediateBeforeToolCall_BlockWithoutReason(t *testing.T) {
	m := NewManager()

	require.NoError(t, m.Register(HookBeforeToolCall, &Handler{
		ID:      "silent-blocker",
		Enabled: true,
		Handler: func(ctx context.Context, hookCtx *Context) (*Result, error) {
			return StopResult(), nil
		},
	}))

	decision := m.MediateBeforeToolCall(context.Background(), "call-1", "shell", nil)
	assert.Equal(t, ActionBlock, decision.Action)
	assert.NotEmpty(t, decision.Reason)
}

func TestMediateBeforeToolCall_Ask(t *testing.T) {
	m := NewManager()

	require.NoError(t, m.Register(HookBeforeToolCall, &Handler{
		ID:      "asker",
		Enabled: true,
		Handler: func(ctx context.Context, hookCtx *Context) (*Result, error) {
			return ModifiedResult(map[string]any{
				DataKeyAction: "ask",
				DataKeyReason: "writes outside workspace",
			}), nil
		},
	}))

	decision := m.MediateBeforeToolCall(context.Background(), "call-1", "write_file", map[string]any{"path": "/etc/hosts"})
	assert.Equal(t, ActionAsk, decision.Action)
	assert.Equal(t, "writes outside workspace", decision.Reason)
}

func TestMediateBeforeToolCall_RewritesParams(t *testing.T) {
	m := NewManager()

	require.NoError(t, m.Register(HookBeforeToolCall, &Handler{
		ID:      "rewriter",
		Enabled: true,
		Handler: func(ctx context.Context, hookCtx *Context) (*Result, error) {
			rewritten := map[string]any{"command": "ls -la"}
			return ModifiedResult(map[string]any{DataKeyParams: rewritten}), nil
		},
	}))

	original := map[string]any{"command": "ls"}
	decision := m.MediateBeforeToolCall(context.Background(), "call-1", "shell", original)
	assert.Equal(t, ActionAllow, decision.Action)
	assert.Equal(t, "ls -la", decision.Params["command"])
	// Caller's map is untouched.
	assert.Equal(t, "ls", original["command"])
}

func TestMediateBeforeToolCall_HandlerSeesCopy(t *testing.T) {
	m := NewManager()

	require.NoError(t, m.Register(HookBeforeToolCall, &Handler{
		ID:      "mutator",
		Enabled: true,
		Handler: func(ctx context.Context, hookCtx *Context) (*Result, error) {
			hookCtx.ToolCall.Params["command"] = "mutated"
			return ContinueResult(), nil
		},
	}))

	original := map[string]any{"command": "ls"}
	decision := m.MediateBeforeToolCall(context.Background(), "call-1", "shell", original)
	assert.Equal(t, ActionAllow, decision.Action)
	assert.Equal(t, "ls", original["command"])
	assert.Equal(t, "ls", decision.Params["command"])
}

func TestMediateAfterToolCall_Annotation(t *testing.T) {
	m := NewManager()

	require.NoError(t, m.Register(HookAfterToolCall, &Handler{
		ID:      "annotator",
		Enabled: true,
		Handler: func(ctx context.Context, hookCtx *Context) (*Result, error) {
			assert.Equal(t, "shell", hookCtx.ToolCall.ToolName)
			assert.Equal(t, "exit status 1", hookCtx.ToolCall.Error)
			return ModifiedResult(map[string]any{
				DataKeySystemMessage:  "command failed, consider --force",
				DataKeySuppressOutput: true,
			}), nil
		},
	}))

	ann := m.MediateAfterToolCall(context.Background(), "call-1", "shell", nil, "output", "exit status 1", time.Second)
	assert.Equal(t, "command failed, consider --force", ann.SystemMessage)
	assert.True(t, ann.SuppressOutput)
}

func TestMediateAfterToolCall_NoHandlers(t *testing.T) {
	m := NewManager()

	ann := m.MediateAfterToolCall(context.Background(), "call-1", "shell", nil, nil, "", 0)
	assert.Empty(t, ann.SystemMessage)
	assert.False(t, ann.SuppressOutput)
}

func TestMediation_MultipleAnnotatorsMerge(t *testing.T) {
	m := NewManager()

	require.NoError(t, m.Register(HookAfterToolCall, &Handler{
		ID:       "first",
		Priority: 10,
		Enabled:  true,
		Handler: func(ctx context.Context, hookCtx *Context) (*Result, error) {
			return ModifiedResult(map[string]any{DataKeySystemMessage: "first note"}), nil
		},
	}))
	require.NoError(t, m.Register(HookAfterToolCall, &Handler{
		ID:       "second",
		Priority: 5,
		Enabled:  true,
		Handler: func(ctx context.Context, hookCtx *Context) (*Result, error) {
			return ModifiedResult(map[string]any{DataKeySuppressOutput: true}), nil
		},
	}))

	ann := m.MediateAfterToolCall(context.Background(), "call-1", "shell", nil, nil, "", 0)
	assert.Equal(t, "first note", ann.SystemMessage)
	assert.True(t, ann.SuppressOutput)
}

func TestManager_TriggerInvalidType(t *testing.T) {
	m := NewManager()

	_, err := m.Trigger(context.Background(), NewContext(HookType("bogus")))
	assert.ErrorIs(t, err, ErrHookTypeInvalid)

	_, err = m.Trigger(context.Background(), nil)
	assert.Error(t, err)
}

func TestManager_SessionTriggers(t *testing.T) {
	m := NewManager()

	var created, ended bool
	require.NoError(t, m.Register(HookSessionCreate, &Handler{
		ID:      "on-create",
		Enabled: true,
		Handler: func(ctx context.Context, hookCtx *Context) (*Result, error) {
			created = true
			assert.Equal(t, "sess-1", hookCtx.Session.ID)
			assert.Equal(t, "primary", hookCtx.Session.AgentID)
			return ContinueResult(), nil
		},
	}))
	require.NoError(t, m.Register(HookSessionEnd, &Handler{
		ID:      "on-end",
		Enabled: true,
		Handler: func(ctx context.Context, hookCtx *Context) (*Result, error) {
			ended = true
			return ContinueResult(), nil
		},
	}))

	_, err := m.TriggerSessionCreate(context.Background(), "sess-1", "primary", time.Now())
	require.NoError(t, err)
	_, err = m.TriggerSessionEnd(context.Background(), "sess-1")
	require.NoError(t, err)

	assert.True(t, created)
	assert.True(t, ended)
}

func TestMediateBeforeToolCall_ErrorResultBlocks(t *testing.T) {
	m := NewManager()

	require.NoError(t, m.Register(HookBeforeToolCall, &Handler{
		ID:      "error-blocker",
		Enabled: true,
		Handler: func(ctx context.Context, hookCtx *Context) (*Result, error) {
			return ErrorResult(errors.New("policy violation")), nil
		},
	}))

	decision := m.MediateBeforeToolCall(context.Background(), "call-1", "shell", nil)
	assert.Equal(t, ActionBlock, decision.Action)
	assert.NotEmpty(t, decision.Reason)
}
