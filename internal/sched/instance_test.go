package sched

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"steward/internal/hooks"
	"steward/internal/policy"
	"steward/internal/policy/approval"
	"steward/internal/pubsub"
	"steward/internal/tools"
)

// countingTool counts executions and remembers the last arguments it saw.
// When gate is set, Execute blocks until the gate closes or ctx fires.
type countingTool struct {
	tools.BaseTool

	mu       sync.Mutex
	calls    int
	lastArgs map[string]any

	result tools.ToolResult
	err    error
	gate   chan struct{}
	delay  time.Duration
}

func newCountingTool(name string) *countingTool {
	return &countingTool{
		BaseTool: tools.BaseTool{ToolName: name, ToolDescription: "test tool"},
		result:   tools.NewSuccessResult("done"),
	}
}

func (t *countingTool) Execute(ctx context.Context, args map[string]any) (tools.ToolResult, error) {
	t.mu.Lock()
	t.calls++
	t.lastArgs = args
	t.mu.Unlock()

	if t.delay > 0 {
		time.Sleep(t.delay)
	}
	if t.gate != nil {
		select {
		case <-t.gate:
		case <-ctx.Done():
			return tools.ToolResult{}, ctx.Err()
		}
	}
	return t.result, t.err
}

func (t *countingTool) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

func (t *countingTool) LastArgs() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastArgs
}

// chunkTool streams fixed chunks before returning their concatenation.
type chunkTool struct {
	tools.BaseTool
	chunks []string
}

func (t *chunkTool) Execute(ctx context.Context, args map[string]any) (tools.ToolResult, error) {
	return t.ExecuteStreaming(ctx, args, func(string) {})
}

func (t *chunkTool) ExecuteStreaming(ctx context.Context, args map[string]any, sink tools.OutputSink) (tools.ToolResult, error) {
	full := ""
	for _, c := range t.chunks {
		sink(c)
		full += c
	}
	return tools.NewSuccessResult(full), nil
}

// stubPolicy returns a fixed verdict.
type stubPolicy struct {
	result *policy.PolicyResult
	err    error
}

func (p *stubPolicy) Check(ctx context.Context, call *policy.ToolCall) (*policy.PolicyResult, error) {
	return p.result, p.err
}

// stubApprover resolves approvals without an operator. When gate is set,
// RequestApproval blocks until the gate closes or ctx fires.
type stubApprover struct {
	approve  bool
	message  string
	modified string
	gate     chan struct{}

	mu       sync.Mutex
	requests int
}

func (a *stubApprover) RequestApproval(ctx context.Context, call *policy.ToolCall, reason string) (*approval.ApprovalResult, error) {
	a.mu.Lock()
	a.requests++
	a.mu.Unlock()

	if a.gate != nil {
		select {
		case <-a.gate:
		case <-ctx.Done():
			return &approval.ApprovalResult{Approved: false, Decision: approval.DecisionRejected}, ctx.Err()
		}
	}
	decision := approval.DecisionRejected
	if a.approve {
		decision = approval.DecisionApproved
	}
	return &approval.ApprovalResult{
		Approved:          a.approve,
		Message:           a.message,
		ModifiedArguments: a.modified,
		Decision:          decision,
	}, nil
}

func (a *stubApprover) HandleResponse(requestID string, approved bool, message string, modifiedArguments ...string) error {
	return nil
}

func (a *stubApprover) GetPending(requestID string) (*approval.ApprovalRequest, bool) { return nil, false }

func (a *stubApprover) ListPending() []*approval.ApprovalRequest { return nil }

// completionRecorder collects batch-complete callbacks.
type completionRecorder struct {
	mu     sync.Mutex
	events []completionEvent
	ch     chan completionEvent
}

type completionEvent struct {
	instanceID string
	calls      []*Call
	isPrimary  bool
}

func newCompletionRecorder() *completionRecorder {
	return &completionRecorder{ch: make(chan completionEvent, 16)}
}

func (r *completionRecorder) fn(instanceID string, calls []*Call, isPrimary bool) {
	ev := completionEvent{instanceID: instanceID, calls: calls, isPrimary: isPrimary}
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.ch <- ev
}

func (r *completionRecorder) wait(t *testing.T) completionEvent {
	t.Helper()
	select {
	case ev := <-r.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch completion")
		return completionEvent{}
	}
}

func (r *completionRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func newTestInstance(t *testing.T, agentID string, mutate func(*Deps)) (*Instance, *completionRecorder, *tools.Registry) {
	t.Helper()
	reg := tools.NewRegistry()
	rec := newCompletionRecorder()
	deps := Deps{
		Tools:           reg,
		OnBatchComplete: rec.fn,
	}
	if mutate != nil {
		mutate(&deps)
	}
	in := NewInstance("session-1", agentID, deps)
	in.MarkReady()
	t.Cleanup(in.Close)
	return in, rec, reg
}

func TestInstance_BatchCompletesOnceInSubmissionOrder(t *testing.T) {
	in, rec, reg := newTestInstance(t, PrimaryAgentID, nil)

	slow := newCountingTool("slow")
	slow.delay = 50 * time.Millisecond
	fast := newCountingTool("fast")
	require.NoError(t, reg.Register(slow))
	require.NoError(t, reg.Register(fast))

	require.NoError(t, in.Schedule(context.Background(), []Request{
		{CallID: "c1", Name: "slow"},
		{CallID: "c2", Name: "fast"},
	}))

	ev := rec.wait(t)
	require.Len(t, ev.calls, 2)
	assert.Equal(t, "c1", ev.calls[0].ID())
	assert.Equal(t, "c2", ev.calls[1].ID())
	assert.Equal(t, StatusSuccess, ev.calls[0].Status())
	assert.Equal(t, StatusSuccess, ev.calls[1].Status())
	assert.True(t, ev.isPrimary)

	// Completed calls leave the tracked set; no second event arrives.
	assert.Equal(t, 0, in.TrackedCount())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestInstance_DefaultAgentIDStamped(t *testing.T) {
	in, rec, reg := newTestInstance(t, PrimaryAgentID, nil)
	require.NoError(t, reg.Register(newCountingTool("echo")))

	require.NoError(t, in.Schedule(context.Background(), []Request{{CallID: "c1", Name: "echo"}}))

	ev := rec.wait(t)
	require.Len(t, ev.calls, 1)
	assert.Equal(t, PrimaryAgentID, ev.calls[0].Request().AgentID)
}

func TestInstance_DuplicateCallIDDroppedSilently(t *testing.T) {
	in, rec, reg := newTestInstance(t, PrimaryAgentID, nil)

	gated := newCountingTool("gated")
	gated.gate = make(chan struct{})
	require.NoError(t, reg.Register(gated))

	require.NoError(t, in.Schedule(context.Background(), []Request{{CallID: "dup", Name: "gated"}}))
	require.Eventually(t, func() bool { return in.TrackedCount() == 1 }, time.Second, 5*time.Millisecond)

	// A second batch carrying only the live call ID vanishes: no call, no event.
	require.NoError(t, in.Schedule(context.Background(), []Request{{CallID: "dup", Name: "gated"}}))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, in.TrackedCount())
	assert.Equal(t, 0, rec.count())

	close(gated.gate)
	ev := rec.wait(t)
	require.Len(t, ev.calls, 1)
	assert.Equal(t, 1, gated.Calls())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestInstance_DuplicateWithinOneBatch(t *testing.T) {
	in, rec, reg := newTestInstance(t, PrimaryAgentID, nil)
	echo := newCountingTool("echo")
	require.NoError(t, reg.Register(echo))

	require.NoError(t, in.Schedule(context.Background(), []Request{
		{CallID: "same", Name: "echo"},
		{CallID: "same", Name: "echo"},
	}))

	ev := rec.wait(t)
	assert.Len(t, ev.calls, 1)
	assert.Equal(t, 1, echo.Calls())
}

func TestInstance_EmptyBatchNoEvent(t *testing.T) {
	in, rec, _ := newTestInstance(t, PrimaryAgentID, nil)

	require.NoError(t, in.Schedule(context.Background(), nil))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
	assert.Equal(t, 0, in.TrackedCount())
}

func TestInstance_UnknownTool(t *testing.T) {
	in, rec, _ := newTestInstance(t, PrimaryAgentID, nil)

	require.NoError(t, in.Schedule(context.Background(), []Request{{CallID: "c1", Name: "missing"}}))

	ev := rec.wait(t)
	require.Len(t, ev.calls, 1)
	resp := ev.calls[0].Response()
	require.NotNil(t, resp)
	assert.Equal(t, StatusError, resp.Status)
	assert.ErrorIs(t, resp.Err, ErrUnknownTool)
}

func TestInstance_HookBlocksBeforeExecution(t *testing.T) {
	hookMgr := hooks.NewManager()
	require.NoError(t, hookMgr.Register(hooks.HookBeforeToolCall, &hooks.Handler{
		ID:      "deny-shell",
		Enabled: true,
		Handler: func(ctx context.Context, hookCtx *hooks.Context) (*hooks.Result, error) {
			r := hooks.StopResult()
			r.Data = map[string]any{hooks.DataKeyReason: "shell disabled in this workspace"}
			return r, nil
		},
	}))

	in, rec, reg := newTestInstance(t, PrimaryAgentID, func(d *Deps) { d.Hooks = hookMgr })
	shell := newCountingTool("shell")
	require.NoError(t, reg.Register(shell))

	require.NoError(t, in.Schedule(context.Background(), []Request{{CallID: "c1", Name: "shell"}}))

	ev := rec.wait(t)
	resp := ev.calls[0].Response()
	require.NotNil(t, resp)
	assert.Equal(t, StatusError, resp.Status)
	assert.ErrorIs(t, resp.Err, ErrHookBlocked)
	assert.Equal(t, "shell disabled in this workspace", resp.Err.Message)
	assert.Equal(t, 0, shell.Calls())
}

func TestInstance_HookRewritesArguments(t *testing.T) {
	hookMgr := hooks.NewManager()
	require.NoError(t, hookMgr.Register(hooks.HookBeforeToolCall, &hooks.Handler{
		ID:      "rewrite",
		Enabled: true,
		Handler: func(ctx context.Context, hookCtx *hooks.Context) (*hooks.Result, error) {
			params := hookCtx.ToolCall.Params
			params["command"] = "ls -la"
			return hooks.ModifiedResult(map[string]any{hooks.DataKeyParams: params}), nil
		},
	}))

	in, rec, reg := newTestInstance(t, PrimaryAgentID, func(d *Deps) { d.Hooks = hookMgr })
	shell := newCountingTool("shell")
	require.NoError(t, reg.Register(shell))

	require.NoError(t, in.Schedule(context.Background(), []Request{
		{CallID: "c1", Name: "shell", Args: map[string]any{"command": "ls"}},
	}))

	ev := rec.wait(t)
	assert.Equal(t, StatusSuccess, ev.calls[0].Status())
	assert.Equal(t, "ls -la", shell.LastArgs()["command"])
}

func TestInstance_AfterHookAnnotatesWithoutChangingStatus(t *testing.T) {
	hookMgr := hooks.NewManager()
	require.NoError(t, hookMgr.Register(hooks.HookAfterToolCall, &hooks.Handler{
		ID:      "annotate",
		Enabled: true,
		Handler: func(ctx context.Context, hookCtx *hooks.Context) (*hooks.Result, error) {
			return hooks.ModifiedResult(map[string]any{
				hooks.DataKeySystemMessage:  "output truncated to 4KB",
				hooks.DataKeySuppressOutput: true,
			}), nil
		},
	}))

	in, rec, reg := newTestInstance(t, PrimaryAgentID, func(d *Deps) { d.Hooks = hookMgr })
	require.NoError(t, reg.Register(newCountingTool("echo")))

	require.NoError(t, in.Schedule(context.Background(), []Request{{CallID: "c1", Name: "echo"}}))

	ev := rec.wait(t)
	resp := ev.calls[0].Response()
	require.NotNil(t, resp)
	assert.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, "done", resp.Content)
	assert.Equal(t, "output truncated to 4KB", resp.SystemMessage)
	assert.True(t, resp.SuppressOutput)
}

func TestInstance_PolicyDeniedReasonVerbatim(t *testing.T) {
	in, rec, reg := newTestInstance(t, PrimaryAgentID, func(d *Deps) {
		d.Policy = &stubPolicy{result: &policy.PolicyResult{
			Allowed: false,
			Reason:  "tool 'shell' is blocked by policy",
		}}
	})
	shell := newCountingTool("shell")
	require.NoError(t, reg.Register(shell))

	require.NoError(t, in.Schedule(context.Background(), []Request{{CallID: "c1", Name: "shell"}}))

	ev := rec.wait(t)
	resp := ev.calls[0].Response()
	require.NotNil(t, resp)
	assert.ErrorIs(t, resp.Err, ErrPolicyDenied)
	assert.Equal(t, "tool 'shell' is blocked by policy", resp.Err.Message)
	assert.Equal(t, 0, shell.Calls())
}

func TestInstance_ApprovalGranted(t *testing.T) {
	approver := &stubApprover{approve: true}
	in, rec, reg := newTestInstance(t, PrimaryAgentID, func(d *Deps) {
		d.Policy = &stubPolicy{result: &policy.PolicyResult{
			Allowed:         true,
			RequireApproval: true,
			ApprovalReason:  "sudo requires approval",
		}}
		d.Approvals = approver
	})
	shell := newCountingTool("shell")
	require.NoError(t, reg.Register(shell))

	require.NoError(t, in.Schedule(context.Background(), []Request{{CallID: "c1", Name: "shell"}}))

	ev := rec.wait(t)
	assert.Equal(t, StatusSuccess, ev.calls[0].Status())
	assert.Equal(t, 1, shell.Calls())
	approver.mu.Lock()
	assert.Equal(t, 1, approver.requests)
	approver.mu.Unlock()
}

func TestInstance_ApprovalDeniedReasonVerbatim(t *testing.T) {
	in, rec, reg := newTestInstance(t, PrimaryAgentID, func(d *Deps) {
		d.Policy = &stubPolicy{result: &policy.PolicyResult{Allowed: true, RequireApproval: true}}
		d.Approvals = &stubApprover{approve: false, message: "operator said no"}
	})
	shell := newCountingTool("shell")
	require.NoError(t, reg.Register(shell))

	require.NoError(t, in.Schedule(context.Background(), []Request{{CallID: "c1", Name: "shell"}}))

	ev := rec.wait(t)
	resp := ev.calls[0].Response()
	require.NotNil(t, resp)
	assert.ErrorIs(t, resp.Err, ErrPolicyDenied)
	assert.Equal(t, "operator said no", resp.Err.Message)
	assert.Equal(t, 0, shell.Calls())
}

func TestInstance_ApprovalEditedArguments(t *testing.T) {
	in, rec, reg := newTestInstance(t, PrimaryAgentID, func(d *Deps) {
		d.Policy = &stubPolicy{result: &policy.PolicyResult{Allowed: true, RequireApproval: true}}
		d.Approvals = &stubApprover{approve: true, modified: `{"command": "rm -rf /tmp/scratch"}`}
	})
	shell := newCountingTool("shell")
	require.NoError(t, reg.Register(shell))

	require.NoError(t, in.Schedule(context.Background(), []Request{
		{CallID: "c1", Name: "shell", Args: map[string]any{"command": "rm -rf /"}},
	}))

	ev := rec.wait(t)
	assert.Equal(t, StatusSuccess, ev.calls[0].Status())
	assert.Equal(t, "rm -rf /tmp/scratch", shell.LastArgs()["command"])
}

func TestInstance_ApprovalRequiredWithoutChannel(t *testing.T) {
	in, rec, reg := newTestInstance(t, PrimaryAgentID, func(d *Deps) {
		d.Policy = &stubPolicy{result: &policy.PolicyResult{Allowed: true, RequireApproval: true}}
	})
	require.NoError(t, reg.Register(newCountingTool("shell")))

	require.NoError(t, in.Schedule(context.Background(), []Request{{CallID: "c1", Name: "shell"}}))

	ev := rec.wait(t)
	resp := ev.calls[0].Response()
	require.NotNil(t, resp)
	assert.ErrorIs(t, resp.Err, ErrPolicyDenied)
}

func TestInstance_CancelWhileAwaitingApproval(t *testing.T) {
	approver := &stubApprover{approve: true, gate: make(chan struct{})}
	in, rec, reg := newTestInstance(t, PrimaryAgentID, func(d *Deps) {
		d.Policy = &stubPolicy{result: &policy.PolicyResult{Allowed: true, RequireApproval: true}}
		d.Approvals = approver
	})
	shell := newCountingTool("shell")
	require.NoError(t, reg.Register(shell))

	require.NoError(t, in.Schedule(context.Background(), []Request{{CallID: "c1", Name: "shell"}}))

	require.Eventually(t, func() bool {
		c, ok := in.TrackedCall("c1")
		return ok && c.Status() == StatusAwaitingApproval
	}, time.Second, 5*time.Millisecond)

	in.CancelAll()

	ev := rec.wait(t)
	resp := ev.calls[0].Response()
	require.NotNil(t, resp)
	assert.Equal(t, StatusCancelled, resp.Status)
	assert.ErrorIs(t, resp.Err, ErrCancelled)
	assert.Equal(t, 0, shell.Calls())
}

func TestInstance_CancelDuringExecution(t *testing.T) {
	in, rec, reg := newTestInstance(t, PrimaryAgentID, nil)
	gated := newCountingTool("gated")
	gated.gate = make(chan struct{})
	require.NoError(t, reg.Register(gated))

	require.NoError(t, in.Schedule(context.Background(), []Request{{CallID: "c1", Name: "gated"}}))
	require.Eventually(t, func() bool {
		c, ok := in.TrackedCall("c1")
		return ok && c.Status() == StatusExecuting
	}, time.Second, 5*time.Millisecond)

	in.CancelAll()

	ev := rec.wait(t)
	assert.Equal(t, StatusCancelled, ev.calls[0].Status())
}

func TestInstance_CancellationScopedToBatch(t *testing.T) {
	in, rec, reg := newTestInstance(t, PrimaryAgentID, nil)

	doomed := newCountingTool("doomed")
	doomed.gate = make(chan struct{})
	survivor := newCountingTool("survivor")
	survivor.gate = make(chan struct{})
	require.NoError(t, reg.Register(doomed))
	require.NoError(t, reg.Register(survivor))

	ctx1, cancel1 := context.WithCancel(context.Background())
	defer cancel1()
	require.NoError(t, in.Schedule(ctx1, []Request{{CallID: "b1", Name: "doomed"}}))
	require.NoError(t, in.Schedule(context.Background(), []Request{{CallID: "b2", Name: "survivor"}}))

	require.Eventually(t, func() bool { return in.TrackedCount() == 2 }, time.Second, 5*time.Millisecond)

	cancel1()
	ev := rec.wait(t)
	require.Len(t, ev.calls, 1)
	assert.Equal(t, "b1", ev.calls[0].ID())
	assert.Equal(t, StatusCancelled, ev.calls[0].Status())

	close(survivor.gate)
	ev = rec.wait(t)
	require.Len(t, ev.calls, 1)
	assert.Equal(t, "b2", ev.calls[0].ID())
	assert.Equal(t, StatusSuccess, ev.calls[0].Status())
}

func TestInstance_ExecutionErrorResult(t *testing.T) {
	in, rec, reg := newTestInstance(t, PrimaryAgentID, nil)
	failing := newCountingTool("failing")
	failing.result = tools.NewErrorResult("exit status 1")
	require.NoError(t, reg.Register(failing))

	require.NoError(t, in.Schedule(context.Background(), []Request{{CallID: "c1", Name: "failing"}}))

	ev := rec.wait(t)
	resp := ev.calls[0].Response()
	require.NotNil(t, resp)
	assert.Equal(t, StatusError, resp.Status)
	assert.ErrorIs(t, resp.Err, ErrExecution)
	assert.Equal(t, "exit status 1", resp.Content)
}

func TestInstance_StreamingOutputFanOut(t *testing.T) {
	in, rec, reg := newTestInstance(t, PrimaryAgentID, nil)
	require.NoError(t, reg.Register(&chunkTool{
		BaseTool: tools.BaseTool{ToolName: "streamer"},
		chunks:   []string{"hello ", "world"},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := in.SubscribeOutput(ctx)
	before := in.LastActivity()

	require.NoError(t, in.Schedule(context.Background(), []Request{{CallID: "c1", Name: "streamer"}}))

	var got string
	for len(got) < len("hello world") {
		select {
		case ev := <-events:
			assert.Equal(t, pubsub.EventUpdated, ev.Type)
			assert.Equal(t, "c1", ev.Payload.CallID)
			got += ev.Payload.Chunk
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for output chunks")
		}
	}
	assert.Equal(t, "hello world", got)

	ev := rec.wait(t)
	assert.Equal(t, "hello world", ev.calls[0].Response().Content)
	assert.Equal(t, "hello world", ev.calls[0].LiveOutput())
	assert.False(t, in.LastActivity().Before(before))
}

func TestInstance_QueuedSubmissionsReplayInOrder(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(newCountingTool("echo")))
	rec := newCompletionRecorder()

	in := NewInstance("session-1", PrimaryAgentID, Deps{Tools: reg, OnBatchComplete: rec.fn})
	defer in.Close()

	require.NoError(t, in.Schedule(context.Background(), []Request{{CallID: "first", Name: "echo"}}))
	require.NoError(t, in.Schedule(context.Background(), []Request{{CallID: "second", Name: "echo"}}))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, rec.count())

	in.MarkReady()

	ev1 := rec.wait(t)
	ev2 := rec.wait(t)
	assert.Equal(t, "first", ev1.calls[0].ID())
	assert.Equal(t, "second", ev2.calls[0].ID())
}

func TestInstance_ScheduleAfterClose(t *testing.T) {
	in, _, reg := newTestInstance(t, PrimaryAgentID, nil)
	require.NoError(t, reg.Register(newCountingTool("echo")))

	in.Close()
	err := in.Schedule(context.Background(), []Request{{CallID: "c1", Name: "echo"}})
	assert.ErrorIs(t, err, ErrInstanceClosed)
}

func TestInstance_SubagentCompletionsNotPrimary(t *testing.T) {
	var sawPrimary, sawSubagent bool
	var mu sync.Mutex
	done := make(chan struct{}, 2)

	route := func(instanceID string, calls []*Call, isPrimary bool) {
		mu.Lock()
		if isPrimary {
			sawPrimary = true
		} else {
			sawSubagent = true
		}
		mu.Unlock()
		done <- struct{}{}
	}

	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(newCountingTool("echo")))

	primary := NewInstance("session-1", PrimaryAgentID, Deps{Tools: reg, OnBatchComplete: route})
	primary.MarkReady()
	defer primary.Close()

	sub := NewInstance("session-1", "researcher", Deps{Tools: reg, OnBatchComplete: route})
	sub.MarkReady()
	defer sub.Close()

	assert.True(t, primary.IsPrimary())
	assert.False(t, sub.IsPrimary())

	require.NoError(t, sub.Schedule(context.Background(), []Request{{CallID: "s1", Name: "echo"}}))
	<-done
	mu.Lock()
	assert.False(t, sawPrimary)
	assert.True(t, sawSubagent)
	mu.Unlock()

	require.NoError(t, primary.Schedule(context.Background(), []Request{{CallID: "p1", Name: "echo"}}))
	<-done
	mu.Lock()
	assert.True(t, sawPrimary)
	mu.Unlock()
}

func TestInstance_AuditRecordWritten(t *testing.T) {
	var mu sync.Mutex
	var records []ToolCallRecord
	audit := auditFunc(func(ctx context.Context, rec ToolCallRecord) error {
		mu.Lock()
		records = append(records, rec)
		mu.Unlock()
		return nil
	})

	in, rec, reg := newTestInstance(t, PrimaryAgentID, func(d *Deps) { d.Audit = audit })
	require.NoError(t, reg.Register(newCountingTool("echo")))

	require.NoError(t, in.Schedule(context.Background(), []Request{
		{CallID: "c1", Name: "echo", Args: map[string]any{"text": "hi"}},
	}))
	rec.wait(t)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, records, 1)
	assert.Equal(t, "session-1", records[0].SessionID)
	assert.Equal(t, "c1", records[0].CallID)
	assert.Equal(t, "echo", records[0].Tool)
	assert.Equal(t, string(StatusSuccess), records[0].Status)
	assert.Contains(t, records[0].Args, `"text":"hi"`)
}

type auditFunc func(ctx context.Context, rec ToolCallRecord) error

func (f auditFunc) RecordToolCall(ctx context.Context, rec ToolCallRecord) error {
	return f(ctx, rec)
}
