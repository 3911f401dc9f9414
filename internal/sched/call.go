package sched

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"steward/internal/hooks"
	"steward/internal/policy"
	"steward/internal/tools"
)

// runCall drives one call from Scheduled to a terminal status:
// validation (registry lookup, before-hook, policy check), an optional
// approval suspension, then execution with live-output fan-out and
// after-hook annotation. It never panics the batch goroutine.
func (in *Instance) runCall(ctx context.Context, call *Call) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("call_id", call.ID()).
				Str("tool", call.Request().Name).
				Interface("panic", r).
				Msg("scheduler fault while running call")
			in.finishCall(call, &Response{
				CallID: call.ID(),
				Status: StatusError,
				Err:    NewCallError(KindInternal, fmt.Sprintf("panic: %v", r)),
			})
		}
	}()

	call.markStarted()
	call.transition(StatusValidating)

	if ctx.Err() != nil {
		in.finishCall(call, cancelledResponse(call))
		return
	}

	tool, err := in.deps.Tools.Resolve(call.Request().Name)
	if err != nil {
		in.finishCall(call, errorResponse(call, KindUnknownTool,
			fmt.Sprintf("tool %q is not registered", call.Request().Name)))
		return
	}
	call.bindTool(tool)

	needApproval := false
	approvalReason := ""

	if in.deps.Hooks != nil {
		decision := in.deps.Hooks.MediateBeforeToolCall(ctx, call.ID(), call.Request().Name, call.currentArgs())
		switch decision.Action {
		case hooks.ActionBlock:
			in.finishCall(call, errorResponse(call, KindHookBlocked, decision.Reason))
			return
		case hooks.ActionAsk:
			needApproval = true
			approvalReason = decision.Reason
		}
		if decision.Params != nil {
			call.setArgs(decision.Params)
		}
	}

	if in.deps.Policy != nil {
		verdict, err := in.deps.Policy.Check(ctx, in.policyCall(call))
		if err != nil {
			in.finishCall(call, &Response{
				CallID:  call.ID(),
				Status:  StatusError,
				Content: err.Error(),
				Err:     WrapCallError(KindPolicyDenied, err.Error(), err),
			})
			return
		}
		if !verdict.Allowed {
			in.finishCall(call, errorResponse(call, KindPolicyDenied, verdict.Reason))
			return
		}
		if verdict.RequireApproval {
			needApproval = true
			if approvalReason == "" {
				approvalReason = verdict.ApprovalReason
			}
		}
	}

	if needApproval {
		if !in.awaitApproval(ctx, call, approvalReason) {
			return
		}
	}

	if ctx.Err() != nil {
		in.finishCall(call, cancelledResponse(call))
		return
	}

	call.transition(StatusExecuting)
	in.execute(ctx, call, tool)
}

// awaitApproval suspends the call until the approval authority decides.
// Returns true when the call may proceed to execution; on false the call
// has already been finished.
func (in *Instance) awaitApproval(ctx context.Context, call *Call, reason string) bool {
	call.transition(StatusAwaitingApproval)

	if in.deps.Approvals == nil {
		in.finishCall(call, errorResponse(call, KindPolicyDenied,
			"approval required but no approval channel is configured"))
		return false
	}

	result, err := in.deps.Approvals.RequestApproval(ctx, in.policyCall(call), reason)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			in.finishCall(call, cancelledResponse(call))
			return false
		}
		in.finishCall(call, &Response{
			CallID:  call.ID(),
			Status:  StatusError,
			Content: err.Error(),
			Err:     WrapCallError(KindPolicyDenied, err.Error(), err),
		})
		return false
	}

	// Cancellation observed while suspended wins over a late allow.
	if ctx.Err() != nil {
		in.finishCall(call, cancelledResponse(call))
		return false
	}

	if !result.Approved {
		msg := result.Message
		if msg == "" {
			msg = fmt.Sprintf("tool call %q was not approved", call.Request().Name)
		}
		in.finishCall(call, errorResponse(call, KindPolicyDenied, msg))
		return false
	}

	if result.ModifiedArguments != "" {
		var edited map[string]any
		if err := json.Unmarshal([]byte(result.ModifiedArguments), &edited); err != nil {
			log.Warn().
				Err(err).
				Str("call_id", call.ID()).
				Msg("ignoring unparseable edited arguments from approval")
		} else {
			call.setArgs(edited)
		}
	}

	return true
}

// execute runs the bound tool, streaming incremental output when supported,
// classifies the outcome, and applies the after-hook annotation.
func (in *Instance) execute(ctx context.Context, call *Call, tool tools.Tool) {
	execCtx := tools.WithAgentID(tools.WithSessionID(ctx, in.sessionID), in.agentID)

	sink := func(chunk string) {
		call.appendOutput(chunk)
		in.publishOutput(call, chunk)
	}

	started := time.Now()
	var result tools.ToolResult
	var execErr error
	if st, ok := tool.(tools.StreamingTool); ok {
		result, execErr = st.ExecuteStreaming(execCtx, call.currentArgs(), sink)
	} else {
		result, execErr = tool.Execute(execCtx, call.currentArgs())
	}
	elapsed := time.Since(started)

	var resp *Response
	switch {
	case execErr != nil && (errors.Is(execErr, context.Canceled) || ctx.Err() != nil):
		resp = cancelledResponse(call)
	case execErr != nil:
		resp = &Response{
			CallID:  call.ID(),
			Status:  StatusError,
			Content: execErr.Error(),
			Err:     WrapCallError(KindExecution, execErr.Error(), execErr),
		}
	case result.IsError:
		resp = &Response{
			CallID:   call.ID(),
			Status:   StatusError,
			Content:  result.Content,
			Metadata: result.Metadata,
			Err:      NewCallError(KindExecution, result.Content),
		}
	default:
		resp = &Response{
			CallID:   call.ID(),
			Status:   StatusSuccess,
			Content:  result.Content,
			Metadata: result.Metadata,
		}
	}

	// After-hooks observe completed executions only, never cancellations,
	// and never change the terminal status.
	if resp.Status != StatusCancelled && in.deps.Hooks != nil {
		errMsg := ""
		if resp.Err != nil {
			errMsg = resp.Err.Message
		}
		annotation := in.deps.Hooks.MediateAfterToolCall(
			ctx, call.ID(), call.Request().Name, call.currentArgs(),
			resp.Content, errMsg, elapsed)
		resp.SystemMessage = annotation.SystemMessage
		resp.SuppressOutput = annotation.SuppressOutput
	}

	in.finishCall(call, resp)
}

// finishCall records the terminal response and writes the audit row.
// The first terminal outcome wins; later finishes are no-ops.
func (in *Instance) finishCall(call *Call, resp *Response) {
	if !call.finish(resp) {
		return
	}

	log.Debug().
		Str("call_id", call.ID()).
		Str("tool", call.Request().Name).
		Str("status", string(resp.Status)).
		Dur("duration", call.Duration()).
		Msg("tool call finished")

	if in.deps.Audit == nil {
		return
	}
	errMsg := ""
	if resp.Err != nil {
		errMsg = resp.Err.Error()
	}
	rec := ToolCallRecord{
		SessionID:  in.sessionID,
		AgentID:    call.Request().AgentID,
		CallID:     call.ID(),
		BatchID:    call.BatchID(),
		Tool:       call.Request().Name,
		Args:       marshalArgs(call.currentArgs()),
		Status:     string(resp.Status),
		Error:      errMsg,
		Duration:   call.Duration(),
		FinishedAt: time.Now(),
	}
	if err := in.deps.Audit.RecordToolCall(context.Background(), rec); err != nil {
		log.Warn().
			Err(err).
			Str("call_id", call.ID()).
			Msg("failed to write audit record")
	}
}

// policyCall builds the policy-layer view of a call. RequestID carries the
// call ID so an approval raised for this call is addressable by it.
func (in *Instance) policyCall(call *Call) *policy.ToolCall {
	return &policy.ToolCall{
		Name:          call.Request().Name,
		Arguments:     marshalArgs(call.currentArgs()),
		SessionID:     in.sessionID,
		AgentID:       call.Request().AgentID,
		RequestID:     call.ID(),
		WorkspacePath: in.deps.Workspace,
	}
}

func cancelledResponse(call *Call) *Response {
	return &Response{
		CallID:  call.ID(),
		Status:  StatusCancelled,
		Content: "tool call cancelled",
		Err:     NewCallError(KindCancelled, "tool call cancelled"),
	}
}

func errorResponse(call *Call, kind ErrorKind, message string) *Response {
	return &Response{
		CallID:  call.ID(),
		Status:  StatusError,
		Content: message,
		Err:     NewCallError(kind, message),
	}
}

func marshalArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}
