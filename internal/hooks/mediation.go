package hooks

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// DecisionAction is the outcome of before-tool-call mediation.
type DecisionAction string

const (
	// ActionAllow lets the tool call proceed, possibly with rewritten params.
	ActionAllow DecisionAction = "allow"
	// ActionBlock rejects the tool call with a reason.
	ActionBlock DecisionAction = "block"
	// ActionAsk defers the tool call to the approval flow.
	ActionAsk DecisionAction = "ask"
)

// ToolCallDecision is the mediated verdict for a pending tool call.
type ToolCallDecision struct {
	Action DecisionAction
	// Reason explains a block or ask decision. Passed through verbatim.
	Reason string
	// Params holds the (possibly rewritten) tool parameters to execute with.
	Params map[string]any
}

// ToolCallAnnotation is the mediated post-processing of a finished tool call.
type ToolCallAnnotation struct {
	// SystemMessage is appended to the tool result for the model to see.
	SystemMessage string
	// SuppressOutput hides the tool output from the user-facing display.
	SuppressOutput bool
}

// MediateBeforeToolCall runs the before_tool_call chain and folds the merged
// result into a single decision. Handlers see a copy of params, never the
// caller's map. Chain errors degrade to allow so a broken hook cannot wedge
// the scheduler.
func (m *Manager) MediateBeforeToolCall(ctx context.Context, callID, toolName string, params map[string]any) ToolCallDecision {
	decision := ToolCallDecision{Action: ActionAllow, Params: params}

	if !m.HasHandlers(HookBeforeToolCall) {
		return decision
	}

	hookCtx := NewContext(HookBeforeToolCall)
	hookCtx.ToolCall = &ToolCallContext{
		ID:       callID,
		ToolName: toolName,
		Params:   copyParams(params),
	}

	result, err := m.Trigger(ctx, hookCtx)
	if err != nil {
		log.Warn().
			Err(err).
			Str("call_id", callID).
			Str("tool", toolName).
			Msg("before_tool_call mediation failed, allowing call")
		return decision
	}

	if !result.Continue {
		decision.Action = ActionBlock
		decision.Reason = blockReason(result, toolName)
		return decision
	}

	if action, ok := result.Data[DataKeyAction].(string); ok && action == string(ActionAsk) {
		decision.Action = ActionAsk
		if reason, ok := result.Data[DataKeyReason].(string); ok {
			decision.Reason = reason
		}
	}

	if result.Modified {
		if rewritten, ok := result.Data[DataKeyParams].(map[string]any); ok {
			decision.Params = rewritten
		}
	}

	return decision
}

// MediateAfterToolCall runs the after_tool_call chain and folds the merged
// result into an annotation. After-hooks observe outcomes; they never change
// success or failure. Chain errors degrade to an empty annotation.
func (m *Manager) MediateAfterToolCall(ctx context.Context, callID, toolName string, params map[string]any, toolResult any, errMsg string, duration time.Duration) ToolCallAnnotation {
	var annotation ToolCallAnnotation

	if !m.HasHandlers(HookAfterToolCall) {
		return annotation
	}

	hookCtx := NewContext(HookAfterToolCall)
	hookCtx.ToolCall = &ToolCallContext{
		ID:       callID,
		ToolName: toolName,
		Params:   copyParams(params),
		Result:   toolResult,
		Error:    errMsg,
		Duration: duration,
	}

	result, err := m.Trigger(ctx, hookCtx)
	if err != nil {
		log.Warn().
			Err(err).
			Str("call_id", callID).
			Str("tool", toolName).
			Msg("after_tool_call mediation failed, skipping annotation")
		return annotation
	}

	if msg, ok := result.Data[DataKeySystemMessage].(string); ok {
		annotation.SystemMessage = msg
	}
	if suppress, ok := result.Data[DataKeySuppressOutput].(bool); ok {
		annotation.SuppressOutput = suppress
	}

	return annotation
}

// blockReason extracts the stopping handler's reason, falling back to a
// generic message so blocks are never silent.
func blockReason(result *Result, toolName string) string {
	if reason, ok := result.Data[DataKeyReason].(string); ok && reason != "" {
		return reason
	}
	if result.Error != nil {
		return result.Error.Error()
	}
	return fmt.Sprintf("tool call %q blocked by hook", toolName)
}

func copyParams(params map[string]any) map[string]any {
	cp := make(map[string]any, len(params))
	for k, v := range params {
		cp[k] = v
	}
	return cp
}
