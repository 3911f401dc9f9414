package cli

import (
	"context"

	"steward/internal/hooks"
	"steward/internal/jsvm"
)

// jsRuntimeAdapter exposes the pooled JavaScript runtime through the hook
// executor's interface.
type jsRuntimeAdapter struct {
	runtime *jsvm.Runtime
}

func (a *jsRuntimeAdapter) Execute(ctx context.Context, script, scriptName, executionID string) (*hooks.JSExecuteResult, error) {
	result, err := a.runtime.Execute(ctx, script, scriptName, executionID)
	if err != nil {
		return nil, err
	}
	return &hooks.JSExecuteResult{Value: result.Value, Logs: result.Logs}, nil
}
