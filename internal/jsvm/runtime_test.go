package jsvm

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	r := NewRuntime(DefaultRuntimeConfig(), zerolog.Nop())
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRuntime_Execute(t *testing.T) {
	r := newTestRuntime(t)

	tests := []struct {
		name    string
		script  string
		want    any
		wantErr bool
	}{
		{name: "number result", script: "1 + 2", want: int64(3)},
		{name: "string result", script: `"a" + "b"`, want: "ab"},
		{name: "null result", script: "null", want: nil},
		{name: "syntax error", script: "function {", wantErr: true},
		{name: "thrown exception", script: `throw new Error("boom")`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := r.Execute(context.Background(), tt.script, tt.name, "exec-1")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Value)
		})
	}
}

func TestRuntime_ConsoleCapture(t *testing.T) {
	r := newTestRuntime(t)

	result, err := r.Execute(context.Background(), `console.log("hello", 42); "done"`, "console.js", "exec-2")
	require.NoError(t, err)
	assert.Equal(t, "done", result.Value)
	require.Len(t, result.Logs, 1)
	assert.Equal(t, "hello 42", result.Logs[0])
}

func TestRuntime_TimeoutInterrupts(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	cfg.SandboxConfig.Timeout = 50 * time.Millisecond
	r := NewRuntime(cfg, zerolog.Nop())
	defer r.Close()

	_, err := r.Execute(context.Background(), "while (true) {}", "spin.js", "exec-3")
	require.Error(t, err)
	var execErr *ExecutionError
	assert.ErrorAs(t, err, &execErr)
}

func TestRuntime_ClosedRejectsExecution(t *testing.T) {
	r := NewRuntime(DefaultRuntimeConfig(), zerolog.Nop())
	require.NoError(t, r.Close())

	_, err := r.Execute(context.Background(), "1", "x.js", "exec-4")
	assert.ErrorIs(t, err, ErrRuntimeClosed)
}

func TestVMPool_ReuseAndClose(t *testing.T) {
	p := NewVMPool(PoolConfig{MaxSize: 1, AcquireTimeout: 100 * time.Millisecond})

	vm, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(vm)

	vm2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, vm, vm2, "single-slot pool should hand back the same VM")

	// Pool at capacity with the only VM checked out: acquire times out.
	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolExhausted)

	require.NoError(t, p.Close())
	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
}
