// Package jsvm provides a pooled, sandboxed JavaScript runtime used to
// execute user-supplied hook scripts.
package jsvm

import (
	"context"
	"os"
	"path/filepath"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"
)

// RuntimeConfig holds configuration for the Runtime.
type RuntimeConfig struct {
	PoolConfig    PoolConfig
	SandboxConfig SandboxConfig
}

// DefaultRuntimeConfig returns default runtime configuration.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		PoolConfig:    DefaultPoolConfig(),
		SandboxConfig: DefaultSandboxConfig(),
	}
}

// Runtime provides JavaScript execution capabilities.
type Runtime struct {
	pool   *VMPool
	config RuntimeConfig
	logger zerolog.Logger
	closed bool
}

// NewRuntime creates a new JavaScript runtime.
func NewRuntime(cfg RuntimeConfig, logger zerolog.Logger) *Runtime {
	return &Runtime{
		pool:   NewVMPool(cfg.PoolConfig),
		config: cfg,
		logger: logger,
	}
}

// ExecuteResult holds the result of script execution.
type ExecuteResult struct {
	// Value is the return value of the script.
	Value interface{}
	// Logs contains console output captured during execution.
	Logs []string
}

// Execute runs a JavaScript script and returns the result.
func (r *Runtime) Execute(ctx context.Context, script, scriptName, executionID string) (*ExecuteResult, error) {
	if r.closed {
		return nil, ErrRuntimeClosed
	}

	vm, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer r.pool.Release(vm)

	sandbox := NewSandbox(r.config.SandboxConfig, r.logger.With().Str("execution_id", executionID).Logger())
	execCtx, err := sandbox.Setup(vm, ctx, scriptName)
	if err != nil {
		return nil, err
	}
	defer sandbox.Cleanup(vm)

	val, err := vm.RunString(script)
	if err != nil {
		return nil, wrapExecutionError(err, scriptName)
	}

	select {
	case <-execCtx.Done():
		return nil, &ExecutionError{Script: scriptName, Cause: execCtx.Err()}
	default:
	}

	return &ExecuteResult{
		Value: exportValue(val),
		Logs:  sandbox.Logs(),
	}, nil
}

// ExecuteFile reads a file and executes its contents.
func (r *Runtime) ExecuteFile(ctx context.Context, filePath, executionID string) (*ExecuteResult, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, &ScriptLoadError{File: filePath, Cause: err}
	}

	return r.Execute(ctx, string(content), filepath.Base(filePath), executionID)
}

// Close shuts down the runtime and releases resources.
func (r *Runtime) Close() error {
	r.closed = true
	return r.pool.Close()
}

// wrapExecutionError converts goja errors to structured errors.
func wrapExecutionError(err error, scriptName string) error {
	switch e := err.(type) {
	case *goja.InterruptedError:
		return &ExecutionError{Script: scriptName, Cause: errInterrupted(e)}
	case *goja.CompilerSyntaxError:
		return &ScriptSyntaxError{File: scriptName, Message: e.Error()}
	case *goja.Exception:
		return &ExecutionError{Script: scriptName, Cause: errException(e)}
	default:
		return &ExecutionError{Script: scriptName, Cause: err}
	}
}

// exportValue converts goja values to Go values.
func exportValue(val goja.Value) interface{} {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	return val.Export()
}
