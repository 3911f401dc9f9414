package jsvm

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

// Sentinel errors for the jsvm package.
var (
	// ErrPoolExhausted is returned when no VM becomes available in time.
	ErrPoolExhausted = errors.New("jsvm: pool exhausted")

	// ErrPoolClosed is returned when acquiring from a closed pool.
	ErrPoolClosed = errors.New("jsvm: pool closed")

	// ErrRuntimeClosed is returned when executing on a closed runtime.
	ErrRuntimeClosed = errors.New("jsvm: runtime closed")
)

// ExecutionError indicates a script failed while running.
type ExecutionError struct {
	Script string
	Cause  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("jsvm: script %s failed: %v", e.Script, e.Cause)
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// ScriptSyntaxError indicates a script failed to compile.
type ScriptSyntaxError struct {
	File    string
	Message string
}

func (e *ScriptSyntaxError) Error() string {
	return fmt.Sprintf("jsvm: syntax error in %s: %s", e.File, e.Message)
}

// ScriptLoadError indicates a script file could not be read.
type ScriptLoadError struct {
	File  string
	Cause error
}

func (e *ScriptLoadError) Error() string {
	return fmt.Sprintf("jsvm: load script %s: %v", e.File, e.Cause)
}

func (e *ScriptLoadError) Unwrap() error {
	return e.Cause
}

// errInterrupted normalizes goja interrupt errors.
func errInterrupted(e *goja.InterruptedError) error {
	return fmt.Errorf("interrupted: %v", e.Value())
}

// errException normalizes goja exceptions.
func errException(e *goja.Exception) error {
	return fmt.Errorf("exception: %s", e.String())
}
