package jsvm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"
)

// SandboxConfig holds configuration for the sandbox environment.
type SandboxConfig struct {
	// Timeout is the maximum execution time for scripts.
	Timeout time.Duration
	// MaxLogEntries caps the number of console lines captured per run.
	MaxLogEntries int
}

// DefaultSandboxConfig returns default sandbox configuration.
func DefaultSandboxConfig() SandboxConfig {
	return SandboxConfig{
		Timeout:       30 * time.Second,
		MaxLogEntries: 200,
	}
}

// Sandbox prepares a VM for one script execution: it injects a console
// object whose output is captured, and interrupts the VM when the
// execution context expires.
type Sandbox struct {
	config SandboxConfig
	logger zerolog.Logger

	logs   []string
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSandbox creates a new sandbox with the given configuration.
func NewSandbox(cfg SandboxConfig, logger zerolog.Logger) *Sandbox {
	return &Sandbox{
		config: cfg,
		logger: logger,
	}
}

// Setup configures the VM and returns the bounded execution context.
func (s *Sandbox) Setup(vm *goja.Runtime, ctx context.Context, scriptName string) (context.Context, error) {
	execCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done

	go func() {
		select {
		case <-execCtx.Done():
			vm.Interrupt("execution interrupted: " + execCtx.Err().Error())
		case <-done:
		}
	}()

	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	if err := s.installConsole(vm, scriptName); err != nil {
		cancel()
		return nil, err
	}

	return execCtx, nil
}

// installConsole injects a console object that records output and mirrors
// it to the structured logger.
func (s *Sandbox) installConsole(vm *goja.Runtime, scriptName string) error {
	console := vm.NewObject()

	logAt := func(level zerolog.Level) func(args ...goja.Value) {
		return func(args ...goja.Value) {
			parts := make([]string, 0, len(args))
			for _, a := range args {
				parts = append(parts, a.String())
			}
			line := strings.Join(parts, " ")
			if len(s.logs) < s.config.MaxLogEntries {
				s.logs = append(s.logs, line)
			}
			s.logger.WithLevel(level).Str("script", scriptName).Msg(line)
		}
	}

	if err := console.Set("log", logAt(zerolog.DebugLevel)); err != nil {
		return fmt.Errorf("install console.log: %w", err)
	}
	if err := console.Set("warn", logAt(zerolog.WarnLevel)); err != nil {
		return fmt.Errorf("install console.warn: %w", err)
	}
	if err := console.Set("error", logAt(zerolog.ErrorLevel)); err != nil {
		return fmt.Errorf("install console.error: %w", err)
	}

	return vm.Set("console", console)
}

// Logs returns the console output captured during execution.
func (s *Sandbox) Logs() []string {
	return s.logs
}

// Cleanup removes injected objects and stops the interrupt watcher.
func (s *Sandbox) Cleanup(vm *goja.Runtime) {
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	vm.ClearInterrupt()
}
