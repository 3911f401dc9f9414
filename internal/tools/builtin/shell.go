// Package builtin provides the built-in tools for the steward runtime.
package builtin

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"steward/internal/tools"
)

// ShellArgs defines the parameters for the shell tool.
type ShellArgs struct {
	Command string `json:"command" jsonschema:"description=The shell command to execute,required"`
	Timeout int    `json:"timeout" jsonschema:"description=Timeout in seconds (default: 30)"`
	WorkDir string `json:"work_dir" jsonschema:"description=Working directory for the command"`
}

// ShellTool executes shell commands. It implements tools.StreamingTool:
// stdout and stderr lines are delivered incrementally while the command runs.
type ShellTool struct {
	tools.BaseTool
	// MaxOutputSize is the maximum size of command output in bytes.
	MaxOutputSize int
	// DefaultWorkDir is used when the caller does not specify work_dir.
	DefaultWorkDir string
}

// NewShellTool creates a new shell tool.
func NewShellTool() *ShellTool {
	return &ShellTool{
		BaseTool: tools.BaseTool{
			ToolName:        "shell",
			ToolDescription: "Execute a shell command and return its output. Use this to run system commands, scripts, or interact with the operating system.",
			ToolParameters:  tools.BuildSchema(ShellArgs{}),
		},
		MaxOutputSize: 1024 * 1024, // 1MB default
	}
}

// Execute runs the shell command without streaming.
func (t *ShellTool) Execute(ctx context.Context, args map[string]any) (tools.ToolResult, error) {
	return t.ExecuteStreaming(ctx, args, nil)
}

// ExecuteStreaming runs the shell command, delivering output lines to sink
// as they are produced. The final result carries the complete output.
func (t *ShellTool) ExecuteStreaming(ctx context.Context, args map[string]any, sink tools.OutputSink) (tools.ToolResult, error) {
	command, _ := args["command"].(string)
	if command == "" {
		return tools.ToolResult{}, tools.NewInvalidArgsError(t.Name(), "command is required", nil)
	}

	timeout := 30
	if v, ok := args["timeout"].(float64); ok && v > 0 {
		timeout = int(v)
	}

	workDir, _ := args["work_dir"].(string)
	if workDir == "" {
		workDir = t.DefaultWorkDir
	}

	execCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(execCtx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(execCtx, "sh", "-c", command)
	}
	if workDir != "" {
		cmd.Dir = workDir
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return tools.ToolResult{}, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return tools.ToolResult{}, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return tools.NewErrorResult(fmt.Sprintf("failed to start command: %v", err)), nil
	}

	var (
		outBuf strings.Builder
		errBuf strings.Builder
		wg     sync.WaitGroup
	)
	wg.Add(2)
	go t.drain(stdout, &outBuf, sink, &wg)
	go t.drain(stderr, &errBuf, sink, &wg)
	wg.Wait()

	runErr := cmd.Wait()

	// Cancellation takes priority over any partial output.
	if ctx.Err() == context.Canceled {
		return tools.ToolResult{}, ctx.Err()
	}
	if execCtx.Err() == context.DeadlineExceeded {
		return tools.ToolResult{}, tools.NewToolTimeoutError(t.Name(), fmt.Sprintf("%ds", timeout))
	}

	var result strings.Builder
	result.WriteString(t.truncate(outBuf.String()))
	if errBuf.Len() > 0 {
		if result.Len() > 0 {
			result.WriteString("\n")
		}
		result.WriteString("STDERR:\n")
		result.WriteString(t.truncate(errBuf.String()))
	}

	if runErr != nil {
		if result.Len() > 0 {
			result.WriteString("\n")
		}
		result.WriteString(fmt.Sprintf("Exit error: %v", runErr))
		return tools.NewErrorResult(result.String()), nil
	}

	if result.Len() == 0 {
		return tools.NewSuccessResult("(no output)"), nil
	}
	return tools.NewSuccessResult(result.String()), nil
}

// drain copies lines from r into buf, forwarding each to sink when set.
// Accumulation stops at MaxOutputSize but the reader is still consumed so
// the child process does not block on a full pipe.
func (t *ShellTool) drain(r io.Reader, buf *strings.Builder, sink tools.OutputSink, wg *sync.WaitGroup) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if buf.Len() < t.MaxOutputSize {
			buf.WriteString(line)
			buf.WriteString("\n")
		}
		if sink != nil {
			sink(line + "\n")
		}
	}
}

// truncate caps output at MaxOutputSize.
func (t *ShellTool) truncate(s string) string {
	if len(s) > t.MaxOutputSize {
		return s[:t.MaxOutputSize] + "\n... (output truncated)"
	}
	return strings.TrimSuffix(s, "\n")
}
