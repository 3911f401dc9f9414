package builtin

import (
	"steward/internal/tools"
)

// Options configures the built-in tool set.
type Options struct {
	// WorkspaceRoot confines file tools (and the shell default working
	// directory) to this directory. Empty means unrestricted.
	WorkspaceRoot string
}

// RegisterBuiltins registers all built-in tools to the given registry.
func RegisterBuiltins(r *tools.Registry, opts Options) error {
	guard, err := NewPathGuard(opts.WorkspaceRoot)
	if err != nil {
		return err
	}

	shell := NewShellTool()
	shell.DefaultWorkDir = opts.WorkspaceRoot

	read := NewReadFileTool()
	read.Guard = guard

	write := NewWriteFileTool()
	write.Guard = guard

	edit := NewEditFileTool()
	edit.Guard = guard

	list := NewListDirTool()
	list.Guard = guard

	builtins := []tools.Tool{shell, read, write, edit, list}

	for _, tool := range builtins {
		if err := r.Register(tool); err != nil {
			return err
		}
	}

	return nil
}

// NewRegistryWithBuiltins creates a new registry with all built-in tools registered.
func NewRegistryWithBuiltins(opts Options) (*tools.Registry, error) {
	r := tools.NewRegistry()
	if err := RegisterBuiltins(r, opts); err != nil {
		return nil, err
	}
	return r, nil
}

// ToolNames returns the names of all built-in tools.
func ToolNames() []string {
	return []string{
		"shell",
		"read_file",
		"write_file",
		"edit_file",
		"list_dir",
	}
}
