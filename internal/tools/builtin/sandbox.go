package builtin

import (
	"fmt"
	"path/filepath"
	"strings"
)

// PathGuard confines file tool operations to a workspace root.
// A nil guard or an empty root means no restriction.
type PathGuard struct {
	// Root is the absolute workspace directory paths must stay within.
	Root string
}

// NewPathGuard creates a guard for the given workspace root.
// The root is cleaned and made absolute; an empty root disables the guard.
func NewPathGuard(root string) (*PathGuard, error) {
	if root == "" {
		return &PathGuard{}, nil
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	return &PathGuard{Root: filepath.Clean(abs)}, nil
}

// Resolve validates that path lies within the guarded root and returns the
// cleaned absolute path. Relative paths are resolved against the root.
func (g *PathGuard) Resolve(path string) (string, error) {
	if g == nil || g.Root == "" {
		return path, nil
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(g.Root, abs)
	}
	abs = filepath.Clean(abs)

	if abs != g.Root && !strings.HasPrefix(abs, g.Root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes workspace root %q", path, g.Root)
	}
	return abs, nil
}

// Allows reports whether path lies within the guarded root.
func (g *PathGuard) Allows(path string) bool {
	_, err := g.Resolve(path)
	return err == nil
}
