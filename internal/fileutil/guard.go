package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Guard restricts paths to a set of root directories. Relative paths are
// resolved against the first root.
type Guard struct {
	roots []string
}

// NewGuard returns a guard for roots. Empty roots are ignored; at least one
// must remain.
func NewGuard(roots ...string) (*Guard, error) {
	g := &Guard{}
	for _, r := range roots {
		if r == "" {
			continue
		}
		abs, err := filepath.Abs(r)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve root %s: %w", r, err)
		}
		g.roots = append(g.roots, filepath.Clean(abs))
	}
	if len(g.roots) == 0 {
		return nil, fmt.Errorf("at least one root directory is required")
	}
	return g, nil
}

// Roots returns the cleaned absolute roots.
func (g *Guard) Roots() []string {
	return append([]string(nil), g.roots...)
}

// Resolve returns the absolute form of path after checking that it lies
// within one of the roots. Symlinks are followed on both sides.
func (g *Guard) Resolve(path string) (string, error) {
	path = strings.ReplaceAll(path, "\x00", "")
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(g.roots[0], path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	abs = filepath.Clean(abs)
	if !g.Contains(abs) {
		return "", fmt.Errorf("path is outside the allowed directories: %s", path)
	}
	return abs, nil
}

// Contains reports whether the cleaned absolute path is under a root.
func (g *Guard) Contains(abs string) bool {
	real := abs
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		real = resolved
	}
	for _, root := range g.roots {
		realRoot := root
		if resolved, err := filepath.EvalSymlinks(root); err == nil {
			realRoot = resolved
		}
		if within(abs, root, realRoot) && within(real, root, realRoot) {
			return true
		}
	}
	return false
}

func within(path string, dirs ...string) bool {
	for _, d := range dirs {
		if path == d || strings.HasPrefix(path, d+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}
