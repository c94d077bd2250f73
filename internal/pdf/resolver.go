package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Resolver turns document references into absolute paths confined to a
// directory. Relative references are taken relative to that directory.
type Resolver struct {
	dir string
}

// NewResolver creates a resolver rooted at dir.
func NewResolver(dir string) (*Resolver, error) {
	if dir == "" {
		return nil, fmt.Errorf("configured directory cannot be empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve directory: %w", err)
	}
	return &Resolver{dir: filepath.Clean(abs)}, nil
}

// Dir returns the root directory.
func (r *Resolver) Dir() string {
	return r.dir
}

// Resolve maps ref to an absolute path inside the root directory.
func (r *Resolver) Resolve(ref string) (string, error) {
	ref = strings.ReplaceAll(ref, "\x00", "")
	if strings.TrimSpace(ref) == "" {
		return "", fmt.Errorf("document reference cannot be empty")
	}

	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.dir, path)
	}
	path = filepath.Clean(path)

	ok, err := r.Contains(path)
	if err != nil {
		return "", fmt.Errorf("path validation failed: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("path is outside configured directory: %s", ref)
	}
	return path, nil
}

// Contains reports whether path lies within the root directory, following
// symlinks on both sides.
func (r *Resolver) Contains(path string) (bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("failed to resolve path: %w", err)
	}
	clean := filepath.Clean(abs)

	target := clean
	if info, err := os.Lstat(clean); err == nil && info.Mode()&os.ModeSymlink != 0 {
		if resolved, err := filepath.EvalSymlinks(clean); err == nil {
			target = resolved
		}
	}
	realDir := r.dir
	if resolved, err := filepath.EvalSymlinks(r.dir); err == nil {
		realDir = resolved
	}

	within := func(p string) bool {
		for _, d := range []string{r.dir, realDir} {
			if p == d || strings.HasPrefix(p, d+string(filepath.Separator)) {
				return true
			}
		}
		return false
	}
	return within(clean) && within(target), nil
}
