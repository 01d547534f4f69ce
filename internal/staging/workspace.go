package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Workspace is the exclusive temporary directory of one workflow run.
type Workspace struct {
	dir string
}

// NewWorkspace creates a fresh directory under root whose name starts with
// key. Two runs never share a directory even for the same key.
func NewWorkspace(root, key string) (*Workspace, error) {
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create work root: %w", err)
	}
	dir, err := os.MkdirTemp(root, SanitizeName(key)+"-*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

func (w *Workspace) Dir() string { return w.dir }

// Path maps a catalog file name to a flat, safe path inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, SanitizeName(filepath.Base(filepath.FromSlash(name))))
}

// Cleanup removes the workspace recursively.
func (w *Workspace) Cleanup() error {
	return os.RemoveAll(w.dir)
}

// SanitizeName keeps a name usable as a single path element.
func SanitizeName(name string) string {
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "file"
	}
	return name
}
