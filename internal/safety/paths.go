// Package safety validates paths for the artifacts sandbox: every file the
// tool server persists (index cache, note graph) must resolve inside one
// configured root.
package safety

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Error codes carried by ToolError.
const (
	CodeOutsideSandbox = "ERR_PATH_OUTSIDE_SANDBOX"
	CodeDeniedWrite    = "ERR_DENIED_WRITE"
	CodeNotAFile       = "ERR_NOT_A_FILE"
)

// ToolError is a machine-readable error body. Tools surface it verbatim in
// their error result so the model sees a stable code.
type ToolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error returns a compact, single-line JSON string to keep tool results small.
func (e ToolError) Error() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// InitRoot resolves root to an absolute, symlink-free directory, creating
// it if needed. An empty root means the current directory.
func InitRoot(root string) (string, error) {
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getwd: %w", err)
		}
		root = cwd
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("abs(root): %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("create root %s: %w", abs, err)
	}
	// Resolve symlinks so boundary checks compare like with like.
	if r, err := filepath.EvalSymlinks(abs); err == nil {
		abs = r
	}
	return abs, nil
}

// ValidateRelPath resolves relPath against absRoot and returns an absolute
// path inside the sandbox. It rejects absolute inputs, parent traversal and
// symlink escapes with a ToolError.
func ValidateRelPath(absRoot, relPath string) (string, error) {
	if filepath.IsAbs(relPath) {
		return "", ToolError{Code: CodeOutsideSandbox, Message: "absolute paths are not allowed"}
	}

	cleaned := filepath.Clean(relPath)
	candidate := filepath.Join(absRoot, cleaned)

	// Resolve the whole candidate if it exists; otherwise resolve the parent
	// and rejoin the leaf, which still reveals escapes via a symlinked parent.
	if resolved, err := filepath.EvalSymlinks(candidate); err == nil {
		candidate = resolved
	} else {
		parent := filepath.Dir(candidate)
		if resolvedParent, err2 := filepath.EvalSymlinks(parent); err2 == nil {
			candidate = filepath.Join(resolvedParent, filepath.Base(candidate))
		}
	}

	// filepath.Rel is robust against partial prefix matches.
	rel, err := filepath.Rel(absRoot, candidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", ToolError{Code: CodeOutsideSandbox, Message: "requested path resolves outside the sandbox root"}
	}
	return candidate, nil
}
