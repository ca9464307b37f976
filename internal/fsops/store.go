// Package fsops persists tool-server artifacts (the chunk index and the
// note graph) under a single sandboxed root. Every path is validated by the
// safety package before it touches the filesystem.
package fsops

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/petasbytes/mcp-agent/internal/safety"
)

// Store reads and writes files relative to an artifacts root.
type Store struct {
	root string
}

// New resolves root (creating it if missing) and returns a Store on it.
func New(root string) (*Store, error) {
	abs, err := safety.InitRoot(root)
	if err != nil {
		return nil, err
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute artifacts root.
func (s *Store) Root() string { return s.root }

// ReadFile reads a file addressed by a path relative to the root.
func (s *Store) ReadFile(relPath string) ([]byte, error) {
	absPath, err := safety.ValidateRelPath(s.root, relPath)
	if err != nil {
		return nil, err // propagate ToolError unchanged
	}

	fi, err := os.Stat(absPath)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, safety.ToolError{Code: safety.CodeNotAFile, Message: "path is a directory"}
	}
	return os.ReadFile(absPath)
}

// WriteFile writes data to relPath, creating parent directories as needed.
// The write goes through a temp file and rename so readers never observe
// a partially written artifact.
func (s *Store) WriteFile(relPath string, data []byte) error {
	absPath, err := safety.ValidateWritePath(s.root, relPath)
	if err != nil {
		return err
	}

	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "artifact-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, absPath)
}

// ReadJSON decodes the JSON file at relPath into v. A missing file is
// reported as os.ErrNotExist so callers can treat it as empty.
func (s *Store) ReadJSON(relPath string, v any) error {
	b, err := s.ReadFile(relPath)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", relPath, err)
	}
	return nil
}

// WriteJSON encodes v with indentation and writes it to relPath.
func (s *Store) WriteJSON(relPath string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", relPath, err)
	}
	return s.WriteFile(relPath, append(b, '\n'))
}

// Exists reports whether relPath names an existing regular file.
func (s *Store) Exists(relPath string) bool {
	absPath, err := safety.ValidateRelPath(s.root, relPath)
	if err != nil {
		return false
	}
	fi, err := os.Stat(absPath)
	return err == nil && fi.Mode().IsRegular()
}
