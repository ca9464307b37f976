package safety

import (
	"path/filepath"
	"strings"
)

// writableExts lists the artifact formats the tool server produces.
var writableExts = map[string]bool{
	".json": true,
	".txt":  true,
	".md":   true,
}

// ValidateWritePath applies ValidateRelPath and then the write policy:
// the target must be a regular artifact file (known extension) and no
// path component may be hidden.
func ValidateWritePath(absRoot, relPath string) (string, error) {
	abs, err := ValidateRelPath(absRoot, relPath)
	if err != nil {
		return "", err
	}

	rel, _ := filepath.Rel(absRoot, abs)
	if rel == "." {
		return "", ToolError{Code: CodeNotAFile, Message: "path names the sandbox root"}
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") {
			return "", ToolError{Code: CodeDeniedWrite, Message: "writes to hidden paths are not allowed"}
		}
	}
	if !writableExts[strings.ToLower(filepath.Ext(abs))] {
		return "", ToolError{Code: CodeDeniedWrite, Message: "only .json, .txt and .md artifacts may be written"}
	}
	return abs, nil
}
