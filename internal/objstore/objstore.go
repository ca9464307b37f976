// Package objstore lists and reads incident files from an object store.
package objstore

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("object not found")

// Object is one listed key.
type Object struct {
	Key  string
	Size int64
}

// Store is the read-only view of a bucket the tools need.
type Store interface {
	// List returns every object under prefix, across all pages.
	List(ctx context.Context, prefix string) ([]Object, error)
	// Get returns the full body of key.
	Get(ctx context.Context, key string) ([]byte, error)
}

// Structure renders objects as a sorted "Folders:" section followed by a
// sorted "Files:" section. Keys ending in "/" are folder markers; every
// other key contributes its parent path as a folder.
func Structure(objs []Object) string {
	folders := map[string]struct{}{}
	var files []string
	for _, o := range objs {
		if strings.HasSuffix(o.Key, "/") {
			folders[o.Key] = struct{}{}
			continue
		}
		if i := strings.LastIndex(o.Key, "/"); i >= 0 {
			folders[o.Key[:i+1]] = struct{}{}
		}
		files = append(files, o.Key)
	}

	sortedFolders := make([]string, 0, len(folders))
	for f := range folders {
		sortedFolders = append(sortedFolders, f)
	}
	sort.Strings(sortedFolders)
	sort.Strings(files)

	var b strings.Builder
	b.WriteString("Folders:")
	for _, f := range sortedFolders {
		b.WriteString("\n  - ")
		b.WriteString(f)
	}
	b.WriteString("\n\nFiles:")
	for _, f := range files {
		b.WriteString("\n  - ")
		b.WriteString(f)
	}
	return b.String()
}
