package safety_test

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/petasbytes/mcp-agent/internal/safety"
)

func TestValidateWritePath_DenyList(t *testing.T) {
	root := initRoot(t)

	cases := []struct {
		name string
		rel  string
		code string
	}{
		{"hidden file", ".index.json", safety.CodeDeniedWrite},
		{"hidden dir", ".cache/index.json", safety.CodeDeniedWrite},
		{"binary ext", "report.exe", safety.CodeDeniedWrite},
		{"no ext", "notes", safety.CodeDeniedWrite},
		{"root itself", ".", safety.CodeNotAFile},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := safety.ValidateWritePath(root, tc.rel); err == nil {
				t.Fatalf("expected deny for %q", tc.rel)
			} else if !strings.Contains(err.Error(), tc.code) {
				t.Fatalf("expected error code %s, got: %v", tc.code, err)
			}
		})
	}
}

func TestValidateWritePath_AbsoluteRejected(t *testing.T) {
	root := initRoot(t)
	abs, err := filepath.Abs("index.json")
	if err != nil {
		t.Skipf("cannot compute abs: %v", err)
	}
	if _, err := safety.ValidateWritePath(root, abs); err == nil {
		t.Fatal("expected reject for absolute path")
	} else if !strings.Contains(err.Error(), safety.CodeOutsideSandbox) {
		t.Fatalf("expected %s, got: %v", safety.CodeOutsideSandbox, err)
	}
}

func TestValidateWritePath_SymlinkEscapeOnNewFile(t *testing.T) {
	root := initRoot(t)
	outside := t.TempDir()

	if runtime.GOOS == "windows" {
		t.Skip("symlink test skipped on Windows")
	}
	link := filepath.Join(root, "out")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlink not allowed on this FS: %v", err)
	}

	// Leaf does not exist; parent is a symlink pointing outside
	if _, err := safety.ValidateWritePath(root, "out/note_graph.json"); err == nil {
		t.Fatal("expected reject for symlink escape via ancestor")
	} else if !strings.Contains(err.Error(), safety.CodeOutsideSandbox) {
		t.Fatalf("expected %s, got %v", safety.CodeOutsideSandbox, err)
	}
}

func TestValidateWritePath_AllowNormal(t *testing.T) {
	root := initRoot(t)
	for _, rel := range []string{"s3_file_index.json", "reports/sales.txt", "notes/summary.md"} {
		got, err := safety.ValidateWritePath(root, rel)
		if err != nil {
			t.Fatalf("%s: unexpected err: %v", rel, err)
		}
		if want := filepath.Join(root, rel); got != want {
			t.Fatalf("got %q want %q", got, want)
		}
	}
}
