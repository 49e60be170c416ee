package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func TestBuildWalksTree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "internal/util/util.go", "package util\n")
	writeFile(t, root, "README.md", "# readme\n")

	m, err := Build(context.Background(), root, BuildOptions{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if len(m) != 3 {
		t.Fatalf("manifest has %d entries, want 3: %v", len(m), m.Paths())
	}

	e, ok := m["internal/util/util.go"]
	if !ok {
		t.Fatal("nested file missing from manifest")
	}
	if e.Hash != HashBytes([]byte("package util\n")) {
		t.Fatalf("hash mismatch for nested file: %s", e.Hash)
	}
	if e.Size != int64(len("package util\n")) {
		t.Fatalf("size = %d", e.Size)
	}
	if e.Language != "go" {
		t.Fatalf("language = %q, want go", e.Language)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "a\n")
	writeFile(t, root, "b/c.py", "c\n")
	writeFile(t, root, "b/d.ts", "d\n")

	first, err := Build(context.Background(), root, BuildOptions{})
	if err != nil {
		t.Fatalf("first Build failed: %v", err)
	}
	second, err := Build(context.Background(), root, BuildOptions{})
	if err != nil {
		t.Fatalf("second Build failed: %v", err)
	}

	if first.Hash() != second.Hash() {
		t.Fatal("two builds of the same tree hashed differently")
	}
}

func TestBuildExcludesPatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, ".git/config", "[core]\n")
	writeFile(t, root, "node_modules/pkg/index.js", "x\n")
	writeFile(t, root, "vendor/dep/dep.go", "package dep\n")
	writeFile(t, root, "debug.log", "noise\n")

	m, err := Build(context.Background(), root, BuildOptions{
		ExcludePatterns: []string{".git", "node_modules", "vendor/", "*.log"},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if len(m) != 1 {
		t.Fatalf("manifest = %v, want only main.go", m.Paths())
	}
	if _, ok := m["main.go"]; !ok {
		t.Fatal("main.go missing")
	}
}

func TestBuildExcludesNestedDirectorySegment(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app/node_modules/dep/index.js", "x\n")
	writeFile(t, root, "app/main.js", "y\n")

	m, err := Build(context.Background(), root, BuildOptions{
		ExcludePatterns: []string{"node_modules"},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if _, ok := m["app/node_modules/dep/index.js"]; ok {
		t.Fatal("nested node_modules content not excluded")
	}
	if _, ok := m["app/main.js"]; !ok {
		t.Fatal("app/main.js missing")
	}
}

func TestBuildSkipsOversizeFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "small.txt", "ok")
	writeFile(t, root, "big.bin", string(make([]byte, 100)))

	m, err := Build(context.Background(), root, BuildOptions{MaxFileSize: 50})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if _, ok := m["big.bin"]; ok {
		t.Fatal("oversize file included")
	}
	if _, ok := m["small.txt"]; !ok {
		t.Fatal("small file missing")
	}
}

func TestBuildSkipsSymlinks(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "real.go", "package real\n")
	if err := os.Symlink(filepath.Join(root, "real.go"), filepath.Join(root, "link.go")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	m, err := Build(context.Background(), root, BuildOptions{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if _, ok := m["link.go"]; ok {
		t.Fatal("symlink included in manifest")
	}
	if _, ok := m["real.go"]; !ok {
		t.Fatal("real file missing")
	}
}

func TestBuildMissingRootFails(t *testing.T) {
	_, err := Build(context.Background(), filepath.Join(t.TempDir(), "nope"), BuildOptions{})
	if err == nil {
		t.Fatal("Build of missing root did not fail")
	}
}

func TestBuildEmptyDirectory(t *testing.T) {
	m, err := Build(context.Background(), t.TempDir(), BuildOptions{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(m) != 0 {
		t.Fatalf("empty directory produced %d entries", len(m))
	}
}
