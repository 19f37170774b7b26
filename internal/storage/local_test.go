package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewLocalCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "uploads")

	l, err := NewLocal(root)
	if err != nil {
		t.Fatalf("NewLocal() error: %v", err)
	}
	if info, err := os.Stat(l.Root()); err != nil || !info.IsDir() {
		t.Fatalf("expected root dir to exist, stat err=%v", err)
	}

	if _, err := NewLocal("  "); err == nil {
		t.Fatal("expected error for empty root")
	}
}

func TestLocalPaths(t *testing.T) {
	root := t.TempDir()
	l, err := NewLocal(root)
	if err != nil {
		t.Fatalf("NewLocal() error: %v", err)
	}

	id := "0f8fad5b-d9cb-469f-a165-70867728950e"
	if got, want := l.InputPath(id), filepath.Join(root, id+".input.zip"); got != want {
		t.Fatalf("InputPath = %q, want %q", got, want)
	}
	if got, want := l.OutputPath(id), filepath.Join(root, id+".zip"); got != want {
		t.Fatalf("OutputPath = %q, want %q", got, want)
	}
}

func TestLocalExistsAndRemove(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal() error: %v", err)
	}

	path := l.OutputPath("job-1")
	ok, err := l.Exists(path)
	if err != nil || ok {
		t.Fatalf("Exists before write = %v, %v; want false, nil", ok, err)
	}

	if err := os.WriteFile(path, []byte("PK"), 0o640); err != nil {
		t.Fatalf("write: %v", err)
	}
	ok, err = l.Exists(path)
	if err != nil || !ok {
		t.Fatalf("Exists after write = %v, %v; want true, nil", ok, err)
	}

	// ディレクトリは成果物として扱わない
	dir := l.OutputPath("job-dir")
	if err := os.Mkdir(dir, 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if ok, _ := l.Exists(dir); ok {
		t.Fatal("directory must not count as an existing result")
	}

	if err := l.Remove(path); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if err := l.Remove(path); err != nil {
		t.Fatalf("Remove() of missing file should succeed, got %v", err)
	}
}
