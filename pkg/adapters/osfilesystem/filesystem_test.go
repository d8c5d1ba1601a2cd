package osfilesystem

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestFileSystem_WriteAndReadFile(t *testing.T) {
	fs := New()
	path := filepath.Join(t.TempDir(), "summary.json")

	if err := fs.WriteFile(path, []byte(`{"frames":20}`)); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	data, err := fs.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != `{"frames":20}` {
		t.Errorf("read %q", data)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0644 {
		t.Errorf("mode = %v, want 0644", info.Mode().Perm())
	}
}

func TestFileSystem_WriteFileReplaces(t *testing.T) {
	fs := New()
	dir := t.TempDir()
	path := filepath.Join(dir, "frame-0001.png")

	if err := fs.WriteFile(path, []byte("first version")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := fs.WriteFile(path, []byte("second")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "second" {
		t.Errorf("read %q, want %q", data, "second")
	}

	// No temporary files are left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want 1", len(entries))
	}
}

func TestFileSystem_WriteFileCreatesParentDirs(t *testing.T) {
	fs := New()
	path := filepath.Join(t.TempDir(), "out", "frames", "frame-0000.png")

	if err := fs.WriteFile(path, []byte("png")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	exists, err := fs.Exists(path)
	if err != nil || !exists {
		t.Errorf("Exists = %v, %v; want true", exists, err)
	}
}

func TestFileSystem_MkdirAllAndExists(t *testing.T) {
	fs := New()
	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b", "c")

	if err := fs.MkdirAll(path); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	tests := []struct {
		path string
		want bool
	}{
		{path, true},
		{filepath.Join(dir, "a"), true},
		{filepath.Join(dir, "missing.mp4"), false},
	}
	for _, tt := range tests {
		exists, err := fs.Exists(tt.path)
		if err != nil {
			t.Fatalf("Exists(%s) failed: %v", tt.path, err)
		}
		if exists != tt.want {
			t.Errorf("Exists(%s) = %v, want %v", tt.path, exists, tt.want)
		}
	}
}

func TestFileSystem_Open(t *testing.T) {
	fs := New()
	dir := t.TempDir()
	path := filepath.Join(dir, "movie.mp4")
	if err := os.WriteFile(path, []byte("0123456789"), 0644); err != nil {
		t.Fatal(err)
	}

	f, err := fs.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()

	if _, err := f.Seek(4, io.SeekStart); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	buf := make([]byte, 3)
	if _, err := io.ReadFull(f, buf); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(buf) != "456" {
		t.Errorf("read %q after seek, want %q", buf, "456")
	}
}

func TestFileSystem_OpenErrors(t *testing.T) {
	fs := New()
	dir := t.TempDir()

	if _, err := fs.Open(filepath.Join(dir, "missing.mp4")); !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
	if _, err := fs.Open(dir); err == nil {
		t.Error("expected error opening a directory")
	}
}
