package filesystem

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/vertextoedge/uupfetch/internal/domain"
)

func writePartial(t *testing.T, m *Manager, path string, offset int64, data string) {
	t.Helper()
	w, err := m.OpenPartial(path, offset)
	if err != nil {
		t.Fatalf("OpenPartial(%d): %v", offset, err)
	}
	if _, err := io.WriteString(w, data); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestManager_PartialLifecycle(t *testing.T) {
	m := NewManager()
	dir := filepath.Join(t.TempDir(), "nested", "out")

	if err := m.EnsureDir(dir); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	if err := m.EnsureDir(dir); err != nil {
		t.Fatalf("EnsureDir should be idempotent: %v", err)
	}

	part := filepath.Join(dir, "a.bin.part")
	dest := filepath.Join(dir, "a.bin")

	size, err := m.PartialSize(part)
	if err != nil || size != 0 {
		t.Fatalf("PartialSize of missing file = %d, %v", size, err)
	}

	writePartial(t, m, part, 0, "hello ")
	writePartial(t, m, part, 6, "world")

	if size, _ := m.PartialSize(part); size != 11 {
		t.Errorf("PartialSize = %d, want 11", size)
	}

	if err := os.WriteFile(dest, []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := m.Promote(part, dest); err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if m.FileExists(part) {
		t.Error("partial file should be gone after Promote")
	}
	got, _ := os.ReadFile(dest)
	if string(got) != "hello world" {
		t.Errorf("dest content = %q", got)
	}
}

func TestManager_OpenPartialTruncatesAtZero(t *testing.T) {
	m := NewManager()
	part := filepath.Join(t.TempDir(), "a.bin.part")

	writePartial(t, m, part, 0, "old content")
	writePartial(t, m, part, 0, "new")

	got, _ := os.ReadFile(part)
	if string(got) != "new" {
		t.Errorf("content = %q, want %q", got, "new")
	}
}

func TestManager_OpenPartialOffsetMismatch(t *testing.T) {
	m := NewManager()
	part := filepath.Join(t.TempDir(), "a.bin.part")
	writePartial(t, m, part, 0, "abc")

	_, err := m.OpenPartial(part, 10)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	if _, err := m.OpenPartial(filepath.Join(t.TempDir(), "missing.part"), 3); err == nil {
		t.Error("resuming a missing partial file should fail")
	}
}

func TestManager_HashSHA1(t *testing.T) {
	m := NewManagerWithBufferSize(4)
	dir := t.TempDir()

	tests := []struct {
		content string
		want    string
	}{
		{"", "da39a3ee5e6b4b0d3255bfef95601890afd80709"},
		{"abc", "a9993e364706816aba3e25717850c26c9cd0d89d"},
		{"The quick brown fox jumps over the lazy dog", "2fd4e1c67a2d28fced849ee1bb76e7391b93eb12"},
	}

	for i, tt := range tests {
		path := filepath.Join(dir, string(rune('a'+i)))
		if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
			t.Fatal(err)
		}
		got, err := m.HashSHA1(path)
		if err != nil {
			t.Fatalf("HashSHA1: %v", err)
		}
		if got != tt.want {
			t.Errorf("HashSHA1(%q) = %s, want %s", tt.content, got, tt.want)
		}
	}

	if _, err := m.HashSHA1(filepath.Join(dir, "missing")); err == nil {
		t.Error("hashing a missing file should fail")
	}
}

func TestManager_DeleteAndExists(t *testing.T) {
	m := NewManager()
	dir := t.TempDir()
	path := filepath.Join(dir, "x")

	if m.FileExists(path) {
		t.Error("missing file reported as existing")
	}
	if m.FileExists(dir) {
		t.Error("directory reported as regular file")
	}
	os.WriteFile(path, []byte("x"), 0644)
	if !m.FileExists(path) {
		t.Error("file should exist")
	}
	if err := m.DeleteFile(path); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if err := m.DeleteFile(path); err != nil {
		t.Errorf("deleting a missing file should not fail: %v", err)
	}
}

func TestManager_ListPartials(t *testing.T) {
	m := NewManager()
	dir := t.TempDir()
	for _, name := range []string{"b.cab.part", "a.esd.part", "done.cab"} {
		os.WriteFile(filepath.Join(dir, name), nil, 0644)
	}
	os.Mkdir(filepath.Join(dir, "sub.part"), 0755)

	got, err := m.ListPartials(dir)
	if err != nil {
		t.Fatalf("ListPartials: %v", err)
	}
	if want := []string{"a.esd.part", "b.cab.part"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ListPartials = %v, want %v", got, want)
	}

	if got, err := m.ListPartials(filepath.Join(dir, "missing")); err != nil || len(got) != 0 {
		t.Errorf("missing dir = %v, %v", got, err)
	}
}
