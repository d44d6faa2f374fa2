package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteLimited(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "nested", "upload.mp3")

	n, err := WriteLimited(dst, strings.NewReader("hello world"), 64)
	if err != nil {
		t.Fatal(err)
	}
	if n != 11 {
		t.Fatalf("written = %d, want 11", n)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello world" {
		t.Fatalf("content mismatch: got %q", got)
	}
	assertNoPartials(t, filepath.Dir(dst))
}

func TestWriteLimitedExactLimit(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "exact.bin")
	if _, err := WriteLimited(dst, strings.NewReader("1234"), 4); err != nil {
		t.Fatalf("a file exactly at the limit should be accepted: %v", err)
	}
}

func TestWriteLimitedRejectsOversize(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "big.bin")

	_, err := WriteLimited(dst, strings.NewReader("12345"), 4)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if _, statErr := os.Stat(dst); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("oversize upload must not be left behind: %v", statErr)
	}
	assertNoPartials(t, dir)
}

func TestWriteLimitedUnlimited(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "any.bin")
	if _, err := WriteLimited(dst, strings.NewReader(strings.Repeat("x", 4096)), 0); err != nil {
		t.Fatal(err)
	}
}

func TestRemoveIfExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.wav")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := RemoveIfExists(path); err != nil {
		t.Fatal(err)
	}
	if err := RemoveIfExists(path); err != nil {
		t.Fatalf("missing file should not be an error: %v", err)
	}
	if err := RemoveIfExists(""); err != nil {
		t.Fatal(err)
	}
}

func assertNoPartials(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".part") {
			t.Fatalf("temporary file %s left behind", e.Name())
		}
	}
}
