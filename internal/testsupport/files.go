package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates path, and any missing parents, holding size filler
// bytes. Sizes below one write a single byte so the file is never empty.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{'B'}, int(max(size, 1))), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteUpload stores a fixture the way POST /upload does, as
// "<id>_<name>" under uploadDir, and returns its path.
func WriteUpload(t testing.TB, uploadDir, id, name string) string {
	t.Helper()
	path := filepath.Join(uploadDir, id+"_"+name)
	WriteFile(t, path, 2048)
	return path
}
