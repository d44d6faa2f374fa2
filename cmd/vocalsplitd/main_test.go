package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvMissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	if err := loadEnv(); err != nil {
		t.Fatalf("loadEnv without .env: %v", err)
	}
}

func TestLoadEnvReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	const key = "VOCALSPLITD_TEST_DOTENV"
	t.Cleanup(func() { _ = os.Unsetenv(key) })
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(key+"=from-file\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	if err := loadEnv(); err != nil {
		t.Fatalf("loadEnv: %v", err)
	}
	if got := os.Getenv(key); got != "from-file" {
		t.Fatalf("%s = %q", key, got)
	}
}
