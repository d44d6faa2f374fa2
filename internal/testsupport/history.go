package testsupport

import (
	"testing"

	"vocalsplit/internal/config"
	"vocalsplit/internal/history"
)

// MustOpenHistory opens the history journal for cfg and registers cleanup.
func MustOpenHistory(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()
	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
