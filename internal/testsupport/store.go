package testsupport

import (
	"testing"

	"callaudit/internal/audit"
	"callaudit/internal/config"
)

// MustOpenStore opens an audit store backed by the test config's temp data
// directory and closes it when the test finishes.
func MustOpenStore(t testing.TB, cfg *config.Config) *audit.Store {
	t.Helper()

	store, err := audit.Open(cfg)
	if err != nil {
		t.Fatalf("open audit store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
