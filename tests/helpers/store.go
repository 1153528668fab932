// Package helpers provides shared test fixtures.
package helpers

import (
	"testing"

	"github.com/quantford/tradepilot/internal/store"
	"go.uber.org/zap"
)

// NewTestFileStore returns a JSONL store rooted in a throwaway directory.
func NewTestFileStore(t *testing.T) *store.FileStore {
	t.Helper()

	s, err := store.NewFileStore(t.TempDir(), store.ValidationLenient, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create file store: %v", err)
	}
	return s
}

// NewTestSQLiteStore returns an in-memory SQLite store.
func NewTestSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:", store.ValidationLenient, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}
