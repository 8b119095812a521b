// Package storagetest opens throwaway SQLite databases for tests.
package storagetest

import (
	"context"
	"testing"

	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/storage"
)

// Open returns a migrated in-memory database closed at test cleanup.
func Open(t testing.TB) *storage.DB {
	t.Helper()
	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, "file::memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return db
}
