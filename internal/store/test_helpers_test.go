package store

import (
	"fmt"
	"path/filepath"
	"testing"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// useSequentialIDs replaces UUIDv7 record IDs with id-0001, id-0002, ...
func useSequentialIDs(s *Store) {
	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("id-%04d", n)
	}
}
