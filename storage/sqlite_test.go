package storage

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ops.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// Two callers sharing the same database must never both hold the rematch
// lock: the one-shot CLI and the daemon coordinate through this flag.
func TestTryStartBatch_SecondClaimRefused(t *testing.T) {
	store := testStore(t)

	claimed, err := store.TryStartBatch("rematch")
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if !claimed {
		t.Fatal("first claim refused, want granted")
	}

	claimed, err = store.TryStartBatch("rematch")
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if claimed {
		t.Fatal("second claim granted while batch running, want refused")
	}

	running, err := store.IsBatchRunning("rematch")
	if err != nil {
		t.Fatalf("IsBatchRunning: %v", err)
	}
	if !running {
		t.Fatal("IsBatchRunning = false while claimed, want true")
	}
}

func TestFinishBatch_ReleasesLock(t *testing.T) {
	store := testStore(t)

	if _, err := store.TryStartBatch("rematch"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	result := json.RawMessage(`{"processed":3}`)
	if err := store.FinishBatch("rematch", result); err != nil {
		t.Fatalf("FinishBatch: %v", err)
	}

	running, err := store.IsBatchRunning("rematch")
	if err != nil {
		t.Fatalf("IsBatchRunning: %v", err)
	}
	if running {
		t.Fatal("IsBatchRunning = true after finish, want false")
	}

	claimed, err := store.TryStartBatch("rematch")
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if !claimed {
		t.Fatal("reclaim after finish refused, want granted")
	}
}

func TestIsBatchRunning_UnknownBatch(t *testing.T) {
	store := testStore(t)

	running, err := store.IsBatchRunning("nonexistent")
	if err != nil {
		t.Fatalf("IsBatchRunning: %v", err)
	}
	if running {
		t.Fatal("unknown batch reported running")
	}
}
