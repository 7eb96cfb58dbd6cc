package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mlanders/swarmd/internal/errors"
)

func memStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewMemoryStore(context.Background())
	if err != nil {
		t.Fatalf("NewMemoryStore() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestSaveLoad verifies the basic roundtrip.
func TestSaveLoad(t *testing.T) {
	s := memStore(t)
	ctx := context.Background()

	blob := []byte(`{"tasks":3}`)
	if err := s.Save(ctx, "swarm/state", blob); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, err := s.Load(ctx, "swarm/state")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if string(got) != string(blob) {
		t.Errorf("Load() = %q, want %q", got, blob)
	}
}

// TestSaveReplaces verifies upsert semantics.
func TestSaveReplaces(t *testing.T) {
	s := memStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if err := s.Save(ctx, "k", []byte("v2")); err != nil {
		t.Fatalf("second Save() error: %v", err)
	}

	got, err := s.Load(ctx, "k")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if string(got) != "v2" {
		t.Errorf("Load() = %q, want replacement value", got)
	}
}

// TestLoadMissing verifies absent keys surface as NotFoundError.
func TestLoadMissing(t *testing.T) {
	s := memStore(t)

	_, err := s.Load(context.Background(), "ghost")
	if err == nil {
		t.Fatal("expected error for missing key")
	}

	var nf *errors.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got %T: %v", err, err)
	}
	if nf.Kind != "snapshot" || nf.ID != "ghost" {
		t.Errorf("NotFoundError = %+v", nf)
	}
}

// TestListPrefix verifies prefix filtering and ordering.
func TestListPrefix(t *testing.T) {
	s := memStore(t)
	ctx := context.Background()

	for _, key := range []string{"swarm/b", "swarm/a", "other/x"} {
		if err := s.Save(ctx, key, []byte("data")); err != nil {
			t.Fatalf("Save(%s) error: %v", key, err)
		}
	}

	keys, err := s.List(ctx, "swarm/")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(keys) != 2 || keys[0] != "swarm/a" || keys[1] != "swarm/b" {
		t.Errorf("List() = %v, want [swarm/a swarm/b]", keys)
	}

	all, err := s.List(ctx, "")
	if err != nil {
		t.Fatalf("List(\"\") error: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List(\"\") = %v, want 3 keys", all)
	}
}

// TestDelete verifies removal and idempotency.
func TestDelete(t *testing.T) {
	s := memStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := s.Load(ctx, "k"); err == nil {
		t.Error("Load() succeeded after delete")
	}

	// Absent keys are not an error.
	if err := s.Delete(ctx, "k"); err != nil {
		t.Errorf("second Delete() error: %v", err)
	}
}

// TestMemoryStoresIsolated verifies separate memory stores do not share data.
func TestMemoryStoresIsolated(t *testing.T) {
	ctx := context.Background()
	a := memStore(t)
	b := memStore(t)

	if err := a.Save(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if _, err := b.Load(ctx, "k"); err == nil {
		t.Error("second store sees first store's data")
	}
}

// TestFileStore verifies the on-disk constructor creates directories and
// persists across reopen.
func TestFileStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "swarm.db")

	s, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error: %v", err)
	}
	if err := s.Save(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	reopened, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Load(ctx, "k")
	if err != nil {
		t.Fatalf("Load() after reopen error: %v", err)
	}
	if string(got) != "v" {
		t.Errorf("Load() = %q after reopen", got)
	}
}
