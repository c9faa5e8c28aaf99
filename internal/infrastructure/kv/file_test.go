package kv

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestFileStore_RoundTripAndPermissions(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	store := NewFileStore(path, zerolog.Nop())

	if _, found, err := store.Get(ctx, "access_token"); err != nil || found {
		t.Fatalf("expected empty store, got found=%v err=%v", found, err)
	}
	if err := store.Set(ctx, "access_token", "a1"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if err := store.Set(ctx, "refresh_token", "r1"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600, got %v", perm)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file must not survive a write")
	}

	reopened := NewFileStore(path, zerolog.Nop())
	v, found, err := reopened.Get(ctx, "refresh_token")
	if err != nil || !found || v != "r1" {
		t.Fatalf("Get = %q, %v, %v", v, found, err)
	}

	if err := reopened.Remove(ctx, "access_token"); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
	if _, found, _ := store.Get(ctx, "access_token"); found {
		t.Fatalf("expected key removed")
	}
	if err := store.Remove(ctx, "missing"); err != nil {
		t.Fatalf("removing a missing key must not fail: %v", err)
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{oops"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	store := NewFileStore(path, zerolog.Nop())

	if _, _, err := store.Get(ctx, "access_token"); err == nil {
		t.Fatalf("expected decode error for a corrupt file")
	}
	if err := store.Set(ctx, "access_token", "a1"); err != nil {
		t.Fatalf("Set must recover from a corrupt file: %v", err)
	}
	if v, _, err := store.Get(ctx, "access_token"); err != nil || v != "a1" {
		t.Fatalf("Get = %q, %v", v, err)
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_ = store.Set(ctx, "k", "v")
	if v, found, _ := store.Get(ctx, "k"); !found || v != "v" {
		t.Fatalf("Get = %q, %v", v, found)
	}
	_ = store.Remove(ctx, "k")
	if _, found, _ := store.Get(ctx, "k"); found {
		t.Fatalf("expected key removed")
	}
}
