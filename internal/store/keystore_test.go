package store_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"parley/internal/domain"
	"parley/internal/store"
)

func TestIdentity_SaveLoad_OK(t *testing.T) {
	home := t.TempDir()
	pass := "pass"

	var keys domain.KeyStore = store.NewKeyFileStore(home)

	id := domain.Identity{
		UserID:     "alice",
		Username:   "alice",
		PublicKey:  []byte{1, 2, 3},
		PrivateKey: []byte{4, 5, 6},
	}

	if err := keys.SaveIdentity(pass, id); err != nil {
		t.Fatalf("save identity: %v", err)
	}

	got, err := keys.LoadIdentity(pass, "alice")
	if err != nil {
		t.Fatalf("load identity: %v", err)
	}
	if got.UserID != id.UserID || string(got.PrivateKey) != string(id.PrivateKey) {
		t.Fatalf("mismatch after load")
	}
}

func TestIdentity_WrongPassphrase_Fails(t *testing.T) {
	home := t.TempDir()
	var keys domain.KeyStore = store.NewKeyFileStore(home)

	id := domain.Identity{UserID: "alice", PrivateKey: []byte{1}}

	if err := keys.SaveIdentity("correct", id); err != nil {
		t.Fatalf("save identity: %v", err)
	}
	if _, err := keys.LoadIdentity("wrong", "alice"); err == nil {
		t.Fatal("expected error with wrong passphrase")
	}
}

func TestIdentity_RecordBoundToOwner(t *testing.T) {
	home := t.TempDir()
	var keys domain.KeyStore = store.NewKeyFileStore(home)

	id := domain.Identity{UserID: "alice", PrivateKey: []byte{1, 2, 3}}
	if err := keys.SaveIdentity("pass", id); err != nil {
		t.Fatalf("save identity: %v", err)
	}

	// Copy alice's sealed record to bob's path. The blob is bound to
	// its owner, so it must not open under bob even with the right
	// passphrase.
	b, err := os.ReadFile(filepath.Join(home, "alice.key.enc"))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(home, "bob.key.enc"), b, 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := keys.LoadIdentity("pass", "bob"); err == nil {
		t.Fatal("record copied to another owner still opened")
	}
}

func TestIdentity_Missing_KeyNotFound(t *testing.T) {
	var keys domain.KeyStore = store.NewKeyFileStore(t.TempDir())
	if _, err := keys.LoadIdentity("pass", "nobody"); !errors.Is(err, store.ErrKeyNotFound) {
		t.Fatalf("got %v, want ErrKeyNotFound", err)
	}
}

func TestIdentity_UnwritableDir_StorageError(t *testing.T) {
	home := t.TempDir()
	// Occupy the target directory path with a plain file.
	blocked := filepath.Join(home, "keys")
	if err := os.WriteFile(blocked, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	keys := store.NewKeyFileStore(filepath.Join(blocked, "sub"))
	err := keys.SaveIdentity("pass", domain.Identity{UserID: "alice"})
	if !errors.Is(err, store.ErrStorage) {
		t.Fatalf("got %v, want ErrStorage", err)
	}
}

func TestIdentity_NoPartialFileOnDisk(t *testing.T) {
	home := t.TempDir()
	keys := store.NewKeyFileStore(home)

	if err := keys.SaveIdentity("pass", domain.Identity{UserID: "alice"}); err != nil {
		t.Fatal(err)
	}

	// Only the final record should exist, no leftover temp files.
	entries, err := os.ReadDir(home)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "alice.key.enc" {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Fatalf("unexpected files on disk: %v", names)
	}
}
