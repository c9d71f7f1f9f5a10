package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"parley/internal/domain"
)

var (
	// ErrKeyNotFound is returned when no identity exists for the owner.
	ErrKeyNotFound = errors.New("private key not found")

	// ErrStorage is returned when the key location cannot be written.
	ErrStorage = errors.New("key storage unavailable")
)

// KeyFileStore persists the local identity to disk, one record per
// owner. Each record is sealed under the owner's passphrase and bound
// to the owner's ID, so records cannot be swapped between owners.
type KeyFileStore struct {
	dir string
	kdf kdfParams
	mu  sync.Mutex
}

// NewKeyFileStore returns a KeyFileStore rooted at dir.
func NewKeyFileStore(dir string) *KeyFileStore {
	return &KeyFileStore{dir: dir, kdf: defaultKDFParams()}
}

// SaveIdentity writes the encrypted identity to the owner's record.
// The write is atomic: either the full record lands or nothing changes.
func (s *KeyFileStore) SaveIdentity(passphrase string, id domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(id)
	if err != nil {
		return err
	}
	ct, err := seal(passphrase, string(id.UserID), raw, s.kdf)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := writeFile(s.path(id.UserID), ct, 0o600); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// LoadIdentity reads and decrypts the owner's identity.
func (s *KeyFileStore) LoadIdentity(passphrase string, owner domain.UserID) (domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path(owner))
	if errors.Is(err, os.ErrNotExist) {
		return domain.Identity{}, ErrKeyNotFound
	}
	if err != nil {
		return domain.Identity{}, err
	}
	pt, err := open(passphrase, string(owner), b)
	if err != nil {
		return domain.Identity{}, err
	}
	var id domain.Identity
	if err := json.Unmarshal(pt, &id); err != nil {
		return domain.Identity{}, err
	}
	return id, nil
}

func (s *KeyFileStore) path(owner domain.UserID) string {
	return filepath.Join(s.dir, string(owner)+".key.enc")
}

// Compile-time assertion that KeyFileStore implements domain.KeyStore.
var _ domain.KeyStore = (*KeyFileStore)(nil)
