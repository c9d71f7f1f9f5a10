package identity

import (
	"context"
	"fmt"
	"unicode"

	"parley/internal/crypto"
	"parley/internal/domain"
)

const (
	// minPassphraseLength defines the minimum number of characters required for a passphrase.
	minPassphraseLength = 12
)

var (
	// ErrWeakPassphrase is returned when the passphrase fails the strength policy.
	ErrWeakPassphrase = fmt.Errorf(
		"passphrase is too weak (must be at least %d characters and include upper, lower, "+
			"number, and symbol)",
		minPassphraseLength,
	)
)

// Service manages identity key creation and access using a backing store.
//
// The identity contains a single 2048-bit RSA key pair used both to
// receive wrapped message keys and to prove account ownership to the
// directory. It is generated exactly once, at registration, and never
// regenerated implicitly.
type Service struct {
	store     domain.KeyStore
	directory domain.DirectoryClient
}

// New returns an identity service backed by the given store and directory.
func New(store domain.KeyStore, directory domain.DirectoryClient) *Service {
	return &Service{store: store, directory: directory}
}

// Generate creates a new identity, saves it encrypted with the
// passphrase, and returns the identity plus a short fingerprint of the
// public key.
func (s *Service) Generate(passphrase, username string) (domain.Identity, domain.Fingerprint, error) {
	if !isSecurePassphrase(passphrase) {
		return domain.Identity{}, "", ErrWeakPassphrase
	}

	priv, err := crypto.GenerateRSA()
	if err != nil {
		return domain.Identity{}, "", err
	}
	privDER, err := crypto.EncodePrivateKey(priv)
	if err != nil {
		return domain.Identity{}, "", err
	}
	pubDER, err := crypto.EncodePublicKey(&priv.PublicKey)
	if err != nil {
		return domain.Identity{}, "", err
	}

	id := domain.Identity{
		UserID:     domain.UserID(username),
		Username:   username,
		PublicKey:  pubDER,
		PrivateKey: privDER,
	}
	if err := s.store.SaveIdentity(passphrase, id); err != nil {
		return domain.Identity{}, "", err
	}
	return id, domain.Fingerprint(crypto.Fingerprint(id.PublicKey)), nil
}

// Fingerprint returns a short fingerprint of the stored public key.
func (s *Service) Fingerprint(passphrase string, owner domain.UserID) (domain.Fingerprint, error) {
	id, err := s.store.LoadIdentity(passphrase, owner)
	if err != nil {
		return "", err
	}
	return domain.Fingerprint(crypto.Fingerprint(id.PublicKey)), nil
}

// Register publishes the stored public key to the directory under the
// given account. The private key stays local; only the PKIX public
// half goes over the wire.
func (s *Service) Register(ctx context.Context, passphrase, username, passwordHash string) error {
	id, err := s.store.LoadIdentity(passphrase, domain.UserID(username))
	if err != nil {
		return err
	}
	return s.directory.Register(ctx, username, passwordHash, id.PublicKey)
}

// isSecurePassphrase enforces a basic strength policy.
func isSecurePassphrase(passphrase string) bool {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	if len(passphrase) < minPassphraseLength {
		return false
	}
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}

// Compile-time assertion that Service implements domain.IdentityService.
var _ domain.IdentityService = (*Service)(nil)
