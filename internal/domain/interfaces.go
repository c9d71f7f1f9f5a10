package domain

import "context"

// KeyStore persists the local identity. The private key is encrypted at
// rest and only ever returned to the caller holding the passphrase.
type KeyStore interface {
	SaveIdentity(passphrase string, id Identity) error
	LoadIdentity(passphrase string, owner UserID) (Identity, error)
}

// DirectoryClient talks to the external directory/auth service.
type DirectoryClient interface {
	Register(ctx context.Context, username, passwordHash string, publicKey []byte) error
	Authenticate(ctx context.Context, username, passwordHash string) (AuthResult, error)
}

// TransportClient talks to the external transport/session service.
// Deliver hands over a finished envelope; the transport owns retries.
type TransportClient interface {
	Deliver(ctx context.Context, token string, env Envelope) error
	Rooms(ctx context.Context, token string) ([]Room, error)
	DirectRoom(ctx context.Context, token string, peer UserID) (Room, error)
	Subscribe(ctx context.Context, token string) (<-chan Event, error)
}

// IdentityService creates and inspects the local identity.
type IdentityService interface {
	Generate(passphrase, username string) (Identity, Fingerprint, error)
	Fingerprint(passphrase string, owner UserID) (Fingerprint, error)
	Register(ctx context.Context, passphrase, username, passwordHash string) error
}
