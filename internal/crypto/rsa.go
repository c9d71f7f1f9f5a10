package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"
)

// KeyBits is the RSA modulus size for identity and server keys.
const KeyBits = 2048

var (
	// ErrUnwrap is returned when a wrapped key was not produced for
	// this key pair or has been corrupted.
	ErrUnwrap = errors.New("cannot unwrap key")

	// ErrMessageTooLong is returned when a public-channel payload
	// exceeds the OAEP capacity of the server key.
	ErrMessageTooLong = errors.New("message exceeds public-channel limit")
)

// GenerateRSA returns a new 2048-bit identity key pair.
func GenerateRSA() (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, KeyBits)
}

// WrapKey encrypts a 256-bit symmetric key for one recipient using
// RSA-OAEP with SHA-256.
func WrapKey(key []byte, pub *rsa.PublicKey) ([]byte, error) {
	if len(key) != SymmetricKeySize {
		return nil, ErrBadKeySize
	}
	return rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
}

// UnwrapKey recovers a symmetric key wrapped for our key pair.
func UnwrapKey(blob []byte, priv *rsa.PrivateKey) ([]byte, error) {
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, blob, nil)
	if err != nil {
		return nil, ErrUnwrap
	}
	if len(key) != SymmetricKeySize {
		Wipe(key)
		return nil, ErrUnwrap
	}
	return key, nil
}

// MaxServerPayload is the largest plaintext WrapForServer accepts for
// the given key: k - 2*hLen - 2 per RFC 8017.
func MaxServerPayload(pub *rsa.PublicKey) int {
	return pub.Size() - 2*sha256.Size - 2
}

// WrapForServer encrypts a public-channel payload directly under the
// server's key. Payloads beyond the OAEP capacity are rejected before
// any encryption happens.
func WrapForServer(plaintext []byte, pub *rsa.PublicKey) ([]byte, error) {
	if max := MaxServerPayload(pub); len(plaintext) > max {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrMessageTooLong, len(plaintext), max)
	}
	return rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, plaintext, nil)
}

// UnwrapFromServer is the server-side inverse of WrapForServer.
func UnwrapFromServer(blob []byte, priv *rsa.PrivateKey) ([]byte, error) {
	pt, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, blob, nil)
	if err != nil {
		return nil, ErrCiphertext
	}
	return pt, nil
}
