package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// SymmetricKeySize is the content key length in bytes. The key is
	// never used directly: encryption and authentication subkeys are
	// derived from it per message.
	SymmetricKeySize = 32
	// IVSize is the CBC initialization vector length in bytes.
	IVSize = aes.BlockSize
	// TagSize is the HMAC-SHA-256 authentication tag length in bytes.
	TagSize = sha256.Size
)

var (
	// ErrBadKeySize is returned when a symmetric key is not 256 bits.
	ErrBadKeySize = errors.New("symmetric key must be 32 bytes")

	// ErrCiphertext covers every content decryption failure: short
	// input, bad length, bad tag, bad padding, wrong key. One value
	// for all of them so the error cannot distinguish padding from
	// key failures.
	ErrCiphertext = errors.New("cannot decrypt content")
)

// GenerateSymmetricKey returns a fresh 256-bit key from the system CSPRNG.
func GenerateSymmetricKey() ([]byte, error) {
	key := make([]byte, SymmetricKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// EncryptContent encrypts plaintext with AES-256-CBC under a fresh
// random IV, authenticates iv||ciphertext with HMAC-SHA-256, and
// returns iv||ciphertext||tag. The plaintext is padded with PKCS#7
// before encryption. Encryption and MAC subkeys are derived from key
// with HKDF so the wrapped key stays a single 32-byte value.
func EncryptContent(plaintext, key []byte) ([]byte, error) {
	encKey, macKey, err := contentSubkeys(key)
	if err != nil {
		return nil, err
	}
	defer Wipe(encKey)
	defer Wipe(macKey)

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, err
	}

	padded := pad(plaintext)
	out := make([]byte, IVSize+len(padded), IVSize+len(padded)+TagSize)
	iv := out[:IVSize]
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[IVSize:], padded)

	mac := hmac.New(sha256.New, macKey)
	mac.Write(out)
	return mac.Sum(out), nil
}

// DecryptContent verifies the trailing tag over iv||ciphertext, then
// decrypts and strips the padding. All failures surface as
// ErrCiphertext: a flipped bit anywhere in the blob fails the tag
// check before any block is decrypted.
func DecryptContent(blob, key []byte) ([]byte, error) {
	encKey, macKey, err := contentSubkeys(key)
	if err != nil {
		return nil, err
	}
	defer Wipe(encKey)
	defer Wipe(macKey)

	if len(blob) < IVSize+aes.BlockSize+TagSize ||
		(len(blob)-IVSize-TagSize)%aes.BlockSize != 0 {
		return nil, ErrCiphertext
	}
	body, tag := blob[:len(blob)-TagSize], blob[len(blob)-TagSize:]

	mac := hmac.New(sha256.New, macKey)
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), tag) {
		return nil, ErrCiphertext
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, err
	}
	ct := body[IVSize:]
	pt := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, body[:IVSize]).CryptBlocks(pt, ct)
	return unpad(pt)
}

// contentSubkeys expands the message key into independent encryption
// and authentication keys with HKDF-SHA-256.
func contentSubkeys(key []byte) (encKey, macKey []byte, err error) {
	if len(key) != SymmetricKeySize {
		return nil, nil, ErrBadKeySize
	}
	okm := make([]byte, 2*SymmetricKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, nil, []byte("parley content v1")), okm); err != nil {
		return nil, nil, err
	}
	return okm[:SymmetricKeySize], okm[SymmetricKeySize:], nil
}

// pad appends PKCS#7 padding up to the AES block size.
func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	out := make([]byte, len(b)+n)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

// unpad validates and strips PKCS#7 padding. The tag check has already
// rejected tampered input; the padding bytes are still checked without
// data-dependent branching so that malformed padding takes the same
// path as valid padding.
func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 || len(b)%aes.BlockSize != 0 {
		return nil, ErrCiphertext
	}
	n := int(b[len(b)-1])
	good := subtle.ConstantTimeLessOrEq(1, n) & subtle.ConstantTimeLessOrEq(n, aes.BlockSize)

	// Examine a fixed window of one block regardless of n.
	start := len(b) - aes.BlockSize
	for i := start; i < len(b); i++ {
		inPad := subtle.ConstantTimeLessOrEq(len(b)-i, n)
		match := subtle.ConstantTimeByteEq(b[i], byte(n))
		good &= subtle.ConstantTimeSelect(inPad, match, 1)
	}
	if good != 1 {
		return nil, ErrCiphertext
	}
	return b[:len(b)-n], nil
}
