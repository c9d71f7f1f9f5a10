// Package crypto exposes the minimal primitives used by parley.
//
// Contents
//
//   - RSA-2048 identity key generation and DER encoding helpers
//     (GenerateRSA, EncodePublicKey, ParsePublicKey, ...)
//   - Symmetric content coding: fresh 256-bit keys, AES-CBC with PKCS#7
//     padding and an HMAC-SHA-256 tag, iv||ciphertext||tag framing
//     (GenerateSymmetricKey, EncryptContent, DecryptContent)
//   - Per-recipient key wrapping with RSA-OAEP (WrapKey, UnwrapKey) and
//     direct OAEP encryption for the public-channel path (WrapForServer)
//   - Best-effort memory wiping for sensitive byte slices (Wipe)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//
// # Notes
//
// DecryptContent deliberately reports every failure mode as the same
// ErrCiphertext value so callers cannot be used as a padding oracle.
// Callers should treat symmetric keys as single-use and rely on Wipe
// once wrapping completes.
package crypto
