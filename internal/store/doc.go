// Package store provides file-based persistence for parley's identity.
//
// The private key is encrypted at rest with a passphrase-derived key
// (scrypt + ChaCha20-Poly1305) and written atomically via a temp file
// and rename, so a failed write never leaves a partial record behind.
// All methods are concurrency-safe via internal locking. Stored files
// live under the user's configured home directory.
package store
