// Package identity manages creation, encryption and loading of the local identity.
//
// It enforces passphrase policy, generates the long-term RSA key pair,
// persists it via the domain.KeyStore and publishes the public half to
// the directory service at registration.
package identity
