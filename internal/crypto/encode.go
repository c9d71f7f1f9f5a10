package crypto

import (
	"crypto/rsa"
	"crypto/x509"
	"errors"
)

// errNotRSA is returned when DER material parses but is not an RSA key.
var errNotRSA = errors.New("key is not RSA")

// EncodePublicKey serialises an RSA public key as PKIX DER.
func EncodePublicKey(pub *rsa.PublicKey) ([]byte, error) {
	return x509.MarshalPKIXPublicKey(pub)
}

// ParsePublicKey is the inverse of EncodePublicKey.
func ParsePublicKey(der []byte) (*rsa.PublicKey, error) {
	k, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, err
	}
	pub, ok := k.(*rsa.PublicKey)
	if !ok {
		return nil, errNotRSA
	}
	return pub, nil
}

// EncodePrivateKey serialises an RSA private key as PKCS#8 DER.
func EncodePrivateKey(priv *rsa.PrivateKey) ([]byte, error) {
	return x509.MarshalPKCS8PrivateKey(priv)
}

// ParsePrivateKey is the inverse of EncodePrivateKey.
func ParsePrivateKey(der []byte) (*rsa.PrivateKey, error) {
	k, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, err
	}
	priv, ok := k.(*rsa.PrivateKey)
	if !ok {
		return nil, errNotRSA
	}
	return priv, nil
}
