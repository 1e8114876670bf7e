// Package crypto provides the asymmetric wrap and symmetric session
// cipher used by the Kestrel handshake.
package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
)

var (
	ErrInvalidKey       = errors.New("invalid key")
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// Handshake keypairs live for one connection, so 2048 bits keeps the
// per-accept cost low.
const rsaKeyBits = 2048

// GenerateKeyPair generates a connection-scoped RSA key pair.
func GenerateKeyPair() (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, rsaKeyBits)
}

// ExportPublicKey encodes a public key as PKIX PEM for the wire.
func ExportPublicKey(key *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, err
	}
	block := &pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: der,
	}
	return pem.EncodeToMemory(block), nil
}

// ImportPublicKey decodes a PKIX PEM public key received on the wire.
func ImportPublicKey(pemData []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, ErrInvalidKey
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, ErrInvalidKey
	}
	return rsaPub, nil
}

// WrapKey encrypts a session key with the peer's public key using OAEP.
func WrapKey(sessionKey []byte, publicKey *rsa.PublicKey) ([]byte, error) {
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, publicKey, sessionKey, nil)
	if err != nil {
		return nil, ErrEncryptionFailed
	}
	return wrapped, nil
}

// UnwrapKey decrypts an OAEP-wrapped session key with our private key.
func UnwrapKey(wrapped []byte, privateKey *rsa.PrivateKey) ([]byte, error) {
	sessionKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, privateKey, wrapped, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return sessionKey, nil
}
