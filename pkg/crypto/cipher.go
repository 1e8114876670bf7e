package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
)

var ErrCiphertextTooShort = errors.New("ciphertext too short")

// SessionKeySize is the AES-256 key length exchanged by the handshake.
const SessionKeySize = 32

// NewSessionKey generates a random symmetric session key.
func NewSessionKey() ([]byte, error) {
	key := make([]byte, SessionKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// SessionCipher seals and opens envelope payloads with AES-256-GCM once
// the handshake has established a key for one direction of a connection.
type SessionCipher struct {
	aead cipher.AEAD
}

// NewSessionCipher builds a cipher around an established session key.
func NewSessionCipher(key []byte) (*SessionCipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &SessionCipher{aead: aead}, nil
}

// Seal encrypts plaintext. The random nonce is prepended to the result.
func (c *SessionCipher) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a payload produced by Seal.
func (c *SessionCipher) Open(ciphertext []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, ErrCiphertextTooShort
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
