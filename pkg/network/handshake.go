package network

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"sync/atomic"

	kcrypto "github.com/kestrelnet/kestrel/pkg/crypto"
	"github.com/kestrelnet/kestrel/pkg/protocol"
)

var ErrHandshakeFailed = errors.New("handshake failed")

// HandshakeState tracks the encrypted-transport bootstrap of one
// connection.
type HandshakeState int32

const (
	HandshakeNone HandshakeState = iota
	HandshakeKeySent
	HandshakeEstablished
)

func (s HandshakeState) String() string {
	switch s {
	case HandshakeNone:
		return "none"
	case HandshakeKeySent:
		return "key_sent"
	case HandshakeEstablished:
		return "established"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Handshake upgrades a connection from plaintext to encrypted. Each side
// sends its public key at connection start. On receiving the peer's
// public key, a side generates a fresh session key, arms its inbound
// cipher with it, and sends it OAEP-wrapped; the key a side generates
// protects the traffic it receives. Unwrapping the peer's session key
// arms the outbound cipher and establishes the handshake.
//
// Any failure (bad key material, undecryptable wrap) is fatal to the
// connection regardless of state; there is no plaintext fallback.
type Handshake struct {
	priv  *rsa.PrivateKey
	codec *FrameCodec
	state atomic.Int32
}

// NewHandshake generates the connection-scoped keypair.
func NewHandshake(codec *FrameCodec) (*Handshake, error) {
	priv, err := kcrypto.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	return &Handshake{priv: priv, codec: codec}, nil
}

// State returns the current handshake state.
func (h *Handshake) State() HandshakeState {
	return HandshakeState(h.state.Load())
}

// Established reports whether the outbound cipher is armed.
func (h *Handshake) Established() bool {
	return h.State() == HandshakeEstablished
}

// PublicKeyEnvelope builds the HandshakeKey envelope announcing our
// public key; sent once when the connection starts.
func (h *Handshake) PublicKeyEnvelope(reg *protocol.Registry) (*protocol.Envelope, error) {
	pemData, err := kcrypto.ExportPublicKey(&h.priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	env, err := reg.NewEnvelope(protocol.NameHandshakeKey)
	if err != nil {
		return nil, err
	}
	if err := env.Set("publicKey", pemData); err != nil {
		return nil, err
	}
	return env, nil
}

// OnPeerPublicKey handles the peer's HandshakeKey: generates a session
// key, arms the inbound cipher with it, and returns the SessionKey
// envelope carrying the wrapped key back to the peer.
func (h *Handshake) OnPeerPublicKey(reg *protocol.Registry, pemData []byte) (*protocol.Envelope, error) {
	peerPub, err := kcrypto.ImportPublicKey(pemData)
	if err != nil {
		return nil, fmt.Errorf("%w: import peer key: %v", ErrHandshakeFailed, err)
	}

	key, err := kcrypto.NewSessionKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	cipher, err := kcrypto.NewSessionCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	h.codec.ArmInbound(cipher)

	wrapped, err := kcrypto.WrapKey(key, peerPub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	env, err := reg.NewEnvelope(protocol.NameSessionKey)
	if err != nil {
		return nil, err
	}
	if err := env.Set("wrappedKey", wrapped); err != nil {
		return nil, err
	}

	h.state.CompareAndSwap(int32(HandshakeNone), int32(HandshakeKeySent))
	return env, nil
}

// OnSessionKey handles the peer's SessionKey: unwraps it and arms the
// outbound cipher. The handshake is established afterwards.
func (h *Handshake) OnSessionKey(wrapped []byte) error {
	key, err := kcrypto.UnwrapKey(wrapped, h.priv)
	if err != nil {
		return fmt.Errorf("%w: unwrap session key: %v", ErrHandshakeFailed, err)
	}
	cipher, err := kcrypto.NewSessionCipher(key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	h.codec.ArmOutbound(cipher)
	h.state.Store(int32(HandshakeEstablished))
	return nil
}
