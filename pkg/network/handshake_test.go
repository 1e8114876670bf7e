package network

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelnet/kestrel/pkg/protocol"
)

// testPeer is one side of an in-memory handshake.
type testPeer struct {
	reg   *protocol.Registry
	codec *FrameCodec
	hs    *Handshake
}

func newTestPeer(t *testing.T) *testPeer {
	t.Helper()
	reg := protocol.NewRegistry()
	codec := NewFrameCodec(reg)
	hs, err := NewHandshake(codec)
	require.NoError(t, err)
	return &testPeer{reg: reg, codec: codec, hs: hs}
}

func TestHandshakeExchange(t *testing.T) {
	alice := newTestPeer(t)
	bob := newTestPeer(t)

	assert.Equal(t, HandshakeNone, alice.hs.State())
	assert.Equal(t, HandshakeNone, bob.hs.State())

	// Both sides announce their public keys.
	aliceHello, err := alice.hs.PublicKeyEnvelope(alice.reg)
	require.NoError(t, err)
	bobHello, err := bob.hs.PublicKeyEnvelope(bob.reg)
	require.NoError(t, err)

	// Each side answers the peer's key with a wrapped session key.
	alicePub, err := aliceHello.Bytes("publicKey")
	require.NoError(t, err)
	bobPub, err := bobHello.Bytes("publicKey")
	require.NoError(t, err)

	aliceWrap, err := alice.hs.OnPeerPublicKey(alice.reg, bobPub)
	require.NoError(t, err)
	assert.Equal(t, HandshakeKeySent, alice.hs.State())

	bobWrap, err := bob.hs.OnPeerPublicKey(bob.reg, alicePub)
	require.NoError(t, err)
	assert.Equal(t, HandshakeKeySent, bob.hs.State())

	// Unwrapping establishes each side.
	aliceWrapped, err := aliceWrap.Bytes("wrappedKey")
	require.NoError(t, err)
	bobWrapped, err := bobWrap.Bytes("wrappedKey")
	require.NoError(t, err)

	require.NoError(t, alice.hs.OnSessionKey(bobWrapped))
	assert.True(t, alice.hs.Established())
	require.NoError(t, bob.hs.OnSessionKey(aliceWrapped))
	assert.True(t, bob.hs.Established())

	// Traffic flows encrypted in both directions.
	require.NoError(t, alice.reg.Register(&protocol.Schema{ID: 1, Name: "Echo", Slots: []protocol.ArgSlot{
		{Name: "text", Tag: protocol.TagString},
	}}))
	require.NoError(t, bob.reg.Register(&protocol.Schema{ID: 1, Name: "Echo", Slots: []protocol.ArgSlot{
		{Name: "text", Tag: protocol.TagString},
	}}))

	var wire bytes.Buffer
	env, err := alice.reg.NewEnvelope("Echo")
	require.NoError(t, err)
	require.NoError(t, env.Set("text", "over the wire"))
	require.NoError(t, alice.codec.WriteEnvelope(&wire, env))

	decoded, err := bob.codec.ReadEnvelope(&wire)
	require.NoError(t, err)
	text, err := decoded.String("text")
	require.NoError(t, err)
	assert.Equal(t, "over the wire", text)
}

func TestHandshakeBadPublicKey(t *testing.T) {
	p := newTestPeer(t)
	_, err := p.hs.OnPeerPublicKey(p.reg, []byte("garbage"))
	assert.ErrorIs(t, err, ErrHandshakeFailed)
	assert.Equal(t, HandshakeNone, p.hs.State())
}

func TestHandshakeBadWrappedKey(t *testing.T) {
	p := newTestPeer(t)
	err := p.hs.OnSessionKey([]byte{0x01, 0x02, 0x03})
	assert.ErrorIs(t, err, ErrHandshakeFailed)
	assert.False(t, p.hs.Established())
}

func TestHandshakeStateString(t *testing.T) {
	assert.Equal(t, "none", HandshakeNone.String())
	assert.Equal(t, "key_sent", HandshakeKeySent.String())
	assert.Equal(t, "established", HandshakeEstablished.String())
}
