package network

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelnet/kestrel/pkg/crypto"
	"github.com/kestrelnet/kestrel/pkg/protocol"
)

func echoRegistry(t *testing.T) *protocol.Registry {
	t.Helper()
	reg := protocol.NewRegistry()
	require.NoError(t, reg.Register(&protocol.Schema{ID: 1, Name: "Echo", Slots: []protocol.ArgSlot{
		{Name: "text", Tag: protocol.TagString},
	}}))
	return reg
}

func echoEnvelope(t *testing.T, reg *protocol.Registry, text string) *protocol.Envelope {
	t.Helper()
	env, err := reg.NewEnvelope("Echo")
	require.NoError(t, err)
	require.NoError(t, env.Set("text", text))
	return env
}

func TestFrameCodecPlaintextRoundTrip(t *testing.T) {
	reg := echoRegistry(t)
	codec := NewFrameCodec(reg)

	var stream bytes.Buffer
	require.NoError(t, codec.WriteEnvelope(&stream, echoEnvelope(t, reg, "hi")))

	decoded, err := codec.ReadEnvelope(&stream)
	require.NoError(t, err)
	text, err := decoded.String("text")
	require.NoError(t, err)
	assert.Equal(t, "hi", text)
}

func TestFrameCodecEncryptedRoundTrip(t *testing.T) {
	reg := echoRegistry(t)

	key, err := crypto.NewSessionKey()
	require.NoError(t, err)
	sealCipher, err := crypto.NewSessionCipher(key)
	require.NoError(t, err)
	openCipher, err := crypto.NewSessionCipher(key)
	require.NoError(t, err)

	sender := NewFrameCodec(reg)
	sender.ArmOutbound(sealCipher)
	receiver := NewFrameCodec(reg)
	receiver.ArmInbound(openCipher)

	var stream bytes.Buffer
	require.NoError(t, sender.WriteEnvelope(&stream, echoEnvelope(t, reg, "secret")))

	// The envelope body must not be readable on the wire.
	assert.NotContains(t, stream.String(), "secret")

	decoded, err := receiver.ReadEnvelope(&stream)
	require.NoError(t, err)
	text, err := decoded.String("text")
	require.NoError(t, err)
	assert.Equal(t, "secret", text)
}

func TestFrameCodecEncryptedWithoutKey(t *testing.T) {
	reg := echoRegistry(t)

	key, err := crypto.NewSessionKey()
	require.NoError(t, err)
	c, err := crypto.NewSessionCipher(key)
	require.NoError(t, err)

	sender := NewFrameCodec(reg)
	sender.ArmOutbound(c)

	var stream bytes.Buffer
	require.NoError(t, sender.WriteEnvelope(&stream, echoEnvelope(t, reg, "x")))

	// Receiver never completed a handshake.
	receiver := NewFrameCodec(reg)
	_, err = receiver.ReadEnvelope(&stream)
	assert.ErrorIs(t, err, ErrHandshakeNotEstablished)
}

func TestFrameCodecWrongKey(t *testing.T) {
	reg := echoRegistry(t)

	keyA, err := crypto.NewSessionKey()
	require.NoError(t, err)
	keyB, err := crypto.NewSessionKey()
	require.NoError(t, err)
	cipherA, err := crypto.NewSessionCipher(keyA)
	require.NoError(t, err)
	cipherB, err := crypto.NewSessionCipher(keyB)
	require.NoError(t, err)

	sender := NewFrameCodec(reg)
	sender.ArmOutbound(cipherA)
	receiver := NewFrameCodec(reg)
	receiver.ArmInbound(cipherB)

	var stream bytes.Buffer
	require.NoError(t, sender.WriteEnvelope(&stream, echoEnvelope(t, reg, "x")))

	_, err = receiver.ReadEnvelope(&stream)
	assert.Error(t, err)
}

func TestFrameCodecUnknownIDSentinel(t *testing.T) {
	senderReg := protocol.NewRegistry()
	require.NoError(t, senderReg.Register(&protocol.Schema{ID: 99, Name: "Odd"}))

	sender := NewFrameCodec(senderReg)
	var stream bytes.Buffer
	env, err := senderReg.NewEnvelope("Odd")
	require.NoError(t, err)
	require.NoError(t, sender.WriteEnvelope(&stream, env))

	// Receiver has no schema 99.
	receiver := NewFrameCodec(protocol.NewRegistry())
	decoded, err := receiver.ReadEnvelope(&stream)
	require.NoError(t, err)
	assert.True(t, decoded.Invalid())
	id, err := decoded.Int32("id")
	require.NoError(t, err)
	assert.Equal(t, int32(99), id)
}
