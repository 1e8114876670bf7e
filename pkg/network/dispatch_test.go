package network

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelnet/kestrel/pkg/protocol"
)

type nopHandler struct{}

func (nopHandler) Immediate(ctx context.Context) error { return nil }
func (nopHandler) Delayed(ctx context.Context) error   { return nil }

func nopCtor(*Conn, *protocol.Envelope) Handler { return nopHandler{} }

func TestDispatcherBind(t *testing.T) {
	reg := echoRegistry(t)
	d := NewDispatcher(reg)

	require.NoError(t, d.Bind("Echo", nopCtor))

	err := d.Bind("Echo", nopCtor)
	assert.ErrorIs(t, err, ErrHandlerBound)

	err = d.Bind("Missing", nopCtor)
	assert.ErrorIs(t, err, ErrHandlerUnknown)
}

func TestDispatcherReservedPreBound(t *testing.T) {
	reg := protocol.NewRegistry()
	d := NewDispatcher(reg)

	// Binding over a reserved handler is refused.
	err := d.Bind(protocol.NamePingRequest, nopCtor)
	assert.ErrorIs(t, err, ErrHandlerBound)
}

func TestDispatcherResolveFallbacks(t *testing.T) {
	reg := echoRegistry(t)
	d := NewDispatcher(reg)

	// The decoder's sentinel resolves to the invalid responder.
	sentinel := protocol.InvalidFor(reg, 99, "")
	h := d.Resolve(nil, sentinel)
	_, ok := h.(*invalidResponder)
	assert.True(t, ok)

	// A registered schema with no bound handler also answers invalid.
	env, err := reg.NewEnvelope("Echo")
	require.NoError(t, err)
	h = d.Resolve(nil, env)
	_, ok = h.(*invalidResponder)
	assert.True(t, ok)

	// A bound schema resolves to its constructor's handler.
	require.NoError(t, d.Bind("Echo", nopCtor))
	h = d.Resolve(nil, env)
	_, ok = h.(nopHandler)
	assert.True(t, ok)
}
