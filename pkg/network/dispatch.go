package network

import (
	"context"
	"errors"
	"fmt"

	"github.com/kestrelnet/kestrel/pkg/protocol"
)

var (
	ErrHandlerBound   = errors.New("handler already bound")
	ErrHandlerUnknown = errors.New("no schema for handler")
)

// Handler is the unit of message execution. Immediate runs inline on the
// reader goroutine, synchronously with decode, and must only touch
// connection-local state (typically parsing arguments into fields).
// Delayed runs later, once per tick, serialized with all other delayed
// phases; it may mutate shared state and enqueue responses.
type Handler interface {
	Immediate(ctx context.Context) error
	Delayed(ctx context.Context) error
}

// HandlerCtor builds a handler for one decoded envelope on one
// connection.
type HandlerCtor func(*Conn, *protocol.Envelope) Handler

// Dispatcher is the static table from message id to handler constructor.
// It is assembled at bootstrap, before any traffic, and read-only
// afterwards; resolution takes no locks.
type Dispatcher struct {
	reg   *protocol.Registry
	ctors map[uint16]HandlerCtor
}

// NewDispatcher creates a dispatcher with the reserved framework
// handlers (handshake, ping, invalid-message) pre-bound.
func NewDispatcher(reg *protocol.Registry) *Dispatcher {
	d := &Dispatcher{
		reg:   reg,
		ctors: make(map[uint16]HandlerCtor),
	}
	d.ctors[protocol.IDHandshakeKey] = newHandshakeKeyHandler
	d.ctors[protocol.IDSessionKey] = newSessionKeyHandler
	d.ctors[protocol.IDPingRequest] = newPingRequestHandler
	d.ctors[protocol.IDPingResponse] = newPingResponseHandler
	d.ctors[protocol.IDInvalidMessage] = newInvalidReportHandler
	return d
}

// Bind maps the named schema to a handler constructor. Must happen
// before the server starts; rebinding is refused.
func (d *Dispatcher) Bind(name string, ctor HandlerCtor) error {
	s, err := d.reg.ByName(name)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrHandlerUnknown, name)
	}
	if _, ok := d.ctors[s.ID]; ok {
		return fmt.Errorf("%w: %q", ErrHandlerBound, name)
	}
	d.ctors[s.ID] = ctor
	return nil
}

// Resolve picks the handler for a decoded envelope. The decoder's
// unknown-id sentinel, and any id without a bound constructor, resolve
// to the built-in handler that answers the peer with InvalidMessage.
func (d *Dispatcher) Resolve(c *Conn, env *protocol.Envelope) Handler {
	if env.Invalid() {
		return newInvalidResponder(c, env)
	}
	ctor, ok := d.ctors[env.ID()]
	if !ok {
		return newInvalidResponder(c, protocol.InvalidFor(d.reg, env.ID(), env.Name()))
	}
	return ctor(c, env)
}
