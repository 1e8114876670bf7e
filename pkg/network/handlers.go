package network

import (
	"context"
	"time"

	"github.com/kestrelnet/kestrel/pkg/protocol"
)

// Built-in handlers for the reserved message ids. Handshake and ping are
// connection-local, so all of their work happens in the immediate phase;
// their delayed phases are no-ops.

// handshakeKeyHandler answers the peer's public key with a wrapped
// session key.
type handshakeKeyHandler struct {
	conn *Conn
	env  *protocol.Envelope
}

func newHandshakeKeyHandler(c *Conn, env *protocol.Envelope) Handler {
	return &handshakeKeyHandler{conn: c, env: env}
}

func (h *handshakeKeyHandler) Immediate(ctx context.Context) error {
	pemData, err := h.env.Bytes("publicKey")
	if err != nil {
		return err
	}
	reply, err := h.conn.hs.OnPeerPublicKey(h.conn.reg, pemData)
	if err != nil {
		return err
	}
	return h.conn.Send(reply)
}

func (h *handshakeKeyHandler) Delayed(ctx context.Context) error { return nil }

// sessionKeyHandler unwraps the peer's session key and arms the
// outbound cipher.
type sessionKeyHandler struct {
	conn *Conn
	env  *protocol.Envelope
}

func newSessionKeyHandler(c *Conn, env *protocol.Envelope) Handler {
	return &sessionKeyHandler{conn: c, env: env}
}

func (h *sessionKeyHandler) Immediate(ctx context.Context) error {
	wrapped, err := h.env.Bytes("wrappedKey")
	if err != nil {
		return err
	}
	if err := h.conn.hs.OnSessionKey(wrapped); err != nil {
		return err
	}
	h.conn.log.WithField("state", h.conn.hs.State().String()).Debug("handshake established")
	return nil
}

func (h *sessionKeyHandler) Delayed(ctx context.Context) error { return nil }

// pingRequestHandler echoes the sender's timestamp straight back.
type pingRequestHandler struct {
	conn   *Conn
	sentAt int64
}

func newPingRequestHandler(c *Conn, env *protocol.Envelope) Handler {
	h := &pingRequestHandler{conn: c}
	h.sentAt, _ = env.Int64("sentAt")
	return h
}

func (h *pingRequestHandler) Immediate(ctx context.Context) error {
	reply, err := h.conn.reg.NewEnvelope(protocol.NamePingResponse)
	if err != nil {
		return err
	}
	if err := reply.Set("sentAt", h.sentAt); err != nil {
		return err
	}
	return h.conn.Send(reply)
}

func (h *pingRequestHandler) Delayed(ctx context.Context) error { return nil }

// pingResponseHandler records the round-trip sample.
type pingResponseHandler struct {
	conn   *Conn
	sentAt int64
}

func newPingResponseHandler(c *Conn, env *protocol.Envelope) Handler {
	h := &pingResponseHandler{conn: c}
	h.sentAt, _ = env.Int64("sentAt")
	return h
}

func (h *pingResponseHandler) Immediate(ctx context.Context) error {
	h.conn.ping.Observe(h.sentAt, time.Now(), h.conn.tickPeriod)
	return nil
}

func (h *pingResponseHandler) Delayed(ctx context.Context) error { return nil }

// invalidResponder answers an unrecognized (or unbound) message id by
// sending the peer an InvalidMessage naming it. The response goes out in
// the delayed phase like any other application reply.
type invalidResponder struct {
	conn *Conn
	id   int32
	name string
}

func newInvalidResponder(c *Conn, sentinel *protocol.Envelope) Handler {
	h := &invalidResponder{conn: c}
	h.id, _ = sentinel.Int32("id")
	h.name, _ = sentinel.String("name")
	return h
}

func (h *invalidResponder) Immediate(ctx context.Context) error { return nil }

func (h *invalidResponder) Delayed(ctx context.Context) error {
	h.conn.log.WithField("id", h.id).Warn("unrecognized message id")
	reply := protocol.InvalidFor(h.conn.reg, uint16(h.id), h.name)
	return h.conn.Send(reply)
}

// invalidReportHandler logs an InvalidMessage the peer sent about our
// own traffic. No response, so two confused peers cannot ping-pong.
type invalidReportHandler struct {
	conn *Conn
	id   int32
}

func newInvalidReportHandler(c *Conn, env *protocol.Envelope) Handler {
	h := &invalidReportHandler{conn: c}
	h.id, _ = env.Int32("id")
	return h
}

func (h *invalidReportHandler) Immediate(ctx context.Context) error { return nil }

func (h *invalidReportHandler) Delayed(ctx context.Context) error {
	h.conn.log.WithField("id", h.id).Warn("peer rejected message id")
	return nil
}
