package main

import (
	"context"

	"github.com/kestrelnet/kestrel/pkg/auth"
	"github.com/kestrelnet/kestrel/pkg/network"
	"github.com/kestrelnet/kestrel/pkg/protocol"
)

// attrUser is the connection attribute holding the logged-in username.
const attrUser = "user"

// loginHandler runs the authenticator in the delayed phase, serialized
// with every other session mutation, and answers with LoginResult.
type loginHandler struct {
	conn     *network.Conn
	authn    *auth.Authenticator
	username string
	password string
}

func (h *loginHandler) Immediate(ctx context.Context) error {
	return nil
}

func (h *loginHandler) Delayed(ctx context.Context) error {
	_, err := h.authn.Login(ctx, h.username, h.password, h.conn.ID())
	if err == nil {
		h.conn.SetAttr(attrUser, h.username)
	}
	return h.reply(err)
}

func (h *loginHandler) reply(loginErr error) error {
	env, err := h.conn.Registry().NewEnvelope("LoginResult")
	if err != nil {
		return err
	}
	msg := ""
	if loginErr != nil {
		msg = loginErr.Error()
	}
	if err := env.Set("ok", loginErr == nil); err != nil {
		return err
	}
	if err := env.Set("error", msg); err != nil {
		return err
	}
	return h.conn.Send(env)
}

type logoutHandler struct {
	conn  *network.Conn
	authn *auth.Authenticator
}

func (h *logoutHandler) Immediate(ctx context.Context) error { return nil }

func (h *logoutHandler) Delayed(ctx context.Context) error {
	username, ok := h.conn.Attr(attrUser)
	if !ok {
		return nil
	}
	if err := h.authn.Logout(ctx, username, h.conn.ID()); err != nil {
		return err
	}
	h.conn.SetAttr(attrUser, "")
	return nil
}

// echoHandler sends the text straight back.
type echoHandler struct {
	conn *network.Conn
	text string
}

func (h *echoHandler) Immediate(ctx context.Context) error { return nil }

func (h *echoHandler) Delayed(ctx context.Context) error {
	env, err := h.conn.Registry().NewEnvelope("EchoReply")
	if err != nil {
		return err
	}
	if err := env.Set("text", h.text); err != nil {
		return err
	}
	return h.conn.Send(env)
}

// sayHandler broadcasts a chat line to every other connection. Runs in
// the delayed phase because it touches the whole arena.
type sayHandler struct {
	conn *network.Conn
	srv  *network.Server
	text string
}

func (h *sayHandler) Immediate(ctx context.Context) error { return nil }

func (h *sayHandler) Delayed(ctx context.Context) error {
	from, ok := h.conn.Attr(attrUser)
	if !ok || from == "" {
		return nil // only logged-in users may chat
	}
	env, err := h.conn.Registry().NewEnvelope("Chat")
	if err != nil {
		return err
	}
	if err := env.Set("from", from); err != nil {
		return err
	}
	if err := env.Set("text", h.text); err != nil {
		return err
	}
	h.srv.Broadcast(env, h.conn.ID())
	return nil
}

// bindAppHandlers wires the demo handlers into the dispatcher. The
// server pointer is resolved lazily because the dispatcher is built
// before the server.
func bindAppHandlers(disp *network.Dispatcher, authn *auth.Authenticator, srv func() *network.Server) error {
	if err := disp.Bind("Login", func(c *network.Conn, env *protocol.Envelope) network.Handler {
		h := &loginHandler{conn: c, authn: authn}
		h.username, _ = env.String("username")
		h.password, _ = env.String("password")
		return h
	}); err != nil {
		return err
	}

	if err := disp.Bind("Logout", func(c *network.Conn, env *protocol.Envelope) network.Handler {
		return &logoutHandler{conn: c, authn: authn}
	}); err != nil {
		return err
	}

	if err := disp.Bind("Echo", func(c *network.Conn, env *protocol.Envelope) network.Handler {
		h := &echoHandler{conn: c}
		h.text, _ = env.String("text")
		return h
	}); err != nil {
		return err
	}

	return disp.Bind("Say", func(c *network.Conn, env *protocol.Envelope) network.Handler {
		h := &sayHandler{conn: c, srv: srv()}
		h.text, _ = env.String("text")
		return h
	})
}
