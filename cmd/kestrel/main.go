// Package main is the Kestrel demo client: dial, handshake, login, echo,
// then read chat until interrupted.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kestrelnet/kestrel/pkg/network"
	"github.com/kestrelnet/kestrel/pkg/protocol"
)

// loginTimeout bounds how long the blocking login helper waits for the
// server's LoginResult.
const loginTimeout = 30 * time.Second

var (
	logger logrus.FieldLogger = logrus.StandardLogger()

	flagAddr     string
	flagUser     string
	flagPassword string
	flagSay      string
	flagLogLevel string

	rootCmd = &cobra.Command{
		Use:   "kestrel",
		Short: "Kestrel demo client.",
		RunE:  run,
	}
)

func init() {
	rootCmd.Flags().StringVar(&flagAddr, "addr", "127.0.0.1:7310", "server address")
	rootCmd.Flags().StringVar(&flagUser, "user", "", "username (required)")
	rootCmd.Flags().StringVar(&flagPassword, "password", "", "password (required)")
	rootCmd.Flags().StringVar(&flagSay, "say", "", "chat line to broadcast after login")
	rootCmd.Flags().StringVar(&flagLogLevel, "log-level", "info", "log level")
	_ = rootCmd.MarkFlagRequired("user")
	_ = rootCmd.MarkFlagRequired("password")
}

// clientState collects server responses for the main goroutine.
type clientState struct {
	loginResult chan error
}

// loginResultHandler resolves the pending login.
type loginResultHandler struct {
	state *clientState
	ok    bool
	msg   string
}

func (h *loginResultHandler) Immediate(ctx context.Context) error { return nil }

func (h *loginResultHandler) Delayed(ctx context.Context) error {
	if h.ok {
		h.state.loginResult <- nil
	} else {
		h.state.loginResult <- errors.New(h.msg)
	}
	return nil
}

// printHandler logs a received envelope's text fields.
type printHandler struct {
	kind string
	from string
	text string
}

func (h *printHandler) Immediate(ctx context.Context) error { return nil }

func (h *printHandler) Delayed(ctx context.Context) error {
	entry := logger.WithField("text", h.text)
	if h.from != "" {
		entry = entry.WithField("from", h.from)
	}
	entry.Info(h.kind)
	return nil
}

func buildClient(state *clientState) (*protocol.Registry, *network.Dispatcher, error) {
	reg := protocol.NewRegistry()
	schemas := []*protocol.Schema{
		{ID: 1, Name: "Login", Slots: []protocol.ArgSlot{
			{Name: "username", Tag: protocol.TagString},
			{Name: "password", Tag: protocol.TagString},
		}},
		{ID: 2, Name: "LoginResult", Slots: []protocol.ArgSlot{
			{Name: "ok", Tag: protocol.TagBool},
			{Name: "error", Tag: protocol.TagString},
		}},
		{ID: 3, Name: "Logout", Slots: nil},
		{ID: 4, Name: "Echo", Slots: []protocol.ArgSlot{
			{Name: "text", Tag: protocol.TagString},
		}},
		{ID: 5, Name: "EchoReply", Slots: []protocol.ArgSlot{
			{Name: "text", Tag: protocol.TagString},
		}},
		{ID: 6, Name: "Say", Slots: []protocol.ArgSlot{
			{Name: "text", Tag: protocol.TagString},
		}},
		{ID: 7, Name: "Chat", Slots: []protocol.ArgSlot{
			{Name: "from", Tag: protocol.TagString},
			{Name: "text", Tag: protocol.TagString},
		}},
	}
	for _, s := range schemas {
		if err := reg.Register(s); err != nil {
			return nil, nil, err
		}
	}

	disp := network.NewDispatcher(reg)
	err := disp.Bind("LoginResult", func(c *network.Conn, env *protocol.Envelope) network.Handler {
		h := &loginResultHandler{state: state}
		h.ok, _ = env.Bool("ok")
		h.msg, _ = env.String("error")
		return h
	})
	if err != nil {
		return nil, nil, err
	}
	err = disp.Bind("EchoReply", func(c *network.Conn, env *protocol.Envelope) network.Handler {
		h := &printHandler{kind: "echo reply"}
		h.text, _ = env.String("text")
		return h
	})
	if err != nil {
		return nil, nil, err
	}
	err = disp.Bind("Chat", func(c *network.Conn, env *protocol.Envelope) network.Handler {
		h := &printHandler{kind: "chat"}
		h.from, _ = env.String("from")
		h.text, _ = env.String("text")
		return h
	})
	if err != nil {
		return nil, nil, err
	}
	return reg, disp, nil
}

// login sends the Login envelope and blocks until the server answers or
// the timeout elapses.
func login(conn *network.Conn, reg *protocol.Registry, state *clientState) error {
	env, err := reg.NewEnvelope("Login")
	if err != nil {
		return err
	}
	if err := env.Set("username", flagUser); err != nil {
		return err
	}
	if err := env.Set("password", flagPassword); err != nil {
		return err
	}
	if err := conn.Send(env); err != nil {
		return err
	}

	select {
	case err := <-state.loginResult:
		return err
	case <-time.After(loginTimeout):
		return errors.New("login timed out")
	}
}

func run(cmd *cobra.Command, args []string) error {
	level, err := logrus.ParseLevel(flagLogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	state := &clientState{loginResult: make(chan error, 1)}
	reg, disp, err := buildClient(state)
	if err != nil {
		return err
	}

	conn, err := network.Dial(flagAddr, reg, disp, network.DialConfig{Logger: logger})
	if err != nil {
		return err
	}
	defer conn.Close()
	go conn.RunTicks()

	if err := login(conn, reg, state); err != nil {
		return errors.Wrap(err, "login failed")
	}
	logger.WithField("user", flagUser).Info("logged in")

	echo, err := reg.NewEnvelope("Echo")
	if err != nil {
		return err
	}
	if err := echo.Set("text", "hello from "+flagUser); err != nil {
		return err
	}
	if err := conn.Send(echo); err != nil {
		return err
	}

	if flagSay != "" {
		say, err := reg.NewEnvelope("Say")
		if err != nil {
			return err
		}
		if err := say.Set("text", flagSay); err != nil {
			return err
		}
		if err := conn.Send(say); err != nil {
			return err
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logout, err := reg.NewEnvelope("Logout")
	if err == nil {
		_ = conn.Send(logout)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Fatalln(err)
	}
}
