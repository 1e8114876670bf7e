package network

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/kestrelnet/kestrel/pkg/protocol"
)

// DialConfig tunes a client-side connection.
type DialConfig struct {
	// TickPeriod is the drain cadence the caller promises to run; it is
	// also the processing delay subtracted from ping samples.
	TickPeriod time.Duration
	Timeout    time.Duration
	Logger     logrus.FieldLogger
}

// Dial opens a client connection, starts its reader and writer, and
// kicks off the handshake. The caller owns the tick: it must call
// DrainDelayed periodically (or use RunTicks).
func Dial(addr string, reg *protocol.Registry, disp *Dispatcher, cfg DialConfig) (*Conn, error) {
	if cfg.TickPeriod <= 0 {
		cfg.TickPeriod = DefaultConfig().TickPeriod
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	sock, err := net.DialTimeout("tcp", addr, cfg.Timeout)
	if err != nil {
		return nil, errors.Wrap(err, "dial failed")
	}

	c, err := newConn(0, sock, reg, disp, cfg.TickPeriod, cfg.Logger)
	if err != nil {
		_ = sock.Close()
		return nil, err
	}
	if err := c.Start(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// RunTicks drains the connection's delayed queue on the configured
// period until the connection closes. Meant for clients without a world
// loop of their own; blocks the calling goroutine.
func (c *Conn) RunTicks() {
	ticker := time.NewTicker(c.tickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.DrainDelayed(context.Background())
		case <-c.closing:
			c.DrainDelayed(context.Background())
			return
		}
	}
}
