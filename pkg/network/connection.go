package network

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kestrelnet/kestrel/pkg/protocol"
)

var (
	ErrConnClosed = errors.New("connection closed")
)

// Lifecycle is the connection lifecycle state.
type Lifecycle int32

const (
	LifecycleCreated Lifecycle = iota
	LifecycleRunning
	LifecycleShuttingDown
	LifecycleClosed
)

func (l Lifecycle) String() string {
	switch l {
	case LifecycleCreated:
		return "created"
	case LifecycleRunning:
		return "running"
	case LifecycleShuttingDown:
		return "shutting_down"
	case LifecycleClosed:
		return "closed"
	}
	return "unknown"
}

const (
	outboundDepth = 64
	// joinTimeout bounds how long Close waits for the reader and writer
	// to return before closing the socket under them.
	joinTimeout = 2 * time.Second
)

// Conn is one live connection: the transport, its frame codec and
// handshake, the ping tracker, the outbound queue fed to the writer
// goroutine, and the delayed-phase queue drained by the tick loop.
type Conn struct {
	id      uint64
	traceID string
	sock    net.Conn

	reg   *protocol.Registry
	codec *FrameCodec
	hs    *Handshake
	ping  *PingTracker
	disp  *Dispatcher
	log   logrus.FieldLogger

	tickPeriod time.Duration

	outbound chan *protocol.Envelope
	delayed  pendingQueue

	lifecycle atomic.Int32
	closing   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	errMu sync.Mutex
	err   error

	attrMu sync.RWMutex
	attrs  map[string]string
}

func newConn(id uint64, sock net.Conn, reg *protocol.Registry, disp *Dispatcher,
	tickPeriod time.Duration, log logrus.FieldLogger) (*Conn, error) {

	codec := NewFrameCodec(reg)
	hs, err := NewHandshake(codec)
	if err != nil {
		return nil, err
	}

	traceID := uuid.NewString()
	c := &Conn{
		id:         id,
		traceID:    traceID,
		sock:       sock,
		reg:        reg,
		codec:      codec,
		hs:         hs,
		ping:       NewPingTracker(),
		disp:       disp,
		log:        log.WithFields(logrus.Fields{"conn": id, "trace": traceID}),
		tickPeriod: tickPeriod,
		outbound:   make(chan *protocol.Envelope, outboundDepth),
		closing:    make(chan struct{}),
		attrs:      make(map[string]string),
	}
	return c, nil
}

// ID returns the arena id of the connection.
func (c *Conn) ID() uint64 {
	return c.id
}

// TraceID returns the log correlation id.
func (c *Conn) TraceID() string {
	return c.traceID
}

// RemoteAddr returns the peer's network address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.sock.RemoteAddr()
}

// State returns the lifecycle state.
func (c *Conn) State() Lifecycle {
	return Lifecycle(c.lifecycle.Load())
}

// Registry returns the schema registry the connection decodes against.
func (c *Conn) Registry() *protocol.Registry {
	return c.reg
}

// Handshake returns the handshake state machine.
func (c *Conn) Handshake() *Handshake {
	return c.hs
}

// Ping returns the latency tracker.
func (c *Conn) Ping() *PingTracker {
	return c.ping
}

// SetAttr stores an opaque connection attribute, e.g. a negotiated
// display name.
func (c *Conn) SetAttr(key, value string) {
	c.attrMu.Lock()
	c.attrs[key] = value
	c.attrMu.Unlock()
}

// Attr reads a connection attribute.
func (c *Conn) Attr(key string) (string, bool) {
	c.attrMu.RLock()
	v, ok := c.attrs[key]
	c.attrMu.RUnlock()
	return v, ok
}

// Attrs returns a copy of the attribute bag.
func (c *Conn) Attrs() map[string]string {
	c.attrMu.RLock()
	defer c.attrMu.RUnlock()
	out := make(map[string]string, len(c.attrs))
	for k, v := range c.attrs {
		out[k] = v
	}
	return out
}

// Start launches the reader and writer goroutines and announces our
// public key to the peer.
func (c *Conn) Start() error {
	if !c.lifecycle.CompareAndSwap(int32(LifecycleCreated), int32(LifecycleRunning)) {
		return ErrConnClosed
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.writeLoop()

	hello, err := c.hs.PublicKeyEnvelope(c.reg)
	if err != nil {
		c.fail(err)
		return err
	}
	return c.Send(hello)
}

// Send enqueues an envelope for the writer goroutine. Blocks while the
// outbound queue is full; fails once shutdown has begun.
func (c *Conn) Send(env *protocol.Envelope) error {
	select {
	case <-c.closing:
		return ErrConnClosed
	default:
	}
	select {
	case c.outbound <- env:
		return nil
	case <-c.closing:
		return ErrConnClosed
	}
}

// SendPing enqueues a ping request stamped with the current time.
func (c *Conn) SendPing() error {
	env, err := c.reg.NewEnvelope(protocol.NamePingRequest)
	if err != nil {
		return err
	}
	if err := env.Set("sentAt", time.Now().UnixMilli()); err != nil {
		return err
	}
	return c.Send(env)
}

// DrainDelayed runs the delayed phase of every queued handler in strict
// receipt order. Called once per tick by the owning loop; handler errors
// are logged, not fatal.
func (c *Conn) DrainDelayed(ctx context.Context) {
	for _, h := range c.delayed.takeAll() {
		if err := h.Delayed(ctx); err != nil {
			c.log.WithError(err).Warn("delayed phase failed")
		}
	}
}

// readLoop is the reader goroutine: blocking read, decode, immediate
// phase inline, then queue for the next tick drain.
func (c *Conn) readLoop() {
	defer c.wg.Done()
	ctx := context.Background()

	for {
		env, err := c.codec.ReadEnvelope(c.sock)
		if err != nil {
			c.fail(err)
			return
		}

		h := c.disp.Resolve(c, env)
		if err := h.Immediate(ctx); err != nil {
			// Immediate failures are connection-local by contract, so
			// the connection is what they poison.
			c.fail(err)
			return
		}
		c.delayed.push(h)
	}
}

// writeLoop is the writer goroutine: blocking dequeue, encode, write.
func (c *Conn) writeLoop() {
	defer c.wg.Done()

	for {
		select {
		case env := <-c.outbound:
			if err := c.codec.WriteEnvelope(c.sock, env); err != nil {
				c.fail(err)
				return
			}
		case <-c.closing:
			c.flushOutbound()
			return
		}
	}
}

// flushOutbound writes whatever is still queued, best effort. Delivery
// is not guaranteed once shutdown begins.
func (c *Conn) flushOutbound() {
	for {
		select {
		case env := <-c.outbound:
			_ = c.sock.SetWriteDeadline(time.Now().Add(joinTimeout))
			if err := c.codec.WriteEnvelope(c.sock, env); err != nil {
				return
			}
		default:
			return
		}
	}
}

// fail records the first error and starts an asynchronous shutdown.
func (c *Conn) fail(err error) {
	c.errMu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.errMu.Unlock()

	// Deadline errors during an orderly Close are not worth a warning.
	select {
	case <-c.closing:
	default:
		if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
			c.log.WithError(err).Warn("connection error")
		}
	}
	go c.Close()
}

// Err returns the error that terminated the connection, if any.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close shuts the connection down: flips the lifecycle, unblocks both
// loops, joins them with a bounded timeout, and closes the transport.
// Safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.lifecycle.Store(int32(LifecycleShuttingDown))
		close(c.closing)

		// Unblock the reader's pending read.
		_ = c.sock.SetReadDeadline(time.Now())

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(joinTimeout):
			c.log.Warn("reader/writer join timed out")
		}

		_ = c.sock.Close()
		c.lifecycle.Store(int32(LifecycleClosed))
		c.log.Debug("connection closed")
	})
	return nil
}
