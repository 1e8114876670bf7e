package network

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/kestrelnet/kestrel/pkg/auth"
	"github.com/kestrelnet/kestrel/pkg/protocol"
)

// Config holds server tuning.
type Config struct {
	Addr         string
	TickPeriod   time.Duration
	PingInterval time.Duration
	Logger       logrus.FieldLogger
}

// DefaultConfig returns the defaults used by the daemon.
func DefaultConfig() Config {
	return Config{
		Addr:         ":7310",
		TickPeriod:   50 * time.Millisecond,
		PingInterval: 5 * time.Second,
		Logger:       logrus.StandardLogger(),
	}
}

// Server owns the listener, the connection arena, and the tick loop.
// Connections are held in an arena keyed by id; nothing below the server
// keeps a pointer back up, so there are no reference cycles to manage.
type Server struct {
	cfg  Config
	reg  *protocol.Registry
	disp *Dispatcher
	auth *auth.Authenticator
	log  logrus.FieldLogger

	ln        net.Listener
	nextID    atomic.Uint64
	mu        sync.RWMutex
	conns     map[uint64]*Conn
	done      chan struct{}
	wg        sync.WaitGroup
	startedAt time.Time
}

// NewServer assembles a server. The authenticator may be nil when the
// application has no login surface.
func NewServer(cfg Config, reg *protocol.Registry, disp *Dispatcher, authn *auth.Authenticator) *Server {
	if cfg.TickPeriod <= 0 {
		cfg.TickPeriod = DefaultConfig().TickPeriod
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultConfig().PingInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Server{
		cfg:   cfg,
		reg:   reg,
		disp:  disp,
		auth:  authn,
		log:   cfg.Logger,
		conns: make(map[uint64]*Conn),
		done:  make(chan struct{}),
	}
}

// Start binds the listener and launches the accept and tick loops.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.Wrap(err, "listen failed")
	}
	s.ln = ln
	s.startedAt = time.Now()

	s.wg.Add(2)
	go s.acceptLoop()
	go s.tickLoop()

	s.log.WithField("addr", ln.Addr().String()).Info("server listening")
	return nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// StartedAt returns when the server began listening.
func (s *Server) StartedAt() time.Time {
	return s.startedAt
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		sock, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			s.log.WithError(err).Warn("accept failed")
			return
		}

		c, err := s.register(sock)
		if err != nil {
			s.log.WithError(err).Warn("connection setup failed")
			_ = sock.Close()
			continue
		}
		if err := c.Start(); err != nil {
			s.log.WithError(err).Warn("connection start failed")
		}
	}
}

func (s *Server) register(sock net.Conn) (*Conn, error) {
	id := s.nextID.Add(1)
	c, err := newConn(id, sock, s.reg, s.disp, s.cfg.TickPeriod, s.log)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.conns[id] = c
	s.mu.Unlock()
	s.log.WithFields(logrus.Fields{"conn": id, "remote": sock.RemoteAddr().String()}).Info("connection accepted")
	return c, nil
}

func (s *Server) tickLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.TickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Tick(context.Background())
		case <-s.done:
			return
		}
	}
}

// Tick runs one update cycle: drain every connection's delayed queue,
// enqueue pings that are due, and sweep dead connections. All
// cross-connection state mutation happens here, serialized.
func (s *Server) Tick(ctx context.Context) {
	now := time.Now()
	for _, c := range s.snapshot() {
		if c.State() >= LifecycleShuttingDown {
			s.sweep(ctx, c)
			continue
		}
		c.DrainDelayed(ctx)
		if c.ping.Due(now, s.cfg.PingInterval) {
			if err := c.SendPing(); err != nil {
				c.log.WithError(err).Debug("ping enqueue failed")
			}
		}
	}
}

// sweep removes a dead connection from the arena and force-logs-out any
// session still bound to it, so the identity can log in again from a new
// connection within one tick of the disconnect.
func (s *Server) sweep(ctx context.Context, c *Conn) {
	if s.auth != nil {
		released, err := s.auth.ReleaseConnection(ctx, c.ID())
		if err != nil {
			s.log.WithError(err).Warn("emergency logout failed")
		}
		for _, username := range released {
			s.log.WithFields(logrus.Fields{"conn": c.ID(), "user": username}).Info("emergency logout")
		}
	}
	s.mu.Lock()
	delete(s.conns, c.ID())
	s.mu.Unlock()
}

func (s *Server) snapshot() []*Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	return out
}

// Conn looks a connection up by arena id.
func (s *Server) Conn(id uint64) (*Conn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conns[id]
	return c, ok
}

// Conns returns the live connections.
func (s *Server) Conns() []*Conn {
	return s.snapshot()
}

// Broadcast sends an envelope to every running connection except the
// excluded id (0 excludes nobody).
func (s *Server) Broadcast(env *protocol.Envelope, exceptID uint64) {
	for _, c := range s.snapshot() {
		if c.ID() == exceptID || c.State() != LifecycleRunning {
			continue
		}
		if err := c.Send(env); err != nil {
			c.log.WithError(err).Debug("broadcast send failed")
		}
	}
}

// Stop closes the listener and every connection, then waits for the
// loops to return.
func (s *Server) Stop() {
	close(s.done)
	if s.ln != nil {
		_ = s.ln.Close()
	}
	for _, c := range s.snapshot() {
		_ = c.Close()
	}
	s.wg.Wait()
	s.log.Info("server stopped")
}
