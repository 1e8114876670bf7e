package network

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kestrelnet/kestrel/pkg/auth"
)

// AdminServer is a read-only HTTP status surface next to the TCP
// listener: connection counts, per-connection ping averages, and the
// active session table.
type AdminServer struct {
	srv    *Server
	auth   *auth.Authenticator
	router *gin.Engine
	http   *http.Server
}

// ConnInfo is the JSON view of one connection.
type ConnInfo struct {
	ID        uint64            `json:"id"`
	TraceID   string            `json:"traceId"`
	Remote    string            `json:"remote"`
	Lifecycle string            `json:"lifecycle"`
	Handshake string            `json:"handshake"`
	AvgPingMs float64           `json:"avgPingMs"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// SessionInfo is the JSON view of one active session.
type SessionInfo struct {
	Username   string `json:"username"`
	LoggedInAt int64  `json:"loggedInAt"`
	BoundConn  uint64 `json:"boundConn"`
}

// NewAdminServer builds the admin API for a server. The authenticator
// may be nil; /sessions then reports an empty table.
func NewAdminServer(srv *Server, authn *auth.Authenticator, addr string) *AdminServer {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	a := &AdminServer{
		srv:    srv,
		auth:   authn,
		router: router,
		http: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
	a.routes()
	return a
}

func (a *AdminServer) routes() {
	a.router.GET("/status", a.handleStatus)
	a.router.GET("/connections", a.handleConnections)
	a.router.GET("/sessions", a.handleSessions)
}

func (a *AdminServer) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connections": len(a.srv.Conns()),
		"uptimeSec":   int64(time.Since(a.srv.StartedAt()).Seconds()),
	})
}

func (a *AdminServer) handleConnections(c *gin.Context) {
	conns := a.srv.Conns()
	out := make([]ConnInfo, 0, len(conns))
	for _, conn := range conns {
		out = append(out, ConnInfo{
			ID:        conn.ID(),
			TraceID:   conn.TraceID(),
			Remote:    conn.RemoteAddr().String(),
			Lifecycle: conn.State().String(),
			Handshake: conn.Handshake().State().String(),
			AvgPingMs: float64(conn.Ping().Average()) / float64(time.Millisecond),
			Attrs:     conn.Attrs(),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (a *AdminServer) handleSessions(c *gin.Context) {
	out := []SessionInfo{}
	if a.auth != nil {
		for _, s := range a.auth.ActiveSessions() {
			out = append(out, SessionInfo{
				Username:   s.Username,
				LoggedInAt: s.LoggedInAt,
				BoundConn:  s.BoundConnID,
			})
		}
	}
	c.JSON(http.StatusOK, out)
}

// Start serves the admin API in the background.
func (a *AdminServer) Start() error {
	go func() {
		if err := a.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.srv.log.WithError(err).Warn("admin server failed")
		}
	}()
	return nil
}

// Stop shuts the admin API down.
func (a *AdminServer) Stop(ctx context.Context) error {
	return a.http.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (a *AdminServer) Handler() http.Handler {
	return a.router
}
