package network

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelnet/kestrel/pkg/auth"
)

func TestAdminEndpoints(t *testing.T) {
	serverReg := noteRegistry(t)
	clientReg := noteRegistry(t)

	store := auth.NewMemoryStore()
	require.NoError(t, store.CreateUser("alice", "hunter2"))
	authn := auth.NewAuthenticator(store, quietLogger())

	srv := startTestServer(t, serverReg, NewDispatcher(serverReg), authn)
	client := dialTest(t, srv, clientReg, NewDispatcher(clientReg))
	waitFor(t, client.Handshake().Established, "handshake")
	waitFor(t, func() bool { return len(srv.Conns()) == 1 }, "server connection")

	_, err := authn.Login(context.Background(), "alice", "hunter2", srv.Conns()[0].ID())
	require.NoError(t, err)

	admin := NewAdminServer(srv, authn, "127.0.0.1:0")

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		admin.Handler().ServeHTTP(w, req)
		return w
	}

	w := get("/status")
	require.Equal(t, http.StatusOK, w.Code)
	var status map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.EqualValues(t, 1, status["connections"])

	w = get("/connections")
	require.Equal(t, http.StatusOK, w.Code)
	var conns []ConnInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conns))
	require.Len(t, conns, 1)
	assert.Equal(t, "running", conns[0].Lifecycle)
	assert.Equal(t, "established", conns[0].Handshake)

	w = get("/sessions")
	require.Equal(t, http.StatusOK, w.Code)
	var sessions []SessionInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, "alice", sessions[0].Username)
}

func TestAdminSessionsWithoutAuth(t *testing.T) {
	serverReg := noteRegistry(t)
	srv := startTestServer(t, serverReg, NewDispatcher(serverReg), nil)

	admin := NewAdminServer(srv, nil, "127.0.0.1:0")
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	admin.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}
