package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entropy-world/entropy/pkg/auth"
	"github.com/entropy-world/entropy/pkg/entity"
	"github.com/entropy-world/entropy/pkg/storage"
	"github.com/entropy-world/entropy/pkg/world"
)

func newTestServer(t *testing.T) (*httptest.Server, *world.World) {
	t.Helper()
	w := world.New(storage.NewMemoryEngine())
	require.NoError(t, w.Bootstrap(context.Background()))
	t.Cleanup(func() { _ = w.Close() })

	srv := New(w, "127.0.0.1:0")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, w
}

func doJSON(t *testing.T, method, url string, body any, basicUser, basicPass string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if basicUser != "" {
		req.SetBasicAuth(basicUser, basicPass)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestRegisterSpawnWalkFlow(t *testing.T) {
	ts, w := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/player",
		map[string]string{"name": "alice", "password": "p"}, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	p := decode[entity.Player](t, resp)
	assert.Equal(t, int32(1), p.ID)
	assert.Equal(t, auth.HashPassword("p"), p.Password,
		"the boundary stores the digest, never the raw password")

	resp = doJSON(t, http.MethodGet, ts.URL+"/player/guest/spawn", nil, "1", "p")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	g := decode[entity.Guest](t, resp)
	assert.Equal(t, int32(1), g.ID)

	// Spawning twice is a precondition failure.
	resp = doJSON(t, http.MethodGet, ts.URL+"/player/guest/spawn", nil, "1", "p")
	assert.Equal(t, http.StatusNotAcceptable, resp.StatusCode)

	// Fund the guest through the harness, then walk over HTTP.
	txn, err := w.Store().Begin(context.Background())
	require.NoError(t, err)
	funded, err := txn.FindGuest(g.ID)
	require.NoError(t, err)
	funded.Energy = 3
	require.NoError(t, txn.UpdateGuest(funded))
	// A non-empty origin node so the walk can exhaust waste heat.
	require.NoError(t, txn.UpdateNode(&entity.Node{ID: funded.Pos, Data: []byte{0, 0}}))
	require.NoError(t, txn.Commit())

	resp = doJSON(t, http.MethodPost, fmt.Sprintf("%s/guest/walk/%d", ts.URL, g.ID),
		map[string]any{"to": []int16{1, 0}}, "1", "p")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	g = decode[entity.Guest](t, resp)
	assert.Equal(t, int64(2), g.Energy)

	// Direction outside the neighborhood.
	resp = doJSON(t, http.MethodPost, fmt.Sprintf("%s/guest/walk/%d", ts.URL, g.ID),
		map[string]any{"to": []int16{2, 0}}, "1", "p")
	assert.Equal(t, http.StatusNotAcceptable, resp.StatusCode)
}

func TestAuthStatuses(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, ts.URL+"/player/guest", nil, "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "missing header")

	resp = doJSON(t, http.MethodGet, ts.URL+"/player/guest", nil, "not-a-number", "p")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "garbled header")

	resp = doJSON(t, http.MethodGet, ts.URL+"/player/guest", nil, "1", "wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "bad credentials")

	resp = doJSON(t, http.MethodGet, ts.URL+"/player/99", nil, "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "unknown public player")
}

func TestPlayerPublicStripsCredential(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/player",
		map[string]string{"name": "alice", "password": "p"}, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/player/1", nil, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "password")
}

func TestNodeEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, ts.URL+"/node/5/-7", nil, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	n := decode[entity.Node](t, resp)

	resp = doJSON(t, http.MethodGet, ts.URL+"/node/bytes/5/-7", nil, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/octet-stream", resp.Header.Get("Content-Type"))
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte(n.Data), raw, "bytes endpoint returns the same cells")

	resp = doJSON(t, http.MethodGet, ts.URL+"/node/msgpack/5/-7", nil, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/msgpack", resp.Header.Get("Content-Type"))
	assert.True(t, strings.Contains(resp.Header.Get("Content-Disposition"), "5--7.msgpack"))
}

func TestWebSocketCommandStream(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/player",
		map[string]string{"name": "alice", "password": "p"}, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	header := http.Header{}
	header.Set("Authorization", basicHeader("1", "p"))

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"op": "spawn_guest"}))
	var reply wsReply
	require.NoError(t, conn.ReadJSON(&reply))
	require.True(t, reply.OK, "spawn over ws: %s", reply.Error)
	assert.Equal(t, "spawn_guest", reply.Op)

	require.NoError(t, conn.WriteJSON(map[string]any{"op": "detect", "guest": 1}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.True(t, reply.OK)

	require.NoError(t, conn.WriteJSON(map[string]any{"op": "walk", "guest": 1, "to": []int16{1, 0}}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.False(t, reply.OK, "zero-energy walk must fail over ws too")

	require.NoError(t, conn.WriteJSON(map[string]any{"op": "no-such-op"}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.False(t, reply.OK)
}

func TestWebSocketRejectsBadCredentials(t *testing.T) {
	ts, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	header := http.Header{}
	header.Set("Authorization", basicHeader("1", "nope"))

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func basicHeader(user, pass string) string {
	req, _ := http.NewRequest(http.MethodGet, "http://x/", nil)
	req.SetBasicAuth(user, pass)
	return req.Header.Get("Authorization")
}
