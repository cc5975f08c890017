package admin

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oriumgames/arena"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialFeed(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http")+"/ws", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestFeedStreamsLifecycleEvents(t *testing.T) {
	hub := NewHub(nil, nil)
	t.Cleanup(hub.Close)
	e, _ := startEngine(t, hub)
	ts := newTestServer(t, Config{Engine: e, Hub: hub})

	conn := dialFeed(t, ts.URL)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	resp := do(t, http.MethodPost, ts.URL+"/api/arenas", "", map[string]any{
		"id": "feed", "world": "feed_world", "mode": "solo", "arenaData": map[string]int{"slots": 2},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = do(t, http.MethodPost, ts.URL+"/api/arenas/feed/load", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "load", ev.Type)
	assert.Equal(t, "feed", ev.Arena)
	assert.Equal(t, arena.Waiting.String(), ev.To)

	resp = do(t, http.MethodPost, ts.URL+"/api/arenas/feed/unload", "", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "unload", ev.Type)
}

func TestFeedDisconnect(t *testing.T) {
	hub := NewHub(nil, nil)
	ts := httptest.NewServer(hub)
	t.Cleanup(ts.Close)

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 10*time.Millisecond)

	hub.Close()
	_, resp, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}
