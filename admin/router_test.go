package admin

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/oriumgames/arena"
	"github.com/oriumgames/arena/arenatest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "secret"

// startEngine builds a running engine over fake worlds and a memory store.
func startEngine(t *testing.T, listeners ...arena.Listener) (*arena.Engine, *arenatest.Provider) {
	t.Helper()
	dir := t.TempDir()
	p := arenatest.NewProvider()
	b := arena.NewBuilder().
		Provider(p).
		Worlds(arenatest.NewWorlds(filepath.Join(dir, "worlds"), arenatest.DefaultWorld)).
		Archiver(arenatest.NewArchiver()).
		BackupDir(filepath.Join(dir, "backups"))
	for _, l := range listeners {
		b.Listener(l)
	}
	e := b.Init()
	t.Cleanup(func() { _ = e.Close() })
	return e, p
}

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	limiter := NewIPRateLimiter(RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000})
	t.Cleanup(limiter.Stop)
	cfg.RateLimiter = limiter
	ts := httptest.NewServer(NewRouter(cfg))
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
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

func TestArenaLifecycleOverHTTP(t *testing.T) {
	e, p := startEngine(t)
	ts := newTestServer(t, Config{Engine: e, Token: testToken})
	api := ts.URL + "/api/arenas"

	resp := do(t, http.MethodPost, api, testToken, map[string]any{
		"id":        "Sky",
		"world":     "sky_world",
		"mode":      "solo",
		"arenaData": map[string]int{"slots": 4},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	rec := decode[arena.Record](t, resp)
	assert.Equal(t, "Sky", rec.ID)
	assert.Equal(t, arena.DefaultCountdownTime, rec.CountdownTime)

	known, err := p.Known(t.Context(), "sky")
	require.NoError(t, err)
	assert.True(t, known)

	resp = do(t, http.MethodPost, api, testToken, map[string]any{"id": "sky", "world": "w", "mode": "solo"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = do(t, http.MethodGet, api+"/Sky", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodPost, api+"/Sky/load", testToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decode[ArenaView](t, resp)
	assert.Equal(t, "Sky", view.ID)
	assert.Equal(t, "solo", view.Mode)
	assert.Equal(t, arena.Waiting.String(), view.State)
	assert.Equal(t, 4, view.MaxPlayers)
	assert.Empty(t, view.Players)

	resp = do(t, http.MethodGet, api, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	views := decode[[]ArenaView](t, resp)
	require.Len(t, views, 1)
	assert.Equal(t, "Sky", views[0].ID)

	resp = do(t, http.MethodPost, api+"/Sky/end", testToken, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "waiting arena has no match to end")

	resp = do(t, http.MethodPost, api+"/Sky/unload", testToken, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, http.MethodPost, api+"/Sky/unload", testToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodDelete, api+"/Sky", testToken, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, http.MethodDelete, api+"/Sky", testToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateValidation(t *testing.T) {
	e, _ := startEngine(t)
	ts := newTestServer(t, Config{Engine: e})
	api := ts.URL + "/api/arenas"

	tests := []struct {
		name string
		body any
		want int
	}{
		{"missing world", map[string]any{"id": "a", "mode": "solo"}, http.StatusBadRequest},
		{"unknown mode", map[string]any{"id": "a", "world": "w", "mode": "bedwars"}, http.StatusBadRequest},
		{"unknown field", map[string]any{"id": "a", "world": "w", "mode": "solo", "colour": "red"}, http.StatusBadRequest},
		{"malformed body", "not an object", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, http.MethodPost, api, "", tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestTokenRequiredForMutations(t *testing.T) {
	e, _ := startEngine(t)
	ts := newTestServer(t, Config{Engine: e, Token: testToken})
	api := ts.URL + "/api/arenas"
	body := map[string]any{"id": "a", "world": "w", "mode": "solo"}

	assert.Equal(t, http.StatusUnauthorized, do(t, http.MethodPost, api, "", body).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, do(t, http.MethodPost, api, "wrong", body).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, do(t, http.MethodDelete, api+"/a", "", nil).StatusCode)
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, api, "", nil).StatusCode, "reads need no token")
	assert.Equal(t, http.StatusCreated, do(t, http.MethodPost, api, testToken, body).StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	e, _ := startEngine(t)
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "arena_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()
	ts := newTestServer(t, Config{Engine: e, Gatherer: reg})

	resp := do(t, http.MethodGet, ts.URL+"/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, ts.URL+"/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "arena_test_total 1")
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{arena.ErrArenaNotFound, http.StatusNotFound},
		{fmt.Errorf("read arena x: %w", arena.ErrArenaUnknown), http.StatusNotFound},
		{arena.ErrNotLoaded, http.StatusNotFound},
		{arena.ErrInvalidRecord, http.StatusBadRequest},
		{arena.ErrArenaExists, http.StatusConflict},
		{arena.ErrArenaFull, http.StatusConflict},
		{arena.ErrNotInGame, http.StatusConflict},
		{arena.ErrClosed, http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusOf(tt.err))
		})
	}
}
