// Package admin is the HTTP admin surface of an arena server: listing,
// creating, removing, loading and unloading arenas, ending matches,
// Prometheus metrics and a websocket feed of lifecycle events.
package admin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oriumgames/arena"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Config holds the dependencies of the admin router.
//
// Example usage in tests:
//
//	router := admin.NewRouter(admin.Config{
//	    Engine: engine,
//	    RateLimitConfig: &admin.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
//	})
//	ts := httptest.NewServer(router)
type Config struct {
	// Engine is the running arena engine (required).
	Engine *arena.Engine

	// Hub serves /ws when set.
	Hub *Hub

	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer

	// RateLimiter is an optional pre-configured limiter. If nil, one is
	// created from RateLimitConfig, or DefaultRateLimitConfig.
	RateLimiter     *IPRateLimiter
	RateLimitConfig *RateLimitConfig

	// Token, when set, is required as a bearer token on mutating requests.
	Token string

	// Timeout bounds how long a request waits for the engine. Default: 10s.
	Timeout time.Duration

	Log *zap.Logger
}

type handlers struct {
	engine  *arena.Engine
	timeout time.Duration
	log     *zap.Logger
}

// NewRouter builds the admin router. It opens no listener; only the rate
// limiter created when none is passed starts a cleanup goroutine.
func NewRouter(cfg Config) *chi.Mux {
	if cfg.Engine == nil {
		panic("admin: Config needs an Engine")
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	h := &handlers{engine: cfg.Engine, timeout: cfg.Timeout, log: log.Named("admin")}
	if h.timeout <= 0 {
		h.timeout = 10 * time.Second
	}

	limiter := cfg.RateLimiter
	if limiter == nil {
		rc := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rc = *cfg.RateLimitConfig
		}
		limiter = NewIPRateLimiter(rc)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(limiter.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	if cfg.Hub != nil {
		r.Handle("/ws", cfg.Hub)
	}

	r.Route("/api/arenas", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Group(func(r chi.Router) {
			r.Use(requireToken(cfg.Token))
			r.Post("/", h.create)
			r.Delete("/{id}", h.remove)
			r.Post("/{id}/load", h.load)
			r.Post("/{id}/unload", h.unload)
			r.Post("/{id}/end", h.end)
		})
	})
	return r
}

func (h *handlers) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func requireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, errors.New("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ArenaView is the JSON shape of a loaded arena.
type ArenaView struct {
	ID         string   `json:"id"`
	World      string   `json:"world"`
	Mode       string   `json:"mode"`
	State      string   `json:"state"`
	Players    []string `json:"players"`
	MaxPlayers int      `json:"maxPlayers"`
	Countdown  int      `json:"countdown"`
	ArenaTime  int      `json:"arenaTime"`
	Restarting int      `json:"restarting"`
	Winners    []string `json:"winners,omitempty"`
}

func viewOf(a *arena.Arena) ArenaView {
	v := ArenaView{
		ID:         a.ID(),
		World:      a.WorldName(),
		Mode:       a.Mode().Name(),
		State:      a.State().String(),
		Players:    []string{},
		MaxPlayers: a.Mode().MaxPlayers(),
		Countdown:  a.Timer().Countdown(),
		ArenaTime:  a.Timer().ArenaTime(),
		Restarting: a.Timer().Restarting(),
	}
	for _, s := range a.Mode().Players() {
		v.Players = append(v.Players, s.Name())
	}
	for _, s := range a.Winners() {
		v.Winners = append(v.Winners, s.Name())
	}
	return v
}

// onLoop runs fn on the engine loop and waits for it.
func (h *handlers) onLoop(r *http.Request, fn func()) error {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	return h.engine.ExecWait(ctx, fn)
}

type result[T any] struct {
	v   T
	err error
}

// await starts an asynchronous engine operation on the loop and waits for
// its completion.
func await[T any](h *handlers, r *http.Request, start func(done func(T, error))) (T, error) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	ch := make(chan result[T], 1)
	if err := h.engine.Exec(func() {
		start(func(v T, err error) { ch <- result[T]{v, err} })
	}); err != nil {
		var zero T
		return zero, err
	}
	select {
	case res := <-ch:
		return res.v, res.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (h *handlers) list(w http.ResponseWriter, r *http.Request) {
	var views []ArenaView
	if err := h.onLoop(r, func() {
		views = make([]ArenaView, 0, len(h.engine.Arenas()))
		for _, a := range h.engine.Arenas() {
			views = append(views, viewOf(a))
		}
	}); err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handlers) get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var (
		view  ArenaView
		found bool
	)
	if err := h.onLoop(r, func() {
		if a, ok := h.engine.Arena(id); ok {
			view, found = viewOf(a), true
		}
	}); err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, arena.ErrArenaNotFound)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// createRequest is the body of POST /api/arenas.
type createRequest struct {
	ID             string          `json:"id"`
	World          string          `json:"world"`
	Mode           string          `json:"mode"`
	CountdownTime  int             `json:"countdownTime"`
	ArenaTime      int             `json:"arenaTime"`
	RestartingTime int             `json:"restartingTime"`
	ArenaData      json.RawMessage `json:"arenaData"`
}

func (h *handlers) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	opts := arena.CreateOptions{
		ID:             req.ID,
		World:          req.World,
		Mode:           req.Mode,
		CountdownTime:  req.CountdownTime,
		ArenaTime:      req.ArenaTime,
		RestartingTime: req.RestartingTime,
		ArenaData:      string(req.ArenaData),
	}
	rec, err := await(h, r, func(done func(arena.Record, error)) {
		h.engine.CreateArena(opts, done)
	})
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	h.log.Info("arena created over http", zap.String("arena", rec.ID))
	writeJSON(w, http.StatusCreated, rec)
}

func (h *handlers) remove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	_, err := await(h, r, func(done func(struct{}, error)) {
		h.engine.RemoveArena(id, func(err error) { done(struct{}{}, err) })
	})
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) load(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	view, err := await(h, r, func(done func(ArenaView, error)) {
		h.engine.LoadArena(id, func(a *arena.Arena, err error) {
			if err != nil {
				done(ArenaView{}, err)
				return
			}
			done(viewOf(a), nil)
		})
	})
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handlers) unload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var opErr error
	if err := h.onLoop(r, func() { opErr = h.engine.UnloadArena(id) }); err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	if opErr != nil {
		writeError(w, statusOf(opErr), opErr)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) end(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var opErr error
	if err := h.onLoop(r, func() {
		a, ok := h.engine.Arena(id)
		switch {
		case !ok:
			opErr = arena.ErrArenaNotFound
		case a.State() != arena.InGame:
			opErr = arena.ErrNotInGame
		default:
			a.EndMatch(nil)
		}
	}); err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	if opErr != nil {
		writeError(w, statusOf(opErr), opErr)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// statusOf maps engine errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, arena.ErrArenaNotFound),
		errors.Is(err, arena.ErrArenaUnknown),
		errors.Is(err, arena.ErrNotLoaded):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, arena.ErrClosed):
		return http.StatusServiceUnavailable
	}
	switch arena.KindOf(err) {
	case arena.KindValidation:
		return http.StatusBadRequest
	case arena.KindConflict, arena.KindCapacity, arena.KindState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
