package admin

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oriumgames/arena"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// sendBuffer is the number of events queued per client before events
	// to that client are dropped.
	sendBuffer = 64

	// MaxFeedClientsPerIP bounds concurrent feed connections per IP.
	MaxFeedClientsPerIP = 10
)

// Event is one message of the live feed.
type Event struct {
	Type    string    `json:"type"`
	Arena   string    `json:"arena"`
	Time    time.Time `json:"time"`
	From    string    `json:"from,omitempty"`
	To      string    `json:"to,omitempty"`
	Player  string    `json:"player,omitempty"`
	Forced  bool      `json:"forced,omitempty"`
	Winners []string  `json:"winners,omitempty"`
	Players int       `json:"players"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	ip   string
}

// Hub streams arena lifecycle events to websocket clients. It is an
// arena.Listener; register it with Builder.Listener.
//
// Concurrency:
// Listener callbacks run on the engine loop and never block: events are
// marshalled once and queued per client, and a client whose queue is full
// misses them.
type Hub struct {
	arena.NopListener

	log      *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	perIP   map[string]int
	closed  bool
}

// NewHub creates a hub. checkOrigin may be nil to accept same-origin
// requests only.
func NewHub(log *zap.Logger, checkOrigin func(r *http.Request) bool) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		log: log.Named("feed"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		clients: make(map[*client]struct{}),
		perIP:   make(map[string]int),
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) HandleLoad(a *arena.Arena) {
	h.publish(Event{Type: "load", Arena: a.ID(), To: a.State().String()})
}

func (h *Hub) HandleUnload(a *arena.Arena) {
	h.publish(Event{Type: "unload", Arena: a.ID()})
}

func (h *Hub) HandleStateChange(a *arena.Arena, from, to arena.State) {
	h.publish(Event{Type: "state", Arena: a.ID(), From: from.String(), To: to.String(), Players: a.Mode().PlayerCount()})
}

func (h *Hub) HandleJoin(a *arena.Arena, s *arena.Snapshot) {
	h.publish(Event{Type: "join", Arena: a.ID(), Player: s.Name(), Players: a.Mode().PlayerCount()})
}

func (h *Hub) HandleQuit(a *arena.Arena, s *arena.Snapshot, forced bool) {
	h.publish(Event{Type: "quit", Arena: a.ID(), Player: s.Name(), Forced: forced, Players: a.Mode().PlayerCount()})
}

func (h *Hub) HandleMatchEnd(a *arena.Arena, winners []*arena.Snapshot) {
	names := make([]string, 0, len(winners))
	for _, w := range winners {
		names = append(names, w.Name())
	}
	h.publish(Event{Type: "match_end", Arena: a.ID(), Winners: names, Players: a.Mode().PlayerCount()})
}

func (h *Hub) publish(ev Event) {
	ev.Time = time.Now().UTC()
	b, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("marshal event", zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.log.Debug("feed client too slow, event dropped", zap.String("ip", c.ip))
		}
	}
}

// ServeHTTP upgrades the request and streams events until the client goes
// away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ip := ClientIP(r)
	if !h.reserve(ip) {
		http.Error(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.release(ip)
		h.log.Debug("websocket upgrade", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer), ip: ip}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		h.release(ip)
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.Debug("feed client connected", zap.String("ip", ip))

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) reserve(ip string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.perIP[ip] >= MaxFeedClientsPerIP {
		return false
	}
	h.perIP[ip]++
	return true
}

func (h *Hub) release(ip string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.perIP[ip]--; h.perIP[ip] <= 0 {
		delete(h.perIP, ip)
	}
}

// remove unregisters c and closes its queue, ending its write pump.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.mu.Unlock()
	h.release(c.ip)
}

// readPump discards client messages and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.remove(c)
	}
}

var _ arena.Listener = (*Hub)(nil)
