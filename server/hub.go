package main

import "sync"

const (
	maxConnsPerIP = 5
	maxTotalConns = 1000
)

// Hub binds WebSocket clients to the game. The game itself only runs on
// loop; the hub is the bridge from connection goroutines.
type Hub struct {
	loop *Loop
	game *Game

	mu      sync.RWMutex
	clients map[*Client]bool
	// Connection limiting (mutex-protected, accessed from HTTP handlers)
	connMu     sync.Mutex
	ipConns    map[string]int
	totalConns int
	// Auth, DB & analytics. db and analytics may be nil.
	db        *DB
	auth      *Auth
	analytics *Analytics
}

// NewHub creates a new Hub
func NewHub(loop *Loop, game *Game, db *DB, analytics *Analytics) *Hub {
	return &Hub{
		loop:      loop,
		game:      game,
		clients:   make(map[*Client]bool),
		ipConns:   make(map[string]int),
		db:        db,
		auth:      NewAuth(db),
		analytics: analytics,
	}
}

func (h *Hub) CanAccept(ip string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.totalConns >= maxTotalConns {
		return false
	}
	if h.ipConns[ip] >= maxConnsPerIP {
		return false
	}
	return true
}

func (h *Hub) TrackConnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]++
	h.totalConns++
}

func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
}

// Register creates the client's player session on the loop and waits for
// it. Returns false when the server is full or shutting down.
func (h *Hub) Register(c *Client, name string) bool {
	var p *PlayerSession
	if !h.loop.Call(func() { p = h.game.Connect(name, c) }) || p == nil {
		return false
	}
	c.playerID = p.ID

	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()
	if h.analytics != nil {
		h.analytics.SetConnected(n)
	}
	return true
}

// Unregister removes the client's player and closes its send channel
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}
	if h.analytics != nil {
		h.analytics.SetConnected(n)
	}
	id, game := c.playerID, h.game
	h.loop.Post(func() { game.Disconnect(id) })
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// TotalConns returns the tracked connection count
func (h *Hub) TotalConns() int {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.totalConns
}
