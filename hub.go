package main

import (
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	maxConnsPerIP = 5
	maxTotalConns = 1000
)

// ConnectionEvents receives the lifecycle of every transport connection
type ConnectionEvents interface {
	OnConnectionOpened(conn Connection)
	OnMessage(conn Connection, data []byte)
	OnConnectionClosed(conn Connection, code int, reason string)
}

// Hub tracks connected clients, enforces connection limits and forwards
// connection events to the simulation
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	events  ConnectionEvents

	// Connection limiting, accessed from HTTP handlers
	connMu     sync.Mutex
	ipConns    map[string]int
	totalConns int
}

// NewHub creates a Hub that reports to events
func NewHub(events ConnectionEvents) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		events:  events,
		ipConns: make(map[string]int),
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

// Register adds c and announces it. It must run before c's read pump starts
// so the open event is queued ahead of any message.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	h.events.OnConnectionOpened(c)
}

// Unregister removes c once and announces the close
func (h *Hub) Unregister(c *Client, code int, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if !ok {
		return
	}
	c.closeSend()
	h.events.OnConnectionClosed(c, code, reason)
	log.Debug().Str("ip", c.remoteAddr).Int("code", code).Msg("client unregistered")
}

// CloseAll closes every client connection
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		_ = c.Close()
	}
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
