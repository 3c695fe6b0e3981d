package main

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// mockConn captures every packet sent to a player
type mockConn struct {
	mu      sync.Mutex
	packets []Packet
	closed  bool
}

func (c *mockConn) SendBinary(data []byte) {
	pkt, err := DecodePacket(data)
	if err != nil {
		panic(err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packets = append(c.packets, pkt)
}

func (c *mockConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *mockConn) count(kind MessageKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, p := range c.packets {
		if p.Kind == kind {
			n++
		}
	}
	return n
}

func (c *mockConn) last(kind MessageKind) (Packet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.packets) - 1; i >= 0; i-- {
		if c.packets[i].Kind == kind {
			return c.packets[i], true
		}
	}
	return Packet{}, false
}

func (c *mockConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packets = nil
}

var testEpoch = time.Unix(1_700_000_000, 0)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.CountdownSeconds = 3
	cfg.VoteOptions = 2
	return cfg
}

// openArena is a small obstacle-free arena for 2..4 players
func openArena(title string) *Arena {
	return &Arena{
		Title: title, Width: 12, Height: 8,
		MinimumPlayerCount: 2, MaximumPlayerCount: 4,
		TeamASpawns: []Vec2{V(2, 2), V(2, 6)},
		TeamBSpawns: []Vec2{V(10, 2), V(10, 6)},
	}
}

func testArenas(n int) []*Arena {
	titles := []string{"Alpha", "Bravo", "Charlie", "Delta", "Echo", "Foxtrot"}
	out := make([]*Arena, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, openArena(titles[i]))
	}
	return out
}

func newTestWorld(t *testing.T, cfg *Config, arenas ...*Arena) *World {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	if len(arenas) == 0 {
		arenas = testArenas(4)
	}
	return NewWorld(cfg, arenas, testEpoch, 7)
}

func addPlayer(t *testing.T, w *World) (*Player, *mockConn) {
	t.Helper()
	conn := &mockConn{}
	p, err := w.Registry.NewPlayer(conn, false)
	require.NoError(t, err)
	return p, conn
}

// recorder collects the payloads of one event kind
type recorder struct {
	payloads []any
}

func record(w *World, kind EventKind) *recorder {
	r := &recorder{}
	w.Bus.AddListener(r, kind, func(payload any) error {
		r.payloads = append(r.payloads, payload)
		return nil
	}, PriorityHigh)
	return r
}

// startedMatch starts a match of kind with n fresh players
func startedMatch(t *testing.T, w *World, kind GamemodeKind, n int) (*Match, []*Player, []*mockConn) {
	t.Helper()
	players := make([]*Player, 0, n)
	conns := make([]*mockConn, 0, n)
	for i := 0; i < n; i++ {
		p, c := addPlayer(t, w)
		players = append(players, p)
		conns = append(conns, c)
	}
	m := NewMatch(w, "test-match", w.Arenas[0], kind, players)
	m.Start()
	return m, players, conns
}

// opponents returns one player of each team
func opponents(t *testing.T, m *Match) (*Player, *Player) {
	t.Helper()
	a, b := m.Members(TeamA), m.Members(TeamB)
	require.NotEmpty(t, a)
	require.NotEmpty(t, b)
	return a[0], b[0]
}
