package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	url  string
	game *Game
	hub  *Hub
	db   *DB
}

func startServer(t *testing.T) *testServer {
	t.Helper()
	db := openTestDB(t)
	w := NewWorld(testConfig(), testArenas(4), time.Now(), 7)
	game := NewGame(w, NewTokenVerifier(testSecret, db))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		game.Run(ctx)
		close(stopped)
	}()

	hub := NewHub(game)
	srv := httptest.NewServer(SetupRoutes(hub, game, db))
	t.Cleanup(func() {
		srv.Close()
		hub.CloseAll()
		cancel()
		<-stopped
	})
	return &testServer{url: srv.URL, game: game, hub: hub, db: db}
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func (s *testServer) dial(t *testing.T) *wsClient {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(s.url, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(pkt Packet) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteMessage(websocket.BinaryMessage, pkt.Encode()))
}

// await reads until a packet of kind that satisfies match arrives
func (c *wsClient) await(kind MessageKind, match func(Packet) bool) Packet {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		msgType, data, err := c.conn.ReadMessage()
		require.NoError(c.t, err)
		require.Equal(c.t, websocket.BinaryMessage, msgType)
		pkt, err := DecodePacket(data)
		require.NoError(c.t, err)
		if pkt.Kind == kind && (match == nil || match(pkt)) {
			return pkt
		}
	}
}

func (s *testServer) getJSON(t *testing.T, path string, v any) int {
	t.Helper()
	resp, err := http.Get(s.url + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestServerPrivateLobbyFlow(t *testing.T) {
	s := startServer(t)

	host := s.dial(t)
	host.await(MsgYourID, nil)
	host.send(IntsPacket(MsgJoinPreference, 1, 0))
	code := host.await(MsgLobbyCode, nil).Text
	require.Len(t, code, 4)

	guest := s.dial(t)
	guest.await(MsgYourID, nil)
	guest.send(StringPacket(MsgJoin, strings.ToLower(code)))
	guest.await(MsgLobbyCode, func(p Packet) bool { return p.Text == code })

	full := func(p Packet) bool { return len(p.Ints) == 4 && p.Ints[1] == 2 }
	host.await(MsgLobbyState, full)

	guest.send(StringPacket(MsgChat, "hi"))
	relay := host.await(MsgChatRelay, nil)
	assert.True(t, strings.HasSuffix(relay.Text, ": hi"))

	// private lobbies stay out of the public listing
	var lobbies []LobbyInfo
	require.Equal(t, http.StatusOK, s.getJSON(t, "/api/lobbies", &lobbies))
	assert.Empty(t, lobbies)
}

func TestServerPublicLobbyAndLeave(t *testing.T) {
	s := startServer(t)

	a := s.dial(t)
	a.await(MsgYourID, nil)
	a.send(StringPacket(MsgJoin, ""))
	b := s.dial(t)
	b.await(MsgYourID, nil)
	b.send(StringPacket(MsgJoin, ""))

	a.await(MsgCountdown, nil)
	var lobbies []LobbyInfo
	require.Equal(t, http.StatusOK, s.getJSON(t, "/api/lobbies", &lobbies))
	require.Len(t, lobbies, 1)
	assert.Equal(t, 2, lobbies[0].Players)
	assert.Contains(t, []string{"starting", "running"}, lobbies[0].State)

	require.NoError(t, b.conn.Close())
	a.await(MsgPlayerLeft, nil)
	assert.Eventually(t, func() bool {
		return s.hub.ClientCount() == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestServerIdentify(t *testing.T) {
	s := startServer(t)
	verifier := NewTokenVerifier(testSecret, nil)
	token, err := verifier.Issue(Identity{ExternalID: "ada", Name: "Ada"})
	require.NoError(t, err)

	c := s.dial(t)
	c.await(MsgYourID, nil)
	c.send(StringPacket(MsgIdentify, token))
	assert.Equal(t, "ada", c.await(MsgIdentified, nil).Text)

	c.send(StringPacket(MsgIdentify, "garbage"))
	assert.Equal(t, "identity rejected", c.await(MsgAlert, nil).Text)
}

func TestServerStatsEndpoints(t *testing.T) {
	s := startServer(t)
	require.NoError(t, s.db.ApplyDeltas([]StatsDelta{{ExternalID: "ada", Name: "Ada", Kills: 3}}, true))

	var board []PlayerTotals
	require.Equal(t, http.StatusOK, s.getJSON(t, "/api/leaderboard?limit=5", &board))
	require.Len(t, board, 1)
	assert.Equal(t, 3, board[0].Kills)

	var totals PlayerTotals
	require.Equal(t, http.StatusOK, s.getJSON(t, "/api/players/ada", &totals))
	assert.Equal(t, "Ada", totals.Name)
	assert.Equal(t, http.StatusNotFound, s.getJSON(t, "/api/players/nobody", nil))

	var health map[string]int
	require.Equal(t, http.StatusOK, s.getJSON(t, "/healthz", &health))
	assert.Equal(t, 0, health["connections"])
}

func TestServerRejectsForeignOrigin(t *testing.T) {
	s := startServer(t)
	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(s.url, "http")+"/ws", header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
