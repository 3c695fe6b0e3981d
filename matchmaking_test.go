package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMatchmakerWorld(t *testing.T) (*World, *Matchmaker) {
	t.Helper()
	w := newTestWorld(t, nil)
	return w, NewMatchmaker(w)
}

// lobbyOf creates a public lobby holding n fresh players
func lobbyOf(t *testing.T, w *World, mm *Matchmaker, n int) (*Lobby, []*Player) {
	t.Helper()
	l := mm.create(false, false)
	require.NotNil(t, l)
	var players []*Player
	for i := 0; i < n; i++ {
		p, _ := addPlayer(t, w)
		require.Same(t, l, mm.add(l, p))
		players = append(players, p)
	}
	return l, players
}

func TestPrivateLobbyByCode(t *testing.T) {
	w, mm := newMatchmakerWorld(t)
	host, hostConn := addPlayer(t, w)
	l := mm.Join(host, JoinRequest{Private: true})
	require.NotNil(t, l)
	assert.True(t, l.Private)
	require.Len(t, l.Code, 4)
	pkt, ok := hostConn.last(MsgLobbyCode)
	require.True(t, ok)
	assert.Equal(t, l.Code, pkt.Text)

	friend, _ := addPlayer(t, w)
	assert.Same(t, l, mm.Join(friend, JoinRequest{Code: " " + l.Code + " "}))
	assert.Equal(t, 2, l.Count())

	// public matchmaking never picks a private lobby
	stranger, _ := addPlayer(t, w)
	other := mm.Join(stranger, JoinRequest{})
	require.NotNil(t, other)
	assert.NotSame(t, l, other)
	assert.False(t, other.Private)
	assert.Len(t, mm.Info(), 1)
}

func TestUnknownCodeFallsBackToPublic(t *testing.T) {
	w, mm := newMatchmakerWorld(t)
	p, conn := addPlayer(t, w)

	l := mm.Join(p, JoinRequest{Code: "zz"})
	require.NotNil(t, l)
	assert.False(t, l.Private)
	alert, ok := conn.last(MsgAlert)
	require.True(t, ok)
	assert.Equal(t, "lobby not found", alert.Text)
}

func TestPublicJoinFillsOneLobby(t *testing.T) {
	w, mm := newMatchmakerWorld(t)
	var first *Lobby
	for i := 0; i < 4; i++ {
		p, _ := addPlayer(t, w)
		l := mm.Join(p, JoinRequest{})
		require.NotNil(t, l)
		if first == nil {
			first = l
		}
		assert.Same(t, first, l)
	}
	assert.Equal(t, LobbyStarting, first.State())

	p, _ := addPlayer(t, w)
	l := mm.Join(p, JoinRequest{})
	assert.NotSame(t, first, l)
	assert.Len(t, mm.Lobbies(), 2)
}

func TestPublicJoinPrefersRunningOverSmall(t *testing.T) {
	w, mm := newMatchmakerWorld(t)
	running, _ := lobbyOf(t, w, mm, 2)
	w.Scheduler.AdvanceBy(3 * time.Second)
	require.Equal(t, LobbyRunning, running.State())
	small, _ := lobbyOf(t, w, mm, 1)

	p, _ := addPlayer(t, w)
	assert.Same(t, running, mm.Join(p, JoinRequest{}))
	assert.NotNil(t, running.Match().Player(p.ID))
	assert.Equal(t, 1, small.Count())
}

func TestLobbyBuckets(t *testing.T) {
	w, mm := newMatchmakerWorld(t)
	small, _ := lobbyOf(t, w, mm, 1)
	starting, _ := lobbyOf(t, w, mm, 2)
	full, _ := lobbyOf(t, w, mm, 4)

	assert.Equal(t, 2, bucket(small))
	assert.Equal(t, 0, bucket(starting))
	assert.Same(t, starting, mm.bestPublic(nil))
	assert.False(t, full.HasCapacity())
	assert.Same(t, small, mm.bestPublic(starting))
}

func TestBotLobbyRequest(t *testing.T) {
	w, mm := newMatchmakerWorld(t)
	p, _ := addPlayer(t, w)
	l := mm.Join(p, JoinRequest{Bots: true})
	require.NotNil(t, l)
	assert.True(t, l.Bots)
	assert.Equal(t, 2, l.Count())
	assert.Equal(t, 1, l.RealCount())
}

func TestLeaveRetiresEmptyLobby(t *testing.T) {
	w, mm := newMatchmakerWorld(t)
	p, _ := addPlayer(t, w)
	l := mm.Join(p, JoinRequest{Private: true})
	require.NotNil(t, l)

	_ = w.Bus.CallEvent(EventPlayerLeave, p)
	assert.Empty(t, mm.Lobbies())
	assert.True(t, l.Destroyed())
	assert.Nil(t, mm.Lookup(l.Code))
}

func TestJoinRequestLeavesPreviousLobby(t *testing.T) {
	w, mm := newMatchmakerWorld(t)
	p, _ := addPlayer(t, w)
	first := mm.Join(p, JoinRequest{})
	require.NotNil(t, first)

	_ = w.Bus.CallEvent(EventJoinRequest, &JoinRequestEvent{Player: p, Request: JoinRequest{Private: true}})
	assert.True(t, first.Destroyed())
	l := w.Registry.LobbyOf(p.ID)
	require.NotNil(t, l)
	assert.True(t, l.Private)
	assert.Len(t, mm.Lobbies(), 1)
}

func TestLeaveMigratesSmallLobbies(t *testing.T) {
	w, mm := newMatchmakerWorld(t)
	target, pair := lobbyOf(t, w, mm, 2)
	source, single := lobbyOf(t, w, mm, 1)
	require.Equal(t, LobbyStarting, target.State())

	mm.Leave(pair[1])
	assert.True(t, source.Destroyed())
	assert.Same(t, target, w.Registry.LobbyOf(single[0].ID))
	assert.Equal(t, 2, target.Count())
	assert.Equal(t, LobbyStarting, target.State())
	assert.Equal(t, []*Lobby{target}, mm.Lobbies())
}

func TestFinishedLobbyConsolidates(t *testing.T) {
	w, mm := newMatchmakerWorld(t)
	finished, roster := lobbyOf(t, w, mm, 2)
	w.Scheduler.AdvanceBy(3 * time.Second)
	require.Equal(t, LobbyRunning, finished.State())
	host, _ := lobbyOf(t, w, mm, 1)

	_ = w.Bus.CallEvent(EventMatchComplete, &MatchCompleteEvent{Match: finished.Match(), Winner: TeamNone})
	assert.True(t, finished.Destroyed())
	assert.Equal(t, 3, host.Count())
	for _, p := range roster {
		assert.Same(t, host, w.Registry.LobbyOf(p.ID))
	}
	assert.Equal(t, []*Lobby{host}, mm.Lobbies())
}

func TestFinishedLobbyStaysWithoutRoom(t *testing.T) {
	w, mm := newMatchmakerWorld(t)
	finished, _ := lobbyOf(t, w, mm, 2)
	w.Scheduler.AdvanceBy(3 * time.Second)
	require.Equal(t, LobbyRunning, finished.State())
	crowded, _ := lobbyOf(t, w, mm, 3)

	_ = w.Bus.CallEvent(EventMatchComplete, &MatchCompleteEvent{Match: finished.Match(), Winner: TeamNone})
	assert.False(t, finished.Destroyed())
	assert.Equal(t, 2, finished.Count())
	assert.Equal(t, 3, crowded.Count())
	assert.Equal(t, LobbyStarting, finished.State())
}

func TestLobbyInfo(t *testing.T) {
	w, mm := newMatchmakerWorld(t)
	running, _ := lobbyOf(t, w, mm, 2)
	w.Scheduler.AdvanceBy(3 * time.Second)
	p, _ := addPlayer(t, w)
	mm.Join(p, JoinRequest{Private: true})

	info := mm.Info()
	require.Len(t, info, 1)
	assert.Equal(t, running.ID.String(), info[0].ID)
	assert.Equal(t, "running", info[0].State)
	assert.Equal(t, 2, info[0].Players)
	assert.Equal(t, running.Match().Arena.Title, info[0].Arena)
}
