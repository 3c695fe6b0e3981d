package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchStartBalancesTeams(t *testing.T) {
	w := newTestWorld(t, nil)
	m, players, conns := startedMatch(t, w, GamemodeDeathmatch, 4)

	assert.Len(t, m.Members(TeamA), 2)
	assert.Len(t, m.Members(TeamB), 2)
	for _, p := range players {
		assert.True(t, p.Alive)
		assert.Equal(t, w.Config.MaxAmmo, p.Ammo)
		assert.Contains(t, m.Arena.Spawns(p.Team), p.Position)
		assert.Same(t, m, w.Registry.MatchOf(p.ID))
	}
	assert.Equal(t, 4, conns[0].count(MsgSpawn))
	assert.True(t, m.HasEnoughPlayers())
}

func TestMatchSpawnRequiresTeam(t *testing.T) {
	w := newTestWorld(t, nil)
	p, _ := addPlayer(t, w)
	m := NewMatch(w, "unstarted", w.Arenas[0], GamemodeDeathmatch, []*Player{p})
	assert.ErrorIs(t, m.Spawn(p), ErrNotOnTeam)
	assert.False(t, p.Alive)
}

func TestMatchMovement(t *testing.T) {
	w := newTestWorld(t, nil)
	m, players, conns := startedMatch(t, w, GamemodeDeathmatch, 2)
	oob := record(w, EventOutOfBounds)
	p := players[0]

	_ = w.Bus.CallEvent(EventPlayerMove, &MoveEvent{Player: p, Position: V(5, 5), Velocity: V(1, 0), BodyRotation: 0.5, HeadRotation: 1})
	assert.Equal(t, V(5, 5), p.Position)
	assert.Equal(t, V(1, 0), p.Velocity)
	assert.Equal(t, 1.0, p.HeadRotation)

	_ = w.Bus.CallEvent(EventPlayerMove, &MoveEvent{Player: p, Position: V(50, 5)})
	assert.Equal(t, V(5, 5), p.Position)
	require.Len(t, oob.payloads, 1)
	assert.Same(t, m, oob.payloads[0].(*OutOfBoundsEvent).Match)
	pkt, ok := conns[0].last(MsgOutOfBounds)
	require.True(t, ok)
	assert.Equal(t, []float32{5, 5}, pkt.Floats)

	conns[1].reset()
	_ = w.Bus.CallEvent(EventMovementBroadcast, nil)
	mv, ok := conns[1].last(MsgMovement)
	require.True(t, ok)
	assert.Equal(t, uint8(p.ID), mv.Extra)
	assert.Equal(t, float32(5), mv.Floats[0])
	assert.Equal(t, float32(0), mv.Floats[6])

	_ = w.Bus.CallEvent(EventPlayerMove, &MoveEvent{Player: p, Position: V(5, 5), Boost: true})
	assert.True(t, p.SpeedBoost)
	conns[1].reset()
	_ = w.Bus.CallEvent(EventMovementBroadcast, nil)
	mv, ok = conns[1].last(MsgMovement)
	require.True(t, ok)
	assert.Equal(t, float32(1), mv.Floats[6])
}

func TestMatchShootSpendsAmmoAndHits(t *testing.T) {
	w := newTestWorld(t, nil)
	m, _, conns := startedMatch(t, w, GamemodeDeathmatch, 2)
	w.Scheduler.AdvanceBy(w.Config.ProtectionWindow)
	a, b := opponents(t, m)

	a.Position, a.HeadRotation, a.BodyRotation = V(3, 4), 0, 0
	b.Position, b.BodyRotation = V(9, 4), 0

	_ = w.Bus.CallEvent(EventPlayerShoot, &ShootEvent{Player: a})
	assert.Equal(t, w.Config.MaxAmmo-1, a.Ammo)
	require.Len(t, m.Collision.Projectiles(), 1)
	_, ok := conns[0].last(MsgProjectileAdd)
	assert.True(t, ok)

	_ = w.Bus.CallEvent(EventTick, &TickEvent{N: 1, Dt: 0.25})
	assert.Empty(t, m.Collision.Projectiles())
	assert.Equal(t, 0.75, b.Shield)
	_, ok = conns[0].last(MsgProjectileRemove)
	assert.True(t, ok)

	row, _ := m.Stats.Get(a.ID)
	assert.Equal(t, 1, row.Shots)
	assert.Equal(t, 1, row.Hits)
	assert.Equal(t, 0.25, row.Damage)
}

func TestMatchShootWithoutAmmo(t *testing.T) {
	w := newTestWorld(t, nil)
	m, players, _ := startedMatch(t, w, GamemodeDeathmatch, 2)
	p := players[0]
	p.Ammo = 0

	_ = w.Bus.CallEvent(EventPlayerShoot, &ShootEvent{Player: p})
	assert.Empty(t, m.Collision.Projectiles())
	row, _ := m.Stats.Get(p.ID)
	assert.Zero(t, row.Shots)
}

func TestMatchIgnoresStrangers(t *testing.T) {
	w := newTestWorld(t, nil)
	m, _, _ := startedMatch(t, w, GamemodeDeathmatch, 2)
	stranger, _ := addPlayer(t, w)
	stranger.Alive, stranger.Ammo = true, 5

	_ = w.Bus.CallEvent(EventPlayerShoot, &ShootEvent{Player: stranger})
	assert.Empty(t, m.Collision.Projectiles())
	assert.Equal(t, 5, stranger.Ammo)
}

func TestMatchReload(t *testing.T) {
	w := newTestWorld(t, nil)
	_, players, _ := startedMatch(t, w, GamemodeDeathmatch, 2)
	p := players[0]
	p.Ammo = 0

	_ = w.Bus.CallEvent(EventTick, &TickEvent{N: 1, Dt: 0.4})
	assert.Equal(t, 0, p.Ammo)
	_ = w.Bus.CallEvent(EventTick, &TickEvent{N: 2, Dt: 0.4})
	assert.Equal(t, 1, p.Ammo)

	p.Ammo = w.Config.MaxAmmo - 1
	_ = w.Bus.CallEvent(EventTick, &TickEvent{N: 3, Dt: 10})
	assert.Equal(t, w.Config.MaxAmmo, p.Ammo)
	assert.Zero(t, p.Reload)
}

func TestMatchLateJoinerDeathmatchJoinsLosingTeam(t *testing.T) {
	w := newTestWorld(t, nil)
	m, _, _ := startedMatch(t, w, GamemodeDeathmatch, 2)
	a, b := opponents(t, m)
	_ = w.Bus.CallEvent(EventStatsKill, &StatsEvent{Match: m, Player: a.ID, Target: b.ID})

	late, conn := addPlayer(t, w)
	m.AddPlayer(late)
	assert.Equal(t, b.Team, m.TeamOf(late.ID))
	assert.True(t, late.Alive)
	assert.False(t, m.IsSpectator(late.ID))
	_, ok := conn.last(MsgArenaTitle)
	assert.True(t, ok)
}

func TestMatchLateJoinerEliminationSpectates(t *testing.T) {
	w := newTestWorld(t, nil)
	m, _, _ := startedMatch(t, w, GamemodeElimination, 2)

	late, conn := addPlayer(t, w)
	m.AddPlayer(late)
	assert.True(t, m.IsSpectator(late.ID))
	assert.Equal(t, TeamNone, m.TeamOf(late.ID))
	assert.False(t, late.Alive)
	_, ok := conn.last(MsgSpectate)
	assert.True(t, ok)
}

func TestMatchTimerPublishesWinner(t *testing.T) {
	w := newTestWorld(t, nil)
	m, _, _ := startedMatch(t, w, GamemodeDeathmatch, 2)
	timer := record(w, EventMatchTimerComplete)
	a, b := opponents(t, m)
	_ = w.Bus.CallEvent(EventStatsKill, &StatsEvent{Match: m, Player: b.ID, Target: a.ID})

	w.Scheduler.AdvanceBy(w.Config.MatchDuration - time.Millisecond)
	assert.Empty(t, timer.payloads)
	w.Scheduler.AdvanceBy(time.Millisecond)
	require.Len(t, timer.payloads, 1)
	assert.Equal(t, b.Team, timer.payloads[0].(*MatchCompleteEvent).Winner)
}

func TestMatchWinnerTie(t *testing.T) {
	w := newTestWorld(t, nil)
	m, _, _ := startedMatch(t, w, GamemodeDeathmatch, 2)
	assert.Equal(t, TeamNone, m.Winner())
}

func TestMatchEndPublishesStats(t *testing.T) {
	w := newTestWorld(t, nil)
	sent := record(w, EventStatsSend)
	durable := record(w, EventDBPlayersUpdate)

	var players []*Player
	var conns []*mockConn
	for i := 0; i < 2; i++ {
		p, c := addPlayer(t, w)
		players = append(players, p)
		conns = append(conns, c)
	}
	players[0].ExternalID = "user-1"
	m := NewMatch(w, "m1", w.Arenas[0], GamemodeDeathmatch, players)
	m.Start()

	m.End(TeamB)
	require.Len(t, sent.payloads, 1)
	ev := sent.payloads[0].(*StatsSendEvent)
	assert.Equal(t, TeamB, ev.Winner)
	assert.Equal(t, "Alpha", ev.Arena)
	assert.Len(t, ev.Stats, 2)

	require.Len(t, durable.payloads, 1)
	deltas := durable.payloads[0].(*PlayersUpdateEvent).Deltas
	require.Len(t, deltas, 1)
	assert.Equal(t, "user-1", deltas[0].ExternalID)

	for _, c := range conns {
		assert.Equal(t, 1, c.count(MsgStats))
		assert.Equal(t, 1, c.count(MsgMatchEnd))
	}
	assert.True(t, m.Destroyed())
	assert.Zero(t, w.Bus.ListenerCount(EventTick))
	assert.Zero(t, w.Bus.ListenerCount(EventDamage))
	assert.Nil(t, w.Registry.MatchOf(players[0].ID))

	// a second End is a no-op
	m.End(TeamA)
	assert.Len(t, sent.payloads, 1)
}

func TestMatchRemovePlayerFlushesIdentifiedStats(t *testing.T) {
	w := newTestWorld(t, nil)
	update := record(w, EventDBPlayerUpdate)
	m, players, _ := startedMatch(t, w, GamemodeDeathmatch, 3)

	m.RemovePlayer(players[0].ID)
	assert.Empty(t, update.payloads)
	assert.Nil(t, m.Player(players[0].ID))
	assert.Equal(t, TeamNone, players[0].Team)

	players[1].ExternalID = "user-2"
	_ = w.Bus.CallEvent(EventStatsShot, &StatsEvent{Match: m, Player: players[1].ID})
	m.RemovePlayer(players[1].ID)
	require.Len(t, update.payloads, 1)
	delta := update.payloads[0].(*PlayerUpdateEvent).Delta
	assert.Equal(t, "user-2", delta.ExternalID)
	assert.Equal(t, 1, delta.Shots)
}

func TestEliminationWinnerByValidPlayers(t *testing.T) {
	cfg := testConfig()
	cfg.Lives = 1
	w := newTestWorld(t, cfg)
	m, _, _ := startedMatch(t, w, GamemodeElimination, 4)
	complete := record(w, EventMatchComplete)
	w.Scheduler.AdvanceBy(w.Config.ProtectionWindow)

	attackers, victims := m.Members(TeamA), m.Members(TeamB)
	damage(w, m, attackers[0], victims[0], 2)
	assert.Empty(t, complete.payloads)
	assert.Equal(t, TeamA, m.Winner())
	assert.True(t, m.HasEnoughPlayers())
}
