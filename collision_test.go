package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTargets []*Player

func (s staticTargets) collisionTargets() []*Player { return s }

func target(id PlayerID, pos Vec2) *Player {
	p := NewPlayer(id, nil, false)
	p.Alive = true
	p.Position = pos
	return p
}

func arenaWith(obstacles ...Vec2) *Arena {
	return &Arena{Title: "Test", Width: 20, Height: 12, ObstaclePositions: obstacles}
}

type collisionHarness struct {
	engine  *CollisionEngine
	damage  *recorder
	removed *recorder
}

func newCollisionHarness(t *testing.T, arena *Arena, targets ...*Player) *collisionHarness {
	t.Helper()
	w := newTestWorld(t, nil)
	h := &collisionHarness{
		engine:  NewCollisionEngine(w.Bus, nil, arena, staticTargets(targets), 30, 0.25),
		damage:  record(w, EventDamage),
		removed: record(w, EventProjectileRemove),
	}
	h.engine.Enable()
	return h
}

func TestCollisionHitsPlayerInPath(t *testing.T) {
	victim := target(2, V(6, 5))
	h := newCollisionHarness(t, arenaWith(), victim)
	p := h.engine.Fire(V(3, 5), V(1, 0), 1)
	require.NotNil(t, p)

	for i := 0; i < 3 && len(h.damage.payloads) == 0; i++ {
		h.engine.Step(0.05)
	}
	require.Len(t, h.damage.payloads, 1)
	ev := h.damage.payloads[0].(*DamageEvent)
	assert.Equal(t, PlayerID(1), ev.Shooter)
	assert.Equal(t, PlayerID(2), ev.Target)
	assert.Equal(t, 0.25, ev.Amount)
	assert.Equal(t, DamageProjectile, ev.Kind)
	require.Len(t, h.removed.payloads, 1)
	assert.Equal(t, p.ID, h.removed.payloads[0].(*ProjectileRemoveEvent).ProjectileID)
	assert.Empty(t, h.engine.Projectiles())
}

func TestCollisionIgnoresShooterAndDead(t *testing.T) {
	shooter := target(1, V(3, 5))
	dead := target(2, V(5, 5))
	dead.Alive = false
	h := newCollisionHarness(t, arenaWith(), shooter, dead)
	h.engine.Fire(V(3, 5), V(1, 0), 1)

	h.engine.Step(0.05)
	h.engine.Step(0.05)
	assert.Empty(t, h.damage.payloads)
	assert.Len(t, h.engine.Projectiles(), 1)
}

func TestCollisionBlockedByObstacle(t *testing.T) {
	victim := target(2, V(9, 5))
	h := newCollisionHarness(t, arenaWith(V(6, 4.5)), victim)
	h.engine.Fire(V(3, 5), V(1, 0), 1)

	for i := 0; i < 10; i++ {
		h.engine.Step(0.05)
	}
	assert.Empty(t, h.damage.payloads)
	assert.Len(t, h.removed.payloads, 1)
	assert.Empty(t, h.engine.Projectiles())
}

func TestCollisionNoTunnelingThroughSharedEdge(t *testing.T) {
	// two stacked blocks share the edge y=5 and the shot travels exactly along it
	victim := target(2, V(8, 5))
	h := newCollisionHarness(t, arenaWith(V(5, 4), V(5, 5)), victim)
	h.engine.Fire(V(3, 5), V(1, 0), 1)

	for i := 0; i < 10; i++ {
		h.engine.Step(0.05)
	}
	assert.Empty(t, h.damage.payloads)
	assert.Len(t, h.removed.payloads, 1)
}

func TestCollisionRefinementEarlierTargetWins(t *testing.T) {
	t.Run("player before obstacle", func(t *testing.T) {
		victim := target(2, V(4.6, 5))
		h := newCollisionHarness(t, arenaWith(V(5.5, 4.5)), victim)
		h.engine.Fire(V(3.5, 5), V(1, 0), 1)

		h.engine.Step(0.1)
		require.Len(t, h.damage.payloads, 1)
		assert.Equal(t, PlayerID(2), h.damage.payloads[0].(*DamageEvent).Target)
	})

	t.Run("obstacle before player", func(t *testing.T) {
		victim := target(2, V(6, 5))
		h := newCollisionHarness(t, arenaWith(V(4, 4.5)), victim)
		h.engine.Fire(V(3.5, 5), V(1, 0), 1)

		h.engine.Step(0.1)
		assert.Empty(t, h.damage.payloads)
		assert.Len(t, h.removed.payloads, 1)
	})
}

func TestCollisionRefinementCapBlocksShot(t *testing.T) {
	// player and obstacle start at exactly the same x, so every bisection
	// keeps both in contact
	victim := target(2, V(4.95, 5))
	h := newCollisionHarness(t, arenaWith(V(4.5, 4.5)), victim)
	h.engine.Fire(V(3, 5), V(1, 0), 1)

	h.engine.Step(0.1)
	assert.Empty(t, h.damage.payloads)
	assert.Len(t, h.removed.payloads, 1)
	assert.Empty(t, h.engine.Projectiles())
}

func TestCollisionRemovesOutOfBounds(t *testing.T) {
	h := newCollisionHarness(t, arenaWith())
	h.engine.Fire(V(21, 5), V(1, 0), 1)

	h.engine.Step(0.05)
	assert.Len(t, h.removed.payloads, 1)
	assert.Empty(t, h.engine.Projectiles())
}

func TestCollisionDisabled(t *testing.T) {
	h := newCollisionHarness(t, arenaWith())
	h.engine.Fire(V(3, 5), V(1, 0), 1)
	h.engine.Disable()
	assert.Empty(t, h.engine.Projectiles())
	assert.Nil(t, h.engine.Fire(V(3, 5), V(1, 0), 1))
}

func TestSATOverlapTouchingCounts(t *testing.T) {
	a := obstacleCorners(V(0, 0))
	b := obstacleCorners(V(1, 0))
	axes := [4]Vec2{{X: 1}, {Y: 1}, {X: 1}, {Y: 1}}
	assert.True(t, satOverlap(a, b, axes))
	assert.False(t, satOverlap(a, obstacleCorners(V(1.01, 0)), axes))
}

func TestObstacleGridQuery(t *testing.T) {
	g := NewObstacleGrid(arenaWith(V(1, 1), V(15, 9)))
	near := g.QueryBuf(V(2, 2), 2, nil)
	assert.Contains(t, near, 0)
	assert.NotContains(t, near, 1)

	far := g.QueryBuf(V(15, 9), 1, nil)
	assert.Equal(t, []int{1}, far)
	assert.Equal(t, V(15, 9), g.Obstacle(1))
}
