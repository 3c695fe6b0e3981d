package main

import (
	"math"

	"github.com/rs/zerolog/log"
)

const (
	ProjectileRadius   = 0.08
	BroadPhasePadding  = 2.0
	MaxRefinementDepth = 50
	ObstacleSize       = 1.0
)

// targetSource yields the players a projectile may hit
type targetSource interface {
	collisionTargets() []*Player
}

type collisionOutcome int

const (
	outcomeNone collisionOutcome = iota
	outcomeBlocked
	outcomeHit
	outcomeAborted
)

type collisionResult struct {
	outcome collisionOutcome
	target  *Player
}

var obstacleAxes = [2]Vec2{{X: 1}, {Y: 1}}

// CollisionEngine runs continuous collision detection for one match. Each
// tick every projectile's swept path is tested against nearby obstacles and
// players with a four axis SAT test; ambiguous results are refined by
// bisecting the travel interval.
type CollisionEngine struct {
	bus     *EventBus
	match   *Match
	arena   *Arena
	grid    *ObstacleGrid
	targets targetSource
	speed   float64
	damage  float64

	projectiles []*Projectile
	nextID      uint32
	enabled     bool

	obstacleBuf []int
}

// NewCollisionEngine creates a disabled engine for arena
func NewCollisionEngine(bus *EventBus, match *Match, arena *Arena, targets targetSource, speed, damage float64) *CollisionEngine {
	return &CollisionEngine{
		bus:     bus,
		match:   match,
		arena:   arena,
		grid:    NewObstacleGrid(arena),
		targets: targets,
		speed:   speed,
		damage:  damage,
	}
}

func (e *CollisionEngine) Enable() {
	e.enabled = true
}

// Disable stops the engine and drops every projectile
func (e *CollisionEngine) Disable() {
	e.enabled = false
	e.projectiles = nil
}

// Projectiles returns the live projectiles
func (e *CollisionEngine) Projectiles() []*Projectile {
	return e.projectiles
}

// Fire adds a projectile travelling along dir from origin
func (e *CollisionEngine) Fire(origin, dir Vec2, shooter PlayerID) *Projectile {
	if !e.enabled {
		return nil
	}
	dir = dir.Normalize()
	if dir == (Vec2{}) {
		return nil
	}
	e.nextID++
	p := &Projectile{
		ID:        e.nextID,
		Origin:    origin,
		Position:  origin,
		Direction: dir,
		Shooter:   shooter,
	}
	e.projectiles = append(e.projectiles, p)
	return p
}

// Step advances every projectile by one tick of dt seconds
func (e *CollisionEngine) Step(dt float64) {
	if !e.enabled || len(e.projectiles) == 0 {
		return
	}
	travel := e.speed * dt
	current := e.projectiles
	survivors := make([]*Projectile, 0, len(current))

	for _, p := range current {
		// a damage event may finish the match and disable us
		if !e.enabled {
			return
		}
		res := e.test(p, travel)
		switch res.outcome {
		case outcomeHit:
			e.removed(p)
			e.bus.CallEvent(EventDamage, &DamageEvent{
				Match:   e.match,
				Shooter: p.Shooter,
				Target:  res.target.ID,
				Amount:  e.damage,
				Kind:    DamageProjectile,
			})
			continue
		case outcomeBlocked:
			e.removed(p)
			continue
		}
		p.Position = p.Position.Add(p.Direction.Scale(travel))
		if !e.arena.InBounds(p.Position) {
			e.removed(p)
			continue
		}
		survivors = append(survivors, p)
	}
	if e.enabled {
		e.projectiles = append(survivors, e.projectiles[len(current):]...)
	}
}

func (e *CollisionEngine) removed(p *Projectile) {
	e.bus.CallEvent(EventProjectileRemove, &ProjectileRemoveEvent{Match: e.match, ProjectileID: p.ID})
}

// test runs the broad phase and then the refinement chain for one projectile
func (e *CollisionEngine) test(p *Projectile, travel float64) collisionResult {
	reach := math.Ceil(travel) + BroadPhasePadding
	limit := reach * reach

	e.obstacleBuf = e.grid.QueryBuf(p.Position, reach, e.obstacleBuf[:0])
	obstacles := make([][4]Vec2, 0, len(e.obstacleBuf))
	for _, i := range e.obstacleBuf {
		o := e.grid.Obstacle(i)
		center := o.Add(V(ObstacleSize/2, ObstacleSize/2))
		if p.Position.DistSq(center) <= limit {
			obstacles = append(obstacles, obstacleCorners(o))
		}
	}

	var players []*Player
	if e.targets != nil {
		for _, pl := range e.targets.collisionTargets() {
			if !pl.Alive || pl.ID == p.Shooter {
				continue
			}
			if p.Position.DistSq(pl.Position) <= limit {
				players = append(players, pl)
			}
		}
	}

	if len(obstacles) == 0 && len(players) == 0 {
		return collisionResult{}
	}
	res := e.refine(p, obstacles, players, 0, travel, 0)
	if res.outcome == outcomeAborted {
		// only an obstacle and a player in contact recurse, and the obstacle wins
		log.Warn().
			Uint32("projectile", p.ID).
			Int("maxDepth", MaxRefinementDepth).
			Msg("collision refinement exhausted, blocking projectile")
		res.outcome = outcomeBlocked
	}
	return res
}

// refine tests the sub-path [from, to] of this tick's travel. When both an
// obstacle and a player overlap, the interval is bisected and the earlier
// half is tested first so the first thing along the path wins.
func (e *CollisionEngine) refine(p *Projectile, obstacles [][4]Vec2, players []*Player, from, to float64, depth int) collisionResult {
	if depth > MaxRefinementDepth {
		return collisionResult{outcome: outcomeAborted}
	}
	sweep := sweptQuad(p.Position, p.Direction, from, to, ProjectileRadius)
	perp := p.Direction.Perp()

	blocked := false
	for _, o := range obstacles {
		if satOverlap(sweep, o, [4]Vec2{p.Direction, perp, obstacleAxes[0], obstacleAxes[1]}) {
			blocked = true
			break
		}
	}

	var hit *Player
	nearest := math.Inf(1)
	for _, pl := range players {
		body, axes := pl.Body()
		if !satOverlap(sweep, body, [4]Vec2{p.Direction, perp, axes[0], axes[1]}) {
			continue
		}
		if d := pl.Position.Sub(p.Position).Dot(p.Direction); d < nearest {
			nearest = d
			hit = pl
		}
	}

	switch {
	case hit == nil && !blocked:
		return collisionResult{}
	case hit == nil:
		return collisionResult{outcome: outcomeBlocked}
	case !blocked:
		return collisionResult{outcome: outcomeHit, target: hit}
	}

	mid := (from + to) / 2
	if res := e.refine(p, obstacles, players, from, mid, depth+1); res.outcome != outcomeNone {
		return res
	}
	return e.refine(p, obstacles, players, mid, to, depth+1)
}

// sweptQuad is the thin quad covered by a projectile of radius r moving from
// pos+dir*from to pos+dir*to
func sweptQuad(pos, dir Vec2, from, to, r float64) [4]Vec2 {
	a := pos.Add(dir.Scale(from))
	b := pos.Add(dir.Scale(to))
	n := dir.Perp().Scale(r)
	return [4]Vec2{a.Add(n), a.Sub(n), b.Sub(n), b.Add(n)}
}

func obstacleCorners(o Vec2) [4]Vec2 {
	return [4]Vec2{
		o,
		o.Add(V(ObstacleSize, 0)),
		o.Add(V(ObstacleSize, ObstacleSize)),
		o.Add(V(0, ObstacleSize)),
	}
}

func projectShape(shape [4]Vec2, axis Vec2) (min, max float64) {
	min = shape[0].Dot(axis)
	max = min
	for _, c := range shape[1:] {
		d := c.Dot(axis)
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	return min, max
}

// satOverlap reports whether two convex quads overlap on every axis.
// Touching extents count as overlap.
func satOverlap(a, b [4]Vec2, axes [4]Vec2) bool {
	for _, axis := range axes {
		minA, maxA := projectShape(a, axis)
		minB, maxB := projectShape(b, axis)
		if maxA < minB || maxB < minA {
			return false
		}
	}
	return true
}
