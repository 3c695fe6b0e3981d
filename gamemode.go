package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

// PushDuration is how long a rammed player is pushed
const PushDuration = time.Second

// GamemodeKind identifies a rule set
type GamemodeKind uint8

const (
	GamemodeDeathmatch GamemodeKind = iota
	GamemodeElimination
)

func (k GamemodeKind) String() string {
	switch k {
	case GamemodeDeathmatch:
		return "team-deathmatch"
	case GamemodeElimination:
		return "team-elimination"
	}
	return "unknown"
}

// Gamemode is the rule set a match runs under
type Gamemode interface {
	Kind() GamemodeKind
	Enable()
	Disable()
	// AddPlayer registers a player that joined a team
	AddPlayer(p *Player)
	RemovePlayer(id PlayerID)
	IsProtected(id PlayerID) bool
	// IsValid reports whether id still counts towards its team's presence
	IsValid(id PlayerID) bool
}

// NewGamemode builds the rule set of kind for m
func NewGamemode(kind GamemodeKind, w *World, m *Match) Gamemode {
	if kind == GamemodeElimination {
		return NewTeamElimination(w, m)
	}
	return NewTeamDeathmatch(w, m)
}

// ApplyDamage lets the shield absorb amount first and spills the rest into
// health. Both results are clamped to [0,1] and rounded to two decimals.
func ApplyDamage(health, shield, amount float64) (float64, float64) {
	if amount <= 0 {
		return health, shield
	}
	absorbed := amount
	if absorbed > shield {
		absorbed = shield
	}
	shield -= absorbed
	health -= amount - absorbed
	return round2(Clamp(health, 0, PlayerMaxHealth)), round2(Clamp(shield, 0, PlayerMaxShield))
}

// rules is the behaviour shared by every gamemode: the damage pipeline,
// spawn protection and ram pushes.
type rules struct {
	world *World
	match *Match

	protected map[PlayerID]*Task
	respawns  map[PlayerID]*Task
	timers    timerSet
	enabled   bool

	onDeath func(victim *Player, killer PlayerID)
}

func newRules(w *World, m *Match) rules {
	return rules{
		world:     w,
		match:     m,
		protected: make(map[PlayerID]*Task),
		respawns:  make(map[PlayerID]*Task),
	}
}

func (r *rules) enable(owner any) {
	if r.enabled {
		return
	}
	r.enabled = true
	r.world.Bus.AddListener(owner, EventDamage, r.handleDamage, PriorityMedium)
	r.world.Bus.AddListener(owner, EventPlayerSpawn, r.handleSpawn, PriorityMedium)
}

func (r *rules) disable(owner any) {
	if !r.enabled {
		return
	}
	r.enabled = false
	r.world.Bus.RemoveOwner(owner)
	r.timers.cancelAll()
	for id, t := range r.protected {
		t.Cancel()
		delete(r.protected, id)
	}
	for id, t := range r.respawns {
		t.Cancel()
		delete(r.respawns, id)
	}
}

func (r *rules) removePlayer(id PlayerID) {
	if t, ok := r.protected[id]; ok {
		t.Cancel()
		delete(r.protected, id)
	}
	if t, ok := r.respawns[id]; ok {
		t.Cancel()
		delete(r.respawns, id)
	}
}

func (r *rules) IsProtected(id PlayerID) bool {
	_, ok := r.protected[id]
	return ok
}

func (r *rules) handleSpawn(payload any) error {
	ev := payload.(*SpawnEvent)
	if ev.Match != r.match {
		return nil
	}
	r.protect(ev.Player)
	return nil
}

// protect opens a fresh protection window for p
func (r *rules) protect(p *Player) {
	if t, ok := r.protected[p.ID]; ok {
		t.Cancel()
	}
	p.Protected = true
	r.match.Broadcast(FloatsExtraPacket(MsgProtection, uint8(p.ID), 1))

	id := p.ID
	r.protected[id] = r.world.Scheduler.After(r.world.Config.ProtectionWindow, func() {
		delete(r.protected, id)
		cur := r.match.Player(id)
		if cur == nil {
			return
		}
		cur.Protected = false
		r.match.Broadcast(FloatsExtraPacket(MsgProtection, uint8(id), 0))
	})
}

func (r *rules) handleDamage(payload any) error {
	ev := payload.(*DamageEvent)
	if ev.Match != r.match || ev.Amount <= 0 {
		return nil
	}
	target := r.match.Player(ev.Target)
	if target == nil {
		return eris.Wrapf(ErrNotInMatch, "damage target %d", ev.Target)
	}
	shooterTeam := r.match.TeamOf(ev.Shooter)
	targetTeam := r.match.TeamOf(ev.Target)
	if shooterTeam == TeamNone || targetTeam == TeamNone || shooterTeam == targetTeam {
		return nil
	}
	if !target.Alive || r.IsProtected(target.ID) {
		return nil
	}

	before := target.Health + target.Shield
	target.Health, target.Shield = ApplyDamage(target.Health, target.Shield, ev.Amount)
	dealt := round2(before - target.Health - target.Shield)
	r.match.Broadcast(target.HealthPacket())

	if ev.Kind == DamageRam {
		r.push(target, ev.Push)
	}
	r.world.Bus.CallEvent(EventStatsHit, &StatsEvent{
		Match:  r.match,
		Player: ev.Shooter,
		Target: target.ID,
		Damage: dealt,
	})

	if target.Health > 0 {
		return nil
	}
	target.Alive = false
	target.Velocity = Vec2{}
	log.Debug().
		Str("match", r.match.ID).
		Uint8("victim", uint8(target.ID)).
		Uint8("killer", uint8(ev.Shooter)).
		Msg("player killed")
	r.match.Broadcast(IntsPacket(MsgDeath, uint8(target.ID), uint8(ev.Shooter)))
	r.world.Bus.CallEvent(EventPlayerDeath, &DeathEvent{Match: r.match, Victim: target.ID, Killer: ev.Shooter})
	r.world.Bus.CallEvent(EventStatsKill, &StatsEvent{Match: r.match, Player: ev.Shooter, Target: target.ID})
	if r.onDeath != nil {
		r.onDeath(target, ev.Shooter)
	}
	return nil
}

// push moves a rammed player along dir for PushDuration
func (r *rules) push(p *Player, dir Vec2) {
	dir = dir.Normalize()
	p.Push = dir
	r.match.Broadcast(FloatsExtraPacket(MsgPush, uint8(p.ID), float32(dir.X), float32(dir.Y)))
	id := p.ID
	r.timers.add(r.world.Scheduler.After(PushDuration, func() {
		if cur := r.match.Player(id); cur != nil && cur.Push == dir {
			cur.Push = Vec2{}
		}
	}))
}

// scheduleRespawn spawns p again after the configured delay
func (r *rules) scheduleRespawn(p *Player) {
	if t, ok := r.respawns[p.ID]; ok {
		t.Cancel()
	}
	id := p.ID
	r.respawns[id] = r.world.Scheduler.After(r.world.Config.RespawnDelay, func() {
		delete(r.respawns, id)
		cur := r.match.Player(id)
		if cur == nil || cur.Alive {
			return
		}
		if err := r.match.Spawn(cur); err != nil {
			log.Warn().Err(err).Str("match", r.match.ID).Uint8("player", uint8(id)).Msg("respawn failed")
		}
	})
}

// TeamDeathmatch respawns every dead player after a delay. The match is
// decided by kills when its timer runs out.
type TeamDeathmatch struct {
	rules
}

// NewTeamDeathmatch creates the deathmatch rules for m
func NewTeamDeathmatch(w *World, m *Match) *TeamDeathmatch {
	g := &TeamDeathmatch{rules: newRules(w, m)}
	g.onDeath = func(victim *Player, _ PlayerID) {
		g.scheduleRespawn(victim)
	}
	return g
}

func (g *TeamDeathmatch) Kind() GamemodeKind { return GamemodeDeathmatch }
func (g *TeamDeathmatch) Enable()            { g.enable(g) }
func (g *TeamDeathmatch) Disable()           { g.disable(g) }
func (g *TeamDeathmatch) AddPlayer(*Player)  {}

func (g *TeamDeathmatch) RemovePlayer(id PlayerID) {
	g.removePlayer(id)
}

func (g *TeamDeathmatch) IsValid(id PlayerID) bool {
	return g.match.TeamOf(id) != TeamNone
}

// TeamElimination gives every player a fixed number of lives. A player out of
// lives spectates for the rest of the match; the last team standing wins.
type TeamElimination struct {
	rules
	lives map[PlayerID]int
}

// NewTeamElimination creates the elimination rules for m
func NewTeamElimination(w *World, m *Match) *TeamElimination {
	g := &TeamElimination{
		rules: newRules(w, m),
		lives: make(map[PlayerID]int),
	}
	g.onDeath = g.died
	return g
}

func (g *TeamElimination) Kind() GamemodeKind { return GamemodeElimination }
func (g *TeamElimination) Enable()            { g.enable(g) }
func (g *TeamElimination) Disable()           { g.disable(g) }

func (g *TeamElimination) AddPlayer(p *Player) {
	g.lives[p.ID] = g.world.Config.Lives
	p.Send(NumberPacket(MsgLives, clampByte(g.lives[p.ID])))
}

func (g *TeamElimination) RemovePlayer(id PlayerID) {
	g.removePlayer(id)
	delete(g.lives, id)
}

// Lives returns the remaining lives of id
func (g *TeamElimination) Lives(id PlayerID) (int, error) {
	n, ok := g.lives[id]
	if !ok {
		return 0, eris.Wrapf(ErrNotInGamemode, "player %d", id)
	}
	return n, nil
}

func (g *TeamElimination) IsValid(id PlayerID) bool {
	if g.match.TeamOf(id) == TeamNone {
		return false
	}
	if p := g.match.Player(id); p != nil && p.Alive {
		return true
	}
	return g.lives[id] > 0
}

func (g *TeamElimination) died(victim *Player, _ PlayerID) {
	n, err := g.Lives(victim.ID)
	if err != nil {
		log.Error().Err(err).Str("match", g.match.ID).Msg("death of unregistered player")
		return
	}
	if n > 0 {
		n--
	}
	g.lives[victim.ID] = n
	victim.Send(NumberPacket(MsgLives, clampByte(n)))

	if n > 0 {
		g.scheduleRespawn(victim)
		return
	}
	g.match.MakeSpectator(victim)

	team := g.match.TeamOf(victim.ID)
	if g.finallyDead(team) {
		log.Info().Str("match", g.match.ID).Stringer("team", team).Msg("team eliminated")
		g.world.Bus.CallEvent(EventMatchComplete, &MatchCompleteEvent{Match: g.match, Winner: team.Opponent()})
	}
}

// finallyDead reports whether nobody of t is alive and nobody has lives left
func (g *TeamElimination) finallyDead(t Team) bool {
	for _, p := range g.match.Members(t) {
		if p.Alive || g.lives[p.ID] > 0 {
			return false
		}
	}
	return true
}
