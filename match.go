package main

import (
	"math"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

// Team is a side of a match
type Team uint8

const (
	TeamNone Team = 0
	TeamA    Team = 1
	TeamB    Team = 2
)

func (t Team) String() string {
	switch t {
	case TeamA:
		return "A"
	case TeamB:
		return "B"
	}
	return "none"
}

// Opponent returns the other side
func (t Team) Opponent() Team {
	switch t {
	case TeamA:
		return TeamB
	case TeamB:
		return TeamA
	}
	return TeamNone
}

// Match is one running game on one arena. It owns the gamemode, the
// collision engine and the per-player statistics and is torn down by its
// lobby when it finishes.
type Match struct {
	ID        string
	Arena     *Arena
	Gamemode  Gamemode
	Collision *CollisionEngine
	Stats     *MatchStats

	world      *World
	players    []*Player
	teams      map[PlayerID]Team
	spectators map[PlayerID]bool
	spawnNext  [3]int
	timers     timerSet
	started    bool
	destroyed  bool
	startedAt  time.Time
}

// NewMatch creates a match for players. Nothing happens until Start.
func NewMatch(w *World, id string, arena *Arena, kind GamemodeKind, players []*Player) *Match {
	m := &Match{
		ID:         id,
		Arena:      arena,
		Stats:      newMatchStats(),
		world:      w,
		players:    append([]*Player(nil), players...),
		teams:      make(map[PlayerID]Team),
		spectators: make(map[PlayerID]bool),
	}
	m.Gamemode = NewGamemode(kind, w, m)
	m.Collision = NewCollisionEngine(w.Bus, m, arena, m, w.Config.ProjectileSpeed, w.Config.ProjectileDamage)
	return m
}

// Start wires the match into the bus, assigns teams and spawns everybody
func (m *Match) Start() {
	if m.started || m.destroyed {
		return
	}
	m.started = true
	m.startedAt = m.world.Scheduler.Now()

	bus := m.world.Bus
	bus.AddListener(m, EventTick, m.onTick, PriorityMedium)
	bus.AddListener(m, EventMovementBroadcast, m.onMovementBroadcast, PriorityMedium)
	bus.AddListener(m, EventPlayerMove, m.onMove, PriorityMedium)
	bus.AddListener(m, EventPlayerShoot, m.onShoot, PriorityMedium)
	bus.AddListener(m, EventProjectileRemove, m.onProjectileRemove, PriorityMedium)
	for _, kind := range []EventKind{EventStatsShot, EventStatsHit, EventStatsKill} {
		bus.AddListener(m, kind, m.statsRecorder(kind), PriorityLow)
	}

	m.Collision.Enable()
	m.Gamemode.Enable()

	for _, pkt := range m.Arena.SnapshotPackets() {
		m.Broadcast(pkt)
	}
	for _, p := range m.players {
		m.world.Registry.SetMatch(p.ID, m)
		m.assign(p, m.smallerTeam())
	}
	for _, p := range m.players {
		if err := m.Spawn(p); err != nil {
			log.Error().Err(err).Str("match", m.ID).Msg("initial spawn failed")
		}
	}

	if d := m.world.Config.MatchDuration; d > 0 {
		m.timers.add(m.world.Scheduler.After(d, func() {
			if m.destroyed {
				return
			}
			log.Info().Str("match", m.ID).Msg("match timer complete")
			m.world.Bus.CallEvent(EventMatchTimerComplete, &MatchCompleteEvent{Match: m, Winner: m.Winner()})
		}))
	}

	log.Info().
		Str("match", m.ID).
		Str("arena", m.Arena.Title).
		Stringer("gamemode", m.Gamemode.Kind()).
		Int("players", len(m.players)).
		Msg("match started")
}

// assign puts p on t and tells everybody
func (m *Match) assign(p *Player, t Team) {
	m.teams[p.ID] = t
	delete(m.spectators, p.ID)
	p.Team = t
	m.Stats.row(p)
	m.Gamemode.AddPlayer(p)
	m.Broadcast(FloatsExtraPacket(MsgPlayerJoined, uint8(p.ID), float32(t)))
}

// smallerTeam returns the team with fewer members, ties broken randomly
func (m *Match) smallerTeam() Team {
	a, b := m.teamSize(TeamA), m.teamSize(TeamB)
	switch {
	case a < b:
		return TeamA
	case b < a:
		return TeamB
	}
	if m.world.Rand.IntN(2) == 0 {
		return TeamA
	}
	return TeamB
}

func (m *Match) teamSize(t Team) int {
	n := 0
	for _, team := range m.teams {
		if team == t {
			n++
		}
	}
	return n
}

// AddPlayer lets a late joiner in. Deathmatch folds them onto the team that
// is not winning, every other gamemode makes them spectate.
func (m *Match) AddPlayer(p *Player) {
	if m.destroyed || m.Player(p.ID) != nil {
		return
	}
	m.players = append(m.players, p)
	m.world.Registry.SetMatch(p.ID, m)

	for _, pkt := range m.Arena.SnapshotPackets() {
		p.Send(pkt)
	}
	for _, other := range m.players {
		if other == p {
			continue
		}
		if t := m.teams[other.ID]; t != TeamNone {
			p.Send(FloatsExtraPacket(MsgPlayerJoined, uint8(other.ID), float32(t)))
		}
		if other.Alive {
			p.Send(other.MovementPacket())
			p.Send(other.HealthPacket())
		}
	}

	if m.Gamemode.Kind() != GamemodeDeathmatch {
		m.MakeSpectator(p)
		return
	}
	m.assign(p, m.losingTeam())
	if err := m.Spawn(p); err != nil {
		log.Error().Err(err).Str("match", m.ID).Msg("late spawn failed")
	}
}

// losingTeam returns the team that is not winning, ties broken randomly
func (m *Match) losingTeam() Team {
	a, b := m.Stats.TeamKills(TeamA), m.Stats.TeamKills(TeamB)
	switch {
	case a < b:
		return TeamA
	case b < a:
		return TeamB
	}
	if m.world.Rand.IntN(2) == 0 {
		return TeamA
	}
	return TeamB
}

// RemovePlayer takes id out of the match and flushes their statistics
func (m *Match) RemovePlayer(id PlayerID) {
	idx := -1
	for i, p := range m.players {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	p := m.players[idx]
	m.players = append(m.players[:idx], m.players[idx+1:]...)
	delete(m.teams, id)
	delete(m.spectators, id)
	m.Gamemode.RemovePlayer(id)
	m.world.Registry.ClearMatch(id, m)
	p.ClearMatchState()

	if delta, ok := m.Stats.Remove(id); ok && delta.ExternalID != "" {
		m.world.Bus.CallEvent(EventDBPlayerUpdate, &PlayerUpdateEvent{Delta: delta})
	}
}

// Player returns the match member with id or nil
func (m *Match) Player(id PlayerID) *Player {
	for _, p := range m.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// Players returns every member, spectators included
func (m *Match) Players() []*Player {
	return m.players
}

// TeamOf returns the team of id, TeamNone for spectators and strangers
func (m *Match) TeamOf(id PlayerID) Team {
	return m.teams[id]
}

// Members returns the players on t
func (m *Match) Members(t Team) []*Player {
	var out []*Player
	for _, p := range m.players {
		if m.teams[p.ID] == t {
			out = append(out, p)
		}
	}
	return out
}

// IsSpectator reports whether id only watches
func (m *Match) IsSpectator(id PlayerID) bool {
	return m.spectators[id]
}

// HasEnoughPlayers reports whether both teams still have a valid player
func (m *Match) HasEnoughPlayers() bool {
	var a, b bool
	for id, t := range m.teams {
		if !m.Gamemode.IsValid(id) {
			continue
		}
		switch t {
		case TeamA:
			a = true
		case TeamB:
			b = true
		}
	}
	return a && b
}

// collisionTargets lists the players projectiles can hit
func (m *Match) collisionTargets() []*Player {
	out := make([]*Player, 0, len(m.players))
	for _, p := range m.players {
		if p.Alive && m.teams[p.ID] != TeamNone {
			out = append(out, p)
		}
	}
	return out
}

// Spawn places p at the next spawn point of their team
func (m *Match) Spawn(p *Player) error {
	t := m.teams[p.ID]
	if t == TeamNone {
		return eris.Wrapf(ErrNotOnTeam, "spawning player %d in match %s", p.ID, m.ID)
	}
	spawns := m.Arena.Spawns(t)
	pos := V(float64(m.Arena.Width)/2+1, float64(m.Arena.Height)/2+1)
	if len(spawns) > 0 {
		pos = spawns[m.spawnNext[t]%len(spawns)]
		m.spawnNext[t]++
	}
	p.ResetCombat(m.world.Config.MaxAmmo)
	p.Position = pos
	center := V(float64(m.Arena.Width)/2+1, float64(m.Arena.Height)/2+1)
	p.BodyRotation = math.Atan2(center.Y-pos.Y, center.X-pos.X)
	p.HeadRotation = p.BodyRotation

	m.Broadcast(FloatsExtraPacket(MsgSpawn, uint8(p.ID),
		float32(t), float32(pos.X), float32(pos.Y),
		float32(m.world.Config.ProtectionWindow.Seconds())))
	m.Broadcast(p.HealthPacket())
	m.world.Bus.CallEvent(EventPlayerSpawn, &SpawnEvent{Match: m, Player: p})
	return nil
}

// MakeSpectator stops p from playing. Their team, if any, is kept for the
// statistics and the gamemode.
func (m *Match) MakeSpectator(p *Player) {
	m.spectators[p.ID] = true
	p.Alive = false
	p.Velocity = Vec2{}
	p.Send(HeaderPacket(MsgSpectate))
}

// Winner is the team with more kills. Under elimination the team with more
// valid players wins first.
func (m *Match) Winner() Team {
	if m.Gamemode.Kind() == GamemodeElimination {
		a, b := m.validCount(TeamA), m.validCount(TeamB)
		if a != b {
			if a > b {
				return TeamA
			}
			return TeamB
		}
	}
	a, b := m.Stats.TeamKills(TeamA), m.Stats.TeamKills(TeamB)
	switch {
	case a > b:
		return TeamA
	case b > a:
		return TeamB
	}
	return TeamNone
}

func (m *Match) validCount(t Team) int {
	n := 0
	for id, team := range m.teams {
		if team == t && m.Gamemode.IsValid(id) {
			n++
		}
	}
	return n
}

// Broadcast sends pkt to every member
func (m *Match) Broadcast(pkt Packet) {
	data := pkt.Encode()
	for _, p := range m.players {
		if p.conn != nil {
			p.conn.SendBinary(data)
		}
	}
}

func (m *Match) member(p *Player) bool {
	return p != nil && m.world.Registry.MatchOf(p.ID) == m
}

func (m *Match) onMove(payload any) error {
	ev := payload.(*MoveEvent)
	p := ev.Player
	if !m.member(p) || !p.Alive || m.spectators[p.ID] {
		return nil
	}
	if !m.Arena.InBounds(ev.Position) {
		p.Send(FloatsPacket(MsgOutOfBounds, float32(p.Position.X), float32(p.Position.Y)))
		m.world.Bus.CallEvent(EventOutOfBounds, &OutOfBoundsEvent{Match: m, Player: p, Position: ev.Position})
		return nil
	}
	p.Position = ev.Position
	p.Velocity = ev.Velocity
	p.BodyRotation = NormalizeAngle(ev.BodyRotation)
	p.HeadRotation = NormalizeAngle(ev.HeadRotation)
	p.SpeedBoost = ev.Boost
	return nil
}

func (m *Match) onMovementBroadcast(any) error {
	for _, p := range m.players {
		if !p.Alive {
			continue
		}
		data := p.MovementPacket().Encode()
		for _, other := range m.players {
			if other != p && other.conn != nil {
				other.conn.SendBinary(data)
			}
		}
	}
	return nil
}

func (m *Match) onShoot(payload any) error {
	ev := payload.(*ShootEvent)
	p := ev.Player
	if !m.member(p) || !p.Alive || m.spectators[p.ID] || p.Ammo <= 0 {
		return nil
	}
	dir := FromAngle(p.HeadRotation)
	origin := p.Position.Add(dir.Scale(PlayerBodyLength / 2))
	proj := m.Collision.Fire(origin, dir, p.ID)
	if proj == nil {
		return nil
	}
	p.Ammo--
	m.Broadcast(proj.AddPacket())
	m.world.Bus.CallEvent(EventStatsShot, &StatsEvent{Match: m, Player: p.ID})
	return nil
}

func (m *Match) onProjectileRemove(payload any) error {
	ev := payload.(*ProjectileRemoveEvent)
	if ev.Match != m {
		return nil
	}
	m.Broadcast(FloatsPacket(MsgProjectileRemove, float32(ev.ProjectileID)))
	return nil
}

// statsRecorder folds one kind of statistics event into the match table
func (m *Match) statsRecorder(kind EventKind) Callback {
	return func(payload any) error {
		ev := payload.(*StatsEvent)
		if ev.Match != m {
			return nil
		}
		p := m.Player(ev.Player)
		if p == nil {
			return nil
		}
		row := m.Stats.row(p)
		switch kind {
		case EventStatsShot:
			row.Shots++
		case EventStatsHit:
			row.Hits++
			row.Damage = round2(row.Damage + ev.Damage)
		case EventStatsKill:
			row.Kills++
			if victim := m.Player(ev.Target); victim != nil {
				m.Stats.row(victim).Deaths++
			}
		}
		return nil
	}
}

func (m *Match) onTick(payload any) error {
	ev := payload.(*TickEvent)
	m.Collision.Step(ev.Dt)
	if m.destroyed {
		return nil
	}
	m.detectRams()
	if m.destroyed {
		return nil
	}
	m.reload(ev.Dt)
	return nil
}

// reload refills one round per ReloadTime for every living player
func (m *Match) reload(dt float64) {
	per := m.world.Config.ReloadTime.Seconds()
	maxAmmo := m.world.Config.MaxAmmo
	for _, p := range m.players {
		if !p.Alive || p.Ammo >= maxAmmo {
			p.Reload = 0
			continue
		}
		if per <= 0 {
			p.Ammo = maxAmmo
			continue
		}
		p.Reload += dt / per
		for p.Reload >= 1 && p.Ammo < maxAmmo {
			p.Reload--
			p.Ammo++
		}
		if p.Ammo >= maxAmmo {
			p.Reload = 0
		}
	}
}

// detectRams damages a player whose body overlaps a faster opponent. A
// boosting player always counts as the faster one.
func (m *Match) detectRams() {
	for i := 0; i < len(m.players); i++ {
		a := m.players[i]
		for j := i + 1; j < len(m.players); j++ {
			b := m.players[j]
			if !a.Alive || !b.Alive {
				continue
			}
			ta, tb := m.teams[a.ID], m.teams[b.ID]
			if ta == TeamNone || tb == TeamNone || ta == tb {
				continue
			}
			if !bodiesOverlap(a, b) {
				continue
			}
			attacker, target := a, b
			if fasterThan(b, a) {
				attacker, target = b, a
			}
			if attacker.RamCooldown {
				continue
			}
			m.startRamCooldown(attacker)
			m.world.Bus.CallEvent(EventDamage, &DamageEvent{
				Match:   m,
				Shooter: attacker.ID,
				Target:  target.ID,
				Amount:  m.world.Config.RamDamage,
				Kind:    DamageRam,
				Push:    target.Position.Sub(attacker.Position).Normalize(),
			})
			if m.destroyed {
				return
			}
		}
	}
}

func (m *Match) startRamCooldown(p *Player) {
	p.RamCooldown = true
	id := p.ID
	m.timers.add(m.world.Scheduler.After(m.world.Config.RamCooldown, func() {
		if cur := m.Player(id); cur != nil {
			cur.RamCooldown = false
		}
	}))
}

func fasterThan(a, b *Player) bool {
	if a.SpeedBoost != b.SpeedBoost {
		return a.SpeedBoost
	}
	return a.Velocity.LenSq() > b.Velocity.LenSq()
}

func bodiesOverlap(a, b *Player) bool {
	ca, axA := a.Body()
	cb, axB := b.Body()
	return satOverlap(ca, cb, [4]Vec2{axA[0], axA[1], axB[0], axB[1]})
}

// End announces the result, publishes the statistics and tears the match down
func (m *Match) End(winner Team) {
	if m.destroyed {
		return
	}
	killsA, killsB := m.Stats.TeamKills(TeamA), m.Stats.TeamKills(TeamB)
	m.Broadcast(IntsPacket(MsgMatchEnd, uint8(winner), clampByte(killsA), clampByte(killsB)))

	rows := m.Stats.Rows()
	for _, row := range rows {
		if p := m.Player(row.PlayerID); p != nil {
			p.Send(row.Packet())
		}
	}
	bus := m.world.Bus
	bus.CallEvent(EventStatsSend, &StatsSendEvent{Match: m, Arena: m.Arena.Title, Winner: winner, Stats: rows})

	var durable []StatsDelta
	for _, row := range rows {
		if row.ExternalID != "" {
			durable = append(durable, row)
		}
	}
	if len(durable) > 0 {
		bus.CallEvent(EventDBPlayersUpdate, &PlayersUpdateEvent{Deltas: durable})
	}

	log.Info().
		Str("match", m.ID).
		Stringer("winner", winner).
		Int("killsA", killsA).
		Int("killsB", killsB).
		Dur("duration", m.world.Scheduler.Now().Sub(m.startedAt)).
		Msg("match ended")
	m.Destroy()
}

// Destroy detaches the match from the bus, cancels its timers and releases
// its players. It is safe to call more than once.
func (m *Match) Destroy() {
	if m.destroyed {
		return
	}
	m.destroyed = true
	m.timers.cancelAll()
	m.world.Bus.RemoveOwner(m)
	m.Gamemode.Disable()
	m.Collision.Disable()
	for _, p := range m.players {
		m.world.Registry.ClearMatch(p.ID, m)
		p.ClearMatchState()
	}
}

// Destroyed reports whether the match was torn down
func (m *Match) Destroyed() bool {
	return m.destroyed
}
