package main

import (
	"strings"

	"github.com/rs/zerolog/log"
)

const maxLobbies = 100

// JoinRequest is what a client asks for when joining
type JoinRequest struct {
	Code    string
	Private bool
	Bots    bool
}

// LobbyInfo is the public summary of a lobby
type LobbyInfo struct {
	ID      string `json:"id"`
	State   string `json:"state"`
	Players int    `json:"players"`
	Bots    bool   `json:"bots"`
	Arena   string `json:"arena,omitempty"`
}

// Matchmaker routes players into lobbies and keeps the lobby population
// dense: under-filled lobbies absorb each other and finished public lobbies
// are drained into the rest.
type Matchmaker struct {
	world   *World
	lobbies []*Lobby
	codes   map[string]*Lobby
}

// NewMatchmaker creates a matchmaker subscribed to join, leave and match
// finished events
func NewMatchmaker(w *World) *Matchmaker {
	mm := &Matchmaker{
		world: w,
		codes: make(map[string]*Lobby),
	}
	w.Bus.AddListener(mm, EventJoinRequest, mm.onJoinRequest, PriorityMedium)
	w.Bus.AddListener(mm, EventPlayerLeave, mm.onPlayerLeave, PriorityLow)
	w.Bus.AddListener(mm, EventMatchFinished, mm.onMatchFinished, PriorityLow)
	return mm
}

func (mm *Matchmaker) onJoinRequest(payload any) error {
	ev := payload.(*JoinRequestEvent)
	mm.Leave(ev.Player)
	if mm.Join(ev.Player, ev.Request) == nil {
		ev.Player.Alert("no lobby available")
	}
	return nil
}

func (mm *Matchmaker) onPlayerLeave(payload any) error {
	mm.Leave(payload.(*Player))
	return nil
}

func (mm *Matchmaker) onMatchFinished(payload any) error {
	mm.consolidate(payload.(*MatchFinishedEvent).Lobby)
	return nil
}

// Lobbies returns the live lobbies
func (mm *Matchmaker) Lobbies() []*Lobby {
	return mm.lobbies
}

// Lookup returns the private lobby with code or nil
func (mm *Matchmaker) Lookup(code string) *Lobby {
	return mm.codes[strings.ToUpper(strings.TrimSpace(code))]
}

// Join puts p into the lobby req resolves to
func (mm *Matchmaker) Join(p *Player, req JoinRequest) *Lobby {
	if req.Code != "" {
		if l := mm.Lookup(req.Code); l != nil && l.HasCapacity() {
			return mm.add(l, p)
		}
		p.Alert("lobby not found")
		return mm.joinPublic(p)
	}
	switch {
	case req.Private:
		return mm.add(mm.create(true, false), p)
	case req.Bots:
		return mm.add(mm.create(false, true), p)
	}
	return mm.joinPublic(p)
}

func (mm *Matchmaker) joinPublic(p *Player) *Lobby {
	if l := mm.bestPublic(nil); l != nil {
		return mm.add(l, p)
	}
	return mm.add(mm.create(false, false), p)
}

func (mm *Matchmaker) add(l *Lobby, p *Player) *Lobby {
	if l == nil {
		return nil
	}
	if err := l.AddPlayer(p); err != nil {
		log.Warn().Err(err).Str("lobby", l.ID.String()).Uint8("player", uint8(p.ID)).Msg("join failed")
		if l.Count() == 0 {
			mm.retire(l)
		}
		return nil
	}
	// a match cut short by the join may have moved p on
	if cur := mm.world.Registry.LobbyOf(p.ID); cur != nil {
		return cur
	}
	return l
}

// bucket ranks a public lobby: STARTING first, then RUNNING, then below minimum
func bucket(l *Lobby) int {
	switch {
	case l.State() == LobbyStarting:
		return 0
	case l.State() == LobbyRunning:
		return 1
	case l.Count() < l.MinPlayers():
		return 2
	}
	return 3
}

// bestPublic picks the most populated public lobby of the best bucket
func (mm *Matchmaker) bestPublic(exclude *Lobby) *Lobby {
	var best *Lobby
	for _, l := range mm.lobbies {
		if l == exclude || l.Private || !l.HasCapacity() {
			continue
		}
		if best == nil {
			best = l
			continue
		}
		bl, bb := bucket(l), bucket(best)
		if bl < bb || (bl == bb && l.Count() > best.Count()) {
			best = l
		}
	}
	return best
}

func (mm *Matchmaker) create(private, bots bool) *Lobby {
	if len(mm.lobbies) >= maxLobbies {
		log.Warn().Int("lobbies", len(mm.lobbies)).Msg("lobby limit reached")
		return nil
	}
	code := ""
	if private {
		code = generateLobbyCode()
		for mm.codes[code] != nil {
			code = generateLobbyCode()
		}
	}
	l := NewLobby(mm.world, private, bots, code)
	mm.lobbies = append(mm.lobbies, l)
	if private {
		mm.codes[code] = l
	}
	log.Info().
		Str("lobby", l.ID.String()).
		Bool("private", private).
		Bool("bots", bots).
		Int("lobbies", len(mm.lobbies)).
		Msg("lobby created")
	return l
}

func (mm *Matchmaker) retire(l *Lobby) {
	for i, cur := range mm.lobbies {
		if cur == l {
			mm.lobbies = append(mm.lobbies[:i], mm.lobbies[i+1:]...)
			break
		}
	}
	if l.Code != "" && mm.codes[l.Code] == l {
		delete(mm.codes, l.Code)
	}
	l.Destroy()
}

// Leave takes p out of their lobby. Empty lobbies are retired and public
// lobbies below minimum pull players from other small lobbies.
func (mm *Matchmaker) Leave(p *Player) {
	l := mm.world.Registry.LobbyOf(p.ID)
	if l == nil {
		return
	}
	l.RemovePlayer(p.ID)
	if l.Destroyed() {
		return
	}
	if l.RealCount() == 0 {
		mm.retire(l)
		return
	}
	if !l.Private && l.Count() < l.MinPlayers() {
		mm.migrateInto(l)
	}
}

// migrateInto moves real players of other small, idle public lobbies into l
func (mm *Matchmaker) migrateInto(l *Lobby) {
	for _, other := range append([]*Lobby(nil), mm.lobbies...) {
		if l.Spare() == 0 {
			return
		}
		if other == l || other.Private || other.State() == LobbyRunning || other.Count() >= other.MinPlayers() {
			continue
		}
		for _, p := range other.RealPlayers() {
			if l.Spare() == 0 {
				break
			}
			mm.move(other, l, p)
		}
		if other.RealCount() == 0 {
			mm.retire(other)
		}
	}
}

func (mm *Matchmaker) move(from, to *Lobby, p *Player) {
	from.RemovePlayer(p.ID)
	if err := to.AddPlayer(p); err != nil {
		log.Warn().Err(err).Uint8("player", uint8(p.ID)).Msg("migration failed, returning player")
		if err := from.AddPlayer(p); err != nil {
			log.Error().Err(err).Uint8("player", uint8(p.ID)).Msg("player left without lobby")
		}
		return
	}
	log.Debug().
		Uint8("player", uint8(p.ID)).
		Str("from", from.ID.String()).
		Str("to", to.ID.String()).
		Msg("player migrated")
}

// consolidate drains a public lobby whose match just finished into the other
// lobbies when they have room for its whole roster
func (mm *Matchmaker) consolidate(l *Lobby) {
	if l.Private || l.Destroyed() {
		return
	}
	roster := l.RealPlayers()
	if len(roster) == 0 {
		return
	}
	spare := 0
	for _, other := range mm.lobbies {
		if other != l && !other.Private && !other.Destroyed() {
			spare += other.Spare()
		}
	}
	if spare < len(roster) {
		log.Debug().
			Str("lobby", l.ID.String()).
			Int("players", len(roster)).
			Int("spare", spare).
			Msg("not enough room to consolidate lobby")
		return
	}
	for _, p := range roster {
		to := mm.bestPublic(l)
		if to == nil {
			log.Warn().Str("lobby", l.ID.String()).Msg("consolidation ran out of room")
			return
		}
		mm.move(l, to, p)
	}
	if l.RealCount() == 0 {
		mm.retire(l)
	}
}

// Info summarizes every lobby
func (mm *Matchmaker) Info() []LobbyInfo {
	out := make([]LobbyInfo, 0, len(mm.lobbies))
	for _, l := range mm.lobbies {
		if l.Private {
			continue
		}
		info := LobbyInfo{
			ID:      l.ID.String(),
			State:   l.State().String(),
			Players: l.Count(),
			Bots:    l.Bots,
		}
		if m := l.Match(); m != nil {
			info.Arena = m.Arena.Title
		}
		out = append(out, info)
	}
	return out
}
