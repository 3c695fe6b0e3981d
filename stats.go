package main

// StatsDelta is one player's statistics for one match
type StatsDelta struct {
	PlayerID   PlayerID `msgpack:"pid"`
	ExternalID string   `msgpack:"ext,omitempty"`
	Name       string   `msgpack:"name"`
	Team       Team     `msgpack:"team"`
	Shots      int      `msgpack:"shots"`
	Hits       int      `msgpack:"hits"`
	Kills      int      `msgpack:"kills"`
	Deaths     int      `msgpack:"deaths"`
	Damage     float64  `msgpack:"dmg"`
}

// StatsEvent is the payload of EventStatsShot, EventStatsHit and EventStatsKill.
// Target is the victim for hits and kills.
type StatsEvent struct {
	Match  *Match
	Player PlayerID
	Target PlayerID
	Damage float64
}

// StatsSendEvent is published once per finished match
type StatsSendEvent struct {
	Match  *Match
	Arena  string
	Winner Team
	Stats  []StatsDelta
}

// PlayersUpdateEvent asks the persistence sink to fold deltas into durable totals
type PlayersUpdateEvent struct {
	Deltas []StatsDelta
}

// PlayerUpdateEvent carries the delta of one player leaving a running match
type PlayerUpdateEvent struct {
	Delta StatsDelta
}

// MatchStats accumulates per-player statistics of one match
type MatchStats struct {
	rows  map[PlayerID]*StatsDelta
	order []PlayerID
}

func newMatchStats() *MatchStats {
	return &MatchStats{rows: make(map[PlayerID]*StatsDelta)}
}

func (s *MatchStats) row(p *Player) *StatsDelta {
	r, ok := s.rows[p.ID]
	if !ok {
		r = &StatsDelta{PlayerID: p.ID}
		s.rows[p.ID] = r
		s.order = append(s.order, p.ID)
	}
	r.ExternalID = p.ExternalID
	r.Name = p.Name
	if p.Team != TeamNone {
		r.Team = p.Team
	}
	return r
}

// Get returns a copy of the row of id
func (s *MatchStats) Get(id PlayerID) (StatsDelta, bool) {
	r, ok := s.rows[id]
	if !ok {
		return StatsDelta{}, false
	}
	return *r, true
}

// Remove drops and returns the row of id
func (s *MatchStats) Remove(id PlayerID) (StatsDelta, bool) {
	r, ok := s.Get(id)
	if !ok {
		return r, false
	}
	delete(s.rows, id)
	for i, cur := range s.order {
		if cur == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return r, true
}

// Rows returns every row in first-seen order
func (s *MatchStats) Rows() []StatsDelta {
	out := make([]StatsDelta, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.rows[id])
	}
	return out
}

// TeamKills sums kills per team
func (s *MatchStats) TeamKills(t Team) int {
	n := 0
	for _, r := range s.rows {
		if r.Team == t {
			n += r.Kills
		}
	}
	return n
}

// Packet is the end-of-match summary sent to one player
func (d StatsDelta) Packet() Packet {
	return IntsPacket(MsgStats, clampByte(d.Shots), clampByte(d.Hits), clampByte(d.Kills), clampByte(d.Deaths))
}

func clampByte(n int) uint8 {
	if n < 0 {
		return 0
	}
	if n > 255 {
		return 255
	}
	return uint8(n)
}
