package main

import (
	"os"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
)

// Arena is static per-match terrain. It is validated by its source and never
// mutated by the simulation.
type Arena struct {
	Title              string `json:"title"`
	Width              int    `json:"width"`
	Height             int    `json:"height"`
	MinimumPlayerCount int    `json:"minimumPlayerCount"`
	MaximumPlayerCount int    `json:"maximumPlayerCount"`
	// ObstaclePositions are the lower corners of 1x1 blocks
	ObstaclePositions []Vec2 `json:"obstaclePositions"`
	TeamASpawns       []Vec2 `json:"teamASpawns"`
	TeamBSpawns       []Vec2 `json:"teamBSpawns"`
}

// ArenaSource is the arena collaborator
type ArenaSource interface {
	LoadArenas() ([]*Arena, error)
}

// FileArenaSource reads a JSON array of arenas
type FileArenaSource struct {
	Path string
}

// LoadArenas implements ArenaSource
func (s FileArenaSource) LoadArenas() ([]*Arena, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "reading arenas from %s", s.Path)
	}
	var arenas []*Arena
	if err := json.Unmarshal(raw, &arenas); err != nil {
		return nil, eris.Wrapf(err, "decoding arenas from %s", s.Path)
	}
	if len(arenas) == 0 {
		return nil, eris.Wrapf(ErrNoArenas, "%s", s.Path)
	}
	for i, a := range arenas {
		if err := a.validate(); err != nil {
			return nil, eris.Wrapf(err, "arena %d in %s", i, s.Path)
		}
	}
	return arenas, nil
}

func (a *Arena) validate() error {
	switch {
	case a == nil:
		return eris.New("empty arena entry")
	case a.Title == "":
		return eris.New("arena without title")
	case a.Width <= 0 || a.Height <= 0:
		return eris.Errorf("arena %q has size %dx%d", a.Title, a.Width, a.Height)
	case a.MinimumPlayerCount < 1 || a.MaximumPlayerCount < a.MinimumPlayerCount:
		return eris.Errorf("arena %q has player bounds %d..%d", a.Title, a.MinimumPlayerCount, a.MaximumPlayerCount)
	case len(a.TeamASpawns) == 0 || len(a.TeamBSpawns) == 0:
		return eris.Errorf("arena %q lacks spawn points", a.Title)
	}
	return nil
}

// StaticArenaSource serves a fixed list, used when no arenas file is configured
type StaticArenaSource []*Arena

// LoadArenas implements ArenaSource
func (s StaticArenaSource) LoadArenas() ([]*Arena, error) {
	if len(s) == 0 {
		return nil, ErrNoArenas
	}
	return s, nil
}

// Fits reports whether a match of n players may be played on a
func (a *Arena) Fits(n int) bool {
	return n >= a.MinimumPlayerCount && n <= a.MaximumPlayerCount
}

// InBounds reports whether p lies inside [0, width+2] x [0, height+2]
func (a *Arena) InBounds(p Vec2) bool {
	return p.X >= 0 && p.Y >= 0 &&
		p.X <= float64(a.Width+2) && p.Y <= float64(a.Height+2)
}

// Spawns returns the spawn ring of a team
func (a *Arena) Spawns(t Team) []Vec2 {
	switch t {
	case TeamA:
		return a.TeamASpawns
	case TeamB:
		return a.TeamBSpawns
	}
	return nil
}

// SnapshotPackets returns the packets describing the arena to a client
func (a *Arena) SnapshotPackets() []Packet {
	floats := make([]float32, 0, 2+2*len(a.ObstaclePositions))
	floats = append(floats, float32(a.Width), float32(a.Height))
	for _, o := range a.ObstaclePositions {
		floats = append(floats, float32(o.X), float32(o.Y))
	}
	return []Packet{
		StringPacket(MsgArenaTitle, a.Title),
		FloatsPacket(MsgArena, floats...),
	}
}

// catalogPlayerBounds returns the smallest minimum and smallest maximum player
// count of the catalog. A roster within them fits at least the arena with the
// smallest minimum; the vote only draws arenas the roster fits.
func catalogPlayerBounds(arenas []*Arena) (min, max int) {
	for i, a := range arenas {
		if i == 0 || a.MinimumPlayerCount < min {
			min = a.MinimumPlayerCount
		}
		if i == 0 || a.MaximumPlayerCount < max {
			max = a.MaximumPlayerCount
		}
	}
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	return min, max
}

func ring(cx, cy float64) []Vec2 {
	return []Vec2{V(cx, cy), V(cx+2, cy), V(cx, cy+2), V(cx+2, cy+2)}
}

func wall(x, y, n int, horizontal bool) []Vec2 {
	out := make([]Vec2, 0, n)
	for i := 0; i < n; i++ {
		if horizontal {
			out = append(out, V(float64(x+i), float64(y)))
		} else {
			out = append(out, V(float64(x), float64(y+i)))
		}
	}
	return out
}

// DefaultArenas is the built-in catalog
func DefaultArenas() []*Arena {
	crossroads := &Arena{
		Title: "Crossroads", Width: 24, Height: 24,
		MinimumPlayerCount: 2, MaximumPlayerCount: 8,
		TeamASpawns: ring(2, 2), TeamBSpawns: ring(20, 20),
	}
	crossroads.ObstaclePositions = append(wall(8, 11, 8, true), wall(11, 6, 5, false)...)
	crossroads.ObstaclePositions = append(crossroads.ObstaclePositions, wall(11, 14, 5, false)...)

	pillars := &Arena{
		Title: "Pillars", Width: 28, Height: 18,
		MinimumPlayerCount: 2, MaximumPlayerCount: 8,
		TeamASpawns: ring(2, 7), TeamBSpawns: ring(24, 7),
	}
	for x := 6; x <= 22; x += 4 {
		for y := 3; y <= 15; y += 4 {
			pillars.ObstaclePositions = append(pillars.ObstaclePositions, V(float64(x), float64(y)))
		}
	}

	corridors := &Arena{
		Title: "Corridors", Width: 30, Height: 20,
		MinimumPlayerCount: 2, MaximumPlayerCount: 10,
		TeamASpawns: ring(2, 9), TeamBSpawns: ring(26, 9),
	}
	corridors.ObstaclePositions = append(wall(6, 5, 18, true), wall(6, 15, 18, true)...)

	fortress := &Arena{
		Title: "Fortress", Width: 26, Height: 26,
		MinimumPlayerCount: 2, MaximumPlayerCount: 8,
		TeamASpawns: ring(12, 2), TeamBSpawns: ring(12, 22),
	}
	fortress.ObstaclePositions = append(wall(8, 8, 10, true), wall(8, 17, 10, true)...)
	fortress.ObstaclePositions = append(fortress.ObstaclePositions, wall(8, 9, 3, false)...)
	fortress.ObstaclePositions = append(fortress.ObstaclePositions, wall(17, 14, 3, false)...)

	return []*Arena{crossroads, pillars, corridors, fortress}
}
