package main

import "github.com/rotisserie/eris"

const maxPlayerID = 255

// Registry is the single source of truth for which lobby and match every
// player occupies. Components query it instead of holding back references.
type Registry struct {
	players map[PlayerID]*Player
	lobbies map[PlayerID]*Lobby
	matches map[PlayerID]*Match
	next    PlayerID
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		players: make(map[PlayerID]*Player),
		lobbies: make(map[PlayerID]*Lobby),
		matches: make(map[PlayerID]*Match),
	}
}

// NewPlayer allocates an id and registers a player for conn
func (r *Registry) NewPlayer(conn Connection, bot bool) (*Player, error) {
	id, err := r.allocate()
	if err != nil {
		return nil, err
	}
	p := NewPlayer(id, conn, bot)
	r.players[id] = p
	return p, nil
}

// allocate hands out ids round-robin so a recently freed id is not reused at once
func (r *Registry) allocate() (PlayerID, error) {
	for i := 0; i < maxPlayerID; i++ {
		r.next++
		if r.next == 0 {
			r.next = 1
		}
		if _, used := r.players[r.next]; !used {
			return r.next, nil
		}
	}
	return 0, eris.Wrapf(ErrNoFreePlayerID, "%d players connected", len(r.players))
}

// Remove forgets a player entirely
func (r *Registry) Remove(id PlayerID) {
	delete(r.players, id)
	delete(r.lobbies, id)
	delete(r.matches, id)
}

// Player returns the player with id or nil
func (r *Registry) Player(id PlayerID) *Player {
	return r.players[id]
}

// Count returns the number of registered players
func (r *Registry) Count() int {
	return len(r.players)
}

func (r *Registry) LobbyOf(id PlayerID) *Lobby {
	return r.lobbies[id]
}

func (r *Registry) SetLobby(id PlayerID, l *Lobby) {
	r.lobbies[id] = l
}

func (r *Registry) ClearLobby(id PlayerID) {
	delete(r.lobbies, id)
}

func (r *Registry) MatchOf(id PlayerID) *Match {
	return r.matches[id]
}

func (r *Registry) SetMatch(id PlayerID, m *Match) {
	r.matches[id] = m
}

// ClearMatch unbinds id only if it is still bound to m
func (r *Registry) ClearMatch(id PlayerID, m *Match) {
	if r.matches[id] == m {
		delete(r.matches, id)
	}
}
