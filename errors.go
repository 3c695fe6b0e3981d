package main

import "github.com/rotisserie/eris"

// Invariant violations. They are returned up to the event dispatch that
// triggered them and logged there.
var (
	ErrNotInGamemode   = eris.New("player not registered in gamemode")
	ErrNotOnTeam       = eris.New("player is not on a team")
	ErrNotInMatch      = eris.New("player is not in this match")
	ErrLobbyFull       = eris.New("lobby is full")
	ErrInvalidVote     = eris.New("vote index out of range")
	ErrNoFreePlayerID  = eris.New("no free player id")
	ErrMalformedPacket = eris.New("malformed packet")
	ErrNoArenas        = eris.New("no arenas available")
	ErrInvalidToken    = eris.New("invalid identity token")
	ErrPlayerNotFound  = eris.New("player not found")
)
