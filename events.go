package main

import "time"

// EventKind enumerates everything that travels over the EventBus
type EventKind int

const (
	EventConnectionOpened EventKind = iota
	EventConnectionMessage
	EventConnectionClosed
	EventJoinRequest
	EventPlayerLeave
	EventPlayerIdentified
	EventTick
	EventMovementBroadcast
	EventPlayerMove
	EventPlayerShoot
	EventOutOfBounds
	EventChat
	EventVote
	EventProjectileRemove
	EventDamage
	EventPlayerDeath
	EventPlayerSpawn
	EventMatchTimerComplete
	EventMatchComplete
	EventMatchFinished
	EventStatsShot
	EventStatsHit
	EventStatsKill
	EventStatsSend
	EventDBPlayerUpdate
	EventDBPlayersUpdate
)

var eventNames = map[EventKind]string{
	EventConnectionOpened:   "CONNECTION_OPENED",
	EventConnectionMessage:  "CONNECTION_MESSAGE",
	EventConnectionClosed:   "CONNECTION_CLOSED",
	EventJoinRequest:        "JOIN_REQUEST",
	EventPlayerLeave:        "PLAYER_LEAVE",
	EventPlayerIdentified:   "PLAYER_IDENTIFIED",
	EventTick:               "TICK",
	EventMovementBroadcast:  "MOVEMENT_BROADCAST",
	EventPlayerMove:         "PLAYER_MOVE",
	EventPlayerShoot:        "PLAYER_SHOOT",
	EventOutOfBounds:        "OUT_OF_BOUNDS",
	EventChat:               "CHAT",
	EventVote:               "VOTE",
	EventProjectileRemove:   "PROJECTILE_REMOVE",
	EventDamage:             "DAMAGE",
	EventPlayerDeath:        "PLAYER_DEATH",
	EventPlayerSpawn:        "PLAYER_SPAWN",
	EventMatchTimerComplete: "MATCH_TIMER_COMPLETE",
	EventMatchComplete:      "MATCH_COMPLETE",
	EventMatchFinished:      "MATCH_FINISHED",
	EventStatsShot:          "STATS_SHOT",
	EventStatsHit:           "STATS_HIT",
	EventStatsKill:          "STATS_KILL",
	EventStatsSend:          "STATS_SEND",
	EventDBPlayerUpdate:     "DB_PLAYER_UPDATE",
	EventDBPlayersUpdate:    "DB_PLAYERS_UPDATE",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return "UNKNOWN"
}

// ConnectionOpened is the payload of EventConnectionOpened
type ConnectionOpened struct {
	Conn Connection
}

// ConnectionMessage is the payload of EventConnectionMessage
type ConnectionMessage struct {
	Conn Connection
	Data []byte
}

// ConnectionClosed is the payload of EventConnectionClosed
type ConnectionClosed struct {
	Conn   Connection
	Code   int
	Reason string
}

// JoinRequestEvent is the payload of EventJoinRequest
type JoinRequestEvent struct {
	Player  *Player
	Request JoinRequest
}

// TickEvent is the payload of EventTick
type TickEvent struct {
	N   uint64
	Dt  float64 // seconds
	Now time.Time
}

// MoveEvent carries a client-reported transform
type MoveEvent struct {
	Player       *Player
	Position     Vec2
	Velocity     Vec2
	BodyRotation float64
	HeadRotation float64
	Boost        bool
}

// ShootEvent is the payload of EventPlayerShoot
type ShootEvent struct {
	Player *Player
}

// OutOfBoundsEvent is published instead of relaying a rejected movement
type OutOfBoundsEvent struct {
	Match    *Match
	Player   *Player
	Position Vec2
}

// ChatEvent is the payload of EventChat
type ChatEvent struct {
	Player *Player
	Text   string
}

// VoteEvent is the payload of EventVote
type VoteEvent struct {
	Player *Player
	Index  int
}

// ProjectileRemoveEvent is the payload of EventProjectileRemove
type ProjectileRemoveEvent struct {
	Match        *Match
	ProjectileID uint32
}

// DamageKind distinguishes projectile hits from rams
type DamageKind uint8

const (
	DamageProjectile DamageKind = iota
	DamageRam
)

// DamageEvent is a match-scoped damage request
type DamageEvent struct {
	Match   *Match
	Shooter PlayerID
	Target  PlayerID
	Amount  float64
	Kind    DamageKind
	// Push is the normalized separation vector for rams
	Push Vec2
}

// DeathEvent is the payload of EventPlayerDeath
type DeathEvent struct {
	Match  *Match
	Victim PlayerID
	Killer PlayerID
}

// SpawnEvent is the payload of EventPlayerSpawn
type SpawnEvent struct {
	Match  *Match
	Player *Player
}

// MatchCompleteEvent is published by a gamemode that reached a terminal outcome
type MatchCompleteEvent struct {
	Match  *Match
	Winner Team
}

// IdentifiedEvent carries a verified durable identity back into the simulation
type IdentifiedEvent struct {
	PlayerID PlayerID
	Player   *Player
	Identity Identity
	Err      error
}

// MatchFinishedEvent is published by a lobby after its match was torn down
type MatchFinishedEvent struct {
	Lobby *Lobby
}
